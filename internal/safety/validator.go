package safety

import (
	"fmt"
	"strings"
)

// forbiddenKeywords are matched as case-insensitive substrings of the whole
// query text, not as SQL tokens. An identifier like "updates_log" therefore
// also trips the check; that coarseness is accepted in favor of never letting
// a mutating statement through.
var forbiddenKeywords = []string{
	"insert",
	"update",
	"delete",
	"alter",
	"drop",
	"truncate",
	"create",
	"replace",
}

// UnsafeQueryError reports a generated query that matched a forbidden
// keyword under strict mode. It carries the offending query text and is
// never retried or downgraded.
type UnsafeQueryError struct {
	Query string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("unsafe query rejected: %s", e.Query)
}

// Validator screens generated SQL before it may be executed. When strict
// mode is off, EnsureSafe is a no-op.
type Validator struct {
	strict bool
}

func NewValidator(strict bool) *Validator {
	return &Validator{strict: strict}
}

func (v *Validator) Strict() bool {
	return v.strict
}

func (v *Validator) EnsureSafe(query string) error {
	if !v.strict {
		return nil
	}
	lowered := strings.ToLower(query)
	for _, keyword := range forbiddenKeywords {
		if strings.Contains(lowered, keyword) {
			return &UnsafeQueryError{Query: query}
		}
	}
	return nil
}
