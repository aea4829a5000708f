package db

import (
	"context"
	"fmt"
)

// Dialect is an explicit identifier for the SQL variant of a connection,
// embedded verbatim into generated prompts.
type Dialect string

const (
	DialectPostgres Dialect = "postgresql"
	DialectDuckDB   Dialect = "duckdb"
)

// TableDescriptor is a read-only snapshot of one table or view: its name and
// the ordered column names visible to query generation.
type TableDescriptor struct {
	Name    string
	Columns []string
}

// Rows is the raw result of a read query: ordered column names plus row
// values in column order.
type Rows struct {
	Columns []string
	Values  [][]any
}

func (r Rows) Empty() bool {
	return len(r.Values) == 0
}

// Connection is the database collaborator consumed by the ask pipeline. It
// is assumed already configured and authenticated; pooling and lifecycle are
// the implementation's concern.
type Connection interface {
	ListTables(ctx context.Context) ([]TableDescriptor, error)
	Execute(ctx context.Context, sql string) (Rows, error)
	Dialect() Dialect
}

// ExecutionError wraps a query that failed to run, typically because the
// model hallucinated syntax or referenced a missing column.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute query %q: %v", e.Query, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
