package llm

import (
	"context"
	"fmt"
)

// Request is one completion round trip. Stop, when set, instructs the model
// to cut the completion at the given sequence; Temperature of zero asks for
// deterministic sampling.
type Request struct {
	Prompt      string
	Stop        string
	Temperature float64
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ModelCallError wraps any failure of the language model endpoint: transport
// errors, non-2xx statuses, and unusable response payloads.
type ModelCallError struct {
	Err error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed: %v", e.Err)
}

func (e *ModelCallError) Unwrap() error {
	return e.Err
}
