package llm

import "fmt"

// Error is a failed completion call.
type Error struct {
	Op        string
	Err       error
	retryable bool
}

// NewError wraps err for operation op.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, retryable: retryable}
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the call may succeed if repeated.
func (e *Error) Retryable() bool { return e.retryable }
