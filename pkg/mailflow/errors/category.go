// Package errors classifies collaborator failures raised inside node
// handlers and retries the transient ones.
//
// Routing and structural errors live with the packages that raise them
// (mail, branch, structure). This package only decides whether a failed
// chat, tool, validation, or agent call is worth another attempt.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category represents how a handler failure should be treated.
type Category int

const (
	// CategoryTransient indicates retry will likely help.
	// Examples: rate limits, timeouts, a tool server restarting.
	CategoryTransient Category = iota

	// CategoryPermanent indicates retry won't help.
	// Examples: unknown tool, bad arguments, authentication failures.
	CategoryPermanent

	// CategoryInvalid indicates the call succeeded but its output failed
	// the node's rule.
	CategoryInvalid

	// CategoryCanceled indicates the run's context ended.
	CategoryCanceled
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	case CategoryInvalid:
		return "invalid"
	case CategoryCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// CategorizedError wraps an error with its category.
type CategorizedError struct {
	Err      error
	Category Category

	// Attempts is how many times the operation ran.
	Attempts int

	// Op names the operation, e.g. "tool search".
	Op string
}

func (e *CategorizedError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s (category: %s, attempts: %d)", e.Op, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (category: %s, attempts: %d)", e.Err, e.Category, e.Attempts)
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient marks err as worth retrying.
func Transient(err error, op string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Op: op}
}

// Permanent marks err as not worth retrying.
func Permanent(err error, op string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Op: op}
}

// Retryable is implemented by collaborator errors that know whether they
// are transient (llm.Error, tool errors).
type Retryable interface {
	Retryable() bool
}

// Categorize determines how an error should be handled.
// Unknown errors are permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	if errors.Is(err, context.Canceled) {
		return CategoryCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return CategoryInvalid
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return CategoryTransient
	}

	var r Retryable
	if errors.As(err, &r) {
		if r.Retryable() {
			return CategoryTransient
		}
		return CategoryPermanent
	}

	return CategoryPermanent
}

// IsRetryable reports whether err is transient.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
