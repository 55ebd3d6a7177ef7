package errors

import (
	"fmt"
	"strings"
)

// ToolError is a failed tool invocation.
type ToolError struct {
	Tool      string
	Message   string
	Transient bool
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

// Retryable implements Retryable.
func (e *ToolError) Retryable() bool { return e.Transient }

// FieldViolation is one failed validation tag.
type FieldViolation struct {
	Field string
	Tag   string
	Param string
}

// ValidationError indicates a handler output failed its rule.
type ValidationError struct {
	Rule       string
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("validation failed for rule %q", e.Rule)
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		s := v.Tag
		if v.Param != "" {
			s += "=" + v.Param
		}
		if v.Field != "" {
			s = v.Field + ": " + s
		}
		parts = append(parts, s)
	}
	return fmt.Sprintf("validation failed for rule %q: %s", e.Rule, strings.Join(parts, ", "))
}

// TimeoutError indicates a collaborator call timed out.
type TimeoutError struct {
	Operation string
	Duration  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s: %s", e.Duration, e.Operation)
}
