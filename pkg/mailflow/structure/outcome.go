package structure

import (
	"github.com/randalmurphal/mailflow/pkg/mailflow/branch"
	"github.com/randalmurphal/mailflow/pkg/mailflow/llm"
)

// Outcome is the final state of one branch.
type Outcome struct {
	BranchID string
	// Origin is the branch this one was fanned out from; empty for
	// branches created by START.
	Origin string
	// Ended is true once the branch acknowledged END or aborted.
	Ended bool
	// Retired is true for a branch replaced by its fan-out siblings.
	Retired bool
	// Err is the error that aborted the branch, if any.
	Err error

	Context    map[string]any
	History    []llm.Message
	Responses  []branch.Response
	ContextLog []branch.LogEntry
}

// Failed reports whether any node on the branch failed, recovered or not.
func (o Outcome) Failed() bool {
	if o.Err != nil {
		return true
	}
	for _, r := range o.Responses {
		if r.Err != nil {
			return true
		}
	}
	return false
}
