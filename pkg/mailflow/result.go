package mailflow

import (
	"errors"
	"time"

	"github.com/randalmurphal/mailflow/pkg/mailflow/structure"
	"github.com/randalmurphal/mailflow/pkg/mailflow/walker"
)

// BranchOutcome is the final state of one branch.
type BranchOutcome = structure.Outcome

// Result describes a finished (or aborted) run.
type Result struct {
	RunID string
	// Ticks is how many ticks the run took.
	Ticks int
	// NumEndBranches counts branches that ended.
	NumEndBranches int
	// Branches holds every branch in creation order, retired ones included.
	Branches []BranchOutcome
	// Trace lists each node dispatched, in dispatch order.
	Trace    []walker.Step
	Duration time.Duration
}

// Errors joins every error recorded on any branch: aborts and recovered
// handler failures alike. Nil if the run was clean.
func (r *Result) Errors() error {
	var errs []error
	for _, b := range r.Branches {
		if b.Err != nil {
			errs = append(errs, b.Err)
		}
		for _, resp := range b.Responses {
			if resp.Err != nil && resp.Err != b.Err {
				errs = append(errs, resp.Err)
			}
		}
	}
	return errors.Join(errs...)
}

// Leaves returns the outcomes of branches that were not retired: the
// ones that walked a path to its end.
func (r *Result) Leaves() []BranchOutcome {
	var out []BranchOutcome
	for _, b := range r.Branches {
		if !b.Retired {
			out = append(out, b)
		}
	}
	return out
}
