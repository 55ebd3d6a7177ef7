package structure

import (
	"errors"
	"fmt"
)

// ErrUnknownBranch is returned when mail names a branch the structure
// never created or has already retired.
var ErrUnknownBranch = errors.New("unknown branch")

// BranchError wraps a structural error raised by one branch.
type BranchError struct {
	BranchID string
	Err      error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("branch %s: %v", e.BranchID, e.Err)
}

func (e *BranchError) Unwrap() error { return e.Err }
