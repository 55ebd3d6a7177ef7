package branch

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/mailflow/pkg/mailflow/graph"
)

// Missing collaborator errors. They surface as HandlerError causes.
var (
	ErrNoChatter   = errors.New("no chat capability configured")
	ErrNoTools     = errors.New("no tool invoker configured")
	ErrNoAgents    = errors.New("no agent runner configured")
	ErrUnknownKind = errors.New("unknown node kind")
)

// ErrBranchAborted is the drop reason for mail a branch had drained but
// not processed when it aborted.
var ErrBranchAborted = errors.New("branch aborted")

// UnsupportedFanOutError is raised when a NODE_LIST reaches a branch.
// Fan-out belongs to the structure; a branch walks one path.
type UnsupportedFanOutError struct {
	BranchID string
	Nodes    int
}

func (e *UnsupportedFanOutError) Error() string {
	return fmt.Sprintf("branch %s: node list of %d nodes cannot be resolved by a branch", e.BranchID, e.Nodes)
}

// MissingConditionError is raised when a CONDITION request names an edge
// with no condition.
type MissingConditionError struct {
	BranchID string
	EdgeID   graph.EdgeID
}

func (e *MissingConditionError) Error() string {
	if e.EdgeID == "" {
		return fmt.Sprintf("branch %s: condition request without an edge", e.BranchID)
	}
	return fmt.Sprintf("branch %s: edge %s has no condition", e.BranchID, e.EdgeID)
}

// HandlerError is a node handler failure. Stack is set when the handler
// panicked.
type HandlerError struct {
	NodeID graph.ID
	Kind   graph.Kind
	Err    error
	Stack  []byte
}

func (e *HandlerError) Error() string {
	if e.Stack != nil {
		return fmt.Sprintf("%s node %s panicked: %v", e.Kind, e.NodeID, e.Err)
	}
	return fmt.Sprintf("%s node %s: %v", e.Kind, e.NodeID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// ConditionError is a condition predicate that failed to evaluate. The
// edge is treated as not taken.
type ConditionError struct {
	EdgeID graph.EdgeID
	Err    error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition on edge %s: %v", e.EdgeID, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// IsStructural reports whether err is a wiring error that must abort the
// run rather than just the branch.
func IsStructural(err error) bool {
	var fanOut *UnsupportedFanOutError
	var cond *MissingConditionError
	return errors.As(err, &fanOut) || errors.As(err, &cond)
}
