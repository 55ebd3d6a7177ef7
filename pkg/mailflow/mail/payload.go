package mail

import "github.com/randalmurphal/mailflow/pkg/mailflow/graph"

// StartPayload opens a branch with an initial context.
type StartPayload struct {
	Context map[string]any
}

// NodePayload asks a branch to run Node, then each of Bundle in order as
// part of the same step.
type NodePayload struct {
	Node   *graph.Node
	Bundle []*graph.Node
}

// NodeListPayload lists the successors of a node that fans out.
type NodeListPayload struct {
	Nodes []NodePayload
}

// ConditionRequest asks a branch to evaluate Edge's condition.
type ConditionRequest struct {
	Edge *graph.Edge
}

// ConditionResult answers a ConditionRequest, or carries a routing
// decision made elsewhere.
type ConditionResult struct {
	EdgeID graph.EdgeID
	Result bool
	From   string
}
