package graph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID identifies a node. IDs are opaque; constructors generate UUIDs when
// none is given.
type ID string

// Kind is the payload kind of a node. A branch dispatches on it.
type Kind int

const (
	// KindSystem merges a system directive into the branch's history.
	KindSystem Kind = iota
	// KindInstruction asks the chat capability for a response.
	KindInstruction
	// KindAction invokes a registered tool.
	KindAction
	// KindAgent runs a nested agent.
	KindAgent
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindInstruction:
		return "instruction"
	case KindAction:
		return "action"
	case KindAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "system":
		return KindSystem, nil
	case "instruction":
		return KindInstruction, nil
	case "action":
		return KindAction, nil
	case "agent":
		return KindAgent, nil
	default:
		return 0, fmt.Errorf("unknown node kind %q", s)
	}
}

// Node is a vertex in the graph. Only the fields relevant to its Kind
// are read.
//
// Nodes are owned by the Graph. Mail payloads carry *Node references but
// never mutate them.
type Node struct {
	ID   ID
	Kind Kind
	Name string

	// Directive is the system text for KindSystem.
	Directive string

	// Instruction is the prompt text for KindInstruction.
	Instruction string

	// Tool and Args describe the call for KindAction.
	Tool string
	Args map[string]any

	// Agent names the nested agent for KindAgent.
	Agent string

	// Rule is a validator tag (e.g. "required,min=3") checked against the
	// handler output before it re-enters the branch context.
	Rule string

	// Critical marks the node non-recoverable: a handler failure aborts
	// the branch regardless of the configured policy.
	Critical bool

	Metadata map[string]string
}

func newNode(kind Kind, id ID) *Node {
	if id == "" {
		id = ID(uuid.New().String())
	}
	return &Node{ID: id, Kind: kind}
}

// System creates a system node.
func System(id ID, directive string) *Node {
	n := newNode(KindSystem, id)
	n.Directive = directive
	return n
}

// Instruction creates an instruction node.
func Instruction(id ID, text string) *Node {
	n := newNode(KindInstruction, id)
	n.Instruction = text
	return n
}

// Action creates an action node that calls tool with args.
func Action(id ID, tool string, args map[string]any) *Node {
	n := newNode(KindAction, id)
	n.Tool = tool
	n.Args = args
	return n
}

// Agent creates an agent node.
func Agent(id ID, agent string) *Node {
	n := newNode(KindAgent, id)
	n.Agent = agent
	return n
}

// Label returns Name if set, otherwise the ID. Used in logs.
func (n *Node) Label() string {
	if n.Name != "" {
		return n.Name
	}
	return string(n.ID)
}
