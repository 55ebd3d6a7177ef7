package mail

import (
	"fmt"
	"strings"
)

// Category classifies an envelope. Receivers dispatch on it with a single
// exhaustive switch.
type Category int

// Messages, Tool, Service and Model carry collaborator traffic and are
// relayed without interpretation. The rest drive graph execution.
const (
	Messages Category = iota
	Tool
	Service
	Model
	Node      // one node for a branch to run
	NodeList  // several successors; resolved by fan-out
	NodeID    // a branch finished the node with this ID
	Start     // begin a branch with an initial context
	End       // stop a branch, or report that it stopped
	Condition // evaluate an edge predicate, or its result
)

var categoryNames = [...]string{
	Messages:  "messages",
	Tool:      "tool",
	Service:   "service",
	Model:     "model",
	Node:      "node",
	NodeList:  "node_list",
	NodeID:    "node_id",
	Start:     "start",
	End:       "end",
	Condition: "condition",
}

// String returns the snake_case category name.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	return c >= 0 && int(c) < len(categoryNames)
}

// ParseCategory is the inverse of Category.String.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mail category %q", s)
}
