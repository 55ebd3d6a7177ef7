package graph

import "github.com/google/uuid"

// EdgeID identifies an edge.
type EdgeID string

// Edge is a directed relation head -> tail. Edges are immutable once added;
// only the Condition's own state may change.
type Edge struct {
	id        EdgeID
	head      ID
	tail      ID
	headSlot  int
	tailSlot  int
	condition Condition
	label     string
	bundle    bool
	seq       int
}

// ID returns the edge identifier.
func (e *Edge) ID() EdgeID { return e.id }

// Head returns the source node ID.
func (e *Edge) Head() ID { return e.head }

// Tail returns the target node ID.
func (e *Edge) Tail() ID { return e.tail }

// Condition returns the edge predicate, or nil if unconditional.
func (e *Edge) Condition() Condition { return e.condition }

// HasCondition reports whether the edge carries a predicate.
func (e *Edge) HasCondition() bool { return e.condition != nil }

// Label returns the edge label.
func (e *Edge) Label() string { return e.label }

// Bundle reports whether the edge is part of a bundle. Bundled tails
// travel with their head as one unit rather than as a separate hop.
func (e *Edge) Bundle() bool { return e.bundle }

// EdgeOption configures an edge at creation.
type EdgeOption func(*Edge)

// WithCondition attaches a predicate.
func WithCondition(c Condition) EdgeOption {
	return func(e *Edge) { e.condition = c }
}

// WithLabel sets the edge label.
func WithLabel(label string) EdgeOption {
	return func(e *Edge) { e.label = label }
}

// WithBundle marks the edge as bundled.
func WithBundle() EdgeOption {
	return func(e *Edge) { e.bundle = true }
}

// WithEdgeID sets an explicit edge ID instead of a generated one.
func WithEdgeID(id EdgeID) EdgeOption {
	return func(e *Edge) { e.id = id }
}

func newEdgeID() EdgeID {
	return EdgeID(uuid.New().String())
}
