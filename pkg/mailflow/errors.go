package mailflow

import "errors"

// Sentinel errors returned by Run.
var (
	// ErrEmptyGraph indicates Run was given a nil or empty graph.
	ErrEmptyGraph = errors.New("graph has no nodes")

	// ErrCyclicGraph indicates the graph has a directed cycle.
	ErrCyclicGraph = errors.New("graph is cyclic")

	// ErrMaxTicks indicates the run did not finish within the tick limit.
	ErrMaxTicks = errors.New("exceeded maximum ticks")
)
