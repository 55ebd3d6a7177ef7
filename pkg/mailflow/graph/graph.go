// Package graph holds the directed graph that mailflow walks: nodes stored
// in an arena, edges addressed by slot index, optional edge conditions,
// and bundles.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Sentinel errors for graph mutation.
var (
	// ErrDuplicateNode indicates AddNode was given an ID already present.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrNodeNotFound indicates an edge endpoint is not in the graph.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateEdge indicates AddEdge was given an explicit ID already in use.
	ErrDuplicateEdge = errors.New("duplicate edge")
)

// Direction selects which edges NodeEdges returns.
type Direction int

const (
	// Out selects edges whose head is the node.
	Out Direction = iota
	// In selects edges whose tail is the node.
	In
	// Both selects either.
	Both
)

type slot struct {
	node *Node
	in   []EdgeID
	out  []EdgeID
}

// Graph owns a node set and the edges between them.
//
// Nodes live in an arena of slots; edges refer to slots by index, so
// traversal never chases node pointers. Removed nodes leave a nil slot.
// Graph is safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	slots []*slot
	index map[ID]int
	edges map[EdgeID]*Edge
	seq   int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index: make(map[ID]int),
		edges: make(map[EdgeID]*Edge),
	}
}

// AddNode adds n. Returns ErrDuplicateNode if its ID is taken.
func (g *Graph) AddNode(n *Node) error {
	if n == nil {
		return errors.New("graph: nil node")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.index[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}
	g.index[n.ID] = len(g.slots)
	g.slots = append(g.slots, &slot{node: n})
	return nil
}

// AddNodes adds each node in order, stopping at the first error.
func (g *Graph) AddNodes(nodes ...*Node) error {
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return err
		}
	}
	return nil
}

// RemoveNode removes the node and every edge touching it.
// Returns false if the node was not present.
func (g *Graph) RemoveNode(id ID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx, ok := g.index[id]
	if !ok {
		return false
	}
	s := g.slots[idx]
	for _, eid := range slices.Concat(s.in, s.out) {
		g.removeEdgeLocked(eid)
	}
	g.slots[idx] = nil
	delete(g.index, id)
	return true
}

// Node returns the node with the given ID.
func (g *Graph) Node(id ID) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.slots[idx].node, true
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id ID) bool {
	_, ok := g.Node(id)
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]*Node, 0, len(g.index))
	for _, s := range g.slots {
		if s != nil {
			nodes = append(nodes, s.node)
		}
	}
	return nodes
}

// AddEdge connects head to tail. Both must already be in the graph.
func (g *Graph) AddEdge(head, tail ID, opts ...EdgeOption) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	hi, ok := g.index[head]
	if !ok {
		return nil, fmt.Errorf("%w: edge head %s", ErrNodeNotFound, head)
	}
	ti, ok := g.index[tail]
	if !ok {
		return nil, fmt.Errorf("%w: edge tail %s", ErrNodeNotFound, tail)
	}

	e := &Edge{head: head, tail: tail, headSlot: hi, tailSlot: ti}
	for _, opt := range opts {
		opt(e)
	}
	if e.id == "" {
		e.id = newEdgeID()
	}
	if _, exists := g.edges[e.id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEdge, e.id)
	}
	g.seq++
	e.seq = g.seq

	g.edges[e.id] = e
	g.slots[hi].out = append(g.slots[hi].out, e.id)
	g.slots[ti].in = append(g.slots[ti].in, e.id)
	return e, nil
}

// RemoveEdge removes the edge. Returns false if it was not present.
func (g *Graph) RemoveEdge(id EdgeID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeEdgeLocked(id)
}

func (g *Graph) removeEdgeLocked(id EdgeID) bool {
	e, ok := g.edges[id]
	if !ok {
		return false
	}
	if s := g.slots[e.headSlot]; s != nil {
		s.out = slices.DeleteFunc(s.out, func(x EdgeID) bool { return x == id })
	}
	if s := g.slots[e.tailSlot]; s != nil {
		s.in = slices.DeleteFunc(s.in, func(x EdgeID) bool { return x == id })
	}
	delete(g.edges, id)
	return true
}

// Edge returns the edge with the given ID.
func (g *Graph) Edge(id EdgeID) (*Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	return e, ok
}

// Edges returns every edge in creation order.
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := make([]*Edge, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, e)
	}
	sortEdges(edges)
	return edges
}

// NodeEdges returns the node's edges in the given direction, in creation
// order. When labels are given, only edges carrying one of them are kept.
// Returns nil for an unknown node.
func (g *Graph) NodeEdges(id ID, dir Direction, labels ...string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	s := g.slots[idx]

	var ids []EdgeID
	switch dir {
	case Out:
		ids = s.out
	case In:
		ids = s.in
	default:
		ids = slices.Concat(s.in, s.out)
	}

	edges := make([]*Edge, 0, len(ids))
	seen := make(map[EdgeID]bool, len(ids))
	for _, eid := range ids {
		if seen[eid] {
			continue // self-loop appears in both lists
		}
		seen[eid] = true
		e := g.edges[eid]
		if len(labels) > 0 && !slices.Contains(labels, e.label) {
			continue
		}
		edges = append(edges, e)
	}
	sortEdges(edges)
	return edges
}

// Heads returns the nodes with no incoming edges, in insertion order.
func (g *Graph) Heads() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var heads []*Node
	for _, s := range g.slots {
		if s != nil && len(s.in) == 0 {
			heads = append(heads, s.node)
		}
	}
	return heads
}

// IsAcyclic reports whether the graph has no directed cycle. It runs a
// full three-color DFS over slot indices on every call.
func (g *Graph) IsAcyclic() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(g.slots))

	var visit func(i int) bool
	visit = func(i int) bool {
		switch color[i] {
		case grey:
			return false
		case black:
			return true
		}
		color[i] = grey
		for _, eid := range g.slots[i].out {
			if !visit(g.edges[eid].tailSlot) {
				return false
			}
		}
		color[i] = black
		return true
	}

	for i, s := range g.slots {
		if s == nil {
			continue
		}
		if !visit(i) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the graph has no nodes.
func (g *Graph) IsEmpty() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.index) == 0
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.index)
}

// Clear removes every node and edge.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.slots = nil
	g.index = make(map[ID]int)
	g.edges = make(map[EdgeID]*Edge)
}

func sortEdges(edges []*Edge) {
	slices.SortFunc(edges, func(a, b *Edge) int { return a.seq - b.seq })
}
