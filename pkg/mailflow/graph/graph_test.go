package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(nodes []*Node) []ID {
	out := make([]ID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func edgeTails(edges []*Edge) []ID {
	out := make([]ID, len(edges))
	for i, e := range edges {
		out[i] = e.Tail()
	}
	return out
}

func diamond(t *testing.T) *Graph {
	t.Helper()
	g := New()
	require.NoError(t, g.AddNodes(System("a", ""), System("b", ""), System("c", ""), System("d", "")))
	for _, pair := range [][2]ID{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}} {
		_, err := g.AddEdge(pair[0], pair[1])
		require.NoError(t, err)
	}
	return g
}

// TestGraph_AddNode_Duplicate verifies node IDs are unique.
func TestGraph_AddNode_Duplicate(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(System("a", "")))

	err := g.AddNode(Instruction("a", "again"))
	assert.ErrorIs(t, err, ErrDuplicateNode)
	assert.Equal(t, 1, g.Len())
	assert.Error(t, g.AddNode(nil))
}

// TestGraph_NodeConstructors verifies generated IDs and kind fields.
func TestGraph_NodeConstructors(t *testing.T) {
	a := Action("", "search", map[string]any{"q": "go"})
	b := Action("", "search", nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, KindAction, a.Kind)
	assert.Equal(t, string(a.ID), a.Label())

	a.Name = "searcher"
	assert.Equal(t, "searcher", a.Label())
}

// TestGraph_AddEdge_DanglingRejected verifies edges need both endpoints.
func TestGraph_AddEdge_DanglingRejected(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(System("a", "")))

	testCases := []struct {
		name       string
		head, tail ID
	}{
		{"missing tail", "a", "ghost"},
		{"missing head", "ghost", "a"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.AddEdge(tc.head, tc.tail)
			assert.ErrorIs(t, err, ErrNodeNotFound)
			assert.Empty(t, g.Edges())
		})
	}
}

// TestGraph_AddEdge_DuplicateID verifies explicit edge IDs are unique.
func TestGraph_AddEdge_DuplicateID(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNodes(System("a", ""), System("b", "")))

	_, err := g.AddEdge("a", "b", WithEdgeID("e1"))
	require.NoError(t, err)
	_, err = g.AddEdge("b", "a", WithEdgeID("e1"))
	assert.ErrorIs(t, err, ErrDuplicateEdge)
}

// TestGraph_RemoveNode_RemovesIncidentEdges verifies no edge outlives
// either endpoint.
func TestGraph_RemoveNode_RemovesIncidentEdges(t *testing.T) {
	g := diamond(t)

	assert.True(t, g.RemoveNode("b"))
	assert.False(t, g.RemoveNode("b"))
	assert.False(t, g.HasNode("b"))

	for _, e := range g.Edges() {
		assert.True(t, g.HasNode(e.Head()), "dangling head on %s", e.ID())
		assert.True(t, g.HasNode(e.Tail()), "dangling tail on %s", e.ID())
	}
	assert.Len(t, g.Edges(), 2)
	assert.Equal(t, []ID{"c"}, edgeTails(g.NodeEdges("a", Out)))
	assert.Len(t, g.NodeEdges("d", In), 1)
	assert.Equal(t, []ID{"a", "c", "d"}, ids(g.Nodes()))
}

// TestGraph_RemoveEdge verifies both endpoint slots are updated.
func TestGraph_RemoveEdge(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNodes(System("a", ""), System("b", "")))
	e, err := g.AddEdge("a", "b")
	require.NoError(t, err)

	assert.True(t, g.RemoveEdge(e.ID()))
	assert.False(t, g.RemoveEdge(e.ID()))
	_, ok := g.Edge(e.ID())
	assert.False(t, ok)
	assert.Empty(t, g.NodeEdges("a", Out))
	assert.Empty(t, g.NodeEdges("b", In))
	assert.Equal(t, []ID{"a", "b"}, ids(g.Heads()))
}

// TestGraph_Heads verifies heads are the nodes without predecessors.
func TestGraph_Heads(t *testing.T) {
	g := diamond(t)
	require.NoError(t, g.AddNode(System("lonely", "")))

	assert.Equal(t, []ID{"a", "lonely"}, ids(g.Heads()))
}

// TestGraph_NodeEdges verifies direction, label filtering, and ordering.
func TestGraph_NodeEdges(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNodes(System("a", ""), System("b", ""), System("c", ""), System("d", "")))
	_, err := g.AddEdge("a", "c", WithLabel("slow"))
	require.NoError(t, err)
	_, err = g.AddEdge("a", "b", WithLabel("fast"))
	require.NoError(t, err)
	_, err = g.AddEdge("d", "a")
	require.NoError(t, err)

	assert.Equal(t, []ID{"c", "b"}, edgeTails(g.NodeEdges("a", Out)), "creation order")
	assert.Equal(t, []ID{"b"}, edgeTails(g.NodeEdges("a", Out, "fast")))
	assert.Len(t, g.NodeEdges("a", In), 1)
	assert.Len(t, g.NodeEdges("a", Both), 3)
	assert.Nil(t, g.NodeEdges("ghost", Both))
}

// TestGraph_SelfLoop verifies a self-loop is listed once and is a cycle.
func TestGraph_SelfLoop(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode(System("a", "")))
	_, err := g.AddEdge("a", "a")
	require.NoError(t, err)

	assert.Len(t, g.NodeEdges("a", Both), 1)
	assert.False(t, g.IsAcyclic())
	assert.Empty(t, g.Heads())
}

// TestGraph_IsAcyclic covers shapes with and without cycles.
func TestGraph_IsAcyclic(t *testing.T) {
	testCases := []struct {
		name  string
		edges [][2]ID
		want  bool
	}{
		{"empty", nil, true},
		{"chain", [][2]ID{{"a", "b"}, {"b", "c"}}, true},
		{"diamond", [][2]ID{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}}, true},
		{"back edge", [][2]ID{{"a", "b"}, {"b", "c"}, {"c", "a"}}, false},
		{"cycle off a head", [][2]ID{{"a", "b"}, {"b", "c"}, {"c", "b"}}, false},
		{"parallel edges", [][2]ID{{"a", "b"}, {"a", "b"}}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := New()
			require.NoError(t, g.AddNodes(System("a", ""), System("b", ""), System("c", ""), System("d", "")))
			for _, e := range tc.edges {
				_, err := g.AddEdge(e[0], e[1])
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, g.IsAcyclic())
		})
	}
}

// TestGraph_IsAcyclic_AfterRemoval verifies removed slots are skipped.
func TestGraph_IsAcyclic_AfterRemoval(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNodes(System("a", ""), System("b", "")))
	_, err := g.AddEdge("a", "b")
	require.NoError(t, err)
	_, err = g.AddEdge("b", "a")
	require.NoError(t, err)
	require.False(t, g.IsAcyclic())

	g.RemoveNode("b")
	assert.True(t, g.IsAcyclic())
}

// TestGraph_Bundle verifies bundle and condition options are kept on the edge.
func TestGraph_Bundle(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNodes(System("a", ""), System("b", "")))
	cond, err := NewExprCondition("ready", SourceStructure)
	require.NoError(t, err)

	e, err := g.AddEdge("a", "b", WithBundle(), WithCondition(cond))
	require.NoError(t, err)
	assert.True(t, e.Bundle())
	assert.True(t, e.HasCondition())
	assert.Equal(t, SourceStructure, e.Condition().Source())

	ok, err := e.Condition().Check(context.Background(), Vars{"ready": true})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.Condition().Check(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestGraph_Clear verifies Clear empties the graph.
func TestGraph_Clear(t *testing.T) {
	g := diamond(t)
	require.False(t, g.IsEmpty())

	g.Clear()
	assert.True(t, g.IsEmpty())
	assert.Empty(t, g.Edges())
	assert.NoError(t, g.AddNode(System("a", "")))
}

// TestParseKindAndSource verifies the string forms round trip.
func TestParseKindAndSource(t *testing.T) {
	for _, k := range []Kind{KindSystem, KindInstruction, KindAction, KindAgent} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("robot")
	assert.Error(t, err)

	src, err := ParseSource("")
	require.NoError(t, err)
	assert.Equal(t, SourceBranch, src)
	src, err = ParseSource("Structure")
	require.NoError(t, err)
	assert.Equal(t, SourceStructure, src)
	_, err = ParseSource("elsewhere")
	assert.Error(t, err)
}
