package graph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewYAML = `
nodes:
  - id: intro
    kind: system
    directive: You review documents.
  - id: draft
    kind: instruction
    instruction: Draft a review.
    rule: required
  - id: score
    kind: action
    tool: scorer
    args:
      scale: 10
  - id: cite
    kind: action
    tool: citations
  - id: expert
    kind: agent
    agent: reviewer
    critical: true
edges:
  - from: intro
    to: draft
  - id: to-score
    from: draft
    to: score
    label: check
  - from: score
    to: cite
    bundle: true
  - from: score
    to: expert
    condition: score > 7
    source: structure
`

// TestFromYAML verifies a full definition builds the expected graph.
func TestFromYAML(t *testing.T) {
	g, err := FromYAML([]byte(reviewYAML))
	require.NoError(t, err)

	assert.Equal(t, 5, g.Len())
	assert.Equal(t, []ID{"intro"}, ids(g.Heads()))

	draft, ok := g.Node("draft")
	require.True(t, ok)
	assert.Equal(t, KindInstruction, draft.Kind)
	assert.Equal(t, "required", draft.Rule)

	score, _ := g.Node("score")
	assert.Equal(t, map[string]any{"scale": 10}, score.Args)

	expert, _ := g.Node("expert")
	assert.True(t, expert.Critical)

	e, ok := g.Edge("to-score")
	require.True(t, ok)
	assert.Equal(t, "check", e.Label())

	out := g.NodeEdges("score", Out)
	require.Len(t, out, 2)
	assert.True(t, out[0].Bundle())
	assert.False(t, out[0].HasCondition())
	require.True(t, out[1].HasCondition())
	assert.Equal(t, SourceStructure, out[1].Condition().Source())
	assert.True(t, g.IsAcyclic())
}

// TestFromYAML_Errors verifies malformed definitions are rejected.
func TestFromYAML_Errors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		msg  string
	}{
		{"bad yaml", "nodes: [", "parse yaml"},
		{"unknown kind", "nodes:\n  - id: a\n    kind: robot\n", "unknown node kind"},
		{"missing id", "nodes:\n  - kind: system\n", "missing id"},
		{"action without tool", "nodes:\n  - id: a\n    kind: action\n", "missing tool"},
		{"agent without agent", "nodes:\n  - id: a\n    kind: agent\n", "missing agent"},
		{"duplicate node", "nodes:\n  - id: a\n    kind: system\n  - id: a\n    kind: system\n", "duplicate node"},
		{"dangling edge", "nodes:\n  - id: a\n    kind: system\nedges:\n  - from: a\n    to: b\n", "node not found"},
		{"bad condition", "nodes:\n  - id: a\n    kind: system\n  - id: b\n    kind: system\nedges:\n  - from: a\n    to: b\n    condition: '> 3'\n", "operator"},
		{"bad source", "nodes:\n  - id: a\n    kind: system\n  - id: b\n    kind: system\nedges:\n  - from: a\n    to: b\n    condition: ok\n    source: moon\n", "condition source"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

// TestFromFile verifies format detection by extension.
func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "graph.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(reviewYAML), 0o600))
	g, err := FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 5, g.Len())

	jsonPath := filepath.Join(dir, "graph.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"nodes": [{"id": "a", "kind": "system"}, {"id": "b", "kind": "instruction", "instruction": "go"}],
		"edges": [{"from": "a", "to": "b"}]
	}`), 0o600))
	g, err = FromFile(jsonPath)
	require.NoError(t, err)
	assert.Len(t, g.Edges(), 1)

	_, err = FromFile(filepath.Join(dir, "graph.toml"))
	assert.Error(t, err)

	txt := filepath.Join(dir, "graph.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o600))
	_, err = FromFile(txt)
	assert.ErrorContains(t, err, "unsupported graph file extension")
}
