package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is the serialized form of a graph.
type Definition struct {
	Nodes []NodeDef `yaml:"nodes" json:"nodes"`
	Edges []EdgeDef `yaml:"edges" json:"edges"`
}

// NodeDef describes one node. Kind selects which of the payload fields
// are read.
type NodeDef struct {
	ID          string            `yaml:"id" json:"id"`
	Kind        string            `yaml:"kind" json:"kind"`
	Name        string            `yaml:"name,omitempty" json:"name,omitempty"`
	Directive   string            `yaml:"directive,omitempty" json:"directive,omitempty"`
	Instruction string            `yaml:"instruction,omitempty" json:"instruction,omitempty"`
	Tool        string            `yaml:"tool,omitempty" json:"tool,omitempty"`
	Args        map[string]any    `yaml:"args,omitempty" json:"args,omitempty"`
	Agent       string            `yaml:"agent,omitempty" json:"agent,omitempty"`
	Rule        string            `yaml:"rule,omitempty" json:"rule,omitempty"`
	Critical    bool              `yaml:"critical,omitempty" json:"critical,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// EdgeDef describes one edge. Condition is an expr expression; Source is
// "branch" (default) or "structure".
type EdgeDef struct {
	ID        string `yaml:"id,omitempty" json:"id,omitempty"`
	From      string `yaml:"from" json:"from"`
	To        string `yaml:"to" json:"to"`
	Label     string `yaml:"label,omitempty" json:"label,omitempty"`
	Bundle    bool   `yaml:"bundle,omitempty" json:"bundle,omitempty"`
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
	Source    string `yaml:"source,omitempty" json:"source,omitempty"`
}

// FromFile loads a graph definition, choosing the format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return nil, fmt.Errorf("unsupported graph file extension: %s", ext)
	}
}

// FromYAML parses and builds a YAML graph definition.
func FromYAML(data []byte) (*Graph, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return def.Build()
}

// FromJSON parses and builds a JSON graph definition.
func FromJSON(data []byte) (*Graph, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return def.Build()
}

// Build creates a Graph from d. Nodes are added before edges, so edges may
// reference nodes declared anywhere in the definition.
func (d Definition) Build() (*Graph, error) {
	g := New()
	for i, nd := range d.Nodes {
		n, err := nd.node()
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		if err := g.AddNode(n); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
	}
	for i, ed := range d.Edges {
		opts, err := ed.options()
		if err != nil {
			return nil, fmt.Errorf("edge %d (%s -> %s): %w", i, ed.From, ed.To, err)
		}
		if _, err := g.AddEdge(ID(ed.From), ID(ed.To), opts...); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
	}
	return g, nil
}

func (nd NodeDef) node() (*Node, error) {
	if nd.ID == "" {
		return nil, errors.New("missing id")
	}
	kind, err := ParseKind(nd.Kind)
	if err != nil {
		return nil, err
	}
	n := newNode(kind, ID(nd.ID))
	n.Name = nd.Name
	n.Directive = nd.Directive
	n.Instruction = nd.Instruction
	n.Tool = nd.Tool
	n.Args = nd.Args
	n.Agent = nd.Agent
	n.Rule = nd.Rule
	n.Critical = nd.Critical
	n.Metadata = nd.Metadata

	switch {
	case kind == KindAction && n.Tool == "":
		return nil, fmt.Errorf("action node %s: missing tool", nd.ID)
	case kind == KindAgent && n.Agent == "":
		return nil, fmt.Errorf("agent node %s: missing agent", nd.ID)
	}
	return n, nil
}

func (ed EdgeDef) options() ([]EdgeOption, error) {
	var opts []EdgeOption
	if ed.ID != "" {
		opts = append(opts, WithEdgeID(EdgeID(ed.ID)))
	}
	if ed.Label != "" {
		opts = append(opts, WithLabel(ed.Label))
	}
	if ed.Bundle {
		opts = append(opts, WithBundle())
	}
	if ed.Condition != "" {
		src, err := ParseSource(ed.Source)
		if err != nil {
			return nil, err
		}
		cond, err := NewExprCondition(ed.Condition, src)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCondition(cond))
	}
	return opts, nil
}
