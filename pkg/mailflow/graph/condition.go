package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/mailflow/pkg/mailflow/expr"
)

// Source says who evaluates a condition.
type Source int

const (
	// SourceBranch conditions are evaluated by the branch that just
	// completed the edge's head, via a CONDITION mail round-trip.
	SourceBranch Source = iota
	// SourceStructure conditions are evaluated by the graph walker itself.
	SourceStructure
)

// String returns the source name.
func (s Source) String() string {
	if s == SourceStructure {
		return "structure"
	}
	return "branch"
}

// ParseSource parses "branch" or "structure". Empty means SourceBranch.
func ParseSource(s string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "branch", "executable":
		return SourceBranch, nil
	case "structure":
		return SourceStructure, nil
	default:
		return 0, fmt.Errorf("unknown condition source %q", s)
	}
}

// State is what a condition is evaluated against.
type State interface {
	Vars() map[string]any
}

// Vars adapts a plain map to State.
type Vars map[string]any

// Vars implements State.
func (v Vars) Vars() map[string]any { return v }

// Condition is a predicate on an edge. Implementations may keep internal
// state; it is the only mutable part of an Edge.
type Condition interface {
	Source() Source
	Check(ctx context.Context, state State) (bool, error)
}

// ExprCondition checks a compiled expr.Expression against State.Vars().
type ExprCondition struct {
	expr   *expr.Expression
	source Source
}

// NewExprCondition compiles src into a condition.
func NewExprCondition(src string, source Source) (*ExprCondition, error) {
	e, err := expr.Compile(src)
	if err != nil {
		return nil, err
	}
	return &ExprCondition{expr: e, source: source}, nil
}

// Source implements Condition.
func (c *ExprCondition) Source() Source { return c.source }

// Check implements Condition.
func (c *ExprCondition) Check(_ context.Context, state State) (bool, error) {
	var vars map[string]any
	if state != nil {
		vars = state.Vars()
	}
	return c.expr.Eval(vars), nil
}

// String returns the expression text.
func (c *ExprCondition) String() string { return c.expr.String() }

// CheckFunc is the signature wrapped by FuncCondition.
type CheckFunc func(ctx context.Context, state State) (bool, error)

type funcCondition struct {
	source Source
	fn     CheckFunc
}

// FuncCondition wraps fn as a Condition.
func FuncCondition(source Source, fn CheckFunc) Condition {
	return &funcCondition{source: source, fn: fn}
}

func (c *funcCondition) Source() Source { return c.source }

func (c *funcCondition) Check(ctx context.Context, state State) (bool, error) {
	return c.fn(ctx, state)
}
