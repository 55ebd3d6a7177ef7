// Package template expands ${name} placeholders in node text and tool
// arguments. Names may be dotted to reach into nested maps, as in
// ${context.title}.
//
//	exp := template.New()
//	s, _ := exp.Expand("Review ${title} (${files} files)", vars)
//
// By default an unknown name is left in place. An Expander built with
// Strict reports it as an *UndefinedError instead.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\}`)

// UndefinedError lists placeholders with no value.
type UndefinedError struct {
	Names []string
}

func (e *UndefinedError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

// Option configures an Expander.
type Option func(*Expander)

// Strict makes unknown names an error.
func Strict() Option {
	return func(e *Expander) { e.strict = true }
}

// Expander is immutable and safe for concurrent use.
type Expander struct {
	strict bool
}

// New creates an Expander.
func New(opts ...Option) *Expander {
	e := &Expander{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces every placeholder in s with its value from vars.
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var missing []string
	out := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := Lookup(vars, name); ok {
			return fmt.Sprint(v)
		}
		missing = append(missing, name)
		return match
	})
	if e.strict && len(missing) > 0 {
		return out, &UndefinedError{Names: missing}
	}
	return out, nil
}

// ExpandArgs returns a copy of args with every string expanded, walking
// nested maps and slices. Other values are shared, not copied.
func (e *Expander) ExpandArgs(args map[string]any, vars map[string]any) (map[string]any, error) {
	if args == nil {
		return nil, nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		x, err := e.expandValue(v, vars)
		if err != nil {
			return nil, fmt.Errorf("arg %s: %w", k, err)
		}
		out[k] = x
	}
	return out, nil
}

func (e *Expander) expandValue(v any, vars map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return e.Expand(val, vars)
	case map[string]any:
		return e.ExpandArgs(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			x, err := e.expandValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	default:
		return v, nil
	}
}

// Lookup resolves a dotted path through nested map[string]any values.
func Lookup(vars map[string]any, path string) (any, bool) {
	var cur any = vars
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
