package expr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyExpression is returned when compiling a blank expression.
var ErrEmptyExpression = errors.New("empty expression")

// ErrMalformed is returned when an operator is missing an operand.
var ErrMalformed = errors.New("malformed expression")

// BinaryOp compares two resolved operands.
type BinaryOp func(left, right any) bool

// Option configures compilation.
type Option func(*compiler)

// WithOperator registers a custom word operator such as "matches".
// It is matched with surrounding spaces, after the built-in operators.
func WithOperator(name string, fn BinaryOp) Option {
	return func(c *compiler) {
		c.custom = append(c.custom, operator{token: " " + name + " ", fn: fn})
	}
}

type operator struct {
	token string
	fn    BinaryOp
}

// Ordered so that two-character operators win over their prefixes.
var builtinOps = []operator{
	{"==", func(l, r any) bool { return fmt.Sprint(l) == fmt.Sprint(r) }},
	{"!=", func(l, r any) bool { return fmt.Sprint(l) != fmt.Sprint(r) }},
	{">=", func(l, r any) bool { return ToFloat64(l) >= ToFloat64(r) }},
	{"<=", func(l, r any) bool { return ToFloat64(l) <= ToFloat64(r) }},
	{">", func(l, r any) bool { return ToFloat64(l) > ToFloat64(r) }},
	{"<", func(l, r any) bool { return ToFloat64(l) < ToFloat64(r) }},
	{" contains ", func(l, r any) bool { return strings.Contains(fmt.Sprint(l), fmt.Sprint(r)) }},
}

type compiler struct {
	custom []operator
}

// Expression is a compiled condition. It is immutable and safe for
// concurrent use.
type Expression struct {
	src  string
	root evaluator
}

type evaluator interface {
	eval(vars map[string]any) bool
}

type notExpr struct{ inner evaluator }

func (n notExpr) eval(vars map[string]any) bool { return !n.inner.eval(vars) }

type andExpr struct{ left, right evaluator }

func (a andExpr) eval(vars map[string]any) bool { return a.left.eval(vars) && a.right.eval(vars) }

type orExpr struct{ left, right evaluator }

func (o orExpr) eval(vars map[string]any) bool { return o.left.eval(vars) || o.right.eval(vars) }

type compareExpr struct {
	left, right string
	op          BinaryOp
}

func (c compareExpr) eval(vars map[string]any) bool {
	return c.op(Resolve(c.left, vars), resolveWord(c.right, vars))
}

type truthyExpr struct{ operand string }

func (t truthyExpr) eval(vars map[string]any) bool { return IsTruthy(Resolve(t.operand, vars)) }

// Compile parses src into an Expression.
func Compile(src string, opts ...Option) (*Expression, error) {
	c := &compiler{}
	for _, opt := range opts {
		opt(c)
	}
	root, err := c.parse(src)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return &Expression{src: strings.TrimSpace(src), root: root}, nil
}

// MustCompile is Compile that panics on error. Meant for package-level
// conditions and tests.
func MustCompile(src string, opts ...Option) *Expression {
	e, err := Compile(src, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// Eval evaluates the expression against vars.
func (e *Expression) Eval(vars map[string]any) bool {
	return e.root.eval(vars)
}

// String returns the source text.
func (e *Expression) String() string {
	return e.src
}

// Eval compiles and evaluates src in one step.
func Eval(src string, vars map[string]any) (bool, error) {
	e, err := Compile(src)
	if err != nil {
		return false, err
	}
	return e.Eval(vars), nil
}

func (c *compiler) parse(s string) (evaluator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyExpression
	}

	if l, r, ok := splitOutsideQuotes(s, " or "); ok {
		return c.binary(l, r, func(a, b evaluator) evaluator { return orExpr{a, b} })
	}
	if l, r, ok := splitOutsideQuotes(s, " and "); ok {
		return c.binary(l, r, func(a, b evaluator) evaluator { return andExpr{a, b} })
	}

	if rest, ok := strings.CutPrefix(s, "not "); ok {
		inner, err := c.parse(rest)
		if err != nil {
			return nil, err
		}
		return notExpr{inner}, nil
	}
	if rest, ok := strings.CutPrefix(s, "!"); ok && !strings.HasPrefix(rest, "=") {
		inner, err := c.parse(rest)
		if err != nil {
			return nil, err
		}
		return notExpr{inner}, nil
	}

	ops := append(append([]operator{}, builtinOps...), c.custom...)
	for _, op := range ops {
		l, r, ok := splitOutsideQuotes(s, op.token)
		if !ok {
			continue
		}
		l, r = strings.TrimSpace(l), strings.TrimSpace(r)
		if l == "" || r == "" {
			return nil, fmt.Errorf("%w: operator %q needs two operands", ErrMalformed, strings.TrimSpace(op.token))
		}
		return compareExpr{left: l, right: r, op: op.fn}, nil
	}

	return truthyExpr{operand: s}, nil
}

func (c *compiler) binary(l, r string, join func(a, b evaluator) evaluator) (evaluator, error) {
	left, err := c.parse(l)
	if err != nil {
		return nil, err
	}
	right, err := c.parse(r)
	if err != nil {
		return nil, err
	}
	return join(left, right), nil
}

// splitOutsideQuotes splits s around the first occurrence of sep that is
// not inside a quoted string.
func splitOutsideQuotes(s, sep string) (string, string, bool) {
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case strings.HasPrefix(s[i:], sep):
			return s[:i], s[i+len(sep):], true
		}
	}
	return "", "", false
}
