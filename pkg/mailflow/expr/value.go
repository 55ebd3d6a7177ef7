package expr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Resolve turns a raw operand into a value: a quoted string, a boolean,
// null, a number, or a variable looked up (possibly by dotted path) in vars.
// An identifier missing from vars resolves to nil.
func Resolve(s string, vars map[string]any) any {
	v, _ := resolve(s, vars)
	return v
}

// resolveWord is Resolve for the right-hand side of a comparison, where an
// unknown bare word such as prod in "env == prod" stands for itself.
func resolveWord(s string, vars map[string]any) any {
	v, ok := resolve(s, vars)
	if !ok {
		return strings.TrimSpace(s)
	}
	return v
}

// resolve reports false only for an identifier not found in vars.
func resolve(s string, vars map[string]any) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true
	}

	if len(s) >= 2 && (s[0] == '\'' && s[len(s)-1] == '\'' || s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1], true
	}

	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	case "null", "nil":
		return nil, true
	}

	var num json.Number
	if err := json.Unmarshal([]byte(s), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i, true
		}
		if f, err := num.Float64(); err == nil {
			return f, true
		}
	}

	return Lookup(vars, s)
}

// Lookup finds a value by exact key first, then by dotted path through
// nested map[string]any values.
func Lookup(vars map[string]any, path string) (any, bool) {
	if vars == nil {
		return nil, false
	}
	if v, ok := vars[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}

	var cur any = vars
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// IsTruthy reports whether a value counts as true: nil, false, "", and
// numeric zero are false; everything else is true.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case int32:
		return val != 0
	case float64:
		return val != 0
	case float32:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// ToFloat64 converts a value for numeric comparison. Non-numeric values
// become 0.
func ToFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case json.Number:
		f, _ := val.Float64()
		return f
	case string:
		var f float64
		_, _ = fmt.Sscanf(val, "%f", &f)
		return f
	default:
		return 0
	}
}
