package branch

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/randalmurphal/mailflow/pkg/mailflow/llm"
)

// Cloner lets a context value control how it is copied into a sibling
// branch.
type Cloner interface {
	Clone() any
}

// ErrNotCloneable is returned for context values that cannot be deep
// copied, such as channels and functions.
var ErrNotCloneable = errors.New("value cannot be cloned")

// CloneContext deep-copies a branch context. Every value keeps its type:
// Cloner values clone themselves, and slices, maps, arrays, structs, and
// pointers are copied recursively.
func CloneContext(ctx map[string]any) (map[string]any, error) {
	if ctx == nil {
		return nil, nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		c, err := cloneValue(v)
		if err != nil {
			return nil, fmt.Errorf("clone context key %q: %w", k, err)
		}
		out[k] = c
	}
	return out, nil
}

// CloneHistory copies a message history. Messages hold only strings, so a
// slice copy is deep.
func CloneHistory(h []llm.Message) []llm.Message {
	if h == nil {
		return nil
	}
	out := make([]llm.Message, len(h))
	copy(out, h)
	return out
}

func cloneValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return t, nil
	case Cloner:
		return t.Clone(), nil
	case map[string]any:
		return CloneContext(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			c, err := cloneValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}

	c := &copier{seen: make(map[uintptr]reflect.Value)}
	out, err := c.copy(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// copier deep-copies arbitrary values while keeping their types. seen maps
// source pointers to their copies so shared and cyclic pointers survive.
type copier struct {
	seen map[uintptr]reflect.Value
}

func (c *copier) copy(v reflect.Value) (reflect.Value, error) {
	if v.Kind() != reflect.Interface && v.CanInterface() {
		if cl, ok := v.Interface().(Cloner); ok && !(v.Kind() == reflect.Pointer && v.IsNil()) {
			cv := reflect.ValueOf(cl.Clone())
			if cv.IsValid() && cv.Type().AssignableTo(v.Type()) {
				return cv, nil
			}
		}
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return v, nil

	case reflect.Pointer:
		if v.IsNil() {
			return v, nil
		}
		if p, ok := c.seen[v.Pointer()]; ok {
			return p, nil
		}
		p := reflect.New(v.Type().Elem())
		c.seen[v.Pointer()] = p
		elem, err := c.copy(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p.Elem().Set(elem)
		return p, nil

	case reflect.Interface:
		if v.IsNil() {
			return v, nil
		}
		elem, err := c.copy(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(elem)
		return out, nil

	case reflect.Slice:
		if v.IsNil() {
			return v, nil
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			e, err := c.copy(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(e)
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := range v.Len() {
			e, err := c.copy(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(e)
		}
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return v, nil
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			e, err := c.copy(iter.Value())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(iter.Key(), e)
		}
		return out, nil

	case reflect.Struct:
		// Unexported fields are copied shallowly with the struct value.
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := range v.NumField() {
			f := out.Field(i)
			if !f.CanSet() {
				continue
			}
			e, err := c.copy(v.Field(i))
			if err != nil {
				return reflect.Value{}, fmt.Errorf("field %s: %w", v.Type().Field(i).Name, err)
			}
			f.Set(e)
		}
		return out, nil

	default:
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrNotCloneable, v.Type())
	}
}
