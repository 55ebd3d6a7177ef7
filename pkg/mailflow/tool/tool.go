// Package tool is the registry action nodes invoke tools through. Tools
// are plain Go functions or tools served by an MCP server.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	mferrors "github.com/randalmurphal/mailflow/pkg/mailflow/errors"
)

// ErrNotFound indicates no tool is registered under the requested name.
var ErrNotFound = errors.New("tool not found")

// Tool is a named callable.
type Tool interface {
	Name() string
	Call(ctx context.Context, args map[string]any) (any, error)
}

type funcTool struct {
	name string
	fn   func(ctx context.Context, args map[string]any) (any, error)
}

// Func wraps fn as a Tool.
func Func(name string, fn func(ctx context.Context, args map[string]any) (any, error)) Tool {
	return &funcTool{name: name, fn: fn}
}

func (t *funcTool) Name() string { return t.name }

func (t *funcTool) Call(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}

// Registry is a thread-safe set of tools indexed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Delete removes a tool.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke calls the named tool. An unknown name is a permanent
// *errors.ToolError wrapping ErrNotFound.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, &notFoundError{ToolError: mferrors.ToolError{Tool: name, Message: "not registered"}}
	}
	out, err := t.Call(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return out, nil
}

type notFoundError struct {
	mferrors.ToolError
}

func (e *notFoundError) Unwrap() error { return ErrNotFound }
