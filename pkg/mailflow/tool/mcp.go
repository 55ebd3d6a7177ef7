package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	mferrors "github.com/randalmurphal/mailflow/pkg/mailflow/errors"
)

// Session is the part of an MCP client the registry needs.
// *client.Client from mcp-go satisfies it.
type Session interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Caller executes an MCP tool by name.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// SessionCaller adapts a Session to Caller.
type SessionCaller struct {
	Session Session
}

// CallTool implements Caller.
func (c SessionCaller) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return c.Session.CallTool(ctx, req)
}

// MCPTool is a Tool served by an MCP server.
type MCPTool struct {
	def    mcp.Tool
	caller Caller
}

// NewMCPTool wraps an MCP tool definition.
func NewMCPTool(def mcp.Tool, caller Caller) (*MCPTool, error) {
	if def.Name == "" {
		return nil, errors.New("mcp tool name is required")
	}
	if caller == nil {
		return nil, errors.New("mcp tool caller is required")
	}
	return &MCPTool{def: def, caller: caller}, nil
}

// Name implements Tool.
func (t *MCPTool) Name() string { return t.def.Name }

// Definition returns the MCP tool definition.
func (t *MCPTool) Definition() mcp.Tool { return t.def }

// Call checks required arguments, calls the server, and converts the
// result: structured content if present, else the joined text content.
// A result flagged IsError becomes a permanent *errors.ToolError.
func (t *MCPTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if err := checkRequired(t.def, args); err != nil {
		return nil, err
	}

	result, err := t.caller.CallTool(ctx, t.def.Name, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, &mferrors.ToolError{Tool: t.def.Name, Message: "nil result"}
	}
	if result.IsError {
		return nil, &mferrors.ToolError{Tool: t.def.Name, Message: textContent(result.Content)}
	}
	if result.StructuredContent != nil {
		return normalize(result.StructuredContent), nil
	}
	return textContent(result.Content), nil
}

// RegisterMCP lists the tools a session offers and registers each one.
// Returns the registered names.
func RegisterMCP(ctx context.Context, r *Registry, s Session) ([]string, error) {
	res, err := s.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list mcp tools: %w", err)
	}
	caller := SessionCaller{Session: s}
	names := make([]string, 0, len(res.Tools))
	for _, def := range res.Tools {
		t, err := NewMCPTool(def, caller)
		if err != nil {
			return names, err
		}
		r.Register(t)
		names = append(names, def.Name)
	}
	return names, nil
}

func checkRequired(def mcp.Tool, args map[string]any) error {
	if def.InputSchema.Type != "" && def.InputSchema.Type != "object" {
		return nil
	}
	for _, key := range def.InputSchema.Required {
		if _, ok := args[key]; !ok {
			return &mferrors.ToolError{Tool: def.Name, Message: fmt.Sprintf("missing required argument %q", key)}
		}
	}
	return nil
}

func textContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch c := item.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// normalize round-trips structured content through JSON so branch
// contexts only hold plain maps, slices, and scalars.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
