package branch

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"runtime/debug"
	"strings"
	"time"

	mferrors "github.com/randalmurphal/mailflow/pkg/mailflow/errors"
	"github.com/randalmurphal/mailflow/pkg/mailflow/graph"
	"github.com/randalmurphal/mailflow/pkg/mailflow/llm"
	"github.com/randalmurphal/mailflow/pkg/mailflow/observability"
)

// runNode runs one node's handler. Failures, panics included, come back
// as *HandlerError and are already recorded.
func (e *Executor) runNode(ctx context.Context, n *graph.Node) (err error) {
	kind := n.Kind.String()
	ctx, span := e.cfg.Spans.StartNodeSpan(ctx, kind, string(n.ID), e.id)
	start := time.Now()
	observability.LogNodeStart(e.log, string(n.ID), kind)

	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{NodeID: n.ID, Kind: n.Kind, Err: fmt.Errorf("%v", r), Stack: debug.Stack()}
		}
		if err != nil {
			e.record(Response{NodeID: n.ID, Kind: n.Kind, Err: err})
			observability.LogNodeError(e.log, string(n.ID), err, e.cfg.policy(n) == PolicyRecover)
		} else {
			observability.LogNodeComplete(e.log, string(n.ID), float64(time.Since(start).Microseconds())/1000)
		}
		e.cfg.Metrics.RecordNodeExecution(ctx, kind, time.Since(start), err)
		e.cfg.Spans.EndSpanWithError(span, err)
	}()

	var herr error
	switch n.Kind {
	case graph.KindSystem:
		herr = e.runSystem(n)
	case graph.KindInstruction:
		herr = e.runInstruction(ctx, n)
	case graph.KindAction:
		herr = e.runAction(ctx, n)
	case graph.KindAgent:
		herr = e.runAgent(ctx, n)
	default:
		herr = ErrUnknownKind
	}
	if herr != nil {
		return &HandlerError{NodeID: n.ID, Kind: n.Kind, Err: herr}
	}
	return nil
}

func (e *Executor) runSystem(n *graph.Node) error {
	directive, err := e.cfg.Templates.Expand(n.Directive, e.Vars())
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, llm.Message{Role: llm.RoleSystem, Content: directive, Name: n.Name})
	return nil
}

// runInstruction hands a non-empty context to the chat call. The context
// is logged and cleared only once the call succeeds.
func (e *Executor) runInstruction(ctx context.Context, n *graph.Node) error {
	if e.cfg.Chat == nil {
		return ErrNoChatter
	}
	instruction, err := e.cfg.Templates.Expand(n.Instruction, e.Vars())
	if err != nil {
		return err
	}

	e.mu.Lock()
	branchCtx := e.peekContextLocked()
	req := buildRequest(e.history, instruction)
	e.mu.Unlock()

	req.Context = branchCtx
	req.Model = e.cfg.Model
	req.MaxTokens = e.cfg.MaxTokens

	res := mferrors.WithRetryContext(ctx, e.cfg.Retry, "chat "+n.Label(), func(ctx context.Context) (*llm.CompletionResponse, error) {
		return e.cfg.Chat.Complete(ctx, req)
	})
	if res.Err != nil {
		return res.Err
	}

	out, err := e.check(n, parseResponse(res.Value.Content))
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.consumeContextLocked(n.ID, branchCtx)
	e.history = append(e.history,
		llm.Message{Role: llm.RoleUser, Content: instruction},
		llm.Message{Role: llm.RoleAssistant, Content: res.Value.Content},
	)
	e.responses = append(e.responses, Response{NodeID: n.ID, Kind: n.Kind, Output: out})
	e.mu.Unlock()
	return nil
}

// runAction passes a non-empty context to the tool under "context" and
// replaces the context with the tool's output. A failed call leaves the
// context in place.
func (e *Executor) runAction(ctx context.Context, n *graph.Node) error {
	if e.cfg.Tools == nil {
		return ErrNoTools
	}

	expanded, err := e.cfg.Templates.ExpandArgs(n.Args, e.Vars())
	if err != nil {
		return err
	}
	args := make(map[string]any, len(expanded)+1)
	maps.Copy(args, expanded)
	e.mu.Lock()
	branchCtx := e.peekContextLocked()
	e.mu.Unlock()
	if branchCtx != nil {
		args["context"] = branchCtx
	}

	res := mferrors.WithRetryContext(ctx, e.cfg.Retry, "tool "+n.Tool, func(ctx context.Context) (any, error) {
		return e.cfg.Tools.Invoke(ctx, n.Tool, args)
	})
	if res.Err != nil {
		return res.Err
	}
	return e.fold(n, res.Value, branchCtx)
}

// runAgent hands the message history to the agent and replaces the
// context with its result.
func (e *Executor) runAgent(ctx context.Context, n *graph.Node) error {
	if e.cfg.Agents == nil {
		return ErrNoAgents
	}

	e.mu.Lock()
	hist := CloneHistory(e.history)
	e.mu.Unlock()

	res := mferrors.WithRetryContext(ctx, e.cfg.Retry, "agent "+n.Agent, func(ctx context.Context) (any, error) {
		return e.cfg.Agents.Run(ctx, n.Agent, hist)
	})
	if res.Err != nil {
		return res.Err
	}
	return e.fold(n, res.Value, nil)
}

// fold validates out and makes it the new context, logging used as the
// context it replaces. Map outputs become the context directly; anything
// else is stored under "result".
func (e *Executor) fold(n *graph.Node, out any, used map[string]any) error {
	out, err := e.check(n, out)
	if err != nil {
		return err
	}
	next, ok := out.(map[string]any)
	if !ok {
		next = map[string]any{"result": out}
	}

	e.mu.Lock()
	e.consumeContextLocked(n.ID, used)
	e.context = next
	e.responses = append(e.responses, Response{NodeID: n.ID, Kind: n.Kind, Output: out})
	e.mu.Unlock()
	return nil
}

func (e *Executor) check(n *graph.Node, out any) (any, error) {
	if n.Rule == "" || e.cfg.Validator == nil {
		return out, nil
	}
	return e.cfg.Validator.Validate(out, n.Rule)
}

// peekContextLocked returns the context when it is non-empty.
func (e *Executor) peekContextLocked() map[string]any {
	if len(e.context) == 0 {
		return nil
	}
	return e.context
}

// consumeContextLocked logs a context a handler used and clears it.
func (e *Executor) consumeContextLocked(node graph.ID, used map[string]any) {
	if used == nil {
		return
	}
	e.contextLog = append(e.contextLog, LogEntry{Kind: LogContext, NodeID: node, Context: used, At: time.Now()})
	e.context = nil
}

// buildRequest folds system messages into the system prompt and appends
// the instruction as the final user turn.
func buildRequest(history []llm.Message, instruction string) llm.CompletionRequest {
	var system []string
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		msgs = append(msgs, m)
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: instruction})
	return llm.CompletionRequest{
		SystemPrompt: strings.Join(system, "\n\n"),
		Messages:     msgs,
	}
}

// parseResponse decodes a JSON object reply. An object with a "response"
// key yields that value. Anything else is the raw text.
func parseResponse(content string) any {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return content
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return content
	}
	if r, ok := obj["response"]; ok {
		return r
	}
	return obj
}
