// Package branch implements the branch executor: one sequential execution
// context that drains its mailbox, runs the nodes it is handed, answers
// condition requests, and reports back by mail.
//
// A branch never resolves fan-out. A NODE_LIST reaching a branch is a
// wiring error and stops it.
package branch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/mailflow/pkg/mailflow/graph"
	"github.com/randalmurphal/mailflow/pkg/mailflow/llm"
	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
	"github.com/randalmurphal/mailflow/pkg/mailflow/observability"
)

// Response is one entry of a branch's execution responses. EdgeID is set
// only for failed condition checks.
type Response struct {
	NodeID graph.ID
	Kind   graph.Kind
	EdgeID graph.EdgeID
	Output any
	Err    error
}

// LogKind classifies a context log entry.
type LogKind string

const (
	LogContext   LogKind = "context"
	LogError     LogKind = "error"
	LogCondition LogKind = "condition"
)

// LogEntry is one entry of a branch's context log.
type LogEntry struct {
	Kind      LogKind
	NodeID    graph.ID
	Context   map[string]any
	Err       error
	Condition *mail.ConditionResult
	At        time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithID sets the branch ID. Defaults to a UUID.
func WithID(id string) Option {
	return func(e *Executor) { e.id = id }
}

// WithContext seeds the context. The map is used as given.
func WithContext(ctx map[string]any) Option {
	return func(e *Executor) { e.context = ctx }
}

// WithHistory seeds the message history. The slice is used as given.
func WithHistory(h []llm.Message) Option {
	return func(e *Executor) { e.history = h }
}

// Executor is a branch. Its mailbox is its only input; callers read its
// state only through the snapshot accessors.
type Executor struct {
	id  string
	box *mail.MailBox
	cfg Config
	log *slog.Logger

	mu         sync.Mutex
	context    map[string]any
	history    []llm.Message
	responses  []Response
	contextLog []LogEntry
	err        error

	stop atomic.Bool
}

// New creates a branch executor.
func New(cfg Config, opts ...Option) *Executor {
	e := &Executor{
		box: mail.NewMailBox(),
		cfg: cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.id == "" {
		e.id = uuid.New().String()
	}
	e.log = e.cfg.Logger.With(slog.String("branch_id", e.id))
	return e
}

// ID implements mail.Actor.
func (e *Executor) ID() string { return e.id }

// Mailbox implements mail.Actor.
func (e *Executor) Mailbox() *mail.MailBox { return e.box }

// Stopped reports whether the branch has ended or aborted.
func (e *Executor) Stopped() bool { return e.stop.Load() }

// Stop marks the branch stopped without sending anything.
func (e *Executor) Stop() { e.stop.Store(true) }

// Err returns the error that aborted the branch, if any.
func (e *Executor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Forward processes every envelope currently queued, once. Mail arriving
// while it runs waits for the next call. It returns the error that
// aborted the branch, if this call aborted it; envelopes drained behind
// the failing one are reported as dropped.
func (e *Executor) Forward(ctx context.Context) error {
	in := e.box.DrainAllIn()
	for i, m := range in {
		if err := e.dispatch(ctx, m); err != nil {
			e.abort(m, err)
			reason := fmt.Errorf("%w: %w", ErrBranchAborted, err)
			for _, rest := range in[i+1:] {
				e.drop(ctx, rest, reason)
			}
			return err
		}
	}
	return nil
}

// Execute calls Forward every refresh until the branch stops, Forward
// fails, or ctx ends.
func (e *Executor) Execute(ctx context.Context, refresh time.Duration) error {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		if err := e.Forward(ctx); err != nil {
			return err
		}
		if e.Stopped() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Executor) dispatch(ctx context.Context, m *mail.Mail) error {
	switch m.Category() {
	case mail.Start:
		return e.processStart(m)
	case mail.Node:
		return e.processNode(ctx, m)
	case mail.NodeList:
		return e.processNodeList(m)
	case mail.Condition:
		return e.processCondition(ctx, m)
	case mail.End:
		e.stop.Store(true)
		e.reply(m, mail.End, nil)
		return nil
	case mail.Messages, mail.Tool, mail.Service, mail.Model, mail.NodeID:
		e.log.Debug("ignoring mail", slog.String("mail_id", m.ID()), slog.String("category", m.Category().String()))
		return nil
	default:
		return fmt.Errorf("branch %s: %s has unknown category %d", e.id, m, int(m.Category()))
	}
}

func (e *Executor) processStart(m *mail.Mail) error {
	p, _ := m.Payload().(mail.StartPayload)
	e.mu.Lock()
	e.context = p.Context
	e.mu.Unlock()
	e.reply(m, mail.Start, nil)
	return nil
}

func (e *Executor) processNodeList(m *mail.Mail) error {
	p, _ := m.Payload().(mail.NodeListPayload)
	return &UnsupportedFanOutError{BranchID: e.id, Nodes: len(p.Nodes)}
}

func (e *Executor) processNode(ctx context.Context, m *mail.Mail) error {
	p, ok := m.Payload().(mail.NodePayload)
	if !ok || p.Node == nil {
		return fmt.Errorf("branch %s: node mail %s carries %T", e.id, m.ID(), m.Payload())
	}

	for _, n := range append([]*graph.Node{p.Node}, p.Bundle...) {
		err := e.runNode(ctx, n)
		if err == nil {
			continue
		}
		if e.cfg.policy(n) == PolicyAbort {
			return err
		}
		// a bundle runs as a unit; skip the rest after a failure
		break
	}
	e.reply(m, mail.NodeID, p.Node.ID)
	return nil
}

func (e *Executor) processCondition(ctx context.Context, m *mail.Mail) error {
	switch p := m.Payload().(type) {
	case mail.ConditionRequest:
		if p.Edge == nil {
			return &MissingConditionError{BranchID: e.id}
		}
		cond := p.Edge.Condition()
		if cond == nil {
			return &MissingConditionError{BranchID: e.id, EdgeID: p.Edge.ID()}
		}
		ok, err := cond.Check(ctx, e)
		if err != nil {
			e.record(Response{NodeID: p.Edge.Head(), EdgeID: p.Edge.ID(), Err: &ConditionError{EdgeID: p.Edge.ID(), Err: err}})
			ok = false
		}
		e.reply(m, mail.Condition, mail.ConditionResult{EdgeID: p.Edge.ID(), Result: ok, From: e.id})
		return nil

	case mail.ConditionResult:
		res := p
		e.mu.Lock()
		e.contextLog = append(e.contextLog, LogEntry{Kind: LogCondition, Condition: &res, At: time.Now()})
		e.mu.Unlock()
		return nil

	default:
		return &MissingConditionError{BranchID: e.id}
	}
}

// abort stops the branch after a fatal error and tells the sender it
// ended, so termination accounting still sees this branch finish.
func (e *Executor) abort(m *mail.Mail, err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
	e.stop.Store(true)
	e.log.Error("branch aborted", slog.String("mail_id", m.ID()), slog.String("error", err.Error()))
	e.reply(m, mail.End, nil)
}

func (e *Executor) drop(ctx context.Context, m *mail.Mail, reason error) {
	e.cfg.Metrics.RecordMailDropped(ctx, m.Category().String())
	observability.LogMailDropped(e.log, m.ID(), m.Category().String(), reason)
	for _, o := range e.cfg.Observers {
		o.Dropped(m, reason)
	}
}

func (e *Executor) reply(to *mail.Mail, c mail.Category, payload any) {
	e.box.EnqueueOut(mail.New(e.id, to.Sender(), c, mail.Package{RequestSource: e.id, Payload: payload}))
}

// record appends r to the responses; failures also go to the context log.
func (e *Executor) record(r Response) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responses = append(e.responses, r)
	if r.Err != nil {
		e.contextLog = append(e.contextLog, LogEntry{Kind: LogError, NodeID: r.NodeID, Err: r.Err, At: time.Now()})
	}
}

// Vars implements graph.State. Context keys appear at the top level and
// under "context"; "last_response" and "responses" hold handler outputs;
// "errors" counts recorded handler failures.
func (e *Executor) Vars() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	vars := make(map[string]any, len(e.context)+4)
	for k, v := range e.context {
		vars[k] = v
	}
	outputs := make([]any, 0, len(e.responses))
	failures := 0
	var last any
	for _, r := range e.responses {
		if r.Err != nil {
			failures++
			continue
		}
		outputs = append(outputs, r.Output)
		last = r.Output
	}
	vars["context"] = e.context
	vars["responses"] = outputs
	vars["last_response"] = last
	vars["errors"] = failures
	return vars
}

// Context returns the current context. The map is not copied.
func (e *Executor) Context() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.context
}

// History returns a copy of the message history.
func (e *Executor) History() []llm.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return CloneHistory(e.history)
}

// ExecutionResponses returns a snapshot of recorded responses.
func (e *Executor) ExecutionResponses() []Response {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Response(nil), e.responses...)
}

// ContextLog returns a snapshot of the context log.
func (e *Executor) ContextLog() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]LogEntry(nil), e.contextLog...)
}

// Spawn creates a sibling with an independent deep copy of this branch's
// context and history and the same Config.
func (e *Executor) Spawn(opts ...Option) (*Executor, error) {
	e.mu.Lock()
	ctx, err := CloneContext(e.context)
	hist := CloneHistory(e.history)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("spawn from %s: %w", e.id, err)
	}
	return New(e.cfg, append([]Option{WithContext(ctx), WithHistory(hist)}, opts...)...), nil
}

// Errors returns the handler errors recorded so far, joined.
func (e *Executor) Errors() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for _, r := range e.responses {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
