// Package structure implements the structure executor: the orchestrator
// that owns a set of branches, routes mail between them and an upstream
// driver, fans a branch out into siblings on NODE_LIST, and decides when
// the whole structure has finished.
//
// The structure is itself an actor. Its own mailbox faces the upstream
// driver; a second, inner mail.Manager routes between the structure and
// its branches. Mail crossing the boundary is redirected with its ID
// kept, so one envelope can be followed end to end.
package structure

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/mailflow/pkg/mailflow/branch"
	"github.com/randalmurphal/mailflow/pkg/mailflow/graph"
	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
	"github.com/randalmurphal/mailflow/pkg/mailflow/observability"
)

// DefaultUpstream is the actor ID results are addressed to when no
// upstream is configured.
const DefaultUpstream = "driver"

// Option configures an Executor.
type Option func(*Executor)

// WithID sets the structure ID. Defaults to a UUID.
func WithID(id string) Option {
	return func(e *Executor) { e.id = id }
}

// WithUpstream sets the actor that receives forwarded mail.
func WithUpstream(id string) Option {
	return func(e *Executor) { e.upstream = id }
}

// WithLogger sets the logger. Branches inherit it unless their Config
// sets one.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics recorder. Branches inherit it unless
// their Config sets one.
func WithMetrics(r observability.MetricsRecorder) Option {
	return func(e *Executor) {
		if r != nil {
			e.metrics = r
		}
	}
}

// WithObserver observes mail routed between the structure and its
// branches, and mail the structure or a branch drops. Observers may be
// called from several goroutines. Branches inherit them unless their
// Config sets its own.
func WithObserver(o mail.Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithMaxConcurrency bounds how many branches forward at once.
// Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) { e.maxConcurrency = n }
}

type entry struct {
	exec    *branch.Executor
	origin  string
	ended   bool
	retired bool
}

// hub is the structure's identity inside its own Manager.
type hub struct {
	id  string
	box *mail.MailBox
}

func (h *hub) ID() string             { return h.id }
func (h *hub) Mailbox() *mail.MailBox { return h.box }

// Executor is a structure executor. Forward and Execute must not be
// called concurrently; the Enqueue methods may be called from anywhere.
type Executor struct {
	id       string
	upstream string
	box      *mail.MailBox
	hub      *hub
	inner    *mail.Manager
	cfg      branch.Config

	log            *slog.Logger
	metrics        observability.MetricsRecorder
	observers      []mail.Observer
	maxConcurrency int

	mu       sync.Mutex
	injected []*mail.Mail
	branches map[string]*entry
	order    []string
	created  int
	retired  int
	numEnd   int

	stop atomic.Bool
}

// New creates a structure whose branches all share cfg.
func New(cfg branch.Config, opts ...Option) *Executor {
	e := &Executor{
		upstream: DefaultUpstream,
		box:      mail.NewMailBox(),
		log:      slog.Default(),
		metrics:  observability.NoopMetrics{},
		branches: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.id == "" {
		e.id = uuid.New().String()
	}
	e.log = e.log.With(slog.String("structure_id", e.id))
	if cfg.Logger == nil {
		cfg.Logger = e.log
	}
	if cfg.Metrics == nil {
		cfg.Metrics = e.metrics
	}
	if cfg.Observers == nil {
		cfg.Observers = e.observers
	}
	e.cfg = cfg

	e.hub = &hub{id: e.id, box: mail.NewMailBox()}
	mopts := []mail.Option{mail.WithLogger(e.log), mail.WithMetrics(e.metrics)}
	for _, o := range e.observers {
		mopts = append(mopts, mail.WithObserver(o))
	}
	e.inner = mail.NewManager([]mail.Actor{e.hub}, mopts...)
	return e
}

// ID implements mail.Actor.
func (e *Executor) ID() string { return e.id }

// Mailbox implements mail.Actor. It faces the upstream driver.
func (e *Executor) Mailbox() *mail.MailBox { return e.box }

// Upstream returns the actor forwarded mail is addressed to.
func (e *Executor) Upstream() string { return e.upstream }

// EnqueueStart creates a new branch seeded with ctx on the next Forward.
func (e *Executor) EnqueueStart(ctx map[string]any) {
	e.inject(mail.Start, "", mail.StartPayload{Context: ctx})
}

// EnqueueNode hands a node (and its bundle) to a branch.
func (e *Executor) EnqueueNode(branchID string, p mail.NodePayload) {
	e.inject(mail.Node, branchID, p)
}

// EnqueueNodeList fans origin out into one new branch per node.
func (e *Executor) EnqueueNodeList(origin string, nodes []mail.NodePayload) {
	e.inject(mail.NodeList, origin, mail.NodeListPayload{Nodes: nodes})
}

// EnqueueCondition asks a branch to evaluate edge's condition.
func (e *Executor) EnqueueCondition(branchID string, edge *graph.Edge) {
	e.inject(mail.Condition, branchID, mail.ConditionRequest{Edge: edge})
}

// EnqueueConditionResult tells a branch how a routing decision went.
func (e *Executor) EnqueueConditionResult(branchID string, edgeID graph.EdgeID, result bool) {
	e.inject(mail.Condition, branchID, mail.ConditionResult{EdgeID: edgeID, Result: result, From: e.id})
}

// EnqueueEnd ends the named branches, or every live branch if none are
// named.
func (e *Executor) EnqueueEnd(branchIDs ...string) {
	if len(branchIDs) == 0 {
		e.inject(mail.End, "", nil)
		return
	}
	for _, id := range branchIDs {
		e.inject(mail.End, id, nil)
	}
}

func (e *Executor) inject(c mail.Category, branchID string, payload any) {
	m := mail.New(e.upstream, e.id, c, mail.Package{RequestSource: branchID, Payload: payload})
	e.mu.Lock()
	e.injected = append(e.injected, m)
	e.mu.Unlock()
}

// Forward runs one tick: route inbound mail to branches, deliver it,
// let every live branch forward concurrently, collect what they sent,
// and pass it upstream.
//
// The returned error joins the structural errors raised this tick.
// Handler failures stay on their branch and are visible in Outcomes.
func (e *Executor) Forward(ctx context.Context) error {
	var errs []error
	if err := e.transferIns(ctx); err != nil {
		errs = append(errs, err)
	}
	e.tick()
	errs = append(errs, e.forwardBranches(ctx)...)
	e.tick()
	e.transferOuts()
	return errors.Join(errs...)
}

// Execute calls Forward every refresh until every branch has ended, a
// structural error occurs, or ctx ends.
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

func (e *Executor) tick() {
	// Misaddressed mail is dropped and already reported to observers.
	if err := e.inner.Tick(); err != nil {
		e.log.Debug("inner routing dropped mail", slog.String("error", err.Error()))
	}
}

func (e *Executor) transferIns(ctx context.Context) error {
	e.mu.Lock()
	injected := e.injected
	e.injected = nil
	e.mu.Unlock()

	var errs []error
	for _, m := range append(e.box.DrainAllIn(), injected...) {
		switch m.Category() {
		case mail.Start:
			e.start(ctx, m)
		case mail.NodeList:
			if err := e.fanOut(ctx, m); err != nil {
				errs = append(errs, err)
			}
		case mail.End:
			if to := m.RequestSource(); to != "" && to != e.id {
				e.route(m, to)
				continue
			}
			for _, id := range e.liveIDs() {
				e.route(m, id)
			}
		default:
			e.route(m, m.RequestSource())
		}
	}
	return errors.Join(errs...)
}

// route hands m to a branch through the inner Manager, which drops it if
// the branch is unknown or retired.
func (e *Executor) route(m *mail.Mail, branchID string) {
	e.hub.box.EnqueueOut(m.Redirect(e.id, branchID))
}

func (e *Executor) start(ctx context.Context, m *mail.Mail) {
	b := branch.New(e.cfg)
	e.register(b, "")
	e.metrics.RecordBranchSpawned(ctx, false)
	e.route(m, b.ID())
}

// fanOut replaces the originating branch with one sibling per listed
// node. Each sibling starts from a deep copy of the origin's context and
// history. The origin is retired: stopped, unregistered, and left out of
// the termination count.
func (e *Executor) fanOut(ctx context.Context, m *mail.Mail) error {
	origin := m.RequestSource()
	p, _ := m.Payload().(mail.NodeListPayload)

	e.mu.Lock()
	ent, ok := e.branches[origin]
	e.mu.Unlock()
	if !ok || ent.retired || ent.ended {
		e.drop(m, ErrUnknownBranch)
		return nil
	}
	if len(p.Nodes) == 0 {
		e.hub.box.EnqueueOut(mail.New(e.id, origin, mail.End, mail.Package{RequestSource: origin}))
		return nil
	}

	siblings := make([]*branch.Executor, 0, len(p.Nodes))
	for range p.Nodes {
		sib, err := ent.exec.Spawn()
		if err != nil {
			return &BranchError{BranchID: origin, Err: err}
		}
		siblings = append(siblings, sib)
	}
	for i, sib := range siblings {
		e.register(sib, origin)
		e.metrics.RecordBranchSpawned(ctx, true)
		e.hub.box.EnqueueOut(mail.New(e.id, sib.ID(), mail.Node, mail.Package{RequestSource: sib.ID(), Payload: p.Nodes[i]}))
	}
	e.retire(origin)
	return nil
}

func (e *Executor) register(b *branch.Executor, origin string) {
	e.mu.Lock()
	e.branches[b.ID()] = &entry{exec: b, origin: origin}
	e.order = append(e.order, b.ID())
	e.created++
	e.mu.Unlock()

	e.inner.AddSources(b)
	observability.LogBranchSpawned(e.log, b.ID(), origin)
}

func (e *Executor) retire(id string) {
	e.mu.Lock()
	ent := e.branches[id]
	ent.retired = true
	e.retired++
	e.mu.Unlock()

	ent.exec.Stop()
	if err := e.inner.DeleteSource(id); err != nil {
		e.log.Warn("retire branch", slog.String("branch_id", id), slog.String("error", err.Error()))
	}
}

func (e *Executor) forwardBranches(ctx context.Context) []error {
	live := e.liveBranches()
	if len(live) == 0 {
		return nil
	}

	var sem chan struct{}
	if e.maxConcurrency > 0 {
		sem = make(chan struct{}, e.maxConcurrency)
	}

	results := make(chan error, len(live))
	var wg sync.WaitGroup
	for _, b := range live {
		wg.Add(1)
		go func(b *branch.Executor) {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					results <- ctx.Err()
					return
				}
			}
			if err := b.Forward(ctx); err != nil {
				results <- &BranchError{BranchID: b.ID(), Err: err}
			}
		}(b)
	}
	wg.Wait()
	close(results)

	var errs []error
	for err := range results {
		if branch.IsStructural(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			errs = append(errs, err)
			continue
		}
		// The branch aborted under its policy and has already replied END.
		e.log.Warn("branch aborted", slog.String("error", err.Error()))
	}
	return errs
}

// transferOuts passes branch mail upstream. END is consumed here: it
// counts toward termination, and a single END is sent upstream once
// every non-retired branch has ended.
func (e *Executor) transferOuts() {
	for _, m := range e.hub.box.DrainAllIn() {
		if m.Category() == mail.End {
			e.branchEnded(m.Sender())
			continue
		}
		e.box.EnqueueOut(m.Redirect(e.id, e.upstream))
	}
}

func (e *Executor) branchEnded(id string) {
	e.mu.Lock()
	ent, ok := e.branches[id]
	if !ok || ent.ended || ent.retired {
		e.mu.Unlock()
		return
	}
	ent.ended = true
	e.numEnd++
	ended, live := e.numEnd, e.created-e.retired-e.numEnd
	done := live == 0
	e.mu.Unlock()

	observability.LogBranchEnded(e.log, id, ended, live)
	if done {
		e.stop.Store(true)
		e.box.EnqueueOut(mail.New(e.id, e.upstream, mail.End, mail.Package{RequestSource: e.id}))
	}
}

func (e *Executor) drop(m *mail.Mail, reason error) {
	e.metrics.RecordMailDropped(context.Background(), m.Category().String())
	observability.LogMailDropped(e.log, m.ID(), m.Category().String(), reason)
	for _, o := range e.observers {
		o.Dropped(m, reason)
	}
}

func (e *Executor) liveIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for _, id := range e.order {
		if ent := e.branches[id]; !ent.ended && !ent.retired {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e *Executor) liveBranches() []*branch.Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*branch.Executor
	for _, id := range e.order {
		ent := e.branches[id]
		if ent.retired || ent.exec.Stopped() {
			continue
		}
		out = append(out, ent.exec)
	}
	return out
}

// Stopped reports whether every non-retired branch has ended.
func (e *Executor) Stopped() bool { return e.stop.Load() }

// NumEndBranches returns how many branches have ended.
func (e *Executor) NumEndBranches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.numEnd
}

// Created returns how many branches were ever created, retired included.
func (e *Executor) Created() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.created
}

// Live returns the IDs of branches that have neither ended nor been
// retired, in creation order.
func (e *Executor) Live() []string { return e.liveIDs() }

// Branches returns every branch ID in creation order.
func (e *Executor) Branches() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

// Branch returns the branch executor with the given ID.
func (e *Executor) Branch(id string) (*branch.Executor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.branches[id]
	if !ok {
		return nil, false
	}
	return ent.exec, true
}

// Outcomes returns a snapshot of every branch, in creation order.
func (e *Executor) Outcomes() []Outcome {
	e.mu.Lock()
	entries := make([]entry, 0, len(e.order))
	ids := append([]string(nil), e.order...)
	for _, id := range ids {
		entries = append(entries, *e.branches[id])
	}
	e.mu.Unlock()

	out := make([]Outcome, len(entries))
	for i, ent := range entries {
		b := ent.exec
		out[i] = Outcome{
			BranchID:   ids[i],
			Origin:     ent.origin,
			Ended:      ent.ended,
			Retired:    ent.retired,
			Err:        b.Err(),
			Context:    b.Context(),
			History:    b.History(),
			Responses:  b.ExecutionResponses(),
			ContextLog: b.ContextLog(),
		}
	}
	return out
}
