// Package walker drives a structure through a graph. It answers each
// branch's acknowledgments with the next hop: the graph heads after
// START, and after NODE_ID the successors of the completed node whose
// edge conditions hold.
//
// Conditions evaluated by the branch are resolved by a CONDITION round
// trip; a hop is dispatched only once every pending condition for it has
// answered.
package walker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/randalmurphal/mailflow/pkg/mailflow/graph"
	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
)

// ErrUnexpectedPayload is returned when an acknowledgment carries the
// wrong payload type.
var ErrUnexpectedPayload = errors.New("unexpected payload")

// Step records one node dispatched. BranchID is the branch the hop was
// addressed to; for a fan-out that is the origin.
type Step struct {
	BranchID string
	NodeID   graph.ID
}

// Option configures a Walker.
type Option func(*Walker)

// WithID sets the walker ID. Defaults to a UUID.
func WithID(id string) Option {
	return func(w *Walker) { w.id = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Walker) {
		if l != nil {
			w.log = l
		}
	}
}

// WithVars sets the variables structure-side conditions see, alongside
// "branch" and "node".
func WithVars(vars map[string]any) Option {
	return func(w *Walker) { w.vars = vars }
}

// hop is a node whose successors are waiting on branch-side conditions.
type hop struct {
	node    graph.ID
	edges   []*graph.Edge
	results map[graph.EdgeID]bool
	waiting int

	// structure-side decisions, reported to the branch if it continues
	decisions []mail.ConditionResult
}

// Walker is the actor that walks g on behalf of one structure.
type Walker struct {
	id        string
	structure string
	g         *graph.Graph
	box       *mail.MailBox
	log       *slog.Logger
	vars      map[string]any

	mu      sync.Mutex
	pending map[string]*hop
	trace   []Step

	done atomic.Bool
}

// New creates a walker that sends its hops to the structure with the
// given ID.
func New(g *graph.Graph, structureID string, opts ...Option) *Walker {
	w := &Walker{
		structure: structureID,
		g:         g,
		box:       mail.NewMailBox(),
		log:       slog.Default(),
		pending:   make(map[string]*hop),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.id == "" {
		w.id = uuid.New().String()
	}
	return w
}

// ID implements mail.Actor.
func (w *Walker) ID() string { return w.id }

// Mailbox implements mail.Actor.
func (w *Walker) Mailbox() *mail.MailBox { return w.box }

// Done reports whether the structure's final END has arrived.
func (w *Walker) Done() bool { return w.done.Load() }

// Trace returns every dispatched node in dispatch order.
func (w *Walker) Trace() []Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Step(nil), w.trace...)
}

// Start asks the structure to open a branch seeded with ctx.
func (w *Walker) Start(ctx map[string]any) {
	w.box.EnqueueOut(mail.New(w.id, w.structure, mail.Start, mail.Package{Payload: mail.StartPayload{Context: ctx}}))
}

// Forward answers every envelope currently queued, once.
func (w *Walker) Forward(ctx context.Context) error {
	var errs []error
	for _, m := range w.box.DrainAllIn() {
		if err := w.dispatch(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Walker) dispatch(ctx context.Context, m *mail.Mail) error {
	branchID := m.RequestSource()
	switch m.Category() {
	case mail.Start:
		w.sendHop(branchID, w.g.Heads())
		return nil

	case mail.NodeID:
		id, ok := m.Payload().(graph.ID)
		if !ok {
			return fmt.Errorf("%w: NODE_ID from %s carries %T", ErrUnexpectedPayload, branchID, m.Payload())
		}
		return w.advance(ctx, branchID, id)

	case mail.Condition:
		res, ok := m.Payload().(mail.ConditionResult)
		if !ok {
			return fmt.Errorf("%w: CONDITION from %s carries %T", ErrUnexpectedPayload, branchID, m.Payload())
		}
		w.answer(branchID, res)
		return nil

	case mail.End:
		if branchID == w.structure {
			w.done.Store(true)
		}
		return nil

	default:
		w.log.Debug("walker ignoring mail",
			slog.String("mail_id", m.ID()),
			slog.String("category", m.Category().String()))
		return nil
	}
}

// advance picks the successors of node for branchID. Bundled edges are
// not hops; their tails already ran with node.
func (w *Walker) advance(ctx context.Context, branchID string, node graph.ID) error {
	if !w.g.HasNode(node) {
		return fmt.Errorf("branch %s acknowledged %s: %w", branchID, node, graph.ErrNodeNotFound)
	}

	h := &hop{node: node, results: make(map[graph.EdgeID]bool)}
	for _, e := range w.g.NodeEdges(node, graph.Out) {
		if e.Bundle() {
			continue
		}
		h.edges = append(h.edges, e)

		cond := e.Condition()
		switch {
		case cond == nil:
			h.results[e.ID()] = true
		case cond.Source() == graph.SourceStructure:
			ok, err := cond.Check(ctx, w.state(branchID, node))
			if err != nil {
				w.log.Warn("structure condition failed",
					slog.String("edge_id", string(e.ID())),
					slog.String("error", err.Error()))
				ok = false
			}
			h.results[e.ID()] = ok
			h.decisions = append(h.decisions, mail.ConditionResult{EdgeID: e.ID(), Result: ok, From: w.id})
		default:
			h.waiting++
			w.send(branchID, mail.Condition, mail.ConditionRequest{Edge: e})
		}
	}

	if h.waiting > 0 {
		w.mu.Lock()
		w.pending[branchID] = h
		w.mu.Unlock()
		return nil
	}
	w.resolve(branchID, h)
	return nil
}

func (w *Walker) answer(branchID string, res mail.ConditionResult) {
	w.mu.Lock()
	h, ok := w.pending[branchID]
	if !ok {
		w.mu.Unlock()
		w.log.Debug("condition result without pending hop", slog.String("branch_id", branchID))
		return
	}
	if _, seen := h.results[res.EdgeID]; !seen {
		h.results[res.EdgeID] = res.Result
		h.waiting--
	}
	ready := h.waiting == 0
	if ready {
		delete(w.pending, branchID)
	}
	w.mu.Unlock()

	if ready {
		w.resolve(branchID, h)
	}
}

func (w *Walker) resolve(branchID string, h *hop) {
	var next []*graph.Node
	seen := make(map[graph.ID]bool)
	for _, e := range h.edges {
		if !h.results[e.ID()] || seen[e.Tail()] {
			continue
		}
		seen[e.Tail()] = true
		if n, ok := w.g.Node(e.Tail()); ok {
			next = append(next, n)
		}
	}
	// A fan-out retires the branch, so it would never read them.
	if len(next) < 2 {
		for _, d := range h.decisions {
			w.send(branchID, mail.Condition, d)
		}
	}
	w.sendHop(branchID, next)
}

// sendHop sends END, NODE, or NODE_LIST depending on how many nodes come
// next.
func (w *Walker) sendHop(branchID string, next []*graph.Node) {
	switch len(next) {
	case 0:
		w.send(branchID, mail.End, nil)
	case 1:
		w.send(branchID, mail.Node, w.payload(branchID, next[0]))
	default:
		list := mail.NodeListPayload{Nodes: make([]mail.NodePayload, len(next))}
		for i, n := range next {
			list.Nodes[i] = w.payload(branchID, n)
		}
		w.send(branchID, mail.NodeList, list)
	}
}

// payload bundles n with the tails of its bundled out-edges.
func (w *Walker) payload(branchID string, n *graph.Node) mail.NodePayload {
	p := mail.NodePayload{Node: n}
	for _, e := range w.g.NodeEdges(n.ID, graph.Out) {
		if !e.Bundle() {
			continue
		}
		if t, ok := w.g.Node(e.Tail()); ok {
			p.Bundle = append(p.Bundle, t)
		}
	}

	w.mu.Lock()
	w.trace = append(w.trace, Step{BranchID: branchID, NodeID: n.ID})
	w.mu.Unlock()
	return p
}

func (w *Walker) send(branchID string, c mail.Category, payload any) {
	w.box.EnqueueOut(mail.New(w.id, w.structure, c, mail.Package{RequestSource: branchID, Payload: payload}))
}

func (w *Walker) state(branchID string, node graph.ID) graph.Vars {
	vars := make(graph.Vars, len(w.vars)+2)
	maps.Copy(vars, w.vars)
	vars["branch"] = branchID
	vars["node"] = string(node)
	return vars
}
