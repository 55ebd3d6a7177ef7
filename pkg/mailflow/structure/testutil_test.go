package structure

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/mailflow/pkg/mailflow/branch"
	"github.com/randalmurphal/mailflow/pkg/mailflow/llm"
	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type dropped struct {
	mail   *mail.Mail
	reason error
}

type recordingObserver struct {
	mu        sync.Mutex
	delivered []*mail.Mail
	dropped   []dropped
}

func (o *recordingObserver) Delivered(m *mail.Mail) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered = append(o.delivered, m)
}

func (o *recordingObserver) Dropped(m *mail.Mail, reason error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, dropped{mail: m, reason: reason})
}

func (o *recordingObserver) drops() []dropped {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]dropped(nil), o.dropped...)
}

// upstream stands in for the graph walker: it sits next to the structure
// in an outer Manager and collects what the structure forwards.
type upstream struct {
	box *mail.MailBox
}

func (u *upstream) ID() string             { return DefaultUpstream }
func (u *upstream) Mailbox() *mail.MailBox { return u.box }

type harness struct {
	t     *testing.T
	s     *Executor
	up    *upstream
	outer *mail.Manager
	obs   *recordingObserver
}

func newHarness(t *testing.T, cfg branch.Config, opts ...Option) *harness {
	t.Helper()
	obs := &recordingObserver{}
	s := New(cfg, append([]Option{WithID("structure"), WithLogger(quietLogger()), WithObserver(obs)}, opts...)...)
	up := &upstream{box: mail.NewMailBox()}
	outer := mail.NewManager([]mail.Actor{up, s}, mail.WithLogger(quietLogger()))
	return &harness{t: t, s: s, up: up, outer: outer, obs: obs}
}

// step forwards the structure once and returns what reached upstream.
func (h *harness) step() ([]*mail.Mail, error) {
	h.t.Helper()
	err := h.s.Forward(context.Background())
	require.NoError(h.t, h.outer.Tick())
	return h.up.box.DrainAllIn(), err
}

func (h *harness) mustStep() []*mail.Mail {
	h.t.Helper()
	out, err := h.step()
	require.NoError(h.t, err)
	return out
}

// started enqueues START, forwards once, and returns the new branch ID.
func (h *harness) started(ctx map[string]any) string {
	h.t.Helper()
	h.s.EnqueueStart(ctx)
	out := h.mustStep()
	require.Len(h.t, out, 1)
	require.Equal(h.t, mail.Start, out[0].Category())
	return out[0].RequestSource()
}

func categories(ms []*mail.Mail) []mail.Category {
	out := make([]mail.Category, len(ms))
	for i, m := range ms {
		out[i] = m.Category()
	}
	return out
}

type toolFunc func(ctx context.Context, name string, args map[string]any) (any, error)

func (f toolFunc) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	return f(ctx, name, args)
}

type fakeChat struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (c *fakeChat) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &llm.CompletionResponse{Content: c.reply, Model: req.Model}, nil
}
