package branch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/mailflow/pkg/mailflow/graph"
	"github.com/randalmurphal/mailflow/pkg/mailflow/llm"
	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
)

// fakeStructure stands in for the structure: it sends mail to the branch and
// collects the replies.
type fakeStructure struct {
	box *mail.MailBox
}

func (p *fakeStructure) ID() string             { return "structure" }
func (p *fakeStructure) Mailbox() *mail.MailBox { return p.box }

type harness struct {
	t      *testing.T
	mgr    *mail.Manager
	driver *fakeStructure
	br     *Executor
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	br := New(cfg, append([]Option{WithID("branch-1")}, opts...)...)
	driver := &fakeStructure{box: mail.NewMailBox()}
	mgr := mail.NewManager([]mail.Actor{driver, br}, mail.WithLogger(quietLogger()))
	return &harness{t: t, mgr: mgr, driver: driver, br: br}
}

// send delivers one envelope from the driver to the branch.
func (h *harness) send(c mail.Category, payload any) {
	h.t.Helper()
	h.driver.box.EnqueueOut(mail.New("structure", h.br.ID(), c, mail.Package{RequestSource: h.br.ID(), Payload: payload}))
	require.NoError(h.t, h.mgr.Tick())
}

// step forwards the branch once and returns what it sent back.
func (h *harness) step() ([]*mail.Mail, error) {
	h.t.Helper()
	err := h.br.Forward(context.Background())
	require.NoError(h.t, h.mgr.Tick())
	return h.driver.box.DrainAllIn(), err
}

func (h *harness) roundTrip(c mail.Category, payload any) ([]*mail.Mail, error) {
	h.t.Helper()
	h.send(c, payload)
	return h.step()
}

func nodeMail(n *graph.Node, bundle ...*graph.Node) mail.NodePayload {
	return mail.NodePayload{Node: n, Bundle: bundle}
}

// fakeTools records invocations and answers from a map of functions.
type fakeTools struct {
	mu    sync.Mutex
	fns   map[string]func(args map[string]any) (any, error)
	calls []toolCall
}

type toolCall struct {
	name string
	args map[string]any
}

func (f *fakeTools) Invoke(_ context.Context, name string, args map[string]any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, toolCall{name: name, args: args})
	fn := f.fns[name]
	f.mu.Unlock()
	if fn == nil {
		return nil, &noTool{name}
	}
	return fn(args)
}

type noTool struct{ name string }

func (e *noTool) Error() string { return "no tool " + e.name }

type fakeValidator struct {
	reject map[string]bool
}

func (v fakeValidator) Validate(value any, rule string) (any, error) {
	if v.reject[rule] {
		return nil, &validationFailed{rule}
	}
	return value, nil
}

type validationFailed struct{ rule string }

func (e *validationFailed) Error() string { return "failed rule " + e.rule }

func chatReplying(responses ...string) *llm.MockClient {
	return llm.NewMockClient("").WithResponses(responses...)
}

type droppedMail struct {
	mail   *mail.Mail
	reason error
}

type dropObserver struct {
	mu      sync.Mutex
	dropped []droppedMail
}

func (o *dropObserver) Delivered(*mail.Mail) {}

func (o *dropObserver) Dropped(m *mail.Mail, reason error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, droppedMail{mail: m, reason: reason})
}
