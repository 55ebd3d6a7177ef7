package mailflow

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/randalmurphal/mailflow/pkg/mailflow/llm"
	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRun keeps test runs short and quiet.
func fastRun(opts ...RunOption) []RunOption {
	return append([]RunOption{WithRefreshTime(time.Millisecond), WithLogger(quietLogger())}, opts...)
}

// tools answers action nodes from a map and records the arguments.
type tools struct {
	mu    sync.Mutex
	fns   map[string]func(args map[string]any) (any, error)
	calls map[string]int
	args  map[string][]map[string]any
}

func newTools(fns map[string]func(args map[string]any) (any, error)) *tools {
	return &tools{fns: fns, calls: make(map[string]int), args: make(map[string][]map[string]any)}
}

func (f *tools) Invoke(_ context.Context, name string, args map[string]any) (any, error) {
	f.mu.Lock()
	f.calls[name]++
	f.args[name] = append(f.args[name], args)
	fn := f.fns[name]
	f.mu.Unlock()
	if fn == nil {
		return map[string]any{"tool": name}, nil
	}
	return fn(args)
}

func (f *tools) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type runRecord struct {
	success bool
	ticks   int
}

type fakeMetrics struct {
	mu       sync.Mutex
	routed   int
	spawned  map[bool]int
	nodes    map[string]int
	runs     []runRecord
	droppedN int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{spawned: make(map[bool]int), nodes: make(map[string]int)}
}

func (m *fakeMetrics) RecordMailRouted(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routed++
}

func (m *fakeMetrics) RecordMailDropped(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.droppedN++
}

func (m *fakeMetrics) RecordBranchSpawned(_ context.Context, fanOut bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spawned[fanOut]++
}

func (m *fakeMetrics) RecordNodeExecution(_ context.Context, kind string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[kind]++
}

func (m *fakeMetrics) RecordRun(_ context.Context, success bool, ticks int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, runRecord{success: success, ticks: ticks})
}

// fakeSpans records span names and ended errors.
type fakeSpans struct {
	mu     sync.Mutex
	names  []string
	events []string
	errs   []error
}

func (s *fakeSpans) start(ctx context.Context, name string) (context.Context, trace.Span) {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	return noop.NewTracerProvider().Tracer("test").Start(ctx, name)
}

func (s *fakeSpans) StartRunSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return s.start(ctx, "mailflow.run")
}

func (s *fakeSpans) StartNodeSpan(ctx context.Context, kind, _, _ string) (context.Context, trace.Span) {
	return s.start(ctx, "mailflow.node."+kind)
}

func (s *fakeSpans) EndSpanWithError(span trace.Span, err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
	span.End()
}

func (s *fakeSpans) AddSpanEvent(_ context.Context, name string, _ ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

type countingObserver struct {
	mu        sync.Mutex
	delivered map[mail.Category]int
	dropped   int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{delivered: make(map[mail.Category]int)}
}

func (o *countingObserver) Delivered(m *mail.Mail) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered[m.Category()]++
}

func (o *countingObserver) Dropped(*mail.Mail, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func chat(reply string) *llm.MockClient { return llm.NewMockClient(reply) }
