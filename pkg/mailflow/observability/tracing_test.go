package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracingTest(t *testing.T) *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("mailflow")

	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		tracer = otel.Tracer("mailflow")
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
	})
	return exporter
}

func attr(attrs []attribute.KeyValue, key string) string {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.AsString()
		}
	}
	return ""
}

func TestSpanManager_NodeIsChildOfRun(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	ctx, run := sm.StartRunSpan(context.Background(), "run-1")
	_, node := sm.StartNodeSpan(ctx, "action", "b1", "branch-2")
	sm.EndSpanWithError(node, nil)
	sm.EndSpanWithError(run, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	nodeSpan, runSpan := spans[0], spans[1]
	assert.Equal(t, "mailflow.node.action", nodeSpan.Name)
	assert.Equal(t, "mailflow.run", runSpan.Name)
	assert.Equal(t, "run-1", attr(runSpan.Attributes, "run.id"))
	assert.Equal(t, "b1", attr(nodeSpan.Attributes, "node.id"))
	assert.Equal(t, "branch-2", attr(nodeSpan.Attributes, "branch.id"))
	assert.Equal(t, runSpan.SpanContext.SpanID(), nodeSpan.Parent.SpanID())
	assert.Equal(t, codes.Ok, runSpan.Status.Code)
}

func TestSpanManager_EndWithError(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	_, span := sm.StartRunSpan(context.Background(), "run-2")
	sm.EndSpanWithError(span, errors.New("cyclic graph"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "cyclic graph", spans[0].Status.Description)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}

func TestSpanManager_AddSpanEvent(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	sm.AddSpanEvent(context.Background(), "ignored")

	ctx, span := sm.StartRunSpan(context.Background(), "run-3")
	sm.AddSpanEvent(ctx, "fan_out", attribute.Int("branches", 2))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "fan_out", spans[0].Events[0].Name)
}

func TestEndSpanWithError_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() { NewSpanManager().EndSpanWithError(nil, nil) })
}
