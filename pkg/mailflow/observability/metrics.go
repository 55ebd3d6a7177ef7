package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records mailflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordMailRouted records an envelope delivered into a mailbox.
	RecordMailRouted(ctx context.Context, category string)

	// RecordMailDropped records an envelope discarded by the manager.
	RecordMailDropped(ctx context.Context, category string)

	// RecordBranchSpawned records creation of a branch executor.
	RecordBranchSpawned(ctx context.Context, fanOut bool)

	// RecordNodeExecution records a node handler run with its duration and error status.
	RecordNodeExecution(ctx context.Context, kind string, duration time.Duration, err error)

	// RecordRun records a run completion.
	RecordRun(ctx context.Context, success bool, ticks int, duration time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	mailRouted     metric.Int64Counter
	mailDropped    metric.Int64Counter
	branches       metric.Int64Counter
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
	runTicks       metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("mailflow")
	m := &otelMetrics{}
	var err error

	if m.mailRouted, err = meter.Int64Counter("mailflow.mail.routed",
		metric.WithDescription("Envelopes delivered into a mailbox"),
	); err != nil {
		return nil, err
	}
	if m.mailDropped, err = meter.Int64Counter("mailflow.mail.dropped",
		metric.WithDescription("Envelopes discarded by the mail manager"),
	); err != nil {
		return nil, err
	}
	if m.branches, err = meter.Int64Counter("mailflow.branch.spawned",
		metric.WithDescription("Branch executors created"),
	); err != nil {
		return nil, err
	}
	if m.nodeExecutions, err = meter.Int64Counter("mailflow.node.executions",
		metric.WithDescription("Number of node handler runs"),
	); err != nil {
		return nil, err
	}
	if m.nodeLatency, err = meter.Float64Histogram("mailflow.node.latency_ms",
		metric.WithDescription("Node handler latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.nodeErrors, err = meter.Int64Counter("mailflow.node.errors",
		metric.WithDescription("Number of node handler errors"),
	); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("mailflow.runs",
		metric.WithDescription("Number of runs"),
	); err != nil {
		return nil, err
	}
	if m.runLatency, err = meter.Float64Histogram("mailflow.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.runTicks, err = meter.Int64Histogram("mailflow.run.ticks",
		metric.WithDescription("Ticks taken by a run"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordMailRouted(ctx context.Context, category string) {
	m.mailRouted.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

func (m *otelMetrics) RecordMailDropped(ctx context.Context, category string) {
	m.mailDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

func (m *otelMetrics) RecordBranchSpawned(ctx context.Context, fanOut bool) {
	m.branches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("fan_out", fanOut)))
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordRun(ctx context.Context, success bool, ticks int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.runTicks.Record(ctx, int64(ticks), attrs)
}
