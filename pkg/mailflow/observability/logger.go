// Package observability provides structured logging, metrics, and tracing
// for mailflow runs.
//
// Features:
//   - Structured logging via slog with fixed field names
//   - A trace-aware slog handler that stamps trace_id/span_id
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every Log* helper accepts a nil logger.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run and branch fields to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "run-123", "branch-1")
//	enriched.Info("node done") // includes run_id, branch_id
func EnrichLogger(logger *slog.Logger, runID, branchID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	attrs := make([]any, 0, 2)
	if runID != "" {
		attrs = append(attrs, slog.String("run_id", runID))
	}
	if branchID != "" {
		attrs = append(attrs, slog.String("branch_id", branchID))
	}
	return logger.With(attrs...)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID string, nodes int) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.Int("nodes", nodes),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, branches int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("branches", branches),
	)
}

// LogRunError logs run failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogBranchSpawned logs creation of a branch.
func LogBranchSpawned(logger *slog.Logger, branchID, origin string) {
	if logger == nil {
		return
	}
	logger.Debug("branch spawned",
		slog.String("branch_id", branchID),
		slog.String("origin", origin),
	)
}

// LogBranchEnded logs a branch reaching END.
func LogBranchEnded(logger *slog.Logger, branchID string, ended, live int) {
	if logger == nil {
		return
	}
	logger.Debug("branch ended",
		slog.String("branch_id", branchID),
		slog.Int("ended", ended),
		slog.Int("live", live),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID, kind string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.String("kind", kind),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs a node handler failure.
func LogNodeError(logger *slog.Logger, nodeID string, err error, recovered bool) {
	if logger == nil {
		return
	}
	logger.Warn("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
		slog.Bool("recovered", recovered),
	)
}

// LogMailDropped logs an envelope the manager could not route.
func LogMailDropped(logger *slog.Logger, mailID, category string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("mail dropped",
		slog.String("mail_id", mailID),
		slog.String("category", category),
		slog.String("error", err.Error()),
	)
}

// LogJournalError logs a journal write failure (non-fatal).
func LogJournalError(logger *slog.Logger, mailID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("journal write failed",
		slog.String("mail_id", mailID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
