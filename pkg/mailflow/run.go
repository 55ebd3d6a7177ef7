package mailflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/mailflow/pkg/mailflow/branch"
	"github.com/randalmurphal/mailflow/pkg/mailflow/graph"
	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
	"github.com/randalmurphal/mailflow/pkg/mailflow/observability"
	"github.com/randalmurphal/mailflow/pkg/mailflow/structure"
	"github.com/randalmurphal/mailflow/pkg/mailflow/walker"
)

// Run walks g to completion and returns every branch's outcome.
//
// Each tick routes mail between the walker and the structure, lets the
// walker answer acknowledgments with the next hop, then forwards the
// structure, which forwards its branches. The run ends when the walker
// receives the structure's final END.
//
// Handler failures do not fail the run; they are recorded on their
// branch and reported through Result. Run returns an error only for an
// invalid graph, a structural error, ctx ending, or ErrMaxTicks. The
// partial Result is returned alongside any error raised after the run
// started.
//
// Example:
//
//	res, err := mailflow.Run(ctx, g,
//	    mailflow.WithChat(client),
//	    mailflow.WithTools(registry),
//	    mailflow.WithContext(map[string]any{"doc": doc}),
//	)
func Run(ctx context.Context, g *graph.Graph, opts ...RunOption) (result *Result, runErr error) {
	if g == nil || g.IsEmpty() {
		return nil, ErrEmptyGraph
	}
	if !g.IsAcyclic() {
		return nil, ErrCyclicGraph
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.New().String()
	}

	start := time.Now()
	logger := observability.EnrichLogger(cfg.logger, cfg.runID, "")
	observability.LogRunStart(logger, cfg.runID, g.Len())

	ctx, span := cfg.spans.StartRunSpan(ctx, cfg.runID)

	bcfg := cfg.branch
	if bcfg.Logger == nil {
		bcfg.Logger = logger
	}
	if bcfg.Spans == nil {
		bcfg.Spans = cfg.spans
	}

	walkerID := "walker-" + cfg.runID
	sopts := []structure.Option{
		structure.WithID("structure-" + cfg.runID),
		structure.WithUpstream(walkerID),
		structure.WithLogger(logger),
		structure.WithMetrics(cfg.metrics),
		structure.WithMaxConcurrency(cfg.maxConcurrency),
	}
	mopts := []mail.Option{mail.WithLogger(logger), mail.WithMetrics(cfg.metrics)}
	for _, o := range cfg.observers {
		sopts = append(sopts, structure.WithObserver(o))
		mopts = append(mopts, mail.WithObserver(o))
	}

	s := structure.New(bcfg, sopts...)
	w := walker.New(g, s.ID(), walker.WithID(walkerID), walker.WithLogger(logger), walker.WithVars(cfg.vars))
	outer := mail.NewManager([]mail.Actor{w, s}, mopts...)

	ticks := 0
	// result is built here on every exit past this point.
	defer func() {
		duration := time.Since(start)
		result = &Result{
			RunID:          cfg.runID,
			Ticks:          ticks,
			NumEndBranches: s.NumEndBranches(),
			Branches:       s.Outcomes(),
			Trace:          w.Trace(),
			Duration:       duration,
		}
		cfg.metrics.RecordRun(ctx, runErr == nil, ticks, duration)
		cfg.spans.AddSpanEvent(ctx, "run.finished",
			attribute.Int("ticks", ticks),
			attribute.Int("branches", len(result.Branches)))
		cfg.spans.EndSpanWithError(span, runErr)

		durationMs := float64(duration.Microseconds()) / 1000
		if runErr != nil {
			observability.LogRunError(logger, cfg.runID, runErr, durationMs)
		} else {
			observability.LogRunComplete(logger, cfg.runID, durationMs, len(result.Branches))
		}
	}()

	w.Start(cfg.context)

	ticker := time.NewTicker(cfg.refresh)
	defer ticker.Stop()

	for !w.Done() {
		ticks++
		if ticks > cfg.maxTicks {
			return nil, fmt.Errorf("%w: %d (%d branches live)", ErrMaxTicks, cfg.maxTicks, len(s.Live()))
		}

		// Routing failures are lossy; the observers have already seen them.
		if err := outer.Tick(); err != nil {
			logger.Debug("outer routing dropped mail", slog.String("error", err.Error()))
		}
		if err := w.Forward(ctx); err != nil {
			return nil, fmt.Errorf("walk: %w", err)
		}
		if err := s.Forward(ctx); err != nil {
			return nil, fmt.Errorf("structure: %w", err)
		}
		if w.Done() {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	return nil, nil
}

// IsStructural reports whether err came from wiring rather than from a
// node handler: an invalid graph or a branch asked to do the structure's
// job.
func IsStructural(err error) bool {
	return errors.Is(err, ErrEmptyGraph) || errors.Is(err, ErrCyclicGraph) || branch.IsStructural(err)
}
