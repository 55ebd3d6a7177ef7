package config

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/randalmurphal/mailflow/pkg/mailflow"
	"github.com/randalmurphal/mailflow/pkg/mailflow/branch"
	mferrors "github.com/randalmurphal/mailflow/pkg/mailflow/errors"
	"github.com/randalmurphal/mailflow/pkg/mailflow/graph"
	"github.com/randalmurphal/mailflow/pkg/mailflow/journal"
	"github.com/randalmurphal/mailflow/pkg/mailflow/llm"
	"github.com/randalmurphal/mailflow/pkg/mailflow/observability"
	"github.com/randalmurphal/mailflow/pkg/mailflow/template"
)

// Logger builds a slog logger writing to w at the configured level and
// format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(observability.NewHandler(w, c.Log.Level, c.Log.Format))
}

// Retry returns the collaborator retry settings.
func (c *Config) Retry() mferrors.RetryConfig {
	return mferrors.NewRetryConfig(
		mferrors.WithMaxAttempts(c.Branch.Retry.MaxAttempts),
		mferrors.WithInitialBackoff(c.Branch.Retry.InitialBackoff),
		mferrors.WithMaxBackoff(c.Branch.Retry.MaxBackoff),
	)
}

// Policies returns the failure policy for every node kind marked in
// branch.abort_on.
func (c *Config) Policies() map[graph.Kind]branch.Policy {
	policies := make(map[graph.Kind]branch.Policy)
	for kind, abort := range map[graph.Kind]bool{
		graph.KindSystem:      c.Branch.AbortOn.System,
		graph.KindInstruction: c.Branch.AbortOn.Instruction,
		graph.KindAction:      c.Branch.AbortOn.Action,
		graph.KindAgent:       c.Branch.AbortOn.Agent,
	} {
		if abort {
			policies[kind] = branch.PolicyAbort
		}
	}
	return policies
}

// Chat returns a command-line chat client, or nil when llm.command is
// unset.
func (c *Config) Chat() *llm.CommandClient {
	if c.LLM.Command == "" {
		return nil
	}
	opts := []llm.CommandOption{llm.WithTimeout(c.LLM.Timeout)}
	if c.LLM.Model != "" {
		opts = append(opts, llm.WithModel(c.LLM.Model))
	}
	return llm.NewCommandClient(c.LLM.Command, opts...)
}

// OpenJournal opens the configured journal store. It returns nil for
// driver "none"; the caller closes anything else.
func (c *Config) OpenJournal() (journal.Store, error) {
	switch c.Journal.Driver {
	case "", "none":
		return nil, nil
	case "memory":
		return journal.NewMemoryStore(), nil
	case "sqlite":
		s, err := journal.NewSQLiteStore(c.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}
}

// RunOptions turns the engine, branch, and telemetry settings into run
// options. Collaborators (chat, tools, validator, agents) are left to the
// caller. logger may be nil.
func (c *Config) RunOptions(logger *slog.Logger) []mailflow.RunOption {
	opts := []mailflow.RunOption{
		mailflow.WithRefreshTime(c.Engine.RefreshTime),
		mailflow.WithMaxTicks(c.Engine.MaxTicks),
		mailflow.WithMaxConcurrency(c.Engine.MaxConcurrency),
		mailflow.WithRetry(c.Retry()),
		mailflow.WithModel(c.LLM.Model, c.LLM.MaxTokens),
		mailflow.WithLogger(logger),
	}
	for kind, p := range c.Policies() {
		opts = append(opts, mailflow.WithPolicy(kind, p))
	}
	if c.Branch.StrictTemplates {
		opts = append(opts, mailflow.WithTemplates(template.New(template.Strict())))
	}
	if c.Telemetry.Metrics {
		opts = append(opts, mailflow.WithMetrics(observability.NewMetricsRecorder()))
	}
	if c.Telemetry.Tracing {
		opts = append(opts, mailflow.WithSpans(observability.NewSpanManager()))
	}
	return opts
}
