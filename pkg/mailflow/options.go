package mailflow

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/mailflow/pkg/mailflow/branch"
	mferrors "github.com/randalmurphal/mailflow/pkg/mailflow/errors"
	"github.com/randalmurphal/mailflow/pkg/mailflow/graph"
	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
	"github.com/randalmurphal/mailflow/pkg/mailflow/observability"
	"github.com/randalmurphal/mailflow/pkg/mailflow/template"
)

// Default run limits.
const (
	DefaultRefreshTime = 10 * time.Millisecond
	DefaultMaxTicks    = 10000
)

// runConfig holds configuration for one Run.
type runConfig struct {
	runID          string
	context        map[string]any
	vars           map[string]any
	refresh        time.Duration
	maxTicks       int
	maxConcurrency int
	branch         branch.Config

	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	observers []mail.Observer
}

func defaultRunConfig() runConfig {
	return runConfig{
		refresh:  DefaultRefreshTime,
		maxTicks: DefaultMaxTicks,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
}

// RunOption configures Run.
type RunOption func(*runConfig)

// WithRunID sets the run ID. Defaults to a UUID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) { c.runID = id }
}

// WithContext seeds the first branch's context.
func WithContext(ctx map[string]any) RunOption {
	return func(c *runConfig) { c.context = ctx }
}

// WithVars sets the variables structure-side edge conditions are
// evaluated against.
func WithVars(vars map[string]any) RunOption {
	return func(c *runConfig) { c.vars = vars }
}

// WithRefreshTime sets the interval between ticks.
// Default: 10ms
func WithRefreshTime(d time.Duration) RunOption {
	return func(c *runConfig) {
		if d > 0 {
			c.refresh = d
		}
	}
}

// WithMaxTicks bounds how many ticks a run may take.
// Default: 10000
//
// A run that exceeds it returns ErrMaxTicks along with the partial result.
func WithMaxTicks(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxTicks = n
		}
	}
}

// WithMaxConcurrency bounds how many branches forward at once.
func WithMaxConcurrency(n int) RunOption {
	return func(c *runConfig) { c.maxConcurrency = n }
}

// WithBranchConfig replaces the branch configuration wholesale. Options
// given after it still apply on top.
func WithBranchConfig(cfg branch.Config) RunOption {
	return func(c *runConfig) { c.branch = cfg }
}

// WithChat sets the capability instruction nodes call.
func WithChat(chat branch.Chatter) RunOption {
	return func(c *runConfig) { c.branch.Chat = chat }
}

// WithTools sets the invoker action nodes call.
func WithTools(tools branch.ToolInvoker) RunOption {
	return func(c *runConfig) { c.branch.Tools = tools }
}

// WithValidator sets the validator node rules are checked with.
func WithValidator(v branch.Validator) RunOption {
	return func(c *runConfig) { c.branch.Validator = v }
}

// WithAgents sets the runner agent nodes call.
func WithAgents(a branch.AgentRunner) RunOption {
	return func(c *runConfig) { c.branch.Agents = a }
}

// WithPolicy sets the failure policy for one node kind.
func WithPolicy(kind graph.Kind, p branch.Policy) RunOption {
	return func(c *runConfig) {
		if c.branch.Policies == nil {
			c.branch.Policies = make(map[graph.Kind]branch.Policy)
		}
		c.branch.Policies[kind] = p
	}
}

// WithRetry sets the retry behavior for collaborator calls.
func WithRetry(r mferrors.RetryConfig) RunOption {
	return func(c *runConfig) { c.branch.Retry = r }
}

// WithTemplates sets the expander for ${name} placeholders in node text
// and action args. Pass template.New(template.Strict()) to make unknown
// names fail the node.
func WithTemplates(t *template.Expander) RunOption {
	return func(c *runConfig) { c.branch.Templates = t }
}

// WithModel sets the model and token limit passed on chat requests.
func WithModel(model string, maxTokens int) RunOption {
	return func(c *runConfig) {
		c.branch.Model = model
		c.branch.MaxTokens = maxTokens
	}
}

// WithLogger sets the logger for the run and every actor in it.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpans sets the span manager.
func WithSpans(s observability.SpanManager) RunOption {
	return func(c *runConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithObserver observes every envelope routed or dropped during the run,
// at both routing levels. May be given more than once.
func WithObserver(o mail.Observer) RunOption {
	return func(c *runConfig) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}
