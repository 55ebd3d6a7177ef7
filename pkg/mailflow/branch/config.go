package branch

import (
	"context"
	"log/slog"

	mferrors "github.com/randalmurphal/mailflow/pkg/mailflow/errors"
	"github.com/randalmurphal/mailflow/pkg/mailflow/graph"
	"github.com/randalmurphal/mailflow/pkg/mailflow/llm"
	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
	"github.com/randalmurphal/mailflow/pkg/mailflow/observability"
	"github.com/randalmurphal/mailflow/pkg/mailflow/template"
)

// Chatter answers instruction nodes. llm.Client satisfies it.
type Chatter interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// ToolInvoker runs action nodes. tool.Registry satisfies it.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
}

// Validator checks a handler output against a node's Rule.
// validate.Validator satisfies it.
type Validator interface {
	Validate(value any, rule string) (any, error)
}

// AgentRunner runs agent nodes. It receives the branch's message history.
type AgentRunner interface {
	Run(ctx context.Context, agent string, history []llm.Message) (any, error)
}

// AgentFunc adapts a function to AgentRunner.
type AgentFunc func(ctx context.Context, agent string, history []llm.Message) (any, error)

// Run implements AgentRunner.
func (f AgentFunc) Run(ctx context.Context, agent string, history []llm.Message) (any, error) {
	return f(ctx, agent, history)
}

// Policy decides what a handler failure does to the branch.
type Policy int

const (
	// PolicyRecover records the failure and keeps the branch walking.
	PolicyRecover Policy = iota
	// PolicyAbort records the failure and stops the branch.
	PolicyAbort
)

// String returns the policy name.
func (p Policy) String() string {
	if p == PolicyAbort {
		return "abort"
	}
	return "recover"
}

// Config is shared by every branch of a structure. Branches never mutate it.
type Config struct {
	Chat      Chatter
	Tools     ToolInvoker
	Validator Validator
	Agents    AgentRunner

	// Policies maps node kinds to a failure policy. Missing kinds recover.
	// A node marked Critical always aborts.
	Policies map[graph.Kind]Policy

	// Retry applies to collaborator calls. Zero value means one attempt.
	Retry mferrors.RetryConfig

	// Templates expands ${name} placeholders in directives, instructions,
	// and action args against the branch vars. Nil leaves unknown names
	// in place.
	Templates *template.Expander

	// Model and MaxTokens are passed through on chat requests.
	Model     string
	MaxTokens int

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager

	// Observers are told about mail a branch drops when it aborts.
	Observers []mail.Observer
}

func (c Config) policy(n *graph.Node) Policy {
	if n.Critical {
		return PolicyAbort
	}
	return c.Policies[n.Kind]
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = observability.NoopMetrics{}
	}
	if c.Spans == nil {
		c.Spans = observability.NoopSpanManager{}
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = mferrors.NoRetry
	}
	if c.Templates == nil {
		c.Templates = template.New()
	}
	return c
}
