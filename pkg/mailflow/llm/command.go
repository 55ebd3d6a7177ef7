package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandClient implements Client by running a chat CLI. The conversation
// is rendered into a single prompt passed with -p; stdout is the reply.
type CommandClient struct {
	path    string
	model   string
	workdir string
	timeout time.Duration
	extra   []string
}

// CommandOption configures CommandClient.
type CommandOption func(*CommandClient)

// NewCommandClient creates a client that runs path.
func NewCommandClient(path string, opts ...CommandOption) *CommandClient {
	c := &CommandClient{path: path, timeout: 5 * time.Minute}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithModel sets the default model.
func WithModel(model string) CommandOption {
	return func(c *CommandClient) { c.model = model }
}

// WithWorkdir sets the working directory for the command.
func WithWorkdir(dir string) CommandOption {
	return func(c *CommandClient) { c.workdir = dir }
}

// WithTimeout bounds each call.
func WithTimeout(d time.Duration) CommandOption {
	return func(c *CommandClient) { c.timeout = d }
}

// WithArgs appends fixed arguments to every invocation.
func WithArgs(args ...string) CommandOption {
	return func(c *CommandClient) { c.extra = append(c.extra, args...) }
}

// Complete implements Client.
func (c *CommandClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args, err := c.buildArgs(req)
	if err != nil {
		return nil, NewError("complete", err, false)
	}
	cmd := exec.CommandContext(ctx, c.path, args...)
	if c.workdir != "" {
		cmd.Dir = c.workdir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, NewError("complete", ctx.Err(), ctx.Err() == context.DeadlineExceeded)
		}
		msg := strings.TrimSpace(stderr.String())
		return nil, NewError("complete", fmt.Errorf("%w: %s", err, msg), isRetryableMessage(msg))
	}

	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	return &CompletionResponse{
		Content:      strings.TrimSpace(stdout.String()),
		Model:        model,
		FinishReason: "stop",
		Duration:     time.Since(start),
	}, nil
}

func (c *CommandClient) buildArgs(req CompletionRequest) ([]string, error) {
	args := []string{"--print"}
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if req.MaxTokens > 0 {
		args = append(args, "--max-tokens", fmt.Sprint(req.MaxTokens))
	}
	args = append(args, c.extra...)

	prompt, err := renderPrompt(req)
	if err != nil {
		return nil, err
	}
	if prompt != "" {
		args = append(args, "-p", prompt)
	}
	return args, nil
}

func renderPrompt(req CompletionRequest) (string, error) {
	var b strings.Builder
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			b.WriteString(msg.Content)
			b.WriteString("\n")
		case RoleAssistant:
			if b.Len() > 0 {
				b.WriteString("\nAssistant: ")
				b.WriteString(msg.Content)
				b.WriteString("\n\nUser: ")
			}
		}
	}
	if len(req.Context) > 0 {
		data, err := json.Marshal(req.Context)
		if err != nil {
			return "", fmt.Errorf("encode context: %w", err)
		}
		b.WriteString("\nContext: ")
		b.Write(data)
	}
	return strings.TrimSpace(b.String()), nil
}

func isRetryableMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range []string{"rate limit", "timeout", "overloaded", "503", "529"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
