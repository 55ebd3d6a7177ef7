/*
Package mailflow runs directed graphs of LLM work across concurrent
branches that coordinate only by mail.

# Overview

A graph holds four kinds of node: system directives, instructions sent to
a chat model, actions that call a tool, and nested agents. Run walks the
graph with three kinds of actor:

  - a walker, which owns the graph and decides the next hop,
  - a structure, which owns the branches and spawns new ones on fan-out,
  - branches, which execute nodes one at a time.

Actors never share state. Each has a mailbox; a mail.Manager moves
envelopes from outboxes to inboxes once per tick.

# Basic Usage

	g := graph.New()
	_ = g.AddNodes(
	    graph.System("sys", "You review Go code."),
	    graph.Instruction("review", "Review the diff in context."),
	    graph.Action("lint", "golangci-lint", nil),
	)
	_, _ = g.AddEdge("sys", "review")
	_, _ = g.AddEdge("review", "lint")

	res, err := mailflow.Run(ctx, g,
	    mailflow.WithChat(client),
	    mailflow.WithTools(registry),
	    mailflow.WithContext(map[string]any{"diff": diff}),
	)
	if err != nil {
	    log.Fatal(err)
	}
	for _, b := range res.Leaves() {
	    fmt.Println(b.BranchID, b.Context)
	}

Graphs can also be loaded from YAML with graph.FromFile.

# Fan-out

A node with several traversable successors fans out: the branch that ran
it is retired and one new branch per successor starts from a deep copy of
its context and message history. The run finishes when every branch that
was not retired has ended.

# Conditions

Edges may carry a condition. Conditions with graph.SourceBranch are
evaluated by the branch that ran the edge's head, through a CONDITION
round trip; conditions with graph.SourceStructure are evaluated by the
walker against the variables given to WithVars. The hop waits for every
branch-side answer before it is dispatched.

# Errors

Node failures are recorded on the branch and do not stop the run. Use
WithPolicy, or mark a node Critical, to make a failure end its branch.
Run fails only for an empty or cyclic graph, a structural error such as
a branch receiving a NODE_LIST, ctx ending, or ErrMaxTicks.

# Observability

Logging uses log/slog through the observability package. Metrics and
spans use OpenTelemetry; see WithMetrics and WithSpans. Every envelope
routed or dropped can be recorded with WithObserver, for example with a
journal.Recorder.
*/
package mailflow
