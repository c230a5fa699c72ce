package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// IO is the channel boundary between the agent loop and the terminal layer
// (cmd/onui/commands/cli_io.go). The I/O layer owns raw line reading,
// SIGINT/SIGTERM handling and rendering; it only ever produces decoded
// Signal/Input values and consumes Output values, so the agent loop never
// touches a terminal directly itself.
type IO struct {
	Signals <-chan Signal
	Inputs  <-chan Input
	Output  chan<- Output
}

// Agent is the central state machine. It owns the registry, the LLM
// adapter and the script runtime for the lifetime of one session, and
// drives them from a single goroutine (Run), so none of its own fields
// need a mutex.
type Agent struct {
	registry *Registry
	llm      LLMClient
	runtime  ScriptRuntime
	audit    *AuditLog // optional; nil disables the audit trail
	io       IO
	logger   *slog.Logger

	sigintCount int
}

// NewAgent wires the four collaborators together. audit may be nil; logger
// may be nil, in which case slog.Default() is used.
func NewAgent(llm LLMClient, runtime ScriptRuntime, registry *Registry, audit *AuditLog, io IO, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		registry: registry,
		llm:      llm,
		runtime:  runtime,
		audit:    audit,
		io:       io,
		logger:   logger.With("component", "agent"),
	}
}

// Run drives the agent until ctx is cancelled or the I/O layer closes its
// channels (both signal escalation to Exit). It starts the very first turn
// by printing a startup banner and declaring the prompt ready.
func (a *Agent) Run(ctx context.Context) {
	a.logger.Info("agent run starting", "model", a.llm.ModelName())
	a.io.Output <- SystemMsg(fmt.Sprintf("onui ready (model: %s). Type a message or /help.", a.llm.ModelName()))
	a.io.Output <- InputReady()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent run stopping", "reason", "context cancelled")
			return

		case sig, ok := <-a.io.Signals:
			if !ok {
				a.logger.Info("agent run stopping", "reason", "signal channel closed")
				return
			}
			if a.handleSignal(sig) {
				return
			}

		case in, ok := <-a.io.Inputs:
			if !ok {
				a.logger.Info("agent run stopping", "reason", "input channel closed")
				return
			}
			// Any successfully decoded input line resets the Ctrl-C
			// escalation counter.
			a.sigintCount = 0
			if a.handleInput(ctx, in) {
				return
			}

		case ev, ok := <-a.llm.Events():
			if !ok {
				continue
			}
			dispatchEvent(ev, a.registry, a.io.Output, a.logger)
		}
	}
}

// handleSignal processes an out-of-band Signal. It returns true when the
// loop should terminate.
func (a *Agent) handleSignal(sig Signal) bool {
	switch sig.Kind {
	case SignalExit:
		a.logger.Info("exit signal received")
		return a.doExit()

	case SignalCancel:
		a.sigintCount++
		if a.sigintCount >= 2 {
			// Two consecutive Cancel signals with no intervening input
			// escalate to Exit.
			a.logger.Info("cancel signal escalated to exit", "count", a.sigintCount)
			return a.doExit()
		}
		a.logger.Info("cancel signal received", "count", a.sigintCount)
		a.llm.Cancel()
		a.rejectAllPending()
		a.io.Output <- SystemMsg("Cancelled. Press Ctrl-C again with no other input to exit.")
		a.io.Output <- InputReady()
		return false

	default:
		return false
	}
}

// doExit rejects any still-pending tool calls, says goodbye, and signals
// loop termination.
func (a *Agent) doExit() bool {
	a.llm.Cancel()
	a.rejectAllPending()
	a.io.Output <- SystemMsg("Goodbye.")
	a.logger.Info("agent run stopping", "reason", "exit")
	return true
}

// rejectAllPending applies a blanket rejection to the registry, emits the
// resulting ToolResults, runs any already-approved-but-not-yet-executed
// scripts (so a batch can still close out if nothing else is pending), and
// drains a completed batch toward the model on a best-effort basis — the
// call is about to exit or restart, so SendToolResults is fire-and-forget.
func (a *Agent) rejectAllPending() {
	for _, id := range a.registry.DecideAll(Rejected) {
		a.io.Output <- ToolResult(id, RejectedMessage)
	}
	a.drainBatch(context.Background())
}

// handleInput processes one decoded Input. It returns true when the loop
// should terminate (only /exit reaches this).
func (a *Agent) handleInput(ctx context.Context, in Input) bool {
	if in.Kind == InputCommand {
		return a.handleCommand(ctx, in)
	}
	return a.handleText(ctx, in.Text)
}

// handleCommand dispatches a recognized (or Unknown) slash command.
func (a *Agent) handleCommand(ctx context.Context, in Input) bool {
	if in.Unknown {
		a.io.Output <- SystemMsg(fmt.Sprintf("Unknown command: %s. Type /help for a list.", RenderCommand(in.Name)))
		a.io.Output <- InputReady()
		return false
	}

	a.logger.Debug("command received", "name", in.Name)

	switch in.Name {
	case "help":
		a.io.Output <- SystemMsg(helpText)

	case "status":
		a.io.Output <- SystemMsg(a.statusText())

	case "reset-vm":
		a.runtime.Reset()
		a.registry.Clear()
		a.logger.Info("script VM and pending tool calls reset")
		a.io.Output <- SystemMsg("Script VM and pending tool calls reset.")

	case "exit":
		return a.doExit()

	case "approve":
		a.applyCommandDecision(ctx, Approved)

	case "reject":
		a.applyCommandDecision(ctx, Rejected)

	case "compact", "always":
		a.io.Output <- SystemMsg("Not supported in this build.")

	default:
		a.io.Output <- SystemMsg(fmt.Sprintf("Unknown command: %s. Type /help for a list.", RenderCommand(in.Name)))
	}

	a.io.Output <- InputReady()
	return false
}

// applyCommandDecision implements /approve and /reject: apply decision-all
// when there is something pending, otherwise report that there is nothing
// to decide.
func (a *Agent) applyCommandDecision(ctx context.Context, decision Decision) {
	if !a.registry.HasPending() {
		a.io.Output <- SystemMsg("No pending tool calls.")
		return
	}
	for _, id := range a.registry.DecideAll(decision) {
		a.io.Output <- ToolResult(id, RejectedMessage)
	}
	a.drainBatch(ctx)
}

// handleText processes a free-text input line. Its meaning depends on
// agent state: a pending approval decision takes priority over the
// Generating/Idle dispatch.
func (a *Agent) handleText(ctx context.Context, line string) bool {
	if a.registry.HasPending() {
		a.handleApprovalUtterance(ctx, line)
		return false
	}

	switch a.llm.Status() {
	case StatusGenerating:
		a.io.Output <- SystemMsg("Still generating a response; message dropped. Wait for the reply or /cancel.")
	default:
		a.llm.SendUser(ctx, line)
	}
	return false
}

// handleApprovalUtterance implements the approval-utterance grammar.
func (a *Agent) handleApprovalUtterance(ctx context.Context, line string) {
	tokens := strings.Fields(line)
	decision, id, all, ok := parseApprovalUtterance(tokens, a.registry)
	if !ok {
		a.io.Output <- SystemMsg(
			"Unrecognized response. Reply y/yes/approve/ok or n/no/reject for all pending " +
				"calls, \"<decision> all\", \"<decision> <id>\", or just a pending id to approve it.")
		return
	}

	if all {
		for _, rid := range a.registry.DecideAll(decision) {
			a.io.Output <- ToolResult(rid, RejectedMessage)
		}
	} else if rid, err := a.registry.Decide(id, decision); err == nil && rid != "" {
		a.io.Output <- ToolResult(rid, RejectedMessage)
	}

	a.drainBatch(ctx)
}

// approvalWords maps the single-token decision vocabulary to a Decision,
// case-insensitively.
var approvalWords = map[string]Decision{
	"y": Approved, "yes": Approved, "approve": Approved, "ok": Approved,
	"n": Rejected, "no": Rejected, "reject": Rejected,
}

// parseApprovalUtterance implements the single-token and two-token forms
// of the approval grammar. It reports ok == false for anything else,
// including utterances with more than two tokens (a third token has no
// defined meaning).
func parseApprovalUtterance(tokens []string, registry *Registry) (decision Decision, id string, all bool, ok bool) {
	switch len(tokens) {
	case 1:
		t := strings.ToLower(tokens[0])
		if d, isWord := approvalWords[t]; isWord {
			return d, "", true, true
		}
		if registry.MatchesPendingID(tokens[0]) {
			return Approved, tokens[0], false, true
		}
		return 0, "", false, false

	case 2:
		a, b := tokens[0], tokens[1]
		if d, rest, swapped := matchDecisionWord(a, b); swapped {
			return decisionFromPair(d, rest, registry)
		}
		if d, rest, swapped := matchDecisionWord(b, a); swapped {
			return decisionFromPair(d, rest, registry)
		}
		return 0, "", false, false

	default:
		return 0, "", false, false
	}
}

// matchDecisionWord reports whether first is a decision word, returning
// the decision and the other token.
func matchDecisionWord(first, second string) (d Decision, rest string, ok bool) {
	d, isWord := approvalWords[strings.ToLower(first)]
	return d, second, isWord
}

// decisionFromPair resolves the second token of a two-token utterance:
// either the literal "all" or an exact pending id.
func decisionFromPair(d Decision, rest string, registry *Registry) (Decision, string, bool, bool) {
	if strings.EqualFold(rest, "all") {
		return d, "", true, true
	}
	if registry.MatchesPendingID(rest) {
		return d, rest, false, true
	}
	return 0, "", false, false
}

// drainBatch executes every approved-but-not-yet-run script, releasing the
// registry lock across each execution, then forwards a completed batch to
// the model if the registry just became fully decided.
func (a *Agent) drainBatch(ctx context.Context) {
	for {
		id, code, timeout, ok := a.registry.NextApprovedPending()
		if !ok {
			break
		}
		result := a.runtime.Execute(ctx, code, timeout)
		output := RenderExecution(result.Stdout, result.Returns, result.Error)
		a.registry.RecordOutput(id, output)
		a.io.Output <- ToolResult(id, output)
	}

	batch, ok := a.registry.TakeBatchIfComplete()
	if !ok {
		return
	}

	if a.audit != nil {
		for _, tool := range batch {
			if err := a.audit.Record(tool); err != nil {
				// Best-effort: audit failures never block the turn, but
				// they must not vanish silently either.
				a.logger.Error("audit record failed", "id", tool.ID, "error", err)
			}
		}
	}

	a.logger.Info("tool batch drained", "count", len(batch))

	payloads := make([]ToolResultPayload, 0, len(batch))
	for _, tool := range batch {
		payloads = append(payloads, ToolResultPayload{ID: tool.ID, Output: tool.Output})
	}
	a.llm.SendToolResults(ctx, payloads)
}

// statusText renders the body of /status.
func (a *Agent) statusText() string {
	used, limit := a.llm.ContextSize()
	return fmt.Sprintf(
		"status: %s\nmodel: %s\ncontext: %d/%d tokens\npending tool calls: %d",
		a.llm.Status(), a.llm.ModelName(), used, limit, a.registry.Len(),
	)
}

const helpText = `Available commands:
  /help              show this message
  /status            show agent status, model and pending tool calls
  /reset-vm          discard the script VM and any pending tool calls
  /cancel            cancel the in-flight model call (twice with no other input exits)
  /exit              exit onui
  /approve           approve all pending tool calls
  /reject            reject all pending tool calls

When a tool call is pending, plain text is read as an approval utterance
instead of a prompt: y/yes/approve/ok or n/no/reject for all pending
calls, "<decision> all", "<decision> <id>", or a bare pending id to
approve just that one.`
