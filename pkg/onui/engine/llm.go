package engine

import (
	"context"
	"time"
)

// ToolResultPayload is one (id, output) pair submitted back to the model
// after a batch of pending tools has been fully decided.
type ToolResultPayload struct {
	ID     string
	Output string
}

// StreamEventKind distinguishes the event shapes an LLMClient may post to
// its Events channel.
type StreamEventKind int

const (
	EventChunk StreamEventKind = iota
	EventToolCall
	EventFinished
	EventError
	// EventWarning reports a recoverable protocol problem with a single
	// tool call (e.g. malformed arguments): the call is skipped but the
	// rest of the response, and the turn itself, continues normally.
	EventWarning
)

// StreamEvent is one unit of adapter output. onui models the adapter's
// callback trio (assistant chunk / tool call / finished) as channel
// events rather than an interface the adapter calls into directly — this
// removes the need for a mutex around the registry's interaction with
// the handler, since the agent's own goroutine is the sole consumer of
// the channel and the sole caller of Registry.Insert.
type StreamEvent struct {
	Kind StreamEventKind

	Text string // EventChunk: a partial or full assistant text fragment

	ID      string        // EventToolCall
	Code    string        // EventToolCall
	Timeout time.Duration // EventToolCall

	Err error // EventError: a transport or protocol failure
}

// LLMClient abstracts the chat transport an Agent drives. A concrete
// implementation (llm_openai.go) reconstructs streaming tool calls and
// reports status transitions exactly as the contract specifies.
type LLMClient interface {
	// Status reports the adapter's current AgentStatus.
	Status() AgentStatus

	// Events returns the channel on which this adapter posts StreamEvents.
	// The channel is never closed by the adapter during its lifetime;
	// callers multiplex it in a select alongside input/signal channels.
	Events() <-chan StreamEvent

	// SendUser appends a user message to history and initiates a model
	// call in the background; it returns once the request is enqueued,
	// not once the model has responded.
	SendUser(ctx context.Context, text string)

	// SendToolResults appends each result to history (in order) and
	// initiates a new model call in the background.
	SendToolResults(ctx context.Context, results []ToolResultPayload)

	// Cancel aborts any in-flight call. It is idempotent; callbacks
	// (here, events) from an aborted call are never delivered afterward.
	Cancel()

	// ModelName and ContextSize back the /status command.
	ModelName() string
	ContextSize() (used, limit int)
}
