package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// defaultTokenLimit is the context budget reported when a provider
// doesn't expose one of its own.
const defaultTokenLimit = 256 * 1024

// luaToolName is the single function exposed to the model: the agent's
// only effector is the sandboxed Lua VM.
const luaToolName = "lua"

func luaTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        luaToolName,
			Description: "Execute a Lua script in a sandboxed VM and return its stdout and return values.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"code": map[string]any{
						"type":        "string",
						"description": "Lua source code to execute.",
					},
					"timeout_sec": map[string]any{
						"type":        "integer",
						"description": "Timeout in seconds (default 10).",
					},
				},
				"required":             []string{"code"},
				"additionalProperties": false,
			},
		},
	}
}

// pendingToolCall accumulates a streaming tool-call delta keyed by its
// fragment index, since OpenAI-compatible streams deliver tool-call
// arguments split across multiple chunks.
type pendingToolCall struct {
	id        string
	name      string
	arguments string
}

// OpenAIClient implements LLMClient against any OpenAI-compatible chat
// completions endpoint, reconstructing tool calls from streamed deltas.
type OpenAIClient struct {
	client *openai.Client
	model  string
	stream bool
	logger *slog.Logger

	mu         sync.Mutex
	status     AgentStatus
	history    []openai.ChatCompletionMessage
	cancelFunc context.CancelFunc
	usedTokens int

	events chan StreamEvent
}

// NewOpenAIClient constructs an adapter for the given provider config. The
// system prompt (falling back to DefaultSystemPrompt) seeds history. logger
// may be nil, in which case slog.Default() is used.
func NewOpenAIClient(cfg LLMProviderConfig, apiKey, baseURL string, logger *slog.Logger) *OpenAIClient {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	stream := true
	if cfg.Stream != nil {
		stream = *cfg.Stream
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		stream: stream,
		logger: logger.With("component", "llm_openai"),
		status: StatusIdle,
		history: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		events: make(chan StreamEvent, 16),
	}
}

func (c *OpenAIClient) Status() AgentStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *OpenAIClient) Events() <-chan StreamEvent { return c.events }

func (c *OpenAIClient) ModelName() string { return c.model }

func (c *OpenAIClient) ContextSize() (used, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedTokens, defaultTokenLimit
}

func (c *OpenAIClient) SendUser(ctx context.Context, text string) {
	c.mu.Lock()
	c.history = append(c.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	c.status = StatusGenerating
	c.mu.Unlock()

	c.runChat(ctx)
}

func (c *OpenAIClient) SendToolResults(ctx context.Context, results []ToolResultPayload) {
	c.mu.Lock()
	for _, r := range results {
		c.history = append(c.history, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    r.Output,
			ToolCallID: r.ID,
		})
	}
	c.status = StatusGenerating
	c.mu.Unlock()

	c.runChat(ctx)
}

func (c *OpenAIClient) Cancel() {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.cancelFunc = nil
	c.status = StatusIdle
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// runChat spawns the streaming request goroutine. It is the sole producer
// onto c.events for the duration of one model call.
func (c *OpenAIClient) runChat(parent context.Context) {
	callCtx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.cancelFunc = cancel
	history := make([]openai.ChatCompletionMessage, len(c.history))
	copy(history, c.history)
	model := c.model
	stream := c.stream
	c.mu.Unlock()

	go func() {
		defer cancel()
		if stream {
			c.streamChat(callCtx, model, history)
		} else {
			c.singleChat(callCtx, model, history)
		}
	}()
}

func (c *OpenAIClient) streamChat(ctx context.Context, model string, history []openai.ChatCompletionMessage) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: history,
		Stream:   true,
		Tools:    []openai.Tool{luaTool()},
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	s, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		c.finishWithError(ctx, err)
		return
	}
	defer s.Close()

	toolCalls := make(map[int]*pendingToolCall)
	var assistantText string
	var finishedWithToolCalls bool

	for {
		if ctx.Err() != nil {
			return // cancelled: no further events delivered for this call
		}

		resp, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			c.finishWithError(ctx, err)
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			assistantText += delta.Content
			c.events <- StreamEvent{Kind: EventChunk, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			entry, ok := toolCalls[idx]
			if !ok {
				entry = &pendingToolCall{}
				toolCalls[idx] = entry
			}
			if tc.ID != "" {
				entry.id = tc.ID
			}
			if tc.Function.Name != "" {
				entry.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				entry.arguments += tc.Function.Arguments
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			finishedWithToolCalls = true
		}
		if resp.Usage != nil {
			c.mu.Lock()
			c.usedTokens = resp.Usage.TotalTokens
			c.mu.Unlock()
		}
	}

	assistantMsg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: assistantText,
	}

	for _, idx := range orderedIndices(toolCalls) {
		entry := toolCalls[idx]
		if entry.name != luaToolName {
			continue
		}
		if entry.id == "" {
			entry.id = NewToolID()
		}
		code, timeout, argErr := parseLuaArguments(entry.arguments)
		if argErr != nil {
			// Malformed tool-call arguments: skip this call, warn the
			// operator, keep processing the rest of the response.
			c.logger.Warn("skipping malformed tool call", "id", entry.id, "error", argErr)
			c.events <- StreamEvent{Kind: EventWarning, Text: "Skipping malformed tool call: " + argErr.Error()}
			continue
		}
		assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ToolCall{
			ID:   entry.id,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      entry.name,
				Arguments: entry.arguments,
			},
		})
		c.events <- StreamEvent{Kind: EventToolCall, ID: entry.id, Code: code, Timeout: timeout}
	}

	c.mu.Lock()
	c.history = append(c.history, assistantMsg)
	if finishedWithToolCalls && len(assistantMsg.ToolCalls) > 0 {
		c.status = StatusWaitForToolResult
	} else {
		c.status = StatusIdle
	}
	c.mu.Unlock()

	c.events <- StreamEvent{Kind: EventFinished}
}

// singleChat is the non-streaming fallback for providers configured with
// stream = false.
func (c *OpenAIClient) singleChat(ctx context.Context, model string, history []openai.ChatCompletionMessage) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: history,
		Tools:    []openai.Tool{luaTool()},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.finishWithError(ctx, err)
		return
	}
	if len(resp.Choices) == 0 {
		c.finishWithError(ctx, errors.New("empty response from model"))
		return
	}

	msg := resp.Choices[0].Message
	if msg.Content != "" {
		c.events <- StreamEvent{Kind: EventChunk, Text: msg.Content}
	}

	hasToolCalls := len(msg.ToolCalls) > 0
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != luaToolName {
			continue
		}
		code, timeout, argErr := parseLuaArguments(tc.Function.Arguments)
		if argErr != nil {
			c.logger.Warn("skipping malformed tool call", "id", tc.ID, "error", argErr)
			c.events <- StreamEvent{Kind: EventWarning, Text: "Skipping malformed tool call: " + argErr.Error()}
			continue
		}
		c.events <- StreamEvent{Kind: EventToolCall, ID: tc.ID, Code: code, Timeout: timeout}
	}

	c.mu.Lock()
	c.history = append(c.history, msg)
	c.usedTokens = resp.Usage.TotalTokens
	if hasToolCalls {
		c.status = StatusWaitForToolResult
	} else {
		c.status = StatusIdle
	}
	c.mu.Unlock()

	c.events <- StreamEvent{Kind: EventFinished}
}

func (c *OpenAIClient) finishWithError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return // cancelled: callbacks from a cancelled call are never delivered
	}
	c.logger.Error("chat completion request failed", "error", err)
	c.mu.Lock()
	c.status = StatusIdle
	c.mu.Unlock()
	c.events <- StreamEvent{Kind: EventError, Err: err}
}

func orderedIndices(m map[int]*pendingToolCall) []int {
	indices := make([]int, 0, len(m))
	for idx := range m {
		indices = append(indices, idx)
	}
	for i := 1; i < len(indices); i++ {
		for j := i; j > 0 && indices[j-1] > indices[j]; j-- {
			indices[j-1], indices[j] = indices[j], indices[j-1]
		}
	}
	return indices
}

func parseLuaArguments(raw string) (code string, timeout time.Duration, err error) {
	var args struct {
		Code       string `json:"code"`
		TimeoutSec *int   `json:"timeout_sec"`
	}
	if unmarshalErr := json.Unmarshal([]byte(raw), &args); unmarshalErr != nil {
		return "", 0, unmarshalErr
	}
	if args.Code == "" {
		return "", 0, errors.New("tool call missing required \"code\" argument")
	}
	if args.TimeoutSec != nil && *args.TimeoutSec > 0 {
		return args.Code, time.Duration(*args.TimeoutSec) * time.Second, nil
	}
	return args.Code, DefaultToolTimeout, nil
}
