package engine

import "log/slog"

// dispatchEvent reacts to one StreamEvent from the LLM adapter, updates
// the registry, sends the resulting Output event(s) on out, and reports
// whether the model call has finished. Called from the agent's select
// loop, which is the sole writer to out and the sole caller of
// registry.Insert.
func dispatchEvent(ev StreamEvent, registry *Registry, out chan<- Output, logger *slog.Logger) (finished bool) {
	switch ev.Kind {
	case EventChunk:
		// An empty chunk marks the end of a segment; EventFinished emits
		// that marker itself, so it is not forwarded twice.
		if ev.Text == "" {
			return false
		}
		out <- AssistantMsg(ev.Text)
		return false

	case EventToolCall:
		if err := registry.Insert(ev.ID, ev.Code, ev.Timeout); err != nil {
			// A duplicate id from a malformed stream. Skip this call,
			// surface a SystemMsg, keep processing the rest of the response.
			logger.Warn("dropping tool call", "id", ev.ID, "error", err)
			out <- SystemMsg("Tool call rejected: " + err.Error())
			return false
		}
		out <- ToolCode(ev.ID, ev.Code)
		return false

	case EventWarning:
		logger.Warn("protocol warning from LLM adapter", "text", ev.Text)
		out <- SystemMsg(ev.Text)
		return false

	case EventFinished:
		// Ordering guarantee: AssistantMsg("") then InputReady.
		out <- AssistantMsg("")
		out <- InputReady()
		return true

	case EventError:
		logger.Error("LLM adapter call failed", "error", ev.Err)
		out <- SystemMsg("Failed to send message to LLM: " + ev.Err.Error())
		out <- InputReady()
		return true

	default:
		return false
	}
}
