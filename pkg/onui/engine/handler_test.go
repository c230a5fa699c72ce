package engine

import "testing"

func TestDispatchEvent_ChunkForwardsAssistantMsg(t *testing.T) {
	registry := NewRegistry()
	out := make(chan Output, 4)

	finished := dispatchEvent(StreamEvent{Kind: EventChunk, Text: "partial"}, registry, out, discardLogger())
	if finished {
		t.Fatal("a chunk event should not report the call finished")
	}
	msg := <-out
	if msg.Kind != OutAssistantMsg || msg.Text != "partial" {
		t.Fatalf("got %+v, want AssistantMsg(partial)", msg)
	}
}

func TestDispatchEvent_ToolCallInsertsAndEmitsToolCode(t *testing.T) {
	registry := NewRegistry()
	out := make(chan Output, 4)

	dispatchEvent(StreamEvent{Kind: EventToolCall, ID: "t1", Code: "return 1"}, registry, out, discardLogger())

	toolCode := <-out
	if toolCode.Kind != OutToolCode || toolCode.ID != "t1" || toolCode.Code != "return 1" {
		t.Fatalf("got %+v, want ToolCode{t1, return 1}", toolCode)
	}
	if !registry.MatchesPendingID("t1") {
		t.Fatal("the tool call should be registered as pending")
	}
}

func TestDispatchEvent_DuplicateToolCallIDIsReportedNotPanicked(t *testing.T) {
	registry := NewRegistry()
	out := make(chan Output, 4)

	dispatchEvent(StreamEvent{Kind: EventToolCall, ID: "t1", Code: "a"}, registry, out, discardLogger())
	<-out // the ToolCode for the first insert

	dispatchEvent(StreamEvent{Kind: EventToolCall, ID: "t1", Code: "b"}, registry, out, discardLogger())
	sysMsg := <-out
	if sysMsg.Kind != OutSystemMsg {
		t.Fatalf("got %+v, want a SystemMsg reporting the duplicate id", sysMsg)
	}
}

func TestDispatchEvent_FinishedEmitsEndOfSegmentThenInputReady(t *testing.T) {
	registry := NewRegistry()
	out := make(chan Output, 4)

	finished := dispatchEvent(StreamEvent{Kind: EventFinished}, registry, out, discardLogger())
	if !finished {
		t.Fatal("EventFinished should report the call finished")
	}

	first := <-out
	if first.Kind != OutAssistantMsg || first.Text != "" {
		t.Fatalf("got %+v, want AssistantMsg(\"\") first", first)
	}
	second := <-out
	if second.Kind != OutInputReady {
		t.Fatalf("got %+v, want InputReady second", second)
	}
}

func TestDispatchEvent_ErrorEmitsSystemMsgAndInputReady(t *testing.T) {
	registry := NewRegistry()
	out := make(chan Output, 4)

	finished := dispatchEvent(StreamEvent{Kind: EventError, Err: errTest{}}, registry, out, discardLogger())
	if !finished {
		t.Fatal("an error event should report the call finished (the loop can take new input)")
	}
	sysMsg := <-out
	if sysMsg.Kind != OutSystemMsg {
		t.Fatalf("got %+v, want SystemMsg", sysMsg)
	}
	ready := <-out
	if ready.Kind != OutInputReady {
		t.Fatalf("got %+v, want InputReady", ready)
	}
}

func TestDispatchEvent_WarningForwardsSystemMsgWithoutFinishing(t *testing.T) {
	registry := NewRegistry()
	out := make(chan Output, 4)

	finished := dispatchEvent(StreamEvent{Kind: EventWarning, Text: "Skipping malformed tool call: boom"}, registry, out, discardLogger())
	if finished {
		t.Fatal("a warning event should not end the turn")
	}
	msg := <-out
	if msg.Kind != OutSystemMsg || msg.Text != "Skipping malformed tool call: boom" {
		t.Fatalf("got %+v, want SystemMsg(Skipping malformed tool call: boom)", msg)
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
