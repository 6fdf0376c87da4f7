package client

import (
	"encoding/json"
	"testing"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
)

func initEvent() *domain.AgentEvent {
	return &domain.AgentEvent{Type: domain.EventTypeInit, Init: &domain.InitPayload{}}
}

func responseEvent(text string) *domain.AgentEvent {
	return &domain.AgentEvent{Type: domain.EventTypeResponse, Response: &domain.ResponsePayload{Text: text}}
}

func toolUseEvent(id, name, input string) *domain.AgentEvent {
	return &domain.AgentEvent{Type: domain.EventTypeToolUse, ToolUse: &domain.ToolUsePayload{
		ToolUseID: id, Name: name, Input: json.RawMessage(input),
	}}
}

func toolResultEvent(id, result, status string) *domain.AgentEvent {
	return &domain.AgentEvent{Type: domain.EventTypeToolResult, ToolResult: &domain.ToolResultPayload{
		ToolUseID: id, Result: json.RawMessage(result), Status: status,
	}}
}

func completeEvent() *domain.AgentEvent {
	return &domain.AgentEvent{Type: domain.EventTypeComplete, Complete: &domain.CompletePayload{}}
}

func errorEvent(msg string) *domain.AgentEvent {
	return &domain.AgentEvent{Type: domain.EventTypeError, Error: &domain.ErrorPayload{Message: msg}}
}

func apply(t *testing.T, d *Dispatcher, events ...*domain.AgentEvent) {
	t.Helper()
	for _, ev := range events {
		if err := d.Apply(ev); err != nil {
			t.Fatalf("Apply(%s) failed: %v", ev.Type, err)
		}
	}
}

func TestDispatcherBasicTurn(t *testing.T) {
	d := NewDispatcher()
	d.BeginTurn("exec_1")

	apply(t, d, initEvent())
	if got := d.State().Phase; got != PhaseThinking {
		t.Fatalf("expected thinking after init, got %s", got)
	}

	apply(t, d, responseEvent("Hello"), responseEvent(", world"))
	if got := d.State().Phase; got != PhaseResponding {
		t.Fatalf("expected responding, got %s", got)
	}
	msgs := d.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Text != "Hello, world" {
		t.Fatalf("unexpected text: %q", msgs[0].Text)
	}
	if msgs[0].Done {
		t.Fatal("message finalized while still streaming")
	}

	apply(t, d, completeEvent())
	if got := d.State().Phase; got != PhaseIdle {
		t.Fatalf("expected idle after complete, got %s", got)
	}
	msgs = d.Messages()
	if !msgs[0].Done {
		t.Fatal("message not finalized on complete")
	}
	if msgs[0].CompletedAt.IsZero() {
		t.Fatal("completion timestamp not set")
	}
}

func TestDispatcherDoubleCompleteIsNoOp(t *testing.T) {
	d := NewDispatcher()
	d.BeginTurn("exec_1")
	apply(t, d, initEvent(), responseEvent("hi"), completeEvent())

	completedAt := d.Messages()[0].CompletedAt
	apply(t, d, completeEvent())

	if len(d.Messages()) != 1 {
		t.Fatalf("duplicate complete changed message count: %d", len(d.Messages()))
	}
	if !d.Messages()[0].CompletedAt.Equal(completedAt) {
		t.Fatal("duplicate complete changed completion timestamp")
	}
	if got := d.State().Phase; got != PhaseIdle {
		t.Fatalf("expected idle, got %s", got)
	}
}

func TestDispatcherToolLifecycle(t *testing.T) {
	d := NewDispatcher()
	d.BeginTurn("exec_1")
	apply(t, d, initEvent(), toolUseEvent("t1", "search", `{"q":"go"}`))

	state := d.State()
	if state.Phase != PhaseToolRunning || state.ToolID != "t1" {
		t.Fatalf("expected tool_running t1, got %s %s", state.Phase, state.ToolID)
	}

	// Repeated tool_use for the same id refreshes the input, no new record.
	apply(t, d, toolUseEvent("t1", "search", `{"q":"golang"}`))
	tools := d.Tools()
	if len(tools) != 1 {
		t.Fatalf("duplicate tool_use created a record: %d", len(tools))
	}
	if string(tools[0].Input) != `{"q":"golang"}` {
		t.Fatalf("input not updated: %s", tools[0].Input)
	}

	apply(t, d, toolResultEvent("t1", `{"hits":3}`, "success"))
	tools = d.Tools()
	if !tools[0].IsComplete || tools[0].IsCancelled {
		t.Fatalf("unexpected tool state: %+v", tools[0])
	}
	if got := d.State().Phase; got != PhaseResponding {
		t.Fatalf("expected responding after result, got %s", got)
	}
}

func TestDispatcherParallelTools(t *testing.T) {
	d := NewDispatcher()
	d.BeginTurn("exec_1")
	apply(t, d,
		initEvent(),
		toolUseEvent("t1", "search", `{}`),
		toolUseEvent("t2", "fetch", `{}`),
		toolResultEvent("t1", `{}`, "success"),
	)

	// t2 is still running.
	state := d.State()
	if state.Phase != PhaseToolRunning || state.ToolID != "t2" {
		t.Fatalf("expected tool_running t2, got %s %s", state.Phase, state.ToolID)
	}

	apply(t, d, toolResultEvent("t2", `{}`, "error"))
	tools := d.Tools()
	if !tools[1].IsCancelled {
		t.Fatal("error result should mark the tool cancelled")
	}
	if got := d.State().Phase; got != PhaseResponding {
		t.Fatalf("expected responding, got %s", got)
	}
}

func TestDispatcherErrorCancelsIncompleteTools(t *testing.T) {
	d := NewDispatcher()
	d.BeginTurn("exec_1")
	apply(t, d,
		initEvent(),
		responseEvent("partial"),
		toolUseEvent("t1", "search", `{}`),
		errorEvent("agent crashed"),
	)

	state := d.State()
	if state.Phase != PhaseError || state.ErrMessage != "agent crashed" {
		t.Fatalf("unexpected state: %+v", state)
	}
	tools := d.Tools()
	if !tools[0].IsComplete || !tools[0].IsCancelled {
		t.Fatalf("incomplete tool not cancelled: %+v", tools[0])
	}
	if !d.Messages()[0].Done {
		t.Fatal("streaming message not finalized on error")
	}
}

func TestDispatcherInterrupt(t *testing.T) {
	d := NewDispatcher()
	d.BeginTurn("exec_1")
	apply(t, d, initEvent(), &domain.AgentEvent{
		Type: domain.EventTypeInterrupt,
		Interrupt: &domain.InterruptPayload{Approvals: []domain.PendingApproval{
			{ApprovalID: "ap_1", ToolName: "delete_file"},
		}},
	})

	state := d.State()
	if state.Phase != PhaseInterrupted {
		t.Fatalf("expected interrupted, got %s", state.Phase)
	}
	if len(state.Pending) != 1 || state.Pending[0].ApprovalID != "ap_1" {
		t.Fatalf("unexpected pending approvals: %+v", state.Pending)
	}
}

func TestDispatcherReasoningAccumulates(t *testing.T) {
	d := NewDispatcher()
	d.BeginTurn("exec_1")
	apply(t, d,
		initEvent(),
		&domain.AgentEvent{Type: domain.EventTypeReasoning, Reasoning: &domain.ReasoningPayload{Text: "think"}},
		&domain.AgentEvent{Type: domain.EventTypeReasoning, Reasoning: &domain.ReasoningPayload{Text: "ing"}},
	)

	if got := d.Reasoning(); got != "thinking" {
		t.Fatalf("unexpected reasoning: %q", got)
	}
}

func TestDispatcherMetadataSetsExecutionID(t *testing.T) {
	d := NewDispatcher()
	d.BeginTurn("")

	apply(t, d, &domain.AgentEvent{Type: domain.EventTypeMetadata, Metadata: &domain.MetadataPayload{
		Name:  domain.MetaNameExecution,
		Value: json.RawMessage(`{"executionId":"exec_99"}`),
	}})

	if got := d.ExecutionID(); got != "exec_99" {
		t.Fatalf("execution id not captured: %q", got)
	}
}

func TestDispatcherNewMessagePerToolBoundary(t *testing.T) {
	d := NewDispatcher()
	d.BeginTurn("exec_1")
	apply(t, d,
		initEvent(),
		responseEvent("before"),
		toolUseEvent("t1", "search", `{}`),
		toolResultEvent("t1", `{}`, "success"),
		responseEvent("after"),
		completeEvent(),
	)

	msgs := d.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages around the tool call, got %d", len(msgs))
	}
	if msgs[0].Text != "before" || msgs[1].Text != "after" {
		t.Fatalf("unexpected messages: %q, %q", msgs[0].Text, msgs[1].Text)
	}
	if !msgs[0].Done || !msgs[1].Done {
		t.Fatal("messages not finalized")
	}
}
