package client

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestSendTurnLiveStream(t *testing.T) {
	cursors := NewMemoryCursorStore()
	ft := &fakeTransport{
		startWire: ackWire() +
			metaWire("exec_1") +
			responseWire("Hello") +
			responseWire(", world") +
			completeWire(),
	}
	chat := NewChatClient(ft, cursors, "sess_1", "alice", "")

	if err := chat.SendTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("SendTurn failed: %v", err)
	}

	msgs := chat.Dispatcher().Messages()
	if len(msgs) != 1 || msgs[0].Text != "Hello, world" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	if !msgs[0].Done {
		t.Fatal("message not finalized")
	}
	if got := chat.Dispatcher().ExecutionID(); got != "exec_1" {
		t.Fatalf("execution id not captured: %q", got)
	}

	// The turn finished cleanly, so no resume state lingers.
	state, _ := cursors.Load("sess_1")
	if state != nil {
		t.Fatalf("stream state not cleared: %+v", state)
	}
}

func TestSendTurnDisconnectThenResume(t *testing.T) {
	cursors := NewMemoryCursorStore()
	netErr := &net.OpError{Op: "read", Err: errors.New("connection reset")}
	ft := &fakeTransport{
		// Live stream drops after the meta frame and the first delta.
		startWire:   metaWire("exec_1") + responseWire("Hello"),
		startMidErr: netErr,
		steps: []resumeStep{
			{wire: responseWire(", world") + completeWire()},
		},
	}
	chat := NewChatClient(ft, cursors, "sess_1", "alice", "")

	if err := chat.SendTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("SendTurn failed: %v", err)
	}

	// The live stream committed meta + first delta, so the resume starts at 2.
	got := ft.resumeCursors()
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected resume from cursor 2, got %v", got)
	}

	msgs := chat.Dispatcher().Messages()
	if len(msgs) != 1 || msgs[0].Text != "Hello, world" {
		t.Fatalf("message not stitched across reconnect: %+v", msgs)
	}

	state, _ := cursors.Load("sess_1")
	if state != nil {
		t.Fatalf("stream state not cleared after resumed finish: %+v", state)
	}
}

func TestSendTurnServerSessionError(t *testing.T) {
	ft := &fakeTransport{
		startWire: "event: session_error\ndata: {\"type\":\"error\",\"code\":\"session_error\",\"message\":\"upstream unreachable\"}\n\n",
	}
	chat := NewChatClient(ft, NewMemoryCursorStore(), "sess_1", "alice", "")

	err := chat.SendTurn(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error for session_error frame")
	}
}

func TestStopRequiresActiveExecution(t *testing.T) {
	ft := &fakeTransport{}
	chat := NewChatClient(ft, NewMemoryCursorStore(), "sess_1", "alice", "")

	if err := chat.Stop(context.Background()); err == nil {
		t.Fatal("expected error with no active execution")
	}
}

func TestStopTargetsCurrentExecution(t *testing.T) {
	ft := &fakeTransport{
		startWire: metaWire("exec_7") + responseWire("x") + completeWire(),
	}
	chat := NewChatClient(ft, NewMemoryCursorStore(), "sess_1", "alice", "")

	if err := chat.SendTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("SendTurn failed: %v", err)
	}
	if err := chat.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if len(ft.stopped) != 1 || ft.stopped[0] != "exec_7" {
		t.Fatalf("unexpected stop targets: %v", ft.stopped)
	}
}
