// Package client implements the browser-equivalent side of the relay: the
// event dispatcher that drives chat-turn state, the reconnect controller
// that survives disconnects and reloads, and the HTTP transport they share.
package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
)

// Phase is the discriminant of the chat-turn state. Exactly one phase is
// active per turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseThinking
	PhaseResponding
	PhaseToolRunning
	PhaseInterrupted
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseThinking:
		return "thinking"
	case PhaseResponding:
		return "responding"
	case PhaseToolRunning:
		return "tool_running"
	case PhaseInterrupted:
		return "interrupted"
	case PhaseError:
		return "error"
	}
	return "unknown"
}

// TurnState is a snapshot of the chat-turn state machine.
type TurnState struct {
	Phase      Phase
	ToolID     string                   // set when Phase is PhaseToolRunning
	Pending    []domain.PendingApproval // set when Phase is PhaseInterrupted
	ErrMessage string                   // set when Phase is PhaseError
}

// Message is one assistant chat message assembled from response deltas.
type Message struct {
	ID           string
	Text         string
	Done         bool
	StartedAt    time.Time
	FirstTokenAt time.Time
	CompletedAt  time.Time
	TTFTMs       int64
	LatencyMs    int64
}

// ToolExecutionRecord tracks one tool invocation across tool_use and
// tool_result events.
type ToolExecutionRecord struct {
	ID          string
	Name        string
	Input       json.RawMessage
	Result      json.RawMessage
	IsComplete  bool
	IsCancelled bool
}

// turnContext is the per-turn state threaded through the dispatcher instead
// of being captured in ambient mutable cells.
type turnContext struct {
	currentMessageID   string
	currentExecutionID string
	cursor             int64
	initAt             time.Time
	completeProcessed  bool
}

// Dispatcher consumes the strictly ordered agent event sequence and drives
// the chat-turn state. It is safe for concurrent use: the stream goroutine
// applies events while the UI reads snapshots.
type Dispatcher struct {
	mu sync.Mutex

	phase     Phase
	turn      turnContext
	messages  []*Message
	msgIndex  map[string]*Message
	tools     map[string]*ToolExecutionRecord
	toolOrder []string
	pending   []domain.PendingApproval
	errMsg    string
	reasoning string

	newID func() string
}

// NewDispatcher creates a dispatcher in the idle phase.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		phase:    PhaseIdle,
		msgIndex: make(map[string]*Message),
		tools:    make(map[string]*ToolExecutionRecord),
		newID: func() string {
			return "msg_" + uuid.New().String()[:8]
		},
	}
}

// BeginTurn resets the per-turn context for a new execution. Messages and
// tool records from earlier turns are kept; the processed flag and streaming
// context start fresh.
func (d *Dispatcher) BeginTurn(executionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.turn = turnContext{currentExecutionID: executionID}
	d.pending = nil
	d.errMsg = ""
	d.phase = PhaseIdle
}

// Apply processes one event and advances the turn state. Events arrive in
// append order; Apply returning nil means the event has been durably applied
// and the caller may commit its cursor.
func (d *Dispatcher) Apply(ev *domain.AgentEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Type {
	case domain.EventTypeInit:
		d.phase = PhaseThinking
		d.turn.initAt = time.Now()
		d.turn.completeProcessed = false

	case domain.EventTypeReasoning:
		d.reasoning += ev.Reasoning.Text

	case domain.EventTypeResponse:
		d.applyDelta(ev.Response.Text)

	case domain.EventTypeToolUse:
		d.finalizeStreamingMessage()
		d.applyToolUse(ev.ToolUse)

	case domain.EventTypeToolResult:
		d.applyToolResult(ev.ToolResult)

	case domain.EventTypeInterrupt:
		d.finalizeStreamingMessage()
		d.pending = ev.Interrupt.Approvals
		d.phase = PhaseInterrupted

	case domain.EventTypeError:
		d.finalizeStreamingMessage()
		d.errMsg = ev.Error.Message
		d.cancelIncompleteTools()
		d.phase = PhaseError

	case domain.EventTypeComplete:
		if d.turn.completeProcessed {
			return nil
		}
		d.turn.completeProcessed = true
		d.completeTurn()
		d.phase = PhaseIdle

	case domain.EventTypeMetadata:
		if id := ev.Metadata.ExecutionID(); id != "" && d.turn.currentExecutionID == "" {
			d.turn.currentExecutionID = id
		}
	}

	return nil
}

// applyDelta opens the turn's streaming message on the first delta and
// appends on subsequent ones. At most one streaming message is in flight.
func (d *Dispatcher) applyDelta(text string) {
	if d.turn.currentMessageID == "" {
		msg := &Message{
			ID:           d.newID(),
			StartedAt:    time.Now(),
			FirstTokenAt: time.Now(),
		}
		if !d.turn.initAt.IsZero() {
			msg.TTFTMs = time.Since(d.turn.initAt).Milliseconds()
		}
		d.messages = append(d.messages, msg)
		d.msgIndex[msg.ID] = msg
		d.turn.currentMessageID = msg.ID
	}

	d.msgIndex[d.turn.currentMessageID].Text += text
	d.phase = PhaseResponding
}

// applyToolUse creates the tool record, or updates its input when the same
// tool id is repeated, and moves the turn to tool running.
func (d *Dispatcher) applyToolUse(p *domain.ToolUsePayload) {
	if record, ok := d.tools[p.ToolUseID]; ok {
		record.Input = p.Input
	} else {
		d.tools[p.ToolUseID] = &ToolExecutionRecord{
			ID:    p.ToolUseID,
			Name:  p.Name,
			Input: p.Input,
		}
		d.toolOrder = append(d.toolOrder, p.ToolUseID)
	}
	d.phase = PhaseToolRunning
}

// applyToolResult completes the record (cancelled iff the result status is
// error) and leaves tool running only while other tools are still pending.
func (d *Dispatcher) applyToolResult(p *domain.ToolResultPayload) {
	record, ok := d.tools[p.ToolUseID]
	if !ok {
		// Result for an unknown tool id; create a completed record so the
		// data is not lost.
		record = &ToolExecutionRecord{ID: p.ToolUseID}
		d.tools[p.ToolUseID] = record
		d.toolOrder = append(d.toolOrder, p.ToolUseID)
	}
	record.Result = p.Result
	record.IsComplete = true
	record.IsCancelled = p.Status == "error"

	if id := d.firstIncompleteTool(); id != "" {
		d.phase = PhaseToolRunning
	} else if d.phase == PhaseToolRunning {
		d.phase = PhaseResponding
	}
}

// completeTurn finalizes the streaming message and attaches latency metrics.
func (d *Dispatcher) completeTurn() {
	if id := d.turn.currentMessageID; id != "" {
		msg := d.msgIndex[id]
		msg.CompletedAt = time.Now()
		if !d.turn.initAt.IsZero() {
			msg.LatencyMs = time.Since(d.turn.initAt).Milliseconds()
		}
	}
	d.finalizeStreamingMessage()
}

// finalizeStreamingMessage closes the in-flight streaming message, if any.
func (d *Dispatcher) finalizeStreamingMessage() {
	if id := d.turn.currentMessageID; id != "" {
		d.msgIndex[id].Done = true
		d.turn.currentMessageID = ""
	}
}

// cancelIncompleteTools forces still-incomplete tool records to cancelled so
// nothing spins indefinitely after a terminal error.
func (d *Dispatcher) cancelIncompleteTools() {
	for _, record := range d.tools {
		if !record.IsComplete {
			record.IsComplete = true
			record.IsCancelled = true
		}
	}
}

func (d *Dispatcher) firstIncompleteTool() string {
	for _, id := range d.toolOrder {
		if !d.tools[id].IsComplete {
			return id
		}
	}
	return ""
}

// State returns a snapshot of the turn state.
func (d *Dispatcher) State() TurnState {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := TurnState{Phase: d.phase}
	switch d.phase {
	case PhaseToolRunning:
		state.ToolID = d.firstIncompleteTool()
	case PhaseInterrupted:
		state.Pending = append([]domain.PendingApproval(nil), d.pending...)
	case PhaseError:
		state.ErrMessage = d.errMsg
	}
	return state
}

// Messages returns a snapshot of the assembled chat messages, in order.
func (d *Dispatcher) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Message, len(d.messages))
	for i, msg := range d.messages {
		out[i] = *msg
	}
	return out
}

// Tools returns a snapshot of the tool execution records, in first-use order.
func (d *Dispatcher) Tools() []ToolExecutionRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]ToolExecutionRecord, 0, len(d.toolOrder))
	for _, id := range d.toolOrder {
		out = append(out, *d.tools[id])
	}
	return out
}

// Reasoning returns the accumulated reasoning text for the turn.
func (d *Dispatcher) Reasoning() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reasoning
}

// ExecutionID returns the execution id of the current turn, if known.
func (d *Dispatcher) ExecutionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.turn.currentExecutionID
}
