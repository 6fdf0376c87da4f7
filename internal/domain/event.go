package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType represents the type of an agent stream event.
type EventType string

const (
	EventTypeInit       EventType = "init"
	EventTypeReasoning  EventType = "reasoning"
	EventTypeResponse   EventType = "response"
	EventTypeToolUse    EventType = "tool_use"
	EventTypeToolResult EventType = "tool_result"
	EventTypeInterrupt  EventType = "interrupt"
	EventTypeError      EventType = "error"
	EventTypeComplete   EventType = "complete"
	EventTypeMetadata   EventType = "metadata"

	// eventTypeCustom is the wire spelling used by the upstream agent for
	// out-of-band named payloads such as execution_meta.
	eventTypeCustom = "CUSTOM"
)

// MetaNameExecution is the metadata name carried by the frame that mints an
// execution id.
const MetaNameExecution = "execution_meta"

// ErrUnknownEventType is returned for event kinds outside the closed set.
// Callers log and drop these; they are never fatal to the stream.
var ErrUnknownEventType = errors.New("unknown event type")

// AgentEvent is the closed tagged union of agent stream events. Exactly one
// payload pointer is non-nil, matching Type.
type AgentEvent struct {
	Type       EventType
	Init       *InitPayload
	Reasoning  *ReasoningPayload
	Response   *ResponsePayload
	ToolUse    *ToolUsePayload
	ToolResult *ToolResultPayload
	Interrupt  *InterruptPayload
	Error      *ErrorPayload
	Complete   *CompletePayload
	Metadata   *MetadataPayload
}

// InitPayload is the data for an init event, emitted once at turn start.
type InitPayload struct {
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
}

// ReasoningPayload is the data for a reasoning token event.
type ReasoningPayload struct {
	Text string `json:"text"`
}

// ResponsePayload is the data for a response text delta.
type ResponsePayload struct {
	Text string `json:"text"`
}

// ToolUsePayload is the data for a tool_use event.
type ToolUsePayload struct {
	ToolUseID string          `json:"tool_use_id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// ToolResultPayload is the data for a tool_result event. Status is "success"
// or "error".
type ToolResultPayload struct {
	ToolUseID string          `json:"tool_use_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// PendingApproval describes one approval surfaced by an interrupt event.
type PendingApproval struct {
	ApprovalID string          `json:"approval_id"`
	ToolName   string          `json:"tool_name,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
}

// InterruptPayload is the data for an interrupt event.
type InterruptPayload struct {
	Approvals []PendingApproval `json:"approvals,omitempty"`
}

// ErrorPayload is the data for a terminal agent error event.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// UsageData represents token usage information.
type UsageData struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
	DurationMs       int `json:"duration_ms,omitempty"`
}

// CompletePayload is the data for a complete event.
type CompletePayload struct {
	Summary string     `json:"summary,omitempty"`
	Stopped bool       `json:"stopped,omitempty"`
	Usage   *UsageData `json:"usage,omitempty"`
}

// MetadataPayload is the data for a metadata or CUSTOM event.
type MetadataPayload struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value,omitempty"`
}

// executionMetaValue is the value payload of an execution_meta frame.
type executionMetaValue struct {
	ExecutionID string `json:"executionId"`
}

// ExecutionID extracts the execution id from an execution_meta payload.
// Returns "" when the payload is not an execution_meta or carries no id.
func (m *MetadataPayload) ExecutionID() string {
	if m == nil || m.Name != MetaNameExecution {
		return ""
	}
	var v executionMetaValue
	if err := json.Unmarshal(m.Value, &v); err != nil {
		return ""
	}
	return v.ExecutionID
}

// envelope is the wire shape shared by all event kinds.
type envelope struct {
	Type string `json:"type"`

	// Flattened per-kind fields. Only the ones matching Type are read.
	SessionID string            `json:"session_id,omitempty"`
	Model     string            `json:"model,omitempty"`
	Text      string            `json:"text,omitempty"`
	ToolUseID string            `json:"tool_use_id,omitempty"`
	Name      string            `json:"name,omitempty"`
	Input     json.RawMessage   `json:"input,omitempty"`
	Result    json.RawMessage   `json:"result,omitempty"`
	Status    string            `json:"status,omitempty"`
	Approvals []PendingApproval `json:"approvals,omitempty"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message,omitempty"`
	Summary   string            `json:"summary,omitempty"`
	Stopped   bool              `json:"stopped,omitempty"`
	Usage     *UsageData        `json:"usage,omitempty"`
	Value     json.RawMessage   `json:"value,omitempty"`
}

// ParseAgentEvent parses one frame's data payload into the event union,
// validating required fields per kind. Unknown kinds return
// ErrUnknownEventType so callers can drop them without failing the stream.
func ParseAgentEvent(data []byte) (*AgentEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse event payload: %w", err)
	}

	switch EventType(env.Type) {
	case EventTypeInit:
		return &AgentEvent{Type: EventTypeInit, Init: &InitPayload{
			SessionID: env.SessionID,
			Model:     env.Model,
		}}, nil

	case EventTypeReasoning:
		return &AgentEvent{Type: EventTypeReasoning, Reasoning: &ReasoningPayload{
			Text: env.Text,
		}}, nil

	case EventTypeResponse:
		return &AgentEvent{Type: EventTypeResponse, Response: &ResponsePayload{
			Text: env.Text,
		}}, nil

	case EventTypeToolUse:
		if env.ToolUseID == "" {
			return nil, fmt.Errorf("tool_use event missing tool_use_id")
		}
		if env.Name == "" {
			return nil, fmt.Errorf("tool_use event missing name")
		}
		return &AgentEvent{Type: EventTypeToolUse, ToolUse: &ToolUsePayload{
			ToolUseID: env.ToolUseID,
			Name:      env.Name,
			Input:     env.Input,
		}}, nil

	case EventTypeToolResult:
		if env.ToolUseID == "" {
			return nil, fmt.Errorf("tool_result event missing tool_use_id")
		}
		return &AgentEvent{Type: EventTypeToolResult, ToolResult: &ToolResultPayload{
			ToolUseID: env.ToolUseID,
			Result:    env.Result,
			Status:    env.Status,
		}}, nil

	case EventTypeInterrupt:
		return &AgentEvent{Type: EventTypeInterrupt, Interrupt: &InterruptPayload{
			Approvals: env.Approvals,
		}}, nil

	case EventTypeError:
		if env.Message == "" {
			return nil, fmt.Errorf("error event missing message")
		}
		return &AgentEvent{Type: EventTypeError, Error: &ErrorPayload{
			Code:    env.Code,
			Message: env.Message,
		}}, nil

	case EventTypeComplete:
		return &AgentEvent{Type: EventTypeComplete, Complete: &CompletePayload{
			Summary: env.Summary,
			Stopped: env.Stopped,
			Usage:   env.Usage,
		}}, nil

	case EventTypeMetadata:
		if env.Name == "" {
			return nil, fmt.Errorf("metadata event missing name")
		}
		return &AgentEvent{Type: EventTypeMetadata, Metadata: &MetadataPayload{
			Name:  env.Name,
			Value: env.Value,
		}}, nil
	}

	if env.Type == eventTypeCustom {
		// CUSTOM is the upstream spelling for named metadata payloads.
		if env.Name == "" {
			return nil, fmt.Errorf("CUSTOM event missing name")
		}
		return &AgentEvent{Type: EventTypeMetadata, Metadata: &MetadataPayload{
			Name:  env.Name,
			Value: env.Value,
		}}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
}
