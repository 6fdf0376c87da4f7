// Package domain defines the core domain models for the relay.
package domain

// ExecutionStatus represents the lifecycle status of an execution.
type ExecutionStatus string

const (
	ExecutionStatusActive    ExecutionStatus = "active"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusNotFound  ExecutionStatus = "not_found"
)

// TurnRequest is a request to start one chat turn against the upstream agent.
type TurnRequest struct {
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id,omitempty"`
	Message   InputMessage `json:"message"`
}

// InputMessage represents the input message content.
type InputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StatusResponse is the body of the status probe endpoint.
type StatusResponse struct {
	ExecutionID string          `json:"execution_id"`
	Status      ExecutionStatus `json:"status"`
}
