// Package store defines the session-metadata store interface and its SQLite
// implementation. The store is a best-effort collaborator: the relay records
// post-turn counters fire-and-forget and never depends on the result.
package store

import (
	"context"
	"time"
)

// Session holds per-session metadata and turn counters.
type Session struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
	TurnCount       int64     `json:"turn_count"`
	TotalFrames     int64     `json:"total_frames"`
	TotalBytes      int64     `json:"total_bytes"`
	LastExecutionID string    `json:"last_execution_id,omitempty"`
	LastTurnAt      time.Time `json:"last_turn_at"`
}

// Store defines the interface for session-metadata persistence.
type Store interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	GetOrCreateSession(ctx context.Context, sessionID, userID string) (*Session, error)
	RecordTurn(ctx context.Context, sessionID, executionID string, frames, bytes int64) error
	Close() error
}
