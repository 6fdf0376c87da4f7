package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			turn_count INTEGER NOT NULL DEFAULT 0,
			total_frames INTEGER NOT NULL DEFAULT 0,
			total_bytes INTEGER NOT NULL DEFAULT 0,
			last_execution_id TEXT,
			last_turn_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, created_at) VALUES (?, ?, ?)`,
		session.SessionID, session.UserID, session.CreatedAt)
	return err
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	var lastExecutionID sql.NullString
	var lastTurnAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, created_at, turn_count, total_frames, total_bytes, last_execution_id, last_turn_at
		 FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&session.SessionID, &session.UserID, &session.CreatedAt,
			&session.TurnCount, &session.TotalFrames, &session.TotalBytes, &lastExecutionID, &lastTurnAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastExecutionID.Valid {
		session.LastExecutionID = lastExecutionID.String
	}
	if lastTurnAt.Valid {
		session.LastTurnAt = lastTurnAt.Time
	}
	return &session, nil
}

// GetOrCreateSession retrieves a session, creating it if missing.
func (s *SQLiteStore) GetOrCreateSession(ctx context.Context, sessionID, userID string) (*Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &Session{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	if err := s.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// RecordTurn increments a session's turn counters after a completed turn.
func (s *SQLiteStore) RecordTurn(ctx context.Context, sessionID, executionID string, frames, bytes int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET turn_count = turn_count + 1,
		     total_frames = total_frames + ?,
		     total_bytes = total_bytes + ?,
		     last_execution_id = ?,
		     last_turn_at = ?
		 WHERE session_id = ?`,
		frames, bytes, executionID, time.Now(), sessionID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}
