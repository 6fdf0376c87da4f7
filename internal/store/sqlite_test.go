package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.GetOrCreateSession(ctx, "sess_1", "alice")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	if session.SessionID != "sess_1" || session.UserID != "alice" {
		t.Fatalf("unexpected session: %+v", session)
	}

	// Second call returns the existing row.
	again, err := s.GetOrCreateSession(ctx, "sess_1", "someone_else")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	if again.UserID != "alice" {
		t.Fatalf("existing session overwritten: %+v", again)
	}
}

func TestGetSessionMissing(t *testing.T) {
	s := newTestStore(t)

	session, err := s.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session != nil {
		t.Fatalf("expected nil for missing session, got %+v", session)
	}
}

func TestRecordTurn(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreateSession(ctx, "sess_1", "alice"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}

	if err := s.RecordTurn(ctx, "sess_1", "exec_1", 7, 1024); err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}
	if err := s.RecordTurn(ctx, "sess_1", "exec_2", 3, 256); err != nil {
		t.Fatalf("RecordTurn failed: %v", err)
	}

	session, err := s.GetSession(ctx, "sess_1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.TurnCount != 2 {
		t.Fatalf("expected 2 turns, got %d", session.TurnCount)
	}
	if session.TotalFrames != 10 || session.TotalBytes != 1280 {
		t.Fatalf("unexpected counters: frames=%d bytes=%d", session.TotalFrames, session.TotalBytes)
	}
	if session.LastExecutionID != "exec_2" {
		t.Fatalf("unexpected last execution: %s", session.LastExecutionID)
	}
	if session.LastTurnAt.IsZero() || time.Since(session.LastTurnAt) > time.Minute {
		t.Fatalf("last_turn_at not set: %v", session.LastTurnAt)
	}
}

func TestRecordTurnUnknownSession(t *testing.T) {
	s := newTestStore(t)
	if err := s.RecordTurn(context.Background(), "nope", "exec_1", 1, 1); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
