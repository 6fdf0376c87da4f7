package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StreamState is the persisted resume point of one session's in-flight turn.
// Cursor counts frames already durably applied by the dispatcher, not merely
// received.
type StreamState struct {
	ExecutionID string `json:"execution_id"`
	Cursor      int64  `json:"cursor"`
}

// CursorStore persists stream state keyed by session id. It must survive a
// process restart so a reloaded client can resume mid-turn.
type CursorStore interface {
	Save(sessionID string, state StreamState) error
	Load(sessionID string) (*StreamState, error)
	Clear(sessionID string) error
}

// FileCursorStore persists stream state as one JSON file per session.
type FileCursorStore struct {
	dir string
}

// NewFileCursorStore creates the backing directory if needed.
func NewFileCursorStore(dir string) (*FileCursorStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cursor dir: %w", err)
	}
	return &FileCursorStore{dir: dir}, nil
}

func (s *FileCursorStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Save writes the state atomically via a temp file rename.
func (s *FileCursorStore) Save(sessionID string, state StreamState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal stream state: %w", err)
	}

	tmp := s.path(sessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write stream state: %w", err)
	}
	return os.Rename(tmp, s.path(sessionID))
}

// Load returns nil when no state is persisted for the session.
func (s *FileCursorStore) Load(sessionID string) (*StreamState, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream state: %w", err)
	}

	var state StreamState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse stream state: %w", err)
	}
	return &state, nil
}

// Clear removes the persisted state; clearing a missing state is not an error.
func (s *FileCursorStore) Clear(sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MemoryCursorStore is an in-memory CursorStore for tests.
type MemoryCursorStore struct {
	mu     sync.Mutex
	states map[string]StreamState
}

// NewMemoryCursorStore creates an empty in-memory store.
func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{states: make(map[string]StreamState)}
}

func (s *MemoryCursorStore) Save(sessionID string, state StreamState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionID] = state
	return nil
}

func (s *MemoryCursorStore) Load(sessionID string) (*StreamState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[sessionID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *MemoryCursorStore) Clear(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}
