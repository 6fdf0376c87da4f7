package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/sse"
)

// State is the reconnect controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateDisconnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// DispatchFunc applies one agent event. A nil return means the event was
// durably applied and its cursor position may be committed.
type DispatchFunc func(ev *domain.AgentEvent) error

// Callbacks notify the embedding application of reconnect progress. All
// fields are optional.
type Callbacks struct {
	// OnConnected fires when a resume stream is established, with the
	// attempt number that succeeded.
	OnConnected func(attempt int)
	// OnSuccess fires when the resumed stream drains to a clean end.
	OnSuccess func()
	// OnFailure fires when reconnection is abandoned.
	OnFailure func(err error)
}

// Controller manages stream state persistence and reconnection for one
// session. It survives process restarts through its CursorStore: a reloaded
// client constructs a fresh Controller over the same store and calls
// AttemptReconnect to pick up the in-flight turn.
type Controller struct {
	transport Transport
	cursors   CursorStore
	sessionID string
	backoff   BackoffConfig

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	state  State
	execID string
	cursor int64
}

// NewController creates a controller for the session. The transport and
// cursor store must not be nil.
func NewController(transport Transport, cursors CursorStore, sessionID string, backoff BackoffConfig) *Controller {
	return &Controller{
		transport: transport,
		cursors:   cursors,
		sessionID: sessionID,
		backoff:   backoff,
		sleep:     sleepContext,
		state:     StateIdle,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cursor returns the number of buffered frames durably applied so far.
func (c *Controller) Cursor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// OnStreamStart records that a live turn stream has begun for the given
// execution, persisting a zero cursor so a crash before any frame still
// resumes from the beginning.
func (c *Controller) OnStreamStart(executionID string) error {
	c.mu.Lock()
	c.state = StateStreaming
	c.execID = executionID
	c.cursor = 0
	c.mu.Unlock()

	return c.cursors.Save(c.sessionID, StreamState{ExecutionID: executionID, Cursor: 0})
}

// CommitFrame advances and persists the cursor after the dispatcher has
// applied one buffered frame. Control frames must not be committed.
func (c *Controller) CommitFrame() error {
	c.mu.Lock()
	c.cursor++
	state := StreamState{ExecutionID: c.execID, Cursor: c.cursor}
	c.mu.Unlock()

	return c.cursors.Save(c.sessionID, state)
}

// MarkDisconnected records that the live stream dropped before completion.
func (c *Controller) MarkDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateDisconnected
}

// Reset clears the persisted stream state after a turn finishes cleanly.
func (c *Controller) Reset() error {
	c.mu.Lock()
	c.state = StateIdle
	c.execID = ""
	c.cursor = 0
	c.mu.Unlock()

	return c.cursors.Clear(c.sessionID)
}

// AttemptReconnect loads the persisted stream state and replays the turn from
// the saved cursor, retrying transient failures with jittered exponential
// backoff. Each applied frame commits its cursor before the next is
// dispatched, so a crash mid-replay never re-applies more than the frame in
// flight.
//
// Terminal outcomes: ErrNoPersistedStream when nothing was persisted,
// ErrNotFound when the server evicted the execution, the dispatch error when
// the dispatcher rejects a frame, and the last transport error once attempts
// are exhausted. A context cancellation aborts silently without firing
// OnFailure.
func (c *Controller) AttemptReconnect(ctx context.Context, dispatch DispatchFunc, headers http.Header, cb Callbacks) error {
	state, err := c.cursors.Load(c.sessionID)
	if err != nil {
		return fmt.Errorf("failed to load stream state: %w", err)
	}
	if state == nil {
		return ErrNoPersistedStream
	}

	c.mu.Lock()
	c.execID = state.ExecutionID
	c.cursor = state.Cursor
	c.state = StateReconnecting
	c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= c.backoff.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.sleep(ctx, c.backoff.Delay(attempt-1)); err != nil {
				c.setState(StateDisconnected)
				return err
			}
		}

		cursor := c.Cursor()
		body, err := c.transport.Resume(ctx, state.ExecutionID, cursor, headers)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				c.setState(StateDisconnected)
				return err
			}
			if !IsTransient(err) {
				return c.fail(err, cb)
			}
			log.Printf("WARN: Resume attempt %d for %s failed: %v", attempt, state.ExecutionID, err)
			lastErr = err
			continue
		}

		if cb.OnConnected != nil {
			cb.OnConnected(attempt)
		}
		c.setState(StateStreaming)

		err = c.consume(ctx, body, dispatch)
		if err == nil {
			if clearErr := c.Reset(); clearErr != nil {
				log.Printf("WARN: Failed to clear stream state for %s: %v", c.sessionID, clearErr)
			}
			if cb.OnSuccess != nil {
				cb.OnSuccess()
			}
			return nil
		}

		if errors.Is(err, context.Canceled) {
			c.setState(StateDisconnected)
			return err
		}
		if !IsTransient(err) {
			return c.fail(err, cb)
		}

		log.Printf("WARN: Resume stream for %s dropped: %v", state.ExecutionID, err)
		c.setState(StateReconnecting)
		lastErr = err
		// A connection that delivered frames earns a fresh attempt budget.
		if c.Cursor() > cursor {
			attempt = 0
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("reconnect attempts exhausted")
	}
	return c.fail(fmt.Errorf("failed to reconnect after %d attempts: %w", c.backoff.MaxAttempts, lastErr), cb)
}

// consume drains one resume stream: parses frames, skips control frames,
// dispatches buffered events in order, and commits the cursor after each
// successful dispatch. Returns nil on a clean end of stream.
func (c *Controller) consume(ctx context.Context, body io.ReadCloser, dispatch DispatchFunc) error {
	defer body.Close()

	parser := sse.NewParser()
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, frame := range parser.Feed(buf[:n]) {
				if err := c.applyFrame(frame, dispatch); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return readErr
		}
	}
}

// applyFrame dispatches one frame and commits its cursor. Control frames are
// consumed without advancing the cursor; malformed buffered frames are logged
// and committed so replay cannot loop on them forever.
func (c *Controller) applyFrame(frame sse.Frame, dispatch DispatchFunc) error {
	switch frame.Event {
	case sse.EventConnectionAck:
		return nil
	case sse.EventSessionError:
		return fmt.Errorf("session error from relay: %s", frame.Data)
	}

	ev, err := domain.ParseAgentEvent(frame.Data)
	if err != nil {
		log.Printf("WARN: Skipping unparseable frame: %v", err)
		return c.CommitFrame()
	}

	if err := dispatch(ev); err != nil {
		return fmt.Errorf("failed to dispatch event: %w", err)
	}
	return c.CommitFrame()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Controller) fail(err error, cb Callbacks) error {
	c.setState(StateFailed)
	if cb.OnFailure != nil {
		cb.OnFailure(err)
	}
	return err
}
