package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/sse"
)

// ChatClient ties the transport, reconnect controller and dispatcher into a
// ready-to-use chat session. One ChatClient serves one session id.
type ChatClient struct {
	transport  Transport
	controller *Controller
	dispatcher *Dispatcher
	sessionID  string
	userID     string
	token      string
}

// NewChatClient creates a chat client for the session. cursors must be a
// durable store when resume across process restarts is wanted; tests pass a
// MemoryCursorStore.
func NewChatClient(transport Transport, cursors CursorStore, sessionID, userID, token string) *ChatClient {
	return &ChatClient{
		transport:  transport,
		controller: NewController(transport, cursors, sessionID, DefaultBackoffConfig()),
		dispatcher: NewDispatcher(),
		sessionID:  sessionID,
		userID:     userID,
		token:      token,
	}
}

// Dispatcher exposes the turn state for rendering.
func (c *ChatClient) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Controller exposes the reconnect controller, mainly for state inspection.
func (c *ChatClient) Controller() *Controller {
	return c.controller
}

func (c *ChatClient) headers() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// SendTurn streams one chat turn to completion. On a mid-turn disconnect it
// automatically resumes from the committed cursor with backoff; the returned
// error is terminal (reconnect exhausted, server-side turn error, or abort).
func (c *ChatClient) SendTurn(ctx context.Context, message string) error {
	req := &domain.TurnRequest{
		SessionID: c.sessionID,
		UserID:    c.userID,
		Message:   domain.InputMessage{Role: "user", Content: message},
	}
	c.dispatcher.BeginTurn("")

	body, err := c.transport.StartTurn(ctx, req, c.headers())
	if err != nil {
		return fmt.Errorf("failed to start turn: %w", err)
	}

	err = c.liveLoop(ctx, body)
	if err == nil {
		return c.controller.Reset()
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if !IsTransient(err) {
		return err
	}

	// The live stream dropped mid-turn. The server keeps draining into its
	// buffer, so resume from where the dispatcher left off.
	log.Printf("INFO: live stream dropped, resuming: %v", err)
	c.controller.MarkDisconnected()
	return c.Reconnect(ctx, Callbacks{})
}

// Reconnect resumes the persisted in-flight turn, if any. Call this after a
// process restart before sending new turns; ErrNoPersistedStream means there
// is nothing to pick up.
func (c *ChatClient) Reconnect(ctx context.Context, cb Callbacks) error {
	return c.controller.AttemptReconnect(ctx, c.dispatcher.Apply, c.headers(), cb)
}

// Stop requests cancellation of the in-flight turn on the server.
func (c *ChatClient) Stop(ctx context.Context) error {
	execID := c.dispatcher.ExecutionID()
	if execID == "" {
		return fmt.Errorf("no active execution to stop")
	}
	return c.transport.Stop(ctx, execID, c.headers())
}

// liveLoop drains a live turn stream. Frames before the execution metadata
// are applied but not committed; they are not in the server's buffer. The
// metadata frame and everything after it commit the cursor after dispatch.
func (c *ChatClient) liveLoop(ctx context.Context, body io.ReadCloser) error {
	defer body.Close()

	parser := sse.NewParser()
	buffered := false
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, frame := range parser.Feed(buf[:n]) {
				if err := c.applyLiveFrame(frame, &buffered); err != nil {
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

func (c *ChatClient) applyLiveFrame(frame sse.Frame, buffered *bool) error {
	switch frame.Event {
	case sse.EventConnectionAck:
		return nil
	case sse.EventSessionError:
		return fmt.Errorf("session error from relay: %s", frame.Data)
	}

	ev, err := domain.ParseAgentEvent(frame.Data)
	if err != nil {
		log.Printf("WARN: Skipping unparseable frame: %v", err)
		if *buffered {
			return c.controller.CommitFrame()
		}
		return nil
	}

	if !*buffered {
		if id := executionIDOf(ev); id != "" {
			*buffered = true
			if err := c.controller.OnStreamStart(id); err != nil {
				log.Printf("WARN: Failed to persist stream state: %v", err)
			}
		}
	}

	if err := c.dispatcher.Apply(ev); err != nil {
		return fmt.Errorf("failed to dispatch event: %w", err)
	}
	if *buffered {
		return c.controller.CommitFrame()
	}
	return nil
}

func executionIDOf(ev *domain.AgentEvent) string {
	if ev.Type != domain.EventTypeMetadata {
		return ""
	}
	return ev.Metadata.ExecutionID()
}
