package v1

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
)

// StreamTurn starts one chat turn and relays the agent stream to the caller.
// POST /v1/turns/stream
//
// The handler returns when the upstream stream ends, not when the client
// disconnects: the relay keeps draining into the execution buffer so a later
// resume sees the complete record.
func (h *Handler) StreamTurn(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.TurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "session_id is required"})
	}
	if req.Message.Content == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message.content is required"})
	}

	ident := identityFrom(c)
	req.UserID = ident.UserID

	if !h.authorize(c, req.SessionID, "") {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "access denied"})
	}

	if h.store != nil {
		if _, err := h.store.GetOrCreateSession(ctx, req.SessionID, ident.UserID); err != nil {
			// Session metadata is best effort; the turn proceeds without it.
			log.Printf("WARN: failed to get/create session %s: %v", req.SessionID, err)
		}
	}

	writeStreamHeaders(c, req.SessionID)

	ds, err := newSSEDownstream(c)
	if err != nil {
		return err
	}

	if err := h.svc.StreamTurn(&req, ds); err != nil {
		log.Printf("ERROR: turn stream for session %s failed: %v", req.SessionID, err)
	}
	return nil
}

// writeStreamHeaders sets the event-stream response headers: caching off, an
// explicit do-not-buffer signal for intermediaries, and the session id for
// the client to persist.
func writeStreamHeaders(c echo.Context, sessionID string) {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	if sessionID != "" {
		c.Response().Header().Set("X-Session-ID", sessionID)
	}
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
}

// sseDownstream adapts the echo response to the relay's downstream interface.
// Writes fail once the request context is done so a client abort is detected
// promptly instead of on the next TCP error.
type sseDownstream struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEDownstream(c echo.Context) (*sseDownstream, error) {
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseDownstream{
		ctx:     c.Request().Context(),
		w:       c.Response().Writer,
		flusher: flusher,
	}, nil
}

func (d *sseDownstream) WriteFrame(raw []byte) error {
	return d.write(raw)
}

func (d *sseDownstream) WriteControl(raw []byte) error {
	return d.write(raw)
}

func (d *sseDownstream) write(raw []byte) error {
	select {
	case <-d.ctx.Done():
		return d.ctx.Err()
	default:
	}

	if _, err := d.w.Write(raw); err != nil {
		return err
	}
	d.flusher.Flush()
	return nil
}
