package v1

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/buffer"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
)

// Resume replays an execution's buffered frames from a cursor, then keeps
// tailing until the execution completes or the request is cancelled.
// GET /v1/executions/:execution_id/resume?cursor=N
//
// An unknown execution id is a distinct, non-retryable outcome (404); clients
// must not enter a retry loop on it.
func (h *Handler) Resume(c echo.Context) error {
	ctx := c.Request().Context()
	executionID := c.Param("execution_id")

	cursor := int64(0)
	if raw := c.QueryParam("cursor"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid cursor"})
		}
		cursor = parsed
	}

	if !h.authorize(c, "", executionID) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "access denied"})
	}

	frames, err := h.svc.Buffer().Subscribe(ctx, executionID, cursor)
	if err != nil {
		if errors.Is(err, buffer.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "execution not found"})
		}
		log.Printf("ERROR: failed to subscribe to execution %s: %v", executionID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to subscribe"})
	}

	writeStreamHeaders(c, "")

	ds, err := newSSEDownstream(c)
	if err != nil {
		return err
	}

	for frame := range frames {
		if err := ds.WriteFrame(frame.Raw); err != nil {
			// Client gone; the subscription is torn down by the request
			// context.
			return nil
		}
	}
	return nil
}

// Status reports whether an execution is active, completed or unknown.
// GET /v1/executions/:execution_id/status
//
// Clients probe this before opening a full resume connection.
func (h *Handler) Status(c echo.Context) error {
	executionID := c.Param("execution_id")

	if !h.authorize(c, "", executionID) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "access denied"})
	}

	return c.JSON(http.StatusOK, domain.StatusResponse{
		ExecutionID: executionID,
		Status:      h.svc.Buffer().Status(executionID),
	})
}

// Stop cancels an active turn's upstream stream on behalf of the user.
// POST /v1/executions/:execution_id/stop
func (h *Handler) Stop(c echo.Context) error {
	executionID := c.Param("execution_id")

	if !h.authorize(c, "", executionID) {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "access denied"})
	}

	if err := h.svc.Stop(executionID); err != nil {
		if errors.Is(err, buffer.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "execution not found"})
		}
		log.Printf("ERROR: failed to stop execution %s: %v", executionID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to stop"})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "stopping"})
}
