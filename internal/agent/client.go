// Package agent provides the HTTP client for opening an upstream agent
// stream for one chat turn.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
)

// Client is an HTTP client for the upstream agent process.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a new agent client. The stream is long-lived, so the
// underlying HTTP client carries no overall timeout; lifetime is bounded by
// the caller's context.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{},
	}
}

// Invoke starts one turn against the agent's /invoke endpoint and returns the
// raw event-stream body. The caller owns the body and must close it; the
// stream is torn down when ctx is cancelled.
func (c *Client) Invoke(ctx context.Context, req *domain.TurnRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/invoke", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Session-ID", req.SessionID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke agent: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return resp.Body, nil
}
