package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
)

// Transport abstracts the relay's HTTP surface so the reconnect controller
// can be tested against a fake with no real network primitive.
type Transport interface {
	// StartTurn opens a live turn stream. The returned body is the raw
	// event-stream; the caller must close it.
	StartTurn(ctx context.Context, req *domain.TurnRequest, headers http.Header) (io.ReadCloser, error)

	// Resume opens a resume stream from the given cursor. An unknown
	// execution yields ErrNotFound; gateway-class failures yield a transient
	// HTTPStatusError.
	Resume(ctx context.Context, executionID string, cursor int64, headers http.Header) (io.ReadCloser, error)

	// Status probes an execution's lifecycle status.
	Status(ctx context.Context, executionID string, headers http.Header) (domain.ExecutionStatus, error)

	// Stop requests cancellation of an active turn.
	Stop(ctx context.Context, executionID string, headers http.Header) error
}

// HTTPTransport is the real Transport against a relay server.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPTransport creates a transport for the given relay base URL. The
// HTTP client carries no overall timeout; stream lifetime is bounded by the
// caller's context.
func NewHTTPTransport(baseURL string) *HTTPTransport {
	return &HTTPTransport{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// StartTurn implements Transport.
func (t *HTTPTransport) StartTurn(ctx context.Context, req *domain.TurnRequest, headers http.Header) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/turns/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	applyHeaders(httpReq, headers)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	return t.doStream(httpReq)
}

// Resume implements Transport.
func (t *HTTPTransport) Resume(ctx context.Context, executionID string, cursor int64, headers http.Header) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/v1/executions/%s/resume?cursor=%s",
		t.baseURL, executionID, strconv.FormatInt(cursor, 10))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	applyHeaders(httpReq, headers)
	httpReq.Header.Set("Accept", "text/event-stream")

	return t.doStream(httpReq)
}

// Status implements Transport.
func (t *HTTPTransport) Status(ctx context.Context, executionID string, headers http.Header) (domain.ExecutionStatus, error) {
	url := fmt.Sprintf("%s/v1/executions/%s/status", t.baseURL, executionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	applyHeaders(httpReq, headers)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to probe status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var status domain.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", fmt.Errorf("failed to decode status: %w", err)
	}
	return status.Status, nil
}

// Stop implements Transport.
func (t *HTTPTransport) Stop(ctx context.Context, executionID string, headers http.Header) error {
	url := fmt.Sprintf("%s/v1/executions/%s/stop", t.baseURL, executionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	applyHeaders(httpReq, headers)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to stop execution: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

// doStream executes a streaming request and maps error statuses.
func (t *HTTPTransport) doStream(req *http.Request) (io.ReadCloser, error) {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		err := statusError(resp)
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// statusError maps a non-200 response to the client error taxonomy: 404 is
// the terminal ErrNotFound, everything else carries its status code so
// IsTransient can classify it.
func statusError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &HTTPStatusError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

func applyHeaders(req *http.Request, headers http.Header) {
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
}
