package v1

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/auth"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/buffer"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/config"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/policy"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/relay"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/sse"
)

// fakeUpstream serves a fixed wire stream for every turn.
type fakeUpstream struct {
	wire string
}

func (u *fakeUpstream) Invoke(ctx context.Context, req *domain.TurnRequest) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(u.wire)), nil
}

func metaWire(execID string) string {
	return fmt.Sprintf("event: metadata\ndata: {\"type\":\"metadata\",\"name\":\"execution_meta\",\"value\":{\"executionId\":%q}}\n\n", execID)
}

func responseWire(text string) string {
	return fmt.Sprintf("event: response\ndata: {\"type\":\"response\",\"text\":%q}\n\n", text)
}

func completeWire() string {
	return "event: complete\ndata: {\"type\":\"complete\"}\n\n"
}

type testServer struct {
	echo *echo.Echo
	buf  *buffer.Buffer
}

func newTestServer(t *testing.T, upstreamWire, apiKeys, policySrc string) *testServer {
	t.Helper()

	buf := buffer.New(time.Hour)
	svc := relay.New(buf, &fakeUpstream{wire: upstreamWire}, nil, time.Minute, time.Minute)

	var engine *policy.Engine
	if policySrc != "" {
		var err error
		engine, err = policy.NewEngine(context.Background(), policySrc)
		require.NoError(t, err)
	}

	h := NewHandler(svc, nil, auth.NewStaticResolver(apiKeys), engine, &config.Config{})
	e := echo.New()
	h.RegisterRoutes(e)

	return &testServer{echo: e, buf: buf}
}

func (ts *testServer) request(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "", "", "")
	rec := ts.request(http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestStreamTurnEndToEnd(t *testing.T) {
	wire := metaWire("exec_e2e") +
		responseWire("The") +
		responseWire("answer") +
		responseWire("is") +
		responseWire(" 42") +
		responseWire(".") +
		completeWire()
	ts := newTestServer(t, wire, "", "")

	rec := ts.request(http.MethodPost, "/v1/turns/stream",
		`{"session_id":"sess_1","message":{"role":"user","content":"explain X"}}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "sess_1", rec.Header().Get("X-Session-ID"))

	body := rec.Body.String()
	// Ack first, then the upstream frames byte-for-byte.
	assert.True(t, strings.HasPrefix(body, "event: "+sse.EventConnectionAck))
	assert.Contains(t, body, wire)

	// Reassemble the deltas and check the full answer.
	parser := sse.NewParser()
	var answer string
	for _, frame := range parser.Feed([]byte(body)) {
		ev, err := domain.ParseAgentEvent(frame.Data)
		if err != nil {
			continue
		}
		if ev.Type == domain.EventTypeResponse {
			answer += ev.Response.Text
		}
	}
	assert.Equal(t, "Theansweris 42.", answer)

	// The execution holds all 7 frames, is completed, and a full resume
	// replays every one of them.
	assert.Equal(t, domain.ExecutionStatusCompleted, ts.buf.Status("exec_e2e"))
	n, err := ts.buf.Len("exec_e2e")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	resumeRec := ts.request(http.MethodGet, "/v1/executions/exec_e2e/resume?cursor=0", "", nil)
	require.Equal(t, http.StatusOK, resumeRec.Code)
	assert.Equal(t, wire, resumeRec.Body.String())
}

func TestStreamTurnValidation(t *testing.T) {
	ts := newTestServer(t, "", "", "")

	rec := ts.request(http.MethodPost, "/v1/turns/stream",
		`{"message":{"role":"user","content":"hi"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_id")

	rec = ts.request(http.MethodPost, "/v1/turns/stream",
		`{"session_id":"sess_1","message":{"role":"user"}}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "message.content")
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, "", "tok1:alice", "")

	rec := ts.request(http.MethodGet, "/v1/executions/exec_1/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.request(http.MethodGet, "/v1/executions/exec_1/status", "",
		map[string]string{"Authorization": "Bearer tok1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPolicyDenied(t *testing.T) {
	denyAll := `
package stream_policy

default decision = "deny"
`
	ts := newTestServer(t, "", "", denyAll)

	rec := ts.request(http.MethodGet, "/v1/executions/exec_1/status", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestResumeReplaysFromCursor(t *testing.T) {
	ts := newTestServer(t, "", "", "")

	ts.buf.Create("exec_1")
	var raws []string
	for i := 1; i <= 5; i++ {
		wire := responseWire(fmt.Sprintf("f%d", i))
		frame := sse.NewParser().Feed([]byte(wire))[0]
		_, err := ts.buf.Append("exec_1", frame)
		require.NoError(t, err)
		raws = append(raws, wire)
	}
	ts.buf.Complete("exec_1")

	rec := ts.request(http.MethodGet, "/v1/executions/exec_1/resume?cursor=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.NotContains(t, body, raws[0])
	assert.NotContains(t, body, raws[1])
	assert.Equal(t, raws[2]+raws[3]+raws[4], body)
}

func TestResumeNotFound(t *testing.T) {
	ts := newTestServer(t, "", "", "")

	rec := ts.request(http.MethodGet, "/v1/executions/nope/resume", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResumeInvalidCursor(t *testing.T) {
	ts := newTestServer(t, "", "", "")

	rec := ts.request(http.MethodGet, "/v1/executions/exec_1/resume?cursor=-3", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.request(http.MethodGet, "/v1/executions/exec_1/resume?cursor=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusLifecycle(t *testing.T) {
	ts := newTestServer(t, "", "", "")

	rec := ts.request(http.MethodGet, "/v1/executions/exec_1/status", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")

	ts.buf.Create("exec_1")
	rec = ts.request(http.MethodGet, "/v1/executions/exec_1/status", "", nil)
	assert.Contains(t, rec.Body.String(), "active")

	ts.buf.Complete("exec_1")
	rec = ts.request(http.MethodGet, "/v1/executions/exec_1/status", "", nil)
	assert.Contains(t, rec.Body.String(), "completed")
}

func TestStopUnknownExecution(t *testing.T) {
	ts := newTestServer(t, "", "", "")

	rec := ts.request(http.MethodPost, "/v1/executions/nope/stop", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
