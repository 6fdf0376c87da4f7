// Package relay implements the streaming relay orchestrator: it drains the
// upstream agent stream for one chat turn, buffers every frame for resume,
// and forwards frames to the live downstream client.
//
// The key contract: a downstream write failure or client abort stops only the
// downstream forwarding. The upstream read loop keeps draining into the
// execution buffer so a later resume sees the complete record.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/buffer"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/sse"
)

// Downstream receives the relayed stream. Control frames (connection ack,
// heartbeats, session-level errors) are relay-generated and never buffered;
// data frames are the upstream frames byte-for-byte.
type Downstream interface {
	WriteFrame(raw []byte) error
	WriteControl(raw []byte) error
}

// Upstream opens the agent stream for one turn.
type Upstream interface {
	Invoke(ctx context.Context, req *domain.TurnRequest) (io.ReadCloser, error)
}

// MetadataStore receives best-effort post-turn counters. The relay issues a
// fire-and-forget update and does not depend on its result.
type MetadataStore interface {
	RecordTurn(ctx context.Context, sessionID, executionID string, frames, bytes int64) error
}

// Service is the relay orchestrator.
type Service struct {
	buf          *buffer.Buffer
	agent        Upstream
	meta         MetadataStore
	heartbeat    time.Duration
	agentTimeout time.Duration

	mu    sync.Mutex
	turns map[string]*turnControl
}

// turnControl tracks the cancellation token of one in-flight turn.
type turnControl struct {
	cancel  context.CancelFunc
	stopped bool
}

// New creates a relay service. meta may be nil when no session-metadata
// collaborator is configured.
func New(buf *buffer.Buffer, agent Upstream, meta MetadataStore, heartbeat, agentTimeout time.Duration) *Service {
	return &Service{
		buf:          buf,
		agent:        agent,
		meta:         meta,
		heartbeat:    heartbeat,
		agentTimeout: agentTimeout,
		turns:        make(map[string]*turnControl),
	}
}

// Buffer exposes the execution buffer for the resume and status endpoints.
func (s *Service) Buffer() *buffer.Buffer {
	return s.buf
}

// StreamTurn opens the upstream stream for one turn, drains it into the
// execution buffer and forwards frames to ds. It returns once the upstream
// stream ends, regardless of downstream state.
//
// The upstream read loop runs under its own cancellation token, detached from
// the downstream request context: a client abort must not stop the drain.
func (s *Service) StreamTurn(req *domain.TurnRequest, ds Downstream) error {
	fw := newForwarder(ds)

	// Ack immediately so intermediary proxies do not time out an empty
	// connection before any agent data arrives.
	fw.control(sse.ConnectionAck())

	ctx, cancel := context.WithTimeout(context.Background(), s.agentTimeout)
	defer cancel()

	body, err := s.agent.Invoke(ctx, req)
	if err != nil {
		fw.control(sse.SessionError(err.Error()))
		return fmt.Errorf("failed to open upstream stream: %w", err)
	}
	defer body.Close()

	hbDone := make(chan struct{})
	defer close(hbDone)
	go s.heartbeatLoop(fw, hbDone)

	drainErr := s.drain(ctx, cancel, req, body, fw)
	return drainErr
}

// Stop cancels the upstream token of an active turn. The cancellation is
// tagged as user-initiated so the drain finishes through the normal
// completion path instead of synthesizing an error frame.
func (s *Service) Stop(executionID string) error {
	s.mu.Lock()
	tc, ok := s.turns[executionID]
	if ok {
		tc.stopped = true
	}
	s.mu.Unlock()

	if !ok {
		return buffer.ErrNotFound
	}
	tc.cancel()
	return nil
}

// drain is the upstream read loop. It parses chunks into frames, creates the
// execution on the metadata frame, appends every frame, and attempts to
// forward each one downstream.
func (s *Service) drain(ctx context.Context, cancel context.CancelFunc, req *domain.TurnRequest, body io.Reader, fw *forwarder) error {
	parser := sse.NewParser()
	var (
		executionID string
		frameCount  int64
		byteCount   int64
	)

	finish := func() {
		if executionID == "" {
			return
		}
		s.buf.Complete(executionID)
		s.mu.Lock()
		delete(s.turns, executionID)
		s.mu.Unlock()

		if s.meta != nil {
			// Best effort, off the hot path.
			go func(sessionID, execID string, frames, bytes int64) {
				recordCtx, recordCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer recordCancel()
				if err := s.meta.RecordTurn(recordCtx, sessionID, execID, frames, bytes); err != nil {
					log.Printf("WARN: failed to record turn metadata for %s: %v", execID, err)
				}
			}(req.SessionID, executionID, frameCount, byteCount)
		}
	}

	chunk := make([]byte, 4096)
	for {
		n, readErr := body.Read(chunk)
		if n > 0 {
			for _, frame := range parser.Feed(chunk[:n]) {
				if executionID == "" {
					if id := executionIDFromFrame(frame); id != "" {
						executionID = id
						s.buf.Create(executionID)
						s.mu.Lock()
						s.turns[executionID] = &turnControl{cancel: cancel}
						s.mu.Unlock()
					} else {
						log.Printf("WARN: frame received before execution metadata, forwarding unbuffered")
						fw.frame(frame.Raw)
						continue
					}
				}
				if _, err := s.buf.Append(executionID, frame); err != nil {
					log.Printf("ERROR: failed to append frame for %s: %v", executionID, err)
				} else {
					frameCount++
					byteCount += int64(len(frame.Raw))
				}
				fw.frame(frame.Raw)
			}
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			finish()
			return nil
		}

		if s.wasStopped(executionID) {
			// User stop: close out the turn normally, tagged as stopped so
			// the client does not render a stray trailing message.
			stopFrame := synthesizeStopFrame()
			if _, err := s.buf.Append(executionID, stopFrame); err == nil {
				frameCount++
				byteCount += int64(len(stopFrame.Raw))
			}
			fw.frame(stopFrame.Raw)
			finish()
			return nil
		}

		if executionID == "" {
			// Upstream failed before any execution id was known: there is
			// nothing to buffer, so surface one session-level error frame.
			fw.control(sse.SessionError(readErr.Error()))
			return fmt.Errorf("upstream stream failed before execution metadata: %w", readErr)
		}

		// Transport failure mid-stream: record a terminal error frame so a
		// later resume sees how the turn ended, then complete the record.
		errFrame := synthesizeErrorFrame(readErr)
		if _, err := s.buf.Append(executionID, errFrame); err == nil {
			frameCount++
			byteCount += int64(len(errFrame.Raw))
		}
		fw.frame(errFrame.Raw)
		finish()
		return fmt.Errorf("upstream stream failed: %w", readErr)
	}
}

func (s *Service) wasStopped(executionID string) bool {
	if executionID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.turns[executionID]
	return ok && tc.stopped
}

// heartbeatLoop emits a heartbeat comment whenever the heartbeat interval has
// elapsed with no forwarded bytes, until done is closed.
func (s *Service) heartbeatLoop(fw *forwarder, done <-chan struct{}) {
	tick := s.heartbeat / 2
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if fw.idle() >= s.heartbeat {
				fw.control(sse.Heartbeat)
			}
		}
	}
}

// executionIDFromFrame extracts the execution id if the frame is the
// execution_meta metadata frame.
func executionIDFromFrame(frame sse.Frame) string {
	if len(frame.Data) == 0 {
		return ""
	}
	ev, err := domain.ParseAgentEvent(frame.Data)
	if err != nil || ev.Type != domain.EventTypeMetadata {
		return ""
	}
	return ev.Metadata.ExecutionID()
}

func synthesizeErrorFrame(cause error) sse.Frame {
	data := fmt.Sprintf(`{"type":"error","code":"upstream_error","message":%q}`, cause.Error())
	return sse.Frame{
		Raw:       sse.FormatEvent(string(domain.EventTypeError), []byte(data)),
		Event:     string(domain.EventTypeError),
		Data:      []byte(data),
		ArrivedAt: time.Now(),
	}
}

func synthesizeStopFrame() sse.Frame {
	data := `{"type":"complete","stopped":true}`
	return sse.Frame{
		Raw:       sse.FormatEvent(string(domain.EventTypeComplete), []byte(data)),
		Event:     string(domain.EventTypeComplete),
		Data:      []byte(data),
		ArrivedAt: time.Now(),
	}
}

// forwarder serializes downstream writes and records the time of the last
// successful write for heartbeat accounting. The first write failure disables
// forwarding for the rest of the turn; the drain is unaffected.
type forwarder struct {
	mu        sync.Mutex
	ds        Downstream
	active    bool
	lastWrite time.Time
}

func newForwarder(ds Downstream) *forwarder {
	return &forwarder{ds: ds, active: true, lastWrite: time.Now()}
}

func (f *forwarder) frame(raw []byte) {
	f.write(raw, false)
}

func (f *forwarder) control(raw []byte) {
	f.write(raw, true)
}

func (f *forwarder) write(raw []byte, control bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return
	}

	var err error
	if control {
		err = f.ds.WriteControl(raw)
	} else {
		err = f.ds.WriteFrame(raw)
	}
	if err != nil {
		log.Printf("INFO: downstream write failed, continuing drain without forwarding: %v", err)
		f.active = false
		return
	}
	f.lastWrite = time.Now()
}

func (f *forwarder) idle() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Since(f.lastWrite)
}
