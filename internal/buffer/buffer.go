// Package buffer provides the process-wide, in-memory execution buffer: an
// append-only frame log per execution id with live-tailing subscriptions.
//
// Each execution id has exactly one writer (the relay drain loop) and any
// number of readers. Readers never block the writer: appends go into the
// shared slice and wake subscribers through a broadcast channel, each
// subscriber then catches up at its own pace.
package buffer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/domain"
	"github.com/aws-samples/sample-strands-agent-with-agentcore-sub001/internal/sse"
)

// ErrNotFound is returned when an operation references an unknown execution id.
var ErrNotFound = errors.New("execution not found")

// record is the in-memory log for one execution.
type record struct {
	mu          sync.RWMutex
	frames      []sse.Frame
	completed   bool
	createdAt   time.Time
	completedAt time.Time

	// wake is closed on every append and on completion, then replaced while
	// the execution is still active. Subscribers wait on the channel they
	// captured, so a swap after close cannot lose a wakeup.
	wake chan struct{}
}

// Buffer is the process-wide execution store.
type Buffer struct {
	mu        sync.RWMutex
	records   map[string]*record
	retention time.Duration
}

// New creates a buffer. Completed executions are eligible for garbage
// collection once they have been completed for longer than retention.
func New(retention time.Duration) *Buffer {
	return &Buffer{
		records:   make(map[string]*record),
		retention: retention,
	}
}

// Create registers an execution id. Idempotent: a duplicate create is logged
// and ignored.
func (b *Buffer) Create(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.records[id]; ok {
		log.Printf("WARN: execution %s already exists, ignoring duplicate create", id)
		return
	}
	b.records[id] = &record{
		createdAt: time.Now(),
		wake:      make(chan struct{}),
	}
}

// Append adds a frame to an execution's log, assigns it the next sequence
// number and wakes subscribers. Fails with ErrNotFound for an unknown id.
func (b *Buffer) Append(id string, frame sse.Frame) (int64, error) {
	b.mu.RLock()
	r, ok := b.records[id]
	b.mu.RUnlock()
	if !ok {
		return 0, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.completed {
		log.Printf("WARN: append to completed execution %s dropped", id)
		return 0, nil
	}

	frame.Sequence = int64(len(r.frames)) + 1
	r.frames = append(r.frames, frame)

	close(r.wake)
	r.wake = make(chan struct{})

	return frame.Sequence, nil
}

// Complete marks an execution completed exactly once and wakes subscribers so
// their streams can finish. Idempotent; unknown ids are logged and ignored.
func (b *Buffer) Complete(id string) {
	b.mu.RLock()
	r, ok := b.records[id]
	b.mu.RUnlock()
	if !ok {
		log.Printf("WARN: complete for unknown execution %s ignored", id)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.completed {
		return
	}
	r.completed = true
	r.completedAt = time.Now()
	close(r.wake)
}

// Status reports the lifecycle status of an execution.
func (b *Buffer) Status(id string) domain.ExecutionStatus {
	b.mu.RLock()
	r, ok := b.records[id]
	b.mu.RUnlock()
	if !ok {
		return domain.ExecutionStatusNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.completed {
		return domain.ExecutionStatusCompleted
	}
	return domain.ExecutionStatusActive
}

// Len reports how many frames an execution currently holds.
func (b *Buffer) Len(id string) (int64, error) {
	b.mu.RLock()
	r, ok := b.records[id]
	b.mu.RUnlock()
	if !ok {
		return 0, ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.frames)), nil
}

// Subscribe returns an ordered stream of an execution's frames starting at
// fromCursor (a count of frames already consumed). The channel ends when the
// execution is completed and fully delivered, or when ctx is cancelled. For an
// already-completed execution the stream is finite.
func (b *Buffer) Subscribe(ctx context.Context, id string, fromCursor int64) (<-chan sse.Frame, error) {
	b.mu.RLock()
	r, ok := b.records[id]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	if fromCursor < 0 {
		fromCursor = 0
	}

	out := make(chan sse.Frame)
	go func() {
		defer close(out)
		cursor := fromCursor
		for {
			r.mu.RLock()
			frames := r.frames
			completed := r.completed
			wake := r.wake
			r.mu.RUnlock()

			for cursor < int64(len(frames)) {
				select {
				case out <- frames[cursor]:
					cursor++
				case <-ctx.Done():
					return
				}
			}

			if completed {
				return
			}

			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Sweep evicts completed executions whose retention has expired and returns
// how many were removed.
func (b *Buffer) Sweep(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := 0
	for id, r := range b.records {
		r.mu.RLock()
		expired := r.completed && now.Sub(r.completedAt) > b.retention
		r.mu.RUnlock()
		if expired {
			delete(b.records, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs periodic retention sweeps until ctx is cancelled.
func (b *Buffer) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := b.Sweep(time.Now()); n > 0 {
				log.Printf("INFO: evicted %d expired executions", n)
			}
		}
	}
}
