// Package sse implements the event-stream wire format: parsing raw byte
// chunks into self-delimited frames and writing frames downstream.
package sse

import "time"

// Frame is one self-delimited unit of the event-stream wire format.
// Raw holds the exact wire bytes including the terminating blank line, so a
// replayed execution is byte-identical to the live forward path.
type Frame struct {
	// Sequence is assigned by the execution buffer on append, starting at 1.
	// Zero means the frame has not been buffered.
	Sequence int64

	// Raw is the frame's exact wire bytes, delimiter included.
	Raw []byte

	// Event is the value of the "event:" field, or "" if absent.
	Event string

	// Data is the joined value of the "data:" field lines.
	Data []byte

	// ArrivedAt is when the frame was fully received from upstream.
	ArrivedAt time.Time
}
