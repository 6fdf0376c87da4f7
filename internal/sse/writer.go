package sse

import "fmt"

// Control frame event names emitted by the relay itself. These are written
// downstream only and never appended to the execution buffer, so clients must
// not advance their cursor for them.
const (
	// EventConnectionAck is written immediately after the response headers so
	// intermediary proxies do not time out an empty connection before any
	// agent data arrives.
	EventConnectionAck = "connection_ack"

	// EventSessionError is synthesized when the upstream stream fails before
	// any execution id is known.
	EventSessionError = "session_error"
)

// Heartbeat is an SSE comment written when no bytes have been forwarded for
// the heartbeat interval. Comment frames are ignored by the parser.
var Heartbeat = []byte(": heartbeat\n\n")

// ConnectionAck formats the connection-ack control frame.
func ConnectionAck() []byte {
	return FormatEvent(EventConnectionAck, []byte("{}"))
}

// SessionError formats a session-level error control frame.
func SessionError(message string) []byte {
	data := fmt.Sprintf(`{"type":"error","code":"session_error","message":%q}`, message)
	return FormatEvent(EventSessionError, []byte(data))
}

// FormatEvent formats one frame with an event name and a single data line.
func FormatEvent(event string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
}

// FormatData formats one frame with a single data line and no event name.
func FormatData(data []byte) []byte {
	return []byte(fmt.Sprintf("data: %s\n\n", data))
}
