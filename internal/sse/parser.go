package sse

import (
	"strings"
	"time"
)

// Parser splits raw stream bytes into complete frames. It is stateful: bytes
// after the last complete frame boundary are retained and prepended to the
// next Feed call, so a frame whose blank-line boundary falls across two
// chunks is reassembled correctly. A partial frame is never emitted.
//
// Frames consisting only of comment lines (": ..." heartbeats) are consumed
// silently and never emitted.
type Parser struct {
	buf []byte
	now func() time.Time
}

// NewParser creates a new parser.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// Feed consumes one chunk of raw bytes in arrival order and returns zero or
// more complete frames.
func (p *Parser) Feed(chunk []byte) []Frame {
	p.buf = append(p.buf, chunk...)

	var frames []Frame
	for {
		end := frameEnd(p.buf)
		if end < 0 {
			break
		}
		raw := make([]byte, end)
		copy(raw, p.buf[:end])
		p.buf = p.buf[end:]

		if frame, ok := parseFrame(raw, p.now()); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// Pending reports how many bytes are buffered awaiting a frame boundary.
func (p *Parser) Pending() int {
	return len(p.buf)
}

// frameEnd returns the index just past the first blank-line delimiter, or -1
// if the buffer holds no complete frame yet. Both LF and CRLF line endings
// are accepted.
func frameEnd(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] != '\n' {
			continue
		}
		if b[i+1] == '\n' {
			return i + 2
		}
		if i+2 < len(b) && b[i+1] == '\r' && b[i+2] == '\n' {
			return i + 3
		}
	}
	return -1
}

// parseFrame parses the lines of one raw frame. Returns ok=false for frames
// carrying neither an event name nor data, such as comment-only heartbeats.
func parseFrame(raw []byte, arrivedAt time.Time) (Frame, bool) {
	frame := Frame{Raw: raw, ArrivedAt: arrivedAt}

	var data string
	sawData := false

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "event:") {
			frame.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			value := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if sawData {
				data += "\n" + value
			} else {
				data = value
				sawData = true
			}
		}
		// Ignore comments (lines starting with :) and other fields.
	}

	if frame.Event == "" && !sawData {
		return Frame{}, false
	}
	if sawData {
		frame.Data = []byte(data)
	}
	return frame, true
}
