package sse

import (
	"bytes"
	"testing"
)

func TestParserSingleFrame(t *testing.T) {
	p := NewParser()

	frames := p.Feed([]byte("event: response\ndata: {\"type\":\"response\",\"text\":\"hi\"}\n\n"))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Event != "response" {
		t.Fatalf("unexpected event: %s", frames[0].Event)
	}
	if string(frames[0].Data) != `{"type":"response","text":"hi"}` {
		t.Fatalf("unexpected data: %s", frames[0].Data)
	}
	if p.Pending() != 0 {
		t.Fatalf("expected no pending bytes, got %d", p.Pending())
	}
}

func TestParserFrameSplitAcrossChunks(t *testing.T) {
	p := NewParser()
	wire := []byte("event: response\ndata: {\"type\":\"response\",\"text\":\"hello world\"}\n\n")

	// Split mid-delimiter: first chunk ends after the first \n of \n\n.
	for _, cut := range []int{1, 10, len(wire) - 1} {
		p = NewParser()
		frames := p.Feed(wire[:cut])
		if len(frames) != 0 {
			t.Fatalf("cut=%d: partial frame emitted", cut)
		}
		frames = p.Feed(wire[cut:])
		if len(frames) != 1 {
			t.Fatalf("cut=%d: expected 1 frame after second chunk, got %d", cut, len(frames))
		}
		if !bytes.Equal(frames[0].Raw, wire) {
			t.Fatalf("cut=%d: raw bytes not preserved", cut)
		}
	}
}

func TestParserMultipleFramesOneChunk(t *testing.T) {
	p := NewParser()
	chunk := []byte("data: one\n\ndata: two\n\ndata: thr")

	frames := p.Feed(chunk)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if string(frames[0].Data) != "one" || string(frames[1].Data) != "two" {
		t.Fatalf("unexpected frame data: %q, %q", frames[0].Data, frames[1].Data)
	}
	if p.Pending() == 0 {
		t.Fatal("expected trailing partial frame to be retained")
	}

	frames = p.Feed([]byte("ee\n\n"))
	if len(frames) != 1 || string(frames[0].Data) != "three" {
		t.Fatalf("reassembled frame wrong: %+v", frames)
	}
}

func TestParserCommentOnlyFrameConsumed(t *testing.T) {
	p := NewParser()

	frames := p.Feed([]byte(": heartbeat\n\ndata: real\n\n"))
	if len(frames) != 1 {
		t.Fatalf("expected heartbeat to be swallowed, got %d frames", len(frames))
	}
	if string(frames[0].Data) != "real" {
		t.Fatalf("unexpected data: %s", frames[0].Data)
	}
}

func TestParserMultiLineData(t *testing.T) {
	p := NewParser()

	frames := p.Feed([]byte("data: line1\ndata: line2\n\n"))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if string(frames[0].Data) != "line1\nline2" {
		t.Fatalf("multi-line data not joined: %q", frames[0].Data)
	}
}

func TestParserCRLFDelimiter(t *testing.T) {
	p := NewParser()

	frames := p.Feed([]byte("event: complete\r\ndata: {}\r\n\r\n"))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Event != "complete" || string(frames[0].Data) != "{}" {
		t.Fatalf("unexpected frame: %+v", frames[0])
	}
}

func TestParserRawIncludesDelimiter(t *testing.T) {
	p := NewParser()
	wire := []byte("event: response\ndata: x\n\n")

	frames := p.Feed(wire)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if !bytes.Equal(frames[0].Raw, wire) {
		t.Fatalf("raw must be the exact wire bytes, got %q", frames[0].Raw)
	}
}
