package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
)

// chunkReader yields the input in fixed-size chunks to exercise partial-line
// buffering.
type chunkReader struct {
	data   []byte
	size   int
	closed bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	return nil
}

func drain(t *testing.T, d *Decoder) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := d.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("Next err: %v", err)
		}
		events = append(events, ev)
	}
}

func TestDecoderSplitsLinesAcrossChunks(t *testing.T) {
	input := "data: {\"type\":\"text-delta\",\"data\":{\"delta\":\"Hello\"}}\n" +
		"data: {\"type\":\"text-delta\",\"data\":{\"delta\":\" world\"}}\n"
	d := NewDecoder(&chunkReader{data: []byte(input), size: 7})

	events := drain(t, d)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for i, want := range []string{"Hello", " world"} {
		if events[i].Type != TypeTextDelta {
			t.Fatalf("event %d: unexpected type %s", i, events[i].Type)
		}
		var delta TextDelta
		if err := json.Unmarshal(events[i].Data, &delta); err != nil {
			t.Fatalf("payload err: %v", err)
		}
		if delta.Delta != want {
			t.Fatalf("event %d: got %q want %q", i, delta.Delta, want)
		}
	}
}

func TestDecoderDropsMalformedAndUnprefixedLines(t *testing.T) {
	input := ": heartbeat comment\n" +
		"data: {not json}\n" +
		"event: noise\n" +
		"data: {\"type\":\"done\",\"data\":{\"messageId\":\"m1\"}}\n" +
		"\n"
	d := NewDecoder(&chunkReader{data: []byte(input), size: 64})

	events := drain(t, d)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != TypeDone {
		t.Fatalf("unexpected type %s", events[0].Type)
	}
}

func TestDecoderDiscardsUnterminatedTail(t *testing.T) {
	input := "data: {\"type\":\"text-delta\",\"data\":{\"delta\":\"ok\"}}\n" +
		"data: {\"type\":\"done\",\"data\":{}}" // no trailing newline
	d := NewDecoder(&chunkReader{data: []byte(input), size: 64})

	events := drain(t, d)
	if len(events) != 1 {
		t.Fatalf("expected only the terminated line, got %d events", len(events))
	}
	if events[0].Type != TypeTextDelta {
		t.Fatalf("unexpected type %s", events[0].Type)
	}
}

func TestDecoderHandlesCRLF(t *testing.T) {
	input := "data: {\"type\":\"text-delta\",\"data\":{\"delta\":\"hi\"}}\r\n"
	d := NewDecoder(&chunkReader{data: []byte(input), size: 64})

	events := drain(t, d)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestDecoderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDecoder(&chunkReader{data: []byte("data: {\"type\":\"done\",\"data\":{}}\n"), size: 64})
	if _, err := d.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDecoderCloseReleasesReader(t *testing.T) {
	r := &chunkReader{data: []byte("data: {\"type\":\"done\",\"data\":{}}\n"), size: 64}
	d := NewDecoder(r)

	drain(t, d)
	if err := d.Close(); err != nil {
		t.Fatalf("Close err: %v", err)
	}
	if !r.closed {
		t.Fatal("expected underlying reader to be closed")
	}
	// Idempotent.
	if err := d.Close(); err != nil {
		t.Fatalf("second Close err: %v", err)
	}
}
