package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const readChunkSize = 4096

var dataPrefix = []byte("data:")

// Decoder turns a raw SSE byte stream into discrete protocol events. It is a
// lazy, non-restartable sequence: call Next until it returns io.EOF, then
// Close. Incoming bytes are buffered and split on newlines; a trailing
// partial line is held until the next chunk completes it. Only `data:`
// prefixed lines that parse as an event envelope are yielded; anything else
// (comments, blank separators, malformed JSON) is dropped without failing
// the stream.
type Decoder struct {
	r      io.ReadCloser
	buf    []byte
	chunk  []byte
	queue  []Event
	eof    bool
	closed bool
}

// NewDecoder wraps the response body of a chat-stream request.
func NewDecoder(r io.ReadCloser) *Decoder {
	return &Decoder{
		r:     r,
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next decoded event. It returns io.EOF when the source is
// exhausted and ctx.Err() when the context is cancelled mid-read. Any
// unterminated partial line left at EOF is discarded, never speculatively
// parsed.
func (d *Decoder) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue = d.queue[1:]
			return ev, nil
		}

		if d.eof {
			return Event{}, io.EOF
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			d.buf = append(d.buf, d.chunk[:n]...)
			d.splitLines()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.eof = true
				d.buf = nil
				continue
			}
			// A cancelled context surfaces as a read error on the
			// underlying body; report it as cancellation.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			return Event{}, err
		}
	}
}

// splitLines consumes every complete line in the buffer, keeping the
// trailing partial for the next read.
func (d *Decoder) splitLines() {
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		if ev, ok := parseLine(line); ok {
			d.queue = append(d.queue, ev)
		}
	}
}

// parseLine decodes one SSE line into an event. Lines without the data
// prefix, and data lines whose JSON is malformed or typeless, are dropped.
func parseLine(line []byte) (Event, bool) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}

	payload := strings.TrimSpace(string(line[len(dataPrefix):]))
	if payload == "" {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, false
	}
	if ev.Type == "" {
		return Event{}, false
	}
	return ev, true
}

// Close releases the underlying reader. Safe to call more than once and
// required on every exit path: completion, error, and cancellation alike.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.r.Close()
}
