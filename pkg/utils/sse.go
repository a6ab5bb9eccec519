package utils

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
)

// SetupSSEHeaders sets the response headers for a Server-Sent Events stream.
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// SendSSEChunk marshals payload and writes it as one `data:` event.
func SendSSEChunk(w http.ResponseWriter, flusher http.Flusher, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal sse payload: %v", err)
		return
	}

	if _, err := w.Write([]byte("data: ")); err != nil {
		log.Printf("failed to write sse prefix: %v", err)
		return
	}
	if _, err := w.Write(data); err != nil {
		log.Printf("failed to write sse payload: %v", err)
		return
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		log.Printf("failed to write sse terminator: %v", err)
		return
	}
	flusher.Flush()
}

// RelaySSE copies an upstream event stream to the client, flushing after
// every chunk so events surface as they arrive.
func RelaySSE(w http.ResponseWriter, flusher http.Flusher, upstream io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := upstream.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			flusher.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
