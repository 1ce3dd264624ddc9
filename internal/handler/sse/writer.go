package sse

import (
	"errors"
	"fmt"
	"net/http"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
)

// ErrStreamingUnsupported is returned when the connection cannot flush,
// which SSE requires.
var ErrStreamingUnsupported = errors.New("streaming unsupported by connection")

// Writer serializes chunks as SSE frames onto one client connection.
// Not safe for concurrent use: the handler goroutine owns it.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares the response for event streaming and writes the
// SSE headers. The status line is not sent until the first write or
// flush, so callers may still set headers after this returns.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteChunk renders one chunk as an SSE frame and flushes it.
// A write or flush failure means the client is gone.
func (s *Writer) WriteChunk(chunk chatModels.Chunk) error {
	frame, err := chunk.FormatSSE()
	if err != nil {
		return err
	}

	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return fmt.Errorf("write event failed: %w", err)
	}
	s.flusher.Flush()

	return nil
}

// WriteKeepAlive writes an SSE comment (: keepalive) and flushes.
// Returns error if connection is closed or write fails.
func (s *Writer) WriteKeepAlive() error {
	// SSE spec: lines starting with : are comments (ignored by client)
	if _, err := fmt.Fprintf(s.w, ": keepalive\n\n"); err != nil {
		return fmt.Errorf("write keepalive failed: %w", err)
	}
	s.flusher.Flush()

	// Health check: a zero-byte write surfaces a closed connection
	if _, err := s.w.Write([]byte{}); err != nil {
		return fmt.Errorf("connection closed: %w", err)
	}

	return nil
}

// Flush forces buffered data out, committing headers if not yet sent.
func (s *Writer) Flush() {
	s.flusher.Flush()
}
