// Package ndjson streams newline-delimited JSON frames over HTTP.
//
// Each frame is one JSON object on its own line, flushed immediately so
// proxies and clients see events as they happen.
package ndjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrStreamingUnsupported means the ResponseWriter cannot flush, so
// incremental delivery is impossible.
var ErrStreamingUnsupported = errors.New("ndjson: response writer does not support streaming")

// Frame is one wire-level event.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Writer emits NDJSON frames to an http.ResponseWriter. Not safe for
// concurrent use; one goroutine owns the response stream.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for NDJSON streaming and writes the response
// headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "application/x-ndjson")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// Write emits one frame and flushes it. A canceled context (client gone)
// returns the context error without writing.
func (w *Writer) Write(ctx context.Context, frameType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, err := json.Marshal(Frame{Type: frameType, Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	frame = append(frame, '\n')

	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}
