// Package debug retains raw provider exchanges for short-lived inspection.
//
// Traces live in memory only: they hold unredacted request and response
// bodies and must not outlive the process or land in durable storage.
package debug

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/versolabs/verso/internal/llm"
)

// DefaultTTL is how long a trace stays retrievable.
const DefaultTTL = 24 * time.Hour

// Trace is one captured provider exchange.
type Trace struct {
	DebugID        string            `json:"debug_id"`
	ConversationID string            `json:"conversation_id,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	Model          string            `json:"model"`
	RawRequest     json.RawMessage   `json:"raw_request,omitempty"`
	RequestParams  map[string]any    `json:"request_params,omitempty"`
	RawChunks      []json.RawMessage `json:"raw_chunks,omitempty"`
	RawResponse    json.RawMessage   `json:"raw_response,omitempty"`
	Usage          llm.Usage         `json:"usage"`
}

// Logger stores traces keyed by debug ID, purging expired entries in the
// background. Safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	traces map[string]Trace

	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewLogger creates a trace store. ttl <= 0 uses DefaultTTL.
func NewLogger(ttl time.Duration, logger *slog.Logger) *Logger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		traces: make(map[string]Trace),
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Run purges expired traces until ctx is canceled.
func (l *Logger) Run(ctx context.Context) {
	interval := l.ttl / 10
	if interval > time.Hour {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.purge()
		}
	}
}

// LogExchange stores one captured exchange and returns its debug ID.
func (l *Logger) LogExchange(conversationID, model string, capture *llm.DebugCapture, usage llm.Usage) string {
	id := uuid.NewString()
	trace := Trace{
		DebugID:        id,
		ConversationID: conversationID,
		CreatedAt:      l.now(),
		Model:          model,
		Usage:          usage,
	}
	if capture != nil {
		trace.RawRequest = capture.RawRequest()
		trace.RequestParams = capture.RequestParams()
		trace.RawChunks = capture.RawChunks()
		trace.RawResponse = capture.RawResponse()
	}

	l.mu.Lock()
	l.traces[id] = trace
	l.mu.Unlock()

	l.logger.Debug("stored debug trace", "debug_id", id, "chunks", len(trace.RawChunks))
	return id
}

// FindByDebugID returns a stored trace, or false if the ID is unknown or
// the trace has expired.
func (l *Logger) FindByDebugID(id string) (Trace, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	trace, ok := l.traces[id]
	if !ok {
		return Trace{}, false
	}
	if l.now().Sub(trace.CreatedAt) > l.ttl {
		delete(l.traces, id)
		return Trace{}, false
	}
	return trace, true
}

func (l *Logger) purge() {
	cutoff := l.now().Add(-l.ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, trace := range l.traces {
		if trace.CreatedAt.Before(cutoff) {
			delete(l.traces, id)
		}
	}
}
