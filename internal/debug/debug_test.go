package debug

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/versolabs/verso/internal/llm"
	"github.com/versolabs/verso/internal/log"
)

func TestLogExchangeAndFind(t *testing.T) {
	t.Parallel()

	l := NewLogger(time.Hour, log.NewNop())

	capture := llm.NewDebugCapture()
	capture.SetRequest(json.RawMessage(`{"model":"gemini-2.5-flash"}`), map[string]any{"temperature": 0.7})
	capture.AddChunk(json.RawMessage(`{"delta":"hi"}`))

	usage := llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	id := l.LogExchange("conv-1", "gemini-2.5-flash", capture, usage)
	if id == "" {
		t.Fatal("LogExchange() returned empty ID")
	}

	trace, ok := l.FindByDebugID(id)
	if !ok {
		t.Fatal("FindByDebugID() not found")
	}
	if trace.ConversationID != "conv-1" || trace.Model != "gemini-2.5-flash" {
		t.Errorf("trace = %+v", trace)
	}
	if len(trace.RawChunks) != 1 {
		t.Errorf("RawChunks = %d, want 1", len(trace.RawChunks))
	}
	if trace.Usage != usage {
		t.Errorf("Usage = %+v, want %+v", trace.Usage, usage)
	}
}

func TestFindUnknownID(t *testing.T) {
	t.Parallel()

	l := NewLogger(time.Hour, log.NewNop())
	if _, ok := l.FindByDebugID("nope"); ok {
		t.Error("FindByDebugID(unknown) = true")
	}
}

func TestExpiry(t *testing.T) {
	t.Parallel()

	l := NewLogger(time.Hour, log.NewNop())
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	id := l.LogExchange("conv-1", "m", nil, llm.Usage{})

	current = current.Add(30 * time.Minute)
	if _, ok := l.FindByDebugID(id); !ok {
		t.Error("trace expired too early")
	}

	current = current.Add(31 * time.Minute)
	if _, ok := l.FindByDebugID(id); ok {
		t.Error("trace survived past TTL")
	}
}

func TestPurge(t *testing.T) {
	t.Parallel()

	l := NewLogger(time.Hour, log.NewNop())
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	l.LogExchange("old", "m", nil, llm.Usage{})
	current = current.Add(2 * time.Hour)
	keep := l.LogExchange("new", "m", nil, llm.Usage{})

	l.purge()

	l.mu.Lock()
	remaining := len(l.traces)
	l.mu.Unlock()
	if remaining != 1 {
		t.Errorf("after purge %d traces remain, want 1", remaining)
	}
	if _, ok := l.FindByDebugID(keep); !ok {
		t.Error("recent trace purged")
	}
}
