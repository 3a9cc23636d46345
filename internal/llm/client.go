package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// Client is the contract every provider adapter implements.
//
// StreamGenerate translates the canonical prompt and effective configuration
// into a provider-specific request, issues the network call, and produces a
// lazy, finite, non-restartable sequence of StreamEvent on the returned
// channel. The sequence terminates in exactly one of EventResult or
// EventError, the terminal event is last, and the channel is closed after
// it. The sequence must be consumed exactly once.
//
// modelOverride, when non-empty, replaces cfg.Model for this call.
//
// capture is a required side channel, not optional telemetry: clients must
// populate it with the raw request body, the actual request parameters, and
// the raw response or chunks, because the preset validation agent inspects
// it afterwards.
//
// Cancellation of ctx abandons the provider call; the client closes the
// channel after emitting the terminal error.
type Client interface {
	// Provider returns the provider identifier (catalog.ProviderGemini, ...).
	Provider() string

	// StreamGenerate issues one generation call and streams normalized events.
	StreamGenerate(ctx context.Context, prompt Prompt, modelOverride string, cfg EffectiveConfig, capture *DebugCapture) <-chan StreamEvent
}

// DebugCapture collects the raw request/response side channel for one
// provider call. Safe for concurrent use; the producing client writes while
// the consumer only reads after the stream terminates.
type DebugCapture struct {
	mu sync.Mutex

	rawRequest json.RawMessage
	params     map[string]any
	rawChunks  []json.RawMessage
	rawResp    json.RawMessage
}

// NewDebugCapture creates an empty capture.
func NewDebugCapture() *DebugCapture { return &DebugCapture{} }

// SetRequest records the serialized provider request body and the actual
// request parameters after capability gating.
func (c *DebugCapture) SetRequest(raw json.RawMessage, params map[string]any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawRequest = raw
	c.params = params
}

// AddChunk appends one raw streamed response chunk.
func (c *DebugCapture) AddChunk(raw json.RawMessage) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawChunks = append(c.rawChunks, raw)
}

// SetResponse records a raw non-streamed response body.
func (c *DebugCapture) SetResponse(raw json.RawMessage) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawResp = raw
}

// RawRequest returns the recorded request body.
func (c *DebugCapture) RawRequest() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rawRequest
}

// RequestParams returns the recorded request parameters.
func (c *DebugCapture) RequestParams() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// RawChunks returns the recorded response chunks.
func (c *DebugCapture) RawChunks() []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]json.RawMessage(nil), c.rawChunks...)
}

// RawResponse returns the recorded non-streamed response body, or, when the
// call was streamed, nil.
func (c *DebugCapture) RawResponse() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rawResp
}
