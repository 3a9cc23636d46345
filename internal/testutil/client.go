// Package testutil provides shared test doubles and infrastructure helpers.
package testutil

import (
	"context"
	"sync"

	"github.com/versolabs/verso/internal/llm"
)

// ScriptedClient is an llm.Client that replays pre-scripted event
// sequences, one per call. Calls beyond the script replay the last
// sequence.
type ScriptedClient struct {
	ProviderName string
	Turns        [][]llm.StreamEvent

	mu      sync.Mutex
	calls   int
	prompts []llm.Prompt
	configs []llm.EffectiveConfig
}

// Provider implements llm.Client.
func (c *ScriptedClient) Provider() string {
	if c.ProviderName == "" {
		return "scripted"
	}
	return c.ProviderName
}

// StreamGenerate implements llm.Client.
func (c *ScriptedClient) StreamGenerate(ctx context.Context, prompt llm.Prompt, _ string, cfg llm.EffectiveConfig, capture *llm.DebugCapture) <-chan llm.StreamEvent {
	c.mu.Lock()
	turn := c.calls
	c.calls++
	c.prompts = append(c.prompts, prompt)
	c.configs = append(c.configs, cfg)
	c.mu.Unlock()

	if turn >= len(c.Turns) {
		turn = len(c.Turns) - 1
	}

	capture.SetRequest([]byte(`{"scripted":true}`), map[string]any{"turn": turn})

	out := make(chan llm.StreamEvent, len(c.Turns[turn])+1)
	go func() {
		defer close(out)
		for _, ev := range c.Turns[turn] {
			select {
			case <-ctx.Done():
				out <- llm.ErrorEvent(llm.NewProviderError(llm.ErrorKindServiceUnavailable, "canceled", ctx.Err()))
				return
			case out <- ev:
			}
		}
	}()
	return out
}

// Calls reports how many times StreamGenerate ran.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Prompt returns the prompt of call i.
func (c *ScriptedClient) Prompt(i int) llm.Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts[i]
}

// Config returns the effective configuration of call i.
func (c *ScriptedClient) Config(i int) llm.EffectiveConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configs[i]
}

// TextTurn builds the event sequence of a plain streamed answer.
func TextTurn(chunks []string, usage llm.Usage, model string) []llm.StreamEvent {
	var events []llm.StreamEvent
	var answer string
	for _, chunk := range chunks {
		answer += chunk
		events = append(events, llm.DeltaEvent(chunk))
	}
	events = append(events,
		llm.UsageEvent(usage),
		llm.ResultEvent(llm.Result{Answer: answer, Usage: usage, Model: model}),
	)
	return events
}

// ToolCallTurn builds the event sequence of a turn that ends in a
// function call.
func ToolCallTurn(call llm.FunctionCall, usage llm.Usage, model string) []llm.StreamEvent {
	return []llm.StreamEvent{
		llm.FunctionCallEvent(call),
		llm.UsageEvent(usage),
		llm.ResultEvent(llm.Result{Usage: usage, Model: model}),
	}
}

// ErrorTurn builds the event sequence of a failed call.
func ErrorTurn(kind llm.ErrorKind, message string) []llm.StreamEvent {
	return []llm.StreamEvent{
		llm.ErrorEvent(llm.NewProviderError(kind, message, nil)),
	}
}
