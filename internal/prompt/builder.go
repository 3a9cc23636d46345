// Package prompt builds canonical prompts: the system instruction and a
// sanitized, normalized conversation history.
package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/versolabs/verso/internal/llm"
)

// ContextProvider supplies persona/system-prompt content.
// Implementations own where the text comes from (static config, database).
type ContextProvider interface {
	// SystemPrompt returns the persona text for a key, or "" if unknown.
	SystemPrompt(personaKey string) string

	// InitialContext returns content entries to seed a new conversation.
	InitialContext() []llm.Content
}

// Builder constructs system instructions and sanitized history.
// Pure in-memory computation; no I/O.
type Builder struct {
	contexts ContextProvider
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the time source. Used by tests for deterministic
// system instructions.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// New creates a Builder. contexts may be nil, in which case only the
// built-in default instruction is available.
func New(contexts ContextProvider, logger *slog.Logger, opts ...Option) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		contexts: contexts,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

const defaultInstruction = `You are a helpful, careful assistant embedded in a chat application.
Answer concisely and truthfully. If you are unsure, say so.
Current date and time: %s`

// SystemInstruction returns the system instruction for a persona key.
// The instruction is a plain string, never wrapped as a content entry.
// With no persona (or an unknown key) the default instruction is used,
// with the current date/time interpolated.
func (b *Builder) SystemInstruction(personaKey string) string {
	if personaKey != "" && b.contexts != nil {
		if text := b.contexts.SystemPrompt(personaKey); text != "" {
			return text
		}
		b.logger.Debug("unknown persona key, using default instruction", "persona", personaKey)
	}
	return fmt.Sprintf(defaultInstruction, b.now().Format("2006-01-02 15:04 MST"))
}

// SanitizeHistory normalizes raw history into canonical contents:
//
//   - text parts are forced to valid UTF-8 (invalid sequences replaced)
//   - function-call and function-response parts pass through unchanged
//   - parts left empty after cleaning are removed
//   - entries reduced to zero parts are dropped entirely
//
// The operation is idempotent: sanitizing sanitized history is a no-op.
func (b *Builder) SanitizeHistory(raw []llm.Content) []llm.Content {
	out := make([]llm.Content, 0, len(raw))
	for _, entry := range raw {
		parts := make([]llm.Part, 0, len(entry.Parts))
		for _, p := range entry.Parts {
			switch {
			case p.FunctionCall != nil, p.FunctionResponse != nil:
				parts = append(parts, p)
			default:
				text := SanitizeUTF8(p.Text)
				if text != "" {
					parts = append(parts, llm.TextPart(text))
				}
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, llm.Content{Role: entry.Role, Parts: parts})
	}
	return out
}

// Build assembles the canonical prompt for one call.
//
// In stateless mode history is ignored entirely and only the current
// message (if non-empty) becomes the sole content entry. Exactly one
// canonical prompt exists per orchestrated call.
func (b *Builder) Build(personaKey string, history []llm.Content, message string, stateless bool, tools []llm.ToolDefinition) llm.Prompt {
	p := llm.Prompt{
		SystemInstruction: b.SystemInstruction(personaKey),
		Tools:             tools,
	}

	if stateless {
		if msg := SanitizeUTF8(message); msg != "" {
			p.Contents = []llm.Content{{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart(msg)}}}
		}
		return p
	}

	p.Contents = b.SanitizeHistory(history)
	if msg := SanitizeUTF8(message); msg != "" {
		p.Contents = append(p.Contents, llm.Content{
			Role:  llm.RoleUser,
			Parts: []llm.Part{llm.TextPart(msg)},
		})
	}
	return p
}

// SanitizeUTF8 forces s to valid UTF-8, replacing invalid byte sequences
// with the Unicode replacement character. Any input is re-encodable; this
// never rejects.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}
