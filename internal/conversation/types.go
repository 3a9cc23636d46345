// Package conversation persists conversations and their messages in
// PostgreSQL, with optional at-rest encryption of message content.
package conversation

import (
	"time"

	"github.com/versolabs/verso/internal/llm"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
	StatusDeleted  Status = "DELETED"
)

// Conversation is one persisted chat thread.
type Conversation struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	Title        string    `json:"title"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// TokenCounts is the per-message usage attribution.
type TokenCounts struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	ThinkingTokens   int `json:"thinking_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Message is one persisted conversation entry. Parts carries the same
// canonical content representation the prompt builder consumes, so stored
// history replays into a new prompt without conversion.
type Message struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	Role           llm.Role           `json:"role"`
	Parts          []llm.Part         `json:"parts"`
	Tokens         TokenCounts        `json:"tokens"`
	Safety         []llm.SafetyRating `json:"safety,omitempty"`
	Metadata       map[string]any     `json:"metadata,omitempty"`
	SequenceNumber int                `json:"sequence_number"`
	CreatedAt      time.Time          `json:"created_at"`
}

// RiskAnnotation is one recorded risk report attached to a conversation.
type RiskAnnotation struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	RiskLevel      string    `json:"risk_level"`
	Category       string    `json:"category"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
