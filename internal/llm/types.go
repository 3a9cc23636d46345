// Package llm defines the provider-agnostic types for the request
// orchestration pipeline: canonical prompts, stream events, the provider
// client contract, the error taxonomy, and effective-config resolution.
//
// Provider-specific wire framing (Gemini contents/parts vs. OpenAI-style
// flat messages) lives in the client subpackages; nothing above the client
// layer branches on provider identity.
package llm

// Role identifies the author of a content entry.
type Role string

// Canonical roles. Providers map these onto their own wire roles.
const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// FunctionCall is a model-issued request to invoke a named tool.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponse carries a tool's result back to the model.
type FunctionResponse struct {
	Name   string         `json:"name"`
	Result map[string]any `json:"result,omitempty"`
}

// Part is one unit of content: exactly one of Text, FunctionCall, or
// FunctionResponse is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// IsZero reports whether the part carries no content at all.
func (p Part) IsZero() bool {
	return p.Text == "" && p.FunctionCall == nil && p.FunctionResponse == nil
}

// TextPart builds a text part.
func TextPart(text string) Part { return Part{Text: text} }

// Content is one entry of conversation history.
type Content struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// ToolDefinition declares a callable tool to the provider.
// InputSchema is a JSON Schema object describing the tool's arguments.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Prompt is the canonical, provider-agnostic prompt for one call.
// Built fresh per call; immutable once passed to a provider client.
type Prompt struct {
	SystemInstruction string
	Contents          []Content
	Tools             []ToolDefinition
}

// Usage holds raw token counters for one provider call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	ThinkingTokens   int `json:"thinking_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage block into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.ThinkingTokens += other.ThinkingTokens
	u.TotalTokens += other.TotalTokens
}

// SafetyRating is a provider-reported content safety verdict.
type SafetyRating struct {
	Category string `json:"category"`
	Blocked  bool   `json:"blocked"`
}

// Result is the assembled outcome of one orchestrated call.
type Result struct {
	Answer         string  `json:"answer"`
	Usage          Usage   `json:"usage"`
	CostUSD        float64 `json:"cost_usd,omitempty"`
	DebugID        string  `json:"debug_id,omitempty"`
	Model          string  `json:"model"`
	ConversationID string  `json:"conversation_id,omitempty"`
}
