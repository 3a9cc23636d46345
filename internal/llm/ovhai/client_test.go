package ovhai

import (
	"testing"

	"github.com/versolabs/verso/internal/llm"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Error("New without an API key should fail")
	}
}

func TestParseArguments(t *testing.T) {
	t.Parallel()

	args := parseArguments(`{"risk_level":"HIGH","category":"VIOLENCE"}`)
	if args["risk_level"] != "HIGH" || args["category"] != "VIOLENCE" {
		t.Errorf("args = %v", args)
	}

	// Malformed arguments must not abort the turn.
	for _, bad := range []string{"", "{", "not json"} {
		if got := parseArguments(bad); got == nil || len(got) != 0 {
			t.Errorf("parseArguments(%q) = %v, want empty map", bad, got)
		}
	}
}

func TestToMessages(t *testing.T) {
	t.Parallel()

	prompt := llm.Prompt{
		SystemInstruction: "base persona",
		Contents: []llm.Content{
			{Role: llm.RoleUser, Parts: []llm.Part{{Text: "what is the weather"}}},
			{Role: llm.RoleModel, Parts: []llm.Part{
				{FunctionCall: &llm.FunctionCall{Name: "get_weather", Args: map[string]any{"city": "Paris"}}},
			}},
			{Role: llm.RoleTool, Parts: []llm.Part{
				{FunctionResponse: &llm.FunctionResponse{Name: "get_weather", Result: map[string]any{"temp_c": 21}}},
			}},
			{Role: llm.RoleModel, Parts: []llm.Part{{Text: "It is 21C in Paris."}}},
		},
	}

	msgs := toMessages(prompt, llm.EffectiveConfig{})

	if len(msgs) != 5 {
		t.Fatalf("len(msgs) = %d, want 5", len(msgs))
	}
	if msgs[0].OfSystem == nil {
		t.Fatal("first message should carry the system instruction")
	}
	if msgs[1].OfUser == nil {
		t.Error("msgs[1] should be a user message")
	}

	assistant := msgs[2].OfAssistant
	if assistant == nil || len(assistant.ToolCalls) != 1 {
		t.Fatalf("msgs[2] = %+v, want assistant tool call", msgs[2])
	}
	call := assistant.ToolCalls[0].OfFunction
	if call == nil || call.Function.Name != "get_weather" {
		t.Fatalf("tool call = %+v", assistant.ToolCalls[0])
	}

	tool := msgs[3].OfTool
	if tool == nil {
		t.Fatalf("msgs[3] = %+v, want tool message", msgs[3])
	}
	// The synthesized call ID must pair the tool result with its call.
	if tool.ToolCallID != call.ID {
		t.Errorf("ToolCallID = %q, call ID = %q", tool.ToolCallID, call.ID)
	}

	if msgs[4].OfAssistant == nil {
		t.Error("msgs[4] should be an assistant text message")
	}
}

func TestToMessagesRepeatedToolCalls(t *testing.T) {
	t.Parallel()

	prompt := llm.Prompt{
		Contents: []llm.Content{
			{Role: llm.RoleModel, Parts: []llm.Part{
				{FunctionCall: &llm.FunctionCall{Name: "get_weather", Args: map[string]any{"city": "Paris"}}},
				{FunctionCall: &llm.FunctionCall{Name: "get_weather", Args: map[string]any{"city": "Oslo"}}},
			}},
			{Role: llm.RoleTool, Parts: []llm.Part{
				{FunctionResponse: &llm.FunctionResponse{Name: "get_weather", Result: map[string]any{"temp_c": 21}}},
				{FunctionResponse: &llm.FunctionResponse{Name: "get_weather", Result: map[string]any{"temp_c": 4}}},
			}},
		},
	}

	msgs := toMessages(prompt, llm.EffectiveConfig{})

	var callIDs []string
	var toolIDs []string
	for _, msg := range msgs {
		if msg.OfAssistant != nil {
			for _, tc := range msg.OfAssistant.ToolCalls {
				if tc.OfFunction != nil {
					callIDs = append(callIDs, tc.OfFunction.ID)
				}
			}
		}
		if msg.OfTool != nil {
			toolIDs = append(toolIDs, msg.OfTool.ToolCallID)
		}
	}

	if len(callIDs) != 2 || len(toolIDs) != 2 {
		t.Fatalf("call IDs = %v, tool IDs = %v", callIDs, toolIDs)
	}
	if callIDs[0] == callIDs[1] {
		t.Errorf("repeated calls share the ID %q", callIDs[0])
	}
	// Results pair with calls in emission order.
	if toolIDs[0] != callIDs[0] || toolIDs[1] != callIDs[1] {
		t.Errorf("tool IDs %v do not pair with call IDs %v", toolIDs, callIDs)
	}
}

func TestToMessagesSystemPromptOverride(t *testing.T) {
	t.Parallel()

	prompt := llm.Prompt{
		SystemInstruction: "base persona",
		Contents:          []llm.Content{{Role: llm.RoleUser, Parts: []llm.Part{{Text: "hi"}}}},
	}
	cfg := llm.EffectiveConfig{SystemPromptOverride: "preset persona"}

	msgs := toMessages(prompt, cfg)
	if msgs[0].OfSystem == nil {
		t.Fatal("missing system message")
	}
	if got := msgs[0].OfSystem.Content.OfString.Value; got != "preset persona" {
		t.Errorf("system message = %q, want the per-call override", got)
	}
}

func TestToParams(t *testing.T) {
	t.Parallel()

	c := &Client{}
	temp := float32(0.2)
	maxTokens := int32(512)

	cfg := llm.EffectiveConfig{
		Model: "Meta-Llama-3_3-70B-Instruct",
		Generation: llm.GenerationParams{
			Temperature:     &temp,
			MaxOutputTokens: &maxTokens,
			StopSequences:   []string{"</answer>"},
		},
		Thinking: &llm.ThinkingSettings{Enabled: true, ReasoningEffort: "low"},
	}
	prompt := llm.Prompt{
		Contents: []llm.Content{{Role: llm.RoleUser, Parts: []llm.Part{{Text: "hi"}}}},
		Tools: []llm.ToolDefinition{
			{Name: "lookup", Description: "Look things up", InputSchema: map[string]any{"type": "object"}},
		},
	}

	params := c.toParams(prompt, "Meta-Llama-3_3-70B-Instruct", cfg)

	if string(params.Model) != "Meta-Llama-3_3-70B-Instruct" {
		t.Errorf("Model = %q", params.Model)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.2 {
		t.Errorf("Temperature = %+v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 512 {
		t.Errorf("MaxCompletionTokens = %+v", params.MaxCompletionTokens)
	}
	if len(params.Stop.OfStringArray) != 1 {
		t.Errorf("Stop = %+v", params.Stop)
	}
	if string(params.ReasoningEffort) != "low" {
		t.Errorf("ReasoningEffort = %q", params.ReasoningEffort)
	}
	if len(params.Tools) != 1 {
		t.Errorf("Tools = %+v", params.Tools)
	}
	if !params.StreamOptions.IncludeUsage.Valid() || !params.StreamOptions.IncludeUsage.Value {
		t.Error("streaming usage reporting should be requested")
	}
}
