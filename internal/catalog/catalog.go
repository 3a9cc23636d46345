// Package catalog provides the static model capability registry.
//
// The registry maps model identifiers to the feature set a model supports
// (thinking, safety settings, top-k, context caching, function calling,
// streaming, system prompt) plus optional pricing. It is loaded once at
// process start and is read-only for the process lifetime, so it is safe
// for unlimited concurrent readers without locking.
package catalog

// Provider identifiers used in capability records and configuration.
const (
	ProviderGemini = "gemini"
	ProviderOVHAI  = "ovhai"
)

// Feature identifies a capability-gated generation feature.
type Feature string

// Capability-gated features. Config resolution drops any setting whose
// feature the target model does not support.
const (
	FeatureThinking        Feature = "thinking"
	FeatureSafetySettings  Feature = "safety_settings"
	FeatureTopK            Feature = "top_k"
	FeatureContextCaching  Feature = "context_caching"
	FeatureFunctionCalling Feature = "function_calling"
	FeatureStreaming       Feature = "streaming"
	FeatureSystemPrompt    Feature = "system_prompt"
)

// Pricing holds per-million-token prices in USD.
type Pricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Capabilities is an immutable description of what a model supports.
// Created once at registry load and never mutated.
type Capabilities struct {
	Model    string
	Provider string

	Thinking        bool
	SafetySettings  bool
	TopK            bool
	ContextCaching  bool
	FunctionCalling bool
	Streaming       bool
	SystemPrompt    bool

	// FoldsThinkingTokens marks providers that report thinking tokens inside
	// the completion counter. The token accounting identity check tolerates
	// the resulting mismatch for these models.
	FoldsThinkingTokens bool

	Pricing *Pricing
}

// Supports reports whether the model supports the given feature.
func (c Capabilities) Supports(f Feature) bool {
	switch f {
	case FeatureThinking:
		return c.Thinking
	case FeatureSafetySettings:
		return c.SafetySettings
	case FeatureTopK:
		return c.TopK
	case FeatureContextCaching:
		return c.ContextCaching
	case FeatureFunctionCalling:
		return c.FunctionCalling
	case FeatureStreaming:
		return c.Streaming
	case FeatureSystemPrompt:
		return c.SystemPrompt
	default:
		return false
	}
}

// Registry is the process-wide model capability lookup.
// Safe for concurrent use: the table is never written after New returns.
type Registry struct {
	models map[string]Capabilities
	// order preserves registration order for ModelsForProvider.
	order []string
}

// New creates a registry loaded with the built-in model table.
func New() *Registry {
	r := &Registry{models: make(map[string]Capabilities)}
	for _, c := range builtinModels {
		r.models[c.Model] = c
		r.order = append(r.order, c.Model)
	}
	return r
}

// Capabilities returns the capability record for modelID.
// It never fails: unregistered models get a conservative default with all
// optional features off and function calling, streaming, and system prompt
// on, favoring broad compatibility over rejecting unknown models.
func (r *Registry) Capabilities(modelID string) Capabilities {
	if c, ok := r.models[modelID]; ok {
		return c
	}
	return Capabilities{
		Model:           modelID,
		FunctionCalling: true,
		Streaming:       true,
		SystemPrompt:    true,
	}
}

// ModelsForProvider returns the registered model IDs for a provider,
// in registration order.
func (r *Registry) ModelsForProvider(provider string) []string {
	var out []string
	for _, id := range r.order {
		if r.models[id].Provider == provider {
			out = append(out, id)
		}
	}
	return out
}

// builtinModels is the static capability table. Prices are USD per million
// tokens. OVH AI Endpoints models report thinking tokens folded into the
// completion counter.
var builtinModels = []Capabilities{
	{
		Model:           "gemini-2.5-flash",
		Provider:        ProviderGemini,
		Thinking:        true,
		SafetySettings:  true,
		TopK:            true,
		ContextCaching:  true,
		FunctionCalling: true,
		Streaming:       true,
		SystemPrompt:    true,
		Pricing:         &Pricing{InputPerMTok: 0.30, OutputPerMTok: 2.50},
	},
	{
		Model:           "gemini-2.5-pro",
		Provider:        ProviderGemini,
		Thinking:        true,
		SafetySettings:  true,
		TopK:            true,
		ContextCaching:  true,
		FunctionCalling: true,
		Streaming:       true,
		SystemPrompt:    true,
		Pricing:         &Pricing{InputPerMTok: 1.25, OutputPerMTok: 10.00},
	},
	{
		Model:           "gemini-2.0-flash-lite",
		Provider:        ProviderGemini,
		SafetySettings:  true,
		TopK:            true,
		FunctionCalling: true,
		Streaming:       true,
		SystemPrompt:    true,
		Pricing:         &Pricing{InputPerMTok: 0.075, OutputPerMTok: 0.30},
	},
	{
		Model:               "Meta-Llama-3_3-70B-Instruct",
		Provider:            ProviderOVHAI,
		FunctionCalling:     true,
		Streaming:           true,
		SystemPrompt:        true,
		FoldsThinkingTokens: true,
		Pricing:             &Pricing{InputPerMTok: 0.67, OutputPerMTok: 0.67},
	},
	{
		Model:               "DeepSeek-R1-Distill-Llama-70B",
		Provider:            ProviderOVHAI,
		Thinking:            true,
		FunctionCalling:     false,
		Streaming:           true,
		SystemPrompt:        true,
		FoldsThinkingTokens: true,
		Pricing:             &Pricing{InputPerMTok: 0.67, OutputPerMTok: 0.67},
	},
	{
		Model:               "Mistral-Small-3_2-24B-Instruct-2506",
		Provider:            ProviderOVHAI,
		FunctionCalling:     true,
		Streaming:           true,
		SystemPrompt:        true,
		FoldsThinkingTokens: true,
		Pricing:             &Pricing{InputPerMTok: 0.09, OutputPerMTok: 0.28},
	},
}
