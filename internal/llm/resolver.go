package llm

import (
	"github.com/versolabs/verso/internal/catalog"
)

// Chunk size bounds for context-cache upload chunking, clamped at
// resolution time.
const (
	MinChunkSize = 100
	MaxChunkSize = 20000
)

// GenerationParams are the provider-agnostic sampling parameters.
// Pointer fields distinguish "unset" from zero values.
type GenerationParams struct {
	Temperature     *float32 `json:"temperature,omitempty" mapstructure:"temperature"`
	TopP            *float32 `json:"top_p,omitempty" mapstructure:"top_p"`
	TopK            *int32   `json:"top_k,omitempty" mapstructure:"top_k"`
	MaxOutputTokens *int32   `json:"max_output_tokens,omitempty" mapstructure:"max_output_tokens"`
	StopSequences   []string `json:"stop_sequences,omitempty" mapstructure:"stop_sequences"`
}

// SafetySettings enable provider-side content filtering.
// Thresholds maps harm category to a provider-interpreted threshold name.
type SafetySettings struct {
	Enabled    bool              `json:"enabled" mapstructure:"enabled"`
	Thresholds map[string]string `json:"thresholds,omitempty" mapstructure:"thresholds"`
}

// ThinkingSettings control extended reasoning for models that support it.
type ThinkingSettings struct {
	Enabled         bool   `json:"enabled" mapstructure:"enabled"`
	BudgetTokens    int32  `json:"budget_tokens,omitempty" mapstructure:"budget_tokens"`
	ReasoningEffort string `json:"reasoning_effort,omitempty" mapstructure:"reasoning_effort"`
}

// Defaults is the global base generation configuration.
type Defaults struct {
	Provider   string            `mapstructure:"provider"`
	Model      string            `mapstructure:"model"`
	Generation GenerationParams  `mapstructure:"generation"`
	Safety     *SafetySettings   `mapstructure:"safety"`
	Thinking   *ThinkingSettings `mapstructure:"thinking"`
	Streaming  bool              `mapstructure:"streaming"`
}

// Preset is a named, partial override of the base configuration.
// Nil/empty fields inherit from the base.
type Preset struct {
	Name            string            `mapstructure:"name"`
	Provider        string            `mapstructure:"provider"`
	Model           string            `mapstructure:"model"`
	Generation      GenerationParams  `mapstructure:"generation"`
	Safety          *SafetySettings   `mapstructure:"safety"`
	Thinking        *ThinkingSettings `mapstructure:"thinking"`
	ContextCacheRef string            `mapstructure:"context_cache_ref"`
	ChunkSize       int               `mapstructure:"chunk_size"`
	ChunkOverlap    int               `mapstructure:"chunk_overlap"`
	Streaming       *bool             `mapstructure:"streaming"`
	SystemPrompt    string            `mapstructure:"system_prompt"`
}

// EffectiveConfig is the merged generation configuration for one call.
// Built per call by Resolve; read-only afterward; never persisted directly.
type EffectiveConfig struct {
	Provider             string            `json:"provider"`
	Model                string            `json:"model"`
	Generation           GenerationParams  `json:"generation"`
	Safety               *SafetySettings   `json:"safety,omitempty"`
	Thinking             *ThinkingSettings `json:"thinking,omitempty"`
	ContextCacheRef      string            `json:"context_cache_ref,omitempty"`
	ChunkSize            int               `json:"chunk_size,omitempty"`
	ChunkOverlap         int               `json:"chunk_overlap,omitempty"`
	Streaming            bool              `json:"streaming"`
	SystemPromptOverride string            `json:"system_prompt_override,omitempty"`
}

// Resolve merges the global base configuration with an optional preset and
// gates the result by model capabilities.
//
// Merge order: preset values win over base values where present; capability
// gating wins over both. Gating is applied last and unconditionally —
// sending an unsupported parameter is a hard error on some providers and a
// silent no-op on others, and the resolver's job is to make the outcome
// deterministic rather than provider-dependent.
//
// Exactly one EffectiveConfig exists per orchestrated call.
func Resolve(base Defaults, preset *Preset, caps catalog.Capabilities) EffectiveConfig {
	cfg := EffectiveConfig{
		Provider:   base.Provider,
		Model:      base.Model,
		Generation: base.Generation,
		Safety:     copySafety(base.Safety),
		Thinking:   copyThinking(base.Thinking),
		Streaming:  base.Streaming,
	}

	if preset != nil {
		if preset.Provider != "" {
			cfg.Provider = preset.Provider
		}
		if preset.Model != "" {
			cfg.Model = preset.Model
		}
		if preset.Generation.Temperature != nil {
			cfg.Generation.Temperature = preset.Generation.Temperature
		}
		if preset.Generation.TopP != nil {
			cfg.Generation.TopP = preset.Generation.TopP
		}
		if preset.Generation.TopK != nil {
			cfg.Generation.TopK = preset.Generation.TopK
		}
		if preset.Generation.MaxOutputTokens != nil {
			cfg.Generation.MaxOutputTokens = preset.Generation.MaxOutputTokens
		}
		if len(preset.Generation.StopSequences) > 0 {
			cfg.Generation.StopSequences = preset.Generation.StopSequences
		}
		if preset.Safety != nil {
			cfg.Safety = copySafety(preset.Safety)
		}
		if preset.Thinking != nil {
			cfg.Thinking = copyThinking(preset.Thinking)
		}
		if preset.ContextCacheRef != "" {
			cfg.ContextCacheRef = preset.ContextCacheRef
		}
		if preset.ChunkSize > 0 {
			cfg.ChunkSize = preset.ChunkSize
		}
		if preset.ChunkOverlap > 0 {
			cfg.ChunkOverlap = preset.ChunkOverlap
		}
		if preset.Streaming != nil {
			cfg.Streaming = *preset.Streaming
		}
		if preset.SystemPrompt != "" {
			cfg.SystemPromptOverride = preset.SystemPrompt
		}
	}

	// Capability gating: drop unsupported fields regardless of origin.
	if !caps.Supports(catalog.FeatureThinking) {
		cfg.Thinking = nil
	}
	if !caps.Supports(catalog.FeatureSafetySettings) {
		cfg.Safety = nil
	}
	if !caps.Supports(catalog.FeatureTopK) {
		cfg.Generation.TopK = nil
	}
	if !caps.Supports(catalog.FeatureContextCaching) {
		cfg.ContextCacheRef = ""
	}
	if !caps.Supports(catalog.FeatureStreaming) {
		cfg.Streaming = false
	}
	if !caps.Supports(catalog.FeatureSystemPrompt) {
		cfg.SystemPromptOverride = ""
	}

	// Range clamping. Temperature and top-p/top-k ranges are provider-specific
	// and left to the provider; thinking budget and chunk bounds are ours.
	if cfg.Thinking != nil && cfg.Thinking.BudgetTokens < 0 {
		cfg.Thinking.BudgetTokens = 0
	}
	if cfg.ChunkSize != 0 {
		cfg.ChunkSize = min(max(cfg.ChunkSize, MinChunkSize), MaxChunkSize)
	}
	if cfg.ChunkOverlap != 0 && cfg.ChunkSize != 0 {
		cfg.ChunkOverlap = min(max(cfg.ChunkOverlap, 0), cfg.ChunkSize-50)
	}

	return cfg
}

func copySafety(s *SafetySettings) *SafetySettings {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Thresholds != nil {
		cp.Thresholds = make(map[string]string, len(s.Thresholds))
		for k, v := range s.Thresholds {
			cp.Thresholds[k] = v
		}
	}
	return &cp
}

func copyThinking(t *ThinkingSettings) *ThinkingSettings {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
