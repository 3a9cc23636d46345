package llm

import (
	"testing"

	"github.com/versolabs/verso/internal/catalog"
)

func f32(v float32) *float32 { return &v }

func i32(v int32) *int32 { return &v }

func fullCaps() catalog.Capabilities {
	return catalog.Capabilities{
		Model:           "test-model",
		Thinking:        true,
		SafetySettings:  true,
		TopK:            true,
		ContextCaching:  true,
		FunctionCalling: true,
		Streaming:       true,
		SystemPrompt:    true,
	}
}

func baseDefaults() Defaults {
	return Defaults{
		Provider: "gemini",
		Model:    "test-model",
		Generation: GenerationParams{
			Temperature:     f32(0.7),
			TopP:            f32(0.9),
			TopK:            i32(40),
			MaxOutputTokens: i32(2048),
		},
		Thinking:  &ThinkingSettings{Enabled: true, BudgetTokens: 4096},
		Streaming: true,
	}
}

func TestResolveBaseOnly(t *testing.T) {
	t.Parallel()

	cfg := Resolve(baseDefaults(), nil, fullCaps())

	if cfg.Provider != "gemini" || cfg.Model != "test-model" {
		t.Errorf("provider/model = %s/%s", cfg.Provider, cfg.Model)
	}
	if *cfg.Generation.Temperature != 0.7 || *cfg.Generation.TopK != 40 {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	if cfg.Thinking == nil || cfg.Thinking.BudgetTokens != 4096 {
		t.Errorf("thinking = %+v", cfg.Thinking)
	}
	if !cfg.Streaming {
		t.Error("streaming lost")
	}
}

func TestResolvePresetOverrides(t *testing.T) {
	t.Parallel()

	off := false
	preset := &Preset{
		Name:  "custom",
		Model: "other-model",
		Generation: GenerationParams{
			Temperature: f32(0.1),
		},
		Thinking:     &ThinkingSettings{Enabled: false},
		SystemPrompt: "be terse",
		Streaming:    &off,
	}

	cfg := Resolve(baseDefaults(), preset, fullCaps())

	if cfg.Model != "other-model" {
		t.Errorf("Model = %s, want preset model", cfg.Model)
	}
	if *cfg.Generation.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want preset value", *cfg.Generation.Temperature)
	}
	// Unset preset fields inherit from base.
	if *cfg.Generation.TopP != 0.9 || *cfg.Generation.MaxOutputTokens != 2048 {
		t.Errorf("inherited generation = %+v", cfg.Generation)
	}
	if cfg.Thinking == nil || cfg.Thinking.Enabled {
		t.Errorf("Thinking = %+v, want preset's disabled block", cfg.Thinking)
	}
	if cfg.SystemPromptOverride != "be terse" {
		t.Errorf("SystemPromptOverride = %q", cfg.SystemPromptOverride)
	}
	if cfg.Streaming {
		t.Error("preset streaming=false ignored")
	}
}

func TestResolveCapabilityGating(t *testing.T) {
	t.Parallel()

	preset := &Preset{
		Name:            "everything",
		Safety:          &SafetySettings{Enabled: true},
		ContextCacheRef: "caches/abc",
	}
	caps := catalog.Capabilities{Model: "limited", FunctionCalling: true, SystemPrompt: true}

	cfg := Resolve(baseDefaults(), preset, caps)

	// Gating wins over both base and preset, whatever their origin.
	if cfg.Thinking != nil {
		t.Error("thinking survived gating")
	}
	if cfg.Safety != nil {
		t.Error("safety settings survived gating")
	}
	if cfg.Generation.TopK != nil {
		t.Error("top-k survived gating")
	}
	if cfg.ContextCacheRef != "" {
		t.Error("context cache ref survived gating")
	}
	if cfg.Streaming {
		t.Error("streaming survived gating")
	}
}

func TestResolveClamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		preset      *Preset
		wantBudget  int32
		wantSize    int
		wantOverlap int
	}{
		{
			name:       "negative thinking budget clamps to zero",
			preset:     &Preset{Thinking: &ThinkingSettings{Enabled: true, BudgetTokens: -100}},
			wantBudget: 0,
		},
		{
			name:        "chunk size below minimum",
			preset:      &Preset{ChunkSize: 10, ChunkOverlap: 5},
			wantBudget:  4096,
			wantSize:    MinChunkSize,
			wantOverlap: 5,
		},
		{
			name:        "chunk size above maximum",
			preset:      &Preset{ChunkSize: 50000, ChunkOverlap: 100},
			wantBudget:  4096,
			wantSize:    MaxChunkSize,
			wantOverlap: 100,
		},
		{
			name:        "overlap clamped against size",
			preset:      &Preset{ChunkSize: 200, ChunkOverlap: 500},
			wantBudget:  4096,
			wantSize:    200,
			wantOverlap: 150,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Resolve(baseDefaults(), tt.preset, fullCaps())
			if cfg.Thinking.BudgetTokens != tt.wantBudget {
				t.Errorf("BudgetTokens = %d, want %d", cfg.Thinking.BudgetTokens, tt.wantBudget)
			}
			if cfg.ChunkSize != tt.wantSize {
				t.Errorf("ChunkSize = %d, want %d", cfg.ChunkSize, tt.wantSize)
			}
			if cfg.ChunkOverlap != tt.wantOverlap {
				t.Errorf("ChunkOverlap = %d, want %d", cfg.ChunkOverlap, tt.wantOverlap)
			}
		})
	}
}

func TestResolveDoesNotAliasBase(t *testing.T) {
	t.Parallel()

	base := baseDefaults()
	base.Safety = &SafetySettings{Enabled: true, Thresholds: map[string]string{"HARASSMENT": "BLOCK_LOW_AND_ABOVE"}}

	cfg := Resolve(base, nil, fullCaps())
	cfg.Safety.Thresholds["HARASSMENT"] = "mutated"
	cfg.Thinking.BudgetTokens = 1

	if base.Safety.Thresholds["HARASSMENT"] != "BLOCK_LOW_AND_ABOVE" {
		t.Error("resolved config aliases base safety thresholds")
	}
	if base.Thinking.BudgetTokens != 4096 {
		t.Error("resolved config aliases base thinking settings")
	}
}
