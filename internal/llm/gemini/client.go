// Package gemini implements the Gemini-style provider client on top of the
// official google.golang.org/genai SDK.
//
// Framing: canonical contents map onto genai contents with parts, and the
// system instruction travels as a dedicated object, never as a content
// entry. Capability gating has already happened in the resolver; this
// adapter only translates what it is given.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/versolabs/verso/internal/catalog"
	"github.com/versolabs/verso/internal/llm"
)

// Config contains the parameters for creating a Client.
type Config struct {
	APIKey string
	Logger *slog.Logger
}

// Client streams generation calls against the Gemini API.
// Safe for concurrent use; all per-call state lives on the stack.
type Client struct {
	genai  *genai.Client
	apiKey string
	logger *slog.Logger
}

// New creates a Gemini client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Client{genai: gc, apiKey: cfg.APIKey, logger: logger}, nil
}

// Provider implements llm.Client.
func (c *Client) Provider() string { return catalog.ProviderGemini }

// StreamGenerate implements llm.Client.
func (c *Client) StreamGenerate(ctx context.Context, prompt llm.Prompt, modelOverride string, cfg llm.EffectiveConfig, capture *llm.DebugCapture) <-chan llm.StreamEvent {
	out := make(chan llm.StreamEvent, 16)
	go func() {
		defer close(out)
		c.run(ctx, prompt, modelOverride, cfg, capture, out)
	}()
	return out
}

func (c *Client) run(ctx context.Context, prompt llm.Prompt, modelOverride string, cfg llm.EffectiveConfig, capture *llm.DebugCapture, out chan<- llm.StreamEvent) {
	model := cfg.Model
	if modelOverride != "" {
		model = modelOverride
	}

	contents := toContents(prompt.Contents)
	genCfg := c.toGenerateConfig(prompt, cfg)

	c.captureRequest(capture, model, contents, genCfg)

	var (
		answer    strings.Builder
		usage     llm.Usage
		gotSafety = make(map[string]bool)
	)

	for resp, err := range c.genai.Models.GenerateContentStream(ctx, model, contents, genCfg) {
		if err != nil {
			out <- llm.ErrorEvent(c.classify(err))
			return
		}

		if raw, merr := json.Marshal(resp); merr == nil {
			capture.AddChunk(raw)
		}

		if resp.UsageMetadata != nil {
			// Counters are cumulative across chunks; keep the latest.
			usage = llm.Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				ThinkingTokens:   int(resp.UsageMetadata.ThoughtsTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}
		}

		for _, cand := range resp.Candidates {
			for _, rating := range cand.SafetyRatings {
				key := string(rating.Category)
				if !gotSafety[key] {
					gotSafety[key] = true
					out <- llm.SafetyEvent(llm.SafetyRating{
						Category: key,
						Blocked:  rating.Blocked,
					})
				}
			}
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					out <- llm.FunctionCallEvent(llm.FunctionCall{
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					})
				case part.Text != "" && part.Thought:
					out <- llm.ThinkingDeltaEvent(part.Text)
				case part.Text != "":
					answer.WriteString(part.Text)
					out <- llm.DeltaEvent(part.Text)
				}
			}
		}
	}

	out <- llm.UsageEvent(usage)
	out <- llm.ResultEvent(llm.Result{
		Answer: answer.String(),
		Usage:  usage,
		Model:  model,
	})
}

// classify maps a genai error into the shared taxonomy, with the API key
// redacted from anything that propagates.
func (c *Client) classify(err error) *llm.ProviderError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := llm.ClassifyStatus(apiErr.Code); ok {
			return llm.NewProviderError(kind, apiErr.Message, err, c.apiKey)
		}
	}
	return llm.NewProviderError(llm.ClassifyError(err), err.Error(), err, c.apiKey)
}

func (c *Client) toGenerateConfig(prompt llm.Prompt, cfg llm.EffectiveConfig) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{}

	system := prompt.SystemInstruction
	if cfg.SystemPromptOverride != "" {
		system = cfg.SystemPromptOverride
	}
	if system != "" {
		out.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	out.Temperature = cfg.Generation.Temperature
	out.TopP = cfg.Generation.TopP
	if cfg.Generation.TopK != nil {
		topK := float32(*cfg.Generation.TopK)
		out.TopK = &topK
	}
	if cfg.Generation.MaxOutputTokens != nil {
		out.MaxOutputTokens = *cfg.Generation.MaxOutputTokens
	}
	out.StopSequences = cfg.Generation.StopSequences

	if cfg.Thinking != nil && cfg.Thinking.Enabled {
		budget := cfg.Thinking.BudgetTokens
		out.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  &budget,
		}
	}

	if cfg.Safety != nil && cfg.Safety.Enabled {
		out.SafetySettings = toSafetySettings(cfg.Safety.Thresholds)
	}

	if cfg.ContextCacheRef != "" {
		out.CachedContent = cfg.ContextCacheRef
	}

	if len(prompt.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(prompt.Tools))
		for _, t := range prompt.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.InputSchema,
			})
		}
		out.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	return out
}

func (c *Client) captureRequest(capture *llm.DebugCapture, model string, contents []*genai.Content, genCfg *genai.GenerateContentConfig) {
	body := map[string]any{
		"model":    model,
		"contents": contents,
		"config":   genCfg,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		c.logger.Warn("marshaling gemini request for capture", "error", err)
		return
	}
	params := map[string]any{
		"model":             model,
		"temperature":       genCfg.Temperature,
		"top_p":             genCfg.TopP,
		"top_k":             genCfg.TopK,
		"max_output_tokens": genCfg.MaxOutputTokens,
		"thinking":          genCfg.ThinkingConfig != nil,
		"safety_settings":   len(genCfg.SafetySettings),
		"cached_content":    genCfg.CachedContent,
		"tools":             len(genCfg.Tools),
	}
	capture.SetRequest(raw, params)
}

// toContents converts canonical contents into genai framing.
// Tool results are carried in user-role contents; Gemini has no tool role.
func toContents(contents []llm.Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))
	for _, c := range contents {
		gc := &genai.Content{Role: toRole(c.Role)}
		for _, p := range c.Parts {
			switch {
			case p.FunctionCall != nil:
				gc.Parts = append(gc.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args},
				})
			case p.FunctionResponse != nil:
				gc.Parts = append(gc.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{Name: p.FunctionResponse.Name, Response: p.FunctionResponse.Result},
				})
			case p.Text != "":
				gc.Parts = append(gc.Parts, &genai.Part{Text: p.Text})
			}
		}
		if len(gc.Parts) > 0 {
			out = append(out, gc)
		}
	}
	return out
}

func toRole(r llm.Role) string {
	switch r {
	case llm.RoleModel:
		return "model"
	default:
		return "user"
	}
}

// toSafetySettings maps threshold names onto genai enums. Category keys may
// be given with or without the HARM_CATEGORY_ prefix.
func toSafetySettings(thresholds map[string]string) []*genai.SafetySetting {
	if len(thresholds) == 0 {
		// Enabled with no explicit thresholds: block medium and above across
		// the standard categories.
		thresholds = map[string]string{
			"HARASSMENT":        "BLOCK_MEDIUM_AND_ABOVE",
			"HATE_SPEECH":       "BLOCK_MEDIUM_AND_ABOVE",
			"SEXUALLY_EXPLICIT": "BLOCK_MEDIUM_AND_ABOVE",
			"DANGEROUS_CONTENT": "BLOCK_MEDIUM_AND_ABOVE",
		}
	}
	out := make([]*genai.SafetySetting, 0, len(thresholds))
	for category, threshold := range thresholds {
		if !strings.HasPrefix(category, "HARM_CATEGORY_") {
			category = "HARM_CATEGORY_" + category
		}
		out = append(out, &genai.SafetySetting{
			Category:  genai.HarmCategory(category),
			Threshold: genai.HarmBlockThreshold(threshold),
		})
	}
	return out
}
