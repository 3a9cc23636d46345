// Package ovhai implements the OpenAI-compatible provider client for OVH AI
// Endpoints using the official OpenAI Go SDK with a custom base URL.
//
// Framing: canonical contents flatten into role/content messages, with the
// system instruction injected as the first message. Function calls and
// responses map onto the tool-call message pairs the OpenAI wire format
// expects.
package ovhai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/versolabs/verso/internal/catalog"
	"github.com/versolabs/verso/internal/llm"
)

// DefaultBaseURL is the OVH AI Endpoints OpenAI-compatible API root.
const DefaultBaseURL = "https://oai.endpoints.kepler.ai.cloud.ovh.net/v1"

// Config contains the parameters for creating a Client.
type Config struct {
	BaseURL string // Default: DefaultBaseURL
	APIKey  string
	Logger  *slog.Logger
}

// Client streams chat completions against an OpenAI-compatible endpoint.
// Safe for concurrent use.
type Client struct {
	client openai.Client
	apiKey string
	logger *slog.Logger
}

// New creates an OVH AI Endpoints client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ovhai: API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &Client{client: client, apiKey: cfg.APIKey, logger: logger}, nil
}

// Provider implements llm.Client.
func (c *Client) Provider() string { return catalog.ProviderOVHAI }

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

	params := c.toParams(prompt, model, cfg)
	c.captureRequest(capture, model, cfg, params)

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	var (
		answer strings.Builder
		usage  llm.Usage
	)

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if raw, err := json.Marshal(chunk); err == nil {
			capture.AddChunk(raw)
		}

		if tool, ok := acc.JustFinishedToolCall(); ok {
			out <- llm.FunctionCallEvent(llm.FunctionCall{
				Name: tool.Name,
				Args: parseArguments(tool.Arguments),
			})
		}

		if chunk.Usage.TotalTokens > 0 {
			usage = llm.Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				ThinkingTokens:   int(chunk.Usage.CompletionTokensDetails.ReasoningTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			text := chunk.Choices[0].Delta.Content
			answer.WriteString(text)
			out <- llm.DeltaEvent(text)
		}
	}

	if err := stream.Err(); err != nil {
		out <- llm.ErrorEvent(c.classify(err))
		return
	}

	out <- llm.UsageEvent(usage)
	out <- llm.ResultEvent(llm.Result{
		Answer: answer.String(),
		Usage:  usage,
		Model:  model,
	})
}

// classify maps an OpenAI SDK error into the shared taxonomy, with the API
// key redacted from anything that propagates.
func (c *Client) classify(err error) *llm.ProviderError {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if kind, ok := llm.ClassifyStatus(apiErr.StatusCode); ok {
			return llm.NewProviderError(kind, apiErr.Message, err, c.apiKey)
		}
	}
	return llm.NewProviderError(llm.ClassifyError(err), err.Error(), err, c.apiKey)
}

func (c *Client) toParams(prompt llm.Prompt, model string, cfg llm.EffectiveConfig) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: toMessages(prompt, cfg),
		Model:    openai.ChatModel(model),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	if cfg.Generation.Temperature != nil {
		params.Temperature = openai.Float(float64(*cfg.Generation.Temperature))
	}
	if cfg.Generation.TopP != nil {
		params.TopP = openai.Float(float64(*cfg.Generation.TopP))
	}
	if cfg.Generation.MaxOutputTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*cfg.Generation.MaxOutputTokens))
	}
	if len(cfg.Generation.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: cfg.Generation.StopSequences,
		}
	}
	if cfg.Thinking != nil && cfg.Thinking.Enabled && cfg.Thinking.ReasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(cfg.Thinking.ReasoningEffort)
	}

	if len(prompt.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolUnionParam, 0, len(prompt.Tools))
		for _, t := range prompt.Tools {
			tools = append(tools, openai.ChatCompletionFunctionTool(
				openai.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  openai.FunctionParameters(t.InputSchema),
				},
			))
		}
		params.Tools = tools
	}

	return params
}

func (c *Client) captureRequest(capture *llm.DebugCapture, model string, cfg llm.EffectiveConfig, params openai.ChatCompletionNewParams) {
	raw, err := json.Marshal(params)
	if err != nil {
		c.logger.Warn("marshaling ovhai request for capture", "error", err)
		return
	}
	meta := map[string]any{
		"model":       model,
		"temperature": cfg.Generation.Temperature,
		"top_p":       cfg.Generation.TopP,
		"max_tokens":  cfg.Generation.MaxOutputTokens,
		"streaming":   cfg.Streaming,
		"tools":       len(params.Tools),
	}
	capture.SetRequest(raw, meta)
}

// toMessages flattens the canonical prompt into OpenAI-style messages.
// The system instruction (or its per-call override) always goes first.
func toMessages(prompt llm.Prompt, cfg llm.EffectiveConfig) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion

	system := prompt.SystemInstruction
	if cfg.SystemPromptOverride != "" {
		system = cfg.SystemPromptOverride
	}
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}

	// Synthetic call IDs pair each tool result with its call. Repeated
	// calls to the same tool queue up per name and drain in order.
	callSeq := 0
	callIDs := map[string][]string{}

	for _, content := range prompt.Contents {
		for _, part := range content.Parts {
			switch {
			case part.FunctionCall != nil:
				callSeq++
				id := fmt.Sprintf("call_%d", callSeq)
				callIDs[part.FunctionCall.Name] = append(callIDs[part.FunctionCall.Name], id)
				argsJSON, _ := json.Marshal(part.FunctionCall.Args)
				msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						ToolCalls: []openai.ChatCompletionMessageToolCallUnionParam{{
							OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
								ID: id,
								Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
									Name:      part.FunctionCall.Name,
									Arguments: string(argsJSON),
								},
							},
						}},
					},
				})
			case part.FunctionResponse != nil:
				resultJSON, _ := json.Marshal(part.FunctionResponse.Result)
				var id string
				if queue := callIDs[part.FunctionResponse.Name]; len(queue) > 0 {
					id = queue[0]
					callIDs[part.FunctionResponse.Name] = queue[1:]
				}
				msgs = append(msgs, openai.ToolMessage(string(resultJSON), id))
			case part.Text != "":
				if content.Role == llm.RoleModel {
					msgs = append(msgs, openai.AssistantMessage(part.Text))
				} else {
					msgs = append(msgs, openai.UserMessage(part.Text))
				}
			}
		}
	}

	return msgs
}

// parseArguments decodes a tool-call arguments JSON string.
// Malformed arguments yield an empty map; the tool layer reports the
// failure back to the model instead of aborting the turn.
func parseArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return map[string]any{}
	}
	return args
}
