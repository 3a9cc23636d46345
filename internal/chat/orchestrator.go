// Package chat orchestrates LLM calls: prompt assembly, provider streaming,
// the tool-call loop, accounting, and conversation persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/versolabs/verso/internal/accounting"
	"github.com/versolabs/verso/internal/catalog"
	"github.com/versolabs/verso/internal/conversation"
	"github.com/versolabs/verso/internal/debug"
	"github.com/versolabs/verso/internal/llm"
	"github.com/versolabs/verso/internal/prompt"
	"github.com/versolabs/verso/internal/tools"
)

// Validation errors surfaced before any provider call.
var (
	ErrEmptyMessage    = errors.New("chat: message is empty")
	ErrUnknownPreset   = errors.New("chat: unknown preset")
	ErrUnknownProvider = errors.New("chat: no client for provider")
)

const (
	defaultProviderTimeout = 2 * time.Minute
	defaultMaxToolTurns    = 5
)

// Store is the persistence surface the orchestrator needs.
// *conversation.Store satisfies it; tests substitute an in-memory fake.
type Store interface {
	CreateConversation(ctx context.Context, owner, title string) (conversation.Conversation, error)
	Conversation(ctx context.Context, id, owner string) (conversation.Conversation, error)
	History(ctx context.Context, id, owner string) ([]llm.Content, error)
	SaveMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error)
	CurrentConversation(ctx context.Context, owner string) (string, error)
	SetCurrentConversation(ctx context.Context, owner, id string) error
	UpdateTitle(ctx context.Context, id, owner, title string) error
}

// Config contains the parameters for creating an Orchestrator.
type Config struct {
	Clients map[string]llm.Client // keyed by provider identifier
	Catalog *catalog.Registry
	Store   Store
	Builder *prompt.Builder
	Tools   *tools.Registry
	Debug   *debug.Logger

	Defaults llm.Defaults
	Presets  map[string]llm.Preset

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Limiter *rate.Limiter // nil disables rate limiting

	ProviderTimeout time.Duration // Default: 2m. Applies per provider call.
	MaxToolTurns    int           // Default: 5. Bounds the tool-call loop.
}

func (c *Config) validate() error {
	if len(c.Clients) == 0 {
		return errors.New("chat: at least one provider client is required")
	}
	if c.Catalog == nil {
		return errors.New("chat: catalog is required")
	}
	if c.Builder == nil {
		return errors.New("chat: prompt builder is required")
	}
	if c.Defaults.Provider == "" || c.Defaults.Model == "" {
		return errors.New("chat: default provider and model are required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer("github.com/versolabs/verso/internal/chat")
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = defaultProviderTimeout
	}
	if c.MaxToolTurns <= 0 {
		c.MaxToolTurns = defaultMaxToolTurns
	}
	return nil
}

// CallContext identifies whose conversation a call operates on.
type CallContext struct {
	Owner          string
	ConversationID string // empty selects the owner's current conversation
}

// Options are the per-call knobs.
type Options struct {
	Stateless     bool   // no history load, no persistence
	PresetName    string // named preset to overlay on the base config
	ModelOverride string // replaces the resolved model for this call
	PersonaKey    string // system instruction selector
	DebugMode     bool   // retain the raw provider exchange
	Reset         bool   // start a fresh conversation before this message
}

// Orchestrator coordinates one conversation turn end to end.
// Safe for concurrent use.
type Orchestrator struct {
	cfg Config
	wg  sync.WaitGroup // tracks background title generation
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Close waits for background work to finish.
func (o *Orchestrator) Close() {
	o.wg.Wait()
}

// AskStream runs one orchestrated call and streams its events.
//
// Validation failures (empty message, unknown preset, no client for the
// resolved provider) return an error before anything else happens. After
// that, the returned channel carries the full event sequence and
// terminates in exactly one result or error event.
func (o *Orchestrator) AskStream(ctx context.Context, call CallContext, message string, opts Options) (<-chan llm.StreamEvent, error) {
	message = strings.TrimSpace(message)
	if message == "" && !opts.Reset {
		return nil, ErrEmptyMessage
	}

	var preset *llm.Preset
	if opts.PresetName != "" {
		p, ok := o.cfg.Presets[opts.PresetName]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, opts.PresetName)
		}
		preset = &p
	}

	// Capabilities are looked up for the model that will actually serve the
	// call, override included.
	model := o.cfg.Defaults.Model
	if preset != nil && preset.Model != "" {
		model = preset.Model
	}
	if opts.ModelOverride != "" {
		model = opts.ModelOverride
	}
	caps := o.cfg.Catalog.Capabilities(model)

	cfg := llm.Resolve(o.cfg.Defaults, preset, caps)
	if caps.Provider != "" {
		cfg.Provider = caps.Provider
	}

	client, ok := o.cfg.Clients[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	out := make(chan llm.StreamEvent, 16)
	go func() {
		defer close(out)
		o.run(ctx, call, message, opts, cfg, caps, client, out)
	}()
	return out, nil
}

// Ask runs one orchestrated call and blocks until it completes.
func (o *Orchestrator) Ask(ctx context.Context, call CallContext, message string, opts Options) (*llm.Result, error) {
	events, err := o.AskStream(ctx, call, message, opts)
	if err != nil {
		return nil, err
	}
	for ev := range events {
		switch ev.Kind {
		case llm.EventResult:
			return ev.Result, nil
		case llm.EventError:
			return nil, ev.Err
		}
	}
	return nil, errors.New("chat: stream ended without terminal event")
}

func (o *Orchestrator) run(ctx context.Context, call CallContext, message string, opts Options, cfg llm.EffectiveConfig, caps catalog.Capabilities, client llm.Client, out chan<- llm.StreamEvent) {
	ctx, span := o.cfg.Tracer.Start(ctx, "chat.ask",
		trace.WithAttributes(
			attribute.String("llm.provider", cfg.Provider),
			attribute.String("llm.model", cfg.Model),
			attribute.Bool("chat.stateless", opts.Stateless),
		))
	defer span.End()

	if o.cfg.Limiter != nil {
		if err := o.cfg.Limiter.Wait(ctx); err != nil {
			out <- llm.ErrorEvent(llm.NewProviderError(llm.ErrorKindRateLimit, "request rate limited", err))
			return
		}
	}

	var (
		conv    conversation.Conversation
		history []llm.Content
	)
	if !opts.Stateless {
		out <- llm.StatusEvent("resolving conversation", "resolving")
		var err error
		conv, history, err = o.resolveConversation(ctx, call, opts)
		if err != nil {
			span.RecordError(err)
			out <- llm.ErrorEvent(llm.NewProviderError(llm.ErrorKindGeneric, "loading conversation failed", err))
			return
		}
		span.SetAttributes(attribute.String("chat.conversation_id", conv.ID))
	}

	if message == "" {
		// Reset-only call: a fresh conversation exists, nothing to generate.
		out <- llm.ResultEvent(llm.Result{ConversationID: conv.ID, Model: cfg.Model})
		return
	}

	var toolDefs []llm.ToolDefinition
	if caps.FunctionCalling && o.cfg.Tools != nil && o.cfg.Tools.Len() > 0 {
		toolDefs = o.cfg.Tools.Definitions()
	}

	out <- llm.StatusEvent("building prompt", "building_prompt")
	p := o.cfg.Builder.Build(opts.PersonaKey, history, message, opts.Stateless, toolDefs)

	capture := llm.NewDebugCapture()
	var (
		answer    strings.Builder
		total     llm.Usage
		safety    []llm.SafetyRating
		lastModel = cfg.Model
	)

	completed := false
	for turn := 0; turn < o.cfg.MaxToolTurns; turn++ {
		out <- llm.StatusEvent("waiting for model", "awaiting_provider")

		turnCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
		calls, result, provErr := o.consumeTurn(turnCtx, client, p, opts.ModelOverride, cfg, capture, &answer, &total, &safety, out)
		cancel()

		if provErr != nil {
			span.RecordError(provErr)
			out <- llm.ErrorEvent(provErr)
			return
		}
		if result != nil && result.Model != "" {
			lastModel = result.Model
		}
		if len(calls) == 0 {
			completed = true
			break
		}

		out <- llm.StatusEvent("executing tools", "executing_tool")
		p.Contents = append(p.Contents, toolCallContents(calls)...)
		p.Contents = append(p.Contents, o.executeTools(ctx, call.Owner, conv.ID, calls))
	}

	if !completed {
		err := fmt.Errorf("chat: tool-call turn limit (%d) exceeded", o.cfg.MaxToolTurns)
		span.RecordError(err)
		out <- llm.ErrorEvent(llm.NewProviderError(llm.ErrorKindGeneric, err.Error(), err))
		return
	}

	out <- llm.StatusEvent("finalizing", "finalizing")

	if err := accounting.CheckIdentity(total, caps.FoldsThinkingTokens); err != nil {
		o.cfg.Logger.Warn("token accounting mismatch", "model", lastModel, "error", err)
	}
	var cost float64
	if caps.Pricing != nil {
		cost = accounting.Cost(total, *caps.Pricing)
	}

	var debugID string
	if opts.DebugMode && o.cfg.Debug != nil {
		debugID = o.cfg.Debug.LogExchange(conv.ID, lastModel, capture, total)
	}

	result := llm.Result{
		Answer:         answer.String(),
		Usage:          total,
		CostUSD:        cost,
		DebugID:        debugID,
		Model:          lastModel,
		ConversationID: conv.ID,
	}

	titlePending := false
	if !opts.Stateless {
		o.persistTurn(ctx, conv, message, result, safety)
		titlePending = conv.Title == "" && conv.MessageCount == 0
	}
	if titlePending {
		// Registered before the result goes out so Close cannot miss it.
		o.wg.Add(1)
	}

	out <- llm.ResultEvent(result)

	// The title sub-call fires only after the main result is out; its
	// outcome never affects the delivered turn.
	if titlePending {
		o.spawnTitleGeneration(call.Owner, conv.ID, message, client, cfg)
	}
}

// consumeTurn drains one provider stream, forwarding the user-visible
// events and collecting the turn outcome. Function calls, usage counters,
// and safety ratings are accumulated only: they surface through the final
// result and persisted metadata, never as stream events of their own.
func (o *Orchestrator) consumeTurn(ctx context.Context, client llm.Client, p llm.Prompt, modelOverride string, cfg llm.EffectiveConfig, capture *llm.DebugCapture, answer *strings.Builder, total *llm.Usage, safety *[]llm.SafetyRating, out chan<- llm.StreamEvent) ([]llm.FunctionCall, *llm.Result, *llm.ProviderError) {
	var (
		calls   []llm.FunctionCall
		result  *llm.Result
		provErr *llm.ProviderError
	)

	for ev := range client.StreamGenerate(ctx, p, modelOverride, cfg, capture) {
		switch ev.Kind {
		case llm.EventDelta:
			answer.WriteString(ev.Delta)
			out <- ev
		case llm.EventThinkingDelta, llm.EventStatus:
			out <- ev
		case llm.EventSafetyRating:
			*safety = append(*safety, *ev.Safety)
		case llm.EventFunctionCall:
			calls = append(calls, *ev.FunctionCall)
		case llm.EventUsage:
			total.Add(*ev.Usage)
		case llm.EventError:
			provErr = ev.Err
		case llm.EventResult:
			result = ev.Result
		}
	}
	return calls, result, provErr
}

// executeTools runs the requested tools and packs their results into one
// tool-role content entry. Owner and conversation ID ride on the context
// so tools can attach their side effects to the right user and
// conversation. A call with no registry configured is answered like an
// unknown tool, so a stray provider function call never crashes the turn.
func (o *Orchestrator) executeTools(ctx context.Context, owner, conversationID string, calls []llm.FunctionCall) llm.Content {
	ctx = tools.WithOwner(ctx, owner)
	if conversationID != "" {
		ctx = tools.WithConversationID(ctx, conversationID)
	}
	responses := llm.Content{Role: llm.RoleTool}
	for _, call := range calls {
		o.cfg.Logger.Debug("executing tool", "tool", call.Name, "conversation_id", conversationID)
		var result map[string]any
		if o.cfg.Tools != nil {
			result = o.cfg.Tools.Execute(ctx, call.Name, call.Args)
		} else {
			o.cfg.Logger.Warn("model requested a tool but none are configured", "tool", call.Name)
			result = map[string]any{
				"success": false,
				"error":   fmt.Sprintf("unknown tool: %s", call.Name),
			}
		}
		responses.Parts = append(responses.Parts, llm.Part{
			FunctionResponse: &llm.FunctionResponse{Name: call.Name, Result: result},
		})
	}
	return responses
}

// toolCallContents echoes the model's function calls back into the prompt,
// as providers require before the matching responses.
func toolCallContents(calls []llm.FunctionCall) []llm.Content {
	entry := llm.Content{Role: llm.RoleModel}
	for _, call := range calls {
		c := call
		entry.Parts = append(entry.Parts, llm.Part{FunctionCall: &c})
	}
	return []llm.Content{entry}
}

// resolveConversation finds or creates the conversation this call targets.
func (o *Orchestrator) resolveConversation(ctx context.Context, call CallContext, opts Options) (conversation.Conversation, []llm.Content, error) {
	if opts.Reset {
		conv, err := o.cfg.Store.CreateConversation(ctx, call.Owner, "")
		if err != nil {
			return conversation.Conversation{}, nil, err
		}
		if err := o.cfg.Store.SetCurrentConversation(ctx, call.Owner, conv.ID); err != nil {
			return conversation.Conversation{}, nil, err
		}
		return conv, nil, nil
	}

	id := call.ConversationID
	if id == "" {
		current, err := o.cfg.Store.CurrentConversation(ctx, call.Owner)
		switch {
		case errors.Is(err, conversation.ErrNotFound):
			conv, err := o.cfg.Store.CreateConversation(ctx, call.Owner, "")
			if err != nil {
				return conversation.Conversation{}, nil, err
			}
			if err := o.cfg.Store.SetCurrentConversation(ctx, call.Owner, conv.ID); err != nil {
				return conversation.Conversation{}, nil, err
			}
			return conv, nil, nil
		case err != nil:
			return conversation.Conversation{}, nil, err
		}
		id = current
	}

	conv, err := o.cfg.Store.Conversation(ctx, id, call.Owner)
	if err != nil {
		return conversation.Conversation{}, nil, err
	}
	history, err := o.cfg.Store.History(ctx, id, call.Owner)
	if err != nil {
		return conversation.Conversation{}, nil, err
	}
	return conv, history, nil
}

// persistTurn saves the user and model messages. The provider call already
// succeeded, so persistence failures are logged and swallowed rather than
// turning a delivered answer into an error.
func (o *Orchestrator) persistTurn(ctx context.Context, conv conversation.Conversation, message string, result llm.Result, safety []llm.SafetyRating) {
	if _, err := o.cfg.Store.SaveMessage(ctx, conversation.Message{
		ConversationID: conv.ID,
		Role:           llm.RoleUser,
		Parts:          []llm.Part{llm.TextPart(message)},
	}); err != nil {
		o.cfg.Logger.Error("persisting user message", "conversation_id", conv.ID, "error", err)
		return
	}

	metadata := map[string]any{"model": result.Model}
	if result.CostUSD > 0 {
		metadata["cost_usd"] = result.CostUSD
	}
	if result.DebugID != "" {
		metadata["debug_id"] = result.DebugID
	}
	if _, err := o.cfg.Store.SaveMessage(ctx, conversation.Message{
		ConversationID: conv.ID,
		Role:           llm.RoleModel,
		Parts:          []llm.Part{llm.TextPart(result.Answer)},
		Tokens: conversation.TokenCounts{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			ThinkingTokens:   result.Usage.ThinkingTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
		Safety:   safety,
		Metadata: metadata,
	}); err != nil {
		o.cfg.Logger.Error("persisting model message", "conversation_id", conv.ID, "error", err)
	}
}
