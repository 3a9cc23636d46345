// Package selftest validates presets end to end against their live
// provider: a sync probe, a streaming probe, token accounting checks, and
// a model-assisted analysis of the exact request that went over the wire.
package selftest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/versolabs/verso/internal/accounting"
	"github.com/versolabs/verso/internal/catalog"
	"github.com/versolabs/verso/internal/llm"
)

const (
	defaultTimeout = 30 * time.Second

	probeInstruction = "You are a connectivity probe. Reply with the single word OK."
	probeMessage     = "Reply with the single word OK."
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusFail = "fail"
	StatusSkip = "skip"
)

// Check is one validation step's outcome.
type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is the structured outcome of validating one preset.
type Report struct {
	Preset   string  `json:"preset"`
	Provider string  `json:"provider"`
	Model    string  `json:"model"`
	Healthy  bool    `json:"healthy"`
	Checks   []Check `json:"checks"`
	Analysis string  `json:"analysis,omitempty"`
}

// ErrUnknownPreset marks a preset name with no configuration.
var ErrUnknownPreset = errors.New("selftest: unknown preset")

// Config contains the parameters for creating an Agent.
type Config struct {
	Clients  map[string]llm.Client
	Catalog  *catalog.Registry
	Defaults llm.Defaults
	Presets  map[string]llm.Preset
	Logger   *slog.Logger
	Timeout  time.Duration // Default: 30s. Applies per probe.
}

// Agent runs preset validation.
type Agent struct {
	cfg Config
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if len(cfg.Clients) == 0 {
		return nil, errors.New("selftest: at least one provider client is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("selftest: catalog is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Agent{cfg: cfg}, nil
}

// Validate probes one preset ("" validates the base configuration) and
// returns its report. The report is always populated; the error covers
// only setup problems such as an unknown preset name.
func (a *Agent) Validate(ctx context.Context, presetName string) (Report, error) {
	var preset *llm.Preset
	if presetName != "" {
		p, ok := a.cfg.Presets[presetName]
		if !ok {
			return Report{}, fmt.Errorf("%w: %s", ErrUnknownPreset, presetName)
		}
		preset = &p
	}

	model := a.cfg.Defaults.Model
	if preset != nil && preset.Model != "" {
		model = preset.Model
	}
	caps := a.cfg.Catalog.Capabilities(model)
	cfg := llm.Resolve(a.cfg.Defaults, preset, caps)
	if caps.Provider != "" {
		cfg.Provider = caps.Provider
	}

	report := Report{
		Preset:   presetName,
		Provider: cfg.Provider,
		Model:    cfg.Model,
	}

	client, ok := a.cfg.Clients[cfg.Provider]
	if !ok {
		report.Checks = append(report.Checks, Check{
			Name:   "provider_client",
			Status: StatusFail,
			Detail: fmt.Sprintf("no client configured for provider %s", cfg.Provider),
		})
		return report, nil
	}
	report.Checks = append(report.Checks, Check{Name: "provider_client", Status: StatusPass})

	capture := llm.NewDebugCapture()
	result := a.syncProbe(ctx, client, cfg, caps, capture, &report)
	a.streamProbe(ctx, client, cfg, caps, &report)
	a.analyze(ctx, client, cfg, capture, result, &report)

	report.Healthy = true
	for _, check := range report.Checks {
		if check.Status == StatusFail {
			report.Healthy = false
			break
		}
	}
	return report, nil
}

// syncProbe issues one fully-consumed call and checks the answer and the
// token accounting identity.
func (a *Agent) syncProbe(ctx context.Context, client llm.Client, cfg llm.EffectiveConfig, caps catalog.Capabilities, capture *llm.DebugCapture, report *Report) *llm.Result {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	result, provErr := consume(client.StreamGenerate(ctx, probePrompt(), "", cfg, capture))
	if provErr != nil {
		report.Checks = append(report.Checks, Check{
			Name:   "sync_probe",
			Status: StatusFail,
			Detail: provErr.Kind.UserMessage(),
		})
		return nil
	}
	if result == nil || result.Answer == "" {
		report.Checks = append(report.Checks, Check{
			Name:   "sync_probe",
			Status: StatusFail,
			Detail: "probe returned an empty answer",
		})
		return result
	}
	report.Checks = append(report.Checks, Check{Name: "sync_probe", Status: StatusPass})

	if result.Usage.TotalTokens == 0 {
		report.Checks = append(report.Checks, Check{
			Name:   "token_accounting",
			Status: StatusFail,
			Detail: "provider reported no token usage",
		})
	} else if err := accounting.CheckIdentity(result.Usage, caps.FoldsThinkingTokens); err != nil {
		report.Checks = append(report.Checks, Check{
			Name:   "token_accounting",
			Status: StatusFail,
			Detail: err.Error(),
		})
	} else {
		report.Checks = append(report.Checks, Check{Name: "token_accounting", Status: StatusPass})
	}
	return result
}

// streamProbe verifies incremental delivery: at least one delta before the
// terminal event.
func (a *Agent) streamProbe(ctx context.Context, client llm.Client, cfg llm.EffectiveConfig, caps catalog.Capabilities, report *Report) {
	if !caps.Supports(catalog.FeatureStreaming) || !cfg.Streaming {
		report.Checks = append(report.Checks, Check{
			Name:   "stream_probe",
			Status: StatusSkip,
			Detail: "streaming disabled for this configuration",
		})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	deltas := 0
	var terminal llm.StreamEvent
	for ev := range client.StreamGenerate(ctx, probePrompt(), "", cfg, nil) {
		if ev.Kind == llm.EventDelta {
			deltas++
		}
		if ev.Terminal() {
			terminal = ev
		}
	}

	switch {
	case terminal.Kind == llm.EventError:
		report.Checks = append(report.Checks, Check{
			Name:   "stream_probe",
			Status: StatusFail,
			Detail: terminal.Err.Kind.UserMessage(),
		})
	case deltas == 0:
		report.Checks = append(report.Checks, Check{
			Name:   "stream_probe",
			Status: StatusFail,
			Detail: "stream produced no incremental deltas",
		})
	default:
		report.Checks = append(report.Checks, Check{Name: "stream_probe", Status: StatusPass})
	}
}

const analysisInstruction = `You are a configuration auditor. Given the JSON request a chat gateway sent to an LLM provider and the parameters it intended to send, answer in at most three sentences: do the request parameters match the intent, and is anything missing or unexpected?`

// analyze asks the model itself to audit the captured request. Best
// effort: the local checks already decide health, the analysis only adds
// context.
func (a *Agent) analyze(ctx context.Context, client llm.Client, cfg llm.EffectiveConfig, capture *llm.DebugCapture, result *llm.Result, report *Report) {
	if result == nil {
		report.Checks = append(report.Checks, Check{
			Name:   "request_analysis",
			Status: StatusSkip,
			Detail: "no successful probe to analyze",
		})
		return
	}

	params, _ := json.Marshal(capture.RequestParams())
	body := capture.RawRequest()
	if len(body) == 0 {
		report.Checks = append(report.Checks, Check{
			Name:   "request_analysis",
			Status: StatusFail,
			Detail: "client captured no raw request",
		})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	p := llm.Prompt{
		SystemInstruction: analysisInstruction,
		Contents: []llm.Content{{
			Role: llm.RoleUser,
			Parts: []llm.Part{llm.TextPart(fmt.Sprintf(
				"Intended parameters:\n%s\n\nActual request body:\n%s", params, body,
			))},
		}},
	}

	analysis, provErr := consume(client.StreamGenerate(ctx, p, "", cfg, nil))
	if provErr != nil || analysis == nil {
		a.cfg.Logger.Debug("request analysis unavailable, using local checks only", "error", provErr)
		report.Checks = append(report.Checks, Check{
			Name:   "request_analysis",
			Status: StatusSkip,
			Detail: "analysis call failed, local checks apply",
		})
		return
	}

	report.Analysis = analysis.Answer
	report.Checks = append(report.Checks, Check{Name: "request_analysis", Status: StatusPass})
}

func probePrompt() llm.Prompt {
	return llm.Prompt{
		SystemInstruction: probeInstruction,
		Contents: []llm.Content{
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart(probeMessage)}},
		},
	}
}

// consume drains one stream and returns its terminal outcome.
func consume(events <-chan llm.StreamEvent) (*llm.Result, *llm.ProviderError) {
	var (
		result  *llm.Result
		provErr *llm.ProviderError
	)
	for ev := range events {
		switch ev.Kind {
		case llm.EventResult:
			result = ev.Result
		case llm.EventError:
			provErr = ev.Err
		}
	}
	return result, provErr
}
