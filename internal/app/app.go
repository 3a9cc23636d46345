// Package app assembles and runs the service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/versolabs/verso/db"
	"github.com/versolabs/verso/internal/api"
	"github.com/versolabs/verso/internal/catalog"
	"github.com/versolabs/verso/internal/chat"
	"github.com/versolabs/verso/internal/config"
	"github.com/versolabs/verso/internal/conversation"
	"github.com/versolabs/verso/internal/crypto"
	"github.com/versolabs/verso/internal/debug"
	"github.com/versolabs/verso/internal/llm"
	"github.com/versolabs/verso/internal/llm/gemini"
	"github.com/versolabs/verso/internal/llm/ovhai"
	"github.com/versolabs/verso/internal/log"
	"github.com/versolabs/verso/internal/observability"
	"github.com/versolabs/verso/internal/prompt"
	"github.com/versolabs/verso/internal/selftest"
	"github.com/versolabs/verso/internal/tools"
)

// App is the assembled service.
type App struct {
	cfg      *config.Config
	logger   log.Logger
	pool     *pgxpool.Pool
	server   *http.Server
	orch     *chat.Orchestrator
	debugLog *debug.Logger
	shutdown []func(context.Context) error
}

// New builds the full service from configuration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.New(log.Config{
		Level:     cfg.Log.SlogLevel(),
		JSON:      cfg.Log.JSON,
		AddSource: cfg.Log.AddSource,
	})

	a := &App{cfg: cfg, logger: logger}

	if cfg.Telemetry.Enabled {
		stop, err := observability.Setup(ctx, "verso", cfg.Telemetry.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("setting up telemetry: %w", err)
		}
		a.shutdown = append(a.shutdown, stop)
	}

	if err := db.Migrate(cfg.Database.URL); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting database: %w", err)
	}
	a.pool = pool

	var cipher crypto.Cipher
	if cfg.Encryption.Passphrase != "" {
		cipher, err = crypto.New(cfg.Encryption.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("initializing encryption: %w", err)
		}
	}
	store := conversation.NewStore(pool, cipher, logger.With("component", "conversation"))

	clients, err := buildClients(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry(logger.With("component", "tools"))
	memoryTool, err := tools.NewMemoryTool(store, logger)
	if err != nil {
		return nil, fmt.Errorf("building memory tool: %w", err)
	}
	if err := registry.Register(memoryTool); err != nil {
		return nil, err
	}
	riskTool, err := tools.NewRiskTool(riskSink{store: store, logger: logger}, logger)
	if err != nil {
		return nil, fmt.Errorf("building risk tool: %w", err)
	}
	if err := registry.Register(riskTool); err != nil {
		return nil, err
	}

	if cfg.Debug.Enabled {
		a.debugLog = debug.NewLogger(cfg.Debug.TTL, logger.With("component", "debug"))
	}

	builder := prompt.New(personaContexts(cfg.Personas), logger.With("component", "prompt"))

	orch, err := chat.New(chat.Config{
		Clients:         clients,
		Catalog:         catalog.New(),
		Store:           store,
		Builder:         builder,
		Tools:           registry,
		Debug:           a.debugLog,
		Defaults:        cfg.LLM,
		Presets:         cfg.PresetMap(),
		Logger:          logger.With("component", "chat"),
		Limiter:         rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst),
		ProviderTimeout: cfg.Chat.ProviderTimeout,
		MaxToolTurns:    cfg.Chat.MaxToolTurns,
	})
	if err != nil {
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}
	a.orch = orch

	agent, err := selftest.New(selftest.Config{
		Clients:  clients,
		Catalog:  catalog.New(),
		Defaults: cfg.LLM,
		Presets:  cfg.PresetMap(),
		Logger:   logger.With("component", "selftest"),
	})
	if err != nil {
		return nil, fmt.Errorf("building selftest agent: %w", err)
	}

	server, err := api.NewServer(api.ServerConfig{
		Addr:           cfg.Server.Addr,
		Orchestrator:   orch,
		Store:          store,
		Debug:          a.debugLog,
		Selftest:       agent,
		DB:             pool,
		Logger:         logger.With("component", "api"),
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("building server: %w", err)
	}
	a.server = server

	return a, nil
}

// Run serves until ctx is canceled or a signal arrives, then shuts down
// gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.debugLog != nil {
		go a.debugLog.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown", "error", err)
	}
	a.orch.Close()
	for _, stop := range a.shutdown {
		if err := stop(shutdownCtx); err != nil {
			a.logger.Error("component shutdown", "error", err)
		}
	}
	a.pool.Close()
	return nil
}

func buildClients(ctx context.Context, cfg *config.Config, logger log.Logger) (map[string]llm.Client, error) {
	clients := make(map[string]llm.Client)

	if key := cfg.Providers.Gemini.APIKey; key != "" {
		client, err := gemini.New(ctx, gemini.Config{
			APIKey: key,
			Logger: logger.With("component", "gemini"),
		})
		if err != nil {
			return nil, fmt.Errorf("building gemini client: %w", err)
		}
		clients[catalog.ProviderGemini] = client
	}

	if key := cfg.Providers.OVHAI.APIKey; key != "" {
		client, err := ovhai.New(ovhai.Config{
			BaseURL: cfg.Providers.OVHAI.BaseURL,
			APIKey:  key,
			Logger:  logger.With("component", "ovhai"),
		})
		if err != nil {
			return nil, fmt.Errorf("building ovhai client: %w", err)
		}
		clients[catalog.ProviderOVHAI] = client
	}

	if len(clients) == 0 {
		return nil, errors.New("app: no provider clients configured")
	}
	return clients, nil
}

// riskSink persists risk reports against the conversation the
// orchestrator put on the context; reports from stateless calls are
// logged only.
type riskSink struct {
	store  *conversation.Store
	logger log.Logger
}

func (r riskSink) RecordRisk(ctx context.Context, report tools.RiskReport) error {
	r.logger.Warn("risk reported", "level", report.RiskLevel, "category", report.Category)
	if id := tools.ConversationIDFromContext(ctx); id != "" {
		return r.store.AddRiskAnnotation(ctx, id, report)
	}
	return nil
}

// staticContexts serves persona prompts from configuration.
type staticContexts struct {
	personas map[string]string
}

func personaContexts(personas map[string]string) prompt.ContextProvider {
	if len(personas) == 0 {
		return nil
	}
	return staticContexts{personas: personas}
}

func (s staticContexts) SystemPrompt(key string) string { return s.personas[key] }

func (s staticContexts) InitialContext() []llm.Content { return nil }
