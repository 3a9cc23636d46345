// Package api exposes the chat pipeline over HTTP: chat and streaming
// chat, conversation management, debug traces, preset validation, and
// health probes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/versolabs/verso/internal/chat"
	"github.com/versolabs/verso/internal/conversation"
	"github.com/versolabs/verso/internal/debug"
	"github.com/versolabs/verso/internal/selftest"
)

// ConversationStore is the persistence surface the API handlers need.
type ConversationStore interface {
	CreateConversation(ctx context.Context, owner, title string) (conversation.Conversation, error)
	Conversation(ctx context.Context, id, owner string) (conversation.Conversation, error)
	Conversations(ctx context.Context, owner string) ([]conversation.Conversation, error)
	Messages(ctx context.Context, conversationID, owner string) ([]conversation.Message, error)
	UpdateTitle(ctx context.Context, id, owner, title string) error
	Archive(ctx context.Context, id, owner string) error
	Delete(ctx context.Context, id, owner string) error
	SetCurrentConversation(ctx context.Context, owner, id string) error
}

// Pinger reports backend liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig contains the parameters for creating a Server.
type ServerConfig struct {
	Addr         string
	Orchestrator *chat.Orchestrator
	Store        ConversationStore
	Debug        *debug.Logger
	Selftest     *selftest.Agent
	DB           Pinger
	Logger       *slog.Logger

	RateLimitRPS   float64 // Default: 10 per client IP.
	RateLimitBurst int     // Default: 20.
}

// Server is the HTTP front of the pipeline.
type Server struct {
	orchestrator *chat.Orchestrator
	store        ConversationStore
	debug        *debug.Logger
	selftest     *selftest.Agent
	db           Pinger
	logger       *slog.Logger
}

// NewServer builds the configured *http.Server. Callers own its
// lifecycle.
func NewServer(cfg ServerConfig) (*http.Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("api: orchestrator is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("api: conversation store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}

	s := &Server{
		orchestrator: cfg.Orchestrator,
		store:        cfg.Store,
		debug:        cfg.Debug,
		selftest:     cfg.Selftest,
		db:           cfg.DB,
		logger:       cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", s.handleChat)
	mux.HandleFunc("POST /api/v1/chat/stream", s.handleChatStream)

	mux.HandleFunc("GET /api/v1/conversations", s.handleListConversations)
	mux.HandleFunc("POST /api/v1/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/v1/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", s.handleListMessages)
	mux.HandleFunc("PUT /api/v1/conversations/{id}/title", s.handleUpdateTitle)
	mux.HandleFunc("POST /api/v1/conversations/{id}/archive", s.handleArchiveConversation)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", s.handleDeleteConversation)

	mux.HandleFunc("GET /api/v1/debug/{id}", s.handleDebugTrace)
	mux.HandleFunc("POST /api/v1/selftest", s.handleSelftest)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	handler := chain(mux,
		withRecovery(cfg.Logger),
		withRequestID,
		withLogging(cfg.Logger),
		withRateLimit(newIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), cfg.Logger),
	)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: streamed responses are open-ended by design and
		// bounded per provider call by the orchestrator instead.
	}, nil
}

// handleDebugTrace serves GET /api/v1/debug/{id}.
func (s *Server) handleDebugTrace(w http.ResponseWriter, r *http.Request) {
	if s.debug == nil {
		writeError(w, s.logger, http.StatusNotFound, "debug traces disabled")
		return
	}
	trace, ok := s.debug.FindByDebugID(r.PathValue("id"))
	if !ok {
		writeError(w, s.logger, http.StatusNotFound, "trace not found or expired")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, trace)
}

// handleSelftest serves POST /api/v1/selftest.
func (s *Server) handleSelftest(w http.ResponseWriter, r *http.Request) {
	if s.selftest == nil {
		writeError(w, s.logger, http.StatusNotFound, "selftest disabled")
		return
	}

	var req struct {
		Preset string `json:"preset"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, s.logger, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	report, err := s.selftest.Validate(r.Context(), req.Preset)
	if err != nil {
		status, message := statusForError(err)
		writeError(w, s.logger, status, message)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, report)
}

// handleHealth serves GET /health: process liveness only.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady serves GET /ready: liveness plus backend reachability.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			writeError(w, s.logger, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}
