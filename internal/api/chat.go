package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/versolabs/verso/internal/chat"
	"github.com/versolabs/verso/internal/llm"
	"github.com/versolabs/verso/internal/ndjson"
)

// chatRequest is the request body for both chat endpoints.
type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Preset         string `json:"preset,omitempty"`
	Model          string `json:"model,omitempty"`
	Persona        string `json:"persona,omitempty"`
	Stateless      bool   `json:"stateless,omitempty"`
	Debug          bool   `json:"debug,omitempty"`
	Reset          bool   `json:"reset,omitempty"`
}

func (s *Server) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, chat.CallContext, chat.Options, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "invalid request body")
		return chatRequest{}, chat.CallContext{}, chat.Options{}, false
	}

	call := chat.CallContext{
		Owner:          ownerFromRequest(r),
		ConversationID: req.ConversationID,
	}
	opts := chat.Options{
		Stateless:     req.Stateless,
		PresetName:    req.Preset,
		ModelOverride: req.Model,
		PersonaKey:    req.Persona,
		DebugMode:     req.Debug,
		Reset:         req.Reset,
	}
	return req, call, opts, true
}

// handleChat serves POST /api/v1/chat: one blocking call, one JSON result.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, call, opts, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	result, err := s.orchestrator.Ask(r.Context(), call, req.Message, opts)
	if err != nil {
		status, message := statusForError(err)
		writeError(w, s.logger, status, message)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, result)
}

// handleChatStream serves POST /api/v1/chat/stream: the full event
// sequence as NDJSON frames. A disconnected client abandons the call.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, call, opts, ok := s.decodeChatRequest(w, r)
	if !ok {
		return
	}

	events, err := s.orchestrator.AskStream(r.Context(), call, req.Message, opts)
	if err != nil {
		status, message := statusForError(err)
		writeError(w, s.logger, status, message)
		return
	}

	writer, err := ndjson.NewWriter(w)
	if err != nil {
		writeError(w, s.logger, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	for ev := range events {
		frameType, payload := frameForEvent(ev)
		if frameType == "" {
			continue
		}
		if err := writer.Write(ctx, frameType, payload); err != nil {
			if !errors.Is(err, ctx.Err()) {
				s.logger.Warn("writing stream frame", "error", err)
			}
			// Drain so the producer can finish and clean up.
			for range events { //nolint:revive
			}
			return
		}
	}
}

// frameForEvent maps a stream event onto its wire frame. Tool calls,
// usage counters, and safety ratings are internal to the orchestrator and
// have no wire frame: clients see only the conversational surface.
func frameForEvent(ev llm.StreamEvent) (string, any) {
	switch ev.Kind {
	case llm.EventStatus:
		return "status", ev.Status
	case llm.EventDelta:
		return "delta", map[string]string{"text": ev.Delta}
	case llm.EventThinkingDelta:
		return "thinking", map[string]string{"text": ev.ThinkingDelta}
	case llm.EventError:
		return "error", map[string]string{
			"kind":    string(ev.Err.Kind),
			"message": ev.Err.Kind.UserMessage(),
		}
	case llm.EventResult:
		return "result", ev.Result
	default:
		return "", nil
	}
}

// ownerFromRequest identifies the caller. Authentication proper sits in
// front of this service; the header is its contract.
func ownerFromRequest(r *http.Request) string {
	if owner := r.Header.Get("X-User-ID"); owner != "" {
		return owner
	}
	return "default"
}
