package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/versolabs/verso/internal/chat"
	"github.com/versolabs/verso/internal/conversation"
	"github.com/versolabs/verso/internal/llm"
	"github.com/versolabs/verso/internal/selftest"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	writeJSON(w, logger, status, errorResponse{Error: message})
}

// statusForError maps pipeline errors onto HTTP statuses. Provider
// failures surface only their kind-derived user message; raw provider
// text stays in the logs.
func statusForError(err error) (int, string) {
	var provErr *llm.ProviderError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrUnknownPreset),
		errors.Is(err, chat.ErrUnknownProvider),
		errors.Is(err, selftest.ErrUnknownPreset):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, conversation.ErrNotFound),
		errors.Is(err, conversation.ErrAccessDenied):
		// Access denials read as not-found so ownership is not probeable.
		return http.StatusNotFound, "conversation not found"
	case errors.As(err, &provErr):
		return statusForKind(provErr.Kind), provErr.Kind.UserMessage()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func statusForKind(kind llm.ErrorKind) int {
	switch kind {
	case llm.ErrorKindAuthentication:
		return http.StatusBadGateway
	case llm.ErrorKindQuota:
		return http.StatusPaymentRequired
	case llm.ErrorKindRateLimit:
		return http.StatusTooManyRequests
	case llm.ErrorKindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
