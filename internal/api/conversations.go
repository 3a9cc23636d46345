package api

import (
	"encoding/json"
	"net/http"
)

// handleListConversations serves GET /api/v1/conversations.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.Conversations(r.Context(), ownerFromRequest(r))
	if err != nil {
		status, message := statusForError(err)
		writeError(w, s.logger, status, message)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"conversations": convs})
}

// handleCreateConversation serves POST /api/v1/conversations.
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, s.logger, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	owner := ownerFromRequest(r)
	conv, err := s.store.CreateConversation(r.Context(), owner, req.Title)
	if err != nil {
		status, message := statusForError(err)
		writeError(w, s.logger, status, message)
		return
	}
	if err := s.store.SetCurrentConversation(r.Context(), owner, conv.ID); err != nil {
		s.logger.Warn("setting current conversation", "error", err)
	}
	writeJSON(w, s.logger, http.StatusCreated, conv)
}

// handleGetConversation serves GET /api/v1/conversations/{id}.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Conversation(r.Context(), r.PathValue("id"), ownerFromRequest(r))
	if err != nil {
		status, message := statusForError(err)
		writeError(w, s.logger, status, message)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, conv)
}

// handleListMessages serves GET /api/v1/conversations/{id}/messages.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.Messages(r.Context(), r.PathValue("id"), ownerFromRequest(r))
	if err != nil {
		status, message := statusForError(err)
		writeError(w, s.logger, status, message)
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"messages": msgs})
}

// handleUpdateTitle serves PUT /api/v1/conversations/{id}/title.
func (s *Server) handleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeError(w, s.logger, http.StatusBadRequest, "title is required")
		return
	}

	if err := s.store.UpdateTitle(r.Context(), r.PathValue("id"), ownerFromRequest(r), req.Title); err != nil {
		status, message := statusForError(err)
		writeError(w, s.logger, status, message)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleArchiveConversation serves POST /api/v1/conversations/{id}/archive.
func (s *Server) handleArchiveConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Archive(r.Context(), r.PathValue("id"), ownerFromRequest(r)); err != nil {
		status, message := statusForError(err)
		writeError(w, s.logger, status, message)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteConversation serves DELETE /api/v1/conversations/{id}.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id"), ownerFromRequest(r)); err != nil {
		status, message := statusForError(err)
		writeError(w, s.logger, status, message)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
