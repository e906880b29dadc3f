package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/carewire/hospital-router/internal/api/response"
	"github.com/carewire/hospital-router/internal/domain"
	"github.com/carewire/hospital-router/internal/router"
	"github.com/go-chi/chi/v5"
)

// SessionHandler exposes session state and lifecycle operations.
type SessionHandler struct {
	router     *router.Router
	transcript domain.TranscriptRepository
}

// NewSessionHandler creates a new session handler. transcript may be nil.
func NewSessionHandler(r *router.Router, transcript domain.TranscriptRepository) *SessionHandler {
	return &SessionHandler{router: r, transcript: transcript}
}

// Get returns a session's routing state and recent history.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.router.Session(sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		response.InternalError(w, err.Error())
		return
	}

	response.OK(w, map[string]any{
		"session": sess,
		"history": h.router.History(sessionID, 20),
	})
}

// Clear resets a session to inactive and wipes its context.
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.router.ClearSession(sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			response.NotFound(w, "session not found")
			return
		}
		response.InternalError(w, err.Error())
		return
	}

	response.OK(w, map[string]string{"message": "session cleared"})
}

// Transcript returns the durable call log for a session.
func (h *SessionHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	if h.transcript == nil {
		response.ServiceUnavailable(w, "call log is not configured")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	turns, err := h.transcript.ListTurns(r.Context(), sessionID, limit)
	if err != nil {
		response.InternalError(w, "failed to load transcript: "+err.Error())
		return
	}

	response.OK(w, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}
