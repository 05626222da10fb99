package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"clinical-nlq/internal/api/response"
	"clinical-nlq/internal/conversation"
	"clinical-nlq/internal/types"

	"github.com/go-chi/chi/v5"
)

// SessionHandler serves conversation-session endpoints (spec.md section 6,
// POST /sessions and GET /sessions/{id}).
type SessionHandler struct {
	sessions *conversation.Manager
}

// NewSessionHandler wires the conversation manager for the session routes.
func NewSessionHandler(sessions *conversation.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type createSessionRequest struct {
	PatientID types.PatientID `json:"patient_id"`
}

// Create opens a new conversation session for a patient.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteBadRequest(w, "malformed request body", err.Error())
		return
	}

	ctx, err := h.sessions.CreateSession(req.PatientID, time.Now())
	if err != nil {
		writePipelineErr(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	response.WriteSuccess(w, ctx)
}

// Get returns a session's current conversation context, or a 410 if it has
// expired or never existed.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := types.SessionID(chi.URLParam(r, "id"))

	ctx, err := h.sessions.GetSession(sessionID, time.Now())
	if err != nil {
		writePipelineErr(w, err)
		return
	}

	response.WriteSuccess(w, ctx)
}
