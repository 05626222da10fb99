package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"clinical-nlq/internal/api/response"
	"clinical-nlq/internal/conversation"
	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/orchestrator"
	"clinical-nlq/internal/query"
	"clinical-nlq/internal/types"
)

// QueryHandler serves the single-question answering endpoint (spec.md
// section 6, POST /query).
type QueryHandler struct {
	orchestrator *orchestrator.Orchestrator
	sessions     *conversation.Manager
}

// NewQueryHandler wires the orchestrator and session manager for POST /query.
func NewQueryHandler(orch *orchestrator.Orchestrator, sessions *conversation.Manager) *QueryHandler {
	return &QueryHandler{orchestrator: orch, sessions: sessions}
}

type queryRequest struct {
	QueryText string          `json:"query_text"`
	PatientID types.PatientID `json:"patient_id"`
	SessionID types.SessionID `json:"session_id,omitempty"`
}

// Handle answers a question against one patient's record. When session_id is
// set, the query is resolved against that session's conversation context
// before retrieval (spec.md section 4.18) and the session is updated with
// the resulting turn.
func (h *QueryHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteBadRequest(w, "malformed request body", err.Error())
		return
	}

	now := time.Now()

	if req.SessionID.IsEmpty() {
		resp := h.orchestrator.Answer(r.Context(), req.QueryText, req.PatientID, now)
		writeAnswerResponse(w, resp)
		return
	}

	ctx, err := h.sessions.GetSession(req.SessionID, now)
	if err != nil {
		writePipelineErr(w, err)
		return
	}

	sq, err := query.Understand(req.QueryText, req.PatientID, now)
	if err != nil {
		writePipelineErr(w, err)
		return
	}

	if conversation.IsFollowUp(req.QueryText) {
		*sq = conversation.ResolveFollowUp(req.QueryText, *sq, ctx)
	}

	resp := h.orchestrator.AnswerStructured(r.Context(), *sq, now)

	if _, updateErr := h.sessions.UpdateContext(req.SessionID, req.QueryText, *sq, now); updateErr != nil {
		writePipelineErr(w, updateErr)
		return
	}

	writeAnswerResponse(w, resp)
}

func writeAnswerResponse(w http.ResponseWriter, resp orchestrator.Response) {
	status := http.StatusOK
	if !resp.Success && resp.Error != nil {
		status = resp.Error.Code.HTTPStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writePipelineErr(w http.ResponseWriter, err error) {
	if pe, ok := err.(*pipelineerrors.PipelineError); ok {
		response.WritePipelineError(w, pe)
		return
	}
	response.WriteInternalError(w, err.Error())
}
