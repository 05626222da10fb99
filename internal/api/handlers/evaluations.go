package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"clinical-nlq/internal/api/response"
	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/types"

	"github.com/google/uuid"
)

// EvaluationHandler serves the human-feedback endpoints (spec.md section 6,
// POST /evaluations and GET /evaluations).
type EvaluationHandler struct {
	store ports.MetadataStore
}

// NewEvaluationHandler wires the metadata store for the evaluation routes.
func NewEvaluationHandler(store ports.MetadataStore) *EvaluationHandler {
	return &EvaluationHandler{store: store}
}

type createEvaluationRequest struct {
	QueryID   types.QueryID   `json:"query_id"`
	PatientID types.PatientID `json:"patient_id"`
	Evaluator string          `json:"evaluator"`
	Rating    int             `json:"rating"`
	Comment   string          `json:"comment,omitempty"`
}

// Create records a human evaluation of a previously answered query.
func (h *EvaluationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteBadRequest(w, "malformed request body", err.Error())
		return
	}

	if req.Rating < 1 || req.Rating > 5 {
		response.WriteBadRequest(w, "rating must be between 1 and 5")
		return
	}
	if req.QueryID == "" || req.Evaluator == "" {
		response.WriteBadRequest(w, "query_id and evaluator are required")
		return
	}

	eval := types.Evaluation{
		EvaluationID: uuid.New().String(),
		QueryID:      req.QueryID,
		Evaluator:    req.Evaluator,
		Rating:       req.Rating,
		Comment:      req.Comment,
		Timestamp:    time.Now(),
	}

	if err := h.store.SaveEvaluation(r.Context(), eval); err != nil {
		writePipelineErr(w, pipelineerrors.New(pipelineerrors.CodeInternal, err.Error()).WithStage("evaluations"))
		return
	}

	w.WriteHeader(http.StatusCreated)
	response.WriteSuccess(w, eval)
}

// List returns the recorded evaluations for a patient.
func (h *EvaluationHandler) List(w http.ResponseWriter, r *http.Request) {
	patientID := types.PatientID(r.URL.Query().Get("patient_id"))
	if err := patientID.Validate(); err != nil {
		response.WriteBadRequest(w, "patient_id is required", err.Error())
		return
	}

	evals, err := h.store.ListEvaluations(r.Context(), patientID)
	if err != nil {
		writePipelineErr(w, pipelineerrors.New(pipelineerrors.CodeInternal, err.Error()).WithStage("evaluations"))
		return
	}

	response.WriteSuccess(w, evals)
}
