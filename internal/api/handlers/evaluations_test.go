package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"clinical-nlq/internal/types"

	"github.com/stretchr/testify/require"
)

type fakeEvalStore struct {
	fakeStore
	saved []types.Evaluation
}

func (f *fakeEvalStore) SaveEvaluation(ctx context.Context, eval types.Evaluation) error {
	f.saved = append(f.saved, eval)
	return nil
}

func (f *fakeEvalStore) ListEvaluations(ctx context.Context, patientID types.PatientID) ([]types.Evaluation, error) {
	var out []types.Evaluation
	for _, e := range f.saved {
		out = append(out, e)
	}
	return out, nil
}

func TestEvaluationHandler_Create_ValidRequestSaves(t *testing.T) {
	store := &fakeEvalStore{}
	handler := NewEvaluationHandler(store)

	body, _ := json.Marshal(map[string]interface{}{
		"query_id": "q1", "patient_id": "p1", "evaluator": "dr-smith", "rating": 4,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, store.saved, 1)
	require.Equal(t, 4, store.saved[0].Rating)
}

func TestEvaluationHandler_Create_InvalidRatingRejected(t *testing.T) {
	store := &fakeEvalStore{}
	handler := NewEvaluationHandler(store)

	body, _ := json.Marshal(map[string]interface{}{
		"query_id": "q1", "patient_id": "p1", "evaluator": "dr-smith", "rating": 9,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Create(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, store.saved)
}

func TestEvaluationHandler_List_RequiresPatientID(t *testing.T) {
	store := &fakeEvalStore{}
	handler := NewEvaluationHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/evaluations", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluationHandler_List_ReturnsSaved(t *testing.T) {
	store := &fakeEvalStore{}
	handler := NewEvaluationHandler(store)

	body, _ := json.Marshal(map[string]interface{}{
		"query_id": "q1", "patient_id": "p1", "evaluator": "dr-smith", "rating": 5,
	})
	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/evaluations", bytes.NewReader(body))
	handler.Create(httptest.NewRecorder(), createReq)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/evaluations?patient_id=p1", nil)
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
