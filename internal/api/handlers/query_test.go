package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinical-nlq/internal/conversation"
	"clinical-nlq/internal/generation"
	"clinical-nlq/internal/orchestrator"
	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/retrieval"
	"clinical-nlq/internal/types"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	chunks []types.Chunk
}

func (f *fakeStore) SaveChunk(ctx context.Context, chunk types.Chunk) error { return nil }
func (f *fakeStore) GetChunks(ctx context.Context, ids []types.ChunkID) ([]types.Chunk, error) {
	return f.chunks, nil
}
func (f *fakeStore) ListChunks(ctx context.Context, patientID types.PatientID) ([]types.Chunk, error) {
	return f.chunks, nil
}
func (f *fakeStore) SaveEvaluation(ctx context.Context, eval types.Evaluation) error { return nil }
func (f *fakeStore) ListEvaluations(ctx context.Context, patientID types.PatientID) ([]types.Evaluation, error) {
	return nil, nil
}

type fakeLLM struct {
	responses []string
	idx       int
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, int, error) {
	out := f.responses[f.idx]
	f.idx++
	return out, 10, nil
}

func newTestOrchestrator(store ports.MetadataStore, llm ports.LLMClient) *orchestrator.Orchestrator {
	retriever := retrieval.NewRetriever(nil, nil)
	agent := generation.NewAgent(llm)
	return orchestrator.New(nil, store, retriever, agent, orchestrator.DefaultConfig())
}

func sampleChunk(now time.Time) types.Chunk {
	return types.Chunk{
		ChunkID: "c1", ArtifactID: "a1", PatientID: "p1", ArtifactType: types.ArtifactClinicalNote,
		ChunkText: "Patient prescribed Metformin 500mg twice daily for Type 2 Diabetes.", OccurredAt: now.AddDate(0, 0, -2),
	}
}

func TestQueryHandler_Handle_WithoutSessionRunsFullPipeline(t *testing.T) {
	now := time.Now()
	store := &fakeStore{chunks: []types.Chunk{sampleChunk(now)}}
	llm := &fakeLLM{responses: []string{
		`{"extractions": [{"type": "medication_recommendation", "content": {"medication": "Metformin"}, "provenance": {"artifact_id": "a1", "chunk_id": "c1", "char_offsets": {"start": 0, "end": 25}, "supporting_text": "Patient prescribed Metformin"}}]}`,
		`{"short_answer": "Metformin 500mg twice daily.", "detailed_summary": "The patient takes Metformin."}`,
	}}
	orch := newTestOrchestrator(store, llm)
	handler := NewQueryHandler(orch, conversation.NewManager())

	body, _ := json.Marshal(map[string]string{"query_text": "What medications is the patient taking?", "patient_id": "p1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Handle(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "Metformin 500mg twice daily.", resp.ShortAnswer)
}

func TestQueryHandler_Handle_MalformedBodyReturnsBadRequest(t *testing.T) {
	orch := newTestOrchestrator(&fakeStore{}, &fakeLLM{})
	handler := NewQueryHandler(orch, conversation.NewManager())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	handler.Handle(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_Handle_UnknownSessionReturnsGone(t *testing.T) {
	orch := newTestOrchestrator(&fakeStore{}, &fakeLLM{})
	handler := NewQueryHandler(orch, conversation.NewManager())

	body, _ := json.Marshal(map[string]string{"query_text": "what else?", "patient_id": "p1", "session_id": "missing"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Handle(rec, req)

	require.Equal(t, http.StatusGone, rec.Code)
}
