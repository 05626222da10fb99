package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/generation"
	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/reliability"
	"clinical-nlq/internal/retrieval"
	"clinical-nlq/internal/types"

	"github.com/stretchr/testify/assert"
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
	sleep     time.Duration
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, int, error) {
	if f.sleep > 0 {
		select {
		case <-time.After(f.sleep):
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}
	out := f.responses[f.idx]
	f.idx++
	return out, 10, nil
}

func sampleChunks(now time.Time) []types.Chunk {
	return []types.Chunk{
		{ChunkID: "c1", ArtifactID: "a1", PatientID: "p1", ArtifactType: types.ArtifactMedicationOrder,
			ChunkText: "Patient prescribed Metformin 500mg twice daily for Type 2 Diabetes.", OccurredAt: now.AddDate(0, 0, -2)},
	}
}

func newTestOrchestrator(store ports.MetadataStore, llm ports.LLMClient, cfg Config) *Orchestrator {
	retriever := retrieval.NewRetriever(nil, nil)
	agent := generation.NewAgent(llm)
	return New(nil, store, retriever, agent, cfg)
}

func TestAnswer_SuccessfulQueryReturnsGroundedExtraction(t *testing.T) {
	now := time.Now()
	store := &fakeStore{chunks: sampleChunks(now)}
	llm := &fakeLLM{responses: []string{
		`{"extractions": [{"type": "medication_recommendation", "content": {"medication": "Metformin"}, "provenance": {"artifact_id": "a1", "chunk_id": "c1", "char_offsets": {"start": 0, "end": 25}, "supporting_text": "Patient prescribed Metformin"}}]}`,
		`{"short_answer": "Metformin 500mg twice daily.", "detailed_summary": "The patient takes Metformin 500mg twice daily for Type 2 Diabetes."}`,
	}}
	orch := newTestOrchestrator(store, llm, DefaultConfig())

	resp := orch.Answer(context.Background(), "What medications is the patient taking?", "p1", now)

	require.True(t, resp.Success)
	assert.Equal(t, "Metformin 500mg twice daily.", resp.ShortAnswer)
	assert.Len(t, resp.StructuredExtractions, 1)
	assert.NotEmpty(t, resp.Provenance)
	assert.NotNil(t, resp.Confidence)
	assert.Equal(t, 7, len(resp.Metadata.Stages))
}

func TestAnswer_EmptyQueryFailsWithInvalidQuery(t *testing.T) {
	store := &fakeStore{}
	llm := &fakeLLM{}
	orch := newTestOrchestrator(store, llm, DefaultConfig())

	resp := orch.Answer(context.Background(), "", "p1", time.Now())

	require.False(t, resp.Success)
	assert.Equal(t, "INVALID_QUERY", string(resp.Error.Code))
}

func TestAnswer_NoCandidatesReturnsEmptyResultNotError(t *testing.T) {
	store := &fakeStore{}
	llm := &fakeLLM{}
	orch := newTestOrchestrator(store, llm, DefaultConfig())

	resp := orch.Answer(context.Background(), "what medications", "p1", time.Now())

	require.True(t, resp.Success)
	assert.Empty(t, resp.StructuredExtractions)
	assert.NotEmpty(t, resp.ShortAnswer)
}

type failingStore struct {
	fakeStore
	err error
}

func (f *failingStore) ListChunks(ctx context.Context, patientID types.PatientID) ([]types.Chunk, error) {
	return nil, f.err
}

func TestAnswer_StoreCircuitOpenSurfacesAsCircuitOpenError(t *testing.T) {
	store := &failingStore{err: errors.New("metadata store unreachable")}
	llm := &fakeLLM{}
	orch := newTestOrchestrator(store, llm, DefaultConfig())
	orch.StoreBreaker = reliability.NewBreaker(&reliability.BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Hour, MaxConcurrentRequests: 1})

	first := orch.Answer(context.Background(), "what medications", "p1", time.Now())
	require.False(t, first.Success)
	assert.Equal(t, "INTERNAL", string(first.Error.Code))

	second := orch.Answer(context.Background(), "what medications", "p1", time.Now())
	require.False(t, second.Success)
	assert.Equal(t, string(pipelineerrors.CodeCircuitOpen), string(second.Error.Code))
	assert.Equal(t, 503, pipelineerrors.CodeCircuitOpen.HTTPStatus())
}

func TestAnswer_DeadlineExceededDuringGenerationReturnsPartial(t *testing.T) {
	now := time.Now()
	store := &fakeStore{chunks: sampleChunks(now)}
	llm := &fakeLLM{sleep: 200 * time.Millisecond, responses: []string{"{}"}}
	orch := newTestOrchestrator(store, llm, Config{OverallDeadline: 10 * time.Millisecond})

	resp := orch.Answer(context.Background(), "What medications is the patient taking?", "p1", now)

	require.False(t, resp.Success)
	assert.True(t, resp.Metadata.Partial)
	assert.Equal(t, "PIPELINE_TIMEOUT", string(resp.Error.Code))
}
