package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinical-nlq/internal/cache"
	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/reliability"
	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	hits []ports.ScoredChunkID
	err  error
	n    int
}

func (f *fakeIndex) Upsert(ctx context.Context, chunk types.Chunk, embedding []float64) error { return nil }
func (f *fakeIndex) Delete(ctx context.Context, chunkID types.ChunkID) error                   { return nil }
func (f *fakeIndex) Search(ctx context.Context, patientID types.PatientID, query []float64, k int) ([]ports.ScoredChunkID, error) {
	f.n++
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func sampleChunks(now time.Time) []types.Chunk {
	return []types.Chunk{
		{ChunkID: "c1", PatientID: "p1", ArtifactType: types.ArtifactClinicalNote, ChunkText: "Patient prescribed Metformin 500mg twice daily for Type 2 Diabetes.", OccurredAt: now.AddDate(0, 0, -2)},
		{ChunkID: "c2", PatientID: "p1", ArtifactType: types.ArtifactCarePlan, ChunkText: "Follow up scheduled in 2 weeks for blood pressure monitoring.", OccurredAt: now.AddDate(0, 0, -1)},
	}
}

func TestRetrieve_ReturnsRankedCandidatesWithAllSevenStages(t *testing.T) {
	now := time.Now()
	index := &fakeIndex{hits: []ports.ScoredChunkID{{ChunkID: "c1", Similarity: 0.9}, {ChunkID: "c2", Similarity: 0.2}}}
	r := NewRetriever(index, nil)

	sq := types.StructuredQuery{
		PatientID: "p1", OriginalQuery: "metformin diabetes", Intent: types.IntentRetrieveMedications,
	}
	cfg := DefaultConfig()
	cfg.EnableDiversify = true
	cfg.EnableTimeDecay = true
	result := r.Retrieve(context.Background(), sq, []float64{0.1}, sampleChunks(now), cfg)

	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, 7, len(result.Stages))
	assert.Equal(t, types.ChunkID("c1"), result.Candidates[0].Chunk.ChunkID)
	assert.NotEmpty(t, result.Candidates[0].Snippet)
}

func TestRetrieve_EmptyWhenNoChunksSurviveFilter(t *testing.T) {
	r := NewRetriever(&fakeIndex{}, nil)
	sq := types.StructuredQuery{PatientID: "nonexistent", OriginalQuery: "q"}
	result := r.Retrieve(context.Background(), sq, nil, sampleChunks(time.Now()), DefaultConfig())
	assert.Empty(t, result.Candidates)
	assert.Equal(t, "", result.Error)
}

func TestRetrieve_CacheHitSkipsRecompute(t *testing.T) {
	now := time.Now()
	index := &fakeIndex{hits: []ports.ScoredChunkID{{ChunkID: "c1", Similarity: 0.9}}}
	rc := cache.NewRetrievalCache(10, time.Hour)
	r := NewRetriever(index, rc)

	sq := types.StructuredQuery{PatientID: "p1", OriginalQuery: "metformin"}
	chunks := sampleChunks(now)

	first := r.Retrieve(context.Background(), sq, []float64{0.1}, chunks, DefaultConfig())
	assert.False(t, first.CacheHit)

	second := r.Retrieve(context.Background(), sq, []float64{0.1}, chunks, DefaultConfig())
	assert.True(t, second.CacheHit)
}

func TestRetrieve_OpenCircuitFallsBackToKeywordSearch(t *testing.T) {
	now := time.Now()
	index := &fakeIndex{err: errors.New("qdrant unreachable")}
	r := NewRetriever(index, nil)
	r.Breaker = reliability.NewBreaker(&reliability.BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Hour, MaxConcurrentRequests: 1})

	sq := types.StructuredQuery{PatientID: "p1", OriginalQuery: "metformin diabetes"}
	chunks := sampleChunks(now)

	first := r.Retrieve(context.Background(), sq, []float64{0.1}, chunks, DefaultConfig())
	assert.NotEqual(t, "", first.Error, "a genuine index failure still fails the query before the breaker trips")

	second := r.Retrieve(context.Background(), sq, []float64{0.1}, chunks, DefaultConfig())
	assert.Equal(t, "", second.Error, "circuit is now open; search should fall back to keyword search, not fail the query")
	assert.Equal(t, 1, index.n, "second call must not hit the index at all once the circuit is open")
	assert.NotEmpty(t, second.Candidates)
}
