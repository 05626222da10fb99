package retrieval

import (
	"context"
	"testing"
	"time"

	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestParallelRetrieve_SinglePartitionFallsBackToSequential(t *testing.T) {
	now := time.Now()
	index := &fakeIndex{hits: []ports.ScoredChunkID{{ChunkID: "c1", Similarity: 0.9}}}
	r := NewRetriever(index, nil)

	sq := types.StructuredQuery{PatientID: "p1", OriginalQuery: "metformin"}
	result := r.ParallelRetrieve(context.Background(), sq, []float64{0.1}, sampleChunks(now), DefaultConfig())
	assert.True(t, result.SequentialFallback)
}

func TestParallelRetrieve_PartitionsByArtifactType(t *testing.T) {
	now := time.Now()
	index := &fakeIndex{hits: []ports.ScoredChunkID{{ChunkID: "c1", Similarity: 0.9}, {ChunkID: "c2", Similarity: 0.8}}}
	r := NewRetriever(index, nil)

	sq := types.StructuredQuery{
		PatientID: "p1", OriginalQuery: "medications and care plan",
		Filters: types.Filters{ArtifactTypes: []types.ArtifactType{types.ArtifactClinicalNote, types.ArtifactCarePlan}},
	}
	result := r.ParallelRetrieve(context.Background(), sq, []float64{0.1}, sampleChunks(now), DefaultConfig())
	assert.False(t, result.SequentialFallback)
	assert.Equal(t, 2, result.ParallelSearches)
	assert.NotEmpty(t, result.Candidates)
}

func TestPartitionQuery_SplitsLongDateRangeByQuarter(t *testing.T) {
	now := time.Now()
	sq := types.StructuredQuery{
		Filters: types.Filters{DateRange: &types.TemporalFilter{DateFrom: now.AddDate(-1, 0, 0), DateTo: now}},
	}
	partitions := partitionQuery(sq, nil)
	assert.Len(t, partitions, 4)
}

func TestMergeParallelResults_DedupesByChunkIDKeepingHigherScore(t *testing.T) {
	results := []Result{
		{Candidates: []types.RetrievalCandidate{{Chunk: types.Chunk{ChunkID: "c1"}, Scores: types.Scores{Combined: 0.3}}}},
		{Candidates: []types.RetrievalCandidate{{Chunk: types.Chunk{ChunkID: "c1"}, Scores: types.Scores{Combined: 0.9}}}},
	}
	merged, removed := mergeParallelResults(results)
	assert.Len(t, merged, 1)
	assert.Equal(t, 1, removed)
}
