package generation

import (
	"testing"
	"time"

	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCandidates(n int) []types.RetrievalCandidate {
	candidates := make([]types.RetrievalCandidate, n)
	for i := 0; i < n; i++ {
		candidates[i] = types.RetrievalCandidate{
			Chunk: types.Chunk{
				ChunkID: types.ChunkID(indexStr(i)), ArtifactID: types.ArtifactID("a" + indexStr(i)),
				ArtifactType: types.ArtifactClinicalNote, ChunkText: "patient reports improvement in symptoms over the past week",
				OccurredAt: time.Now(),
			},
			Rank: i + 1,
		}
	}
	return candidates
}

func indexStr(i int) string {
	return string(rune('a' + i))
}

func TestEstimateTokens_NonEmptyTextYieldsPositiveCount(t *testing.T) {
	assert.Greater(t, EstimateTokens("the patient was prescribed metformin"), 0)
}

func TestBuildExtractionPrompt_IncludesCandidateMetadataAndQuery(t *testing.T) {
	sq := types.StructuredQuery{OriginalQuery: "what medications is the patient on"}
	system, user := BuildExtractionPrompt(sq, sampleCandidates(2))

	assert.Contains(t, system, "provenance")
	assert.Contains(t, user, "what medications is the patient on")
	assert.Contains(t, user, "artifact_id=aa")
}

func TestTruncateCandidates_DropsLowestRankedUntilWithinBudget(t *testing.T) {
	sq := types.StructuredQuery{OriginalQuery: "q"}
	candidates := sampleCandidates(20)

	truncated := TruncateCandidates(sq, candidates, 200)

	require.NotEmpty(t, truncated)
	assert.Less(t, len(truncated), len(candidates))
	assert.Equal(t, candidates[0].Chunk.ChunkID, truncated[0].Chunk.ChunkID, "must keep highest-ranked candidates first")
}

func TestTruncateCandidates_NeverDropsToZero(t *testing.T) {
	sq := types.StructuredQuery{OriginalQuery: "q"}
	candidates := sampleCandidates(5)

	truncated := TruncateCandidates(sq, candidates, 1)
	assert.Len(t, truncated, 1)
}
