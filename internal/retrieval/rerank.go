package retrieval

import (
	"sort"
	"strings"

	"clinical-nlq/internal/types"
)

const (
	rerankWeightPrior          = 0.7
	rerankWeightEntityCoverage = 0.2
	rerankWeightQueryOverlap   = 0.1
)

// Rerank recomputes rerank_score = 0.7*prior_combined + 0.2*entity_coverage +
// 0.1*query_overlap over the top-K candidates (spec.md 4.10), stable-sorting
// by the new score and leaving input order as the tie-break.
func Rerank(candidates []types.RetrievalCandidate, queryTokens []string, entities []types.Entity) []types.RetrievalCandidate {
	reranked := make([]types.RetrievalCandidate, len(candidates))
	copy(reranked, candidates)

	for i, c := range reranked {
		chunkText := strings.ToLower(c.Chunk.ChunkText)
		entityCoverage := coverage(entities, chunkText)
		queryOverlap := jaccardSimilarity(queryTokens, tokenize(c.Chunk.ChunkText))

		reranked[i].Scores.Combined = rerankWeightPrior*c.Scores.Combined +
			rerankWeightEntityCoverage*entityCoverage +
			rerankWeightQueryOverlap*queryOverlap
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Scores.Combined > reranked[j].Scores.Combined
	})
	for i := range reranked {
		reranked[i].Rank = i + 1
	}
	return reranked
}

// coverage is the fraction of entities whose text appears case-insensitively
// in chunkText (already lowercased).
func coverage(entities []types.Entity, chunkText string) float64 {
	if len(entities) == 0 {
		return 0
	}
	found := 0
	for _, e := range entities {
		if strings.Contains(chunkText, strings.ToLower(e.Text)) {
			found++
		}
	}
	return float64(found) / float64(len(entities))
}
