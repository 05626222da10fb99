package retrieval

import (
	"context"
	"time"

	"clinical-nlq/internal/logging"
	"clinical-nlq/internal/types"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// MaxParallel bounds the number of concurrent partitions (spec.md 4.13).
const MaxParallel = 10

const timeWindowSplitThreshold = 6 * 30 * 24 * time.Hour // ~6 months

// ParallelResult is the Parallel Retriever's output (spec.md 4.13).
type ParallelResult struct {
	Result
	ParallelSearches      int     `json:"parallel_searches"`
	MergeTimeMs           int64   `json:"merge_time_ms"`
	DeduplicationRemoved  int     `json:"deduplication_removed"`
	SequentialFallback    bool    `json:"sequential_fallback"`
	SpeedupFactor         float64 `json:"speedup_factor,omitempty"`
}

// partition is one subquery to run through the Integrated Retriever.
type partition struct {
	sq     types.StructuredQuery
	chunks []types.Chunk
}

// ParallelRetrieve partitions sq per spec.md 4.13's policy and runs
// Integrated Retrievals concurrently, merging the results back into one
// ranked candidate list.
func (r *Retriever) ParallelRetrieve(ctx context.Context, sq types.StructuredQuery, queryVector []float64, allChunks []types.Chunk, cfg Config) ParallelResult {
	partitions := partitionQuery(sq, allChunks)
	if len(partitions) <= 1 {
		seq := r.Retrieve(ctx, sq, queryVector, allChunks, cfg)
		return ParallelResult{Result: seq, SequentialFallback: true}
	}

	type partitionOutcome struct {
		result Result
		ok     bool
	}
	outcomes := make([]partitionOutcome, len(partitions))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range partitions {
		i, p := i, p
		g.Go(func() error {
			res := r.Retrieve(gctx, p.sq, queryVector, p.chunks, cfg)
			if res.Error != "" {
				outcomes[i] = partitionOutcome{ok: false}
				logging.RetrievalLogger.Warn("partition retrieval failed", "error", res.Error)
				return nil // a failed partition is logged and skipped, not fatal
			}
			outcomes[i] = partitionOutcome{result: res, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	mergeStart := time.Now()
	var successful []Result
	for _, o := range outcomes {
		if o.ok {
			successful = append(successful, o.result)
		}
	}
	if len(successful) == 0 {
		seq := r.Retrieve(ctx, sq, queryVector, allChunks, cfg)
		return ParallelResult{Result: seq, SequentialFallback: true}
	}

	merged, dedupRemoved := mergeParallelResults(successful)
	merged = Rerank(merged, tokenize(sq.OriginalQuery), sq.Entities)
	Rank(merged)
	if cfg.K > 0 && len(merged) > cfg.K {
		merged = merged[:cfg.K]
	}

	return ParallelResult{
		Result: Result{
			Candidates:      merged,
			TotalSearched:   sumTotalSearched(successful),
			FilteredCount:   sumFilteredCount(successful),
			RetrievalTimeMs: time.Since(mergeStart).Milliseconds(),
			Stages:          averageStages(successful),
		},
		ParallelSearches:     len(partitions),
		MergeTimeMs:          time.Since(mergeStart).Milliseconds(),
		DeduplicationRemoved: dedupRemoved,
	}
}

// partitionQuery applies the spec's first-rule-wins partitioning policy.
func partitionQuery(sq types.StructuredQuery, allChunks []types.Chunk) []partition {
	if len(sq.Filters.ArtifactTypes) >= 2 {
		return partitionByArtifactType(sq, allChunks)
	}
	if sq.Filters.DateRange != nil {
		dr := *sq.Filters.DateRange
		if !dr.DateFrom.IsZero() && !dr.DateTo.IsZero() && dr.DateTo.Sub(dr.DateFrom) > timeWindowSplitThreshold {
			return partitionByTimeWindow(sq, allChunks, dr)
		}
	}
	return []partition{{sq: sq, chunks: allChunks}}
}

func partitionByArtifactType(sq types.StructuredQuery, allChunks []types.Chunk) []partition {
	types_ := sq.Filters.ArtifactTypes
	if len(types_) > MaxParallel {
		types_ = types_[:MaxParallel]
	}
	partitions := make([]partition, 0, len(types_))
	for _, t := range types_ {
		sub := sq
		sub.Filters = types.Filters{ArtifactTypes: []types.ArtifactType{t}, DateRange: sq.Filters.DateRange}
		partitions = append(partitions, partition{sq: sub, chunks: allChunks})
	}
	return partitions
}

func partitionByTimeWindow(sq types.StructuredQuery, allChunks []types.Chunk, dr types.TemporalFilter) []partition {
	total := dr.DateTo.Sub(dr.DateFrom)
	quarter := total / 4
	if quarter <= 0 {
		return []partition{{sq: sq, chunks: allChunks}}
	}

	var partitions []partition
	cursor := dr.DateFrom
	for i := 0; i < MaxParallel && cursor.Before(dr.DateTo); i++ {
		end := cursor.Add(quarter)
		if end.After(dr.DateTo) {
			end = dr.DateTo
		}
		sub := sq
		windowFilter := dr
		windowFilter.DateFrom, windowFilter.DateTo = cursor, end
		sub.Filters = types.Filters{ArtifactTypes: sq.Filters.ArtifactTypes, DateRange: &windowFilter}
		partitions = append(partitions, partition{sq: sub, chunks: allChunks})
		cursor = end
	}
	return partitions
}

// mergeParallelResults min-max normalizes each partition's candidates, then
// dedupes by chunk_id keeping the higher-scored instance.
func mergeParallelResults(results []Result) ([]types.RetrievalCandidate, int) {
	var all []types.RetrievalCandidate
	for _, r := range results {
		candidates := append([]types.RetrievalCandidate{}, r.Candidates...)
		MinMaxNormalizeCombined(candidates)
		all = append(all, candidates...)
	}

	best := make(map[types.ChunkID]types.RetrievalCandidate, len(all))
	for _, c := range all {
		existing, ok := best[c.Chunk.ChunkID]
		if !ok || c.Scores.Combined > existing.Scores.Combined {
			best[c.Chunk.ChunkID] = c
		}
	}

	deduped := lo.Values(best)
	return deduped, len(all) - len(deduped)
}

func sumTotalSearched(results []Result) int {
	total := 0
	for _, r := range results {
		total += r.TotalSearched
	}
	return total
}

func sumFilteredCount(results []Result) int {
	total := 0
	for _, r := range results {
		total += r.FilteredCount
	}
	return total
}

func averageStages(results []Result) []StageMetric {
	sums := make(map[string]*StageMetric)
	order := make([]string, 0)
	for _, r := range results {
		for _, s := range r.Stages {
			existing, ok := sums[s.Stage]
			if !ok {
				copy := s
				sums[s.Stage] = &copy
				order = append(order, s.Stage)
				continue
			}
			existing.DurationMs += s.DurationMs
			existing.InputCount += s.InputCount
			existing.OutputCount += s.OutputCount
		}
	}

	n := int64(len(results))
	averaged := make([]StageMetric, 0, len(order))
	for _, name := range order {
		s := sums[name]
		if n > 0 {
			s.DurationMs /= n
			s.InputCount /= int(n)
			s.OutputCount /= int(n)
		}
		averaged = append(averaged, *s)
	}
	return averaged
}
