package retrieval

import (
	"context"
	"time"

	"clinical-nlq/internal/cache"
	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/reliability"
	"clinical-nlq/internal/types"
)

const (
	defaultTopK        = 10
	defaultRerankTopK  = 20
	diversityThreshold = 0.85
)

// StageMetric records one pipeline stage's timing and candidate-count
// transition (spec.md 4.12).
type StageMetric struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"duration_ms"`
	InputCount int    `json:"input_count"`
	OutputCount int   `json:"output_count"`
}

// Config governs which optional stages of the Integrated Retriever run.
type Config struct {
	K               int
	RerankTopK      int
	EnableRerank    bool
	EnableDiversify bool
	DiversityWeight float64
	EnableTimeDecay bool
	TimeDecayRate   float64
	HybridAlpha     float64
	EnableFuzzy     bool
	Weights         Weights
}

// DefaultConfig returns the spec's default Integrated Retriever settings.
func DefaultConfig() Config {
	return Config{
		K: defaultTopK, RerankTopK: defaultRerankTopK,
		EnableRerank: true, EnableDiversify: false, DiversityWeight: defaultDiversityWeight,
		EnableTimeDecay: false, TimeDecayRate: 0.1, HybridAlpha: 0.7,
	}
}

// Result is the Integrated Retriever's output (spec.md 4.12).
type Result struct {
	Candidates       []types.RetrievalCandidate `json:"candidates"`
	TotalSearched    int                         `json:"total_searched"`
	FilteredCount    int                         `json:"filtered_count"`
	RetrievalTimeMs  int64                       `json:"retrieval_time_ms"`
	Stages           []StageMetric               `json:"stages"`
	CacheHit         bool                        `json:"cache_hit"`
	Error            string                      `json:"error,omitempty"`
}

// Retriever runs the seven-stage sequential pipeline against one patient's
// chunk population, backed by a vector index and a shared retrieval cache.
// The vector index is called through a circuit breaker: once it trips, the
// retriever falls back to keyword-only (BM25) search (spec.md 4.19's
// USE_KEYWORD_SEARCH fallback strategy) rather than failing the query.
type Retriever struct {
	Index   ports.VectorIndex
	Cache   *cache.RetrievalCache
	Breaker *reliability.CircuitBreaker
}

// NewRetriever constructs a Retriever. cache may be nil to disable caching.
func NewRetriever(index ports.VectorIndex, retrievalCache *cache.RetrievalCache) *Retriever {
	return &Retriever{Index: index, Cache: retrievalCache, Breaker: reliability.NewBreaker(reliability.DefaultBreakerConfig())}
}

// Retrieve runs the seven stages over allChunks (the patient's full chunk
// population, pre-filter) against sq, embedding the query via queryVector.
func (r *Retriever) Retrieve(ctx context.Context, sq types.StructuredQuery, queryVector []float64, allChunks []types.Chunk, cfg Config) Result {
	start := time.Now()
	if cfg.K <= 0 {
		cfg = DefaultConfig()
	}

	cacheKey := ""
	if r.Cache != nil {
		cacheKey = cache.Key(sq.PatientID, sq.OriginalQuery, sq.Filters, cfg)
		if cached, ok := r.Cache.Get(cacheKey); ok {
			return Result{
				Candidates: cached.Candidates, CacheHit: true,
				RetrievalTimeMs: time.Since(start).Milliseconds(),
			}
		}
	}

	var stages []StageMetric
	result := r.run(ctx, sq, queryVector, allChunks, cfg, &stages)
	result.Stages = stages
	result.RetrievalTimeMs = time.Since(start).Milliseconds()

	if r.Cache != nil && result.Error == "" {
		r.Cache.Set(cacheKey, cache.RetrievalResult{Candidates: result.Candidates})
	}
	return result
}

func (r *Retriever) run(ctx context.Context, sq types.StructuredQuery, queryVector []float64, allChunks []types.Chunk, cfg Config, stages *[]StageMetric) Result {
	// Stage 1: Metadata Filtering
	filterResult := timedFilter(allChunks, sq.PatientID, sq.Filters, stages)
	if len(filterResult.Chunks) == 0 {
		return Result{TotalSearched: len(allChunks), FilteredCount: filterResult.Removed}
	}

	// Stage 2: Hybrid Search
	candidates, err := r.hybridSearch(ctx, sq, queryVector, filterResult.Chunks, cfg, stages)
	if err != nil {
		return Result{TotalSearched: len(allChunks), FilteredCount: filterResult.Removed, Error: err.Error()}
	}
	if len(candidates) == 0 {
		return Result{TotalSearched: len(allChunks), FilteredCount: filterResult.Removed}
	}

	// Stage 3: Initial Scoring
	candidates = timedScore(candidates, filterResult.Chunks, sq, cfg, stages)

	Rank(candidates)

	// Stage 4: Re-ranking
	if cfg.EnableRerank {
		candidates = timedRerank(candidates, sq, cfg, stages)
	}

	// Stage 5: Diversification
	if cfg.EnableDiversify {
		candidates = timedDiversify(candidates, cfg, stages)
	}

	// Stage 6: Time Decay Boost
	if cfg.EnableTimeDecay {
		candidates = timedTimeDecay(candidates, cfg, stages)
	}

	if cfg.K > 0 && len(candidates) > cfg.K {
		candidates = candidates[:cfg.K]
	}

	// Stage 7: Highlight Generation
	candidates = timedHighlight(candidates, sq, cfg, stages)

	return Result{
		Candidates:    candidates,
		TotalSearched: len(allChunks),
		FilteredCount: filterResult.Removed,
	}
}

func timedFilter(chunks []types.Chunk, patientID types.PatientID, filters types.Filters, stages *[]StageMetric) FilterResult {
	start := time.Now()
	result := Filter(chunks, patientID, filters)
	*stages = append(*stages, StageMetric{"metadata_filtering", time.Since(start).Milliseconds(), len(chunks), len(result.Chunks)})
	return result
}

// callIndex runs fn against the vector index through the circuit breaker,
// when one is configured; a nil Breaker (e.g. in tests constructing a
// Retriever literal directly) calls fn unprotected.
func (r *Retriever) callIndex(ctx context.Context, fn func(context.Context) error) error {
	if r.Breaker == nil {
		return fn(ctx)
	}
	return r.Breaker.Execute(ctx, fn)
}

func isCircuitOpen(err error) bool {
	pe, ok := err.(*pipelineerrors.PipelineError)
	return ok && pe.Code == pipelineerrors.CodeCircuitOpen
}

func (r *Retriever) hybridSearch(ctx context.Context, sq types.StructuredQuery, queryVector []float64, chunks []types.Chunk, cfg Config, stages *[]StageMetric) ([]types.RetrievalCandidate, error) {
	start := time.Now()

	semanticScores := make(map[types.ChunkID]float64)
	if r.Index != nil && len(queryVector) > 0 {
		var hits []ports.ScoredChunkID
		searchErr := r.callIndex(ctx, func(ctx context.Context) error {
			var err error
			hits, err = r.Index.Search(ctx, sq.PatientID, queryVector, len(chunks))
			return err
		})
		switch {
		case searchErr == nil:
			for _, h := range hits {
				semanticScores[h.ChunkID] = h.Similarity
			}
		case isCircuitOpen(searchErr):
			// USE_KEYWORD_SEARCH fallback: proceed with BM25 scores only.
		default:
			return nil, searchErr
		}
	}

	corpus := buildKeywordCorpus(chunks)
	queryTokens := tokenize(sq.OriginalQuery)

	keywordRaw := make([]float64, len(chunks))
	maxKeyword := 0.0
	for i := range chunks {
		keywordRaw[i] = corpus.bm25(i, queryTokens)
		if keywordRaw[i] > maxKeyword {
			maxKeyword = keywordRaw[i]
		}
	}

	candidates := make([]types.RetrievalCandidate, 0, len(chunks))
	for i, c := range chunks {
		semantic, hasSemantic := semanticScores[c.ChunkID]
		if !hasSemantic && keywordRaw[i] == 0 {
			continue // present in neither ranked set: excluded by the union merge
		}
		candidates = append(candidates, types.RetrievalCandidate{
			Chunk:  c,
			Scores: types.Scores{Semantic: semantic},
		})
	}

	*stages = append(*stages, StageMetric{"hybrid_search", time.Since(start).Milliseconds(), len(chunks), len(candidates)})
	return candidates, nil
}

func timedScore(candidates []types.RetrievalCandidate, chunks []types.Chunk, sq types.StructuredQuery, cfg Config, stages *[]StageMetric) []types.RetrievalCandidate {
	start := time.Now()
	corpus := buildKeywordCorpus(chunks)
	queryTokens := tokenize(sq.OriginalQuery)
	chunkIdx := make(map[types.ChunkID]int, len(chunks))
	for i, c := range chunks {
		chunkIdx[c.ChunkID] = i
	}

	maxKeyword := 0.0
	raws := make([]float64, len(candidates))
	for i, cand := range candidates {
		idx := chunkIdx[cand.Chunk.ChunkID]
		raws[i] = corpus.bm25(idx, queryTokens)
		if raws[i] > maxKeyword {
			maxKeyword = raws[i]
		}
	}

	now := time.Now()
	for i := range candidates {
		semantic := candidates[i].Scores.Semantic
		candidates[i].Scores = Score(candidates[i].Chunk, semantic, raws[i], maxKeyword, sq.Intent, now)
	}
	*stages = append(*stages, StageMetric{"initial_scoring", time.Since(start).Milliseconds(), len(candidates), len(candidates)})
	return candidates
}

func timedRerank(candidates []types.RetrievalCandidate, sq types.StructuredQuery, cfg Config, stages *[]StageMetric) []types.RetrievalCandidate {
	start := time.Now()
	topK := cfg.RerankTopK
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	head := Rerank(candidates[:topK], tokenize(sq.OriginalQuery), sq.Entities)
	result := append(head, candidates[topK:]...)
	*stages = append(*stages, StageMetric{"re_ranking", time.Since(start).Milliseconds(), len(candidates), len(result)})
	return result
}

func timedDiversify(candidates []types.RetrievalCandidate, cfg Config, stages *[]StageMetric) []types.RetrievalCandidate {
	start := time.Now()
	result := Diversify(candidates, cfg.DiversityWeight)
	*stages = append(*stages, StageMetric{"diversification", time.Since(start).Milliseconds(), len(candidates), len(result)})
	return result
}

func timedTimeDecay(candidates []types.RetrievalCandidate, cfg Config, stages *[]StageMetric) []types.RetrievalCandidate {
	start := time.Now()
	for i := range candidates {
		candidates[i].Scores.Combined *= 1 + cfg.TimeDecayRate*candidates[i].Scores.Recency
	}
	Rank(candidates)
	*stages = append(*stages, StageMetric{"time_decay_boost", time.Since(start).Milliseconds(), len(candidates), len(candidates)})
	return candidates
}

func timedHighlight(candidates []types.RetrievalCandidate, sq types.StructuredQuery, cfg Config, stages *[]StageMetric) []types.RetrievalCandidate {
	start := time.Now()
	queryTokens := tokenize(sq.OriginalQuery)
	for i := range candidates {
		highlights := Highlight(candidates[i].Chunk.ChunkText, queryTokens, sq.Entities, cfg.EnableFuzzy)
		candidates[i].Highlights = highlights
		candidates[i].Snippet = Snippet(candidates[i].Chunk.ChunkText, highlights)
	}
	*stages = append(*stages, StageMetric{"highlight_generation", time.Since(start).Milliseconds(), len(candidates), len(candidates)})
	return candidates
}
