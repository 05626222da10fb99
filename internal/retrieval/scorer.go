package retrieval

import (
	"math"
	"sort"
	"strings"
	"time"

	"clinical-nlq/internal/types"
)

const (
	weightSemantic       = 0.40
	weightKeyword        = 0.30
	weightRecency        = 0.20
	weightTypePreference = 0.10

	bm25K1 = 1.2
	bm25B  = 0.75

	recencyLambda = 0.01

	defaultDiversityWeight = 0.3
)

// Weights is the four-signal combination weight set (spec.md 4.9). Zero
// value means "use the package defaults".
type Weights struct {
	Semantic       float64
	Keyword        float64
	Recency        float64
	TypePreference float64
}

// Normalize renormalizes a caller-supplied partial weight set so the four
// weights sum to 1, falling back to the spec defaults when none are set.
func (w Weights) Normalize() Weights {
	if w.Semantic == 0 && w.Keyword == 0 && w.Recency == 0 && w.TypePreference == 0 {
		return Weights{weightSemantic, weightKeyword, weightRecency, weightTypePreference}
	}
	sum := w.Semantic + w.Keyword + w.Recency + w.TypePreference
	if sum == 0 {
		return Weights{weightSemantic, weightKeyword, weightRecency, weightTypePreference}
	}
	return Weights{w.Semantic / sum, w.Keyword / sum, w.Recency / sum, w.TypePreference / sum}
}

// intentPreferredTypes maps an intent to its related/unrelated artifact type
// scoring, per spec.md 4.9: exact match 1.0, related 0.5-0.8, unrelated 0.1-0.3.
var intentPreferredTypes = map[types.Intent]map[types.ArtifactType]bool{
	types.IntentRetrieveMedications: {
		types.ArtifactMedicationOrder: true, types.ArtifactPrescription: true, types.ArtifactMedicationList: true,
	},
	types.IntentRetrieveCarePlans: {
		types.ArtifactCarePlan: true, types.ArtifactProgressNote: true,
	},
	types.IntentRetrieveNotes: {
		types.ArtifactClinicalNote: true, types.ArtifactProgressNote: true, types.ArtifactDischargeNote: true,
	},
}

var relatedTypes = map[types.ArtifactType]bool{
	types.ArtifactCondition: true, types.ArtifactAllergy: true, types.ArtifactLabObservation: true,
	types.ArtifactVital: true, types.ArtifactDocument: true,
}

// typePreferenceScore scores a candidate's artifact type against the query's
// intent.
func typePreferenceScore(intent types.Intent, artifactType types.ArtifactType) float64 {
	preferred, ok := intentPreferredTypes[intent]
	if !ok || len(preferred) == 0 {
		return 0.5 // no artifact-type preference for this intent: treat as neutral/related
	}
	if preferred[artifactType] {
		return 1.0
	}
	if relatedTypes[artifactType] {
		return 0.65
	}
	return 0.2
}

// recencyScore computes exp(-lambda * days_ago); future dates clamp to
// days_ago=0, so it returns 1.0.
func recencyScore(occurredAt time.Time, now time.Time) float64 {
	days := now.Sub(occurredAt).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	return math.Exp(-recencyLambda * days)
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// keywordCorpus precomputes the BM25 document-frequency statistics needed to
// score a query against a candidate set.
type keywordCorpus struct {
	docFreq map[string]int
	docLens []int
	avgLen  float64
	tokens  [][]string
}

func buildKeywordCorpus(chunks []types.Chunk) *keywordCorpus {
	tokens := make([][]string, len(chunks))
	docFreq := make(map[string]int)
	totalLen := 0

	for i, c := range chunks {
		toks := tokenize(c.ChunkText)
		tokens[i] = toks
		totalLen += len(toks)
		seen := make(map[string]bool, len(toks))
		for _, t := range toks {
			if !seen[t] {
				docFreq[t]++
				seen[t] = true
			}
		}
	}

	avgLen := 0.0
	if len(chunks) > 0 {
		avgLen = float64(totalLen) / float64(len(chunks))
	}

	lens := make([]int, len(tokens))
	for i, t := range tokens {
		lens[i] = len(t)
	}

	return &keywordCorpus{docFreq: docFreq, docLens: lens, avgLen: avgLen, tokens: tokens}
}

// bm25 scores document index idx against queryTerms using the simplified
// BM25 formula from spec.md 4.9 (k1=1.2, b=0.75), returning a raw (unbounded)
// score. Callers normalize across the candidate set separately.
func (kc *keywordCorpus) bm25(idx int, queryTerms []string) float64 {
	n := len(kc.tokens)
	if n == 0 {
		return 0
	}
	docTokens := kc.tokens[idx]
	termFreq := make(map[string]int, len(docTokens))
	for _, t := range docTokens {
		termFreq[t]++
	}

	score := 0.0
	docLen := float64(kc.docLens[idx])
	for _, term := range queryTerms {
		tf := float64(termFreq[term])
		if tf == 0 {
			continue
		}
		df := float64(kc.docFreq[term])
		idf := math.Log(1 + (float64(n)-df+0.5)/(df+0.5))
		denom := tf + bm25K1*(1-bm25B+bm25B*docLen/kc.avgLen)
		score += idf * (tf * (bm25K1 + 1)) / denom
	}
	return score
}

// Score computes the four-signal Scores (spec.md 4.9) for one candidate.
// semantic is the k-NN similarity already computed by the vector index.
func Score(chunk types.Chunk, semantic float64, keywordRaw, keywordMax float64, intent types.Intent, now time.Time) types.Scores {
	keyword := 0.0
	if keywordMax > 0 {
		keyword = keywordRaw / keywordMax
	}

	scores := types.Scores{
		Semantic:       clamp01(semantic),
		Keyword:        clamp01(keyword),
		Recency:        recencyScore(chunk.OccurredAt, now),
		TypePreference: typePreferenceScore(intent, chunk.ArtifactType),
	}
	scores.Combined = Combine(scores, Weights{}.Normalize())
	return scores
}

// Combine applies a weight set to a Scores' four signals.
func Combine(s types.Scores, w Weights) float64 {
	return w.Semantic*s.Semantic + w.Keyword*s.Keyword + w.Recency*s.Recency + w.TypePreference*s.TypePreference
}

// Rank sorts candidates by descending combined score with the spec's
// tie-break: higher semantic, then newer occurred_at, then lexicographically
// smaller chunk_id.
func Rank(candidates []types.RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Scores.Combined != b.Scores.Combined {
			return a.Scores.Combined > b.Scores.Combined
		}
		if a.Scores.Semantic != b.Scores.Semantic {
			return a.Scores.Semantic > b.Scores.Semantic
		}
		if !a.Chunk.OccurredAt.Equal(b.Chunk.OccurredAt) {
			return a.Chunk.OccurredAt.After(b.Chunk.OccurredAt)
		}
		return a.Chunk.ChunkID < b.Chunk.ChunkID
	})
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
}

// MinMaxNormalizeCombined rescales each candidate's combined score to [0,1]
// min-max across the set, in place.
func MinMaxNormalizeCombined(candidates []types.RetrievalCandidate) {
	if len(candidates) == 0 {
		return
	}
	min, max := candidates[0].Scores.Combined, candidates[0].Scores.Combined
	for _, c := range candidates {
		if c.Scores.Combined < min {
			min = c.Scores.Combined
		}
		if c.Scores.Combined > max {
			max = c.Scores.Combined
		}
	}
	span := max - min
	for i := range candidates {
		if span == 0 {
			candidates[i].Scores.Combined = 1.0
			continue
		}
		candidates[i].Scores.Combined = (candidates[i].Scores.Combined - min) / span
	}
}

// Diversify reorders sorted candidates by subtracting
// diversity_weight * max_similarity_to_already_selected, where similarity is
// a blend of same-artifact-type and Jaccard token similarity (spec.md 4.9).
func Diversify(candidates []types.RetrievalCandidate, diversityWeight float64) []types.RetrievalCandidate {
	if diversityWeight <= 0 || len(candidates) <= 1 {
		return candidates
	}
	if diversityWeight == 0 {
		diversityWeight = defaultDiversityWeight
	}

	remaining := append([]types.RetrievalCandidate{}, candidates...)
	selected := make([]types.RetrievalCandidate, 0, len(candidates))
	selectedTokens := make([][]string, 0, len(candidates))

	for len(remaining) > 0 {
		bestIdx, bestAdjusted := 0, math.Inf(-1)
		for i, c := range remaining {
			maxSim := 0.0
			for j, sel := range selected {
				sim := similarity(c, sel, selectedTokens[j])
				if sim > maxSim {
					maxSim = sim
				}
			}
			adjusted := c.Scores.Combined - diversityWeight*maxSim
			if adjusted > bestAdjusted {
				bestAdjusted, bestIdx = adjusted, i
			}
		}
		chosen := remaining[bestIdx]
		selected = append(selected, chosen)
		selectedTokens = append(selectedTokens, tokenize(chosen.Chunk.ChunkText))
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func similarity(a, b types.RetrievalCandidate, bTokens []string) float64 {
	typeSim := 0.0
	if a.Chunk.ArtifactType == b.Chunk.ArtifactType {
		typeSim = 1.0
	}
	jaccard := jaccardSimilarity(tokenize(a.Chunk.ChunkText), bTokens)
	return (typeSim + jaccard) / 2
}

func jaccardSimilarity(a, b []string) float64 {
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
