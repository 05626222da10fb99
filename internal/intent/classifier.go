// Package intent classifies a query into one of the pipeline's recognized
// intents using weighted keyword tables (spec.md section 4.2).
package intent

import (
	"strings"

	"clinical-nlq/internal/types"
)

const (
	minConfidence      = 0.3
	ambiguityThreshold = 0.15
)

var keywordWeights = map[types.Intent]map[string]float64{
	types.IntentRetrieveMedications: {
		"medication": 1.0, "medications": 1.0, "drug": 0.9, "drugs": 0.9,
		"prescription": 1.0, "prescribed": 0.9, "dosage": 0.8, "dose": 0.7,
		"taking": 0.6, "pills": 0.6,
	},
	types.IntentRetrieveCarePlans: {
		"care plan": 1.0, "care plans": 1.0, "follow up": 0.8, "follow-up": 0.8,
		"plan": 0.5, "scheduled": 0.6, "appointment": 0.6,
	},
	types.IntentRetrieveNotes: {
		"note": 0.9, "notes": 0.9, "documented": 0.6, "record": 0.6, "records": 0.6,
		"visit": 0.5, "wrote": 0.5,
	},
	types.IntentSummary: {
		"summary": 1.0, "summarize": 1.0, "overview": 0.9, "overall": 0.6,
	},
	types.IntentComparison: {
		"compare": 1.0, "comparison": 1.0, "versus": 0.9, "vs": 0.8, "difference": 0.7,
		"changed": 0.6, "trend": 0.6, "trends": 0.6,
	},
}

// Result is the Intent Classifier's output: the winning intent, its
// confidence, and any near-miss intents within the ambiguity threshold.
type Result struct {
	Intent           types.Intent
	Confidence       float64
	AmbiguousIntents []types.Intent
}

// Classify scores query against every intent's keyword table and returns the
// highest-scoring intent, falling back to RETRIEVE_ALL below minConfidence.
func Classify(query string) Result {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return Result{Intent: types.IntentUnknown, Confidence: 0}
	}

	scores := make(map[types.Intent]float64, len(keywordWeights))
	for candidate, keywords := range keywordWeights {
		var raw, max float64
		for kw, weight := range keywords {
			max += weight
			if strings.Contains(normalized, kw) {
				raw += weight
			}
		}
		if max > 0 {
			scores[candidate] = raw / max
		}
	}

	best := types.IntentUnknown
	bestScore := 0.0
	for candidate, score := range scores {
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}

	if bestScore < minConfidence {
		return Result{Intent: types.IntentRetrieveAll, Confidence: bestScore}
	}

	var ambiguous []types.Intent
	for candidate, score := range scores {
		if candidate == best {
			continue
		}
		if bestScore-score <= ambiguityThreshold {
			ambiguous = append(ambiguous, candidate)
		}
	}

	return Result{Intent: best, Confidence: bestScore, AmbiguousIntents: ambiguous}
}
