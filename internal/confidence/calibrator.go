// Package confidence implements the Confidence Calibrator (spec.md section
// 4.17): per-extraction factor scoring, weighted aggregation, and the
// uncertainty-bucket/recommendation mapping the Orchestrator surfaces to
// callers.
package confidence

import (
	"clinical-nlq/internal/types"

	"github.com/samber/lo"
)

const (
	weightRetrieval  = 0.30
	weightSource     = 0.25
	weightExtraction = 0.25
	weightConsistency = 0.20

	defaultConsistency = 0.80
	lowFactorThreshold = 0.7
)

// sourceWeights is the artifact_type -> source-trust lookup table (spec.md
// 4.17); artifact types absent from this table fall back to 0.60.
var sourceWeights = map[types.ArtifactType]float64{
	types.ArtifactClinicalNote:    1.00,
	types.ArtifactProgressNote:    1.00,
	types.ArtifactDischargeNote:   1.00,
	types.ArtifactDocument:        0.95,
	types.ArtifactMedicationOrder: 0.90,
	types.ArtifactPrescription:    0.90,
	types.ArtifactMedicationList:  0.90,
	types.ArtifactCondition:       0.90,
	types.ArtifactAllergy:         0.90,
	types.ArtifactLabObservation:  0.85,
	types.ArtifactCarePlan:        0.85,
	types.ArtifactVital:           0.80,
	types.ArtifactFormResponse:    0.75,
	types.ArtifactMessage:         0.70,
	types.ArtifactAppointment:     0.65,
}

const defaultSourceWeight = 0.60

// UncertaintyBucket is one of the five fixed confidence tiers.
type UncertaintyBucket string

const (
	BucketVeryLow  UncertaintyBucket = "very_low"
	BucketLow      UncertaintyBucket = "low"
	BucketMedium   UncertaintyBucket = "medium"
	BucketHigh     UncertaintyBucket = "high"
	BucketVeryHigh UncertaintyBucket = "very_high"
)

var bucketRecommendations = map[UncertaintyBucket]string{
	BucketVeryLow:  "High confidence: this answer can be used as-is.",
	BucketLow:      "Good confidence: spot-check against the source chunks before relying on this answer.",
	BucketMedium:   "Moderate confidence: verify the key facts against the patient's record before acting on this answer.",
	BucketHigh:     "Low confidence: treat this answer as a lead, not a conclusion — confirm independently.",
	BucketVeryHigh: "Very low confidence: do not rely on this answer without direct chart review.",
}

// Factors holds the four [0,1] inputs to the aggregate confidence score.
type Factors struct {
	Retrieval   float64 `json:"retrieval"`
	Source      float64 `json:"source"`
	Extraction  float64 `json:"extraction"`
	Consistency float64 `json:"consistency"`
}

// Score is one extraction's calibrated confidence result.
type Score struct {
	Factors         Factors           `json:"factors"`
	Aggregate       float64           `json:"aggregate"`
	Bucket          UncertaintyBucket `json:"bucket"`
	Recommendation  string            `json:"recommendation"`
	LowFactorReasons []string         `json:"low_factor_reasons,omitempty"`
}

// retrievalFactor is the source candidate's combined similarity score.
func retrievalFactor(candidate types.RetrievalCandidate) float64 {
	return clamp(candidate.Scores.Combined)
}

// sourceFactor looks up the artifact type's source-trust weight.
func sourceFactor(artifactType types.ArtifactType) float64 {
	if w, ok := sourceWeights[artifactType]; ok {
		return w
	}
	return defaultSourceWeight
}

// extractionFactor scores an extraction's own confidence plus provenance
// presence: base 0.70 + 0.15 if provenance present + a self-confidence bonus.
func extractionFactor(extraction types.Extraction) float64 {
	score := 0.70
	if extraction.Provenance.SupportingText != "" {
		score += 0.15
	}
	if extraction.Provenance.Confidence != nil {
		switch {
		case *extraction.Provenance.Confidence >= 0.9:
			score += 0.10
		case *extraction.Provenance.Confidence >= 0.8:
			score += 0.05
		}
	}
	return clamp(score)
}

// Calibrate computes the four-factor confidence Score for one extraction,
// grounded on the retrieval candidate it was drawn from. consistency is the
// optional cross-query consistency score; pass a negative value to use the
// spec default of 0.80.
func Calibrate(extraction types.Extraction, candidate types.RetrievalCandidate, consistency float64) Score {
	if consistency < 0 {
		consistency = defaultConsistency
	}

	factors := Factors{
		Retrieval:   retrievalFactor(candidate),
		Source:      sourceFactor(candidate.Chunk.ArtifactType),
		Extraction:  extractionFactor(extraction),
		Consistency: clamp(consistency),
	}

	aggregate := weightRetrieval*factors.Retrieval +
		weightSource*factors.Source +
		weightExtraction*factors.Extraction +
		weightConsistency*factors.Consistency

	bucket := bucketFor(aggregate)

	return Score{
		Factors:          factors,
		Aggregate:        aggregate,
		Bucket:           bucket,
		Recommendation:   bucketRecommendations[bucket],
		LowFactorReasons: lowFactorReasons(factors),
	}
}

// AggregateScores computes the arithmetic mean aggregate across multiple
// extractions' Scores and re-derives its bucket/recommendation.
func AggregateScores(scores []Score) Score {
	if len(scores) == 0 {
		return Score{Bucket: BucketVeryHigh, Recommendation: bucketRecommendations[BucketVeryHigh]}
	}

	n := float64(len(scores))
	meanFactors := Factors{
		Retrieval:   lo.SumBy(scores, func(s Score) float64 { return s.Factors.Retrieval }) / n,
		Source:      lo.SumBy(scores, func(s Score) float64 { return s.Factors.Source }) / n,
		Extraction:  lo.SumBy(scores, func(s Score) float64 { return s.Factors.Extraction }) / n,
		Consistency: lo.SumBy(scores, func(s Score) float64 { return s.Factors.Consistency }) / n,
	}
	meanAggregate := lo.SumBy(scores, func(s Score) float64 { return s.Aggregate }) / n
	bucket := bucketFor(meanAggregate)

	return Score{
		Factors:          meanFactors,
		Aggregate:        meanAggregate,
		Bucket:           bucket,
		Recommendation:   bucketRecommendations[bucket],
		LowFactorReasons: lowFactorReasons(meanFactors),
	}
}

func bucketFor(aggregate float64) UncertaintyBucket {
	switch {
	case aggregate >= 0.90:
		return BucketVeryLow
	case aggregate >= 0.80:
		return BucketLow
	case aggregate >= 0.60:
		return BucketMedium
	case aggregate >= 0.40:
		return BucketHigh
	default:
		return BucketVeryHigh
	}
}

func lowFactorReasons(f Factors) []string {
	var reasons []string
	if f.Retrieval < lowFactorThreshold {
		reasons = append(reasons, "retrieval: source candidate had low similarity to the query")
	}
	if f.Source < lowFactorThreshold {
		reasons = append(reasons, "source: artifact type carries lower inherent trust")
	}
	if f.Extraction < lowFactorThreshold {
		reasons = append(reasons, "extraction: claim lacked strong provenance or self-reported confidence")
	}
	if f.Consistency < lowFactorThreshold {
		reasons = append(reasons, "consistency: claim did not corroborate well across queries")
	}
	return reasons
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
