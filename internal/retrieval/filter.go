// Package retrieval implements the candidate scoring, re-ranking,
// diversification, highlighting, and partitioned-pipeline components of
// spec.md sections 4.8-4.13.
package retrieval

import (
	"time"

	"clinical-nlq/internal/types"
)

// FilterResult is a filtered chunk population plus a diagnostic count of how
// many chunks were removed.
type FilterResult struct {
	Chunks  []types.Chunk
	Removed int
}

// Filter prunes chunks to those matching patientID (mandatory) and, when
// set, artifact_types membership and an inclusive date_range (spec.md 4.8).
func Filter(chunks []types.Chunk, patientID types.PatientID, filters types.Filters) FilterResult {
	typeSet := make(map[types.ArtifactType]bool, len(filters.ArtifactTypes))
	for _, t := range filters.ArtifactTypes {
		typeSet[t] = true
	}

	kept := make([]types.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.PatientID != patientID {
			continue
		}
		if len(typeSet) > 0 && !typeSet[c.ArtifactType] {
			continue
		}
		if filters.DateRange != nil && !inRange(c.OccurredAt, *filters.DateRange) {
			continue
		}
		kept = append(kept, c)
	}

	return FilterResult{Chunks: kept, Removed: len(chunks) - len(kept)}
}

func inRange(t time.Time, tf types.TemporalFilter) bool {
	if !tf.DateFrom.IsZero() && t.Before(tf.DateFrom) {
		return false
	}
	if !tf.DateTo.IsZero() && t.After(tf.DateTo) {
		return false
	}
	return true
}
