// Package validation performs the canonical Artifact checks (spec.md section
// 4.21): required fields, recognized type, a sane occurred_at, and
// length/URL warnings that never block ingestion on their own.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"clinical-nlq/internal/types"
)

const (
	shortTextWarningThreshold = 10
	longTextWarningThreshold  = 50000
)

var minArtifactDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Result is one Artifact's validation outcome.
type Result struct {
	ArtifactID types.ArtifactID `json:"artifact_id"`
	Valid      bool             `json:"valid"`
	Errors     []string         `json:"errors,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Validate runs the canonical checks against a single Artifact. now is the
// reference time for the occurred_at future-date warning.
func Validate(artifact types.Artifact, now time.Time) Result {
	result := Result{ArtifactID: artifact.ID, Valid: true}

	if artifact.ID == "" {
		result.addError("id is required")
	}
	if artifact.PatientID.IsEmpty() {
		result.addError("patient_id is required")
	}
	if !types.RecognizedArtifactTypes[artifact.Type] {
		result.addError(fmt.Sprintf("type %q is not a recognized artifact type", artifact.Type))
	}
	if strings.TrimSpace(artifact.Source) == "" {
		result.addError("source is required")
	}

	if artifact.OccurredAt.IsZero() {
		result.addError("occurred_at is required")
	} else if artifact.OccurredAt.Before(minArtifactDate) {
		result.addError(fmt.Sprintf("occurred_at %s is before 1900-01-01", artifact.OccurredAt.Format(time.RFC3339)))
	} else if artifact.OccurredAt.After(now) {
		result.addWarning("occurred_at is in the future")
	}

	text := strings.TrimSpace(artifact.Text)
	switch {
	case text == "":
		result.addError("text is required")
	case len(text) < shortTextWarningThreshold:
		result.addWarning(fmt.Sprintf("text is shorter than %d characters", shortTextWarningThreshold))
	case len(text) > longTextWarningThreshold:
		result.addWarning(fmt.Sprintf("text exceeds %d characters", longTextWarningThreshold))
	}

	if artifact.Source != "" && !isURL(artifact.Source) {
		result.addWarning("source does not look like a URL")
	}

	return result
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (r *Result) addError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

func (r *Result) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// BatchResult summarizes Validate run over a batch of artifacts.
type BatchResult struct {
	Valid        int      `json:"valid"`
	Invalid      int      `json:"invalid"`
	WithWarnings int      `json:"with_warnings"`
	Results      []Result `json:"results"`
}

// ValidateBatch validates each artifact independently and tallies the batch
// counts spec.md section 4.21 requires.
func ValidateBatch(artifacts []types.Artifact, now time.Time) BatchResult {
	batch := BatchResult{Results: make([]Result, 0, len(artifacts))}
	for _, artifact := range artifacts {
		result := Validate(artifact, now)
		batch.Results = append(batch.Results, result)
		if result.Valid {
			batch.Valid++
		} else {
			batch.Invalid++
		}
		if len(result.Warnings) > 0 {
			batch.WithWarnings++
		}
	}
	return batch
}
