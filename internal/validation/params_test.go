package validation

import (
	"strings"
	"testing"
	"time"

	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
)

func validArtifact() types.Artifact {
	return types.Artifact{
		ID:         "artifact-1",
		PatientID:  types.PatientID("patient-1"),
		Type:       types.ArtifactClinicalNote,
		OccurredAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		Text:       "Patient reports improved glucose control since last visit.",
		Source:     "https://emr.example.com/notes/1",
	}
}

func TestValidate_AcceptsWellFormedArtifact(t *testing.T) {
	result := Validate(validArtifact(), time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC))
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidate_RejectsUnrecognizedType(t *testing.T) {
	a := validArtifact()
	a.Type = types.ArtifactType("unknown_type")
	result := Validate(a, time.Now())
	assert.False(t, result.Valid)
	assert.Contains(t, strings.Join(result.Errors, " "), "not a recognized")
}

func TestValidate_RejectsPreHistoricOccurredAt(t *testing.T) {
	a := validArtifact()
	a.OccurredAt = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	result := Validate(a, time.Now())
	assert.False(t, result.Valid)
}

func TestValidate_FutureOccurredAtIsWarningNotError(t *testing.T) {
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	a := validArtifact()
	a.OccurredAt = now.AddDate(0, 0, 1)
	result := Validate(a, now)
	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
}

func TestValidate_ShortTextIsWarning(t *testing.T) {
	a := validArtifact()
	a.Text = "short"
	result := Validate(a, time.Now())
	assert.True(t, result.Valid)
	assert.Contains(t, strings.Join(result.Warnings, " "), "shorter than")
}

func TestValidate_LongTextIsWarning(t *testing.T) {
	a := validArtifact()
	a.Text = strings.Repeat("a", longTextWarningThreshold+1)
	result := Validate(a, time.Now())
	assert.True(t, result.Valid)
	assert.Contains(t, strings.Join(result.Warnings, " "), "exceeds")
}

func TestValidate_EmptyTextIsError(t *testing.T) {
	a := validArtifact()
	a.Text = "   "
	result := Validate(a, time.Now())
	assert.False(t, result.Valid)
}

func TestValidate_NonURLSourceIsWarning(t *testing.T) {
	a := validArtifact()
	a.Source = "not-a-url"
	result := Validate(a, time.Now())
	assert.True(t, result.Valid)
	assert.Contains(t, strings.Join(result.Warnings, " "), "URL")
}

func TestValidateBatch_TalliesCounts(t *testing.T) {
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	valid := validArtifact()
	invalid := validArtifact()
	invalid.ID = ""
	withWarning := validArtifact()
	withWarning.Text = "short"

	batch := ValidateBatch([]types.Artifact{valid, invalid, withWarning}, now)
	assert.Equal(t, 2, batch.Valid)
	assert.Equal(t, 1, batch.Invalid)
	assert.Equal(t, 1, batch.WithWarnings)
	assert.Len(t, batch.Results, 3)
}
