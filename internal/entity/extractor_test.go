package entity

import (
	"testing"

	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_AbbreviationNormalizes(t *testing.T) {
	entities := Extract("Patient has a history of HTN and MI.")
	require.Len(t, entities, 2)
	normalized := map[string]bool{}
	for _, e := range entities {
		normalized[e.Normalized] = true
	}
	assert.True(t, normalized["hypertension"])
	assert.True(t, normalized["myocardial infarction"])
}

func TestExtract_ExactBeatsAbbreviationConfidence(t *testing.T) {
	exactMatch := Extract("Patient has hypertension.")
	abbrevMatch := Extract("Patient has HTN.")
	require.Len(t, exactMatch, 1)
	require.Len(t, abbrevMatch, 1)
	assert.Greater(t, exactMatch[0].Confidence, abbrevMatch[0].Confidence)
}

func TestExtract_MedicationMention(t *testing.T) {
	entities := Extract("What is the dosage of ibuprofen?")
	require.Len(t, entities, 1)
	assert.Equal(t, types.EntityMedication, entities[0].Type)
	assert.Equal(t, "ibuprofen", entities[0].Normalized)
}

func TestExtract_NoFalsePositiveOnSubstring(t *testing.T) {
	entities := Extract("misinsulinformation")
	assert.Empty(t, entities)
}

func TestExtract_MultiWordSurfaceFormWins(t *testing.T) {
	entities := Extract("Patient diagnosed with type 2 diabetes last year.")
	require.Len(t, entities, 1)
	assert.Equal(t, "diabetes", entities[0].Normalized)
}
