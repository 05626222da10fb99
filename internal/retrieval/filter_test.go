package retrieval

import (
	"testing"
	"time"

	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestFilter_KeepsOnlyMatchingPatientAndType(t *testing.T) {
	chunks := []types.Chunk{
		{ChunkID: "c1", PatientID: "p1", ArtifactType: types.ArtifactClinicalNote},
		{ChunkID: "c2", PatientID: "p1", ArtifactType: types.ArtifactMedicationOrder},
		{ChunkID: "c3", PatientID: "p2", ArtifactType: types.ArtifactClinicalNote},
	}
	result := Filter(chunks, "p1", types.Filters{ArtifactTypes: []types.ArtifactType{types.ArtifactMedicationOrder}})
	assert.Len(t, result.Chunks, 1)
	assert.Equal(t, types.ChunkID("c2"), result.Chunks[0].ChunkID)
	assert.Equal(t, 2, result.Removed)
}

func TestFilter_DateRange(t *testing.T) {
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	chunks := []types.Chunk{
		{ChunkID: "c1", PatientID: "p1", OccurredAt: now.AddDate(0, 0, -1)},
		{ChunkID: "c2", PatientID: "p1", OccurredAt: now.AddDate(0, -2, 0)},
	}
	result := Filter(chunks, "p1", types.Filters{DateRange: &types.TemporalFilter{
		DateFrom: now.AddDate(0, 0, -7), DateTo: now,
	}})
	assert.Len(t, result.Chunks, 1)
	assert.Equal(t, types.ChunkID("c1"), result.Chunks[0].ChunkID)
}
