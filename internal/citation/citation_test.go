package citation

import (
	"testing"
	"time"

	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(chunkID types.ChunkID, text string, occurredAt time.Time) types.RetrievalCandidate {
	return types.RetrievalCandidate{
		Chunk: types.Chunk{
			ChunkID:    chunkID,
			ArtifactID: types.ArtifactID("artifact-1"),
			ChunkText:  text,
			OccurredAt: occurredAt,
			Source:     "https://emr.example.com",
		},
	}
}

func TestFormat_SnippetCentersOnOffsets(t *testing.T) {
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	c := candidate("chunk-1", "Patient prescribed Metformin 500mg twice daily for Type 2 Diabetes management.", now.AddDate(0, 0, -2))
	provenance := types.Provenance{
		ArtifactID:  "artifact-1",
		ChunkID:     "chunk-1",
		CharOffsets: types.CharOffsets{Start: 20, End: 45},
	}

	entry := Format(provenance, c, now)
	assert.Contains(t, entry.Snippet, "Metformin 500mg twice daily")
	assert.Equal(t, "2 days ago", entry.NoteDate)
	assert.Equal(t, "https://emr.example.com/artifacts/artifact-1", entry.SourceURL)
}

func TestFormat_OutOfRangeOffsetsFallsBackToTruncation(t *testing.T) {
	now := time.Now()
	c := candidate("chunk-1", "short text", now)
	provenance := types.Provenance{CharOffsets: types.CharOffsets{Start: 999, End: 1000}}

	entry := Format(provenance, c, now)
	assert.Equal(t, "short text", entry.Snippet)
}

func TestFormat_EmptySourceYieldsEmptyURL(t *testing.T) {
	now := time.Now()
	c := candidate("chunk-1", "text", now)
	c.Chunk.Source = ""

	entry := Format(types.Provenance{}, c, now)
	assert.Empty(t, entry.SourceURL)
}

func TestRelativeDate_Buckets(t *testing.T) {
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "today", relativeDate(now, now))
	assert.Equal(t, "1 day ago", relativeDate(now.AddDate(0, 0, -1), now))
	assert.Equal(t, "5 days ago", relativeDate(now.AddDate(0, 0, -5), now))
	assert.Equal(t, "2 weeks ago", relativeDate(now.AddDate(0, 0, -16), now))
	assert.Equal(t, "2 months ago", relativeDate(now.AddDate(0, 0, -65), now))
	assert.Equal(t, "2024-01-15", relativeDate(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), now))
}

func TestFormatAll_SkipsExtractionsWithNoMatchingCandidate(t *testing.T) {
	now := time.Now()
	candidates := []types.RetrievalCandidate{candidate("chunk-1", "some text here", now)}
	extractions := []types.Extraction{
		{Provenance: types.Provenance{ChunkID: "chunk-1"}},
		{Provenance: types.Provenance{ChunkID: "chunk-missing"}},
	}

	entries := FormatAll(extractions, candidates, now)
	require.Len(t, entries, 1)
	assert.Equal(t, types.ChunkID("chunk-1"), entries[0].ChunkID)
}
