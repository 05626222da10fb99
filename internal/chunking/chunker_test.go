package chunking

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentenceOfWords returns a period-terminated sentence of n distinct words.
func sentenceOfWords(label string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", label, i)
	}
	return strings.Join(words, " ") + "."
}

func artifactFromSentences(sentences ...string) types.Artifact {
	return types.Artifact{
		ID:         types.ArtifactID("artifact-1"),
		PatientID:  types.PatientID("patient-1"),
		Type:       types.ArtifactClinicalNote,
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Text:       strings.Join(sentences, " "),
	}
}

func TestChunk_ShortArtifactIsSingleChunk(t *testing.T) {
	artifact := artifactFromSentences(sentenceOfWords("w", 50))
	now := time.Now()
	chunks := Chunk(artifact, now)

	require.Len(t, chunks, 1)
	assert.Equal(t, artifact.Text, chunks[0].ChunkText)
	assert.Equal(t, 0, chunks[0].CharOffsets.Start)
	assert.Equal(t, len(artifact.Text), chunks[0].CharOffsets.End)
}

func TestChunk_LongArtifactProducesBoundedChunks(t *testing.T) {
	var sentences []string
	for i := 0; i < 40; i++ {
		sentences = append(sentences, sentenceOfWords(fmt.Sprintf("s%d_", i), 20))
	}
	artifact := artifactFromSentences(sentences...)
	chunks := Chunk(artifact, time.Now())

	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		words := len(strings.Fields(c.ChunkText))
		if i < len(chunks)-1 {
			assert.GreaterOrEqual(t, words, minWords, "chunk %d too small", i)
		}
		assert.LessOrEqual(t, words, maxWords+20, "chunk %d exceeds max bound", i)
	}
}

func TestChunk_AdjacentChunksOverlap(t *testing.T) {
	var sentences []string
	for i := 0; i < 40; i++ {
		sentences = append(sentences, sentenceOfWords(fmt.Sprintf("s%d_", i), 20))
	}
	artifact := artifactFromSentences(sentences...)
	chunks := Chunk(artifact, time.Now())
	require.Greater(t, len(chunks), 1)

	firstWords := strings.Fields(chunks[0].ChunkText)
	secondWords := strings.Fields(chunks[1].ChunkText)

	overlapCount := 0
	secondSet := make(map[string]bool, len(secondWords))
	for _, w := range secondWords {
		secondSet[w] = true
	}
	for _, w := range firstWords {
		if secondSet[w] {
			overlapCount++
		}
	}
	assert.Greater(t, overlapCount, 0, "expected word overlap between adjacent chunks")
}

func TestChunk_VeryLongSentenceOwnsItsChunk(t *testing.T) {
	huge := sentenceOfWords("giant", 400)
	artifact := artifactFromSentences(huge)
	chunks := Chunk(artifact, time.Now())

	require.Len(t, chunks, 1)
	assert.Equal(t, strings.TrimSpace(artifact.Text), strings.TrimSpace(chunks[0].ChunkText))
}

func TestSplitSentences_SuppressesAbbreviations(t *testing.T) {
	text := "Dr. Smith saw the patient. The patient, e.g. Mr. Jones, improved."
	sentences := splitSentences(text)
	require.Len(t, sentences, 2)
	assert.Contains(t, sentences[0].text, "Dr. Smith saw the patient.")
	assert.Contains(t, sentences[1].text, "e.g. Mr. Jones, improved.")
}

func TestChunk_RoundTripInvariant(t *testing.T) {
	var sentences []string
	for i := 0; i < 40; i++ {
		sentences = append(sentences, sentenceOfWords(fmt.Sprintf("s%d_", i), 20))
	}
	artifact := artifactFromSentences(sentences...)
	chunks := Chunk(artifact, time.Now())

	for _, c := range chunks {
		assert.NoError(t, VerifyRoundTrip(artifact.Text, c))
	}
}

func TestVerifyRoundTrip_RejectsOutOfRangeOffsets(t *testing.T) {
	chunk := types.Chunk{
		ChunkID:     types.ChunkID("bad"),
		ChunkText:   "hello",
		CharOffsets: types.CharOffsets{Start: 5, End: 1},
	}
	err := VerifyRoundTrip("hello world", chunk)
	assert.Error(t, err)
}

func TestVerifyRoundTrip_RejectsMismatchedText(t *testing.T) {
	text := "the patient improved steadily"
	chunk := types.Chunk{
		ChunkID:     types.ChunkID("mismatch"),
		ChunkText:   "something else entirely",
		CharOffsets: types.CharOffsets{Start: 0, End: len(text)},
	}
	err := VerifyRoundTrip(text, chunk)
	assert.Error(t, err)
}

func TestNormalize_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  a   b\tc\n"))
}
