// Package chunking segments an Artifact's text into overlapping,
// word-count-bounded chunks with verifiable char offsets (spec.md section 4.7).
package chunking

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"clinical-nlq/internal/types"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const (
	minWords     = 200
	maxWords     = 300
	overlapWords = 50
)

// abbreviations suppress a sentence split immediately after them, even
// though they end in a period.
var abbreviations = map[string]bool{
	"dr.": true, "mr.": true, "mrs.": true, "ms.": true,
	"e.g.": true, "i.e.": true, "etc.": true, "vs.": true,
	"m.d.": true, "ph.d.": true, "jr.": true, "sr.": true, "st.": true,
}

var sentenceEndPattern = regexp.MustCompile(`[.!?]+["')\]]?\s+`)
var wordPattern = regexp.MustCompile(`\S+`)

type sentence struct {
	text  string
	start int // absolute byte offset into artifact text
	end   int
	words int
}

// splitSentences segments text into sentences with absolute char offsets,
// suppressing splits after curated abbreviations.
func splitSentences(text string) []sentence {
	var sentences []sentence
	matches := sentenceEndPattern.FindAllStringIndex(text, -1)

	start := 0
	for _, m := range matches {
		end := m[1]
		candidate := text[start : m[0]+1] // include the terminal punctuation
		trimmedLower := strings.ToLower(strings.TrimSpace(lastToken(candidate)))
		if abbreviations[trimmedLower] {
			continue
		}
		sentences = append(sentences, sentence{
			text:  text[start:end],
			start: start,
			end:   end,
			words: countWords(text[start:end]),
		})
		start = end
	}
	if start < len(text) {
		remainder := text[start:]
		if strings.TrimSpace(remainder) != "" {
			sentences = append(sentences, sentence{
				text:  remainder,
				start: start,
				end:   len(text),
				words: countWords(remainder),
			})
		}
	}
	return sentences
}

func lastToken(s string) string {
	words := wordPattern.FindAllString(s, -1)
	if len(words) == 0 {
		return ""
	}
	return words[len(words)-1]
}

func countWords(s string) int {
	return len(wordPattern.FindAllString(s, -1))
}

// Chunk segments artifact.Text into Chunks following spec.md section 4.7:
// sentences accumulate until the running word count is at least minWords and
// the next sentence would push it over maxWords; the next chunk starts at
// the sentence boundary nearest overlapWords before the previous chunk's end.
func Chunk(artifact types.Artifact, now time.Time) []types.Chunk {
	sentences := splitSentences(artifact.Text)
	if len(sentences) == 0 {
		return nil
	}

	totalWords := 0
	for _, s := range sentences {
		totalWords += s.words
	}
	if totalWords <= maxWords {
		return []types.Chunk{buildChunk(artifact, sentences, 0, len(sentences)-1, now)}
	}

	var chunks []types.Chunk
	startIdx := 0
	for startIdx < len(sentences) {
		endIdx, wordCount := closingIndex(sentences, startIdx)

		// A single sentence exceeding maxWords stays intact in its own chunk.
		if endIdx == startIdx && wordCount > maxWords {
			chunks = append(chunks, buildChunk(artifact, sentences, startIdx, startIdx, now))
			startIdx++
			continue
		}

		chunks = append(chunks, buildChunk(artifact, sentences, startIdx, endIdx, now))

		if endIdx == len(sentences)-1 {
			break
		}
		startIdx = overlapStartIndex(sentences, endIdx)
		if startIdx <= 0 {
			startIdx = endIdx + 1
		}
	}

	return chunks
}

// closingIndex returns the last sentence index to include starting from
// startIdx: accumulate until count >= minWords and the next sentence would
// exceed maxWords, or sentences run out.
func closingIndex(sentences []sentence, startIdx int) (int, int) {
	count := 0
	i := startIdx
	for ; i < len(sentences); i++ {
		next := count + sentences[i].words
		if count >= minWords && next > maxWords {
			return i - 1, count
		}
		count = next
		if count > maxWords && i == startIdx {
			return i, count
		}
	}
	return len(sentences) - 1, count
}

// overlapStartIndex finds the sentence index nearest to "overlapWords words
// before" the end of the chunk that just closed, scanning backward from
// endIdx so the next chunk starts at a sentence boundary.
func overlapStartIndex(sentences []sentence, endIdx int) int {
	accumulated := 0
	for i := endIdx; i >= 0; i-- {
		accumulated += sentences[i].words
		if accumulated >= overlapWords {
			return i
		}
	}
	return 0
}

func buildChunk(artifact types.Artifact, sentences []sentence, startIdx, endIdx int, now time.Time) types.Chunk {
	start := sentences[startIdx].start
	end := sentences[endIdx].end
	return types.Chunk{
		ChunkID:      types.ChunkID(uuid.New().String()),
		ArtifactID:   artifact.ID,
		PatientID:    artifact.PatientID,
		ArtifactType: artifact.Type,
		ChunkText:    artifact.Text[start:end],
		CharOffsets:  types.CharOffsets{Start: start, End: end},
		OccurredAt:   artifact.OccurredAt,
		Author:       artifact.Author,
		Source:       artifact.Source,
		CreatedAt:    now,
	}
}

// Normalize NFC-normalizes s (so differently-composed accented characters,
// e.g. a precomposed "é" vs "e"+combining-acute, compare equal) and collapses
// whitespace runs to single spaces, trimming the ends. This is the
// equivalence relation the chunk/offset round-trip invariant is checked
// under (spec.md section 8).
func Normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// VerifyRoundTrip reports whether re-slicing artifactText at chunk's
// char_offsets and normalizing reproduces chunk.ChunkText.
func VerifyRoundTrip(artifactText string, chunk types.Chunk) error {
	if chunk.CharOffsets.Start < 0 || chunk.CharOffsets.End > len(artifactText) || chunk.CharOffsets.Start > chunk.CharOffsets.End {
		return fmt.Errorf("chunk %s has out-of-range offsets [%d,%d) for text of length %d",
			chunk.ChunkID, chunk.CharOffsets.Start, chunk.CharOffsets.End, len(artifactText))
	}
	resliced := artifactText[chunk.CharOffsets.Start:chunk.CharOffsets.End]
	if Normalize(resliced) != Normalize(chunk.ChunkText) {
		return fmt.Errorf("chunk %s text does not match re-sliced artifact text at its offsets", chunk.ChunkID)
	}
	return nil
}
