// Package generation implements the Extraction Prompt Builder, Two-Pass
// Generator, and Answer Generation Agent (spec.md 4.14-4.16): turning a
// structured query plus retrieved candidates into grounded, cited answers.
package generation

import (
	"fmt"
	"strconv"
	"strings"

	"clinical-nlq/internal/types"

	"github.com/pkoukk/tiktoken-go"
)

// Mode selects one of the Extraction Prompt Builder's two configurations.
type Mode string

const (
	ModeExtraction    Mode = "extraction"
	ModeSummarization Mode = "summarization"
)

// PromptConfig holds one pass's sampling parameters.
type PromptConfig struct {
	Mode        Mode
	Temperature float64
	MaxTokens   int
}

// ExtractionConfig is pass 1's configuration: deterministic, generous budget.
func ExtractionConfig() PromptConfig {
	return PromptConfig{Mode: ModeExtraction, Temperature: 0.0, MaxTokens: 2000}
}

// SummarizationConfig is pass 2's configuration: mild variation, smaller budget.
func SummarizationConfig() PromptConfig {
	return PromptConfig{Mode: ModeSummarization, Temperature: 0.3, MaxTokens: 800}
}

const extractionSystemPrompt = `You are a clinical question-answering assistant. Answer only using the
numbered candidate chunks provided below; never use outside knowledge.

Every factual claim you produce must cite its source as a provenance object:
{"artifact_id": "...", "chunk_id": "...", "char_offsets": {"start": N, "end": N}, "supporting_text": "..."}.
char_offsets are positions within the cited chunk's text, and supporting_text
must be the exact substring of the chunk at those offsets.

Respond with JSON matching exactly:
{"extractions": [{"type": "medication_recommendation"|"care_plan_note"|"general_note", "content": {...}, "provenance": {...}}]}`

const summarizationSystemPrompt = `You are a clinical question-answering assistant writing the final answer for
a clinician. You are given the original question and the structured claims
already extracted from the patient's record (each grounded to a source
chunk). Do not introduce any claim that is not already present in the
extraction list.

Respond with JSON matching exactly:
{"short_answer": "...", "detailed_summary": "..."}`

var tokenizer *tiktoken.Tiktoken

func init() {
	tokenizer, _ = tiktoken.GetEncoding("cl100k_base")
}

// EstimateTokens returns a token count estimate for text. Uses a real BPE
// tokenizer when available, falling back to spec.md 4.14's chars/4 heuristic.
func EstimateTokens(text string) int {
	if tokenizer != nil {
		return len(tokenizer.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// BuildExtractionPrompt formats the system/user prompt pair for pass 1.
func BuildExtractionPrompt(sq types.StructuredQuery, candidates []types.RetrievalCandidate) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient question: %s\n\n", sq.OriginalQuery)
	b.WriteString("Candidate chunks:\n\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] artifact_id=%s chunk_id=%s type=%s occurred_at=%s\n",
			i+1, c.Chunk.ArtifactID, c.Chunk.ChunkID, c.Chunk.ArtifactType, c.Chunk.OccurredAt.Format("2006-01-02"))
		b.WriteString(indexedText(c.Chunk.ChunkText))
		b.WriteString("\n\n")
	}
	return extractionSystemPrompt, b.String()
}

// BuildSummarizationPrompt formats the system/user prompt pair for pass 2.
func BuildSummarizationPrompt(sq types.StructuredQuery, extractions []types.Extraction) (system, user string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient question: %s\n\n", sq.OriginalQuery)
	b.WriteString("Extracted claims:\n\n")
	for i, e := range extractions {
		fmt.Fprintf(&b, "[%d] type=%s content=%v (source: artifact_id=%s chunk_id=%s)\n",
			i+1, e.Type, e.Content, e.Provenance.ArtifactID, e.Provenance.ChunkID)
	}
	return summarizationSystemPrompt, b.String()
}

// indexedText numbers each line of chunk text so the model can reference a
// sentence precisely in its supporting_text citation.
func indexedText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strconv.Itoa(i) + ": " + l
	}
	return strings.Join(out, "\n")
}

// TruncateCandidates drops the lowest-ranked candidates (the tail of an
// already rank-sorted slice) until the estimated extraction prompt fits
// within budget tokens, leaving at least one candidate.
func TruncateCandidates(sq types.StructuredQuery, candidates []types.RetrievalCandidate, budget int) []types.RetrievalCandidate {
	kept := candidates
	for len(kept) > 1 {
		_, user := BuildExtractionPrompt(sq, kept)
		if EstimateTokens(extractionSystemPrompt)+EstimateTokens(user) <= budget {
			break
		}
		kept = kept[:len(kept)-1]
	}
	return kept
}
