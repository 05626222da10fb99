// Package citation formats an Extraction's Provenance into the UI-facing
// provenance entry the Orchestrator attaches to a response (spec.md section
// 7): {artifact_id, chunk_id, snippet, note_date (relative), source_url}.
package citation

import (
	"fmt"
	"strings"
	"time"

	"clinical-nlq/internal/types"
)

// Entry is one UI-facing provenance record.
type Entry struct {
	ArtifactID types.ArtifactID `json:"artifact_id"`
	ChunkID    types.ChunkID    `json:"chunk_id"`
	Snippet    string           `json:"snippet"`
	NoteDate   string           `json:"note_date"`
	SourceURL  string           `json:"source_url,omitempty"`
}

const snippetWindow = 200

// Format builds one provenance Entry from an extraction's grounding
// candidate. now is the reference time for the relative note_date.
func Format(provenance types.Provenance, candidate types.RetrievalCandidate, now time.Time) Entry {
	return Entry{
		ArtifactID: provenance.ArtifactID,
		ChunkID:    provenance.ChunkID,
		Snippet:    snippet(candidate.Chunk.ChunkText, provenance.CharOffsets),
		NoteDate:   relativeDate(candidate.Chunk.OccurredAt, now),
		SourceURL:  sourceURL(candidate.Chunk),
	}
}

// FormatAll formats one Entry per extraction, matching each extraction's
// provenance to its grounding candidate by chunk_id. Extractions
// whose provenance has no matching candidate are skipped: the caller (the
// Answer Generation Agent) has already rejected those with
// GENERATION_PROVENANCE_INVALID before this ever runs.
func FormatAll(extractions []types.Extraction, candidates []types.RetrievalCandidate, now time.Time) []Entry {
	byChunk := make(map[types.ChunkID]types.RetrievalCandidate, len(candidates))
	for _, c := range candidates {
		byChunk[c.Chunk.ChunkID] = c
	}

	entries := make([]Entry, 0, len(extractions))
	for _, e := range extractions {
		candidate, ok := byChunk[e.Provenance.ChunkID]
		if !ok {
			continue
		}
		entries = append(entries, Format(e.Provenance, candidate, now))
	}
	return entries
}

// snippet extracts the supporting span from chunkText, centered in a
// snippetWindow-char window when the span itself is shorter than the window.
func snippet(chunkText string, offsets types.CharOffsets) string {
	if offsets.Start < 0 || offsets.End > len(chunkText) || offsets.Start >= offsets.End {
		return truncate(chunkText, snippetWindow)
	}

	span := offsets.End - offsets.Start
	if span >= snippetWindow {
		return chunkText[offsets.Start:offsets.End]
	}

	pad := (snippetWindow - span) / 2
	start := offsets.Start - pad
	if start < 0 {
		start = 0
	}
	end := start + snippetWindow
	if end > len(chunkText) {
		end = len(chunkText)
		start = end - snippetWindow
		if start < 0 {
			start = 0
		}
	}

	prefix, suffix := "", ""
	if start > 0 {
		prefix = "…"
	}
	if end < len(chunkText) {
		suffix = "…"
	}
	return prefix + chunkText[start:end] + suffix
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// relativeDate renders occurredAt relative to now: "today", "N days ago",
// "N weeks ago", "N months ago", or an absolute date past a year.
func relativeDate(occurredAt, now time.Time) string {
	days := int(now.Sub(occurredAt).Hours() / 24)
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "1 day ago"
	case days < 14:
		return fmt.Sprintf("%d days ago", days)
	case days < 60:
		return fmt.Sprintf("%d weeks ago", days/7)
	case days < 365:
		return fmt.Sprintf("%d months ago", days/30)
	default:
		return occurredAt.Format("2006-01-02")
	}
}

// sourceURL builds a best-effort deep link from the chunk's recorded source
// and artifact id. An empty Source yields an empty URL; the UI then falls
// back to the artifact_id alone.
func sourceURL(chunk types.Chunk) string {
	if chunk.Source == "" {
		return ""
	}
	return strings.TrimRight(chunk.Source, "/") + "/artifacts/" + string(chunk.ArtifactID)
}
