package retrieval

import (
	"sort"
	"strings"
	"unicode"

	"clinical-nlq/internal/types"

	"github.com/agext/levenshtein"
)

const (
	minTermLength    = 3
	fuzzyMaxDistance = 2
	snippetWindow    = 200
)

// Highlight produces match spans over chunkText (spec.md 4.11): exact query
// term matches (>=3 chars), exact entity surface-form matches, and optional
// fuzzy word-level matches within a Levenshtein distance of 2. Overlapping or
// adjacent spans are merged, entity > exact > fuzzy precedence wins ties.
func Highlight(chunkText string, queryTerms []string, entities []types.Entity, fuzzy bool) []types.Highlight {
	var spans []types.Highlight
	lower := strings.ToLower(chunkText)

	for _, term := range queryTerms {
		if len(term) < minTermLength {
			continue
		}
		spans = append(spans, findExact(lower, chunkText, term, types.HighlightExact)...)
	}
	for _, e := range entities {
		if e.Text == "" {
			continue
		}
		spans = append(spans, findExact(lower, chunkText, strings.ToLower(e.Text), types.HighlightEntity)...)
	}
	if fuzzy {
		spans = append(spans, findFuzzy(chunkText, queryTerms)...)
	}

	return mergeSpans(spans)
}

func findExact(lower, original, term string, kind types.HighlightType) []types.Highlight {
	var spans []types.Highlight
	start := 0
	for {
		idx := strings.Index(lower[start:], term)
		if idx < 0 {
			break
		}
		absStart := start + idx
		absEnd := absStart + len(term)
		spans = append(spans, types.Highlight{Start: absStart, End: absEnd, Term: original[absStart:absEnd], Type: kind})
		start = absEnd
	}
	return spans
}

func findFuzzy(chunkText string, queryTerms []string) []types.Highlight {
	var spans []types.Highlight
	words := wordSpans(chunkText)
	for _, term := range queryTerms {
		if len(term) < minTermLength {
			continue
		}
		lowerTerm := strings.ToLower(term)
		for _, w := range words {
			if levenshtein.Distance(strings.ToLower(w.text), lowerTerm, nil) <= fuzzyMaxDistance {
				spans = append(spans, types.Highlight{Start: w.start, End: w.end, Term: w.text, Type: types.HighlightFuzzy})
			}
		}
	}
	return spans
}

type wordSpan struct {
	text       string
	start, end int
}

func wordSpans(s string) []wordSpan {
	var spans []wordSpan
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, wordSpan{s[start:i], start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, wordSpan{s[start:], start, len(s)})
	}
	return spans
}

// typeRank gives entity/exact/fuzzy their merge precedence (lower wins).
func typeRank(t types.HighlightType) int {
	switch t {
	case types.HighlightEntity:
		return 0
	case types.HighlightExact:
		return 1
	default:
		return 2
	}
}

func mergeSpans(spans []types.Highlight) []types.Highlight {
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return typeRank(spans[i].Type) < typeRank(spans[j].Type)
	})

	merged := []types.Highlight{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
				last.Term = last.Term
			}
			if typeRank(s.Type) < typeRank(last.Type) {
				last.Type = s.Type
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// Snippet centers a 200-char window on the first highlight and ellipsizes at
// boundaries; with no highlights it returns a leading truncation.
func Snippet(chunkText string, highlights []types.Highlight) string {
	if len(chunkText) <= snippetWindow {
		return chunkText
	}
	if len(highlights) == 0 {
		return chunkText[:snippetWindow] + "…"
	}

	center := (highlights[0].Start + highlights[0].End) / 2
	half := snippetWindow / 2
	start := center - half
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
