// Package expansion produces ranked search-term variants for a query plus
// its extracted entities (spec.md section 4.4).
package expansion

import (
	"strings"

	"clinical-nlq/internal/types"
)

const (
	originalBoost = 2.0
	variantBoost  = 1.0
	maxSynonyms   = 2
)

// synonyms maps a canonical (normalized) term to alternate surface forms a
// clinical note might use instead.
var synonyms = map[string][]string{
	"metformin":                      {"glucophage"},
	"ibuprofen":                      {"advil", "motrin"},
	"atorvastatin":                   {"lipitor"},
	"warfarin":                       {"coumadin"},
	"hypertension":                   {"high blood pressure", "htn"},
	"diabetes":                       {"type 2 diabetes", "dm"},
	"myocardial infarction":          {"heart attack", "mi"},
	"shortness of breath":            {"dyspnea", "sob"},
	"chronic obstructive pulmonary disease": {"copd"},
}

// Variant is one search-term variant paired with its ranking boost.
type Variant struct {
	Text  string
	Boost float64
}

// Lookup returns up to maxSynonyms alternate surface forms for a normalized term.
func Lookup(normalizedTerm string) []string {
	forms := synonyms[strings.ToLower(normalizedTerm)]
	if len(forms) > maxSynonyms {
		return forms[:maxSynonyms]
	}
	return forms
}

// Expand returns an ordered list of query variants: the original query first
// (boost 2x), then one variant per entity substitution using each synonym.
func Expand(query string, entities []types.Entity) []Variant {
	variants := []Variant{{Text: query, Boost: originalBoost}}

	for _, e := range entities {
		for _, syn := range Lookup(e.Normalized) {
			substituted := substituteTerm(query, e.Text, syn)
			if substituted == query {
				continue
			}
			variants = append(variants, Variant{Text: substituted, Boost: variantBoost})
		}
	}

	return variants
}

// ExpandedSearchTerms pairs every variant's text with its boost, convenient
// for callers building a weighted multi-query search.
func ExpandedSearchTerms(query string, entities []types.Entity) map[string]float64 {
	terms := make(map[string]float64)
	for _, v := range Expand(query, entities) {
		if existing, ok := terms[v.Text]; !ok || v.Boost > existing {
			terms[v.Text] = v.Boost
		}
	}
	return terms
}

func substituteTerm(query, original, replacement string) string {
	lowerQuery := strings.ToLower(query)
	lowerOriginal := strings.ToLower(original)
	idx := strings.Index(lowerQuery, lowerOriginal)
	if idx < 0 {
		return query
	}
	return query[:idx] + replacement + query[idx+len(original):]
}
