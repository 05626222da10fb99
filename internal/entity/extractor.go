// Package entity extracts medication, condition, and symptom mentions from
// clinical questions using a curated lexicon (spec.md section 4.3).
package entity

import (
	"sort"
	"strings"

	"clinical-nlq/internal/types"
)

type lexiconEntry struct {
	normalized string
	entityType types.EntityType
	// matchKind drives the confidence tier: exact > stem > abbreviation.
	matchKind string
}

// lexicon maps surface forms (brand names, abbreviations, plain terms) to
// their canonical clinical term.
var lexicon = map[string]lexiconEntry{
	"metformin":             {"metformin", types.EntityMedication, "exact"},
	"glucophage":            {"metformin", types.EntityMedication, "exact"},
	"ibuprofen":             {"ibuprofen", types.EntityMedication, "exact"},
	"advil":                 {"ibuprofen", types.EntityMedication, "exact"},
	"motrin":                {"ibuprofen", types.EntityMedication, "exact"},
	"lisinopril":            {"lisinopril", types.EntityMedication, "exact"},
	"atorvastatin":          {"atorvastatin", types.EntityMedication, "exact"},
	"lipitor":               {"atorvastatin", types.EntityMedication, "exact"},
	"aspirin":               {"aspirin", types.EntityMedication, "exact"},
	"warfarin":              {"warfarin", types.EntityMedication, "exact"},
	"coumadin":              {"warfarin", types.EntityMedication, "exact"},
	"insulin":               {"insulin", types.EntityMedication, "exact"},
	"hypertension":          {"hypertension", types.EntityCondition, "exact"},
	"htn":                   {"hypertension", types.EntityCondition, "abbreviation"},
	"diabetes":              {"diabetes", types.EntityCondition, "exact"},
	"type 2 diabetes":       {"diabetes", types.EntityCondition, "exact"},
	"dm":                    {"diabetes", types.EntityCondition, "abbreviation"},
	"myocardial infarction": {"myocardial infarction", types.EntityCondition, "exact"},
	"mi":                    {"myocardial infarction", types.EntityCondition, "abbreviation"},
	"copd":                  {"chronic obstructive pulmonary disease", types.EntityCondition, "abbreviation"},
	"chest pain":            {"chest pain", types.EntitySymptom, "exact"},
	"shortness of breath":   {"shortness of breath", types.EntitySymptom, "exact"},
	"sob":                   {"shortness of breath", types.EntitySymptom, "abbreviation"},
	"fatigue":               {"fatigue", types.EntitySymptom, "exact"},
	"nausea":                {"nausea", types.EntitySymptom, "exact"},
	"headache":              {"headache", types.EntitySymptom, "exact"},
}

// sortedSurfaceForms longest-first, so multi-word lexicon entries (e.g.
// "type 2 diabetes") are matched before their single-word substrings.
var sortedSurfaceForms = func() []string {
	forms := make([]string, 0, len(lexicon))
	for form := range lexicon {
		forms = append(forms, form)
	}
	sort.Slice(forms, func(i, j int) bool { return len(forms[i]) > len(forms[j]) })
	return forms
}()

func confidenceFor(kind string, matchLen int) float64 {
	var base float64
	switch kind {
	case "exact":
		base = 0.95
	case "stem":
		base = 0.8
	case "abbreviation":
		base = 0.7
	default:
		base = 0.6
	}
	// Confidence is monotone in match length: longer surface forms carry
	// slightly more certainty within their tier.
	bonus := float64(matchLen) * 0.002
	if bonus > 0.04 {
		bonus = 0.04
	}
	return base + bonus
}

// Extract scans text for lexicon hits, longest surface form first so
// overlapping matches don't double-count, and returns the matched entities
// sorted by matched text.
func Extract(text string) []types.Entity {
	normalized := strings.ToLower(text)
	var entities []types.Entity
	consumed := make([]bool, len(normalized))

	for _, form := range sortedSurfaceForms {
		entry := lexicon[form]
		for _, idx := range findAllWordMatches(normalized, form) {
			start, end := idx[0], idx[1]
			if rangeConsumed(consumed, start, end) {
				continue
			}
			markConsumed(consumed, start, end)
			entities = append(entities, types.Entity{
				Text:       text[start:end],
				Type:       entry.entityType,
				Normalized: entry.normalized,
				Confidence: confidenceFor(entry.matchKind, len(form)),
			})
		}
	}

	sort.Slice(entities, func(i, j int) bool { return entities[i].Text < entities[j].Text })
	return entities
}

func rangeConsumed(consumed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if consumed[i] {
			return true
		}
	}
	return false
}

func markConsumed(consumed []bool, start, end int) {
	for i := start; i < end; i++ {
		consumed[i] = true
	}
}

// findAllWordMatches returns [start,end) byte ranges of form in text, only
// at word boundaries.
func findAllWordMatches(text, form string) [][2]int {
	var matches [][2]int
	offset := 0
	for {
		idx := strings.Index(text[offset:], form)
		if idx < 0 {
			break
		}
		start := offset + idx
		end := start + len(form)
		if isWordBoundary(text, start) && isWordBoundary(text, end) {
			matches = append(matches, [2]int{start, end})
		}
		offset = start + 1
	}
	return matches
}

func isWordBoundary(text string, pos int) bool {
	if pos == 0 || pos == len(text) {
		return true
	}
	before := text[pos-1]
	after := text[pos]
	return !isWordChar(before) || !isWordChar(after)
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
