// Package detaillevel maps a query (plus its intent and entity count) to a
// response verbosity level and the guidelines that level implies (spec.md
// section 4.5).
package detaillevel

import (
	"regexp"
	"strings"

	"clinical-nlq/internal/types"
)

var yesNoPattern = regexp.MustCompile(`(?i)^(is|are|was|were|does|did|do|has|have|can|will)\b`)
var singleFactPattern = regexp.MustCompile(`(?i)^(what|when|where|who|which)\b`)
var analysisPattern = regexp.MustCompile(`(?i)\b(compare|explain why|trend|trends|analy[sz]e)\b`)

// defaultByIntent resolves ties when no textual signal dominates.
var defaultByIntent = map[types.Intent]types.DetailLevel{
	types.IntentRetrieveMedications: types.DetailBasic,
	types.IntentRetrieveCarePlans:   types.DetailStandard,
	types.IntentRetrieveNotes:       types.DetailStandard,
	types.IntentRetrieveAll:         types.DetailStandard,
	types.IntentSummary:             types.DetailDetailed,
	types.IntentComparison:          types.DetailComprehensive,
	types.IntentUnknown:             types.DetailStandard,
}

// Guidelines is the set of response-shaping parameters a detail level implies.
type Guidelines struct {
	MaxShortAnswerWords int
	SummaryBullets      int
	MinSources          int
	RequiresReasoning   bool
}

var guidelinesByLevel = map[types.DetailLevel]Guidelines{
	types.DetailMinimal:       {MaxShortAnswerWords: 10, SummaryBullets: 0, MinSources: 1, RequiresReasoning: false},
	types.DetailBasic:         {MaxShortAnswerWords: 25, SummaryBullets: 1, MinSources: 1, RequiresReasoning: false},
	types.DetailStandard:      {MaxShortAnswerWords: 60, SummaryBullets: 3, MinSources: 1, RequiresReasoning: false},
	types.DetailDetailed:      {MaxShortAnswerWords: 120, SummaryBullets: 5, MinSources: 2, RequiresReasoning: true},
	types.DetailComprehensive: {MaxShortAnswerWords: 250, SummaryBullets: 8, MinSources: 3, RequiresReasoning: true},
}

// GuidelinesFor returns the response-shaping guidelines for a level.
func GuidelinesFor(level types.DetailLevel) Guidelines {
	return guidelinesByLevel[level]
}

// Analyze determines the response verbosity level for a query given its
// classified intent and extracted-entity count.
func Analyze(query string, intent types.Intent, entityCount int, multiTime bool) types.DetailLevel {
	trimmed := strings.TrimSpace(query)

	if yesNoPattern.MatchString(trimmed) {
		return types.DetailMinimal
	}
	if analysisPattern.MatchString(trimmed) || entityCount >= 3 || multiTime {
		return types.DetailDetailed
	}
	if singleFactPattern.MatchString(trimmed) {
		return types.DetailBasic
	}

	if level, ok := defaultByIntent[intent]; ok {
		return level
	}
	return types.DetailStandard
}
