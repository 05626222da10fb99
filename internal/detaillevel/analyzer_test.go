package detaillevel

import (
	"testing"

	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestAnalyze_YesNoIsMinimal(t *testing.T) {
	assert.Equal(t, types.DetailMinimal, Analyze("Is the patient on insulin?", types.IntentRetrieveMedications, 1, false))
}

func TestAnalyze_SingleFactIsBasic(t *testing.T) {
	assert.Equal(t, types.DetailBasic, Analyze("What is the dosage of ibuprofen?", types.IntentRetrieveMedications, 1, false))
}

func TestAnalyze_ComparisonIsDetailed(t *testing.T) {
	assert.Equal(t, types.DetailDetailed, Analyze("Compare blood pressure over time", types.IntentComparison, 1, false))
}

func TestAnalyze_MultiEntityEscalates(t *testing.T) {
	assert.Equal(t, types.DetailDetailed, Analyze("Tell me about it", types.IntentRetrieveAll, 3, false))
}

func TestAnalyze_FallsBackToIntentDefault(t *testing.T) {
	assert.Equal(t, types.DetailComprehensive, Analyze("it", types.IntentComparison, 0, false))
}

func TestGuidelinesFor_Monotone(t *testing.T) {
	minimal := GuidelinesFor(types.DetailMinimal)
	comprehensive := GuidelinesFor(types.DetailComprehensive)
	assert.Less(t, minimal.MaxShortAnswerWords, comprehensive.MaxShortAnswerWords)
	assert.False(t, minimal.RequiresReasoning)
	assert.True(t, comprehensive.RequiresReasoning)
}
