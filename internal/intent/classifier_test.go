package intent

import (
	"testing"

	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestClassify_Medications(t *testing.T) {
	result := Classify("What medications is the patient taking?")
	assert.Equal(t, types.IntentRetrieveMedications, result.Intent)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestClassify_EmptyQueryIsUnknown(t *testing.T) {
	result := Classify("   ")
	assert.Equal(t, types.IntentUnknown, result.Intent)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestClassify_NoiseFallsBackToRetrieveAll(t *testing.T) {
	result := Classify("hello there how are you today")
	assert.Equal(t, types.IntentRetrieveAll, result.Intent)
}

func TestClassify_Comparison(t *testing.T) {
	result := Classify("Compare the patient's blood pressure trends over time")
	assert.Equal(t, types.IntentComparison, result.Intent)
}
