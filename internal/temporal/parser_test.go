package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_LastNMonths(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)
	filter := Parse("Show me visits in the last 3 months", now)
	require.NotNil(t, filter)

	assert.Equal(t, "2024-07-15T00:00:00Z", filter.DateFrom.Format(time.RFC3339))
	assert.Equal(t, 2024, filter.DateTo.Year())
	assert.Equal(t, time.October, filter.DateTo.Month())
	assert.Equal(t, 15, filter.DateTo.Day())
	assert.Equal(t, 23, filter.DateTo.Hour())
	assert.Equal(t, 3, filter.Amount)
}

func TestParse_NoTemporalPhrase(t *testing.T) {
	assert.Nil(t, Parse("What medications is the patient taking?", time.Now()))
}

func TestParse_Yesterday(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	filter := Parse("What happened yesterday?", now)
	require.NotNil(t, filter)
	assert.Equal(t, 9, filter.DateFrom.Day())
	assert.Equal(t, 9, filter.DateTo.Day())
}

func TestParse_SinceMonthAmbiguousYearResolvesToPast(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	filter := Parse("since December", now)
	require.NotNil(t, filter)
	assert.Equal(t, 2023, filter.DateFrom.Year())
	assert.Equal(t, time.December, filter.DateFrom.Month())
}

func TestParseAll_ReturnsEveryMatch(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	filters := ParseAll("yesterday and also between March and May", now)
	assert.GreaterOrEqual(t, len(filters), 2)
}

func TestParseAll_PopulatesTimeReferenceWithMatchedPhrase(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)
	filters := ParseAll("visits in the last 3 months", now)
	require.Len(t, filters, 1)
	assert.Equal(t, "last 3 months", filters[0].TimeReference)
}

func TestParseAll_RepeatedPhraseReturnsAllOccurrences(t *testing.T) {
	now := time.Date(2024, 10, 15, 12, 0, 0, 0, time.UTC)
	filters := ParseAll("compare the last 3 months against the last 6 months", now)
	require.Len(t, filters, 2)
	assert.Equal(t, "last 3 months", filters[0].TimeReference)
	assert.Equal(t, 3, filters[0].Amount)
	assert.Equal(t, "last 6 months", filters[1].TimeReference)
	assert.Equal(t, 6, filters[1].Amount)
}
