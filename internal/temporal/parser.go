// Package temporal extracts date ranges from natural-language clinical
// questions (spec.md section 4.1).
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"clinical-nlq/internal/types"
)

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var relativePattern = regexp.MustCompile(`(?i)(?:last|past)\s+(\d+)\s+(day|days|week|weeks|month|months|year|years)`)
var sincePattern = regexp.MustCompile(`(?i)since\s+([a-z]+)(?:\s+(\d{1,2}))?(?:,?\s+(\d{4}))?`)
var betweenPattern = regexp.MustCompile(`(?i)between\s+([a-z]+)\s+and\s+([a-z]+)`)
var yesterdayPattern = regexp.MustCompile(`(?i)\byesterday\b`)
var todayPattern = regexp.MustCompile(`(?i)\btoday\b`)

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999000000, time.UTC)
}

func unitToRelative(unit string) types.RelativeUnit {
	switch {
	case strings.HasPrefix(unit, "day"):
		return types.RelativeDays
	case strings.HasPrefix(unit, "week"):
		return types.RelativeWeeks
	case strings.HasPrefix(unit, "month"):
		return types.RelativeMonths
	case strings.HasPrefix(unit, "year"):
		return types.RelativeYears
	default:
		return types.RelativeDays
	}
}

func durationFor(unit types.RelativeUnit, amount int, from time.Time) time.Time {
	switch unit {
	case types.RelativeDays:
		return from.AddDate(0, 0, -amount)
	case types.RelativeWeeks:
		return from.AddDate(0, 0, -amount*7)
	case types.RelativeMonths:
		return from.AddDate(0, -amount, 0)
	case types.RelativeYears:
		return from.AddDate(-amount, 0, 0)
	default:
		return from
	}
}

// Parse returns the first temporal phrase found in text, resolved relative
// to now, or nil when none is present.
func Parse(text string, now time.Time) *types.TemporalFilter {
	all := ParseAll(text, now)
	if len(all) == 0 {
		return nil
	}
	return &all[0]
}

// ParseAll returns every temporal phrase found in text, in order of
// appearance within each phrase shape (relative, since, between, yesterday,
// today); a shape repeated in the query (e.g. two "last N months" phrases)
// yields one TemporalFilter per occurrence, not just the first.
func ParseAll(text string, now time.Time) []types.TemporalFilter {
	var filters []types.TemporalFilter

	for _, m := range relativePattern.FindAllStringSubmatch(text, -1) {
		amount, _ := strconv.Atoi(m[1])
		unit := unitToRelative(strings.ToLower(m[2]))
		from := durationFor(unit, amount, now)
		filters = append(filters, types.TemporalFilter{
			DateFrom:      startOfDay(from),
			DateTo:        endOfDay(now),
			TimeReference: m[0],
			RelativeType:  unit,
			Amount:        amount,
		})
	}

	for _, m := range sincePattern.FindAllStringSubmatch(text, -1) {
		month, ok := monthNames[strings.ToLower(m[1])]
		if !ok {
			continue
		}
		year := now.Year()
		day := 1
		if m[2] != "" {
			if d, err := strconv.Atoi(m[2]); err == nil {
				day = d
			}
		}
		if m[3] != "" {
			if y, err := strconv.Atoi(m[3]); err == nil {
				year = y
			}
		}
		from := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if m[3] == "" && from.After(now) {
			from = from.AddDate(-1, 0, 0)
		}
		filters = append(filters, types.TemporalFilter{
			DateFrom:      startOfDay(from),
			DateTo:        endOfDay(now),
			TimeReference: m[0],
		})
	}

	for _, m := range betweenPattern.FindAllStringSubmatch(text, -1) {
		startMonth, okStart := monthNames[strings.ToLower(m[1])]
		endMonth, okEnd := monthNames[strings.ToLower(m[2])]
		if !okStart || !okEnd {
			continue
		}
		year := now.Year()
		from := time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
		if from.After(now) {
			year--
			from = time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC)
		}
		to := time.Date(year, endMonth, 1, 0, 0, 0, 0, time.UTC)
		to = time.Date(to.Year(), to.Month()+1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
		filters = append(filters, types.TemporalFilter{
			DateFrom:      startOfDay(from),
			DateTo:        endOfDay(to),
			TimeReference: m[0],
		})
	}

	for _, m := range yesterdayPattern.FindAllString(text, -1) {
		yesterday := now.AddDate(0, 0, -1)
		filters = append(filters, types.TemporalFilter{
			DateFrom:      startOfDay(yesterday),
			DateTo:        endOfDay(yesterday),
			TimeReference: m,
		})
	}

	for _, m := range todayPattern.FindAllString(text, -1) {
		filters = append(filters, types.TemporalFilter{
			DateFrom:      startOfDay(now),
			DateTo:        endOfDay(now),
			TimeReference: m,
		})
	}

	return filters
}
