package activity

import (
	"regexp"
	"strconv"
	"strings"
)

// UnknownAge is returned for tokens that cannot be interpreted and when a
// render carries no time tokens at all. It never triggers a stop.
const UnknownAge = 999999

// MaxKnownAge caps recognised ages so a very old post never reads as unknown.
const MaxKnownAge = UnknownAge - 1

// DefaultInactivityMinutes is the inactivity threshold after which a watcher stops.
const DefaultInactivityMinutes = 10

const (
	minutesPerHour = 60
	minutesPerDay  = 1440
	minutesPerWeek = 7 * minutesPerDay
)

var relativePattern = regexp.MustCompile(`(?i)^(\d+)\s*(m|min|mins|minute|minutes|h|hr|hrs|hour|hours|d|day|days|w|wk|wks|week|weeks)\b(?:\s+ago)?$`)

// AgeMinutes normalises one rendered relative-time token to minutes.
// "Just now" is 0, "Yesterday" is 1440, "<n><unit>" is scaled by unit.
// Absolute dates and anything else map to UnknownAge. Recognised ages are
// capped at MaxKnownAge.
func AgeMinutes(token string) int {
	t := strings.ToLower(strings.TrimSpace(token))
	switch t {
	case "":
		return UnknownAge
	case "just now", "now":
		return 0
	case "yesterday":
		return minutesPerDay
	}

	m := relativePattern.FindStringSubmatch(t)
	if m == nil {
		return UnknownAge
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return UnknownAge
	}
	unit := 1
	switch m[2][0] {
	case 'h':
		unit = minutesPerHour
	case 'd':
		unit = minutesPerDay
	case 'w':
		unit = minutesPerWeek
	}
	if n > MaxKnownAge/unit {
		return MaxKnownAge
	}
	return n * unit
}

// MinimumAgeMinutes returns the age of the most recent visible activity.
// PRE: tokens are the relative-time strings of the current render
// POST: returns UnknownAge when no token is recognisable
func MinimumAgeMinutes(tokens []string) int {
	minAge := UnknownAge
	for _, tok := range tokens {
		if age := AgeMinutes(tok); age < minAge {
			minAge = age
		}
	}
	return minAge
}

// ShouldStop reports whether a post has gone quiet.
// INVARIANT: UnknownAge never stops a watcher; it usually means extraction failed.
func ShouldStop(minAge, thresholdMinutes int) bool {
	if minAge == UnknownAge {
		return false
	}
	return minAge > thresholdMinutes
}
