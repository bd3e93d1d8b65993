package core

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// clamp01 bounds a value to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampSigned bounds a value to [-1, 1].
func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// round3 rounds to 3 decimal places for the serialization contract.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// isoTime formats a timestamp per the serialization contract.
func isoTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseISOTime is the inverse of isoTime. Returns the zero time on failure.
func parseISOTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Fold lowercases text using Unicode case folding, for caseless matching
// of queries, topics, and metadata.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// foldWords splits text into case-folded words.
func foldWords(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r < 0x80
	})
}

// hoursBetween returns the non-negative number of hours from earlier to later.
func hoursBetween(earlier, later time.Time) float64 {
	h := later.Sub(earlier).Hours()
	if h < 0 {
		return 0
	}
	return h
}
