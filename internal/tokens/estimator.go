// Package tokens approximates token counts from character counts. The
// engine budgets context windows with a fixed chars-per-token ratio and a
// safety margin rather than a model-specific tokenizer.
package tokens

import (
	"strings"
	"unicode/utf8"
)

const (
	// CharsPerToken is the approximation ratio; len is counted in codepoints.
	CharsPerToken = 4

	// SafetyMargin shrinks the configured limit before validation so
	// estimation error does not overrun the real window.
	SafetyMargin = 0.9

	// Separator joins multiple texts before estimation.
	Separator = "\n\n"
)

// Estimate returns ceil(codepoints/CharsPerToken).
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EffectiveLimit returns floor(limit * SafetyMargin).
func EffectiveLimit(limit int) int {
	return int(float64(limit) * SafetyMargin)
}

// Validation reports the outcome of a context-window check.
type Validation struct {
	OK        bool
	Estimated int
	Limit     int
	Effective int
}

// ValidateText checks a single text against the effective limit.
func ValidateText(text string, limit int) Validation {
	est := Estimate(text)
	eff := EffectiveLimit(limit)
	return Validation{OK: est <= eff, Estimated: est, Limit: limit, Effective: eff}
}

// ValidateTexts joins the texts with Separator and validates the result.
func ValidateTexts(texts []string, limit int) Validation {
	return ValidateText(strings.Join(texts, Separator), limit)
}

// Remaining returns the effective tokens left after the given text, never
// negative.
func Remaining(text string, limit int) int {
	left := EffectiveLimit(limit) - Estimate(text)
	if left < 0 {
		return 0
	}
	return left
}

// CanAdd reports whether appending addition to current stays within the
// effective limit.
func CanAdd(current, addition string, limit int) bool {
	return ValidateText(current+Separator+addition, limit).OK
}
