package tokens

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"exact boundary", "abcd", 1},
		{"one over", "abcde", 2},
		{"eight chars", "abcdefgh", 2},
		{"multibyte counts runes", "日本語あ", 1},
		{"forty thousand chars", strings.Repeat("x", 40000), 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q…) = %d, want %d", firstN(tt.text, 8), got, tt.want)
			}
		})
	}
}

func TestEffectiveLimit(t *testing.T) {
	tests := []struct {
		limit int
		want  int
	}{
		{8000, 7200},
		{10000, 9000},
		{100, 90},
		{101, 90}, // floor, not round
		{128000, 115200},
	}
	for _, tt := range tests {
		if got := EffectiveLimit(tt.limit); got != tt.want {
			t.Errorf("EffectiveLimit(%d) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}

func TestValidateTextBoundary(t *testing.T) {
	// limit 1000 ⇒ effective 900 ⇒ at most 3600 chars pass.
	limit := 1000

	ok := ValidateText(strings.Repeat("x", 3600), limit)
	if !ok.OK {
		t.Errorf("3600 chars should pass: estimated %d, effective %d", ok.Estimated, ok.Effective)
	}
	over := ValidateText(strings.Repeat("x", 3601), limit)
	if over.OK {
		t.Error("3601 chars should fail the effective limit")
	}
	if over.Estimated != 901 || over.Effective != 900 || over.Limit != 1000 {
		t.Errorf("unexpected validation figures: %+v", over)
	}
}

func TestValidateTextsJoinsWithSeparator(t *testing.T) {
	// Two 1798-char texts plus the two-char separator: 3598 chars = 900 tokens.
	a := strings.Repeat("x", 1798)
	b := strings.Repeat("y", 1798)
	v := ValidateTexts([]string{a, b}, 1000)
	if v.Estimated != 900 {
		t.Errorf("estimated %d, want 900 (separator must count)", v.Estimated)
	}
	if !v.OK {
		t.Error("exactly the effective limit should pass")
	}
}

func TestRemaining(t *testing.T) {
	if got := Remaining(strings.Repeat("x", 400), 1000); got != 800 {
		t.Errorf("Remaining = %d, want 800", got)
	}
	if got := Remaining(strings.Repeat("x", 10000), 1000); got != 0 {
		t.Errorf("Remaining past the limit = %d, want 0", got)
	}
}

func TestCanAdd(t *testing.T) {
	current := strings.Repeat("x", 1600)
	if !CanAdd(current, strings.Repeat("y", 1600), 1000) {
		t.Error("addition within the effective limit should be allowed")
	}
	if CanAdd(current, strings.Repeat("y", 2400), 1000) {
		t.Error("addition past the effective limit should be rejected")
	}
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
