package models

import "time"

// Tier is a user's subscription tier. Each tier carries fixed default
// policy constraints.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Valid reports whether the tier is one of the known values.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	}
	return false
}

// RateLimit is a pair of sliding-window request budgets.
type RateLimit struct {
	PerMinute int `json:"perMinute"`
	PerHour   int `json:"perHour"`
}

// PolicyConstraints are the effective execution limits for a user. All
// integer fields are positive. An empty AllowedTools slice means no
// allowlist restriction.
type PolicyConstraints struct {
	MaxRecursionDepth  int       `json:"maxRecursionDepth"`
	ContextWindowLimit int       `json:"contextWindowLimit"`
	MaxToolCalls       int       `json:"maxToolCalls"`
	AllowedTools       []string  `json:"allowedTools"`
	RateLimit          RateLimit `json:"rateLimit"`
}

// ToolAllowed reports whether a tool name passes the allowlist. An empty
// allowlist allows everything.
func (p *PolicyConstraints) ToolAllowed(name string) bool {
	if len(p.AllowedTools) == 0 {
		return true
	}
	for _, t := range p.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}

// UserPolicy is a persisted per-user tier and constraint row.
type UserPolicy struct {
	UserID      string            `json:"userId"`
	Tier        Tier              `json:"tier"`
	Constraints PolicyConstraints `json:"constraints"`
}

// RateLimitState is the per-user window state kept in memory and optionally
// mirrored to the store.
type RateLimitState struct {
	UserID           string    `json:"userId"`
	MinuteCount      int       `json:"minuteCount"`
	MinuteWindowStart time.Time `json:"minuteWindowStart"`
	HourCount        int       `json:"hourCount"`
	HourWindowStart  time.Time `json:"hourWindowStart"`
	LastUpdated      time.Time `json:"lastUpdated"`
}
