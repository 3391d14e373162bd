// Package policy owns per-user execution constraints: tier defaults, the
// policy store, and the enforcer that composes recursion, context, rate,
// and tool checks into a single allow/deny decision.
package policy

import "github.com/haasonsaas/agui/pkg/models"

// DefaultTier is assigned to users without a policy row.
const DefaultTier = models.TierFree

// DefaultConstraints returns the fixed default policy for a tier. Unknown
// tiers fall back to free.
func DefaultConstraints(tier models.Tier) models.PolicyConstraints {
	switch tier {
	case models.TierPro:
		return models.PolicyConstraints{
			MaxRecursionDepth:  10,
			ContextWindowLimit: 16000,
			MaxToolCalls:       25,
			RateLimit:          models.RateLimit{PerMinute: 30, PerHour: 500},
		}
	case models.TierEnterprise:
		return models.PolicyConstraints{
			MaxRecursionDepth:  20,
			ContextWindowLimit: 128000,
			MaxToolCalls:       100,
			RateLimit:          models.RateLimit{PerMinute: 100, PerHour: 2000},
		}
	default:
		return models.PolicyConstraints{
			MaxRecursionDepth:  5,
			ContextWindowLimit: 8000,
			MaxToolCalls:       10,
			RateLimit:          models.RateLimit{PerMinute: 10, PerHour: 100},
		}
	}
}

// DefaultPolicy builds a full policy row for a user at the given tier.
func DefaultPolicy(userID string, tier models.Tier) *models.UserPolicy {
	if !tier.Valid() {
		tier = DefaultTier
	}
	return &models.UserPolicy{
		UserID:      userID,
		Tier:        tier,
		Constraints: DefaultConstraints(tier),
	}
}
