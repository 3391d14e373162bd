// Package backoff provides exponential backoff computation and
// context-aware sleeping for the resilient model client.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) added to the delay.
	Jitter float64
}

// DefaultPolicy matches the engine's retry contract: 1s initial delay
// doubling per attempt, no jitter, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		Initial: time.Second,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0,
	}
}

// Compute returns the delay for a given attempt number. Attempts start at 1;
// attempt 1 yields the initial delay.
func Compute(policy Policy, attempt int) time.Duration {
	return ComputeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeWithRand computes the delay using a provided random value in
// [0.0, 1.0), for deterministic tests.
func ComputeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(policy.Initial) * math.Pow(policy.Factor, exp)
	jitter := base * policy.Jitter * randomValue
	total := base + jitter
	if max := float64(policy.Max); policy.Max > 0 && total > max {
		total = max
	}
	return time.Duration(total)
}

// Sleep waits for the duration, respecting context cancellation. Returns
// nil when the sleep completed, ctx.Err() otherwise.
func Sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
