// Package storage defines the persistence interfaces for the execution
// engine and provides in-memory and Postgres-backed implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/agui/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// CacheStats summarizes a tenant's slice of the result cache.
type CacheStats struct {
	Entries   int `json:"entries"`
	TotalHits int `json:"totalHits"`
	Expired   int `json:"expired"`
}

// CacheStore persists result-cache rows, unique by intent signature.
type CacheStore interface {
	// Get returns the row for a signature regardless of expiry; tenant and
	// TTL checks belong to the cache layer.
	Get(ctx context.Context, signature string) (*models.CacheEntry, error)
	// Put upserts a row, replacing any existing row for the signature.
	Put(ctx context.Context, entry *models.CacheEntry) error
	// Touch increments the hit count and stamps the last access time.
	Touch(ctx context.Context, signature string, at time.Time) error
	Delete(ctx context.Context, signature, userID string) error
	DeleteUser(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Stats(ctx context.Context, userID string) (*CacheStats, error)
	Ping(ctx context.Context) error
}

// AuditStore persists the append-only audit trail.
type AuditStore interface {
	Append(ctx context.Context, event *models.AuditEvent) error
	// ListByCorrelation returns events for a correlation id ordered by
	// ascending timestamp, scoped to the tenant when userID is non-empty.
	ListByCorrelation(ctx context.Context, correlationID, userID string) ([]*models.AuditEvent, error)
	// DeleteOlderThan removes events older than cutoff for users of the
	// given tier.
	DeleteOlderThan(ctx context.Context, tier models.Tier, cutoff time.Time) (int64, error)
}

// PolicyStore persists per-user tier and constraint rows.
type PolicyStore interface {
	Get(ctx context.Context, userID string) (*models.UserPolicy, error)
	// Create inserts a policy row; ErrAlreadyExists when the user already
	// has one.
	Create(ctx context.Context, policy *models.UserPolicy) error
}

// BillingStore persists execution metadata, upserted by correlation id.
type BillingStore interface {
	UpsertExecution(ctx context.Context, rec *models.ExecutionRecord) error
	GetExecution(ctx context.Context, correlationID, userID string) (*models.ExecutionRecord, error)
	ListExecutions(ctx context.Context, userID string, from, to *time.Time) ([]*models.ExecutionRecord, error)
}

// RateLimitStore mirrors rate-limit window state, best-effort.
type RateLimitStore interface {
	Save(ctx context.Context, state *models.RateLimitState) error
	Load(ctx context.Context, userID string) (*models.RateLimitState, error)
}

// StoreSet groups the storage dependencies of the engine.
type StoreSet struct {
	Cache     CacheStore
	Audit     AuditStore
	Policies  PolicyStore
	Billing   BillingStore
	RateLimit RateLimitStore

	closer func() error
}

// Close releases any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
