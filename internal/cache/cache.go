// Package cache is the tenant-scoped result cache. Lookups fail open: any
// backend error degrades to a miss so a storage outage never blocks
// execution. Writes propagate their errors to the caller.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/haasonsaas/agui/internal/storage"
	"github.com/haasonsaas/agui/pkg/models"
)

// TTL bounds in hours. Writes clamp into [MinTTLHours, MaxTTLHours];
// a non-positive TTL selects the default.
const (
	DefaultTTLHours = 24
	MinTTLHours     = 1
	MaxTTLHours     = 168
)

// LookupResult is the outcome of a cache probe. Err carries the backend
// failure behind a degraded miss; it is nil on a hit and on a true miss.
type LookupResult struct {
	Hit      bool
	Response *models.Response
	Age      time.Duration
	Err      error
}

// Cache wraps a CacheStore with tenant isolation, TTL enforcement, and hit
// accounting.
type Cache struct {
	store  storage.CacheStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a result cache over the given store.
func New(store storage.CacheStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Lookup probes for a signature. A hit requires an unexpired entry owned
// by the same tenant; every hit increments the hit count and stamps the
// last access time.
func (c *Cache) Lookup(ctx context.Context, sig, userID string) LookupResult {
	entry, err := c.store.Get(ctx, sig)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return LookupResult{}
		}
		c.logger.Warn("cache lookup failed, treating as miss", "signature", sig, "error", err)
		return LookupResult{Err: err}
	}
	now := c.now()
	if entry.UserID != userID || !entry.ExpiresAt.After(now) {
		return LookupResult{}
	}
	if err := c.store.Touch(ctx, sig, now); err != nil {
		c.logger.Warn("cache hit accounting failed", "signature", sig, "error", err)
	}
	return LookupResult{
		Hit:      true,
		Response: entry.Response,
		Age:      now.Sub(entry.CreatedAt),
	}
}

// Write stores a response under the signature, replacing any existing row
// (the hit count resets). ttlHours is clamped into [1,168]; zero or
// negative selects the 24h default.
func (c *Cache) Write(ctx context.Context, sig, userID string, resp *models.Response, ttlHours int) error {
	if ttlHours <= 0 {
		ttlHours = DefaultTTLHours
	}
	if ttlHours < MinTTLHours {
		ttlHours = MinTTLHours
	}
	if ttlHours > MaxTTLHours {
		ttlHours = MaxTTLHours
	}
	now := c.now()
	entry := &models.CacheEntry{
		Signature:      sig,
		UserID:         userID,
		Response:       resp,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(ttlHours) * time.Hour),
		HitCount:       0,
		LastAccessedAt: now,
	}
	return c.store.Put(ctx, entry)
}

// Invalidate removes one entry, tenant-scoped.
func (c *Cache) Invalidate(ctx context.Context, sig, userID string) error {
	return c.store.Delete(ctx, sig, userID)
}

// InvalidateUser removes every entry owned by the tenant.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) (int, error) {
	return c.store.DeleteUser(ctx, userID)
}

// CleanExpired removes rows whose TTL has elapsed.
func (c *Cache) CleanExpired(ctx context.Context) (int, error) {
	return c.store.DeleteExpired(ctx, c.now())
}

// Stats returns the tenant's cache statistics.
func (c *Cache) Stats(ctx context.Context, userID string) (*storage.CacheStats, error) {
	return c.store.Stats(ctx, userID)
}

// HealthCheck probes the backing store.
func (c *Cache) HealthCheck(ctx context.Context) error {
	return c.store.Ping(ctx)
}
