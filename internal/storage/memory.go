package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/agui/pkg/models"
)

// memoryDB holds the shared state behind the in-memory stores. The audit
// store consults the policy map for tier-scoped retention, so all stores
// share one instance.
type memoryDB struct {
	mu         sync.RWMutex
	cache      map[string]*models.CacheEntry
	audit      []*models.AuditEvent
	policies   map[string]*models.UserPolicy
	executions map[string]*models.ExecutionRecord
	rateLimits map[string]*models.RateLimitState
}

// NewMemoryStores returns a StoreSet backed by a single in-memory database.
// It backs tests and configurations without Postgres.
func NewMemoryStores() StoreSet {
	db := &memoryDB{
		cache:      make(map[string]*models.CacheEntry),
		policies:   make(map[string]*models.UserPolicy),
		executions: make(map[string]*models.ExecutionRecord),
		rateLimits: make(map[string]*models.RateLimitState),
	}
	return StoreSet{
		Cache:     &memoryCacheStore{db: db},
		Audit:     &memoryAuditStore{db: db},
		Policies:  &memoryPolicyStore{db: db},
		Billing:   &memoryBillingStore{db: db},
		RateLimit: &memoryRateLimitStore{db: db},
	}
}

func cloneEntry(e *models.CacheEntry) *models.CacheEntry {
	if e == nil {
		return nil
	}
	out := *e
	if e.Response != nil {
		raw, err := json.Marshal(e.Response)
		if err == nil {
			var resp models.Response
			if json.Unmarshal(raw, &resp) == nil {
				out.Response = &resp
			}
		}
	}
	return &out
}

type memoryCacheStore struct {
	db *memoryDB
}

func (s *memoryCacheStore) Get(_ context.Context, signature string) (*models.CacheEntry, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	entry, ok := s.db.cache[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (s *memoryCacheStore) Put(_ context.Context, entry *models.CacheEntry) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.cache[entry.Signature] = cloneEntry(entry)
	return nil
}

func (s *memoryCacheStore) Touch(_ context.Context, signature string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	entry, ok := s.db.cache[signature]
	if !ok {
		return ErrNotFound
	}
	entry.HitCount++
	entry.LastAccessedAt = at
	return nil
}

func (s *memoryCacheStore) Delete(_ context.Context, signature, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	entry, ok := s.db.cache[signature]
	if !ok || entry.UserID != userID {
		return ErrNotFound
	}
	delete(s.db.cache, signature)
	return nil
}

func (s *memoryCacheStore) DeleteUser(_ context.Context, userID string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for sig, entry := range s.db.cache {
		if entry.UserID == userID {
			delete(s.db.cache, sig)
			n++
		}
	}
	return n, nil
}

func (s *memoryCacheStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for sig, entry := range s.db.cache {
		if !entry.ExpiresAt.After(now) {
			delete(s.db.cache, sig)
			n++
		}
	}
	return n, nil
}

func (s *memoryCacheStore) Stats(_ context.Context, userID string) (*CacheStats, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	stats := &CacheStats{}
	now := time.Now()
	for _, entry := range s.db.cache {
		if entry.UserID != userID {
			continue
		}
		stats.Entries++
		stats.TotalHits += entry.HitCount
		if !entry.ExpiresAt.After(now) {
			stats.Expired++
		}
	}
	return stats, nil
}

func (s *memoryCacheStore) Ping(context.Context) error { return nil }

type memoryAuditStore struct {
	db *memoryDB
}

func (s *memoryAuditStore) Append(_ context.Context, event *models.AuditEvent) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e := *event
	s.db.audit = append(s.db.audit, &e)
	return nil
}

func (s *memoryAuditStore) ListByCorrelation(_ context.Context, correlationID, userID string) ([]*models.AuditEvent, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []*models.AuditEvent
	for _, e := range s.db.audit {
		if e.CorrelationID != correlationID {
			continue
		}
		if userID != "" && e.UserID != userID {
			continue
		}
		ev := *e
		out = append(out, &ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *memoryAuditStore) DeleteOlderThan(_ context.Context, tier models.Tier, cutoff time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	kept := s.db.audit[:0]
	var removed int64
	for _, e := range s.db.audit {
		userTier := models.TierFree
		if p, ok := s.db.policies[e.UserID]; ok {
			userTier = p.Tier
		}
		if userTier == tier && e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.db.audit = kept
	return removed, nil
}

type memoryPolicyStore struct {
	db *memoryDB
}

func (s *memoryPolicyStore) Get(_ context.Context, userID string) (*models.UserPolicy, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	p, ok := s.db.policies[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	out.Constraints.AllowedTools = append([]string(nil), p.Constraints.AllowedTools...)
	return &out, nil
}

func (s *memoryPolicyStore) Create(_ context.Context, policy *models.UserPolicy) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.policies[policy.UserID]; ok {
		return ErrAlreadyExists
	}
	p := *policy
	p.Constraints.AllowedTools = append([]string(nil), policy.Constraints.AllowedTools...)
	s.db.policies[policy.UserID] = &p
	return nil
}

type memoryBillingStore struct {
	db *memoryDB
}

func (s *memoryBillingStore) UpsertExecution(_ context.Context, rec *models.ExecutionRecord) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r := *rec
	s.db.executions[rec.CorrelationID] = &r
	return nil
}

func (s *memoryBillingStore) GetExecution(_ context.Context, correlationID, userID string) (*models.ExecutionRecord, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	rec, ok := s.db.executions[correlationID]
	if !ok || rec.UserID != userID {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *memoryBillingStore) ListExecutions(_ context.Context, userID string, from, to *time.Time) ([]*models.ExecutionRecord, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	var out []*models.ExecutionRecord
	for _, rec := range s.db.executions {
		if rec.UserID != userID {
			continue
		}
		if from != nil && rec.CompletedAt.Before(*from) {
			continue
		}
		if to != nil && rec.CompletedAt.After(*to) {
			continue
		}
		r := *rec
		out = append(out, &r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out, nil
}

type memoryRateLimitStore struct {
	db *memoryDB
}

func (s *memoryRateLimitStore) Save(_ context.Context, state *models.RateLimitState) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st := *state
	s.db.rateLimits[state.UserID] = &st
	return nil
}

func (s *memoryRateLimitStore) Load(_ context.Context, userID string) (*models.RateLimitState, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	st, ok := s.db.rateLimits[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *st
	return &out, nil
}
