// Package ratelimit enforces per-user request budgets over two fixed-width
// tumbling windows (one minute and one hour). Counters live in a concurrent
// in-memory map; state is optionally mirrored to the store best-effort, and
// every internal failure fails open so availability wins over strictness.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/agui/internal/storage"
	"github.com/haasonsaas/agui/pkg/models"
)

const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
)

// Config tunes the limiter's background behavior.
type Config struct {
	// MemoryTTL evicts entries untouched for this long. Default 1h.
	MemoryTTL time.Duration
	// CleanupInterval is the sweeper period. Default 10m.
	CleanupInterval time.Duration
}

// DefaultConfig returns the standard limiter configuration.
func DefaultConfig() Config {
	return Config{
		MemoryTTL:       time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Decision is the outcome of a rate check.
type Decision struct {
	Allowed         bool
	Reason          string
	Window          string
	RetryAfter      time.Duration
	MinuteRemaining int
	HourRemaining   int
}

type entry struct {
	mu    sync.Mutex
	state models.RateLimitState
}

// Limiter keeps per-user window counters. The map-level lock is held only
// to find or create an entry; check-then-mutate happens under the entry
// lock so it is atomic per user.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	config Config
	store  storage.RateLimitStore
	logger *slog.Logger
	now    func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewLimiter creates a limiter. store may be nil to disable persistence.
func NewLimiter(config Config, store storage.RateLimitStore, logger *slog.Logger) *Limiter {
	if config.MemoryTTL <= 0 {
		config.MemoryTTL = DefaultConfig().MemoryTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Limiter{
		entries: make(map[string]*entry),
		config:  config,
		store:   store,
		logger:  logger,
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// WithClock overrides the time source, for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Start launches the background sweeper.
func (l *Limiter) Start() {
	go l.run()
}

// Close stops the sweeper and waits for it to exit.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

func (l *Limiter) run() {
	defer close(l.done)
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Sweep(l.now())
		}
	}
}

// Sweep removes entries untouched longer than MemoryTTL and returns how
// many were evicted.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for userID, e := range l.entries {
		e.mu.Lock()
		stale := now.Sub(e.state.LastUpdated) > l.config.MemoryTTL
		e.mu.Unlock()
		if stale {
			delete(l.entries, userID)
			n++
		}
	}
	return n
}

// Check evaluates both windows against the limit without consuming budget.
// Window resets happen lazily here: a window older than its width restarts
// at zero. Internal errors fail open.
func (l *Limiter) Check(ctx context.Context, userID string, limit models.RateLimit) Decision {
	e := l.load(ctx, userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()
	resetWindows(&e.state, now)

	if limit.PerMinute > 0 && e.state.MinuteCount >= limit.PerMinute {
		retry := e.state.MinuteWindowStart.Add(MinuteWindow).Sub(now)
		return Decision{
			Allowed:    false,
			Window:     "minute",
			Reason:     fmt.Sprintf("rate limit exceeded: %d requests per minute", limit.PerMinute),
			RetryAfter: retry,
		}
	}
	if limit.PerHour > 0 && e.state.HourCount >= limit.PerHour {
		retry := e.state.HourWindowStart.Add(HourWindow).Sub(now)
		return Decision{
			Allowed:    false,
			Window:     "hour",
			Reason:     fmt.Sprintf("rate limit exceeded: %d requests per hour", limit.PerHour),
			RetryAfter: retry,
		}
	}
	return Decision{
		Allowed:         true,
		MinuteRemaining: limit.PerMinute - e.state.MinuteCount,
		HourRemaining:   limit.PerHour - e.state.HourCount,
	}
}

// Increment consumes one unit from both windows and mirrors the state to
// the store best-effort.
func (l *Limiter) Increment(ctx context.Context, userID string) {
	e := l.load(ctx, userID)
	e.mu.Lock()
	now := l.now()
	resetWindows(&e.state, now)
	e.state.MinuteCount++
	e.state.HourCount++
	e.state.LastUpdated = now
	snapshot := e.state
	e.mu.Unlock()

	if l.store != nil {
		if err := l.store.Save(ctx, &snapshot); err != nil {
			l.logger.Warn("rate limit state persist failed", "user_id", userID, "error", err)
		}
	}
}

// State returns a copy of the user's current window state.
func (l *Limiter) State(ctx context.Context, userID string) models.RateLimitState {
	e := l.load(ctx, userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (l *Limiter) load(ctx context.Context, userID string) *entry {
	l.mu.Lock()
	e, ok := l.entries[userID]
	if ok {
		l.mu.Unlock()
		return e
	}
	e = &entry{state: l.freshState(userID)}
	l.entries[userID] = e
	l.mu.Unlock()

	// First sighting: hydrate from the store if a mirror exists. Load
	// failures fall through to the fresh state.
	if l.store != nil {
		if persisted, err := l.store.Load(ctx, userID); err == nil && persisted != nil {
			e.mu.Lock()
			e.state = *persisted
			e.mu.Unlock()
		} else if err != nil && err != storage.ErrNotFound {
			l.logger.Warn("rate limit state load failed", "user_id", userID, "error", err)
		}
	}
	return e
}

func (l *Limiter) freshState(userID string) models.RateLimitState {
	now := l.now()
	return models.RateLimitState{
		UserID:            userID,
		MinuteWindowStart: now,
		HourWindowStart:   now,
		LastUpdated:       now,
	}
}

// resetWindows restarts any window whose start is at least one width old.
func resetWindows(state *models.RateLimitState, now time.Time) {
	if now.Sub(state.MinuteWindowStart) >= MinuteWindow {
		state.MinuteCount = 0
		state.MinuteWindowStart = now
	}
	if now.Sub(state.HourWindowStart) >= HourWindow {
		state.HourCount = 0
		state.HourWindowStart = now
	}
}
