package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/agui/internal/storage"
	"github.com/haasonsaas/agui/pkg/models"
)

// DefaultRetention maps tiers to their audit retention in days.
var DefaultRetention = map[models.Tier]int{
	models.TierFree:       7,
	models.TierPro:        30,
	models.TierEnterprise: 90,
}

// RetentionSweeper periodically deletes audit events older than each
// tier's retention window. It is owned by the engine lifecycle: started on
// initialization, stopped on shutdown.
type RetentionSweeper struct {
	store     storage.AuditStore
	retention map[models.Tier]int
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewRetentionSweeper creates a sweeper. A nil retention map uses the tier
// defaults; interval defaults to one hour.
func NewRetentionSweeper(store storage.AuditStore, retention map[models.Tier]int, interval time.Duration, logger *slog.Logger) *RetentionSweeper {
	if retention == nil {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RetentionSweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *RetentionSweeper) Start() {
	go s.run()
}

// Close stops the loop and waits for it to exit.
func (s *RetentionSweeper) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *RetentionSweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep deletes expired events for every tier once.
func (s *RetentionSweeper) Sweep(ctx context.Context) {
	now := s.now().UTC()
	for tier, days := range s.retention {
		if days <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -days)
		removed, err := s.store.DeleteOlderThan(ctx, tier, cutoff)
		if err != nil {
			s.logger.Warn("audit retention sweep failed", "tier", tier, "error", err)
			continue
		}
		if removed > 0 {
			s.logger.Debug("audit retention sweep", "tier", tier, "removed", removed)
		}
	}
}
