// Package audit provides the append-only execution trail. Logging never
// fails the request: backend errors are written to the process log and
// swallowed so the pipeline continues.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/agui/internal/storage"
	"github.com/haasonsaas/agui/pkg/models"
)

// Logger appends audit events keyed by correlation id.
type Logger struct {
	store  storage.AuditStore
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger creates an audit logger over the given store.
func NewLogger(store storage.AuditStore, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Logger{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// Log appends an event. It never returns an error; failures are logged to
// the process log and dropped.
func (l *Logger) Log(ctx context.Context, event *models.AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if err := l.store.Append(ctx, event); err != nil {
		l.logger.Error("audit append failed",
			"correlation_id", event.CorrelationID,
			"event", event.Event,
			"error", err,
		)
	}
}

// Event is the convenience form used throughout the phases.
func (l *Logger) Event(ctx context.Context, correlationID, userID, phase, event string, details map[string]any) {
	l.Log(ctx, &models.AuditEvent{
		CorrelationID: correlationID,
		UserID:        userID,
		Phase:         phase,
		Event:         event,
		Details:       details,
	})
}

// Trail returns the events for a correlation id in ascending timestamp
// order, scoped to the tenant when userID is non-empty.
func (l *Logger) Trail(ctx context.Context, correlationID, userID string) ([]*models.AuditEvent, error) {
	return l.store.ListByCorrelation(ctx, correlationID, userID)
}

// Summary aggregates a correlation id's trail.
type Summary struct {
	TotalEvents    int           `json:"totalEvents"`
	DistinctPhases []string      `json:"distinctPhases"`
	FirstTimestamp time.Time     `json:"firstTimestamp"`
	LastTimestamp  time.Time     `json:"lastTimestamp"`
	Duration       time.Duration `json:"duration"`
}

// GetSummary computes the summary for a correlation id.
func (l *Logger) GetSummary(ctx context.Context, correlationID, userID string) (*Summary, error) {
	events, err := l.store.ListByCorrelation(ctx, correlationID, userID)
	if err != nil {
		return nil, err
	}
	summary := &Summary{TotalEvents: len(events)}
	if len(events) == 0 {
		return summary, nil
	}
	seen := map[string]bool{}
	for _, e := range events {
		if !seen[e.Phase] {
			seen[e.Phase] = true
			summary.DistinctPhases = append(summary.DistinctPhases, e.Phase)
		}
	}
	summary.FirstTimestamp = events[0].Timestamp
	summary.LastTimestamp = events[len(events)-1].Timestamp
	summary.Duration = summary.LastTimestamp.Sub(summary.FirstTimestamp)
	return summary, nil
}
