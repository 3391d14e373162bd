package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/agui/internal/storage"
	"github.com/haasonsaas/agui/pkg/models"
)

func TestEventStampsTimestamp(t *testing.T) {
	ctx := context.Background()
	stores := storage.NewMemoryStores()
	fixed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	logger := NewLogger(stores.Audit, nil).WithClock(func() time.Time { return fixed })

	logger.Event(ctx, "corr-1", "user-1", models.PhaseIngestion, "VALIDATION_SUCCESS", nil)

	events, err := logger.Trail(ctx, "corr-1", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if !events[0].Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", events[0].Timestamp, fixed)
	}
}

func TestTrailOrderingAndScoping(t *testing.T) {
	ctx := context.Background()
	stores := storage.NewMemoryStores()
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	logger := NewLogger(stores.Audit, nil).WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})

	logger.Event(ctx, "corr-1", "user-1", models.PhaseIngestion, "FIRST", nil)
	logger.Event(ctx, "corr-1", "user-1", models.PhasePolicy, "SECOND", nil)
	logger.Event(ctx, "corr-1", "user-1", models.PhaseExecution, "THIRD", nil)
	logger.Event(ctx, "corr-2", "user-1", models.PhaseIngestion, "OTHER_RUN", nil)

	events, err := logger.Trail(ctx, "corr-1", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	want := []string{"FIRST", "SECOND", "THIRD"}
	for i, e := range events {
		if e.Event != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, e.Event, want[i])
		}
	}

	// Tenant scoping: a different user sees nothing.
	events, err = logger.Trail(ctx, "corr-1", "user-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("cross-tenant trail = %d events, want 0", len(events))
	}
}

func TestGetSummary(t *testing.T) {
	ctx := context.Background()
	stores := storage.NewMemoryStores()
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	step := 0
	logger := NewLogger(stores.Audit, nil).WithClock(func() time.Time {
		step++
		return now.Add(time.Duration(step) * time.Second)
	})

	logger.Event(ctx, "corr-1", "user-1", models.PhaseIngestion, "A", nil)
	logger.Event(ctx, "corr-1", "user-1", models.PhaseIngestion, "B", nil)
	logger.Event(ctx, "corr-1", "user-1", models.PhasePolicy, "C", nil)

	sum, err := logger.GetSummary(ctx, "corr-1", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalEvents != 3 {
		t.Errorf("TotalEvents = %d, want 3", sum.TotalEvents)
	}
	if len(sum.DistinctPhases) != 2 {
		t.Errorf("DistinctPhases = %v, want 2 entries", sum.DistinctPhases)
	}
	if sum.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", sum.Duration)
	}
}

func TestGetSummaryEmptyTrail(t *testing.T) {
	stores := storage.NewMemoryStores()
	logger := NewLogger(stores.Audit, nil)
	sum, err := logger.GetSummary(context.Background(), "nope", "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalEvents != 0 || len(sum.DistinctPhases) != 0 {
		t.Errorf("empty trail summary = %+v", sum)
	}
}

type failingAuditStore struct {
	storage.AuditStore
}

func (f *failingAuditStore) Append(ctx context.Context, event *models.AuditEvent) error {
	return errors.New("backend down")
}

func TestLogNeverFails(t *testing.T) {
	logger := NewLogger(&failingAuditStore{}, nil)
	// Must not panic or surface the error.
	logger.Event(context.Background(), "corr-1", "user-1", models.PhaseIngestion, "EVENT", nil)
}
