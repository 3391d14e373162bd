package backoff

import (
	"context"
	"testing"
	"time"
)

func TestComputeDoublesPerAttempt(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := Compute(p, tt.attempt); got != tt.want {
			t.Errorf("Compute(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestComputeCapsAtMax(t *testing.T) {
	p := DefaultPolicy()
	if got := Compute(p, 10); got != p.Max {
		t.Errorf("Compute(attempt=10) = %v, want cap %v", got, p.Max)
	}
}

func TestComputeNonPositiveAttempt(t *testing.T) {
	p := DefaultPolicy()
	if got := Compute(p, 0); got != p.Initial {
		t.Errorf("Compute(attempt=0) = %v, want %v", got, p.Initial)
	}
}

func TestComputeCustomFactor(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Minute, Factor: 3}
	if got := Compute(p, 3); got != 900*time.Millisecond {
		t.Errorf("Compute(factor=3, attempt=3) = %v, want 900ms", got)
	}
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Minute); err == nil {
		t.Fatal("Sleep with a cancelled context must return an error")
	}
}

func TestSleepCompletes(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("Sleep returned early")
	}
}
