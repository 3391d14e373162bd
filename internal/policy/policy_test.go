package policy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/agui/internal/ratelimit"
	"github.com/haasonsaas/agui/internal/storage"
	"github.com/haasonsaas/agui/pkg/models"
)

func TestDefaultConstraintsPerTier(t *testing.T) {
	tests := []struct {
		tier      models.Tier
		depth     int
		window    int
		toolCalls int
		perMinute int
		perHour   int
	}{
		{models.TierFree, 5, 8000, 10, 10, 100},
		{models.TierPro, 10, 16000, 25, 30, 500},
		{models.TierEnterprise, 20, 128000, 100, 100, 2000},
		{models.Tier("bogus"), 5, 8000, 10, 10, 100},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			c := DefaultConstraints(tt.tier)
			if c.MaxRecursionDepth != tt.depth {
				t.Errorf("depth = %d, want %d", c.MaxRecursionDepth, tt.depth)
			}
			if c.ContextWindowLimit != tt.window {
				t.Errorf("window = %d, want %d", c.ContextWindowLimit, tt.window)
			}
			if c.MaxToolCalls != tt.toolCalls {
				t.Errorf("toolCalls = %d, want %d", c.MaxToolCalls, tt.toolCalls)
			}
			if c.RateLimit.PerMinute != tt.perMinute || c.RateLimit.PerHour != tt.perHour {
				t.Errorf("rate = %d/%d, want %d/%d", c.RateLimit.PerMinute, c.RateLimit.PerHour, tt.perMinute, tt.perHour)
			}
		})
	}
}

func TestGetOrCreateCreatesFreeDefault(t *testing.T) {
	ctx := context.Background()
	stores := storage.NewMemoryStores()
	s := NewStore(stores.Policies, nil)

	p, err := s.GetOrCreate(ctx, "new-user")
	if err != nil {
		t.Fatal(err)
	}
	if p.Tier != models.TierFree {
		t.Errorf("tier = %s, want free", p.Tier)
	}

	// The row is persisted: a direct read succeeds.
	stored, err := stores.Policies.Get(ctx, "new-user")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Constraints.MaxRecursionDepth != 5 {
		t.Errorf("persisted depth = %d, want 5", stored.Constraints.MaxRecursionDepth)
	}
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	ctx := context.Background()
	stores := storage.NewMemoryStores()
	existing := DefaultPolicy("user-1", models.TierPro)
	if err := stores.Policies.Create(ctx, existing); err != nil {
		t.Fatal(err)
	}

	s := NewStore(stores.Policies, nil)
	p, err := s.GetOrCreate(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Tier != models.TierPro {
		t.Errorf("tier = %s, want pro", p.Tier)
	}
}

type brokenPolicyStore struct{}

func (brokenPolicyStore) Get(context.Context, string) (*models.UserPolicy, error) {
	return nil, errors.New("backend down")
}
func (brokenPolicyStore) Create(context.Context, *models.UserPolicy) error {
	return errors.New("backend down")
}

func TestGetOrCreateFallsBackOnReadError(t *testing.T) {
	s := NewStore(brokenPolicyStore{}, nil)
	p, err := s.GetOrCreate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("read errors must degrade to free defaults, got %v", err)
	}
	if p.Tier != models.TierFree {
		t.Errorf("tier = %s, want free", p.Tier)
	}
}

func newEnforcer() *Enforcer {
	return NewEnforcer(ratelimit.NewLimiter(ratelimit.DefaultConfig(), nil, nil))
}

func freeJob() *models.RunJob {
	return &models.RunJob{
		UserID:             "user-1",
		Prompt:             "hello",
		CorrelationID:      "11111111-1111-4111-8111-111111111111",
		MaxDepth:           5,
		ContextWindowLimit: 8000,
	}
}

func TestEnforcerAllowsCleanJob(t *testing.T) {
	res := newEnforcer().Check(context.Background(), freeJob(), DefaultConstraints(models.TierFree))
	if !res.Allowed {
		t.Fatalf("clean job denied: %s", res.Reason)
	}
}

func TestEnforcerRecursionBoundary(t *testing.T) {
	e := newEnforcer()
	constraints := DefaultConstraints(models.TierFree)

	job := freeJob()
	job.CurrentDepth = 4
	if res := e.Check(context.Background(), job, constraints); !res.Allowed {
		t.Errorf("depth 4 of 5 should pass: %s", res.Reason)
	}

	job.CurrentDepth = 5
	res := e.Check(context.Background(), job, constraints)
	if res.Allowed {
		t.Fatal("depth 5 of 5 must be denied")
	}
	if res.Violation != ViolationRecursion {
		t.Errorf("violation = %s, want recursion", res.Violation)
	}
	if res.Details["currentDepth"] != 5 || res.Details["maxDepth"] != 5 {
		t.Errorf("details = %v", res.Details)
	}
}

func TestEnforcerContextWindow(t *testing.T) {
	e := newEnforcer()
	constraints := DefaultConstraints(models.TierFree)
	constraints.ContextWindowLimit = 10000

	// 40000 chars estimate to exactly 10000 tokens > effective 9000.
	job := freeJob()
	job.Prompt = strings.Repeat("x", 40000)
	res := e.Check(context.Background(), job, constraints)
	if res.Allowed {
		t.Fatal("oversized prompt must be denied")
	}
	if res.Violation != ViolationContextWindow {
		t.Errorf("violation = %s, want context window", res.Violation)
	}
	if res.Details["estimated"] != 10000 || res.Details["effective"] != 9000 {
		t.Errorf("details = %v", res.Details)
	}
}

func TestEnforcerRateLimit(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig(), nil, nil)
	e := NewEnforcer(limiter)
	constraints := DefaultConstraints(models.TierFree)

	for i := 0; i < 10; i++ {
		limiter.Increment(context.Background(), "user-1")
	}
	res := e.Check(context.Background(), freeJob(), constraints)
	if res.Allowed {
		t.Fatal("rate-limited user must be denied")
	}
	if res.Violation != ViolationRateLimit {
		t.Errorf("violation = %s, want rate limit", res.Violation)
	}
	if res.Reason != "rate limit exceeded: 10 requests per minute" {
		t.Errorf("reason = %q", res.Reason)
	}
}

func TestEnforcerToolCallBudget(t *testing.T) {
	e := newEnforcer()
	constraints := DefaultConstraints(models.TierFree)

	job := freeJob()
	for i := 0; i < constraints.MaxToolCalls; i++ {
		job.ToolResults = append(job.ToolResults, models.ToolResult{ToolName: "google_search"})
	}
	res := e.Check(context.Background(), job, constraints)
	if res.Allowed {
		t.Fatal("exhausted tool budget must be denied")
	}
	if res.Violation != ViolationToolCalls {
		t.Errorf("violation = %s, want tool calls", res.Violation)
	}
}

func TestEnforcerToolAllowlist(t *testing.T) {
	e := newEnforcer()
	constraints := DefaultConstraints(models.TierFree)
	constraints.AllowedTools = []string{"google_search"}

	job := freeJob()
	job.ToolResults = []models.ToolResult{{ToolName: "code_executor"}}
	res := e.Check(context.Background(), job, constraints)
	if res.Allowed {
		t.Fatal("disallowed tool must be denied")
	}
	if res.Violation != ViolationToolAllowlist {
		t.Errorf("violation = %s, want allowlist", res.Violation)
	}

	// An empty allowlist allows everything.
	constraints.AllowedTools = nil
	if res := e.Check(context.Background(), job, constraints); !res.Allowed {
		t.Errorf("empty allowlist should allow: %s", res.Reason)
	}
}

func TestEnforcerCheckOrder(t *testing.T) {
	// A job violating both recursion and context must report recursion,
	// the first check in the fixed order.
	e := newEnforcer()
	constraints := DefaultConstraints(models.TierFree)

	job := freeJob()
	job.CurrentDepth = 5
	job.Prompt = strings.Repeat("x", 100000)
	res := e.Check(context.Background(), job, constraints)
	if res.Violation != ViolationRecursion {
		t.Errorf("violation = %s, want recursion first", res.Violation)
	}
}
