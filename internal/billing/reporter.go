package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/agui/internal/storage"
	"github.com/haasonsaas/agui/pkg/models"
)

// Reporter assembles billing reports from execution summaries and persists
// them as execution-metadata rows. Reads degrade to zeroed results on
// storage errors; only persistence surfaces a wrapped error, which callers
// log without failing the request.
type Reporter struct {
	store  storage.BillingStore
	logger *slog.Logger
	now    func() time.Time
}

// NewReporter creates a billing reporter over the given store.
func NewReporter(store storage.BillingStore, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reporter{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// GenerateReport assembles the billing report for one correlation id.
func (r *Reporter) GenerateReport(correlationID, userID string, sum *models.ExecutionSummary) *models.BillingReport {
	breakdown := Breakdown(sum.TokensUsed, sum.ToolCalls, sum.Decisions)
	total, err := TotalCost(sum.TokensUsed, len(sum.ToolCalls))
	if err != nil {
		total = 0
	}
	return &models.BillingReport{
		CorrelationID: correlationID,
		UserID:        userID,
		TotalCost:     total,
		CostBreakdown: breakdown,
		ExecutionTime: sum.ExecutionTime,
		Timestamp:     r.now().UTC(),
		Metrics: models.BillingMetrics{
			TokensUsed:     sum.TokensUsed,
			ToolCallsCount: len(sum.ToolCalls),
			LLMCallsCount:  sum.LLMCallCount(),
			RecursionDepth: sum.RecursionDepth,
		},
	}
}

// PersistReport upserts the execution-metadata row for the report.
func (r *Reporter) PersistReport(ctx context.Context, report *models.BillingReport, signature string, sum *models.ExecutionSummary) error {
	rec := &models.ExecutionRecord{
		CorrelationID:  report.CorrelationID,
		Signature:      signature,
		UserID:         report.UserID,
		StartedAt:      sum.StartedAt,
		CompletedAt:    sum.CompletedAt,
		Status:         sum.Status,
		PhaseResult:    sum.PhaseResult,
		FromCache:      sum.FromCache,
		ExecutionTime:  report.ExecutionTime,
		TokensUsed:     report.Metrics.TokensUsed,
		TotalCost:      report.TotalCost,
		RecursionDepth: report.Metrics.RecursionDepth,
		ToolCallsCount: report.Metrics.ToolCallsCount,
		LLMCallsCount:  report.Metrics.LLMCallsCount,
		ErrorCode:      sum.ErrorCode,
		ErrorMessage:   sum.ErrorMessage,
	}
	if err := r.store.UpsertExecution(ctx, rec); err != nil {
		return fmt.Errorf("persist billing report %s: %w", report.CorrelationID, err)
	}
	return nil
}

// UserCosts sums a user's total cost over an optional time range. Errors
// degrade to zero.
func (r *Reporter) UserCosts(ctx context.Context, userID string, from, to *time.Time) float64 {
	recs, err := r.store.ListExecutions(ctx, userID, from, to)
	if err != nil {
		r.logger.Warn("user cost aggregation failed", "user_id", userID, "error", err)
		return 0
	}
	var total float64
	for _, rec := range recs {
		total += rec.TotalCost
	}
	return Round6(total)
}

// GetReport returns one tenant-scoped execution record.
func (r *Reporter) GetReport(ctx context.Context, correlationID, userID string) (*models.ExecutionRecord, error) {
	return r.store.GetExecution(ctx, correlationID, userID)
}

// UserStats aggregates a user's execution records.
type UserStats struct {
	Requests         int     `json:"requests"`
	TotalCost        float64 `json:"totalCost"`
	TotalTokens      int     `json:"totalTokens"`
	TotalToolCalls   int     `json:"totalToolCalls"`
	AvgCost          float64 `json:"avgCost"`
	AvgExecutionTime float64 `json:"avgExecutionTimeMs"`
}

// GetUserStats computes aggregate sums and averages; storage errors
// degrade to zeroed stats.
func (r *Reporter) GetUserStats(ctx context.Context, userID string, from, to *time.Time) *UserStats {
	stats := &UserStats{}
	recs, err := r.store.ListExecutions(ctx, userID, from, to)
	if err != nil {
		r.logger.Warn("user stats aggregation failed", "user_id", userID, "error", err)
		return stats
	}
	var totalTime int64
	for _, rec := range recs {
		stats.Requests++
		stats.TotalCost += rec.TotalCost
		stats.TotalTokens += rec.TokensUsed
		stats.TotalToolCalls += rec.ToolCallsCount
		totalTime += rec.ExecutionTime
	}
	stats.TotalCost = Round6(stats.TotalCost)
	if stats.Requests > 0 {
		stats.AvgCost = Round6(stats.TotalCost / float64(stats.Requests))
		stats.AvgExecutionTime = float64(totalTime) / float64(stats.Requests)
	}
	return stats
}
