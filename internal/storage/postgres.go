package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/haasonsaas/agui/pkg/models"
)

// PostgresConfig tunes the connection pool.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns pool settings suitable for a single node.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// NewPostgresStoresFromDSN opens a Postgres connection and returns stores
// for all five engine tables. The schema is assumed to exist before the
// engine boots.
func NewPostgresStoresFromDSN(dsn string, config *PostgresConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgresStores(db), nil
}

// NewPostgresStores wraps an existing database handle. The caller retains
// ownership of db unless the returned StoreSet is closed.
func NewPostgresStores(db *sql.DB) StoreSet {
	return StoreSet{
		Cache:     &pgCacheStore{db: db},
		Audit:     &pgAuditStore{db: db},
		Policies:  &pgPolicyStore{db: db},
		Billing:   &pgBillingStore{db: db},
		RateLimit: &pgRateLimitStore{db: db},
		closer:    db.Close,
	}
}

type pgCacheStore struct {
	db *sql.DB
}

func (s *pgCacheStore) Get(ctx context.Context, signature string) (*models.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT intent_signature, user_id, response, created_at, expires_at, hit_count, last_accessed_at
		 FROM agent_result_cache WHERE intent_signature = $1`, signature)

	var entry models.CacheEntry
	var respBytes []byte
	if err := row.Scan(
		&entry.Signature,
		&entry.UserID,
		&respBytes,
		&entry.CreatedAt,
		&entry.ExpiresAt,
		&entry.HitCount,
		&entry.LastAccessedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	if len(respBytes) > 0 {
		var resp models.Response
		if err := json.Unmarshal(respBytes, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal cached response: %w", err)
		}
		entry.Response = &resp
	}
	return &entry, nil
}

func (s *pgCacheStore) Put(ctx context.Context, entry *models.CacheEntry) error {
	respBytes, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_result_cache (intent_signature, user_id, response, created_at, expires_at, hit_count, last_accessed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (intent_signature) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   response = EXCLUDED.response,
		   created_at = EXCLUDED.created_at,
		   expires_at = EXCLUDED.expires_at,
		   hit_count = EXCLUDED.hit_count,
		   last_accessed_at = EXCLUDED.last_accessed_at`,
		entry.Signature,
		entry.UserID,
		respBytes,
		entry.CreatedAt,
		entry.ExpiresAt,
		entry.HitCount,
		entry.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

func (s *pgCacheStore) Touch(ctx context.Context, signature string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_result_cache SET hit_count = hit_count + 1, last_accessed_at = $2
		 WHERE intent_signature = $1`, signature, at)
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgCacheStore) Delete(ctx context.Context, signature, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_result_cache WHERE intent_signature = $1 AND user_id = $2`,
		signature, userID)
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgCacheStore) DeleteUser(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_result_cache WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *pgCacheStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM agent_result_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *pgCacheStore) Stats(ctx context.Context, userID string) (*CacheStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(hit_count), 0),
		        COUNT(*) FILTER (WHERE expires_at <= NOW())
		 FROM agent_result_cache WHERE user_id = $1`, userID)
	var stats CacheStats
	if err := row.Scan(&stats.Entries, &stats.TotalHits, &stats.Expired); err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	return &stats, nil
}

func (s *pgCacheStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type pgAuditStore struct {
	db *sql.DB
}

func (s *pgAuditStore) Append(ctx context.Context, event *models.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_audit_logs (correlation_id, user_id, phase, event, details, timestamp)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		event.CorrelationID,
		event.UserID,
		event.Phase,
		event.Event,
		details,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *pgAuditStore) ListByCorrelation(ctx context.Context, correlationID, userID string) ([]*models.AuditEvent, error) {
	query := `SELECT correlation_id, user_id, phase, event, details, timestamp
		 FROM agent_audit_logs WHERE correlation_id = $1`
	args := []any{correlationID}
	if userID != "" {
		query += ` AND user_id = $2`
		args = append(args, userID)
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []*models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var details []byte
		if err := rows.Scan(&e.CorrelationID, &e.UserID, &e.Phase, &e.Event, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *pgAuditStore) DeleteOlderThan(ctx context.Context, tier models.Tier, cutoff time.Time) (int64, error) {
	// Users without a policy row are treated as the default free tier.
	query := `DELETE FROM agent_audit_logs a
		 USING agent_user_policies p
		 WHERE a.user_id = p.user_id AND p.tier = $1 AND a.timestamp < $2`
	if tier == models.TierFree {
		query = `DELETE FROM agent_audit_logs a
		 WHERE a.timestamp < $2 AND COALESCE(
		   (SELECT p.tier FROM agent_user_policies p WHERE p.user_id = a.user_id), $1) = $1`
	}
	res, err := s.db.ExecContext(ctx, query, string(tier), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete audit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type pgPolicyStore struct {
	db *sql.DB
}

func (s *pgPolicyStore) Get(ctx context.Context, userID string) (*models.UserPolicy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, tier, max_recursion_depth, context_window_limit, max_tool_calls,
		        allowed_tools, requests_per_minute, requests_per_hour
		 FROM agent_user_policies WHERE user_id = $1`, userID)

	var p models.UserPolicy
	var tier string
	var tools []byte
	if err := row.Scan(
		&p.UserID,
		&tier,
		&p.Constraints.MaxRecursionDepth,
		&p.Constraints.ContextWindowLimit,
		&p.Constraints.MaxToolCalls,
		&tools,
		&p.Constraints.RateLimit.PerMinute,
		&p.Constraints.RateLimit.PerHour,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}
	p.Tier = models.Tier(tier)
	if len(tools) > 0 {
		if err := json.Unmarshal(tools, &p.Constraints.AllowedTools); err != nil {
			return nil, fmt.Errorf("unmarshal allowed tools: %w", err)
		}
	}
	return &p, nil
}

func (s *pgPolicyStore) Create(ctx context.Context, policy *models.UserPolicy) error {
	tools, err := json.Marshal(policy.Constraints.AllowedTools)
	if err != nil {
		return fmt.Errorf("marshal allowed tools: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_user_policies
		   (user_id, tier, max_recursion_depth, context_window_limit, max_tool_calls,
		    allowed_tools, requests_per_minute, requests_per_hour)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (user_id) DO NOTHING`,
		policy.UserID,
		string(policy.Tier),
		policy.Constraints.MaxRecursionDepth,
		policy.Constraints.ContextWindowLimit,
		policy.Constraints.MaxToolCalls,
		tools,
		policy.Constraints.RateLimit.PerMinute,
		policy.Constraints.RateLimit.PerHour,
	)
	if err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

type pgBillingStore struct {
	db *sql.DB
}

func (s *pgBillingStore) UpsertExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_execution_metadata
		   (correlation_id, intent_signature, user_id, started_at, completed_at, status,
		    phase_result, from_cache, execution_time_ms, tokens_used, total_cost,
		    recursion_depth, tool_calls_count, llm_calls_count, error_code, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		 ON CONFLICT (correlation_id) DO UPDATE SET
		   intent_signature = EXCLUDED.intent_signature,
		   completed_at = EXCLUDED.completed_at,
		   status = EXCLUDED.status,
		   phase_result = EXCLUDED.phase_result,
		   from_cache = EXCLUDED.from_cache,
		   execution_time_ms = EXCLUDED.execution_time_ms,
		   tokens_used = EXCLUDED.tokens_used,
		   total_cost = EXCLUDED.total_cost,
		   recursion_depth = EXCLUDED.recursion_depth,
		   tool_calls_count = EXCLUDED.tool_calls_count,
		   llm_calls_count = EXCLUDED.llm_calls_count,
		   error_code = EXCLUDED.error_code,
		   error_message = EXCLUDED.error_message`,
		rec.CorrelationID,
		rec.Signature,
		rec.UserID,
		rec.StartedAt,
		rec.CompletedAt,
		rec.Status,
		string(rec.PhaseResult),
		rec.FromCache,
		rec.ExecutionTime,
		rec.TokensUsed,
		rec.TotalCost,
		rec.RecursionDepth,
		rec.ToolCallsCount,
		rec.LLMCallsCount,
		rec.ErrorCode,
		rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("upsert execution: %w", err)
	}
	return nil
}

func (s *pgBillingStore) GetExecution(ctx context.Context, correlationID, userID string) (*models.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT correlation_id, intent_signature, user_id, started_at, completed_at, status,
		        phase_result, from_cache, execution_time_ms, tokens_used, total_cost,
		        recursion_depth, tool_calls_count, llm_calls_count, error_code, error_message
		 FROM agent_execution_metadata WHERE correlation_id = $1 AND user_id = $2`,
		correlationID, userID)
	rec, err := scanExecution(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return rec, nil
}

func (s *pgBillingStore) ListExecutions(ctx context.Context, userID string, from, to *time.Time) ([]*models.ExecutionRecord, error) {
	query := `SELECT correlation_id, intent_signature, user_id, started_at, completed_at, status,
		        phase_result, from_cache, execution_time_ms, tokens_used, total_cost,
		        recursion_depth, tool_calls_count, llm_calls_count, error_code, error_message
		 FROM agent_execution_metadata WHERE user_id = $1`
	args := []any{userID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND completed_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND completed_at <= $%d", len(args))
	}
	query += ` ORDER BY completed_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*models.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.ExecutionRecord, error) {
	var rec models.ExecutionRecord
	var phaseResult string
	var errCode, errMessage sql.NullString
	if err := row.Scan(
		&rec.CorrelationID,
		&rec.Signature,
		&rec.UserID,
		&rec.StartedAt,
		&rec.CompletedAt,
		&rec.Status,
		&phaseResult,
		&rec.FromCache,
		&rec.ExecutionTime,
		&rec.TokensUsed,
		&rec.TotalCost,
		&rec.RecursionDepth,
		&rec.ToolCallsCount,
		&rec.LLMCallsCount,
		&errCode,
		&errMessage,
	); err != nil {
		return nil, err
	}
	rec.PhaseResult = models.PhaseResult(phaseResult)
	rec.ErrorCode = errCode.String
	rec.ErrorMessage = errMessage.String
	return &rec, nil
}

type pgRateLimitStore struct {
	db *sql.DB
}

func (s *pgRateLimitStore) Save(ctx context.Context, state *models.RateLimitState) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_rate_limits
		   (user_id, minute_count, minute_window_start, hour_count, hour_window_start, last_updated)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   minute_count = EXCLUDED.minute_count,
		   minute_window_start = EXCLUDED.minute_window_start,
		   hour_count = EXCLUDED.hour_count,
		   hour_window_start = EXCLUDED.hour_window_start,
		   last_updated = EXCLUDED.last_updated`,
		state.UserID,
		state.MinuteCount,
		state.MinuteWindowStart,
		state.HourCount,
		state.HourWindowStart,
		state.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save rate limit state: %w", err)
	}
	return nil
}

func (s *pgRateLimitStore) Load(ctx context.Context, userID string) (*models.RateLimitState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, minute_count, minute_window_start, hour_count, hour_window_start, last_updated
		 FROM agent_rate_limits WHERE user_id = $1`, userID)
	var st models.RateLimitState
	if err := row.Scan(
		&st.UserID,
		&st.MinuteCount,
		&st.MinuteWindowStart,
		&st.HourCount,
		&st.HourWindowStart,
		&st.LastUpdated,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load rate limit state: %w", err)
	}
	return &st, nil
}
