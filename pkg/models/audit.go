package models

import "time"

// AuditEvent is one append-only entry in the execution trail. Events are
// retrieved chronologically per correlation id.
type AuditEvent struct {
	CorrelationID string         `json:"correlationId"`
	UserID        string         `json:"userId"`
	Timestamp     time.Time      `json:"timestamp"`
	Phase         string         `json:"phase"`
	Event         string         `json:"event"`
	Details       map[string]any `json:"details,omitempty"`
}

// Pipeline phase labels used in audit events and cost breakdowns.
const (
	PhaseIngestion     = "INGESTION"
	PhasePolicy        = "POLICY"
	PhaseExecution     = "EXECUTION"
	PhaseAggregation   = "AGGREGATION"
	PhaseSerialization = "SERIALIZATION"
)

// CacheEntry is a persisted result-cache row, unique by Signature.
type CacheEntry struct {
	Signature      string    `json:"signature"`
	UserID         string    `json:"userId"`
	Response       *Response `json:"response"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	HitCount       int       `json:"hitCount"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}
