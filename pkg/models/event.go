package models

import "time"

// Event is a normalized record pulled from a source system and fed into the
// audit ledger.
type Event struct {
	// EventID is the natural key assigned by the source system.
	EventID string `json:"eventId"`

	// SourceOffset is the monotonic position within the source (row id for
	// the relational source, stream sequence for the log source).
	SourceOffset int64 `json:"sourceOffset"`

	// Source names the adapter the event came from ("relational", "stream").
	Source string `json:"source"`

	TenantID  int64     `json:"tenantId"`
	OrgID     int64     `json:"orgId,omitempty"`
	EventType string    `json:"eventType"`
	OccurredAt time.Time `json:"occurredAt"`

	Payload Payload `json:"payload"`

	// TraceID correlates the event across the execution log. Accepted from
	// the source when present, generated at ingest otherwise.
	TraceID string `json:"traceId,omitempty"`
}

// AuditStatus is the lifecycle state of an event audit row.
type AuditStatus string

// Audit statuses.
const (
	AuditPending    AuditStatus = "PENDING"
	AuditProcessing AuditStatus = "PROCESSING"
	AuditProcessed  AuditStatus = "PROCESSED"
	AuditSkipped    AuditStatus = "SKIPPED"
	AuditFailed     AuditStatus = "FAILED"
	AuditStuck      AuditStatus = "STUCK"
)

// Terminal reports whether the status ends the audit lifecycle.
func (s AuditStatus) Terminal() bool {
	switch s {
	case AuditProcessed, AuditSkipped, AuditFailed:
		return true
	}
	return false
}

// EventAudit is the per-event ledger row providing exactly-once claim
// semantics over at-least-once sources.
type EventAudit struct {
	EventID      string      `json:"eventId"`
	SourceOffset int64       `json:"sourceOffset"`
	Source       string      `json:"source"`
	TenantID     int64       `json:"tenantId"`
	EventType    string      `json:"eventType"`
	TraceID      string      `json:"traceId"`
	ReceivedAt   time.Time   `json:"receivedAt"`
	Status       AuditStatus `json:"status"`
	StartedAt    *time.Time  `json:"startedAt,omitempty"`
	FinishedAt   *time.Time  `json:"finishedAt,omitempty"`

	// SkipCategory explains SKIPPED rows (no_matching_integration, oversized...).
	SkipCategory string `json:"skipCategory,omitempty"`

	// PayloadSummary always holds the allow-listed summary fields;
	// PayloadFull is empty when the raw payload exceeded the size bound.
	PayloadSummary Payload `json:"payloadSummary,omitempty"`
	PayloadFull    Payload `json:"payloadFull,omitempty"`

	// ClaimedBy is the pod that moved the row to PROCESSING.
	ClaimedBy string `json:"claimedBy,omitempty"`

	CheckpointOffset int64 `json:"checkpointOffset"`
}
