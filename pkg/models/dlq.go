package models

import "time"

// DLQStatus is the lifecycle state of a dead-letter entry.
type DLQStatus string

// DLQ statuses. Transitions are monotonic:
// pending ↔ retrying → resolved | abandoned.
const (
	DLQPending   DLQStatus = "pending"
	DLQRetrying  DLQStatus = "retrying"
	DLQResolved  DLQStatus = "resolved"
	DLQAbandoned DLQStatus = "abandoned"
)

// Terminal reports whether the status ends the DLQ lifecycle.
func (s DLQStatus) Terminal() bool { return s == DLQResolved || s == DLQAbandoned }

// RetryStrategy selects how nextRetryAt is computed.
type RetryStrategy string

// Retry strategies.
const (
	RetryExponential RetryStrategy = "exponential"
	RetryFixed       RetryStrategy = "fixed"
)

// ErrorDetail describes the failure that dead-lettered a delivery.
type ErrorDetail struct {
	Message    string        `json:"message"`
	Code       string        `json:"code,omitempty"`
	Category   ErrorCategory `json:"category"`
	StatusCode int           `json:"statusCode,omitempty"`
}

// Resolution records how a DLQ entry left the queue.
type Resolution struct {
	Method string    `json:"method"` // retry_succeeded | max_retries_exceeded | manual_abandon
	At     time.Time `json:"at"`
	By     string    `json:"by,omitempty"`
	Notes  string    `json:"notes,omitempty"`
}

// DLQEntry is one failed delivery awaiting retry or operator resolution.
type DLQEntry struct {
	ID             string    `json:"dlqId"`
	TraceID        string    `json:"traceId"`
	ExecutionLogID string    `json:"executionLogId"`
	IntegrationID  string    `json:"integrationId"`
	TenantID       int64     `json:"tenantId"`
	Direction      Direction `json:"direction"`

	// Payload is the original, pre-transform event payload so retries
	// re-run the full pipeline.
	Payload Payload `json:"payload"`

	// MessageID carries the original message id so retried deliveries sign
	// and correlate consistently.
	MessageID string `json:"messageId"`

	Error ErrorDetail `json:"error"`

	RetryStrategy RetryStrategy `json:"retryStrategy"`
	RetryCount    int           `json:"retryCount"`
	MaxRetries    int           `json:"maxRetries"`
	NextRetryAt   time.Time     `json:"nextRetryAt"`

	// ResumeActionIndex, for resumable multi-action chains, is the index of
	// the first failed action; retries start there.
	ResumeActionIndex int `json:"resumeActionIndex,omitempty"`

	Status     DLQStatus   `json:"status"`
	Resolution *Resolution `json:"resolution,omitempty"`

	CreatedAt     time.Time  `json:"createdAt"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	ClaimedAt     *time.Time `json:"claimedAt,omitempty"`
}
