package models

import "time"

// RateLimitWindow is the persisted sliding-window counter for one
// (integrationId, tenantId) key.
type RateLimitWindow struct {
	IntegrationID string    `json:"integrationId"`
	TenantID      int64     `json:"tenantId"`
	WindowStart   time.Time `json:"windowStart"`
	WindowEnd     time.Time `json:"windowEnd"`
	RequestCount  int       `json:"requestCount"`
}

// RateLimitDecision is the outcome of an atomic check-and-increment.
type RateLimitDecision struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"resetAt"`
	RetryAfter time.Duration `json:"retryAfter"`
}
