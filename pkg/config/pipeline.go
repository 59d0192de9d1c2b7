package config

import "time"

// AuditConfig controls the event audit ledger.
type AuditConfig struct {
	// StuckThreshold is how long a row may stay PROCESSING before the
	// watchdog marks it STUCK. STUCK rows need operator action; they are
	// never reclaimed automatically.
	StuckThreshold time.Duration

	// MaxPayloadSize bounds the stored full payload. Oversized events keep
	// only the allow-listed summary fields.
	MaxPayloadSize int

	// SummaryFields is the allow-list persisted for every event and the
	// only thing persisted for oversized ones.
	SummaryFields []string
}

// DefaultAuditConfig returns the built-in audit defaults.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		StuckThreshold: 5 * time.Minute,
		MaxPayloadSize: 10 << 20, // 10 MB
		SummaryFields:  []string{"id", "type", "patientId", "visitId", "appointmentId", "billId"},
	}
}

func (c *AuditConfig) applyEnv() {
	c.StuckThreshold = getEnvDuration("AUDIT_STUCK_THRESHOLD", c.StuckThreshold)
	c.MaxPayloadSize = getEnvInt("AUDIT_MAX_PAYLOAD_SIZE", c.MaxPayloadSize)
}

// SandboxConfig bounds user-script execution.
type SandboxConfig struct {
	TransformTimeout  time.Duration
	ConditionTimeout  time.Duration
	SchedulingTimeout time.Duration

	// MaxStackDepth is the goja call-stack ceiling, the practical memory
	// bound for runaway recursion.
	MaxStackDepth int
}

// DefaultSandboxConfig returns the built-in sandbox limits.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		TransformTimeout:  10 * time.Second,
		ConditionTimeout:  1 * time.Second,
		SchedulingTimeout: 2 * time.Second,
		MaxStackDepth:     2048,
	}
}

// RetryConfig is the default DLQ retry policy; integrations override
// maxRetries via retryCount.
type RetryConfig struct {
	Strategy    string // exponential | fixed
	Base        time.Duration
	Multiplier  float64
	Cap         time.Duration
	FixedOffset time.Duration
	MaxRetries  int
}

// DefaultRetryConfig returns the built-in retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Strategy:    "exponential",
		Base:        1 * time.Second,
		Multiplier:  2,
		Cap:         15 * time.Minute,
		FixedOffset: 1 * time.Minute,
		MaxRetries:  5,
	}
}

// RedactionConfig controls what the execution logger persists from HTTP
// traffic.
type RedactionConfig struct {
	// DenyHeaders are removed from logged request/response headers
	// (case-insensitive).
	DenyHeaders []string

	// MaxBodyBytes truncates logged bodies.
	MaxBodyBytes int
}

// DefaultRedactionConfig returns the built-in redaction settings.
func DefaultRedactionConfig() RedactionConfig {
	return RedactionConfig{
		DenyHeaders:  []string{"authorization", "x-api-key", "api-key", "cookie", "set-cookie", "proxy-authorization"},
		MaxBodyBytes: 16 << 10, // 16 KiB
	}
}
