package models

import "time"

// TriggerType identifies what started an execution.
type TriggerType string

// Trigger types.
const (
	TriggerEvent    TriggerType = "EVENT"
	TriggerAPI      TriggerType = "API"
	TriggerSchedule TriggerType = "SCHEDULE"
)

// ExecStatus is the lifecycle state of an execution log.
type ExecStatus string

// Execution statuses.
const (
	ExecPending  ExecStatus = "pending"
	ExecRetrying ExecStatus = "retrying"
	ExecSuccess  ExecStatus = "success"
	ExecFailed   ExecStatus = "failed"
)

// StepStatus is the outcome of one pipeline step.
type StepStatus string

// Step statuses.
const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

// Step names used by the delivery pipeline. Kept as constants so logs, tests
// and the timeline API agree on spelling.
const (
	StepValidation        = "validation"
	StepRateLimit         = "rate_limit"
	StepTransform         = "transform"
	StepAuth              = "auth"
	StepHTTPRequest       = "http_request"
	StepClassify          = "classify"
	StepPostProcess       = "post_process"
	StepInboundAuth       = "inbound_auth"
	StepRequestTransform  = "request_transform"
	StepResponseTransform = "response_transform"
	StepFetchData         = "fetch_data"
	StepSchedule          = "schedule"
)

// RequestSnapshot captures the outbound request for the execution log.
// Headers and body are redacted and truncated before persisting.
type RequestSnapshot struct {
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ResponseSnapshot captures the target's response.
type ResponseSnapshot struct {
	StatusCode int               `json:"statusCode,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// Step is one ordered entry in an execution log.
type Step struct {
	Name       string         `json:"name"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMs int64          `json:"durationMs"`
	Status     StepStatus     `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Error      string         `json:"error,omitempty"`

	// GapMs is the idle time between the previous step's end and this
	// step's start. Zero for the first step.
	GapMs int64 `json:"gapMs,omitempty"`
}

// ExecutionLog is the unified trace of one message through the gateway.
type ExecutionLog struct {
	TraceID       string      `json:"traceId"`
	MessageID     string      `json:"messageId"`
	Direction     Direction   `json:"direction"`
	TriggerType   TriggerType `json:"triggerType"`
	IntegrationID string      `json:"integrationId"`
	TenantID      int64       `json:"tenantId"`

	Status     ExecStatus `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	DurationMs int64      `json:"durationMs"`

	Request  *RequestSnapshot  `json:"request,omitempty"`
	Response *ResponseSnapshot `json:"response,omitempty"`

	Steps []Step `json:"steps"`
	Error string `json:"error,omitempty"`
}
