package models

import "time"

// ScheduleMode distinguishes one-shot from recurring deliveries.
type ScheduleMode string

// Schedule modes.
const (
	ScheduleDelayed   ScheduleMode = "DELAYED"
	ScheduleRecurring ScheduleMode = "RECURRING"
)

// ScheduleStatus is the lifecycle state of a scheduled delivery.
type ScheduleStatus string

// Schedule statuses. PENDING → {SENT, OVERDUE→SENT, CANCELLED, FAILED}.
const (
	SchedulePending   ScheduleStatus = "PENDING"
	ScheduleSent      ScheduleStatus = "SENT"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
	ScheduleOverdue   ScheduleStatus = "OVERDUE"
	ScheduleFailed    ScheduleStatus = "FAILED"
)

// Cancellable reports whether a schedule in this status may be cancelled.
func (s ScheduleStatus) Cancellable() bool { return s == SchedulePending || s == ScheduleOverdue }

// ScheduledDelivery is a persisted future delivery whose fire time was
// computed from event data by a scheduling script.
type ScheduledDelivery struct {
	ID            string       `json:"scheduleId"`
	IntegrationID string       `json:"integrationId"`
	TenantID      int64        `json:"tenantId"`
	TraceID       string       `json:"traceId"`
	MessageID     string       `json:"messageId"`
	Payload       Payload      `json:"payload"`
	Mode          ScheduleMode `json:"mode"`

	// FireAt is the next fire time for both modes.
	FireAt time.Time `json:"fireAt"`

	// RECURRING bounds: either MaxOccurrences or EndAt must be set.
	FirstOccurrence *time.Time `json:"firstOccurrence,omitempty"`
	IntervalMs      int64      `json:"intervalMs,omitempty"`
	MaxOccurrences  int        `json:"maxOccurrences,omitempty"`
	EndAt           *time.Time `json:"endAt,omitempty"`

	OccurrencesFired int            `json:"occurrencesFired"`
	Status           ScheduleStatus `json:"status"`

	CreatedAt time.Time  `json:"createdAt"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`
}

// Exhausted reports whether a RECURRING schedule has reached its cap as of
// the given time.
func (sd *ScheduledDelivery) Exhausted(now time.Time) bool {
	if sd.Mode != ScheduleRecurring {
		return sd.OccurrencesFired > 0
	}
	if sd.MaxOccurrences > 0 && sd.OccurrencesFired >= sd.MaxOccurrences {
		return true
	}
	if sd.EndAt != nil && now.After(*sd.EndAt) {
		return true
	}
	return false
}
