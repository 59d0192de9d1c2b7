package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// Redeliver re-runs a dead-lettered delivery from the original payload.
// Resumable chains restart at the recorded action index; everything else
// restarts from action zero.
func (e *Engine) Redeliver(ctx context.Context, entry *models.DLQEntry) error {
	ic, err := e.integrations.GetByID(ctx, entry.IntegrationID)
	if err != nil {
		return fmt.Errorf("loading integration %s: %w", entry.IntegrationID, err)
	}

	a := &Attempt{
		Integration: ic,
		TraceID:     entry.TraceID,
		MessageID:   entry.MessageID,
		TenantID:    entry.TenantID,
		Payload:     entry.Payload,
		Trigger:     models.TriggerEvent,
		fromDLQ:     true,
	}
	if ic.Resumable {
		a.ResumeActionIndex = entry.ResumeActionIndex
	}
	err = e.Deliver(ctx, a)
	if ic.Resumable {
		entry.ResumeActionIndex = a.failedAction
	}
	return err
}

// FireSchedule delivers a due scheduled entry. Failures feed the DLQ like any
// immediate delivery.
func (e *Engine) FireSchedule(ctx context.Context, sd *models.ScheduledDelivery) error {
	ic, err := e.integrations.GetByID(ctx, sd.IntegrationID)
	if err != nil {
		return fmt.Errorf("loading integration %s: %w", sd.IntegrationID, err)
	}

	// Recurring occurrences past the first each get their own execution log;
	// the message id ties them to the schedule's originating event.
	traceID := sd.TraceID
	if sd.OccurrencesFired > 0 {
		traceID = uuid.NewString()
	}

	return e.Deliver(ctx, &Attempt{
		Integration: ic,
		TraceID:     traceID,
		MessageID:   sd.MessageID,
		TenantID:    sd.TenantID,
		Payload:     sd.Payload,
		Trigger:     models.TriggerSchedule,
	})
}
