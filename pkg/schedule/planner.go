// Package schedule persists and fires deferred deliveries: one-shot DELAYED
// and bounded RECURRING schedules whose fire times come from event-scoped
// scheduling scripts.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/sandbox"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// Planner turns a matched event into a persisted ScheduledDelivery by running
// the integration's scheduling script.
type Planner struct {
	sandbox   *sandbox.Engine
	schedules store.ScheduleStore
}

// NewPlanner creates a Planner.
func NewPlanner(sb *sandbox.Engine, schedules store.ScheduleStore) *Planner {
	return &Planner{sandbox: sb, schedules: schedules}
}

// Plan runs the scheduling script and persists the resulting schedule. A
// script result in the past fires on the next worker tick. Script failures
// are categorized DATA_ERROR; a recurrence without a cap is rejected.
func (p *Planner) Plan(ctx context.Context, ic *models.IntegrationConfig, event *models.Event) (*models.ScheduledDelivery, error) {
	result, err := p.sandbox.RunScheduling(ctx, ic.SchedulingScript, event.Payload, sandbox.ScriptContext{
		EventType: event.EventType,
		TenantID:  event.TenantID,
		OrgID:     event.OrgID,
	})
	if err != nil {
		return nil, models.NewCategorizedError(models.CategoryDataError,
			fmt.Errorf("scheduling script for %s: %w", ic.ID, err))
	}

	sd := &models.ScheduledDelivery{
		ID:            uuid.NewString(),
		IntegrationID: ic.ID,
		TenantID:      event.TenantID,
		TraceID:       event.TraceID,
		MessageID:     event.EventID,
		Payload:       event.Payload.Clone(),
		Status:        models.SchedulePending,
		CreatedAt:     time.Now(),
	}

	if result.Recurring != nil {
		rec := result.Recurring
		if rec.MaxOccurrences <= 0 && rec.EndAtMillis <= 0 {
			return nil, models.NewCategorizedError(models.CategoryValidationError,
				fmt.Errorf("recurring schedule for %s has neither maxOccurrences nor endAt", ic.ID))
		}
		first := time.UnixMilli(rec.FirstOccurrenceMillis)
		sd.Mode = models.ScheduleRecurring
		sd.FireAt = first
		sd.FirstOccurrence = &first
		sd.IntervalMs = rec.IntervalMs
		sd.MaxOccurrences = rec.MaxOccurrences
		if rec.EndAtMillis > 0 {
			endAt := time.UnixMilli(rec.EndAtMillis)
			sd.EndAt = &endAt
		}
	} else {
		sd.Mode = models.ScheduleDelayed
		sd.FireAt = time.UnixMilli(result.FireAtMillis)
	}

	if err := p.schedules.Insert(ctx, sd); err != nil {
		return nil, fmt.Errorf("persisting schedule for %s: %w", ic.ID, err)
	}
	return sd, nil
}

// Cancel cancels a PENDING or OVERDUE schedule.
func (p *Planner) Cancel(ctx context.Context, scheduleID string) error {
	return p.schedules.Cancel(ctx, scheduleID)
}
