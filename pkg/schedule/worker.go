package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// Firer delivers one due schedule. Implemented by the delivery engine.
type Firer interface {
	FireSchedule(ctx context.Context, sd *models.ScheduledDelivery) error
}

// Worker claims due schedules each period and fires them. Entries more than
// one period late are flagged OVERDUE for operators but still fired. A
// recurring schedule that fell several periods behind advances once per tick
// rather than firing a burst of catch-up deliveries.
type Worker struct {
	schedules store.ScheduleStore
	firer     Firer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewWorker creates a Worker.
func NewWorker(schedules store.ScheduleStore, firer Firer, workers config.WorkersConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		schedules: schedules,
		firer:     firer,
		interval:  workers.SchedulerInterval,
		batchSize: workers.SchedulerBatchSize,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the scheduler loop.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop signals the loop and waits for the in-flight batch to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Running reports whether the loop is alive.
func (w *Worker) Running() bool { return w.running.Load() }

func (w *Worker) run(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.logger.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.WorkerTickDuration.WithLabelValues("scheduler").Observe(time.Since(start).Seconds())
	}()

	now := time.Now()
	due, err := w.schedules.ClaimDue(ctx, now, w.batchSize)
	if err != nil {
		return fmt.Errorf("claiming due schedules: %w", err)
	}

	for _, sd := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		default:
		}
		w.fire(ctx, sd, now)
	}
	return nil
}

func (w *Worker) fire(ctx context.Context, sd *models.ScheduledDelivery, now time.Time) {
	if now.Sub(sd.FireAt) > w.interval {
		observability.SchedulerOverdue.Inc()
		sd.Status = models.ScheduleOverdue
		w.logger.Warn("schedule overdue",
			"scheduleId", sd.ID,
			"integrationId", sd.IntegrationID,
			"fireAt", sd.FireAt,
			"late", now.Sub(sd.FireAt))
	}

	err := w.fireOnce(ctx, sd)
	observability.SchedulerFires.WithLabelValues(string(sd.Mode)).Inc()
	sd.OccurrencesFired++

	switch {
	case err != nil:
		// The delivery engine owns retry via the DLQ; the schedule itself is
		// done for this occurrence.
		w.logger.Error("scheduled delivery failed",
			"scheduleId", sd.ID, "integrationId", sd.IntegrationID, "error", err)
		if sd.Mode == models.ScheduleDelayed {
			sd.Status = models.ScheduleFailed
		}
	case sd.Mode == models.ScheduleDelayed:
		sd.Status = models.ScheduleSent
	}

	if sd.Mode == models.ScheduleRecurring {
		if sd.IntervalMs <= 0 || sd.Exhausted(now) {
			sd.Status = models.ScheduleSent
		} else {
			// Advance from the nominal fire time, skipping occurrences that
			// are already in the past. At most one fires per tick.
			next := sd.FireAt.Add(time.Duration(sd.IntervalMs) * time.Millisecond)
			for !next.After(now) {
				next = next.Add(time.Duration(sd.IntervalMs) * time.Millisecond)
			}
			sd.FireAt = next
			sd.Status = models.SchedulePending
		}
	}

	if err := w.schedules.Update(ctx, sd); err != nil {
		w.logger.Error("updating schedule after fire failed",
			"scheduleId", sd.ID, "error", err)
	}
}

// fireOnce contains the panic boundary for one delivery.
func (w *Worker) fireOnce(ctx context.Context, sd *models.ScheduledDelivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduled delivery panicked: %v", r)
		}
	}()
	return w.firer.FireSchedule(ctx, sd)
}
