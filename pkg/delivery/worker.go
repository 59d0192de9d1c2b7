package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/audit"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/match"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/schedule"
)

// WorkerPool drains the audit ledger: each worker claims a batch of PENDING
// events, fans them out to matched integrations and finalizes the rows.
// Claims are per-worker so a crashed pod's rows surface via the watchdog.
type WorkerPool struct {
	podID   string
	ledger  *audit.Ledger
	matcher *match.Matcher
	engine  *Engine
	planner *schedule.Planner
	cfg     config.WorkersConfig
	logger  *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	active   atomic.Int32
}

// NewWorkerPool creates a WorkerPool.
func NewWorkerPool(podID string, ledger *audit.Ledger, matcher *match.Matcher, engine *Engine, planner *schedule.Planner, cfg config.WorkersConfig, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		podID:   podID,
		ledger:  ledger,
		matcher: matcher,
		engine:  engine,
		planner: planner,
		cfg:     cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the delivery workers.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("starting delivery workers",
		"podId", p.podID, "count", p.cfg.DeliveryWorkerCount)
	for i := 0; i < p.cfg.DeliveryWorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx, workerID)
		}()
	}
}

// Stop signals the workers and waits for in-flight batches to finish.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.logger.Info("delivery workers stopped", "podId", p.podID)
}

// Running reports whether any delivery worker is alive.
func (p *WorkerPool) Running() bool { return p.active.Load() > 0 }

func (p *WorkerPool) run(ctx context.Context, workerID string) {
	p.active.Add(1)
	defer p.active.Add(-1)
	for {
		// Jitter keeps replicas from polling in lockstep.
		wait := p.cfg.PollInterval
		if p.cfg.PollIntervalJitter > 0 {
			wait += time.Duration(rand.Int63n(int64(p.cfg.PollIntervalJitter)))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := p.tick(ctx, workerID); err != nil {
			p.logger.Error("delivery tick failed", "workerId", workerID, "error", err)
		}
	}
}

func (p *WorkerPool) tick(ctx context.Context, workerID string) error {
	start := time.Now()
	defer func() {
		observability.WorkerTickDuration.WithLabelValues("delivery").Observe(time.Since(start).Seconds())
	}()

	batch, err := p.ledger.Claim(ctx, workerID, p.cfg.DeliveryBatchSize)
	if err != nil {
		return fmt.Errorf("claiming events: %w", err)
	}

	for _, row := range batch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		default:
		}
		p.process(ctx, row)
	}
	return nil
}

// process fans one claimed event out and finalizes its audit row. The row
// always reaches a terminal status: per-integration failures are handled by
// the DLQ, not by re-processing the event.
func (p *WorkerPool) process(ctx context.Context, row *models.EventAudit) {
	status, skipCategory := p.fanOut(ctx, row)
	if err := p.ledger.Finalize(ctx, row.Source, row.SourceOffset, status, skipCategory); err != nil {
		p.logger.Error("finalizing audit row failed",
			"source", row.Source, "sourceOffset", row.SourceOffset, "error", err)
	}
}

func (p *WorkerPool) fanOut(ctx context.Context, row *models.EventAudit) (models.AuditStatus, string) {
	if row.PayloadFull == nil {
		return models.AuditSkipped, row.SkipCategory
	}

	event := &models.Event{
		EventID:      row.EventID,
		SourceOffset: row.SourceOffset,
		Source:       row.Source,
		TenantID:     row.TenantID,
		EventType:    row.EventType,
		Payload:      row.PayloadFull,
		TraceID:      row.TraceID,
	}

	matched, err := p.matcher.Match(ctx, event)
	if err != nil {
		p.logger.Error("matching failed",
			"eventId", event.EventID, "error", err)
		return models.AuditFailed, ""
	}
	if len(matched) == 0 {
		return models.AuditSkipped, "no_matching_integration"
	}

	terminalFailure := false
	for i, ic := range matched {
		// One execution log per matched integration. The first keeps the
		// trace id assigned at ingest; the shared message id ties the rest
		// back to the event.
		traceID := event.TraceID
		if i > 0 {
			traceID = uuid.NewString()
		}
		if err := p.dispatch(ctx, ic, event, traceID); err != nil {
			if !models.CategoryOf(err).Retriable() {
				terminalFailure = true
			}
		}
	}
	if terminalFailure {
		return models.AuditFailed, ""
	}
	return models.AuditProcessed, ""
}

// dispatch routes one (event, integration) pair: deferred modes go to the
// schedule planner, everything else delivers immediately. Retriable delivery
// failures are already dead-lettered by the engine.
func (p *WorkerPool) dispatch(ctx context.Context, ic *models.IntegrationConfig, event *models.Event, traceID string) error {
	if ic.DeliveryMode == models.DeliveryDelayed || ic.DeliveryMode == models.DeliveryRecurring {
		scoped := *event
		scoped.TraceID = traceID
		sd, err := p.planner.Plan(ctx, ic, &scoped)
		if err != nil {
			p.logger.Error("scheduling delivery failed",
				"integrationId", ic.ID, "eventId", event.EventID, "error", err)
			return err
		}
		p.logger.Info("delivery scheduled",
			"integrationId", ic.ID, "scheduleId", sd.ID, "mode", sd.Mode, "fireAt", sd.FireAt)
		return nil
	}

	return p.engine.Deliver(ctx, &Attempt{
		Integration: ic,
		TraceID:     traceID,
		MessageID:   event.EventID,
		TenantID:    event.TenantID,
		OrgID:       event.OrgID,
		EventType:   event.EventType,
		Payload:     event.Payload,
		Trigger:     models.TriggerEvent,
	})
}
