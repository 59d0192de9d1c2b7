package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// Watchdog periodically flips long-running PROCESSING rows to STUCK. STUCK is
// terminal for automation: only the release endpoint puts a row back to
// PENDING. All pods run the scan independently; the flip is idempotent.
type Watchdog struct {
	store     store.AuditStore
	interval  time.Duration
	threshold time.Duration
	logger    *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewWatchdog creates a Watchdog from the worker and audit configs.
func NewWatchdog(st store.AuditStore, workers config.WorkersConfig, audit config.AuditConfig, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		store:     st,
		interval:  workers.WatchdogInterval,
		threshold: audit.StuckThreshold,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the scan loop.
func (w *Watchdog) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop signals the loop and waits for it to exit.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Running reports whether the loop is alive.
func (w *Watchdog) Running() bool { return w.running.Load() }

func (w *Watchdog) run(ctx context.Context) {
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
			if err := w.scan(ctx); err != nil {
				w.logger.Error("watchdog scan failed", "error", err)
			}
		}
	}
}

func (w *Watchdog) scan(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.WorkerTickDuration.WithLabelValues("watchdog").Observe(time.Since(start).Seconds())
	}()

	stuck, err := w.store.MarkStuck(ctx, time.Now().Add(-w.threshold))
	if err != nil {
		return err
	}
	for _, row := range stuck {
		observability.StuckEvents.Inc()
		w.logger.Warn("event stuck in processing",
			"source", row.Source,
			"sourceOffset", row.SourceOffset,
			"eventId", row.EventID,
			"claimedBy", row.ClaimedBy,
			"startedAt", row.StartedAt)
	}
	return nil
}
