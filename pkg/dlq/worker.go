package dlq

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

// Worker periodically claims due entries and re-runs their deliveries. All
// pods run the loop; ClaimDue's CAS keeps an entry on exactly one pod.
type Worker struct {
	service     *Service
	dlqStore    store.DLQStore
	redeliverer Redeliverer
	interval    time.Duration
	batchSize   int
	logger      *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewWorker creates a Worker.
func NewWorker(service *Service, st store.DLQStore, redeliverer Redeliverer, workers config.WorkersConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		service:     service,
		dlqStore:    st,
		redeliverer: redeliverer,
		interval:    workers.RetryInterval,
		batchSize:   workers.RetryBatchSize,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the retry loop.
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
				w.logger.Error("dlq retry tick failed", "error", err)
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.WorkerTickDuration.WithLabelValues("dlq_retry").Observe(time.Since(start).Seconds())
	}()

	due, err := w.dlqStore.ClaimDue(ctx, time.Now(), w.batchSize)
	if err != nil {
		return fmt.Errorf("claiming due dlq entries: %w", err)
	}

	for _, entry := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		default:
		}

		attemptErr := w.redeliver(ctx, entry)
		if err := w.service.CompleteRetry(ctx, entry, attemptErr); err != nil {
			w.logger.Error("recording dlq retry outcome failed",
				"dlqId", entry.ID, "error", err)
		}
	}
	return nil
}

// redeliver contains the panic boundary: a panicking attempt fails the entry
// instead of killing the loop.
func (w *Worker) redeliver(ctx context.Context, entry *models.DLQEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retry panicked: %v", r)
			w.logger.Error("dlq retry panicked", "dlqId", entry.ID, "panic", r)
		}
	}()
	return w.redeliverer.Redeliver(ctx, entry)
}
