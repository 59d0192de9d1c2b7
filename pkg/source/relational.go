package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// defaultPollQuery reads the source system's notification queue above the
// checkpoint. $1 is the checkpoint, $2 the batch size.
const defaultPollQuery = `
	SELECT id, tenant_id, org_id, event_type, payload, created_at
	FROM notification_queue
	WHERE id > $1
	ORDER BY id
	LIMIT $2`

// Poller tails the source database by row id. The checkpoint commits only
// after every row of the batch is in the ledger; duplicates on replay are
// absorbed by the ledger's (source, offset) key. Row ids are expected to be
// contiguous; a jump means the source lost rows and is surfaced as a gap.
type Poller struct {
	pool        *pgxpool.Pool
	ingestor    Ingestor
	checkpoints store.CheckpointStore
	query       string
	interval    time.Duration
	batchSize   int
	logger      *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewPoller creates a Poller. query overrides the default source query when
// non-empty; it must select (id, tenant_id, org_id, event_type, payload,
// created_at) and honor the ($1 checkpoint, $2 limit) contract.
func NewPoller(pool *pgxpool.Pool, ingestor Ingestor, checkpoints store.CheckpointStore, query string, workers config.WorkersConfig, logger *slog.Logger) *Poller {
	if query == "" {
		query = defaultPollQuery
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		pool:        pool,
		ingestor:    ingestor,
		checkpoints: checkpoints,
		query:       query,
		interval:    workers.PollInterval,
		batchSize:   workers.SourceBatchSize,
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the poll loop.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

// Stop signals the loop and waits for the in-flight batch to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Running reports whether the poll loop is alive.
func (p *Poller) Running() bool { return p.running.Load() }

func (p *Poller) run(ctx context.Context) {
	p.running.Store(true)
	defer p.running.Store(false)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				p.logger.Error("source poll failed", "error", err)
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.WorkerTickDuration.WithLabelValues("source_poll").Observe(time.Since(start).Seconds())
	}()

	checkpoint, err := p.checkpoints.Get(ctx, SourceRelational)
	if err != nil {
		return fmt.Errorf("reading checkpoint: %w", err)
	}

	events, err := p.fetch(ctx, checkpoint)
	if err != nil {
		return err
	}
	return p.ingestBatch(ctx, checkpoint, events)
}

// ingestBatch pushes fetched rows through the ledger in id order, surfacing
// id gaps, and commits the checkpoint for the prefix that made it in.
func (p *Poller) ingestBatch(ctx context.Context, checkpoint int64, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}

	expected := checkpoint + 1
	for _, event := range events {
		if checkpoint > 0 && event.SourceOffset > expected {
			observability.CheckpointGaps.WithLabelValues(SourceRelational).Add(float64(event.SourceOffset - expected))
			p.logger.Warn("gap in source row ids",
				"expected", expected, "got", event.SourceOffset)
		}
		expected = event.SourceOffset + 1

		if _, err := p.ingestor.Ingest(ctx, event); err != nil {
			// Stop mid-batch: the checkpoint stays behind this row and the
			// next tick retries from it.
			if commitErr := p.commit(ctx, event.SourceOffset-1, checkpoint); commitErr != nil {
				p.logger.Error("committing partial checkpoint failed", "error", commitErr)
			}
			return fmt.Errorf("ingesting row %d: %w", event.SourceOffset, err)
		}
	}
	return p.commit(ctx, events[len(events)-1].SourceOffset, checkpoint)
}

func (p *Poller) commit(ctx context.Context, offset, previous int64) error {
	if offset <= previous {
		return nil
	}
	return p.checkpoints.Set(ctx, SourceRelational, offset)
}

func (p *Poller) fetch(ctx context.Context, checkpoint int64) ([]*models.Event, error) {
	rows, err := p.pool.Query(ctx, p.query, checkpoint, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("querying source: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		var (
			id        int64
			tenantID  int64
			orgID     *int64
			eventType string
			raw       []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &tenantID, &orgID, &eventType, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning source row: %w", err)
		}
		payload, err := models.ParsePayload(raw)
		if err != nil {
			p.logger.Error("source row has malformed payload, skipping",
				"id", id, "error", err)
			continue
		}
		event := &models.Event{
			EventID:      fmt.Sprintf("%s-%d", SourceRelational, id),
			SourceOffset: id,
			Source:       SourceRelational,
			TenantID:     tenantID,
			EventType:    eventType,
			OccurredAt:   createdAt,
			Payload:      payload,
		}
		if orgID != nil {
			event.OrgID = *orgID
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
