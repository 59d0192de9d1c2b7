package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// JobRunner drives SCHEDULED integrations: on each tick it runs the data
// source query for every integration whose interval has elapsed and feeds the
// fetched records through the delivery pipeline.
type JobRunner struct {
	integrations store.IntegrationStore
	engine       *Engine

	// sourcePool serves sql data sources; nil disables them.
	sourcePool *pgxpool.Pool

	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	lastRun map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewJobRunner creates a JobRunner.
func NewJobRunner(integrations store.IntegrationStore, engine *Engine, sourcePool *pgxpool.Pool, workers config.WorkersConfig, logger *slog.Logger) *JobRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRunner{
		integrations: integrations,
		engine:       engine,
		sourcePool:   sourcePool,
		interval:     workers.SchedulerInterval,
		logger:       logger,
		lastRun:      make(map[string]time.Time),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the job loop.
func (r *JobRunner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Stop signals the loop and waits for the in-flight job to finish.
func (r *JobRunner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *JobRunner) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				r.logger.Error("job runner tick failed", "error", err)
			}
		}
	}
}

func (r *JobRunner) tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.WorkerTickDuration.WithLabelValues("jobs").Observe(time.Since(start).Seconds())
	}()

	jobs, err := r.integrations.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("listing scheduled integrations: %w", err)
	}

	now := time.Now()
	for _, ic := range jobs {
		if ic.DataSource == nil {
			continue
		}
		if !r.due(ic, now) {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return nil
		default:
		}
		r.runJob(ctx, ic)
	}
	return nil
}

// due reports whether the job's interval has elapsed. Jobs with no interval
// run every tick.
func (r *JobRunner) due(ic *models.IntegrationConfig, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last := r.lastRun[ic.ID]
	interval := time.Duration(ic.DataSource.IntervalMs) * time.Millisecond
	if now.Sub(last) < interval {
		return false
	}
	r.lastRun[ic.ID] = now
	return true
}

// runJob fetches the batch and delivers each record as its own attempt.
// The fetch gets its own trace so data-source failures are visible in the
// execution log.
func (r *JobRunner) runJob(ctx context.Context, ic *models.IntegrationConfig) {
	traceID := uuid.NewString()
	trace := r.engine.recorder.Begin(models.ExecutionLog{
		TraceID:       traceID,
		MessageID:     traceID,
		Direction:     models.DirectionScheduled,
		TriggerType:   models.TriggerSchedule,
		IntegrationID: ic.ID,
		TenantID:      ic.TenantID,
	})

	var records []models.Payload
	if err := trace.Step(models.StepFetchData, func() (map[string]any, error) {
		batch, err := r.fetch(ctx, ic)
		if err != nil {
			return nil, err
		}
		records = batch
		return map[string]any{"kind": ic.DataSource.Kind, "records": len(batch)}, nil
	}); err != nil {
		trace.Finish(ctx, models.ExecFailed, err)
		r.logger.Error("scheduled job fetch failed",
			"integrationId", ic.ID, "error", err)
		return
	}
	trace.Finish(ctx, models.ExecSuccess, nil)

	for i, record := range records {
		err := r.engine.Deliver(ctx, &Attempt{
			Integration: ic,
			TraceID:     uuid.NewString(),
			MessageID:   fmt.Sprintf("%s-%d", traceID, i),
			TenantID:    ic.TenantID,
			Payload:     record,
			Trigger:     models.TriggerSchedule,
		})
		if err != nil {
			r.logger.Warn("scheduled job delivery failed",
				"integrationId", ic.ID, "record", i, "error", err)
		}
	}
}

func (r *JobRunner) fetch(ctx context.Context, ic *models.IntegrationConfig) ([]models.Payload, error) {
	ds := ic.DataSource
	switch ds.Kind {
	case "sql":
		if r.sourcePool == nil {
			return nil, models.NewCategorizedError(models.CategoryValidationError,
				fmt.Errorf("sql data source configured but no source database"))
		}
		return r.fetchSQL(ctx, ic)
	case "api":
		return r.fetchAPI(ctx, ic)
	default:
		return nil, models.NewCategorizedError(models.CategoryValidationError,
			fmt.Errorf("unknown data source kind %q", ds.Kind))
	}
}

func (r *JobRunner) fetchSQL(ctx context.Context, ic *models.IntegrationConfig) ([]models.Payload, error) {
	query := substituteTemplate(ic.DataSource.Query, ic)
	rows, err := r.sourcePool.Query(ctx, query)
	if err != nil {
		return nil, models.NewCategorizedError(models.CategoryDataError,
			fmt.Errorf("data source query: %w", err))
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []models.Payload
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, models.NewCategorizedError(models.CategoryDataError, err)
		}
		record := models.Payload{}
		for i, fd := range fields {
			record[fd.Name] = values[i]
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (r *JobRunner) fetchAPI(ctx context.Context, ic *models.IntegrationConfig) ([]models.Payload, error) {
	ds := ic.DataSource
	url := substituteTemplate(ds.URL, ic)
	method := ds.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, models.NewCategorizedError(models.CategoryValidationError, err)
	}
	resp, err := r.engine.httpClient.Do(req)
	if err != nil {
		return nil, classify(0, nil, err, nil)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, models.NewCategorizedError(models.CategoryNetwork, err)
	}
	if err := classify(resp.StatusCode, body, nil, nil); err != nil {
		return nil, err
	}
	return parseRecords(body)
}

// parseRecords accepts either a JSON array of objects or a single object.
func parseRecords(body []byte) ([]models.Payload, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var arr []models.Payload
		if err := json.Unmarshal([]byte(trimmed), &arr); err != nil {
			return nil, models.NewCategorizedError(models.CategoryDataError,
				fmt.Errorf("decoding data source response: %w", err))
		}
		return arr, nil
	}
	record, err := models.ParsePayload(body)
	if err != nil {
		return nil, models.NewCategorizedError(models.CategoryDataError,
			fmt.Errorf("decoding data source response: %w", err))
	}
	return []models.Payload{record}, nil
}

var templateVar = regexp.MustCompile(`\{\{\s*(config\.\w+|env\.\w+|date\.today\(\))\s*\}\}`)

// substituteTemplate resolves {{config.*}}, {{env.*}} and {{date.today()}}
// variables in data source queries and URLs.
func substituteTemplate(s string, ic *models.IntegrationConfig) string {
	return templateVar.ReplaceAllStringFunc(s, func(match string) string {
		inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}"))
		switch {
		case inner == "date.today()":
			return time.Now().Format("2006-01-02")
		case strings.HasPrefix(inner, "env."):
			return os.Getenv(strings.TrimPrefix(inner, "env."))
		case strings.HasPrefix(inner, "config."):
			return configField(strings.TrimPrefix(inner, "config."), ic)
		default:
			return match
		}
	})
}

func configField(name string, ic *models.IntegrationConfig) string {
	switch name {
	case "tenantId":
		return fmt.Sprint(ic.TenantID)
	case "integrationId", "id":
		return ic.ID
	case "name":
		return ic.Name
	default:
		return ""
	}
}
