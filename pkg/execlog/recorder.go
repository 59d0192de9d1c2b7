// Package execlog builds and persists the unified execution log: one record
// per message per integration, with an ordered step timeline. Steps carry the
// idle gap since the previous step so queue wait and scheduling delay are
// visible in the timeline, not just processing time.
package execlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// Recorder creates traces and persists them.
type Recorder struct {
	store     store.ExecLogStore
	redaction config.RedactionConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(st store.ExecLogStore, redaction config.RedactionConfig, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: st, redaction: redaction, logger: logger, now: time.Now}
}

// Begin opens a trace. The seed must carry TraceID, MessageID, Direction,
// TriggerType, IntegrationID and TenantID; timing and status are managed by
// the trace.
func (r *Recorder) Begin(seed models.ExecutionLog) *Trace {
	seed.StartedAt = r.now()
	seed.Status = models.ExecPending
	return &Trace{rec: r, log: seed, lastEnd: seed.StartedAt}
}

// Trace accumulates the step timeline for one execution. Safe for use from a
// single goroutine per attempt; the mutex guards the rare concurrent reader
// (panic recovery finalizing a trace another helper still holds).
type Trace struct {
	rec     *Recorder
	mu      sync.Mutex
	log     models.ExecutionLog
	lastEnd time.Time
}

// Step runs fn as one named step, recording duration, idle gap and outcome.
// fn's metadata is attached even on failure. The error is returned unchanged.
func (t *Trace) Step(name string, fn func() (map[string]any, error)) error {
	start := t.rec.now()
	metadata, err := fn()
	end := t.rec.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	step := models.Step{
		Name:       name,
		Timestamp:  start,
		DurationMs: end.Sub(start).Milliseconds(),
		Status:     models.StepSuccess,
		Metadata:   metadata,
		GapMs:      start.Sub(t.lastEnd).Milliseconds(),
	}
	if step.GapMs < 0 {
		step.GapMs = 0
	}
	if err != nil {
		step.Status = models.StepFailed
		step.Error = err.Error()
	}
	t.log.Steps = append(t.log.Steps, step)
	t.lastEnd = end
	return err
}

// SetRequest attaches the outbound request snapshot, redacted and truncated.
func (t *Trace) SetRequest(url, method string, headers map[string]string, body []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log.Request = &models.RequestSnapshot{
		URL:     url,
		Method:  method,
		Headers: RedactHeaders(t.rec.redaction, headers),
		Body:    TruncateBody(t.rec.redaction, body),
	}
}

// SetResponse attaches the target's response snapshot, redacted and truncated.
func (t *Trace) SetResponse(statusCode int, headers map[string]string, body []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log.Response = &models.ResponseSnapshot{
		StatusCode: statusCode,
		Headers:    RedactHeaders(t.rec.redaction, headers),
		Body:       TruncateBody(t.rec.redaction, body),
	}
}

// TraceID returns the trace identifier.
func (t *Trace) TraceID() string { return t.log.TraceID }

// Finish closes the trace with the final status and persists it. A nil err
// with a failed status records the status alone; persistence failures are
// logged, never propagated, so a logging outage cannot fail a delivery.
func (t *Trace) Finish(ctx context.Context, status models.ExecStatus, err error) {
	t.mu.Lock()
	now := t.rec.now()
	t.log.Status = status
	t.log.FinishedAt = &now
	t.log.DurationMs = now.Sub(t.log.StartedAt).Milliseconds()
	if err != nil {
		t.log.Error = err.Error()
	}
	snapshot := t.log
	snapshot.Steps = append([]models.Step(nil), t.log.Steps...)
	t.mu.Unlock()

	if saveErr := t.rec.store.Save(ctx, &snapshot); saveErr != nil {
		t.rec.logger.Error("persisting execution log",
			"traceId", snapshot.TraceID, "error", saveErr)
	}
}
