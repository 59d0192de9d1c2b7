// Package audit implements the event audit ledger: the exactly-once gate
// between at-least-once sources and the delivery pipeline, plus the watchdog
// that surfaces abandoned claims.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// Ledger wraps the audit store with ingest policy: payload bounding, summary
// extraction and trace id assignment.
type Ledger struct {
	store  store.AuditStore
	cfg    config.AuditConfig
	logger *slog.Logger
}

// NewLedger creates a Ledger.
func NewLedger(st store.AuditStore, cfg config.AuditConfig, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: st, cfg: cfg, logger: logger}
}

// Ingest records an event as PENDING. Returns false for a duplicate
// (source, offset), which callers treat as success: the source may ack.
// Oversized payloads keep only the summary fields.
func (l *Ledger) Ingest(ctx context.Context, event *models.Event) (bool, error) {
	if event.TraceID == "" {
		event.TraceID = uuid.NewString()
	}

	audit := &models.EventAudit{
		EventID:        event.EventID,
		SourceOffset:   event.SourceOffset,
		Source:         event.Source,
		TenantID:       event.TenantID,
		EventType:      event.EventType,
		TraceID:        event.TraceID,
		ReceivedAt:     time.Now(),
		Status:         models.AuditPending,
		PayloadSummary: l.summarize(event.Payload),
		PayloadFull:    event.Payload,
	}

	raw := event.Payload.JSON()
	if l.cfg.MaxPayloadSize > 0 && len(raw) > l.cfg.MaxPayloadSize {
		audit.PayloadFull = nil
		audit.SkipCategory = "oversized_payload"
		l.logger.Warn("payload exceeds size bound, storing summary only",
			"eventId", event.EventID, "source", event.Source, "bytes", len(raw))
	}

	inserted, err := l.store.Ingest(ctx, audit)
	if err != nil {
		return false, fmt.Errorf("ingesting event %s/%d: %w", event.Source, event.SourceOffset, err)
	}
	if !inserted {
		observability.EventsDuplicate.WithLabelValues(event.Source).Inc()
		return false, nil
	}
	observability.EventsIngested.WithLabelValues(event.Source).Inc()
	return true, nil
}

// Claim moves up to limit PENDING rows to PROCESSING for this pod.
func (l *Ledger) Claim(ctx context.Context, claimedBy string, limit int) ([]*models.EventAudit, error) {
	return l.store.ClaimNext(ctx, claimedBy, limit)
}

// Finalize moves a PROCESSING row to its terminal status.
func (l *Ledger) Finalize(ctx context.Context, source string, offset int64, status models.AuditStatus, skipCategory string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}
	return l.store.Finalize(ctx, source, offset, status, skipCategory)
}

// RecoverOwn flips this pod's leftover PROCESSING rows to STUCK. Called once
// at startup so a crash-restart never strands claims under a live owner name.
func (l *Ledger) RecoverOwn(ctx context.Context, claimedBy string) error {
	n, err := l.store.MarkStuckByOwner(ctx, claimedBy)
	if err != nil {
		return fmt.Errorf("recovering claims for %s: %w", claimedBy, err)
	}
	if n > 0 {
		l.logger.Warn("recovered abandoned claims from previous run",
			"claimedBy", claimedBy, "count", n)
	}
	return nil
}

// Release puts a STUCK row back to PENDING. Operator action.
func (l *Ledger) Release(ctx context.Context, source string, offset int64) error {
	return l.store.ReleaseStuck(ctx, source, offset)
}

// Get reads one audit row.
func (l *Ledger) Get(ctx context.Context, source string, offset int64) (*models.EventAudit, error) {
	return l.store.Get(ctx, source, offset)
}

// summarize extracts the allow-listed top-level fields.
func (l *Ledger) summarize(payload models.Payload) models.Payload {
	if len(payload) == 0 {
		return nil
	}
	out := models.Payload{}
	for _, field := range l.cfg.SummaryFields {
		if v, ok := payload[field]; ok {
			out[field] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
