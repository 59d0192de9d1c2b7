package dlq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// BulkLimit caps how many ids a bulk operation accepts.
const BulkLimit = 100

// Redeliverer re-runs the delivery for a dead-lettered payload. Implemented
// by the delivery engine; the indirection keeps this package free of the
// pipeline's dependencies.
type Redeliverer interface {
	Redeliver(ctx context.Context, entry *models.DLQEntry) error
}

// Service owns DLQ entry lifecycle and the operator surface.
type Service struct {
	store  store.DLQStore
	policy *Policy
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(st store.DLQStore, policy *Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, policy: policy, logger: logger}
}

// Record dead-letters a retriable failure. The caller has already decided
// retriability; maxRetries honors the integration's retryCount override.
func (s *Service) Record(ctx context.Context, entry *models.DLQEntry) error {
	now := time.Now()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Status = models.DLQPending
	entry.RetryStrategy = s.policy.Strategy()
	entry.MaxRetries = s.policy.MaxRetries(entry.MaxRetries)
	entry.NextRetryAt = s.policy.NextRetryAt(now, entry.RetryStrategy, entry.RetryCount)
	entry.CreatedAt = now

	if err := s.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("dead-lettering %s: %w", entry.TraceID, err)
	}
	s.logger.Info("delivery dead-lettered",
		"dlqId", entry.ID,
		"integrationId", entry.IntegrationID,
		"category", entry.Error.Category,
		"nextRetryAt", entry.NextRetryAt)
	return nil
}

// CompleteRetry applies the outcome of one retry attempt to a claimed
// (retrying) entry: resolved on success, back to pending with the next
// backoff on failure, abandoned when the retry budget is spent.
func (s *Service) CompleteRetry(ctx context.Context, entry *models.DLQEntry, attemptErr error) error {
	now := time.Now()
	entry.LastAttemptAt = &now
	entry.RetryCount++

	if attemptErr == nil {
		entry.Status = models.DLQResolved
		entry.Resolution = &models.Resolution{Method: "retry_succeeded", At: now}
		return s.store.Update(ctx, entry)
	}

	entry.Error = models.ErrorDetail{
		Message:    attemptErr.Error(),
		Category:   models.CategoryOf(attemptErr),
		StatusCode: models.StatusCodeOf(attemptErr),
	}

	if entry.RetryCount >= entry.MaxRetries || !entry.Error.Category.Retriable() {
		entry.Status = models.DLQAbandoned
		entry.Resolution = &models.Resolution{Method: "max_retries_exceeded", At: now}
		s.logger.Warn("dlq entry abandoned",
			"dlqId", entry.ID,
			"integrationId", entry.IntegrationID,
			"retryCount", entry.RetryCount,
			"category", entry.Error.Category)
		return s.store.Update(ctx, entry)
	}

	entry.Status = models.DLQPending
	entry.NextRetryAt = s.policy.NextRetryAt(now, entry.RetryStrategy, entry.RetryCount)
	return s.store.Update(ctx, entry)
}

// Retry claims one entry for an immediate manual retry and runs it.
func (s *Service) Retry(ctx context.Context, id string, redeliverer Redeliverer) (*models.DLQEntry, error) {
	entry, err := s.store.Claim(ctx, id, time.Now())
	if err != nil {
		return nil, err
	}
	attemptErr := redeliverer.Redeliver(ctx, entry)
	if err := s.CompleteRetry(ctx, entry, attemptErr); err != nil {
		return nil, err
	}
	return entry, nil
}

// Abandon moves a pending or retrying entry to abandoned.
func (s *Service) Abandon(ctx context.Context, id, by, notes string) (*models.DLQEntry, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status.Terminal() {
		return nil, store.ErrConflict
	}
	entry.Status = models.DLQAbandoned
	entry.Resolution = &models.Resolution{Method: "manual_abandon", At: time.Now(), By: by, Notes: notes}
	if err := s.store.Update(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes an entry outright.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Get reads one entry.
func (s *Service) Get(ctx context.Context, id string) (*models.DLQEntry, error) {
	return s.store.Get(ctx, id)
}

// List returns entries matching the filter.
func (s *Service) List(ctx context.Context, f store.DLQFilter) ([]*models.DLQEntry, error) {
	return s.store.List(ctx, f)
}

// Stats returns entry counts by status and refreshes the depth gauge.
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for status, n := range stats {
		observability.DLQDepth.WithLabelValues(status).Set(float64(n))
	}
	return stats, nil
}

// BulkOutcome reports per-id results of a bulk operation.
type BulkOutcome struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// ErrBulkLimit rejects oversized bulk requests.
var ErrBulkLimit = fmt.Errorf("bulk operations accept at most %d ids", BulkLimit)

// BulkRetry retries each id in order. Individual failures do not stop the
// batch.
func (s *Service) BulkRetry(ctx context.Context, ids []string, redeliverer Redeliverer) (*BulkOutcome, error) {
	return s.bulk(ids, func(id string) error {
		_, err := s.Retry(ctx, id, redeliverer)
		return err
	})
}

// BulkAbandon abandons each id in order.
func (s *Service) BulkAbandon(ctx context.Context, ids []string, by, notes string) (*BulkOutcome, error) {
	return s.bulk(ids, func(id string) error {
		_, err := s.Abandon(ctx, id, by, notes)
		return err
	})
}

// BulkDelete deletes each id in order.
func (s *Service) BulkDelete(ctx context.Context, ids []string) (*BulkOutcome, error) {
	return s.bulk(ids, func(id string) error {
		return s.Delete(ctx, id)
	})
}

func (s *Service) bulk(ids []string, op func(id string) error) (*BulkOutcome, error) {
	if len(ids) > BulkLimit {
		return nil, ErrBulkLimit
	}
	out := &BulkOutcome{}
	for _, id := range ids {
		if err := op(id); err != nil {
			if out.Failed == nil {
				out.Failed = make(map[string]string)
			}
			out.Failed[id] = bulkErrString(err)
			continue
		}
		out.Succeeded = append(out.Succeeded, id)
	}
	return out, nil
}

func bulkErrString(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "not found"
	case errors.Is(err, store.ErrConflict):
		return "not in a retriable state"
	default:
		return err.Error()
	}
}
