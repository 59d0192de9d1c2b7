package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// PostgresLimiter backs the sliding window with the rate_limits table when no
// Redis is configured. The row is read under FOR UPDATE so concurrent workers
// serialize on the (integration, tenant) key; a denied attempt leaves the row
// untouched.
type PostgresLimiter struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresLimiter creates a PostgresLimiter.
func NewPostgresLimiter(pool *pgxpool.Pool) *PostgresLimiter {
	return &PostgresLimiter{pool: pool, now: time.Now}
}

// CheckAndIncrement implements Limiter.
func (l *PostgresLimiter) CheckAndIncrement(ctx context.Context, integrationID string, tenantID int64, spec models.RateLimitSpec) (models.RateLimitDecision, error) {
	if !spec.Enabled {
		return allowAll(), nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return models.RateLimitDecision{}, fmt.Errorf("beginning rate limit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := l.now()
	var windowEnd time.Time
	var count int
	err = tx.QueryRow(ctx, `
		SELECT window_end, request_count FROM rate_limits
		WHERE integration_id = $1 AND tenant_id = $2
		FOR UPDATE`,
		integrationID, tenantID).Scan(&windowEnd, &count)
	fresh := errors.Is(err, pgx.ErrNoRows)
	if err != nil && !fresh {
		return models.RateLimitDecision{}, fmt.Errorf("reading rate limit window: %w", err)
	}

	if fresh || !now.Before(windowEnd) {
		windowEnd = now.Add(time.Duration(spec.WindowSeconds) * time.Second)
		count = 0
	}

	if count >= spec.MaxRequests {
		recordDenial(integrationID)
		return models.RateLimitDecision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    windowEnd,
			RetryAfter: windowEnd.Sub(now),
		}, nil
	}

	count++
	windowStart := windowEnd.Add(-time.Duration(spec.WindowSeconds) * time.Second)
	if _, err := tx.Exec(ctx, `
		INSERT INTO rate_limits (integration_id, tenant_id, window_start, window_end, request_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (integration_id, tenant_id) DO UPDATE SET
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			request_count = EXCLUDED.request_count`,
		integrationID, tenantID, windowStart, windowEnd, count); err != nil {
		return models.RateLimitDecision{}, fmt.Errorf("writing rate limit window: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.RateLimitDecision{}, fmt.Errorf("committing rate limit window: %w", err)
	}

	return models.RateLimitDecision{
		Allowed:   true,
		Remaining: spec.MaxRequests - count,
		ResetAt:   windowEnd,
	}, nil
}
