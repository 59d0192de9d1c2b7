// Package ratelimit implements the per-(integration, tenant) sliding-window
// rate limiter. The window slides when it expires: the first request after
// windowEnd opens a fresh window anchored at its own arrival time. Denied
// attempts are never counted, so a saturated integration recovers exactly at
// windowEnd rather than pushing its own reset forward.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/observability"
)

// Limiter answers whether one delivery attempt may proceed, atomically
// counting it when allowed.
type Limiter interface {
	// CheckAndIncrement applies the integration's rate limit spec to one
	// attempt. A disabled spec always allows.
	CheckAndIncrement(ctx context.Context, integrationID string, tenantID int64, spec models.RateLimitSpec) (models.RateLimitDecision, error)
}

func allowAll() models.RateLimitDecision {
	return models.RateLimitDecision{Allowed: true, Remaining: -1}
}

func recordDenial(integrationID string) {
	observability.RateLimitDenials.WithLabelValues(integrationID).Inc()
}

type memoryKey struct {
	integrationID string
	tenantID      int64
}

// MemoryLimiter is a process-local limiter for single-instance deployments
// and tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[memoryKey]*models.RateLimitWindow
	now     func() time.Time
}

// NewMemoryLimiter creates a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[memoryKey]*models.RateLimitWindow),
		now:     time.Now,
	}
}

// CheckAndIncrement implements Limiter.
func (l *MemoryLimiter) CheckAndIncrement(_ context.Context, integrationID string, tenantID int64, spec models.RateLimitSpec) (models.RateLimitDecision, error) {
	if !spec.Enabled {
		return allowAll(), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := memoryKey{integrationID, tenantID}
	w := l.windows[key]
	if w == nil || !now.Before(w.WindowEnd) {
		w = &models.RateLimitWindow{
			IntegrationID: integrationID,
			TenantID:      tenantID,
			WindowStart:   now,
			WindowEnd:     now.Add(time.Duration(spec.WindowSeconds) * time.Second),
		}
		l.windows[key] = w
	}

	if w.RequestCount >= spec.MaxRequests {
		recordDenial(integrationID)
		return models.RateLimitDecision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    w.WindowEnd,
			RetryAfter: w.WindowEnd.Sub(now),
		}, nil
	}

	w.RequestCount++
	return models.RateLimitDecision{
		Allowed:   true,
		Remaining: spec.MaxRequests - w.RequestCount,
		ResetAt:   w.WindowEnd,
	}, nil
}
