// Package dlq manages failed deliveries: backoff policy, the retry worker
// and the operator surface (manual retry, abandon, delete, stats).
package dlq

import (
	"math"
	"time"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// Policy computes retry schedules from the configured strategy.
type Policy struct {
	cfg config.RetryConfig
}

// NewPolicy creates a Policy.
func NewPolicy(cfg config.RetryConfig) *Policy {
	return &Policy{cfg: cfg}
}

// Strategy returns the configured strategy as a model value.
func (p *Policy) Strategy() models.RetryStrategy {
	if p.cfg.Strategy == string(models.RetryFixed) {
		return models.RetryFixed
	}
	return models.RetryExponential
}

// MaxRetries returns the retry cap, honoring the integration override.
func (p *Policy) MaxRetries(integrationRetryCount int) int {
	if integrationRetryCount > 0 {
		return integrationRetryCount
	}
	return p.cfg.MaxRetries
}

// NextRetryAt computes when attempt retryCount+1 becomes due. retryCount is
// the number of retries already performed. Exponential delay is
// base * multiplier^retryCount, capped; fixed is a constant offset.
func (p *Policy) NextRetryAt(now time.Time, strategy models.RetryStrategy, retryCount int) time.Time {
	if strategy == models.RetryFixed {
		return now.Add(p.cfg.FixedOffset)
	}

	delay := time.Duration(float64(p.cfg.Base) * math.Pow(p.cfg.Multiplier, float64(retryCount)))
	if delay > p.cfg.Cap || delay <= 0 {
		delay = p.cfg.Cap
	}
	return now.Add(delay)
}
