package dlq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

func TestStrategy(t *testing.T) {
	assert.Equal(t, models.RetryExponential, NewPolicy(config.DefaultRetryConfig()).Strategy())

	cfg := config.DefaultRetryConfig()
	cfg.Strategy = "fixed"
	assert.Equal(t, models.RetryFixed, NewPolicy(cfg).Strategy())

	cfg.Strategy = "garbage"
	assert.Equal(t, models.RetryExponential, NewPolicy(cfg).Strategy(), "unknown strategy falls back to exponential")
}

func TestMaxRetries(t *testing.T) {
	p := NewPolicy(config.DefaultRetryConfig())
	assert.Equal(t, 5, p.MaxRetries(0))
	assert.Equal(t, 12, p.MaxRetries(12), "integration override wins")
	assert.Equal(t, 5, p.MaxRetries(-1))
}

func TestExponentialBackoff(t *testing.T) {
	p := NewPolicy(config.DefaultRetryConfig())
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		retryCount int
		delay      time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{5, 32 * time.Second},
		{9, 512 * time.Second},
		{10, 15 * time.Minute}, // 1024s exceeds the cap
		{60, 15 * time.Minute},
	}
	for _, tt := range tests {
		got := p.NextRetryAt(now, models.RetryExponential, tt.retryCount)
		assert.Equal(t, now.Add(tt.delay), got, "retryCount=%d", tt.retryCount)
	}
}

func TestExponentialOverflowCapped(t *testing.T) {
	p := NewPolicy(config.DefaultRetryConfig())
	now := time.Now()
	// Large enough that base*mult^n overflows duration arithmetic.
	got := p.NextRetryAt(now, models.RetryExponential, 500)
	assert.Equal(t, now.Add(15*time.Minute), got)
}

func TestFixedBackoff(t *testing.T) {
	cfg := config.DefaultRetryConfig()
	cfg.Strategy = "fixed"
	p := NewPolicy(cfg)
	now := time.Now()

	for _, retryCount := range []int{0, 3, 50} {
		got := p.NextRetryAt(now, models.RetryFixed, retryCount)
		assert.Equal(t, now.Add(time.Minute), got, "retryCount=%d", retryCount)
	}
}
