// Package observability exposes the gateway's Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts events accepted into the audit ledger per source.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_ingested_total",
		Help: "Events ingested into the audit ledger.",
	}, []string{"source"})

	// EventsDuplicate counts at-least-once redeliveries rejected by the ledger.
	EventsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_duplicate_total",
		Help: "Duplicate events rejected by the audit ledger.",
	}, []string{"source"})

	// CheckpointGaps counts missing offsets detected between consecutive
	// source checkpoints.
	CheckpointGaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_checkpoint_gaps_total",
		Help: "Missing offsets detected in the event source stream.",
	}, []string{"source"})

	// DeliveryOutcomes counts finished delivery attempts by outcome category.
	DeliveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_delivery_outcomes_total",
		Help: "Delivery attempt outcomes, success or error category.",
	}, []string{"outcome"})

	// RateLimitDenials counts denied attempts per integration.
	RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rate_limit_denials_total",
		Help: "Delivery attempts denied by the sliding-window rate limiter.",
	}, []string{"integration_id"})

	// DLQDepth tracks dead-letter entries by status.
	DLQDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_dlq_depth",
		Help: "Dead-letter entries by status.",
	}, []string{"status"})

	// StuckEvents counts audit rows flipped to STUCK by the watchdog.
	StuckEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_stuck_events_total",
		Help: "Audit rows marked STUCK by the watchdog.",
	})

	// SchedulerFires counts scheduled deliveries fired, labelled by mode.
	SchedulerFires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_scheduler_fires_total",
		Help: "Scheduled deliveries fired.",
	}, []string{"mode"})

	// SchedulerOverdue counts entries found more than one period late.
	SchedulerOverdue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_scheduler_overdue_total",
		Help: "Scheduled deliveries marked OVERDUE before firing.",
	})

	// WorkerTickDuration observes one loop tick per worker kind.
	WorkerTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_worker_tick_seconds",
		Help:    "Duration of one worker loop tick.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})

	// TokenFetches counts credential fetches against token endpoints.
	TokenFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_token_fetches_total",
		Help: "OAuth2/custom token endpoint fetches.",
	}, []string{"integration_id", "result"})
)
