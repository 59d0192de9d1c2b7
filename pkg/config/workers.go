package config

import "time"

// WorkersConfig controls the long-lived background loops: delivery, DLQ
// retry, scheduler, watchdog and the source pump.
type WorkersConfig struct {
	// DeliveryWorkerCount is the number of delivery goroutines per pod.
	DeliveryWorkerCount int

	// DeliveryBatchSize bounds how many audit rows one tick claims.
	DeliveryBatchSize int

	// PollInterval is the base delivery poll interval; jitter is added to
	// avoid replicas ticking in lockstep.
	PollInterval       time.Duration
	PollIntervalJitter time.Duration

	// RetryInterval is the DLQ worker period.
	RetryInterval  time.Duration
	RetryBatchSize int

	// SchedulerInterval is the scheduled-delivery worker period. Entries
	// more than one period late are marked OVERDUE.
	SchedulerInterval  time.Duration
	SchedulerBatchSize int

	// WatchdogInterval is the stuck-row scan period.
	WatchdogInterval time.Duration

	// SourceBatchSize bounds one pull from a source adapter.
	SourceBatchSize int

	// GracefulShutdownTimeout is the max wait for in-flight attempts to
	// finish their current step during shutdown.
	GracefulShutdownTimeout time.Duration
}

// DefaultWorkersConfig returns the built-in worker defaults.
func DefaultWorkersConfig() WorkersConfig {
	return WorkersConfig{
		DeliveryWorkerCount:     4,
		DeliveryBatchSize:       25,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      250 * time.Millisecond,
		RetryInterval:           1 * time.Minute,
		RetryBatchSize:          50,
		SchedulerInterval:       1 * time.Minute,
		SchedulerBatchSize:      100,
		WatchdogInterval:        1 * time.Minute,
		SourceBatchSize:         100,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

func (c *WorkersConfig) applyEnv() {
	c.DeliveryWorkerCount = getEnvInt("DELIVERY_WORKER_COUNT", c.DeliveryWorkerCount)
	c.DeliveryBatchSize = getEnvInt("DELIVERY_BATCH_SIZE", c.DeliveryBatchSize)
	c.RetryInterval = getEnvDuration("DLQ_RETRY_INTERVAL", c.RetryInterval)
	c.SchedulerInterval = getEnvDuration("SCHEDULER_INTERVAL", c.SchedulerInterval)
	c.WatchdogInterval = getEnvDuration("WATCHDOG_INTERVAL", c.WatchdogInterval)
	c.SourceBatchSize = getEnvInt("SOURCE_BATCH_SIZE", c.SourceBatchSize)
}
