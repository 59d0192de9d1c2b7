package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	healthOK       = "ok"
	healthDegraded = "degraded"
	healthCritical = "critical"
)

// health handles GET /health. Critical (503) when the store is unreachable
// or any worker loop is dead; degraded when only the event source is down,
// since the HTTP surface still works without it.
func (s *Server) health(c *gin.Context) {
	status := healthOK

	storeStatus := healthOK
	if s.db != nil {
		if err := s.db.Health(c.Request.Context()); err != nil {
			storeStatus = healthCritical
			status = healthCritical
		}
	}

	workers := map[string]string{
		"delivery":  probeStatus(s.workers.Delivery),
		"retry":     probeStatus(s.workers.Retry),
		"scheduler": probeStatus(s.workers.Scheduler),
		"watchdog":  probeStatus(s.workers.Watchdog),
	}
	for _, w := range workers {
		if w != healthOK {
			status = healthCritical
		}
	}

	sourceStatus := healthOK
	if s.source != nil && !s.source() {
		sourceStatus = healthDegraded
		if status == healthOK {
			status = healthDegraded
		}
	}

	httpStatus := http.StatusOK
	if status == healthCritical {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{
		"status": status,
		"components": gin.H{
			"store":   storeStatus,
			"source":  sourceStatus,
			"workers": workers,
		},
	})
}

func probeStatus(p Probe) string {
	if p == nil || !p() {
		return healthCritical
	}
	return healthOK
}
