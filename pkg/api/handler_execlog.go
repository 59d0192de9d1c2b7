package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// listExecLogs handles GET /api/v1/execution-logs with optional tenantId,
// integrationId, status and limit filters, newest first.
func (s *Server) listExecLogs(c *gin.Context) {
	f := store.ExecLogFilter{
		IntegrationID: c.Query("integrationId"),
		Status:        models.ExecStatus(c.Query("status")),
		Limit:         queryInt(c, "limit", defaultListLimit),
	}
	if v := c.Query("tenantId"); v != "" {
		tenantID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenantId must be an integer"})
			return
		}
		f.TenantID = tenantID
	}

	logs, err := s.execLogs.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

func (s *Server) getExecLog(c *gin.Context) {
	log, err := s.execLogs.Get(c.Request.Context(), c.Param("traceId"))
	if err != nil {
		s.execLogError(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

// execLogTimeline handles GET /api/v1/execution-logs/:traceId/timeline: the
// step sequence with per-step duration and the idle gap before each step,
// for latency triage without the full snapshots.
func (s *Server) execLogTimeline(c *gin.Context) {
	log, err := s.execLogs.Get(c.Request.Context(), c.Param("traceId"))
	if err != nil {
		s.execLogError(c, err)
		return
	}

	steps := make([]gin.H, 0, len(log.Steps))
	for _, step := range log.Steps {
		entry := gin.H{
			"name":       step.Name,
			"timestamp":  step.Timestamp,
			"durationMs": step.DurationMs,
			"gapMs":      step.GapMs,
			"status":     step.Status,
		}
		if step.Error != "" {
			entry["error"] = step.Error
		}
		steps = append(steps, entry)
	}
	c.JSON(http.StatusOK, gin.H{
		"traceId":    log.TraceID,
		"status":     log.Status,
		"startedAt":  log.StartedAt,
		"durationMs": log.DurationMs,
		"steps":      steps,
	})
}

func (s *Server) execLogError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution log not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
