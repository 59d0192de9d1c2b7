package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/dlq"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

const defaultListLimit = 50

// listDLQ handles GET /api/v1/dlq with optional tenantId, integrationId,
// status, category and limit query filters.
func (s *Server) listDLQ(c *gin.Context) {
	f := store.DLQFilter{
		IntegrationID: c.Query("integrationId"),
		Status:        models.DLQStatus(c.Query("status")),
		Category:      models.ErrorCategory(c.Query("category")),
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
	if f.Category != "" && !f.Category.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown error category"})
		return
	}

	entries, err := s.dlq.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) dlqStats(c *gin.Context) {
	stats, err := s.dlq.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getDLQ(c *gin.Context) {
	entry, err := s.dlq.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.dlqError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// retryDLQ handles POST /api/v1/dlq/:id/retry: an immediate manual retry
// through the delivery engine, synchronously.
func (s *Server) retryDLQ(c *gin.Context) {
	entry, err := s.dlq.Retry(c.Request.Context(), c.Param("id"), s.engine)
	if err != nil {
		s.dlqError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

type abandonRequest struct {
	By    string `json:"by"`
	Notes string `json:"notes"`
}

func (s *Server) abandonDLQ(c *gin.Context) {
	var req abandonRequest
	// Body is optional; an empty abandon is still an abandon.
	_ = c.ShouldBindJSON(&req)

	entry, err := s.dlq.Abandon(c.Request.Context(), c.Param("id"), req.By, req.Notes)
	if err != nil {
		s.dlqError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) deleteDLQ(c *gin.Context) {
	if err := s.dlq.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.dlqError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type bulkRequest struct {
	IDs   []string `json:"ids" binding:"required,min=1"`
	By    string   `json:"by"`
	Notes string   `json:"notes"`
}

func (s *Server) bulkRetryDLQ(c *gin.Context) {
	s.bulkDLQ(c, func(req *bulkRequest) (*dlq.BulkOutcome, error) {
		return s.dlq.BulkRetry(c.Request.Context(), req.IDs, s.engine)
	})
}

func (s *Server) bulkAbandonDLQ(c *gin.Context) {
	s.bulkDLQ(c, func(req *bulkRequest) (*dlq.BulkOutcome, error) {
		return s.dlq.BulkAbandon(c.Request.Context(), req.IDs, req.By, req.Notes)
	})
}

func (s *Server) bulkDeleteDLQ(c *gin.Context) {
	s.bulkDLQ(c, func(req *bulkRequest) (*dlq.BulkOutcome, error) {
		return s.dlq.BulkDelete(c.Request.Context(), req.IDs)
	})
}

func (s *Server) bulkDLQ(c *gin.Context, op func(req *bulkRequest) (*dlq.BulkOutcome, error)) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome, err := op(&req)
	if err != nil {
		if errors.Is(err, dlq.ErrBulkLimit) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) dlqError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "dlq entry not found"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "entry is not in a retriable state"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
