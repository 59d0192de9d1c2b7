package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// inboundProxy handles POST /api/v1/integrations/:type?orgId=N. The :type
// segment selects the integration by event type within the org's tenant. On
// success the caller gets the target's status and (optionally transformed)
// body; gateway-side failures map to 401/429/400 by category and 502
// otherwise, always with the correlating X-Request-Id.
func (s *Server) inboundProxy(c *gin.Context) {
	orgID, err := strconv.ParseInt(c.Query("orgId"), 10, 64)
	if err != nil || orgID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orgId query parameter is required"})
		return
	}

	ic, err := s.findInbound(c, orgID, c.Param("type"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no inbound integration for this type"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "integration lookup failed", "requestId": requestIDOf(c)})
		return
	}

	result, err := s.engine.Proxy(c.Request, ic, requestIDOf(c))
	if err != nil {
		s.proxyError(c, ic, err)
		return
	}

	for k, v := range result.Headers {
		c.Header(k, v)
	}
	c.Header(HeaderRequestID, requestIDOf(c))
	contentType := result.Headers["Content-Type"]
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(result.StatusCode, contentType, result.Body)
}

// findInbound resolves the INBOUND integration for (org, type). The listing
// already filters on active + event type; direction is ours to check.
func (s *Server) findInbound(c *gin.Context, orgID int64, eventType string) (*models.IntegrationConfig, error) {
	candidates, err := s.integrations.ListForTenantsAndEvent(c.Request.Context(), []int64{orgID}, eventType)
	if err != nil {
		return nil, err
	}
	for _, ic := range candidates {
		if ic.Direction == models.DirectionInbound {
			return ic, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Server) proxyError(c *gin.Context, ic *models.IntegrationConfig, err error) {
	requestID := requestIDOf(c)
	switch models.CategoryOf(err) {
	case models.CategoryAuthError:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "requestId": requestID})
	case models.CategoryRateLimit:
		c.Header("Retry-After", strconv.Itoa(ic.RateLimits.WindowSeconds))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "requestId": requestID})
	case models.CategoryValidationError:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "requestId": requestID})
	default:
		s.logger.Error("inbound proxy failed",
			"integrationId", ic.ID, "requestId", requestID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream delivery failed", "requestId": requestID})
	}
}

type injectRequest struct {
	TenantID   int64          `json:"tenantId" binding:"required"`
	OrgID      int64          `json:"orgId"`
	EventTypes []string       `json:"eventTypes" binding:"required,min=1"`
	Limit      int            `json:"limit"`
	Payload    models.Payload `json:"payload"`
}

// injectEvents handles POST /api/v1/events/test-notification-queue: pushes
// synthetic events through the audit ledger, one per event type per repeat.
// Offsets are nanosecond timestamps so injected rows never collide with a
// real source.
func (s *Server) injectEvents(c *gin.Context) {
	var req injectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 1
	}

	traceIDs := make([]string, 0, len(req.EventTypes)*req.Limit)
	for _, eventType := range req.EventTypes {
		for i := 0; i < req.Limit; i++ {
			event := &models.Event{
				EventID:      fmt.Sprintf("test-%s", uuid.NewString()),
				SourceOffset: time.Now().UnixNano(),
				Source:       "test",
				TenantID:     req.TenantID,
				OrgID:        req.OrgID,
				EventType:    eventType,
				OccurredAt:   time.Now(),
				Payload:      req.Payload,
			}
			if _, err := s.ledger.Ingest(c.Request.Context(), event); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":    err.Error(),
					"ingested": len(traceIDs),
				})
				return
			}
			traceIDs = append(traceIDs, event.TraceID)
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"ingested": len(traceIDs), "traceIds": traceIDs})
}

// releaseStuck handles POST /api/v1/events/:source/:offset/release: puts a
// STUCK audit row back to PENDING for re-claim.
func (s *Server) releaseStuck(c *gin.Context) {
	offset, err := strconv.ParseInt(c.Param("offset"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
		return
	}
	source := c.Param("source")
	if err := s.ledger.Release(c.Request.Context(), source, offset); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "audit row not found"})
		case errors.Is(err, store.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "row is not stuck"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"source": source, "sourceOffset": offset, "status": "PENDING"})
}
