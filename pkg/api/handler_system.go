package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// listSystemConfig handles GET /api/v1/system-config.
func (s *Server) listSystemConfig(c *gin.Context) {
	entries, err := s.systemConfig.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (s *Server) getSystemConfig(c *gin.Context) {
	sc, err := s.systemConfig.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		s.systemConfigError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

// putSystemConfig handles PUT /api/v1/system-config/:key. The body is the
// value document, stored verbatim; upserts.
func (s *Server) putSystemConfig(c *gin.Context) {
	var value models.Payload
	if err := c.ShouldBindJSON(&value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON object"})
		return
	}
	sc, err := s.systemConfig.Set(c.Request.Context(), c.Param("key"), value)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (s *Server) deleteSystemConfig(c *gin.Context) {
	if err := s.systemConfig.Delete(c.Request.Context(), c.Param("key")); err != nil {
		s.systemConfigError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("key")})
}

func (s *Server) systemConfigError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "system config key not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
