// Package api exposes the gateway's HTTP surface: the inbound proxy, the
// operator endpoints (DLQ, execution logs, event injection) and the health
// and metrics probes.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/audit"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/database"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/delivery"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/dlq"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
)

// Probe reports whether a background component is alive.
type Probe func() bool

// WorkerProbes holds the liveness probes surfaced by the health endpoint.
// Any nil probe reports critical: a worker that was never started is as dead
// as one that stopped.
type WorkerProbes struct {
	Delivery  Probe
	Retry     Probe
	Scheduler Probe
	Watchdog  Probe
}

// Server wires the HTTP handlers to the gateway's services.
type Server struct {
	cfg          *config.Config
	db           *database.Client
	integrations store.IntegrationStore
	execLogs     store.ExecLogStore
	systemConfig store.SystemConfigStore
	ledger       *audit.Ledger
	dlq          *dlq.Service
	engine       *delivery.Engine
	workers      WorkerProbes
	source       Probe
	logger       *slog.Logger

	httpSrv *http.Server
}

// NewServer creates a Server. db may be nil when running on the in-memory
// stores; the health endpoint then skips the store ping.
func NewServer(cfg *config.Config, db *database.Client, stores *store.Stores, ledger *audit.Ledger, dlqSvc *dlq.Service, engine *delivery.Engine, workers WorkerProbes, source Probe, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:          cfg,
		db:           db,
		integrations: stores.Integrations,
		execLogs:     stores.ExecLogs,
		systemConfig: stores.SystemConfig,
		ledger:       ledger,
		dlq:          dlqSvc,
		engine:       engine,
		workers:      workers,
		source:       source,
		logger:       logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")

	// The proxy authenticates per the integration's inboundAuth, not the
	// operator key.
	v1.POST("/integrations/:type", s.inboundProxy)

	op := v1.Group("", s.apiKeyAuth())
	op.POST("/events/test-notification-queue", s.injectEvents)
	op.POST("/events/:source/:offset/release", s.releaseStuck)

	op.GET("/dlq", s.listDLQ)
	op.GET("/dlq/stats", s.dlqStats)
	op.GET("/dlq/:id", s.getDLQ)
	op.POST("/dlq/:id/retry", s.retryDLQ)
	op.POST("/dlq/:id/abandon", s.abandonDLQ)
	op.DELETE("/dlq/:id", s.deleteDLQ)
	op.POST("/dlq/bulk/retry", s.bulkRetryDLQ)
	op.POST("/dlq/bulk/abandon", s.bulkAbandonDLQ)
	op.POST("/dlq/bulk/delete", s.bulkDeleteDLQ)

	op.GET("/execution-logs", s.listExecLogs)
	op.GET("/execution-logs/:traceId", s.getExecLog)
	op.GET("/execution-logs/:traceId/timeline", s.execLogTimeline)

	op.GET("/system-config", s.listSystemConfig)
	op.GET("/system-config/:key", s.getSystemConfig)
	op.PUT("/system-config/:key", s.putSystemConfig)
	op.DELETE("/system-config/:key", s.deleteSystemConfig)

	return r
}

// Start begins serving on the configured port. Blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http server listening", "port", s.cfg.Port)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
