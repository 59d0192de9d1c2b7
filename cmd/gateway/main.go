// Integration gateway server: ingests events from the configured source,
// runs the delivery workers and serves the HTTP surface.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/api"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/audit"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/auth"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/config"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/database"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/delivery"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/dlq"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/execlog"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/match"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/ratelimit"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/sandbox"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/schedule"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/source"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/store"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/tenant"
	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/transform"
)

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local".
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "error", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	podID := resolvePodID()
	logger.Info("starting gateway", "podId", podID, "port", cfg.Port)

	ctx := context.Background()

	dbClient, err := database.NewClient(ctx, cfg.StoreURI)
	if err != nil {
		logger.Error("failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	logger.Info("connected to store, migrations applied")

	stores := store.NewPostgresStores(dbClient.Pool())

	// Startup crash recovery: claims left by a previous run of this pod are
	// stranded under a live owner name and the watchdog would wait the full
	// threshold for them.
	ledger := audit.NewLedger(stores.Audit, cfg.Audit, logger)
	if err := ledger.RecoverOwn(ctx, podID); err != nil {
		logger.Error("startup claim recovery failed", "error", err)
		// Non-fatal, the watchdog sweeps them eventually.
	}

	limiter, redisClient, err := buildLimiter(ctx, cfg, dbClient.Pool())
	if err != nil {
		logger.Error("failed to initialize rate limiter", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	sb := sandbox.NewEngine(cfg.Sandbox)
	hierarchy := tenant.NewHierarchy(stores.Tenants)
	transformer := transform.NewEngine(sb, transform.NewResolver(stores.Lookups, hierarchy))
	authProvider := auth.NewProvider(stores.Integrations, nil, cfg.JWTSecret)
	recorder := execlog.NewRecorder(stores.ExecLogs, cfg.Redaction, logger)
	dlqService := dlq.NewService(stores.DLQ, dlq.NewPolicy(cfg.Retry), logger)

	engine := delivery.NewEngine(stores.Integrations, transformer, authProvider,
		limiter, recorder, dlqService, sb, nil, logger)
	matcher := match.NewMatcher(stores.Integrations, hierarchy, sb, logger)
	planner := schedule.NewPlanner(sb, stores.Schedules)

	// Workers.
	watchdog := audit.NewWatchdog(stores.Audit, cfg.Workers, cfg.Audit, logger)
	watchdog.Start(ctx)

	dlqWorker := dlq.NewWorker(dlqService, stores.DLQ, engine, cfg.Workers, logger)
	dlqWorker.Start(ctx)

	scheduler := schedule.NewWorker(stores.Schedules, engine, cfg.Workers, logger)
	scheduler.Start(ctx)

	pool := delivery.NewWorkerPool(podID, ledger, matcher, engine, planner, cfg.Workers, logger)
	pool.Start(ctx)

	// Event source, selected by the SOURCE_URI scheme. The job runner shares
	// the relational source pool for SQL data sources.
	var (
		sourcePool  *pgxpool.Pool
		poller      *source.Poller
		streamCons  *source.StreamConsumer
		natsConn    *nats.Conn
		sourceProbe api.Probe
	)
	switch {
	case strings.HasPrefix(cfg.SourceURI, "nats://"):
		natsConn, err = nats.Connect(cfg.SourceURI, nats.Name("gateway-"+podID))
		if err != nil {
			logger.Error("failed to connect to event stream", "error", err)
			os.Exit(1)
		}
		defer natsConn.Close()
		streamCons = source.NewStreamConsumer(natsConn, source.DefaultStreamConfig(), ledger, logger)
		if err := streamCons.Start(ctx); err != nil {
			logger.Error("failed to start stream source", "error", err)
			os.Exit(1)
		}
		sourceProbe = streamCons.Running
	case cfg.SourceURI != "":
		sourcePool, err = pgxpool.New(ctx, cfg.SourceURI)
		if err != nil {
			logger.Error("failed to connect to source database", "error", err)
			os.Exit(1)
		}
		defer sourcePool.Close()
		poller = source.NewPoller(sourcePool, ledger, stores.Checkpoints, "", cfg.Workers, logger)
		poller.Start(ctx)
		sourceProbe = poller.Running
	default:
		logger.Warn("no SOURCE_URI configured, only injected and inbound traffic will flow")
	}

	jobs := delivery.NewJobRunner(stores.Integrations, engine, sourcePool, cfg.Workers, logger)
	jobs.Start(ctx)

	server := api.NewServer(cfg, dbClient, stores, ledger, dlqService, engine,
		api.WorkerProbes{
			Delivery:  pool.Running,
			Retry:     dlqWorker.Running,
			Scheduler: scheduler.Running,
			Watchdog:  watchdog.Running,
		}, sourceProbe, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	logger.Info("gateway started", "podId", podID, "workers", cfg.Workers.DeliveryWorkerCount)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	// Shutdown order: sources first so no new events arrive, then workers so
	// in-flight attempts finish, then the HTTP surface.
	if streamCons != nil {
		streamCons.Stop()
	}
	if poller != nil {
		poller.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Workers.GracefulShutdownTimeout)
	defer cancel()
	done := make(chan struct{})
	go func() {
		jobs.Stop()
		pool.Stop()
		scheduler.Stop()
		dlqWorker.Stop()
		watchdog.Stop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("workers stopped")
	case <-shutdownCtx.Done():
		logger.Warn("worker shutdown timeout exceeded, claims will be recovered on restart")
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

// buildLimiter picks the rate-limit backend: Redis when configured (shared
// across replicas with Lua atomicity), the store otherwise.
func buildLimiter(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (ratelimit.Limiter, *redis.Client, error) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewPostgresLimiter(pool), nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	limiter, err := ratelimit.NewRedisLimiter(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return limiter, client, nil
}
