// Command orchestrator runs the Orchestrator (C8): it tracks every grant's
// pipeline stage, periodically evaluates worker autoscaling, probes the
// bus and entity-store dependencies for health, and serves a Gin-based
// status/health surface. The discovery sources are not probed, and no
// circuit-breaker state is mirrored from this process.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/grantradar/grantradar/pkg/bus"
	"github.com/grantradar/grantradar/pkg/config"
	"github.com/grantradar/grantradar/pkg/database"
	"github.com/grantradar/grantradar/pkg/entitystore"
	"github.com/grantradar/grantradar/pkg/metrics"
	"github.com/grantradar/grantradar/pkg/orchestrator"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", getEnv("CONFIG_PATH", "./config/orchestrator.yaml"), "Path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	gin.SetMode(getEnv("GIN_MODE", "release"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbClient, err := database.NewClient(cfg.Database)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer func() { _ = dbClient.Close() }()
	store := entitystore.New(dbClient)

	redisClient := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Bus.Addr},
		Password: cfg.Bus.Password,
		DB:       cfg.Bus.DB,
		PoolSize: cfg.Bus.PoolSize,
	})
	defer func() { _ = redisClient.Close() }()
	state := bus.NewState(redisClient)

	tracker := orchestrator.NewPipelineTracker(state)
	autoscaler := orchestrator.NewAutoscaler(store, cfg.Orchestrator)
	collector := metrics.New(prometheus.NewRegistry())

	probes := []orchestrator.Probe{
		{Name: "redis", Check: func(ctx context.Context) error {
			_, err := redisClient.Ping(ctx).Result()
			return err
		}},
		{Name: "postgres", Check: func(ctx context.Context) error {
			status, err := database.Health(ctx, dbClient.DB.DB)
			if err != nil {
				return err
			}
			if status.InUse >= status.MaxOpenConns && status.MaxOpenConns > 0 {
				slog.Warn("postgres pool saturated", "in_use", status.InUse, "max_open_conns", status.MaxOpenConns)
			}
			return nil
		}},
	}

	// TODO: add one probe per discovery source (nsf, nihreporter, grantsgov)
	// once cmd/discovery-agent exposes a lightweight reachability check those
	// probes can call without running a full discovery pass.

	sinks := []orchestrator.OnCallSink{logOnCallSink{log: slog.With("component", "oncall")}}
	health := orchestrator.NewHealthChecker(cfg.Orchestrator, probes, sinks)
	health.Start(ctx)
	defer health.Stop()

	srv := orchestrator.NewServer(cfg.Orchestrator.HTTPAddr, tracker, health, store)

	go runAutoscaleLoop(ctx, autoscaler, collector, state)

	go func() {
		slog.Info("orchestrator HTTP surface starting", "addr", cfg.Orchestrator.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil {
			log.Fatalf("orchestrator HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("orchestrator shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("orchestrator shutdown error", "error", err)
	}
}

// runAutoscaleLoop periodically evaluates the autoscaler against the number
// of pipelines currently in flight, using the tracked pipeline-state count as
// the queue-depth proxy (spec §4.6.4 — there is no separate work queue
// distinct from the per-grant pipeline state the bus already tracks).
func runAutoscaleLoop(ctx context.Context, autoscaler *orchestrator.Autoscaler, collector *metrics.Collector, state *bus.State) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const assumedActiveWorkers = 4 // TODO: source from a real worker-pool registry once cmd/*-agent report liveness

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			grantIDs, err := state.ScanPipelineKeys(ctx)
			if err != nil {
				slog.Error("scan pipeline keys for autoscaling", "error", err)
				continue
			}
			depth := len(grantIDs)
			collector.SetQueueDepth(depth)
			collector.SetActiveWorkers(assumedActiveWorkers)

			snap, err := autoscaler.Evaluate(ctx, depth, assumedActiveWorkers)
			if err != nil {
				slog.Error("evaluate autoscaler", "error", err)
				continue
			}
			slog.Info("autoscaling decision", "decision", snap.Decision, "reason", snap.Reason, "queue_depth", depth)
		}
	}
}

// logOnCallSink pages by logging at error level. Production deployments
// would swap this for a PagerDuty/Opsgenie sink implementing the same
// OnCallSink interface.
type logOnCallSink struct {
	log *slog.Logger
}

func (s logOnCallSink) Notify(ctx context.Context, alert orchestrator.OnCallAlert) error {
	s.log.Error("on-call page", "service", alert.Service, "message", alert.Message, "fired_at", alert.FiredAt)
	return nil
}
