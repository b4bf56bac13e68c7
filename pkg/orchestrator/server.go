package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grantradar/grantradar/pkg/entitystore"
)

const requestTimeout = 5 * time.Second

// Server is the Orchestrator's HTTP status/health surface, built on Gin the
// way the teacher's cmd/tarsy/main.go wires its own "/health" endpoint.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	tracker    *PipelineTracker
	health     *HealthChecker
	store      *entitystore.Store
}

// NewServer builds a Server bound to addr.
func NewServer(addr string, tracker *PipelineTracker, health *HealthChecker, store *entitystore.Store) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:     engine,
		httpServer: &http.Server{Addr: addr, Handler: engine},
		tracker:    tracker,
		health:     health,
		store:      store,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.healthHandler)
	s.engine.GET("/status/stalled", s.stalledHandler)
	s.engine.GET("/status/circuit-breakers", s.circuitBreakersHandler)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// healthHandler reports the orchestrator's own view of system health: the
// aggregate of every registered probe (spec §4.6.6).
func (s *Server) healthHandler(c *gin.Context) {
	status := s.health.Overall()
	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"endpoints": s.health.Statuses(),
	})
}

// stalledHandler lists every pipeline stuck in its current stage beyond
// models.StalledThreshold.
func (s *Server) stalledHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	stalled, err := s.tracker.GetStalled(ctx, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stalled": stalled})
}

// circuitBreakersHandler reports the mirrored state of every breaker.
func (s *Server) circuitBreakersHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	snapshots, err := s.store.CircuitBreakers.ListAll(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"circuit_breakers": snapshots})
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
