package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantradar/grantradar/pkg/config"
)

func TestServerHealthEndpointReportsOverallStatus(t *testing.T) {
	tracker := newTestTracker(t)
	store := newTestOrchestratorStore(t)
	cfg := config.OrchestratorConfig{LatencyRingSize: 10}
	hc := NewHealthChecker(cfg, []Probe{alwaysHealthy()}, nil)
	hc.checkAll(context.Background())

	srv := NewServer(":0", tracker, hc, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServerHealthEndpointReturns503WhenUnhealthy(t *testing.T) {
	tracker := newTestTracker(t)
	store := newTestOrchestratorStore(t)
	cfg := config.OrchestratorConfig{LatencyRingSize: 10}
	hc := NewHealthChecker(cfg, []Probe{alwaysFailsForServerTest()}, nil)
	hc.checkAll(context.Background())
	hc.checkAll(context.Background())
	hc.checkAll(context.Background())

	srv := NewServer(":0", tracker, hc, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func alwaysFailsForServerTest() Probe {
	return Probe{Name: "down", Check: func(ctx context.Context) error { return assert.AnError }}
}

func TestServerStalledEndpointListsStalledPipelines(t *testing.T) {
	tracker := newTestTracker(t)
	store := newTestOrchestratorStore(t)
	cfg := config.OrchestratorConfig{LatencyRingSize: 10}
	hc := NewHealthChecker(cfg, []Probe{alwaysHealthy()}, nil)
	srv := NewServer(":0", tracker, hc, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status/stalled", nil)
	srv.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "stalled")
}

func TestServerCircuitBreakersEndpoint(t *testing.T) {
	tracker := newTestTracker(t)
	store := newTestOrchestratorStore(t)
	cfg := config.OrchestratorConfig{LatencyRingSize: 10}
	hc := NewHealthChecker(cfg, []Probe{alwaysHealthy()}, nil)
	srv := NewServer(":0", tracker, hc, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status/circuit-breakers", nil)
	srv.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "circuit_breakers")
}

func TestServerMetricsEndpointServesPrometheusFormat(t *testing.T) {
	tracker := newTestTracker(t)
	store := newTestOrchestratorStore(t)
	cfg := config.OrchestratorConfig{LatencyRingSize: 10}
	hc := NewHealthChecker(cfg, []Probe{alwaysHealthy()}, nil)
	srv := NewServer(":0", tracker, hc, store)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
