package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/grantradar/grantradar/pkg/config"
)

// Probe checks one dependency (the bus, the entity store, an external
// grant-source endpoint) and returns an error if it is unreachable.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// EndpointStatus is the health checker's current view of one probe.
type EndpointStatus struct {
	Name                string
	Healthy             bool
	ConsecutiveFailures int
	LastError           string
	LastCheck           time.Time
	MeanLatency         time.Duration
}

// latencyRing is a fixed-size circular buffer of recent probe latencies,
// mirroring the teacher's pkg/mcp.HealthMonitor's cached-per-server state
// but bounded rather than unbounded, per spec §4.6's LatencyRingSize.
type latencyRing struct {
	samples []time.Duration
	next    int
	filled  bool
}

func newLatencyRing(size int) *latencyRing {
	if size <= 0 {
		size = 1
	}
	return &latencyRing{samples: make([]time.Duration, size)}
}

func (r *latencyRing) add(d time.Duration) {
	r.samples[r.next] = d
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.filled = true
	}
}

func (r *latencyRing) mean() time.Duration {
	n := r.next
	if r.filled {
		n = len(r.samples)
	}
	if n == 0 {
		return 0
	}
	var sum time.Duration
	for i := 0; i < n; i++ {
		sum += r.samples[i]
	}
	return sum / time.Duration(n)
}

// HealthChecker periodically runs probes against the bus, entity store,
// and external sources, maintaining a bounded latency history per probe
// and paging through OnCallSinks once a probe degrades persistently (spec
// §4.6.6).
type HealthChecker struct {
	probes []Probe
	cfg    config.OrchestratorConfig
	sinks  []OnCallSink

	mu                   sync.RWMutex
	statuses             map[string]*probeState
	systemUnhealthySince *time.Time

	cancel context.CancelFunc
	done   chan struct{}
	log    *slog.Logger
}

type probeState struct {
	consecutiveFailures int
	lastError           string
	lastCheck           time.Time
	ring                *latencyRing
	alerted             bool
}

// NewHealthChecker builds a HealthChecker over probes.
func NewHealthChecker(cfg config.OrchestratorConfig, probes []Probe, sinks []OnCallSink) *HealthChecker {
	statuses := make(map[string]*probeState, len(probes))
	for _, p := range probes {
		statuses[p.Name] = &probeState{ring: newLatencyRing(cfg.LatencyRingSize)}
	}
	return &HealthChecker{
		probes:   probes,
		cfg:      cfg,
		sinks:    sinks,
		statuses: statuses,
		log:      slog.With("component", "health_checker"),
	}
}

// Start launches the background probe loop. A no-op if already running.
func (h *HealthChecker) Start(ctx context.Context) {
	if h.cancel != nil {
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	go h.loop(ctx)
}

// Stop halts the background probe loop and waits for it to exit.
func (h *HealthChecker) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	if h.done != nil {
		<-h.done
	}
	h.cancel = nil
	h.done = nil
}

func (h *HealthChecker) loop(ctx context.Context) {
	defer close(h.done)

	h.checkAll(ctx)

	interval := h.cfg.HealthProbeInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.checkAll(ctx)
		}
	}
}

func (h *HealthChecker) checkAll(ctx context.Context) {
	for _, p := range h.probes {
		h.checkOne(ctx, p)
	}
	h.evaluateSystemHealth(ctx)
}

func (h *HealthChecker) checkOne(ctx context.Context, p Probe) {
	start := time.Now()
	err := p.Check(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	state := h.statuses[p.Name]
	state.lastCheck = time.Now().UTC()
	state.ring.add(latency)

	if err != nil {
		state.consecutiveFailures++
		state.lastError = err.Error()
	} else {
		state.consecutiveFailures = 0
		state.lastError = ""
		state.alerted = false
	}
	shouldAlert := state.consecutiveFailures >= 3 && !state.alerted
	if shouldAlert {
		state.alerted = true
	}
	h.mu.Unlock()

	if shouldAlert {
		h.notify(ctx, OnCallAlert{
			Service: p.Name,
			Message: "probe failed 3 consecutive times: " + err.Error(),
			FiredAt: time.Now().UTC(),
		})
	}
}

func (h *HealthChecker) evaluateSystemHealth(ctx context.Context) {
	now := time.Now().UTC()
	unhealthy := h.Overall() == "unhealthy"

	h.mu.Lock()
	if unhealthy && h.systemUnhealthySince == nil {
		h.systemUnhealthySince = &now
	} else if !unhealthy {
		h.systemUnhealthySince = nil
	}
	since := h.systemUnhealthySince
	threshold := h.cfg.OnCallUnhealthyFor
	h.mu.Unlock()

	if since == nil || threshold <= 0 {
		return
	}
	if now.Sub(*since) >= threshold {
		h.notify(ctx, OnCallAlert{
			Service: "system",
			Message: "system has been unhealthy for longer than the on-call threshold",
			FiredAt: now,
		})
	}
}

func (h *HealthChecker) notify(ctx context.Context, alert OnCallAlert) {
	for _, sink := range h.sinks {
		if err := sink.Notify(ctx, alert); err != nil {
			h.log.Error("on-call sink failed", "sink_alert", alert.Service, "error", err)
		}
	}
}

// Statuses returns a snapshot of every probe's current health.
func (h *HealthChecker) Statuses() []EndpointStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]EndpointStatus, 0, len(h.probes))
	for _, p := range h.probes {
		s := h.statuses[p.Name]
		out = append(out, EndpointStatus{
			Name:                p.Name,
			Healthy:             s.consecutiveFailures == 0,
			ConsecutiveFailures: s.consecutiveFailures,
			LastError:           s.lastError,
			LastCheck:           s.lastCheck,
			MeanLatency:         s.ring.mean(),
		})
	}
	return out
}

// Overall reports "healthy" if every probe is healthy, "unhealthy" if any
// probe has failed 3+ consecutive times, "degraded" otherwise.
func (h *HealthChecker) Overall() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	degraded := false
	for _, s := range h.statuses {
		if s.consecutiveFailures >= 3 {
			return "unhealthy"
		}
		if s.consecutiveFailures > 0 {
			degraded = true
		}
	}
	if degraded {
		return "degraded"
	}
	return "healthy"
}
