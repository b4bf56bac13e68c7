// Package metrics exposes the Orchestrator's Prometheus collectors: stage
// latency histograms against spec §4.6.1's four SLO targets and per-stage
// throughput/error counters, registered on a caller-owned registry the
// way jordigilh-kubernaut's test harness constructs its own
// prometheus.Registry rather than relying on the global default.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grantradar/grantradar/pkg/models"
)

// Collector holds every Orchestrator-owned Prometheus collector.
type Collector struct {
	StageLatency    *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	StageThroughput *prometheus.CounterVec
	SLOBreaches     *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	ActiveWorkers   prometheus.Gauge
}

// New builds a Collector and registers it on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grantradar",
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grantradar",
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Errors encountered while processing a pipeline stage.",
		}, []string{"stage"}),
		StageThroughput: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grantradar",
			Subsystem: "pipeline",
			Name:      "stage_completed_total",
			Help:      "Grants that completed each pipeline stage.",
		}, []string{"stage"}),
		SLOBreaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grantradar",
			Subsystem: "pipeline",
			Name:      "slo_breaches_total",
			Help:      "Stage completions that exceeded their spec §4.6.1 SLO target.",
		}, []string{"stage"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grantradar",
			Subsystem: "orchestrator",
			Name:      "queue_depth",
			Help:      "Most recently observed pending-message queue depth.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grantradar",
			Subsystem: "orchestrator",
			Name:      "active_workers",
			Help:      "Most recently observed active worker count.",
		}),
	}

	reg.MustRegister(c.StageLatency, c.StageErrors, c.StageThroughput, c.SLOBreaches, c.QueueDepth, c.ActiveWorkers)
	return c
}

// sloTargets maps each stage to spec §4.6.1's latency target.
var sloTargets = map[models.Stage]time.Duration{
	models.StageValidating: models.ValidationTarget,
	models.StageMatching:   models.MatchingTarget,
	models.StageAlerting:   models.AlertingTarget,
}

// RecordStageCompletion observes latency for stage and increments the
// throughput counter, plus the SLO-breach counter if latency exceeds the
// stage's target.
func (c *Collector) RecordStageCompletion(stage models.Stage, latency time.Duration) {
	label := string(stage)
	c.StageLatency.WithLabelValues(label).Observe(latency.Seconds())
	c.StageThroughput.WithLabelValues(label).Inc()

	if target, ok := sloTargets[stage]; ok && latency > target {
		c.SLOBreaches.WithLabelValues(label).Inc()
	}
}

// RecordTotalLatency observes an end-to-end pipeline latency against
// spec §4.6.1's 120s total target.
func (c *Collector) RecordTotalLatency(latency time.Duration) {
	const label = "total"
	c.StageLatency.WithLabelValues(label).Observe(latency.Seconds())
	c.StageThroughput.WithLabelValues(label).Inc()
	if latency > models.TotalTarget {
		c.SLOBreaches.WithLabelValues(label).Inc()
	}
}

// RecordStageError increments stage's error counter.
func (c *Collector) RecordStageError(stage models.Stage) {
	c.StageErrors.WithLabelValues(string(stage)).Inc()
}

// SetQueueDepth updates the queue-depth gauge.
func (c *Collector) SetQueueDepth(depth int) {
	c.QueueDepth.Set(float64(depth))
}

// SetActiveWorkers updates the active-workers gauge.
func (c *Collector) SetActiveWorkers(n int) {
	c.ActiveWorkers.Set(float64(n))
}
