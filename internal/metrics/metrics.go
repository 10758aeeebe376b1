package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talentline_actions_total",
		Help: "Collaborator invocations by action kind and outcome",
	}, []string{"kind", "outcome"})

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "talentline_action_duration_seconds",
		Help:    "Duration of collaborator invocations",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talentline_cycles_total",
		Help: "Orchestrator cycles by result",
	}, []string{"result"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "talentline_cycle_duration_seconds",
		Help:    "Duration of orchestrator cycles",
		Buckets: prometheus.DefBuckets,
	})

	pipelineDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "talentline_pipeline_depth",
		Help: "Non-terminal candidates per role",
	}, []string{"role"})

	pipelineDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talentline_pipeline_degraded_total",
		Help: "Outreach sequences parked after exhausting their retry budget",
	}, []string{"role"})

	eventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talentline_events_ingested_total",
		Help: "Inbound engagement events by kind and result",
	}, []string{"kind", "result"})
)

// ObserveAction records one collaborator invocation.
func ObserveAction(kind, outcome string, duration time.Duration) {
	actionsTotal.WithLabelValues(kind, outcome).Inc()
	actionDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveCycle records a completed orchestrator cycle.
func ObserveCycle(result string, duration time.Duration) {
	cyclesTotal.WithLabelValues(result).Inc()
	cycleDuration.Observe(duration.Seconds())
}

// SetPipelineDepth records the current depth for a role.
func SetPipelineDepth(roleID string, depth int) {
	if depth < 0 {
		depth = 0
	}
	pipelineDepth.WithLabelValues(roleID).Set(float64(depth))
}

// ObserveDegraded increments the degraded-pipeline signal for a role.
func ObserveDegraded(roleID string) {
	pipelineDegraded.WithLabelValues(roleID).Inc()
}

// ObserveIngest records an inbound engagement event.
func ObserveIngest(kind, result string) {
	eventsIngested.WithLabelValues(kind, result).Inc()
}
