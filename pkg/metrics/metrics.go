package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Plan lifecycle metrics
	PlansSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_plans_submitted_total",
			Help: "Total number of plans admitted by this node",
		},
	)

	PlansCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_plans_cancelled_total",
			Help: "Total number of plans cancelled on this node",
		},
	)

	PlanState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ballast_plan_state",
			Help: "Current worker state (0=no plan, 1=under progress, 2=done, 3=cancelled)",
		},
	)

	// Mover metrics
	BytesMoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_bytes_moved_total",
			Help: "Total bytes moved across volumes",
		},
	)

	BlocksMoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_blocks_moved_total",
			Help: "Total blocks moved across volumes",
		},
	)

	MoveErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_move_errors_total",
			Help: "Total I/O failures charged against work items",
		},
	)

	ThrottleSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ballast_throttle_seconds_total",
			Help: "Total time spent in post-move throttle sleeps",
		},
	)

	// Volume metrics
	VolumesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ballast_volumes_total",
			Help: "Number of volumes attached to this node",
		},
	)
)

// registry holds all ballast metrics
var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(
		PlansSubmitted,
		PlansCancelled,
		PlanState,
		BytesMoved,
		BlocksMoved,
		MoveErrors,
		ThrottleSeconds,
		VolumesTotal,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
