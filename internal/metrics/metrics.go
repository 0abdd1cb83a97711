package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for venueflow.
type Metrics struct {
	// Routing metrics
	RoutingDecisions *prometheus.CounterVec
	Detours          *prometheus.CounterVec
	FastSkips        *prometheus.CounterVec
	GateFailures     *prometheus.CounterVec

	// Dispatch loop metrics
	MessagesProcessed *prometheus.CounterVec
	LoopIterations    prometheus.Histogram
	HandlerErrors     *prometheus.CounterVec
	HandlerDuration   *prometheus.HistogramVec

	// HIL metrics
	HilPending   prometheus.Gauge
	HilDecisions *prometheus.CounterVec

	// Store metrics
	StoreConflicts prometheus.Counter
	StoreSaves     *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics. Registration is
// process-wide, so the same instance is shared across callers.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			RoutingDecisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "venueflow_routing_decisions_total",
					Help: "Routing decisions by change kind and target stage",
				},
				[]string{"change_kind", "target_stage"},
			),
			Detours: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "venueflow_detours_total",
					Help: "Backward stage transitions by from/to stage",
				},
				[]string{"from_stage", "to_stage"},
			),
			FastSkips: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "venueflow_fast_skips_total",
					Help: "Decisions resolved without stage re-entry, by skip reason",
				},
				[]string{"reason"},
			),
			GateFailures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "venueflow_gate_failures_total",
					Help: "Offer precondition gate failures by gate (P1-P4)",
				},
				[]string{"gate"},
			),
			MessagesProcessed: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "venueflow_messages_processed_total",
					Help: "Inbound messages processed, by resulting thread state",
				},
				[]string{"thread_state"},
			),
			LoopIterations: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "venueflow_dispatch_iterations",
					Help:    "Dispatch loop iterations per inbound message",
					Buckets: prometheus.LinearBuckets(1, 1, 8),
				},
			),
			HandlerErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "venueflow_handler_errors_total",
					Help: "Stage handler failures by stage",
				},
				[]string{"stage"},
			),
			HandlerDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "venueflow_handler_duration_seconds",
					Help:    "Stage handler execution time in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
				},
				[]string{"stage"},
			),
			HilPending: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "venueflow_hil_pending",
					Help: "Drafts currently awaiting human approval",
				},
			),
			HilDecisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "venueflow_hil_decisions_total",
					Help: "HIL decisions by outcome (approved/rejected)",
				},
				[]string{"outcome"},
			),
			StoreConflicts: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "venueflow_store_conflicts_total",
					Help: "Optimistic-concurrency conflicts rejected by the store",
				},
			),
			StoreSaves: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "venueflow_store_saves_total",
					Help: "Conversation saves by backend",
				},
				[]string{"backend"},
			),
		}
	})
	return sharedMetrics
}
