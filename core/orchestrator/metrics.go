package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cyclesTotal        prometheus.Counter
	cycleErrorsTotal   prometheus.Counter
	cycleDuration      prometheus.Histogram
	cycleRejections    prometheus.Counter
	deliveriesAssigned *prometheus.CounterVec
	escalationsTotal   *prometheus.CounterVec
	fleetSize          prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, prometheus.Counter, prometheus.Histogram, prometheus.Counter, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Gauge) {
	cyc := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_cycles_total",
			Help: "Number of completed dispatch cycles",
		},
	)
	errs := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_cycle_errors_total",
			Help: "Number of dispatch cycles that failed or panicked",
		},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_cycle_duration_seconds",
			Help:    "Duration of dispatch cycles from snapshot to commit",
			Buckets: prometheus.DefBuckets,
		},
	)
	rej := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_cycle_rejections_total",
			Help: "Number of cycle triggers rejected because a cycle was in flight",
		},
	)
	del := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_assigned_total",
			Help: "Number of deliveries committed to vehicles",
		},
		[]string{"strategy"},
	)
	esc := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escalation_alerts_total",
			Help: "Number of escalation alert transitions",
		},
		[]string{"action"},
	)
	fleet := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_vehicles_available",
			Help: "Available vehicles seen by the last dispatch cycle",
		},
	)
	return cyc, errs, dur, rej, del, esc, fleet
}

func init() {
	cyclesTotal, cycleErrorsTotal, cycleDuration, cycleRejections, deliveriesAssigned, escalationsTotal, fleetSize = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers orchestrator metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(cyclesTotal, cycleErrorsTotal, cycleDuration, cycleRejections, deliveriesAssigned, escalationsTotal, fleetSize)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	cyclesTotal, cycleErrorsTotal, cycleDuration, cycleRejections, deliveriesAssigned, escalationsTotal, fleetSize = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
