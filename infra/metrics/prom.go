package metrics

import (
	coremetrics "github.com/fleetops/dispatchd/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records cycle and assignment telemetry in Prometheus metrics.
type PromSink struct {
	actions  *prometheus.CounterVec
	routeKm  prometheus.Counter
	score    prometheus.Histogram
	duration prometheus.Histogram
	fleet    prometheus.Gauge
}

// NewPromSink registers sink metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	actions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_cycle_actions_total",
		Help: "Total dispatch cycle actions by kind",
	}, []string{"action"})
	routeKm := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assignment_route_km_total",
		Help: "Total planned route distance across committed assignments",
	})
	score := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "assignment_score",
		Help:    "Weighted score of committed vehicle assignments",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_cycle_sink_duration_seconds",
		Help:    "Cycle duration as observed by the metrics sink",
		Buckets: prometheus.DefBuckets,
	})
	fleet := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_vehicles_total",
		Help: "Number of vehicles available to the last dispatch cycle",
	})

	if err := reg.Register(actions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			actions = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(routeKm); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			routeKm = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(score); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			score = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fleet); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fleet = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{actions: actions, routeKm: routeKm, score: score, duration: duration, fleet: fleet}, nil
}

// RecordCycle increments the per-action counters and observes the duration.
func (s *PromSink) RecordCycle(stats coremetrics.CycleStats) error {
	s.actions.WithLabelValues("planned").Add(float64(stats.Planned))
	s.actions.WithLabelValues("executed").Add(float64(stats.Executed))
	s.actions.WithLabelValues("escalated").Add(float64(stats.Escalated))
	s.duration.Observe(stats.Duration.Seconds())
	return nil
}

// RecordAssignments observes each committed assignment.
func (s *PromSink) RecordAssignments(recs []coremetrics.AssignmentRecord) error {
	for _, r := range recs {
		s.routeKm.Add(r.DistanceKm)
		s.score.Observe(r.Score)
	}
	return nil
}

// RecordFleetSize sets the gauge to the number of available vehicles.
func (s *PromSink) RecordFleetSize(size int) error {
	if s.fleet != nil {
		s.fleet.Set(float64(size))
	}
	return nil
}
