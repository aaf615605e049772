// Package metrics defines the sink contract for dispatch telemetry. Sinks
// like the Prometheus and InfluxDB implementations in infra/metrics record
// cycle outcomes and per-vehicle assignments and can be combined with a
// multi-sink.
package metrics

import (
	"fmt"
	"time"
)

// CycleStats summarizes one dispatch cycle for telemetry.
type CycleStats struct {
	Planned   int
	Executed  int
	Escalated int
	Duration  time.Duration
	Timestamp time.Time
	Strategy  string
}

// AssignmentRecord is one committed vehicle assignment.
type AssignmentRecord struct {
	VehicleID  string
	DriverID   string
	PickupID   string
	Strategy   string
	Deliveries int
	LoadUnits  float64
	DistanceKm float64
	Score      float64
	AssignedAt time.Time
}

// MetricsSink records dispatch telemetry.
type MetricsSink interface {
	RecordCycle(stats CycleStats) error
	RecordAssignments(recs []AssignmentRecord) error
}

// FleetSizeRecorder is an optional sink capability.
type FleetSizeRecorder interface {
	RecordFleetSize(size int) error
}

// NopSink drops all metrics.
type NopSink struct{}

func (NopSink) RecordCycle(CycleStats) error { return nil }

func (NopSink) RecordAssignments([]AssignmentRecord) error { return nil }

// Config defines settings for metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies production defaults.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == "" {
		c.PrometheusPort = "2112"
	}
}

// Validate checks the enabled sinks.
func (c Config) Validate() error {
	if c.PrometheusEnabled && c.PrometheusPort == "" {
		return fmt.Errorf("metrics: prometheus_port is required")
	}
	if c.InfluxEnabled {
		if c.InfluxURL == "" || c.InfluxOrg == "" || c.InfluxBucket == "" {
			return fmt.Errorf("metrics: influx_url, influx_org and influx_bucket are required")
		}
	}
	return nil
}
