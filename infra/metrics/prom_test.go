package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	coremetrics "github.com/fleetops/dispatchd/core/metrics"
)

func TestPromSink_RecordCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	stats := coremetrics.CycleStats{Planned: 7, Executed: 5, Escalated: 1, Duration: time.Second}
	if err := sink.RecordCycle(stats); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(sink.actions.WithLabelValues("planned")); got != 7 {
		t.Fatalf("planned counter = %v", got)
	}
	if got := testutil.ToFloat64(sink.actions.WithLabelValues("executed")); got != 5 {
		t.Fatalf("executed counter = %v", got)
	}
}

func TestPromSink_RecordAssignmentsAndFleet(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	recs := []coremetrics.AssignmentRecord{
		{VehicleID: "v1", DistanceKm: 3.5, Score: 0.9},
		{VehicleID: "v2", DistanceKm: 1.5, Score: 0.7},
	}
	if err := sink.RecordAssignments(recs); err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := testutil.ToFloat64(sink.routeKm); got != 5 {
		t.Fatalf("route km counter = %v", got)
	}
	if err := sink.RecordFleetSize(9); err != nil {
		t.Fatalf("fleet size: %v", err)
	}
	if got := testutil.ToFloat64(sink.fleet); got != 9 {
		t.Fatalf("fleet gauge = %v", got)
	}
}

func TestPromSink_DoubleRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPromSinkWithRegistry(coremetrics.Config{}, reg); err != nil {
		t.Fatalf("second registration should reuse collectors: %v", err)
	}
}
