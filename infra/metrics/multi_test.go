package metrics

import (
	"testing"

	coremetrics "github.com/fleetops/dispatchd/core/metrics"
)

type recordSink struct {
	count int
}

func (r *recordSink) RecordCycle(coremetrics.CycleStats) error {
	r.count++
	return nil
}

func (r *recordSink) RecordAssignments([]coremetrics.AssignmentRecord) error {
	r.count++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordCycle(coremetrics.CycleStats{}); err != nil {
		t.Fatalf("record cycle: %v", err)
	}
	if err := m.RecordAssignments(nil); err != nil {
		t.Fatalf("record assignments: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("records not forwarded")
	}
}

func TestMultiSink_FleetSizeSkipsUnsupported(t *testing.T) {
	s := &recordSink{}
	m := NewMultiSink(s)
	if err := m.RecordFleetSize(5); err != nil {
		t.Fatalf("fleet size: %v", err)
	}
	if s.count != 0 {
		t.Fatalf("fleet size forwarded to a sink that does not support it")
	}
}
