package metrics

import coremetrics "github.com/fleetops/dispatchd/core/metrics"

// MultiSink fans telemetry out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCycle forwards the cycle stats to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordCycle(stats coremetrics.CycleStats) error {
	for _, s := range m.Sinks {
		if err := s.RecordCycle(stats); err != nil {
			return err
		}
	}
	return nil
}

// RecordAssignments forwards the assignment records.
func (m *MultiSink) RecordAssignments(recs []coremetrics.AssignmentRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignments(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordFleetSize forwards fleet size metrics when supported by the sink.
func (m *MultiSink) RecordFleetSize(size int) error {
	for _, s := range m.Sinks {
		if fr, ok := s.(coremetrics.FleetSizeRecorder); ok {
			if err := fr.RecordFleetSize(size); err != nil {
				return err
			}
		}
	}
	return nil
}
