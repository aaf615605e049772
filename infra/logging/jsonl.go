package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	corelogging "github.com/fleetops/dispatchd/core/logging"
)

// Entry kinds written to the JSONL stream.
const (
	kindAssignment   = "assignment"
	kindEscalation   = "escalation"
	kindAlert        = "alert"
	kindOptimization = "optimization"
)

// jsonlEntry is the envelope written per line. Exactly one record field is
// set, selected by Kind.
type jsonlEntry struct {
	Kind         string                       `json:"kind"`
	Time         time.Time                    `json:"time"`
	Assignment   *corelogging.AssignmentLog   `json:"assignment,omitempty"`
	Escalation   *corelogging.EscalationLog   `json:"escalation,omitempty"`
	Alert        *corelogging.DispatchAlert   `json:"alert,omitempty"`
	Optimization *corelogging.OptimizationLog `json:"optimization,omitempty"`
}

// RotatingJSONLStore stores engine logs in a JSONL file with automatic
// rotation.
type RotatingJSONLStore struct {
	mu     sync.Mutex
	logger *lumberjack.Logger
	path   string
}

// NewRotatingJSONLStore creates a store with rotation options in megabytes
// and days.
func NewRotatingJSONLStore(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLStore, error) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   false,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &RotatingJSONLStore{logger: lj, path: path}, nil
}

func (s *RotatingJSONLStore) append(entry jsonlEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.NewEncoder(s.logger).Encode(entry)
}

// AppendAssignment writes one assignment line.
func (s *RotatingJSONLStore) AppendAssignment(_ context.Context, rec corelogging.AssignmentLog) error {
	return s.append(jsonlEntry{Kind: kindAssignment, Time: rec.AssignedAt, Assignment: &rec})
}

// AppendEscalation writes one escalation line.
func (s *RotatingJSONLStore) AppendEscalation(_ context.Context, rec corelogging.EscalationLog) error {
	return s.append(jsonlEntry{Kind: kindEscalation, Time: rec.EscalatedAt, Escalation: &rec})
}

// AppendAlert writes one alert line.
func (s *RotatingJSONLStore) AppendAlert(_ context.Context, rec corelogging.DispatchAlert) error {
	return s.append(jsonlEntry{Kind: kindAlert, Time: rec.CreatedAt, Alert: &rec})
}

// AppendOptimization writes one optimization line.
func (s *RotatingJSONLStore) AppendOptimization(_ context.Context, rec corelogging.OptimizationLog) error {
	return s.append(jsonlEntry{Kind: kindOptimization, Time: rec.CreatedAt, Optimization: &rec})
}

// QueryAssignments reads all log files including rotated ones.
func (s *RotatingJSONLStore) QueryAssignments(_ context.Context, q corelogging.Query) ([]corelogging.AssignmentLog, error) {
	var res []corelogging.AssignmentLog
	err := s.scan(q, func(e jsonlEntry) {
		if e.Kind != kindAssignment || e.Assignment == nil {
			return
		}
		if q.OrderID != "" && e.Assignment.OrderID != q.OrderID {
			return
		}
		res = append(res, *e.Assignment)
	})
	return res, err
}

// QueryEscalations reads all log files including rotated ones.
func (s *RotatingJSONLStore) QueryEscalations(_ context.Context, q corelogging.Query) ([]corelogging.EscalationLog, error) {
	var res []corelogging.EscalationLog
	err := s.scan(q, func(e jsonlEntry) {
		if e.Kind != kindEscalation || e.Escalation == nil {
			return
		}
		if q.OrderID != "" && e.Escalation.OrderID != q.OrderID {
			return
		}
		res = append(res, *e.Escalation)
	})
	return res, err
}

// scan walks every file matching the store path, current and rotated, and
// feeds time-matching entries to fn. Unparseable lines are skipped.
func (s *RotatingJSONLStore) scan(q corelogging.Query, fn func(jsonlEntry)) error {
	files, err := filepath.Glob(s.path + "*")
	if err != nil {
		return err
	}
	for _, f := range files {
		file, err := os.Open(f)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			var e jsonlEntry
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				continue
			}
			if !q.Start.IsZero() && e.Time.Before(q.Start) {
				continue
			}
			if !q.End.IsZero() && e.Time.After(q.End) {
				continue
			}
			fn(e)
		}
		_ = file.Close()
	}
	return nil
}

// Close closes the underlying writer.
func (s *RotatingJSONLStore) Close() error {
	return s.logger.Close()
}
