// Package logging defines the persisted log schema of the engine and the
// LogStore contract. Field names and types are compatibility-sensitive:
// downstream reporting reads these rows directly.
package logging

import (
	"context"
	"time"
)

// CreatedBySystem is the default author stamped on engine-written rows.
const CreatedBySystem = "AGENT_SYSTEM"

// AssignmentLog is one row of assignment_logs: the immutable record of a
// vehicle/order commitment made by a dispatch cycle.
type AssignmentLog struct {
	OrderID              string         `json:"order_id"`
	DriverID             string         `json:"driver_id"`
	AssignmentStrategy   string         `json:"assignment_strategy"`
	DistanceKm           float64        `json:"distance_km"`
	EstimatedTimeMinutes int            `json:"estimated_time_minutes"`
	AssignedAt           time.Time      `json:"assigned_at"`
	Status               string         `json:"status"`
	ConfidenceScore      float64        `json:"confidence_score"` // 0.00-1.00
	AlternativeCount     int            `json:"alternative_count"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	CreatedBy            string         `json:"created_by"`
}

// EscalationLog is one row of escalation_logs.
type EscalationLog struct {
	EscalationType  string         `json:"escalation_type"`
	Severity        string         `json:"severity"` // LOW, MEDIUM, HIGH, CRITICAL
	OrderID         string         `json:"order_id"`
	DriverID        string         `json:"driver_id"`
	Reason          string         `json:"reason"`
	EscalatedAt     time.Time      `json:"escalated_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy      string         `json:"resolved_by,omitempty"`
	ResolutionNotes string         `json:"resolution_notes,omitempty"`
	AutoResolved    bool           `json:"auto_resolved"`
	EscalationLevel int            `json:"escalation_level"` // starts at 1
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// DispatchAlert is one row of dispatch_alerts: operational alerts surfaced
// by the cycle loop itself (cycle errors, degraded solvers, store failures).
type DispatchAlert struct {
	OrderID          string     `json:"order_id,omitempty"`
	AlertType        string     `json:"alert_type"`
	Severity         string     `json:"severity"` // INFO, WARNING, ERROR, CRITICAL
	Message          string     `json:"message"`
	Resolved         bool       `json:"resolved"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolutionAction string     `json:"resolution_action,omitempty"`
	Acknowledged     bool       `json:"acknowledged"`
	AcknowledgedAt   *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// OptimizationLog is one row of optimization_logs: before/after figures for
// a batch run through the exact matcher.
type OptimizationLog struct {
	BatchID           string    `json:"batch_id"`
	OptimizationType  string    `json:"optimization_type"`
	OrdersCount       int       `json:"orders_count"`
	DistanceBeforeKm  float64   `json:"distance_before_km"`
	DistanceAfterKm   float64   `json:"distance_after_km"`
	DistanceSavedKm   float64   `json:"distance_saved_km"`
	TimeBeforeMinutes float64   `json:"time_before_minutes"`
	TimeAfterMinutes  float64   `json:"time_after_minutes"`
	TimeSavedMinutes  float64   `json:"time_saved_minutes"`
	CostBefore        float64   `json:"cost_before"`
	CostAfter         float64   `json:"cost_after"`
	CostSaved         float64   `json:"cost_saved"`
	AlgorithmUsed     string    `json:"algorithm_used"`
	ComputationTimeMs int64     `json:"computation_time_ms"`
	Success           bool      `json:"success"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Query filters log reads.
type Query struct {
	Start   time.Time
	End     time.Time
	OrderID string
}

// LogStore persists engine log rows and supports querying. Implementations
// live in infra/logging (SQLite, rotating JSONL, Postgres).
type LogStore interface {
	AppendAssignment(ctx context.Context, rec AssignmentLog) error
	AppendEscalation(ctx context.Context, rec EscalationLog) error
	AppendAlert(ctx context.Context, rec DispatchAlert) error
	AppendOptimization(ctx context.Context, rec OptimizationLog) error

	QueryAssignments(ctx context.Context, q Query) ([]AssignmentLog, error)
	QueryEscalations(ctx context.Context, q Query) ([]EscalationLog, error)

	Close() error
}

// NopStore discards every row. Used when persistence is disabled.
type NopStore struct{}

func (NopStore) AppendAssignment(context.Context, AssignmentLog) error { return nil }

func (NopStore) AppendEscalation(context.Context, EscalationLog) error { return nil }

func (NopStore) AppendAlert(context.Context, DispatchAlert) error { return nil }

func (NopStore) AppendOptimization(context.Context, OptimizationLog) error { return nil }

func (NopStore) QueryAssignments(context.Context, Query) ([]AssignmentLog, error) {
	return nil, nil
}

func (NopStore) QueryEscalations(context.Context, Query) ([]EscalationLog, error) {
	return nil, nil
}

func (NopStore) Close() error { return nil }
