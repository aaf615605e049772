// Package events defines the payloads published on the internal event bus.
package events

import (
	"time"

	"github.com/fleetops/dispatchd/core/model"
)

// CycleEvent is published after every dispatch cycle, successful or not.
type CycleEvent struct {
	Planned   int           `json:"planned"`
	Executed  int           `json:"executed"`
	Escalated int           `json:"escalated"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Strategy  string        `json:"strategy,omitempty"`
	Err       string        `json:"error,omitempty"`
}

// AssignmentEvent is published when an assignment is committed.
type AssignmentEvent struct {
	VehicleID  string  `json:"vehicle_id"`
	PickupID   string  `json:"pickup_id"`
	Deliveries int     `json:"deliveries"`
	LoadUnits  float64 `json:"load_units"`
	DistanceKm float64 `json:"distance_km"`
}

// Alert actions published on the bus.
const (
	AlertOpened       = "opened"
	AlertEscalated    = "escalated"
	AlertAutoResolved = "auto_resolved"
	AlertResolved     = "resolved"
)

// AlertEvent is published on every escalation alert transition.
type AlertEvent struct {
	Action string                `json:"action"`
	Alert  model.EscalationAlert `json:"alert"`
}
