package model

import "time"

// Severity classifies how urgent an escalation is. It is derived from the
// SLA status at open time and is never downgraded automatically.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// AlertState is the lifecycle state of an escalation alert.
type AlertState string

const (
	AlertOpen         AlertState = "OPEN"
	AlertEscalated    AlertState = "ESCALATED"
	AlertResolved     AlertState = "RESOLVED"
	AlertAutoResolved AlertState = "AUTO_RESOLVED"
)

// EscalationAlert is raised when an order crosses into an at-risk or breached
// state. At most one open alert exists per (order, type) pair; dedup is
// mandatory to avoid alert storms.
type EscalationAlert struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Severity     Severity   `json:"severity"`
	OrderID      string     `json:"order_id"`
	DriverID     string     `json:"driver_id"`
	Reason       string     `json:"reason"`
	Tier         int        `json:"tier"` // starts at 1, increments while unresolved
	State        AlertState `json:"state"`
	AutoResolved bool       `json:"auto_resolved"`
	OpenedAt     time.Time  `json:"opened_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy   string     `json:"resolved_by,omitempty"`
}

// Open reports whether the alert still requires attention.
func (a EscalationAlert) Open() bool {
	return a.State == AlertOpen || a.State == AlertEscalated
}
