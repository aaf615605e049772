package model

import "time"

// SLAStatus buckets an order's remaining time against its deadline.
type SLAStatus int

const (
	SLAOnTrack SLAStatus = iota
	SLAAtRiskMedium
	SLAAtRiskHigh
	SLAAtRiskCritical
	SLABreached
)

// String returns the persisted representation of the status.
func (s SLAStatus) String() string {
	switch s {
	case SLAOnTrack:
		return "on_track"
	case SLAAtRiskMedium:
		return "at_risk_medium"
	case SLAAtRiskHigh:
		return "at_risk_high"
	case SLAAtRiskCritical:
		return "at_risk_critical"
	case SLABreached:
		return "breached"
	default:
		return "unknown"
	}
}

// AtRisk reports whether the status warrants an escalation.
func (s SLAStatus) AtRisk() bool { return s != SLAOnTrack }

// SLAWindow is the result of one deadline computation for one order. It is
// recomputed every cycle and persisted only as a log entry, never as mutable
// state.
type SLAWindow struct {
	OrderID          string    `json:"order_id"`
	Deadline         time.Time `json:"deadline"`
	ElapsedMinutes   float64   `json:"elapsed_minutes"`
	RemainingMinutes float64   `json:"remaining_minutes"`
	Status           SLAStatus `json:"status"`
}
