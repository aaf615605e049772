// Package sla computes delivery deadlines and at-risk classifications.
// The calculator is pure: it holds no state between calls, so correctness
// depends only on the order and the wall-clock now supplied by the caller.
// It must be invoked fresh every dispatch cycle.
package sla

import (
	"fmt"
	"time"

	"github.com/fleetops/dispatchd/core/model"
)

// Thresholds bucket remaining minutes into at-risk levels. They must be
// strictly monotonic: Medium > High > Critical > 0.
type Thresholds struct {
	MediumMinutes   float64 `json:"medium_minutes"`
	HighMinutes     float64 `json:"high_minutes"`
	CriticalMinutes float64 `json:"critical_minutes"`
}

// Config defines the service-class windows and the calendar exceptions.
type Config struct {
	// Service-class windows in minutes, shortest for the most time-sensitive class.
	ExpressMinutes  int `json:"express_minutes"`
	PriorityMinutes int `json:"priority_minutes"`
	StandardMinutes int `json:"standard_minutes"`

	// Orders created at or after this local hour roll over to the next
	// business day instead of using the service-class window.
	CutoffHour int `json:"cutoff_hour"`
	// Next-day deadline anchor and grace period for rolled-over orders.
	MorningHour  int `json:"morning_hour"`
	GraceMinutes int `json:"grace_minutes"`

	// Weekly special day: the morning anchor is replaced by a later
	// afternoon cutoff.
	SpecialWeekday       time.Weekday `json:"special_weekday"`
	SpecialAfternoonHour int          `json:"special_afternoon_hour"`

	// Fixed regional offset from UTC, in minutes. Calendar rules are
	// evaluated in this offset regardless of server timezone.
	UTCOffsetMinutes int `json:"utc_offset_minutes"`

	Thresholds Thresholds `json:"thresholds"`
}

// SetDefaults applies the production defaults.
func (c *Config) SetDefaults() {
	if c.ExpressMinutes == 0 {
		c.ExpressMinutes = 45
	}
	if c.PriorityMinutes == 0 {
		c.PriorityMinutes = 120
	}
	if c.StandardMinutes == 0 {
		c.StandardMinutes = 240
	}
	if c.CutoffHour == 0 {
		c.CutoffHour = 20
	}
	if c.MorningHour == 0 {
		c.MorningHour = 9
	}
	if c.GraceMinutes == 0 {
		c.GraceMinutes = 30
	}
	if c.SpecialWeekday == 0 {
		c.SpecialWeekday = time.Sunday
	}
	if c.SpecialAfternoonHour == 0 {
		c.SpecialAfternoonHour = 14
	}
	if c.UTCOffsetMinutes == 0 {
		c.UTCOffsetMinutes = 330
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = Thresholds{MediumMinutes: 30, HighMinutes: 15, CriticalMinutes: 5}
	}
}

// Validate checks window and threshold ordering.
func (c Config) Validate() error {
	if c.ExpressMinutes <= 0 || c.PriorityMinutes <= 0 || c.StandardMinutes <= 0 {
		return fmt.Errorf("sla: service-class windows must be positive")
	}
	if c.ExpressMinutes > c.PriorityMinutes || c.PriorityMinutes > c.StandardMinutes {
		return fmt.Errorf("sla: windows must be ordered express <= priority <= standard")
	}
	if c.CutoffHour < 0 || c.CutoffHour > 23 || c.MorningHour < 0 || c.MorningHour > 23 {
		return fmt.Errorf("sla: cutoff hours must be within 0-23")
	}
	t := c.Thresholds
	if !(t.MediumMinutes > t.HighMinutes && t.HighMinutes > t.CriticalMinutes && t.CriticalMinutes > 0) {
		return fmt.Errorf("sla: thresholds must satisfy medium > high > critical > 0")
	}
	return nil
}

// Calculator maps order creation times to deadlines under the calendar rules.
type Calculator struct {
	cfg Config
	loc *time.Location
}

// NewCalculator validates the configuration and builds a calculator pinned to
// the configured regional offset.
func NewCalculator(cfg Config) (*Calculator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("UTC%+03d:%02d", cfg.UTCOffsetMinutes/60, abs(cfg.UTCOffsetMinutes%60))
	return &Calculator{cfg: cfg, loc: time.FixedZone(name, cfg.UTCOffsetMinutes*60)}, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// window returns the service-class window for the order.
func (c *Calculator) window(class model.ServiceClass) time.Duration {
	switch class {
	case model.ClassExpress:
		return time.Duration(c.cfg.ExpressMinutes) * time.Minute
	case model.ClassPriority:
		return time.Duration(c.cfg.PriorityMinutes) * time.Minute
	default:
		return time.Duration(c.cfg.StandardMinutes) * time.Minute
	}
}

// Deadline computes the order's delivery deadline. Rules apply in precedence:
//  1. creation time + service-class window
//  2. created at or after the late-evening cutoff: next business day at the
//     morning anchor plus the grace period, in the fixed regional offset
//  3. when that next day is the weekly special day, the later afternoon
//     cutoff replaces the morning anchor
func (c *Calculator) Deadline(o model.Order) time.Time {
	local := o.CreatedAt.In(c.loc)
	if local.Hour() < c.cfg.CutoffHour {
		return o.CreatedAt.Add(c.window(o.Class))
	}
	next := local.AddDate(0, 0, 1)
	if next.Weekday() == c.cfg.SpecialWeekday {
		return time.Date(next.Year(), next.Month(), next.Day(),
			c.cfg.SpecialAfternoonHour, 0, 0, 0, c.loc)
	}
	anchor := time.Date(next.Year(), next.Month(), next.Day(),
		c.cfg.MorningHour, 0, 0, 0, c.loc)
	return anchor.Add(time.Duration(c.cfg.GraceMinutes) * time.Minute)
}

// Status classifies the order against its deadline at the given instant.
func (c *Calculator) Status(o model.Order, now time.Time) model.SLAWindow {
	deadline := c.Deadline(o)
	remaining := deadline.Sub(now).Minutes()
	return model.SLAWindow{
		OrderID:          o.ID,
		Deadline:         deadline,
		ElapsedMinutes:   now.Sub(o.CreatedAt).Minutes(),
		RemainingMinutes: remaining,
		Status:           c.bucket(remaining),
	}
}

func (c *Calculator) bucket(remaining float64) model.SLAStatus {
	t := c.cfg.Thresholds
	switch {
	case remaining < 0:
		return model.SLABreached
	case remaining <= t.CriticalMinutes:
		return model.SLAAtRiskCritical
	case remaining <= t.HighMinutes:
		return model.SLAAtRiskHigh
	case remaining <= t.MediumMinutes:
		return model.SLAAtRiskMedium
	default:
		return model.SLAOnTrack
	}
}
