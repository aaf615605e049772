// Package escalation manages the alert lifecycle for orders whose deadline
// is jeopardized. The engine is confined to the orchestrator cycle goroutine:
// all mutation happens there, so no locking is required. Manual resolutions
// arrive as orchestrator commands and run on the same goroutine.
package escalation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/dispatchd/core/logger"
	"github.com/fleetops/dispatchd/core/model"
)

// Alert types raised by the engine.
const (
	TypeSLARisk   = "SLA_RISK"
	TypeSLABreach = "SLA_BREACH"
)

// Config controls tier escalation timing.
type Config struct {
	// EscalateAfterMinutes is the delay before an unresolved alert moves up
	// one tier. Tier increments are driven by elapsed time since open, not
	// by repeated detection.
	EscalateAfterMinutes int `json:"escalate_after_minutes"`
	// MaxTier caps the escalation level.
	MaxTier int `json:"max_tier"`
}

// SetDefaults applies production defaults.
func (c *Config) SetDefaults() {
	if c.EscalateAfterMinutes == 0 {
		c.EscalateAfterMinutes = 15
	}
	if c.MaxTier == 0 {
		c.MaxTier = 3
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.EscalateAfterMinutes < 0 || c.MaxTier < 1 {
		return fmt.Errorf("escalation: escalate_after_minutes must be >= 0 and max_tier >= 1")
	}
	return nil
}

// Notifier delivers alerts to operators. Implementations live in infra.
type Notifier interface {
	Notify(ctx context.Context, alert model.EscalationAlert) error
}

// Sink persists alert transitions. Persistence is best-effort: a failing
// sink never blocks the in-memory decision, and the in-memory open-alert set
// stays authoritative for the process lifetime so retries cannot reopen an
// already-open alert.
type Sink interface {
	RecordEscalation(ctx context.Context, alert model.EscalationAlert) error
}

// Outcome summarizes one evaluation sweep.
type Outcome struct {
	Opened       []model.EscalationAlert
	Escalated    []model.EscalationAlert
	AutoResolved []model.EscalationAlert
}

// Engine is the per-process escalation state machine.
type Engine struct {
	cfg      Config
	open     map[string]*model.EscalationAlert // keyed by orderID+type
	notifier Notifier
	sink     Sink
	log      logger.Logger
}

// NewEngine builds an engine. Notifier and sink are optional.
func NewEngine(cfg Config, notifier Notifier, sink Sink, log logger.Logger) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Engine{
		cfg:      cfg,
		open:     make(map[string]*model.EscalationAlert),
		notifier: notifier,
		sink:     sink,
		log:      log,
	}, nil
}

func alertKey(orderID, typ string) string { return orderID + "/" + typ }

// sortedKeys returns the open-alert keys in order-ID-then-type order.
func (e *Engine) sortedKeys() []string {
	keys := make([]string, 0, len(e.open))
	for key := range e.open {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// severityFor derives the alert severity from the SLA status at open time.
// Severity is never downgraded afterwards; only resolution changes it.
func severityFor(s model.SLAStatus) model.Severity {
	switch s {
	case model.SLAAtRiskMedium:
		return model.SeverityMedium
	case model.SLAAtRiskHigh:
		return model.SeverityHigh
	case model.SLAAtRiskCritical, model.SLABreached:
		return model.SeverityCritical
	default:
		return model.SeverityLow
	}
}

// Evaluate runs one escalation sweep over the cycle's SLA windows.
// driverByOrder maps order IDs to the driver currently committed to them.
// Orders absent from windows are treated as cleared (delivered or cancelled).
func (e *Engine) Evaluate(ctx context.Context, windows []model.SLAWindow, driverByOrder map[string]string, now time.Time) Outcome {
	var out Outcome

	seen := make(map[string]model.SLAStatus, len(windows))
	for _, w := range windows {
		seen[w.OrderID] = w.Status
		if !w.Status.AtRisk() {
			continue
		}
		typ := TypeSLARisk
		if w.Status == model.SLABreached {
			typ = TypeSLABreach
		}
		key := alertKey(w.OrderID, typ)
		if _, exists := e.open[key]; exists {
			continue // dedup: one open alert per (order, type)
		}
		alert := &model.EscalationAlert{
			ID:       uuid.NewString(),
			Type:     typ,
			Severity: severityFor(w.Status),
			OrderID:  w.OrderID,
			DriverID: driverByOrder[w.OrderID],
			Reason: fmt.Sprintf("order %s is %s with %.1f minutes remaining",
				w.OrderID, w.Status, w.RemainingMinutes),
			Tier:     1,
			State:    model.AlertOpen,
			OpenedAt: now,
		}
		e.open[key] = alert
		out.Opened = append(out.Opened, *alert)
		e.record(ctx, *alert)
	}

	// Tier escalation by elapsed time since open. Sweeps walk the open set in
	// key order so telemetry emission is reproducible across runs.
	escalateAfter := time.Duration(e.cfg.EscalateAfterMinutes) * time.Minute
	for _, key := range e.sortedKeys() {
		alert := e.open[key]
		if alert.Tier >= e.cfg.MaxTier || escalateAfter <= 0 {
			continue
		}
		due := alert.OpenedAt.Add(time.Duration(alert.Tier) * escalateAfter)
		if now.Before(due) {
			continue
		}
		alert.Tier++
		alert.State = model.AlertEscalated
		out.Escalated = append(out.Escalated, *alert)
		e.record(ctx, *alert)
	}

	// Auto-resolve alerts whose underlying risk cleared: the order went back
	// on track or left the pending set before breaching.
	for _, key := range e.sortedKeys() {
		alert := e.open[key]
		status, present := seen[alert.OrderID]
		cleared := !present || !status.AtRisk()
		if alert.Type == TypeSLABreach {
			cleared = !present // a breach clears only when the order leaves the set
		}
		if !cleared {
			continue
		}
		resolved := now
		alert.State = model.AlertAutoResolved
		alert.AutoResolved = true
		alert.ResolvedAt = &resolved
		alert.ResolvedBy = "system"
		out.AutoResolved = append(out.AutoResolved, *alert)
		e.record(ctx, *alert)
		delete(e.open, key)
	}

	return out
}

// Resolve closes an open alert manually. AutoResolved stays false so
// reporting can separate operator interventions from system suppression.
func (e *Engine) Resolve(ctx context.Context, orderID, typ, resolvedBy string, now time.Time) (model.EscalationAlert, error) {
	key := alertKey(orderID, typ)
	alert, ok := e.open[key]
	if !ok {
		return model.EscalationAlert{}, fmt.Errorf("escalation: no open %s alert for order %s", typ, orderID)
	}
	resolved := now
	alert.State = model.AlertResolved
	alert.AutoResolved = false
	alert.ResolvedAt = &resolved
	alert.ResolvedBy = resolvedBy
	e.record(ctx, *alert)
	delete(e.open, key)
	return *alert, nil
}

// OpenAlerts returns a copy of the open-alert set in key order.
func (e *Engine) OpenAlerts() []model.EscalationAlert {
	alerts := make([]model.EscalationAlert, 0, len(e.open))
	for _, key := range e.sortedKeys() {
		alerts = append(alerts, *e.open[key])
	}
	return alerts
}

// record persists and notifies best-effort.
func (e *Engine) record(ctx context.Context, alert model.EscalationAlert) {
	if e.sink != nil {
		if err := e.sink.RecordEscalation(ctx, alert); err != nil {
			e.log.Errorf("escalation sink error for order %s: %v", alert.OrderID, err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, alert); err != nil {
			e.log.Errorf("alert notify error for order %s: %v", alert.OrderID, err)
		}
	}
}
