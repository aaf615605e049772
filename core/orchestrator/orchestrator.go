// Package orchestrator runs the dispatch loop. It owns a single goroutine
// that consumes commands, fires cycles on a fixed interval and publishes
// lifecycle events. Cycles never overlap: an atomic guard turns a trigger
// that arrives mid-cycle into a counted no-op.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/dispatchd/core/assign"
	"github.com/fleetops/dispatchd/core/escalation"
	"github.com/fleetops/dispatchd/core/events"
	"github.com/fleetops/dispatchd/core/logger"
	"github.com/fleetops/dispatchd/core/logging"
	"github.com/fleetops/dispatchd/core/metrics"
	"github.com/fleetops/dispatchd/core/model"
	"github.com/fleetops/dispatchd/core/sla"
	"github.com/fleetops/dispatchd/core/store"
	"github.com/fleetops/dispatchd/internal/eventbus"
)

// State of the dispatch loop.
type State int32

const (
	StateIdle State = iota
	StateInitializing
	StateReady
	StateRunning
	StateStopped
	StateShuttingDown
	StateTerminated
)

// String returns the reported representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInitializing:
		return "INITIALIZING"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// averageSpeedKmh converts route distance into the estimated time persisted
// on assignment logs.
const averageSpeedKmh = 30.0

// Config controls the loop cadence and channel capacities.
type Config struct {
	CycleIntervalMinutes int `json:"cycle_interval_minutes"`
	CommandBuffer        int `json:"command_buffer"`
	EventBuffer          int `json:"event_buffer"`
}

// SetDefaults applies production defaults.
func (c *Config) SetDefaults() {
	if c.CycleIntervalMinutes == 0 {
		c.CycleIntervalMinutes = 5
	}
	if c.CommandBuffer == 0 {
		c.CommandBuffer = 16
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 64
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CycleIntervalMinutes < 1 {
		return fmt.Errorf("orchestrator: cycle_interval_minutes must be >= 1")
	}
	if c.CommandBuffer < 1 || c.EventBuffer < 1 {
		return fmt.Errorf("orchestrator: channel buffers must be >= 1")
	}
	return nil
}

// Assigner plans one assignment round. Satisfied by *assign.Assigner.
type Assigner interface {
	Assign(vehicles []model.Vehicle, pickups []model.PickupPoint, deliveries []model.Order) (*assign.Result, error)
}

// Deps are the collaborators of the loop. Source, Committer and Assigner are
// required; the rest default to no-ops.
type Deps struct {
	Source     store.Source
	Committer  store.Committer
	Assigner   Assigner
	Deadlines  *sla.Calculator
	Escalation *escalation.Engine
	Logs       logging.LogStore
	Metrics    metrics.MetricsSink
	Bus        eventbus.EventBus
	Log        logger.Logger
}

// Orchestrator is the dispatch loop. Construct with New, then run with Run on
// a dedicated goroutine and drive it through Commands().
type Orchestrator struct {
	cfg  Config
	deps Deps

	commands chan Command
	events   chan Event

	state    atomic.Int32
	inFlight atomic.Bool
	cycles   sync.WaitGroup

	// ticking marks an armed interval cadence. Only the Run goroutine touches
	// it; the state field tracks cycle flight, not the cadence.
	ticking bool
}

// New validates the configuration and wires the loop.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil || deps.Committer == nil || deps.Assigner == nil {
		return nil, fmt.Errorf("orchestrator: source, committer and assigner are required")
	}
	if deps.Logs == nil {
		deps.Logs = logging.NopStore{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NopSink{}
	}
	if deps.Log == nil {
		deps.Log = logger.Nop{}
	}
	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		commands: make(chan Command, cfg.CommandBuffer),
		events:   make(chan Event, cfg.EventBuffer),
	}, nil
}

// Commands is the channel the loop consumes.
func (o *Orchestrator) Commands() chan<- Command { return o.commands }

// Events is the channel the loop publishes on. It is closed after
// shutdown_complete is emitted.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// State reports the current loop state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) { o.state.Store(int32(s)) }

// Run executes the loop until a shutdown command or context cancellation.
// It must run on its own goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := time.Duration(o.cfg.CycleIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	ticker.Stop() // armed on start

	for {
		select {
		case <-ctx.Done():
			o.shutdown(ticker)
			return
		case <-ticker.C:
			o.triggerCycle(ctx)
		case cmd := <-o.commands:
			switch cmd.Name {
			case CmdInitialize:
				o.initialize()
			case CmdStart:
				o.start(ticker, interval)
			case CmdStop:
				o.stop(ticker)
			case CmdRunCycle:
				if o.State() == StateIdle || o.State() == StateInitializing {
					o.emitError("run_cycle before initialization")
					continue
				}
				o.triggerCycle(ctx)
			case CmdResolveAlert:
				o.resolveAlert(ctx, cmd.Resolve)
			case CmdShutdown:
				o.shutdown(ticker)
				return
			default:
				o.emitError(fmt.Sprintf("unknown command %q", cmd.Name))
			}
		}
	}
}

func (o *Orchestrator) initialize() {
	if o.State() != StateIdle {
		o.emit(Event{Name: EvtInitialized, Timestamp: time.Now(), Success: false,
			Error: fmt.Sprintf("initialize in state %s", o.State())})
		return
	}
	o.setState(StateInitializing)
	o.setState(StateReady)
	o.emit(Event{Name: EvtInitialized, Timestamp: time.Now(), Success: true})
}

func (o *Orchestrator) start(ticker *time.Ticker, interval time.Duration) {
	if o.ticking {
		return // already started, idempotent
	}
	switch o.State() {
	case StateReady, StateStopped, StateRunning:
		ticker.Reset(interval)
		o.ticking = true
		if o.State() == StateStopped {
			o.setState(StateReady)
		}
		o.emit(Event{Name: EvtStarted, Timestamp: time.Now(), Success: true,
			IntervalMs: interval.Milliseconds()})
	default:
		o.emitError(fmt.Sprintf("start in state %s", o.State()))
	}
}

func (o *Orchestrator) stop(ticker *time.Ticker) {
	if !o.ticking {
		o.emitError(fmt.Sprintf("stop in state %s without an armed cadence", o.State()))
		return
	}
	ticker.Stop()
	o.ticking = false
	// An in-flight cycle is allowed to finish before the stop is acknowledged.
	o.cycles.Wait()
	o.setState(StateStopped)
	o.emit(Event{Name: EvtStopped, Timestamp: time.Now(), Success: true})
}

// shutdown drains in-flight work, flushes the log store and terminates.
func (o *Orchestrator) shutdown(ticker *time.Ticker) {
	ticker.Stop()
	o.setState(StateShuttingDown)
	o.cycles.Wait()
	if err := o.deps.Logs.Close(); err != nil {
		o.deps.Log.Errorf("log store close: %v", err)
	}
	o.setState(StateTerminated)
	o.emit(Event{Name: EvtShutdownComplete, Timestamp: time.Now(), Success: true})
	close(o.events)
}

// triggerCycle starts a cycle unless one is in flight. Rejections are counted
// and logged, never queued: the next tick picks up the latest state anyway.
func (o *Orchestrator) triggerCycle(ctx context.Context) {
	if !o.inFlight.CompareAndSwap(false, true) {
		cycleRejections.Inc()
		o.deps.Log.Debugf("cycle trigger rejected, cycle in flight")
		return
	}
	o.setState(StateRunning)
	o.cycles.Add(1)
	go func() {
		defer o.cycles.Done()
		defer o.inFlight.Store(false)
		// Back to READY unless stop or shutdown moved the state mid-cycle.
		defer o.state.CompareAndSwap(int32(StateRunning), int32(StateReady))
		o.runCycle(ctx)
	}()
}

// resolveAlert closes an alert manually. The escalation engine is only ever
// touched by the cycle goroutine, so resolution borrows the same guard.
func (o *Orchestrator) resolveAlert(ctx context.Context, req *ResolveRequest) {
	if req == nil || o.deps.Escalation == nil {
		o.emitError("resolve_alert: no request or escalation disabled")
		return
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		cycleRejections.Inc()
		o.emitError(fmt.Sprintf("resolve_alert for order %s rejected, cycle in flight", req.OrderID))
		return
	}
	defer o.inFlight.Store(false)

	alert, err := o.deps.Escalation.Resolve(ctx, req.OrderID, req.Type, req.ResolvedBy, time.Now())
	if err != nil {
		o.emitError(err.Error())
		return
	}
	escalationsTotal.WithLabelValues(events.AlertResolved).Inc()
	o.emitBus(events.AlertEvent{Action: events.AlertResolved, Alert: alert})
}

// runCycle executes one dispatch cycle: snapshot, plan, commit, SLA sweep,
// escalation sweep. Panics and errors become cycle_error events; the loop
// keeps running.
func (o *Orchestrator) runCycle(ctx context.Context) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.deps.Log.Errorf("cycle panic: %v", r)
			o.failCycle(fmt.Sprintf("panic: %v", r), time.Since(started))
		}
	}()

	snap, err := o.deps.Source.Snapshot(ctx)
	if err != nil {
		o.failCycle(fmt.Sprintf("snapshot: %v", err), time.Since(started))
		return
	}
	fleetSize.Set(float64(len(snap.Vehicles)))
	if fs, ok := o.deps.Metrics.(metrics.FleetSizeRecorder); ok {
		if err := fs.RecordFleetSize(len(snap.Vehicles)); err != nil {
			o.deps.Log.Errorf("fleet size metric: %v", err)
		}
	}

	var pending []model.Order
	for _, order := range snap.Orders {
		if order.Status == model.OrderPending {
			pending = append(pending, order)
		}
	}

	result := &assign.Result{Assignments: map[string]*model.Assignment{}}
	if len(pending) > 0 {
		result, err = o.deps.Assigner.Assign(snap.Vehicles, snap.Pickups, pending)
		switch {
		case errors.Is(err, assign.ErrNoVehicles), errors.Is(err, assign.ErrNoPickups):
			o.deps.Log.Warnf("cycle skipped planning: %v", err)
			result = &assign.Result{Assignments: map[string]*model.Assignment{}, Unassigned: pending}
		case err != nil:
			o.failCycle(fmt.Sprintf("assign: %v", err), time.Since(started))
			return
		}
	}

	executed := o.commitAssignments(ctx, result, started)
	o.logOptimization(ctx, result, time.Since(started))
	escalated := o.sweepEscalations(ctx, snap, result, started)

	duration := time.Since(started)
	res := CycleResult{
		ActionsPlanned:   len(pending),
		ActionsExecuted:  executed,
		ActionsEscalated: escalated,
		DurationMs:       duration.Milliseconds(),
		Timestamp:        started,
	}

	cyclesTotal.Inc()
	cycleDuration.Observe(duration.Seconds())
	if err := o.deps.Metrics.RecordCycle(metrics.CycleStats{
		Planned:   res.ActionsPlanned,
		Executed:  res.ActionsExecuted,
		Escalated: res.ActionsEscalated,
		Duration:  duration,
		Timestamp: started,
		Strategy:  result.Summary.Strategy,
	}); err != nil {
		o.deps.Log.Errorf("cycle metrics: %v", err)
	}

	o.emitBus(events.CycleEvent{
		Planned:   res.ActionsPlanned,
		Executed:  res.ActionsExecuted,
		Escalated: res.ActionsEscalated,
		Duration:  duration,
		Timestamp: started,
		Strategy:  result.Summary.Strategy,
	})
	o.emit(Event{Name: EvtCycleComplete, Timestamp: time.Now(), Success: true,
		DurationMs: duration.Milliseconds(), Result: &res})
}

func (o *Orchestrator) failCycle(msg string, duration time.Duration) {
	cycleErrorsTotal.Inc()
	o.emitBus(events.CycleEvent{Duration: duration, Timestamp: time.Now(), Err: msg})
	if err := o.deps.Logs.AppendAlert(context.Background(), logging.DispatchAlert{
		AlertType: "CYCLE_ERROR",
		Severity:  "ERROR",
		Message:   msg,
		CreatedAt: time.Now(),
	}); err != nil {
		o.deps.Log.Errorf("alert log: %v", err)
	}
	o.emit(Event{Name: EvtCycleError, Timestamp: time.Now(), Success: false,
		Error: msg, DurationMs: duration.Milliseconds()})
}

// commitAssignments applies the plan to the shared state and persists one
// assignment log row per delivery. A commit failure skips that vehicle and is
// surfaced as telemetry rather than failing the cycle.
func (o *Orchestrator) commitAssignments(ctx context.Context, result *assign.Result, now time.Time) int {
	var executed int
	var records []metrics.AssignmentRecord
	for _, asn := range result.Assignments {
		asn.AssignedAt = now
		if err := o.deps.Committer.CommitAssignment(ctx, *asn); err != nil {
			o.deps.Log.Errorf("commit for vehicle %s failed: %v", asn.VehicleID, err)
			continue
		}
		executed += len(asn.Deliveries)
		records = append(records, metrics.AssignmentRecord{
			VehicleID:  asn.VehicleID,
			DriverID:   asn.DriverID,
			PickupID:   asn.PickupID,
			Strategy:   asn.Strategy,
			Deliveries: len(asn.Deliveries),
			LoadUnits:  asn.TotalLoad,
			DistanceKm: asn.TotalDistanceKm,
			Score:      asn.Score.Total,
			AssignedAt: now,
		})
		deliveriesAssigned.WithLabelValues(asn.Strategy).Add(float64(len(asn.Deliveries)))

		eta := int(asn.TotalDistanceKm / averageSpeedKmh * 60)
		for _, order := range asn.Deliveries {
			if err := o.deps.Logs.AppendAssignment(ctx, logging.AssignmentLog{
				OrderID:              order.ID,
				DriverID:             asn.DriverID,
				AssignmentStrategy:   asn.Strategy,
				DistanceKm:           asn.TotalDistanceKm,
				EstimatedTimeMinutes: eta,
				AssignedAt:           now,
				Status:               string(model.OrderAssigned),
				ConfidenceScore:      asn.Score.Total,
				AlternativeCount:     len(result.Assignments) - 1,
				CreatedBy:            logging.CreatedBySystem,
			}); err != nil {
				o.deps.Log.Errorf("assignment log for order %s: %v", order.ID, err)
			}
		}
		o.emitBus(events.AssignmentEvent{
			VehicleID:  asn.VehicleID,
			PickupID:   asn.PickupID,
			Deliveries: len(asn.Deliveries),
			LoadUnits:  asn.TotalLoad,
			DistanceKm: asn.TotalDistanceKm,
		})
	}
	if len(records) > 0 {
		if err := o.deps.Metrics.RecordAssignments(records); err != nil {
			o.deps.Log.Errorf("assignment metrics: %v", err)
		}
	}
	return executed
}

// logOptimization persists the greedy-vs-exact comparison when the exact
// matcher produced the plan.
func (o *Orchestrator) logOptimization(ctx context.Context, result *assign.Result, elapsed time.Duration) {
	if result.Comparison == nil {
		return
	}
	cmp := result.Comparison
	beforeMin := cmp.DistanceBeforeKm / averageSpeedKmh * 60
	afterMin := cmp.DistanceAfterKm / averageSpeedKmh * 60
	if err := o.deps.Logs.AppendOptimization(ctx, logging.OptimizationLog{
		BatchID:           uuid.NewString(),
		OptimizationType:  "assignment_matching",
		OrdersCount:       result.Summary.TotalDeliveries,
		DistanceBeforeKm:  cmp.DistanceBeforeKm,
		DistanceAfterKm:   cmp.DistanceAfterKm,
		DistanceSavedKm:   cmp.DistanceBeforeKm - cmp.DistanceAfterKm,
		TimeBeforeMinutes: beforeMin,
		TimeAfterMinutes:  afterMin,
		TimeSavedMinutes:  beforeMin - afterMin,
		AlgorithmUsed:     "hungarian",
		ComputationTimeMs: elapsed.Milliseconds(),
		Success:           true,
		CreatedAt:         time.Now(),
	}); err != nil {
		o.deps.Log.Errorf("optimization log: %v", err)
	}
}

// sweepEscalations recomputes every open order's deadline and runs one
// escalation sweep. Returns the number of opened plus escalated alerts.
func (o *Orchestrator) sweepEscalations(ctx context.Context, snap store.Snapshot, result *assign.Result, now time.Time) int {
	if o.deps.Deadlines == nil || o.deps.Escalation == nil {
		return 0
	}
	windows := make([]model.SLAWindow, 0, len(snap.Orders))
	for _, order := range snap.Orders {
		windows = append(windows, o.deps.Deadlines.Status(order, now))
	}
	drivers := make(map[string]string)
	for _, asn := range result.Assignments {
		for _, order := range asn.Deliveries {
			drivers[order.ID] = asn.DriverID
		}
	}

	outcome := o.deps.Escalation.Evaluate(ctx, windows, drivers, now)
	for _, a := range outcome.Opened {
		escalationsTotal.WithLabelValues(events.AlertOpened).Inc()
		o.emitBus(events.AlertEvent{Action: events.AlertOpened, Alert: a})
	}
	for _, a := range outcome.Escalated {
		escalationsTotal.WithLabelValues(events.AlertEscalated).Inc()
		o.emitBus(events.AlertEvent{Action: events.AlertEscalated, Alert: a})
	}
	for _, a := range outcome.AutoResolved {
		escalationsTotal.WithLabelValues(events.AlertAutoResolved).Inc()
		o.emitBus(events.AlertEvent{Action: events.AlertAutoResolved, Alert: a})
	}
	return len(outcome.Opened) + len(outcome.Escalated)
}

// emit publishes a lifecycle event without blocking. A full channel is logged
// and dropped; the consumer is expected to keep up.
func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
		o.deps.Log.Warnf("event channel full, dropping %s", ev.Name)
	}
}

func (o *Orchestrator) emitError(msg string) {
	o.deps.Log.Warnf("%s", msg)
	o.emit(Event{Name: EvtError, Timestamp: time.Now(), Success: false, Error: msg})
}

func (o *Orchestrator) emitBus(payload any) {
	if o.deps.Bus != nil {
		o.deps.Bus.Publish(payload)
	}
}
