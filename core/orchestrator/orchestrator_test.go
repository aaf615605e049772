package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fleetops/dispatchd/core/assign"
	"github.com/fleetops/dispatchd/core/escalation"
	"github.com/fleetops/dispatchd/core/model"
	"github.com/fleetops/dispatchd/core/sla"
	"github.com/fleetops/dispatchd/core/store"
	"github.com/fleetops/dispatchd/internal/eventbus"
)

type assignerFunc func([]model.Vehicle, []model.PickupPoint, []model.Order) (*assign.Result, error)

func (f assignerFunc) Assign(v []model.Vehicle, p []model.PickupPoint, d []model.Order) (*assign.Result, error) {
	return f(v, p, d)
}

func emptyResult() *assign.Result {
	return &assign.Result{Assignments: map[string]*model.Assignment{}}
}

func seededStore(t *testing.T, orderAge time.Duration) *store.MemoryStore {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.AddPickup(model.PickupPoint{ID: "hub", Location: model.Coordinate{Lat: 12.97, Lon: 77.59}})
	if err := ms.AddVehicle(model.Vehicle{
		ID: "v1", DriverID: "d1", Capacity: 10, Available: true,
		Location: model.Coordinate{Lat: 12.96, Lon: 77.58},
	}); err != nil {
		t.Fatalf("AddVehicle: %v", err)
	}
	if err := ms.AddOrder(model.Order{
		ID: "o1", PickupID: "hub", Demand: 1, Class: model.ClassStandard,
		Dropoff:   model.Coordinate{Lat: 12.99, Lon: 77.60},
		CreatedAt: time.Now().Add(-orderAge),
	}); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	return ms
}

func newTestOrchestrator(t *testing.T, ms *store.MemoryStore, asgn Assigner) *Orchestrator {
	t.Helper()
	if asgn == nil {
		real, err := assign.NewAssigner(assign.DefaultWeights(), assign.PolicyNormalize, nil, nil)
		if err != nil {
			t.Fatalf("NewAssigner: %v", err)
		}
		asgn = real
	}
	calc, err := sla.NewCalculator(sla.Config{})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	eng, err := escalation.NewEngine(escalation.Config{}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	o, err := New(Config{CycleIntervalMinutes: 60}, Deps{
		Source:     ms,
		Committer:  ms,
		Assigner:   asgn,
		Deadlines:  calc,
		Escalation: eng,
		Bus:        eventbus.New(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

// waitEvent reads events until one with the given name arrives.
func waitEvent(t *testing.T, events <-chan Event, name string) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", name)
			}
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}

func TestLifecycle(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	ms := seededStore(t, time.Minute)
	o := newTestOrchestrator(t, ms, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	o.Commands() <- Command{Name: CmdInitialize}
	if ev := waitEvent(t, o.Events(), EvtInitialized); !ev.Success {
		t.Fatalf("initialize failed: %s", ev.Error)
	}
	o.Commands() <- Command{Name: CmdStart}
	if ev := waitEvent(t, o.Events(), EvtStarted); ev.IntervalMs != 60*60*1000 {
		t.Fatalf("unexpected interval: %d", ev.IntervalMs)
	}

	o.Commands() <- Command{Name: CmdRunCycle}
	ev := waitEvent(t, o.Events(), EvtCycleComplete)
	if ev.Result == nil {
		t.Fatalf("cycle_complete without result")
	}
	if ev.Result.ActionsPlanned != 1 || ev.Result.ActionsExecuted != 1 {
		t.Fatalf("expected 1 planned and 1 executed, got %+v", ev.Result)
	}

	o.Commands() <- Command{Name: CmdStop}
	waitEvent(t, o.Events(), EvtStopped)

	o.Commands() <- Command{Name: CmdShutdown}
	waitEvent(t, o.Events(), EvtShutdownComplete)
	if _, ok := <-o.Events(); ok {
		t.Fatalf("expected event channel to close after shutdown")
	}
	if o.State() != StateTerminated {
		t.Fatalf("expected TERMINATED, got %s", o.State())
	}
}

func TestCycleCommitsAssignment(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	ms := seededStore(t, time.Minute)
	o := newTestOrchestrator(t, ms, nil)
	go o.Run(context.Background())

	o.Commands() <- Command{Name: CmdInitialize}
	o.Commands() <- Command{Name: CmdRunCycle}
	waitEvent(t, o.Events(), EvtCycleComplete)

	snap, err := ms.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Orders[0].Status != model.OrderAssigned {
		t.Fatalf("expected order assigned, got %s", snap.Orders[0].Status)
	}
	if snap.Vehicles[0].Load != 1 {
		t.Fatalf("expected vehicle load 1, got %v", snap.Vehicles[0].Load)
	}
	o.Commands() <- Command{Name: CmdShutdown}
	waitEvent(t, o.Events(), EvtShutdownComplete)
}

func TestCycleErrorThenRecovers(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	ms := seededStore(t, time.Minute)

	calls := 0
	stub := assignerFunc(func([]model.Vehicle, []model.PickupPoint, []model.Order) (*assign.Result, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("matrix exploded")
		}
		return emptyResult(), nil
	})
	o := newTestOrchestrator(t, ms, stub)
	go o.Run(context.Background())

	o.Commands() <- Command{Name: CmdInitialize}
	o.Commands() <- Command{Name: CmdRunCycle}
	ev := waitEvent(t, o.Events(), EvtCycleError)
	if !strings.Contains(ev.Error, "matrix exploded") {
		t.Fatalf("unexpected error: %s", ev.Error)
	}

	o.Commands() <- Command{Name: CmdRunCycle}
	waitEvent(t, o.Events(), EvtCycleComplete)

	if got := testutil.ToFloat64(cycleErrorsTotal); got != 1 {
		t.Fatalf("expected 1 cycle error, got %v", got)
	}
	o.Commands() <- Command{Name: CmdShutdown}
	waitEvent(t, o.Events(), EvtShutdownComplete)
}

func TestCyclePanicIsRecovered(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	ms := seededStore(t, time.Minute)

	calls := 0
	stub := assignerFunc(func([]model.Vehicle, []model.PickupPoint, []model.Order) (*assign.Result, error) {
		calls++
		if calls == 1 {
			panic("scoring blew up")
		}
		return emptyResult(), nil
	})
	o := newTestOrchestrator(t, ms, stub)
	go o.Run(context.Background())

	o.Commands() <- Command{Name: CmdInitialize}
	o.Commands() <- Command{Name: CmdRunCycle}
	ev := waitEvent(t, o.Events(), EvtCycleError)
	if !strings.Contains(ev.Error, "scoring blew up") {
		t.Fatalf("expected panic message in event, got %s", ev.Error)
	}

	// The loop survives the panic.
	o.Commands() <- Command{Name: CmdRunCycle}
	waitEvent(t, o.Events(), EvtCycleComplete)
	o.Commands() <- Command{Name: CmdShutdown}
	waitEvent(t, o.Events(), EvtShutdownComplete)
}

func TestOverlappingTriggersAreRejected(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	ms := seededStore(t, time.Minute)

	entered := make(chan struct{})
	release := make(chan struct{})
	stub := assignerFunc(func([]model.Vehicle, []model.PickupPoint, []model.Order) (*assign.Result, error) {
		close(entered)
		<-release
		return emptyResult(), nil
	})
	o := newTestOrchestrator(t, ms, stub)
	go o.Run(context.Background())

	o.Commands() <- Command{Name: CmdInitialize}
	o.Commands() <- Command{Name: CmdRunCycle}
	<-entered

	o.Commands() <- Command{Name: CmdRunCycle} // in flight, must be a no-op
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(cycleRejections) < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a rejected trigger")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(release)

	waitEvent(t, o.Events(), EvtCycleComplete)
	if got := testutil.ToFloat64(cyclesTotal); got != 1 {
		t.Fatalf("expected exactly 1 completed cycle, got %v", got)
	}
	o.Commands() <- Command{Name: CmdShutdown}
	waitEvent(t, o.Events(), EvtShutdownComplete)
}

func TestStateTracksCycleFlight(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	ms := seededStore(t, time.Minute)

	entered := make(chan struct{})
	release := make(chan struct{})
	stub := assignerFunc(func([]model.Vehicle, []model.PickupPoint, []model.Order) (*assign.Result, error) {
		close(entered)
		<-release
		return emptyResult(), nil
	})
	o := newTestOrchestrator(t, ms, stub)
	go o.Run(context.Background())

	o.Commands() <- Command{Name: CmdInitialize}
	waitEvent(t, o.Events(), EvtInitialized)
	if o.State() != StateReady {
		t.Fatalf("expected READY after initialize, got %s", o.State())
	}

	o.Commands() <- Command{Name: CmdRunCycle}
	<-entered
	if o.State() != StateRunning {
		t.Fatalf("expected RUNNING while a cycle is in flight, got %s", o.State())
	}
	close(release)
	waitEvent(t, o.Events(), EvtCycleComplete)

	deadline := time.Now().Add(2 * time.Second)
	for o.State() != StateReady {
		if time.Now().After(deadline) {
			t.Fatalf("expected READY after cycle completion, got %s", o.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
	o.Commands() <- Command{Name: CmdShutdown}
	waitEvent(t, o.Events(), EvtShutdownComplete)
}

func TestStopWithoutStartIsAnError(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	ms := seededStore(t, time.Minute)
	o := newTestOrchestrator(t, ms, nil)
	go o.Run(context.Background())

	o.Commands() <- Command{Name: CmdInitialize}
	waitEvent(t, o.Events(), EvtInitialized)
	o.Commands() <- Command{Name: CmdStop}
	ev := waitEvent(t, o.Events(), EvtError)
	if !strings.Contains(ev.Error, "cadence") {
		t.Fatalf("unexpected error: %s", ev.Error)
	}
	o.Commands() <- Command{Name: CmdShutdown}
	waitEvent(t, o.Events(), EvtShutdownComplete)
}

func TestRunCycleBeforeInitialize(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	ms := seededStore(t, time.Minute)
	o := newTestOrchestrator(t, ms, nil)
	go o.Run(context.Background())

	o.Commands() <- Command{Name: CmdRunCycle}
	ev := waitEvent(t, o.Events(), EvtError)
	if !strings.Contains(ev.Error, "initialization") {
		t.Fatalf("unexpected error: %s", ev.Error)
	}
	o.Commands() <- Command{Name: CmdShutdown}
	waitEvent(t, o.Events(), EvtShutdownComplete)
}

func TestBreachedOrderOpensAlert(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	ms := seededStore(t, 48*time.Hour) // well past any deadline rule
	o := newTestOrchestrator(t, ms, nil)
	go o.Run(context.Background())

	o.Commands() <- Command{Name: CmdInitialize}
	o.Commands() <- Command{Name: CmdRunCycle}
	ev := waitEvent(t, o.Events(), EvtCycleComplete)
	if ev.Result.ActionsEscalated < 1 {
		t.Fatalf("expected a breached order to open an alert, got %+v", ev.Result)
	}

	// Same breach on the next cycle is deduplicated.
	o.Commands() <- Command{Name: CmdRunCycle}
	ev = waitEvent(t, o.Events(), EvtCycleComplete)
	if ev.Result.ActionsEscalated != 0 {
		t.Fatalf("expected dedup on second cycle, got %+v", ev.Result)
	}
	o.Commands() <- Command{Name: CmdShutdown}
	waitEvent(t, o.Events(), EvtShutdownComplete)
}

func TestResolveAlertUnknownOrder(t *testing.T) {
	ResetMetrics(prometheus.NewRegistry())
	ms := seededStore(t, time.Minute)
	o := newTestOrchestrator(t, ms, nil)
	go o.Run(context.Background())

	o.Commands() <- Command{Name: CmdInitialize}
	o.Commands() <- Command{Name: CmdResolveAlert, Resolve: &ResolveRequest{
		OrderID: "nope", Type: escalation.TypeSLARisk, ResolvedBy: "ops",
	}}
	ev := waitEvent(t, o.Events(), EvtError)
	if !strings.Contains(ev.Error, "no open") {
		t.Fatalf("unexpected error: %s", ev.Error)
	}
	o.Commands() <- Command{Name: CmdShutdown}
	waitEvent(t, o.Events(), EvtShutdownComplete)
}
