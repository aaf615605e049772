package assign

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fleetops/dispatchd/core/model"
)

var (
	hubA = model.Coordinate{Lat: 12.9716, Lon: 77.5946} // pickup A
	hubB = model.Coordinate{Lat: 12.9352, Lon: 77.6245} // pickup B
)

func testPickups() []model.PickupPoint {
	return []model.PickupPoint{
		{ID: "pickup-a", Location: hubA},
		{ID: "pickup-b", Location: hubB},
	}
}

func order(id, pickupID string, dropoff model.Coordinate, demand float64) model.Order {
	return model.Order{
		ID:        id,
		PickupID:  pickupID,
		Dropoff:   dropoff,
		Demand:    demand,
		Class:     model.ClassStandard,
		CreatedAt: time.Now(),
		Status:    model.OrderPending,
	}
}

func vehicle(id string, loc model.Coordinate, capacity float64) model.Vehicle {
	return model.Vehicle{ID: id, DriverID: "d-" + id, Location: loc, Capacity: capacity, Available: true}
}

func newTestAssigner(t *testing.T) *Assigner {
	t.Helper()
	a, err := NewAssigner(DefaultWeights(), PolicyNormalize, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a
}

func TestAssign_ValidationErrors(t *testing.T) {
	a := newTestAssigner(t)
	vs := []model.Vehicle{vehicle("v1", hubA, 10)}
	ps := testPickups()
	os := []model.Order{order("o1", "pickup-a", hubB, 1)}

	if _, err := a.Assign(nil, ps, os); !errors.Is(err, ErrNoVehicles) {
		t.Errorf("expected ErrNoVehicles, got %v", err)
	}
	if _, err := a.Assign(vs, nil, os); !errors.Is(err, ErrNoPickups) {
		t.Errorf("expected ErrNoPickups, got %v", err)
	}
	if _, err := a.Assign(vs, ps, nil); !errors.Is(err, ErrNoDeliveries) {
		t.Errorf("expected ErrNoDeliveries, got %v", err)
	}
}

func TestClusterDensity_SingleDeliveryIsMax(t *testing.T) {
	got := clusterDensity([]model.Order{order("o1", "pickup-a", hubB, 1)}, model.HaversineDistance)
	if got != 100 {
		t.Fatalf("single delivery must score maximum density 100, got %v", got)
	}
}

func TestClusterDensity_TightBeatsScattered(t *testing.T) {
	tight := []model.Order{
		order("o1", "pickup-a", model.Coordinate{Lat: 12.97, Lon: 77.59}, 1),
		order("o2", "pickup-a", model.Coordinate{Lat: 12.971, Lon: 77.591}, 1),
	}
	scattered := []model.Order{
		order("o3", "pickup-a", model.Coordinate{Lat: 12.90, Lon: 77.50}, 1),
		order("o4", "pickup-a", model.Coordinate{Lat: 13.10, Lon: 77.80}, 1),
	}
	if clusterDensity(tight, model.HaversineDistance) <= clusterDensity(scattered, model.HaversineDistance) {
		t.Fatalf("tightly grouped deliveries must score higher density")
	}
}

func TestAssign_ContinuityOutranksColdStart(t *testing.T) {
	a := newTestAssigner(t)
	loc := model.Coordinate{Lat: 12.95, Lon: 77.60}
	withRoute := vehicle("v-route", loc, 20)
	withRoute.Load = 5
	withRoute.CurrentRoute = &model.Route{PickupID: "pickup-a", CommittedLoad: 5}
	// The cold-start vehicle is otherwise the better pick: identical
	// location and more remaining capacity.
	coldStart := vehicle("v-cold", loc, 30)

	res, err := a.Assign(
		[]model.Vehicle{coldStart, withRoute},
		[]model.PickupPoint{{ID: "pickup-a", Location: hubA}},
		[]model.Order{order("o1", "pickup-a", hubB, 2)},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := res.Assignments["v-route"]; !ok {
		t.Fatalf("vehicle with an open route to the pickup must win, got %v", res.Assignments)
	}
}

func TestAssign_EndToEndTwoPickups(t *testing.T) {
	a := newTestAssigner(t)

	vehicles := []model.Vehicle{
		vehicle("v1", model.Coordinate{Lat: 12.96, Lon: 77.58}, 10),
		vehicle("v2", model.Coordinate{Lat: 12.94, Lon: 77.62}, 10),
		vehicle("v3", model.Coordinate{Lat: 12.98, Lon: 77.60}, 10),
		vehicle("v4", model.Coordinate{Lat: 12.92, Lon: 77.64}, 10),
		vehicle("v5", model.Coordinate{Lat: 12.95, Lon: 77.61}, 10),
	}

	var deliveries []model.Order
	for i := 0; i < 7; i++ {
		drop := model.Coordinate{Lat: 12.97 + float64(i)*0.002, Lon: 77.58 + float64(i)*0.002}
		deliveries = append(deliveries, order(fmt.Sprintf("a-%d", i), "pickup-a", drop, 1))
	}
	for i := 0; i < 5; i++ {
		drop := model.Coordinate{Lat: 12.93 - float64(i)*0.002, Lon: 77.63 + float64(i)*0.002}
		deliveries = append(deliveries, order(fmt.Sprintf("b-%d", i), "pickup-b", drop, 1))
	}

	res, err := a.Assign(vehicles, testPickups(), deliveries)
	if err != nil {
		t.Fatalf("expected no validation error, got %v", err)
	}
	if len(res.Unassigned) != 0 {
		t.Fatalf("all 12 deliveries must be assigned, %d left over", len(res.Unassigned))
	}
	if res.Summary.TotalDeliveries != 12 {
		t.Fatalf("expected 12 deliveries assigned, got %d", res.Summary.TotalDeliveries)
	}
	if res.Summary.VehiclesUsed < 2 {
		t.Fatalf("expected at least 2 vehicles, got %d", res.Summary.VehiclesUsed)
	}
	total := 0
	for _, asn := range res.Assignments {
		total += len(asn.Deliveries)
		if asn.TotalLoad > 10 {
			t.Fatalf("vehicle %s overloaded: %v", asn.VehicleID, asn.TotalLoad)
		}
	}
	if total != 12 {
		t.Fatalf("assignment records must cover all 12 deliveries, got %d", total)
	}
}

func TestAssign_OverflowSpillsToNextVehicle(t *testing.T) {
	a := newTestAssigner(t)
	vehicles := []model.Vehicle{
		vehicle("first", hubA, 4),
		vehicle("second", hubA, 4),
	}
	var deliveries []model.Order
	for i := 0; i < 6; i++ {
		deliveries = append(deliveries, order(fmt.Sprintf("o-%d", i), "pickup-a", hubB, 1))
	}
	res, err := a.Assign(vehicles, []model.PickupPoint{{ID: "pickup-a", Location: hubA}}, deliveries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.TotalDeliveries != 6 || len(res.Unassigned) != 0 {
		t.Fatalf("all deliveries must be placed across vehicles: %+v", res.Summary)
	}
	if res.Summary.VehiclesUsed != 2 {
		t.Fatalf("expected overflow to use both vehicles, got %d", res.Summary.VehiclesUsed)
	}
}

func TestAssign_SequenceNearestFirst(t *testing.T) {
	a := newTestAssigner(t)
	near := model.Coordinate{Lat: 12.9720, Lon: 77.5950}
	mid := model.Coordinate{Lat: 12.9800, Lon: 77.6050}
	far := model.Coordinate{Lat: 13.0000, Lon: 77.6300}

	res, err := a.Assign(
		[]model.Vehicle{vehicle("v1", hubA, 10)},
		[]model.PickupPoint{{ID: "pickup-a", Location: hubA}},
		[]model.Order{
			order("far", "pickup-a", far, 1),
			order("near", "pickup-a", near, 1),
			order("mid", "pickup-a", mid, 1),
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := res.Assignments["v1"].OrderIDs()
	want := []string{"near", "mid", "far"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected visit order %v, got %v", want, got)
		}
	}
}

func TestNewAssigner_WeightPolicies(t *testing.T) {
	skewed := Weights{VehicleDistance: 0.5, DeliveryDistance: 0.5, Density: 0.5, LoadBalance: 0.5, RouteCompat: 0.5}

	if _, err := NewAssigner(skewed, PolicyStrict, nil, nil); err == nil {
		t.Fatalf("strict policy must reject weights summing to %.1f", skewed.Sum())
	}

	a, err := NewAssigner(skewed, PolicyNormalize, nil, nil)
	if err != nil {
		t.Fatalf("normalize policy must accept skewed weights: %v", err)
	}
	if sum := a.weights.Sum(); sum < 0.999 || sum > 1.001 {
		t.Fatalf("weights must be rescaled to 1.0, got %v", sum)
	}
}

func TestAssign_GreedyWhenSolverDisabled(t *testing.T) {
	a := newTestAssigner(t)
	a.DisableSolver()

	res, err := a.Assign(
		[]model.Vehicle{vehicle("v1", hubA, 10), vehicle("v2", hubB, 10)},
		testPickups(),
		[]model.Order{
			order("o1", "pickup-a", hubB, 1),
			order("o2", "pickup-b", hubA, 1),
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.Strategy != StrategyGreedy {
		t.Fatalf("expected greedy strategy, got %s", res.Summary.Strategy)
	}
	if res.Comparison != nil {
		t.Fatalf("greedy path must not produce a comparison")
	}
}

func TestAssign_OptimalStrategyOnMultipleClusters(t *testing.T) {
	a := newTestAssigner(t)
	res, err := a.Assign(
		[]model.Vehicle{vehicle("v1", hubA, 10), vehicle("v2", hubB, 10)},
		testPickups(),
		[]model.Order{
			order("o1", "pickup-a", hubB, 1),
			order("o2", "pickup-b", hubA, 1),
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary.Strategy != StrategyOptimal {
		t.Fatalf("expected optimal strategy with two clusters, got %s", res.Summary.Strategy)
	}
	if res.Comparison == nil {
		t.Fatalf("optimal path must record a baseline comparison")
	}
	// Each vehicle sits on a pickup: the exact matcher must keep them local.
	if res.Assignments["v1"].PickupID != "pickup-a" || res.Assignments["v2"].PickupID != "pickup-b" {
		t.Fatalf("expected v1->pickup-a and v2->pickup-b, got %v and %v",
			res.Assignments["v1"].PickupID, res.Assignments["v2"].PickupID)
	}
}
