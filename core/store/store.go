// Package store defines the order/vehicle read model consumed by the cycle
// loop, plus an in-memory implementation. The orchestrator treats each
// snapshot as immutable for the duration of a cycle (read-compute-commit);
// the next cycle simply sees the latest state.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetops/dispatchd/core/model"
)

// Snapshot is one cycle's view of pending work and available vehicles.
type Snapshot struct {
	Orders   []model.Order
	Pickups  []model.PickupPoint
	Vehicles []model.Vehicle
	TakenAt  time.Time
}

// Source yields per-cycle snapshots.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Committer applies committed assignments back to the shared read model.
type Committer interface {
	CommitAssignment(ctx context.Context, asn model.Assignment) error
}

// MemoryStore is a process-local Source and Committer. It backs the
// self-contained binary and tests; production deployments swap in an
// external order/vehicle store behind the same interfaces.
type MemoryStore struct {
	mu         sync.RWMutex
	orders     map[string]model.Order
	orderIDs   []string // insertion order, keeps snapshots deterministic
	pickups    map[string]model.PickupPoint
	pickupIDs  []string
	vehicles   map[string]model.Vehicle
	vehicleIDs []string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]model.Order),
		pickups:  make(map[string]model.PickupPoint),
		vehicles: make(map[string]model.Vehicle),
	}
}

// AddPickup registers a pickup point.
func (s *MemoryStore) AddPickup(p model.PickupPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pickups[p.ID]; !exists {
		s.pickupIDs = append(s.pickupIDs, p.ID)
	}
	s.pickups[p.ID] = p
}

// AddVehicle registers or replaces a vehicle.
func (s *MemoryStore) AddVehicle(v model.Vehicle) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vehicles[v.ID]; !exists {
		s.vehicleIDs = append(s.vehicleIDs, v.ID)
	}
	s.vehicles[v.ID] = v
	return nil
}

// AddOrder registers a new order.
func (s *MemoryStore) AddOrder(o model.Order) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; !exists {
		s.orderIDs = append(s.orderIDs, o.ID)
	}
	s.orders[o.ID] = o
	return nil
}

// SetOrderStatus transitions an order. Terminal orders are immutable.
func (s *MemoryStore) SetOrderStatus(orderID string, status model.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("store: unknown order %s", orderID)
	}
	if o.Terminal() {
		return fmt.Errorf("store: order %s is %s and immutable", orderID, o.Status)
	}
	o.Status = status
	s.orders[orderID] = o
	return nil
}

// Snapshot returns the open orders, known pickups and available vehicles.
func (s *MemoryStore) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{TakenAt: time.Now()}
	for _, id := range s.orderIDs {
		if o := s.orders[id]; !o.Terminal() {
			snap.Orders = append(snap.Orders, o)
		}
	}
	for _, id := range s.pickupIDs {
		snap.Pickups = append(snap.Pickups, s.pickups[id])
	}
	for _, id := range s.vehicleIDs {
		if v := s.vehicles[id]; v.Available {
			snap.Vehicles = append(snap.Vehicles, v)
		}
	}
	return snap, nil
}

// CommitAssignment transitions the covered orders to assigned and books the
// load and route on the vehicle.
func (s *MemoryStore) CommitAssignment(ctx context.Context, asn model.Assignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vehicles[asn.VehicleID]
	if !ok {
		return fmt.Errorf("store: unknown vehicle %s", asn.VehicleID)
	}
	for _, o := range asn.Deliveries {
		cur, ok := s.orders[o.ID]
		if !ok {
			return fmt.Errorf("store: unknown order %s", o.ID)
		}
		if cur.Terminal() {
			continue
		}
		cur.Status = model.OrderAssigned
		s.orders[o.ID] = cur
	}
	v.Load += asn.TotalLoad
	v.CurrentRoute = &model.Route{PickupID: asn.PickupID, CommittedLoad: asn.TotalLoad}
	s.vehicles[asn.VehicleID] = v
	return nil
}

// DriverByOrder maps open order IDs to the driver of the vehicle servicing
// their pickup, for escalation attribution.
func (s *MemoryStore) DriverByOrder(assignments map[string]*model.Assignment) map[string]string {
	drivers := make(map[string]string)
	for _, asn := range assignments {
		for _, o := range asn.Deliveries {
			drivers[o.ID] = asn.DriverID
		}
	}
	return drivers
}
