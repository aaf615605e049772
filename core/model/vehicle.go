package model

import "fmt"

// Route captures the pickup a vehicle is already servicing and the load it
// has committed to that corridor.
type Route struct {
	PickupID      string
	CommittedLoad float64
}

// Vehicle represents a delivery vehicle available for dispatch.
type Vehicle struct {
	ID        string
	DriverID  string
	Location  Coordinate
	Capacity  float64 // total load units the vehicle can carry
	Load      float64 // load units already committed this cycle
	Available bool

	// CurrentRoute is set when the vehicle is already servicing a pickup.
	// A vehicle with spare capacity on an open route absorbs new deliveries
	// along that corridor instead of an idle vehicle being dispatched.
	CurrentRoute *Route

	Metadata map[string]string
}

// Validate checks that the vehicle configuration is sound.
func (v Vehicle) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vehicle: id is required")
	}
	if v.Capacity <= 0 {
		return fmt.Errorf("vehicle %s: capacity must be positive", v.ID)
	}
	return nil
}

// RemainingCapacity returns the load units still available on the vehicle.
func (v Vehicle) RemainingCapacity() float64 {
	rem := v.Capacity - v.Load
	if rem < 0 {
		return 0
	}
	return rem
}

// CanCarry reports whether the vehicle can absorb the given demand.
func (v Vehicle) CanCarry(demand float64) bool {
	return v.Available && v.RemainingCapacity() >= demand
}

// HasOpenRouteTo reports whether the vehicle is already servicing the pickup
// with spare capacity.
func (v Vehicle) HasOpenRouteTo(pickupID string) bool {
	return v.CurrentRoute != nil &&
		v.CurrentRoute.PickupID == pickupID &&
		v.RemainingCapacity() > 0
}
