package model

import (
	"fmt"
	"time"
)

// ServiceClass identifies the delivery tier an order was sold under. Each
// class carries a distinct SLA window.
type ServiceClass int

const (
	ClassExpress ServiceClass = iota
	ClassPriority
	ClassStandard
)

// String returns a human-readable representation of the service class.
func (c ServiceClass) String() string {
	switch c {
	case ClassExpress:
		return "express"
	case ClassPriority:
		return "priority"
	case ClassStandard:
		return "standard"
	default:
		return "unknown"
	}
}

// OrderStatus tracks an order through its delivery lifecycle.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderAssigned  OrderStatus = "assigned"
	OrderInTransit OrderStatus = "in_transit"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// Order represents a delivery order. Orders are created externally; the
// engine only transitions Status when an assignment is committed. Delivered
// and cancelled orders are immutable.
type Order struct {
	ID        string
	PickupID  string
	Pickup    Coordinate
	Dropoff   Coordinate
	Demand    float64 // load units consumed on the vehicle
	Class     ServiceClass
	Priority  int // higher is more urgent, used as a sequencing tie-break
	CreatedAt time.Time
	Status    OrderStatus

	Metadata map[string]string
}

// Validate checks that the order is well formed.
func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order: id is required")
	}
	if o.PickupID == "" {
		return fmt.Errorf("order %s: pickup id is required", o.ID)
	}
	if o.Demand < 0 {
		return fmt.Errorf("order %s: demand must be non-negative", o.ID)
	}
	return nil
}

// Terminal reports whether the order has reached an immutable state.
func (o Order) Terminal() bool {
	return o.Status == OrderDelivered || o.Status == OrderCancelled
}

// Pickup is a pickup point with pending deliveries.
type PickupPoint struct {
	ID       string
	Location Coordinate
}

// Cluster groups the pending deliveries of one pickup point for a single
// dispatch cycle. Clusters are derived per cycle and never persisted.
type Cluster struct {
	PickupID   string
	Pickup     Coordinate
	Deliveries []Order
}

// TotalDemand sums the load units of all deliveries in the cluster.
func (c Cluster) TotalDemand() float64 {
	var d float64
	for _, o := range c.Deliveries {
		d += o.Demand
	}
	return d
}
