package model

import "time"

// ScoreBreakdown records the five normalized factors that produced an
// assignment score, plus the weighted total. Kept alongside the assignment so
// operators can explain why a vehicle was picked.
type ScoreBreakdown struct {
	VehicleDistance  float64 `json:"vehicle_distance"`
	DeliveryDistance float64 `json:"delivery_distance"`
	Density          float64 `json:"density"`
	LoadBalance      float64 `json:"load_balance"`
	RouteCompat      float64 `json:"route_compat"`
	Total            float64 `json:"total"`
}

// Assignment is the committed mapping of one vehicle to one pickup and an
// ordered list of deliveries for a single dispatch cycle. Assignments are
// cycle-scoped: the next cycle supersedes them with new records, it never
// mutates them.
type Assignment struct {
	VehicleID       string         `json:"vehicle_id"`
	DriverID        string         `json:"driver_id"`
	PickupID        string         `json:"pickup_id"`
	Deliveries      []Order        `json:"deliveries"`
	TotalLoad       float64        `json:"total_load"`
	TotalDistanceKm float64        `json:"total_distance_km"`
	Score           ScoreBreakdown `json:"score"`
	Strategy        string         `json:"strategy"` // "optimal" or "greedy"
	AssignedAt      time.Time      `json:"assigned_at"`
}

// OrderIDs returns the delivery IDs in committed visit order.
func (a Assignment) OrderIDs() []string {
	ids := make([]string, len(a.Deliveries))
	for i, o := range a.Deliveries {
		ids[i] = o.ID
	}
	return ids
}
