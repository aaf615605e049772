package assign

import "github.com/fleetops/dispatchd/core/model"

const distanceEpsilonKm = 1e-9

// sequenceDeliveries orders a cluster's deliveries nearest-unvisited-first
// starting from the pickup, with the priority tag as a secondary criterion
// and the order ID as a final deterministic tie-break.
func sequenceDeliveries(pickup model.Coordinate, deliveries []model.Order, dist model.DistanceFunc) []model.Order {
	remaining := append([]model.Order(nil), deliveries...)
	ordered := make([]model.Order, 0, len(remaining))
	current := pickup

	for len(remaining) > 0 {
		best := 0
		bestDist := dist(current, remaining[0].Dropoff)
		for i := 1; i < len(remaining); i++ {
			d := dist(current, remaining[i].Dropoff)
			switch {
			case d < bestDist-distanceEpsilonKm:
				best, bestDist = i, d
			case d <= bestDist+distanceEpsilonKm:
				if remaining[i].Priority > remaining[best].Priority ||
					(remaining[i].Priority == remaining[best].Priority &&
						remaining[i].ID < remaining[best].ID) {
					best, bestDist = i, d
				}
			}
		}
		ordered = append(ordered, remaining[best])
		current = remaining[best].Dropoff
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return ordered
}

// routeDistanceKm sums the legs of a committed route: vehicle to pickup, then
// through the delivery sequence.
func routeDistanceKm(vehicle, pickup model.Coordinate, ordered []model.Order, dist model.DistanceFunc) float64 {
	total := dist(vehicle, pickup)
	current := pickup
	for _, o := range ordered {
		total += dist(current, o.Dropoff)
		current = o.Dropoff
	}
	return total
}
