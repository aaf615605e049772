package assign

import (
	"gonum.org/v1/gonum/stat"

	"github.com/fleetops/dispatchd/core/model"
)

// maxDensityScore is the score of a perfectly tight cluster. A single
// delivery is by definition perfectly tight.
const maxDensityScore = 100.0

// clusterDensity scores how tightly grouped the cluster's dropoffs are on a
// 0..100 scale using the mean pairwise distance between them.
func clusterDensity(deliveries []model.Order, dist model.DistanceFunc) float64 {
	if len(deliveries) <= 1 {
		return maxDensityScore
	}
	var pairwise []float64
	for i := 0; i < len(deliveries); i++ {
		for j := i + 1; j < len(deliveries); j++ {
			pairwise = append(pairwise, dist(deliveries[i].Dropoff, deliveries[j].Dropoff))
		}
	}
	mean := stat.Mean(pairwise, nil)
	return maxDensityScore / (1 + mean)
}

// aggregateDeliveryDistance is the mean pickup-to-dropoff distance of the
// cluster, used as the corridor-length factor.
func aggregateDeliveryDistance(c model.Cluster, dist model.DistanceFunc) float64 {
	if len(c.Deliveries) == 0 {
		return 0
	}
	legs := make([]float64, len(c.Deliveries))
	for i, o := range c.Deliveries {
		legs[i] = dist(c.Pickup, o.Dropoff)
	}
	return stat.Mean(legs, nil)
}

// fleetAverageRemaining is the mean remaining capacity across the fleet.
func fleetAverageRemaining(vehicles []model.Vehicle) float64 {
	if len(vehicles) == 0 {
		return 0
	}
	rem := make([]float64, len(vehicles))
	for i, v := range vehicles {
		rem[i] = v.RemainingCapacity()
	}
	return stat.Mean(rem, nil)
}

// score computes the five-factor weighted score of a vehicle for a cluster.
// Every factor is normalized to [0,1] before weighting.
func (a *Assigner) score(v model.Vehicle, c model.Cluster, fleetAvg float64) model.ScoreBreakdown {
	toPickup := a.distance(v.Location, c.Pickup)
	vehicleDist := 1.0 / (1.0 + toPickup)

	deliveryDist := 1.0 / (1.0 + aggregateDeliveryDistance(c, a.distance))

	density := clusterDensity(c.Deliveries, a.distance) / maxDensityScore

	loadBalance := 0.0
	if fleetAvg > 0 {
		ratio := v.RemainingCapacity() / fleetAvg
		if ratio > 2 {
			ratio = 2
		}
		loadBalance = ratio / 2
	}

	routeCompat := 0.0
	if v.HasOpenRouteTo(c.PickupID) {
		routeCompat = 1.0
	}

	w := a.weights
	total := vehicleDist*w.VehicleDistance +
		deliveryDist*w.DeliveryDistance +
		density*w.Density +
		loadBalance*w.LoadBalance +
		routeCompat*w.RouteCompat

	return model.ScoreBreakdown{
		VehicleDistance:  vehicleDist,
		DeliveryDistance: deliveryDist,
		Density:          density,
		LoadBalance:      loadBalance,
		RouteCompat:      routeCompat,
		Total:            total,
	}
}
