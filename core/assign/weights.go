package assign

import (
	"fmt"
	"math"
)

// WeightPolicy decides how non-normalized weight sets are handled. The
// historical behavior was to warn and proceed with the skewed sum; that is
// now an explicit configuration choice instead of an accident.
type WeightPolicy string

const (
	// PolicyStrict rejects weight sets that do not sum to 1.0.
	PolicyStrict WeightPolicy = "strict"
	// PolicyNormalize warns and rescales the weights to sum to 1.0.
	PolicyNormalize WeightPolicy = "normalize"
)

const weightSumTolerance = 1e-6

// Weights are the five named coefficients of the clustering score. They are
// treated as an immutable value: normalization returns a new value, it never
// mutates in place.
type Weights struct {
	VehicleDistance  float64 `json:"vehicle_distance"`
	DeliveryDistance float64 `json:"delivery_distance"`
	Density          float64 `json:"density"`
	LoadBalance      float64 `json:"load_balance"`
	RouteCompat      float64 `json:"route_compat"`
}

// DefaultWeights returns the production defaults. Route compatibility is
// weighted high so a partially loaded vehicle keeps absorbing deliveries on
// its corridor instead of an idle one being dispatched.
func DefaultWeights() Weights {
	return Weights{
		VehicleDistance:  0.30,
		DeliveryDistance: 0.15,
		Density:          0.15,
		LoadBalance:      0.15,
		RouteCompat:      0.25,
	}
}

// Sum returns the total of the five coefficients.
func (w Weights) Sum() float64 {
	return w.VehicleDistance + w.DeliveryDistance + w.Density + w.LoadBalance + w.RouteCompat
}

// Normalized returns a copy rescaled to sum to 1.0.
func (w Weights) Normalized() (Weights, error) {
	sum := w.Sum()
	if sum <= 0 {
		return Weights{}, fmt.Errorf("assign: weights sum must be positive, got %v", sum)
	}
	return Weights{
		VehicleDistance:  w.VehicleDistance / sum,
		DeliveryDistance: w.DeliveryDistance / sum,
		Density:          w.Density / sum,
		LoadBalance:      w.LoadBalance / sum,
		RouteCompat:      w.RouteCompat / sum,
	}, nil
}

// Validate checks the coefficients against the policy.
func (w Weights) Validate(policy WeightPolicy) error {
	if w.VehicleDistance < 0 || w.DeliveryDistance < 0 || w.Density < 0 ||
		w.LoadBalance < 0 || w.RouteCompat < 0 {
		return fmt.Errorf("assign: weights must be non-negative")
	}
	if policy == PolicyStrict && math.Abs(w.Sum()-1.0) > weightSumTolerance {
		return fmt.Errorf("assign: weights sum to %.4f, expected 1.0", w.Sum())
	}
	return nil
}
