// Package assign partitions pending deliveries across available vehicles.
// Deliveries are grouped into per-pickup clusters, vehicles are scored with a
// weighted five-factor model, and the vehicle-to-cluster matching is solved
// exactly when the problem shape allows, with a greedy fallback otherwise.
package assign

import (
	"errors"
	"math"
	"sort"

	"github.com/fleetops/dispatchd/core/logger"
	"github.com/fleetops/dispatchd/core/model"
	"github.com/fleetops/dispatchd/core/solver"
)

// Validation errors are fatal to the clustering step of a cycle and must be
// handled by the caller.
var (
	ErrNoVehicles   = errors.New("assign: no vehicles available")
	ErrNoPickups    = errors.New("assign: no pickup points provided")
	ErrNoDeliveries = errors.New("assign: no pending deliveries")
)

// Strategy names recorded on assignments and optimization logs.
const (
	StrategyOptimal = "optimal"
	StrategyGreedy  = "greedy"
)

// infeasibleCost marks vehicle/cluster pairs the matcher must avoid. Scores
// are in [0,1] so any finite cost above 1 is out of reach for feasible pairs.
const infeasibleCost = 10.0

// Summary aggregates one assignment round.
type Summary struct {
	VehiclesUsed    int     `json:"vehicles_used"`
	TotalDeliveries int     `json:"total_deliveries"`
	TotalLoad       float64 `json:"total_load"`
	TotalDistanceKm float64 `json:"total_distance_km"`
	Strategy        string  `json:"strategy"`
}

// Comparison reports the estimated distance of the greedy baseline against
// the committed plan when the exact matcher was used.
type Comparison struct {
	DistanceBeforeKm float64 `json:"distance_before_km"`
	DistanceAfterKm  float64 `json:"distance_after_km"`
}

// Result is the output of one assignment round.
type Result struct {
	Assignments map[string]*model.Assignment // keyed by vehicle ID
	Unassigned  []model.Order
	Summary     Summary
	Comparison  *Comparison
}

// Assigner scores and partitions deliveries. Construct with NewAssigner; the
// weight set is validated once and immutable afterwards.
type Assigner struct {
	weights   Weights
	policy    WeightPolicy
	distance  model.DistanceFunc
	useSolver bool
	log       logger.Logger
}

// NewAssigner validates the weights under the given policy. With
// PolicyNormalize a skewed sum is logged and rescaled; with PolicyStrict it
// is rejected.
func NewAssigner(w Weights, policy WeightPolicy, dist model.DistanceFunc, log logger.Logger) (*Assigner, error) {
	if policy == "" {
		policy = PolicyNormalize
	}
	if dist == nil {
		dist = model.HaversineDistance
	}
	if log == nil {
		log = logger.Nop{}
	}
	if err := w.Validate(policy); err != nil {
		return nil, err
	}
	if math.Abs(w.Sum()-1.0) > weightSumTolerance {
		log.Warnf("clustering weights sum to %.4f, normalizing", w.Sum())
		var err error
		if w, err = w.Normalized(); err != nil {
			return nil, err
		}
	}
	return &Assigner{weights: w, policy: policy, distance: dist, useSolver: true, log: log}, nil
}

// DisableSolver forces the greedy path regardless of problem shape.
func (a *Assigner) DisableSolver() { a.useSolver = false }

// Assign partitions the pending deliveries across the vehicles and returns
// one assignment per vehicle used this round.
func (a *Assigner) Assign(vehicles []model.Vehicle, pickups []model.PickupPoint, deliveries []model.Order) (*Result, error) {
	if len(vehicles) == 0 {
		return nil, ErrNoVehicles
	}
	if len(pickups) == 0 {
		return nil, ErrNoPickups
	}
	if len(deliveries) == 0 {
		return nil, ErrNoDeliveries
	}

	clusters, orphans := a.buildClusters(pickups, deliveries)

	// Working copies: loads committed in this round must not leak back into
	// the caller's snapshot.
	pool := make([]*model.Vehicle, len(vehicles))
	for i := range vehicles {
		v := vehicles[i]
		pool[i] = &v
	}
	fleetAvg := fleetAverageRemaining(vehicles)

	strategy := StrategyGreedy
	var primary map[int]int
	var comparison *Comparison
	if a.useSolver && len(clusters) > 1 {
		p, err := a.solvePrimary(pool, clusters, fleetAvg)
		if err != nil {
			a.log.Warnf("exact matching unavailable: %v, falling back to greedy", err)
		} else {
			primary = p
			strategy = StrategyOptimal
			comparison = a.comparePlans(pool, clusters, fleetAvg, p)
		}
	}

	res := &Result{Assignments: make(map[string]*model.Assignment)}
	res.Unassigned = append(res.Unassigned, orphans...)
	used := make(map[string]bool)

	for ci, cluster := range clusters {
		ordered := sequenceDeliveries(cluster.Pickup, cluster.Deliveries, a.distance)
		cands := a.rankCandidates(pool, cluster, fleetAvg, used)
		if pi, ok := primary[ci]; ok {
			cands = promote(cands, pool[pi].ID)
		}
		left := a.placeDeliveries(res, cands, cluster, ordered, strategy, used)
		res.Unassigned = append(res.Unassigned, left...)
	}

	for _, asn := range res.Assignments {
		res.Summary.VehiclesUsed++
		res.Summary.TotalDeliveries += len(asn.Deliveries)
		res.Summary.TotalLoad += asn.TotalLoad
		res.Summary.TotalDistanceKm += asn.TotalDistanceKm
	}
	res.Summary.Strategy = strategy
	res.Comparison = comparison

	a.log.Debugw("assignment round complete", map[string]any{
		"strategy":   strategy,
		"vehicles":   res.Summary.VehiclesUsed,
		"deliveries": res.Summary.TotalDeliveries,
		"unassigned": len(res.Unassigned),
	})
	return res, nil
}

// buildClusters groups deliveries by pickup ID in pickup input order.
// Deliveries referencing an unknown pickup are returned separately.
func (a *Assigner) buildClusters(pickups []model.PickupPoint, deliveries []model.Order) ([]model.Cluster, []model.Order) {
	byPickup := make(map[string][]model.Order)
	known := make(map[string]bool, len(pickups))
	for _, p := range pickups {
		known[p.ID] = true
	}
	var orphans []model.Order
	for _, o := range deliveries {
		if !known[o.PickupID] {
			a.log.Warnf("delivery %s references unknown pickup %s", o.ID, o.PickupID)
			orphans = append(orphans, o)
			continue
		}
		byPickup[o.PickupID] = append(byPickup[o.PickupID], o)
	}
	var clusters []model.Cluster
	for _, p := range pickups {
		if orders := byPickup[p.ID]; len(orders) > 0 {
			clusters = append(clusters, model.Cluster{
				PickupID:   p.ID,
				Pickup:     p.Location,
				Deliveries: orders,
			})
		}
	}
	return clusters, orphans
}

type candidate struct {
	vehicle   *model.Vehicle
	breakdown model.ScoreBreakdown
	openRoute bool
}

// rankCandidates scores the unused, feasible vehicles for a cluster.
// Vehicles with an open route to the pickup and spare capacity come first:
// continuity of service outranks an otherwise better cold-start score.
func (a *Assigner) rankCandidates(pool []*model.Vehicle, c model.Cluster, fleetAvg float64, used map[string]bool) []candidate {
	minDemand := math.Inf(1)
	for _, o := range c.Deliveries {
		if o.Demand < minDemand {
			minDemand = o.Demand
		}
	}
	var cands []candidate
	for _, v := range pool {
		if used[v.ID] || !v.CanCarry(minDemand) {
			continue
		}
		cands = append(cands, candidate{
			vehicle:   v,
			breakdown: a.score(*v, c, fleetAvg),
			openRoute: v.HasOpenRouteTo(c.PickupID),
		})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].openRoute != cands[j].openRoute {
			return cands[i].openRoute
		}
		return cands[i].breakdown.Total > cands[j].breakdown.Total
	})
	return cands
}

// promote moves the vehicle chosen by the exact matcher to the head of the
// candidate list without disturbing the relative order of the rest.
func promote(cands []candidate, vehicleID string) []candidate {
	for i, c := range cands {
		if c.vehicle.ID == vehicleID {
			picked := cands[i]
			rest := append(append([]candidate(nil), cands[:i]...), cands[i+1:]...)
			return append([]candidate{picked}, rest...)
		}
	}
	return cands
}

// placeDeliveries walks the ranked candidates, filling each vehicle with as
// many deliveries as its remaining capacity allows, highest score first.
// Returns the deliveries no vehicle could absorb.
func (a *Assigner) placeDeliveries(res *Result, cands []candidate, cluster model.Cluster, ordered []model.Order, strategy string, used map[string]bool) []model.Order {
	remaining := ordered
	for _, cand := range cands {
		if len(remaining) == 0 {
			break
		}
		v := cand.vehicle
		var taken []model.Order
		var left []model.Order
		for _, o := range remaining {
			if v.CanCarry(o.Demand) {
				v.Load += o.Demand
				taken = append(taken, o)
			} else {
				left = append(left, o)
			}
		}
		remaining = left
		if len(taken) == 0 {
			continue
		}
		res.Assignments[v.ID] = &model.Assignment{
			VehicleID:       v.ID,
			DriverID:        v.DriverID,
			PickupID:        cluster.PickupID,
			Deliveries:      taken,
			TotalLoad:       sumDemand(taken),
			TotalDistanceKm: routeDistanceKm(v.Location, cluster.Pickup, taken, a.distance),
			Score:           cand.breakdown,
			Strategy:        strategy,
		}
		used[v.ID] = true
	}
	if len(remaining) > 0 {
		a.log.Warnf("pickup %s: %d deliveries exceed available capacity", cluster.PickupID, len(remaining))
	}
	return remaining
}

// solvePrimary builds the (1 - score) cost matrix over clusters x vehicles,
// pads it square and solves the exact matching. The result picks the primary
// vehicle per cluster; overflow beyond its capacity is still placed greedily.
func (a *Assigner) solvePrimary(pool []*model.Vehicle, clusters []model.Cluster, fleetAvg float64) (map[int]int, error) {
	cost := make([][]float64, len(clusters))
	for ci, c := range clusters {
		row := make([]float64, len(pool))
		minDemand := math.Inf(1)
		for _, o := range c.Deliveries {
			if o.Demand < minDemand {
				minDemand = o.Demand
			}
		}
		for vi, v := range pool {
			if !v.CanCarry(minDemand) {
				row[vi] = infeasibleCost
				continue
			}
			row[vi] = 1.0 - a.score(*v, c, fleetAvg).Total
		}
		cost[ci] = row
	}

	pairs, err := solver.Solve(solver.PadSquare(cost))
	if err != nil {
		return nil, err
	}
	primary := make(map[int]int)
	for _, p := range pairs {
		if p.Row >= len(clusters) || p.Col >= len(pool) {
			continue // dummy padding
		}
		if cost[p.Row][p.Col] >= infeasibleCost {
			continue
		}
		primary[p.Row] = p.Col
	}
	return primary, nil
}

// comparePlans estimates the primary-vehicle route distance of the greedy
// choice against the exact matching, for the optimization log.
func (a *Assigner) comparePlans(pool []*model.Vehicle, clusters []model.Cluster, fleetAvg float64, optimal map[int]int) *Comparison {
	greedy := make(map[int]int)
	taken := make(map[int]bool)
	for ci, c := range clusters {
		best := -1
		bestScore := math.Inf(-1)
		for vi, v := range pool {
			if taken[vi] || !v.CanCarry(c.TotalDemand()/float64(len(c.Deliveries))) {
				continue
			}
			if s := a.score(*v, c, fleetAvg).Total; s > bestScore {
				best, bestScore = vi, s
			}
		}
		if best >= 0 {
			greedy[ci] = best
			taken[best] = true
		}
	}
	return &Comparison{
		DistanceBeforeKm: a.primaryDistance(pool, clusters, greedy),
		DistanceAfterKm:  a.primaryDistance(pool, clusters, optimal),
	}
}

func (a *Assigner) primaryDistance(pool []*model.Vehicle, clusters []model.Cluster, choice map[int]int) float64 {
	var total float64
	for ci, vi := range choice {
		c := clusters[ci]
		ordered := sequenceDeliveries(c.Pickup, c.Deliveries, a.distance)
		total += routeDistanceKm(pool[vi].Location, c.Pickup, ordered, a.distance)
	}
	return total
}

func sumDemand(orders []model.Order) float64 {
	var d float64
	for _, o := range orders {
		d += o.Demand
	}
	return d
}
