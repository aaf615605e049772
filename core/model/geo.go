package model

import "math"

// Coordinate is an immutable geographic point (latitude, longitude in degrees).
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance to other in kilometres.
// Analytic haversine, not road-network distance: clustering needs speed,
// route-accurate figures belong to the external routing collaborator.
func (c Coordinate) DistanceKm(other Coordinate) float64 {
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - c.Lat) * math.Pi / 180
	dLon := (other.Lon - c.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceFunc computes the distance in kilometres between two points.
// The default implementation is Coordinate.DistanceKm; a cached or
// routing-backed provider may be substituted.
type DistanceFunc func(a, b Coordinate) float64

// HaversineDistance is the default analytic DistanceFunc.
func HaversineDistance(a, b Coordinate) float64 { return a.DistanceKm(b) }
