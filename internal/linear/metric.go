package linear

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Metric measures the distance between two coordinates.
type Metric interface {
	Distance(a, b geom.Coord) float64
}

// Planar measures straight-line distance in coordinate units.
type Planar struct{}

// Distance implements Metric.
func (Planar) Distance(a, b geom.Coord) float64 {
	return math.Hypot(b.X()-a.X(), b.Y()-a.Y())
}

// Haversine measures great-circle distance in meters between lon/lat
// coordinates.
type Haversine struct{}

const earthRadiusMeters = 6371008.8

// Distance implements Metric.
func (Haversine) Distance(a, b geom.Coord) float64 {
	lat1 := a.Y() * math.Pi / 180
	lat2 := b.Y() * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.X() - a.X()) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// MetricByName resolves a configured unit name to a Metric.
func MetricByName(name string) (Metric, error) {
	switch name {
	case "", "meters":
		return Haversine{}, nil
	case "planar":
		return Planar{}, nil
	default:
		return nil, eris.Errorf("linear: unknown units %q", name)
	}
}
