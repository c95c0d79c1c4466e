// Package linear provides line geometry helpers over go-geom line strings:
// length, point projection, slicing by distance and side-of-line tests.
//
// Projection is planar in coordinate space; distances (along and offset) are
// reported in the units of the configured Metric so that haversine meters can
// be used for lon/lat data while slicing stays consistent with projection.
package linear

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/orientation"
)

// Side is the side of a directed line a point falls on.
type Side int

// Side values.
const (
	SideNone Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "none"
	}
}

// Projection is the result of projecting a point onto a line.
type Projection struct {
	Point  geom.Coord // nearest point on the line
	Along  float64    // distance from the line start to Point
	Offset float64    // distance from the input point to Point
	Index  int        // index of the vertex pair holding Point
}

// Explode returns the simple line strings making up g, normalized to XY.
// Only LineString and MultiLineString are accepted.
func Explode(g geom.T) ([]*geom.LineString, error) {
	switch t := g.(type) {
	case *geom.LineString:
		if t == nil {
			return nil, eris.New("linear: nil line string")
		}
		return []*geom.LineString{toXY(t)}, nil
	case *geom.MultiLineString:
		if t == nil {
			return nil, eris.New("linear: nil multi line string")
		}
		lines := make([]*geom.LineString, 0, t.NumLineStrings())
		for i := 0; i < t.NumLineStrings(); i++ {
			lines = append(lines, toXY(t.LineString(i)))
		}
		return lines, nil
	case nil:
		return nil, eris.New("linear: missing network geometry")
	default:
		return nil, eris.Errorf("linear: unsupported network geometry %T", g)
	}
}

// NewLine builds an XY line string from coordinates.
func NewLine(coords []geom.Coord) *geom.LineString {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c.X(), c.Y())
	}
	return geom.NewLineStringFlat(geom.XY, flat)
}

func toXY(ls *geom.LineString) *geom.LineString {
	coords := make([]geom.Coord, 0, ls.NumCoords())
	for i := 0; i < ls.NumCoords(); i++ {
		coords = append(coords, ls.Coord(i))
	}
	return NewLine(coords)
}

// Length returns the length of line under m.
func Length(line *geom.LineString, m Metric) float64 {
	var total float64
	for i := 1; i < line.NumCoords(); i++ {
		total += m.Distance(line.Coord(i-1), line.Coord(i))
	}
	return total
}

// Project finds the point on line nearest to p. Ties go to the first vertex
// pair encountered.
func Project(line *geom.LineString, p geom.Coord, m Metric) Projection {
	best := Projection{Offset: math.Inf(1)}
	var cum float64
	n := line.NumCoords()
	if n == 1 {
		c := line.Coord(0)
		return Projection{Point: geom.Coord{c.X(), c.Y()}, Offset: m.Distance(p, c)}
	}
	for i := 1; i < n; i++ {
		a, b := line.Coord(i-1), line.Coord(i)
		t := segmentParam(a, b, p)
		q := geom.Coord{a.X() + t*(b.X()-a.X()), a.Y() + t*(b.Y()-a.Y())}
		segLen := m.Distance(a, b)
		if d := m.Distance(p, q); d < best.Offset {
			best = Projection{Point: q, Along: cum + t*segLen, Offset: d, Index: i - 1}
		}
		cum += segLen
	}
	return best
}

// segmentParam returns the clamped parameter of p projected onto ab.
func segmentParam(a, b, p geom.Coord) float64 {
	dx, dy := b.X()-a.X(), b.Y()-a.Y()
	den := dx*dx + dy*dy
	if den == 0 {
		return 0
	}
	t := ((p.X()-a.X())*dx + (p.Y()-a.Y())*dy) / den
	return math.Max(0, math.Min(1, t))
}

// PointAt returns the point at distance d along line, clamped to its ends.
func PointAt(line *geom.LineString, d float64, m Metric) geom.Coord {
	c, _ := locate(line, d, m)
	return c
}

// locate returns the point at distance d and the index of the last vertex at
// or before it.
func locate(line *geom.LineString, d float64, m Metric) (geom.Coord, int) {
	n := line.NumCoords()
	first := line.Coord(0)
	if d <= 0 || n == 1 {
		return geom.Coord{first.X(), first.Y()}, 0
	}
	var cum float64
	for i := 1; i < n; i++ {
		a, b := line.Coord(i-1), line.Coord(i)
		segLen := m.Distance(a, b)
		if segLen > 0 && cum+segLen >= d {
			t := (d - cum) / segLen
			return geom.Coord{a.X() + t*(b.X()-a.X()), a.Y() + t*(b.Y()-a.Y())}, i - 1
		}
		cum += segLen
	}
	last := line.Coord(n - 1)
	return geom.Coord{last.X(), last.Y()}, n - 1
}

// Slice returns a new line covering [start, stop] along line. Bounds are
// clamped to the line and swapped when reversed. A zero-length slice is a
// two-vertex line with identical coordinates.
func Slice(line *geom.LineString, start, stop float64, m Metric) *geom.LineString {
	if stop < start {
		start, stop = stop, start
	}
	length := Length(line, m)
	start = math.Max(0, math.Min(start, length))
	stop = math.Max(0, math.Min(stop, length))

	from, fromIdx := locate(line, start, m)
	to, toIdx := locate(line, stop, m)

	coords := []geom.Coord{from}
	for i := fromIdx + 1; i <= toIdx; i++ {
		c := line.Coord(i)
		if samePoint(coords[len(coords)-1], c) {
			continue
		}
		coords = append(coords, c)
	}
	if !samePoint(coords[len(coords)-1], to) || len(coords) == 1 {
		coords = append(coords, to)
	}
	return NewLine(coords)
}

func samePoint(a, b geom.Coord) bool {
	return a.X() == b.X() && a.Y() == b.Y()
}

// LeftSign returns the orientation that marks the left side of line. It is
// computed once per line by probing a point offset perpendicular to the left
// of the segment at the line midpoint.
func LeftSign(line *geom.LineString, m Metric) orientation.Type {
	_, idx := locate(line, Length(line, m)/2, m)
	a, b, ok := nonDegenerate(line, idx)
	if !ok {
		return orientation.Collinear
	}
	dx, dy := b.X()-a.X(), b.Y()-a.Y()
	mid := geom.Coord{(a.X() + b.X()) / 2, (a.Y() + b.Y()) / 2}
	probe := geom.Coord{mid.X() - dy/2, mid.Y() + dx/2}
	return xy.OrientationIndex(a, b, probe)
}

// nonDegenerate returns the first vertex pair at or after idx with distinct
// endpoints, falling back to pairs before idx.
func nonDegenerate(line *geom.LineString, idx int) (geom.Coord, geom.Coord, bool) {
	n := line.NumCoords()
	for i := idx; i < n-1; i++ {
		if a, b := line.Coord(i), line.Coord(i+1); !samePoint(a, b) {
			return a, b, true
		}
	}
	for i := min(idx, n-1) - 1; i >= 0; i-- {
		if a, b := line.Coord(i), line.Coord(i+1); !samePoint(a, b) {
			return a, b, true
		}
	}
	return nil, nil, false
}

// SideOf reports the side of line that p falls on, relative to left. proj
// must be the projection of p onto line.
func SideOf(line *geom.LineString, p geom.Coord, proj Projection, left orientation.Type) Side {
	if left == orientation.Collinear {
		return SideNone
	}
	a, b, ok := nonDegenerate(line, proj.Index)
	if !ok {
		return SideNone
	}
	switch o := xy.OrientationIndex(a, b, p); {
	case o == orientation.Collinear:
		return SideNone
	case o == left:
		return SideLeft
	default:
		return SideRight
	}
}

// Centroid returns the centroid of line; degenerate lines yield their first
// vertex.
func Centroid(line *geom.LineString) geom.Coord {
	c, err := xy.Centroid(line)
	if err != nil || len(c) < 2 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		first := line.Coord(0)
		return geom.Coord{first.X(), first.Y()}
	}
	return c
}
