// Package attach binds points to the nearest segment of a street network.
package attach

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/itp/internal/linear"
)

// Location is the attachment of one input point.
type Location struct {
	Index   int        // position in the input slice
	Segment int        // index of the chosen segment
	Along   float64    // distance along the chosen segment
	Offset  float64    // perpendicular distance to the chosen segment
	Nearest geom.Coord // nearest point on the chosen segment
}

// Attach projects every coordinate onto every segment and keeps the segment
// with the smallest perpendicular distance; the first segment wins ties. The
// result is parallel to coords.
func Attach(segments []*geom.LineString, coords []geom.Coord, m linear.Metric) ([]Location, error) {
	if len(segments) == 0 {
		return nil, eris.New("attach: empty network")
	}
	for i, seg := range segments {
		if seg.NumCoords() < 2 || linear.Length(seg, m) == 0 {
			return nil, eris.Errorf("attach: segment %d has zero length", i)
		}
	}

	out := make([]Location, len(coords))
	for i, c := range coords {
		if len(c) < 2 {
			return nil, eris.Errorf("attach: point %d has no coordinate", i)
		}
		loc := Location{Index: i, Segment: -1}
		for s, seg := range segments {
			proj := linear.Project(seg, c, m)
			if loc.Segment < 0 || proj.Offset < loc.Offset {
				loc.Segment = s
				loc.Along = proj.Along
				loc.Offset = proj.Offset
				loc.Nearest = proj.Point
			}
		}
		out[i] = loc
	}
	return out, nil
}

// Sort returns a copy of locs stably ordered by segment, then by distance
// along the segment.
func Sort(locs []Location) []Location {
	out := make([]Location, len(locs))
	copy(out, locs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Segment != out[j].Segment {
			return out[i].Segment < out[j].Segment
		}
		return out[i].Along < out[j].Along
	})
	return out
}
