// Package split partitions one network line and its attached points into
// contiguous sub-segments.
//
// Every strategy reduces to a set of break distances along the line; a single
// routine turns those distances into sub-segments so that all strategies share
// the same guarantees: each point lands in exactly one sub-segment, slices are
// contiguous over the whole line, and zero-length slices are never emitted.
package split

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/itp/internal/linear"
	"github.com/sells-group/itp/internal/model"
)

// DefaultMaxLength is the longest stretch the intersection strategy leaves
// without a breakpoint.
const DefaultMaxLength = 500

// Segment is one interpolable slice of a line.
type Segment struct {
	Line          *geom.LineString
	Start         float64
	End           float64
	Addresses     []model.AttachedPoint
	Intersections []model.AttachedPoint
}

// Strategy derives break distances for a line. Points are ordered by
// distance along the line.
type Strategy interface {
	Breakpoints(length float64, addrs, ints []model.AttachedPoint) []float64
}

// ByIndex breaks after each listed address index, at the midpoint between
// that address and the next one.
type ByIndex []int

// Breakpoints implements Strategy.
func (b ByIndex) Breakpoints(_ float64, addrs, _ []model.AttachedPoint) []float64 {
	out := make([]float64, 0, len(b))
	for _, k := range b {
		if k < 0 || k+1 >= len(addrs) {
			continue
		}
		out = append(out, (addrs[k].Along+addrs[k+1].Along)/2)
	}
	return out
}

// ByIntersection breaks at every intersection and, on lines longer than
// MaxLength, every MaxLength units.
type ByIntersection struct {
	MaxLength float64
}

// Breakpoints implements Strategy.
func (b ByIntersection) Breakpoints(length float64, _, ints []model.AttachedPoint) []float64 {
	var out []float64
	for _, p := range ints {
		if p.Along > 0 {
			out = append(out, p.Along)
		}
	}
	if b.MaxLength > 0 && length > b.MaxLength {
		for d := b.MaxLength; d < length; d += b.MaxLength {
			out = append(out, d)
		}
	}
	return out
}

// Combine unions the breakpoints of several strategies.
type Combine []Strategy

// Breakpoints implements Strategy.
func (c Combine) Breakpoints(length float64, addrs, ints []model.AttachedPoint) []float64 {
	var out []float64
	for _, s := range c {
		out = append(out, s.Breakpoints(length, addrs, ints)...)
	}
	return out
}

// Split partitions line and its points using the breakpoints from s.
//
// Points within [previous break, break] belong to the sub-segment ending at
// that break; a point exactly on a break goes to the earlier sub-segment. A
// stretch with no addresses is absorbed by the next sub-segment; a trailing
// stretch with no addresses is merged into its nearest addressed neighbor.
func Split(line *geom.LineString, addrs, ints []model.AttachedPoint, s Strategy, m linear.Metric) []Segment {
	length := linear.Length(line, m)
	eps := 1e-9 * math.Max(1, length)

	addrs = byAlong(addrs)
	ints = byAlong(ints)

	bps := normalize(append(s.Breakpoints(length, addrs, ints), length), length, eps)

	var segs []Segment
	var pendingInts []model.AttachedPoint
	start := 0.0
	ai, ii := 0, 0
	for n, bp := range bps {
		last := n == len(bps)-1

		var a []model.AttachedPoint
		for ai < len(addrs) && (last || addrs[ai].Along <= bp+eps) {
			a = append(a, addrs[ai])
			ai++
		}
		for ii < len(ints) && (last || ints[ii].Along <= bp+eps) {
			pendingInts = append(pendingInts, ints[ii])
			ii++
		}

		if len(a) == 0 && !last {
			continue
		}

		segs = append(segs, Segment{
			Line:          linear.Slice(line, start, bp, m),
			Start:         start,
			End:           bp,
			Addresses:     a,
			Intersections: pendingInts,
		})
		pendingInts = nil
		start = bp
	}

	return reattach(line, segs, m)
}

// normalize sorts breakpoints, drops those outside (0, length] and collapses
// breakpoints closer than eps so no zero-length slice is produced.
func normalize(bps []float64, length, eps float64) []float64 {
	sort.Float64s(bps)
	out := make([]float64, 0, len(bps))
	prev := 0.0
	for _, bp := range bps {
		if bp <= prev+eps || bp > length+eps {
			continue
		}
		if length-bp <= eps {
			bp = length
		}
		out = append(out, bp)
		prev = bp
	}
	if len(out) == 0 || out[len(out)-1] != length {
		out = append(out, length)
	}
	return out
}

// reattach merges sub-segments without addresses into the adjacent
// sub-segment whose centroid is nearest, preferring neighbors that carry
// addresses. Only adjacent neighbors are candidates so slices stay
// contiguous.
func reattach(line *geom.LineString, segs []Segment, m linear.Metric) []Segment {
	for len(segs) > 1 {
		orphan := -1
		for i, s := range segs {
			if len(s.Addresses) == 0 {
				orphan = i
				break
			}
		}
		if orphan < 0 {
			break
		}

		target := nearestNeighbor(segs, orphan, m)
		lo, hi := min(orphan, target), max(orphan, target)
		merged := Segment{
			Start:         segs[lo].Start,
			End:           segs[hi].End,
			Addresses:     append(append([]model.AttachedPoint(nil), segs[lo].Addresses...), segs[hi].Addresses...),
			Intersections: append(append([]model.AttachedPoint(nil), segs[lo].Intersections...), segs[hi].Intersections...),
		}
		merged.Line = linear.Slice(line, merged.Start, merged.End, m)

		out := make([]Segment, 0, len(segs)-1)
		out = append(out, segs[:lo]...)
		out = append(out, merged)
		out = append(out, segs[hi+1:]...)
		segs = out
	}
	return segs
}

func nearestNeighbor(segs []Segment, i int, m linear.Metric) int {
	var candidates []int
	for _, j := range []int{i - 1, i + 1} {
		if j >= 0 && j < len(segs) && len(segs[j].Addresses) > 0 {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		if i > 0 {
			return i - 1
		}
		return i + 1
	}

	c := linear.Centroid(segs[i].Line)
	best, bestDist := candidates[0], math.Inf(1)
	for _, j := range candidates {
		if d := m.Distance(c, linear.Centroid(segs[j].Line)); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

// byAlong returns pts stably ordered by distance along the line.
func byAlong(pts []model.AttachedPoint) []model.AttachedPoint {
	out := append([]model.AttachedPoint(nil), pts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Along < out[j].Along })
	return out
}
