// Package interpolate computes house-number interpolation ranges for street
// sub-segments and drives the full per-cluster pipeline.
package interpolate

import (
	"math"
	"sort"

	"github.com/sells-group/itp/internal/linear"
	"github.com/sells-group/itp/internal/model"
	"github.com/sells-group/itp/internal/split"
)

// outlierFactor scales the median perpendicular distance into the cutoff
// beyond which an address is treated as mismatched.
const outlierFactor = 10

// parityMajority is the share of one parity above which a side takes it.
const parityMajority = 0.7

// Limits accumulates the lowest and highest retained house numbers of one
// line. It only ever widens.
type Limits struct {
	Min  int
	Max  int
	seen bool
}

// Observe widens the limits to include n.
func (l *Limits) Observe(n int) {
	if !l.seen {
		l.Min, l.Max, l.seen = n, n, true
		return
	}
	l.Min = min(l.Min, n)
	l.Max = max(l.Max, n)
}

// Valid reports whether any number has been observed.
func (l *Limits) Valid() bool {
	return l.seen
}

// Overlap names a bound of the sub-segment at Index that should be
// recomputed without the address numbered Number. Number is the address
// number as observed, not the parity-adjusted bound number.
type Overlap struct {
	Index  int
	Bound  model.BoundName
	Number int
}

// located is an address positioned on the sub-segment being computed.
type located struct {
	pt    model.AttachedPoint
	along float64
	side  linear.Side
}

// Compute derives the interpolation range of seg.
//
// Addresses further from the line than ten times the median distance are
// marked as outliers and ignored; the remaining numbers widen limits. Each
// hint in exclude nulls its bound, which is then reselected without the
// hinted number or mirrored from the other bound of its side. The returned
// addresses carry updated Outlier flags.
func Compute(seg split.Segment, limits *Limits, m linear.Metric, exclude ...Overlap) (model.Range, []model.AttachedPoint) {
	addrs := make([]model.AttachedPoint, len(seg.Addresses))
	copy(addrs, seg.Addresses)
	if len(addrs) == 0 {
		return model.Range{}, addrs
	}

	left := linear.LeftSign(seg.Line, m)
	length := linear.Length(seg.Line, m)

	pts := make([]located, len(addrs))
	offsets := make([]float64, len(addrs))
	for i, a := range addrs {
		proj := linear.Project(seg.Line, a.Coord, m)
		pts[i] = located{pt: a, along: proj.Along, side: linear.SideOf(seg.Line, a.Coord, proj, left)}
		offsets[i] = proj.Offset
	}

	cutoff := math.Inf(1)
	if med, ok := median(offsets); ok && med > 0 {
		cutoff = outlierFactor * med
	}
	var kept []located
	for i := range pts {
		addrs[i].Outlier = offsets[i] > cutoff
		pts[i].pt.Outlier = addrs[i].Outlier
		if !addrs[i].Outlier {
			kept = append(kept, pts[i])
			limits.Observe(pts[i].pt.Number)
		}
	}
	if len(kept) == 0 {
		return model.Range{}, addrs
	}

	ascending := isAscending(kept)
	assignOnLine(kept)

	fromStart := order(kept, ascending, func(p located) float64 { return p.along })
	fromEnd := order(kept, !ascending, func(p located) float64 { return length - p.along })

	skip := make(map[model.BoundName]int, len(exclude))
	for _, o := range exclude {
		skip[o.Bound] = o.Number
	}

	var r model.Range
	r.LeftStart = pick(fromStart, linear.SideLeft, model.LeftStart, skip)
	r.LeftEnd = pick(fromEnd, linear.SideLeft, model.LeftEnd, skip)
	r.RightStart = pick(fromStart, linear.SideRight, model.RightStart, skip)
	r.RightEnd = pick(fromEnd, linear.SideRight, model.RightEnd, skip)

	r.LeftStart, r.LeftEnd = mirror(r.LeftStart, r.LeftEnd)
	r.RightStart, r.RightEnd = mirror(r.RightStart, r.RightEnd)

	r.ParityLeft = sideParity(kept, linear.SideLeft, r.LeftStart, r.LeftEnd, model.ParityEven)
	// Legacy policy: an ambiguous right side defaults to odd even though the
	// general assumption is odd-left/even-right. The choice is arbitrary and
	// kept for output compatibility.
	r.ParityRight = sideParity(kept, linear.SideRight, r.RightStart, r.RightEnd, model.ParityOdd)

	adjust(r.LeftStart, r.ParityLeft)
	adjust(r.LeftEnd, r.ParityLeft)
	adjust(r.RightStart, r.ParityRight)
	adjust(r.RightEnd, r.ParityRight)

	return r, addrs
}

// isAscending compares the number nearest the line start with the number
// nearest its end.
func isAscending(pts []located) bool {
	first, last := pts[0], pts[0]
	for _, p := range pts[1:] {
		if p.along < first.along {
			first = p
		}
		if p.along > last.along {
			last = p
		}
	}
	return first.pt.Number <= last.pt.Number
}

// assignOnLine gives points lying exactly on the line the side whose
// majority parity they share. Points matching both or neither stay unsided.
func assignOnLine(pts []located) {
	leftParity := majorityParity(pts, linear.SideLeft)
	rightParity := majorityParity(pts, linear.SideRight)
	for i := range pts {
		if pts[i].side != linear.SideNone {
			continue
		}
		l := leftParity.Matches(pts[i].pt.Number)
		r := rightParity.Matches(pts[i].pt.Number)
		switch {
		case l && !r:
			pts[i].side = linear.SideLeft
		case r && !l:
			pts[i].side = linear.SideRight
		}
	}
}

// majorityParity returns the more frequent parity on side, or ParityNone on
// a tie or when the side is empty.
func majorityParity(pts []located, side linear.Side) model.Parity {
	var odd, even int
	for _, p := range pts {
		if p.side != side {
			continue
		}
		if p.pt.Number%2 == 0 {
			even++
		} else {
			odd++
		}
	}
	switch {
	case odd > even:
		return model.ParityOdd
	case even > odd:
		return model.ParityEven
	}
	return model.ParityNone
}

// order returns pts sorted by key, breaking ties by number in ascending or
// descending order.
func order(pts []located, ascending bool, key func(located) float64) []located {
	out := append([]located(nil), pts...)
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if ki != kj {
			return ki < kj
		}
		if ascending {
			return out[i].pt.Number < out[j].pt.Number
		}
		return out[i].pt.Number > out[j].pt.Number
	})
	return out
}

// pick returns the first point of ordering on side, skipping the number
// hinted for name.
func pick(ordering []located, side linear.Side, name model.BoundName, skip map[model.BoundName]int) *model.Bound {
	excluded, hinted := skip[name]
	for _, p := range ordering {
		if p.side != side {
			continue
		}
		if hinted && p.pt.Number == excluded {
			continue
		}
		return &model.Bound{Point: p.pt, Number: p.pt.Number}
	}
	return nil
}

// mirror fills a missing bound from its counterpart on the same side.
func mirror(start, end *model.Bound) (*model.Bound, *model.Bound) {
	switch {
	case start == nil && end != nil:
		b := *end
		return &b, end
	case end == nil && start != nil:
		b := *start
		return start, &b
	}
	return start, end
}

// sideParity infers a side's parity: a parity holding more than 70% of the
// side's numbers wins; otherwise the shared parity of start and end; and
// failing that, def.
func sideParity(pts []located, side linear.Side, start, end *model.Bound, def model.Parity) model.Parity {
	if start == nil || end == nil {
		return model.ParityNone
	}
	var odd, even int
	for _, p := range pts {
		if p.side != side {
			continue
		}
		if p.pt.Number%2 == 0 {
			even++
		} else {
			odd++
		}
	}
	if total := float64(odd + even); total > 0 {
		if float64(odd)/total > parityMajority {
			return model.ParityOdd
		}
		if float64(even)/total > parityMajority {
			return model.ParityEven
		}
	}
	if model.ParityOf(start.Number) == model.ParityOf(end.Number) {
		return model.ParityOf(start.Number)
	}
	return def
}

// adjust bumps b by one when it disagrees with parity.
func adjust(b *model.Bound, parity model.Parity) {
	if b == nil || parity == model.ParityNone || parity.Matches(b.Number) {
		return
	}
	b.Number++
}

// median returns the median of values; ok is false for an empty slice.
func median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid], true
	}
	return (s[mid-1] + s[mid]) / 2, true
}
