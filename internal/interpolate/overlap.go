package interpolate

import (
	"sort"

	"github.com/sells-group/itp/internal/model"
)

// Overlaps flags inner ranges whose side is out of order with its
// neighbors: a side whose start number is not strictly between the start
// numbers of the previous and next ranges. ranges must be ordered along the
// line. The first and last ranges are never flagged, and a side flagged on
// one range is not checked on the range right after it.
func Overlaps(ranges []model.Range) []Overlap {
	var out []Overlap
	sides := [][2]model.BoundName{
		{model.LeftStart, model.LeftEnd},
		{model.RightStart, model.RightEnd},
	}
	for _, side := range sides {
		from, to := side[0], side[1]
		prevFlagged := false
		for i := 1; i < len(ranges)-1; i++ {
			if prevFlagged {
				prevFlagged = false
				continue
			}
			prev, cur, next := ranges[i-1].Get(from), ranges[i].Get(from), ranges[i+1].Get(from)
			curTo := ranges[i].Get(to)
			if prev == nil || cur == nil || next == nil || curTo == nil {
				continue
			}
			if between(prev.Number, cur.Number, next.Number) {
				continue
			}
			// Legacy behavior, possibly unintended: the end bound is flagged
			// on the start bound's check rather than on its own neighbors.
			// Hints carry the observed address numbers, which differ from the
			// bound numbers after parity adjustment.
			out = append(out,
				Overlap{Index: i, Bound: from, Number: cur.Point.Number},
				Overlap{Index: i, Bound: to, Number: curTo.Point.Number},
			)
			prevFlagged = true
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// between reports whether b lies strictly between a and c in either
// direction.
func between(a, b, c int) bool {
	return (a < b && b < c) || (a > b && b > c)
}
