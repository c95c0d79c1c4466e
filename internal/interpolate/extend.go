package interpolate

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/itp/internal/linear"
	"github.com/sells-group/itp/internal/model"
)

// Diff returns the rounding step for extending a line whose retained numbers
// span low..high: the power of ten nearest the span, halved above 1000. An
// empty span yields 0, meaning no extension.
func Diff(low, high int) int {
	span := high - low
	if span < 0 {
		span = -span
	}
	if span == 0 {
		return 0
	}
	d := int(math.Pow(10, math.Round(math.Log10(float64(span)))))
	if d > 1000 {
		d /= 2
	}
	return d
}

// DropLow rounds low down to a multiple of diff, keeping its parity. A step
// of 1 is treated as 10. The result is strictly below low, or low itself when
// no non-negative value qualifies.
func DropLow(low, diff int) int {
	if diff <= 0 {
		return low
	}
	if diff == 1 {
		diff = 10
	}
	v := floorDiv(low, diff) * diff
	if model.ParityOf(v) != model.ParityOf(low) {
		v++
	}
	if v >= low {
		v -= diff
		if model.ParityOf(v) != model.ParityOf(low) {
			v++
		}
	}
	if v < 0 || v >= low {
		return low
	}
	return v
}

// RaiseHigh rounds high up to a multiple of diff, keeping its parity. A step
// of 1 is treated as 10. The result is strictly above high unless diff is not
// positive.
func RaiseHigh(high, diff int) int {
	if diff <= 0 {
		return high
	}
	if diff == 1 {
		diff = 10
	}
	v := -floorDiv(-high, diff) * diff
	if model.ParityOf(v) != model.ParityOf(high) {
		v++
	}
	if v <= high {
		v += diff
		if model.ParityOf(v) != model.ParityOf(high) {
			v++
		}
	}
	return v
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ExtendOptions selects which ends of a line are widened.
type ExtendOptions struct {
	DropLow   bool
	RaiseHigh bool
}

// end is one extremity of the ordered features.
type end struct {
	head   bool
	side   linear.Side
	number int
	bound  *model.Bound
}

// Extend widens the lowest and highest ranges of a line by inserting a
// zero-length feature at the end of the line holding the extreme number.
//
// The extreme numbers are looked up among the start bounds of the first
// feature and the end bounds of the last one, so descending numbering
// extends the opposite ends. The new feature carries only the extended side
// unless the other side at that end rounds to the same value.
func Extend(features []Feature, limits *Limits, line *geom.LineString, m linear.Metric, opts ExtendOptions) []Feature {
	if len(features) == 0 || limits == nil || !limits.Valid() {
		return features
	}
	diff := Diff(limits.Min, limits.Max)
	if diff == 0 {
		return features
	}

	first, last := -1, -1
	for i, f := range features {
		if f.Range.Empty() {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return features
	}

	ends := []end{
		{head: true, side: linear.SideLeft, bound: features[first].Range.LeftStart},
		{head: true, side: linear.SideRight, bound: features[first].Range.RightStart},
		{head: false, side: linear.SideLeft, bound: features[last].Range.LeftEnd},
		{head: false, side: linear.SideRight, bound: features[last].Range.RightEnd},
	}
	var present []end
	for _, e := range ends {
		if e.bound != nil {
			e.number = e.bound.Number
			present = append(present, e)
		}
	}
	if len(present) == 0 {
		return features
	}

	lowest, highest := present[0], present[0]
	for _, e := range present[1:] {
		if e.number < lowest.number {
			lowest = e
		}
		if e.number > highest.number || (e.number == highest.number && !e.head) {
			highest = e
		}
	}

	length := linear.Length(line, m)
	if opts.DropLow {
		if f, ok := extension(present, lowest, diff, DropLow, line, length, m); ok {
			features = insert(features, f, lowest.head)
		}
	}
	if opts.RaiseHigh {
		if f, ok := extension(present, highest, diff, RaiseHigh, line, length, m); ok {
			features = insert(features, f, highest.head)
		}
	}
	return features
}

// extension builds the zero-length feature widening target with round.
func extension(present []end, target end, diff int, round func(int, int) int, line *geom.LineString, length float64, m linear.Metric) (Feature, bool) {
	widened := round(target.number, diff)
	if widened == target.number {
		return Feature{}, false
	}

	at := length
	if target.head {
		at = 0
	}
	f := Feature{
		Line:      linear.Slice(line, at, at, m),
		Start:     at,
		End:       at,
		Extension: true,
	}

	for _, e := range present {
		if e.head != target.head {
			continue
		}
		v := round(e.number, diff)
		if e.side != target.side && (v == e.number || abs(v-widened) > 1) {
			continue
		}
		outer := &model.Bound{Point: e.bound.Point, Number: v}
		inner := &model.Bound{Point: e.bound.Point, Number: innerNumber(e.number, v)}
		// Along the line the head feature runs outer -> inner and the tail
		// feature inner -> outer.
		start, stop := outer, inner
		if !target.head {
			start, stop = inner, outer
		}
		if e.side == linear.SideLeft {
			f.Range.ParityLeft = model.ParityOf(e.number)
			f.Range.LeftStart, f.Range.LeftEnd = start, stop
		} else {
			f.Range.ParityRight = model.ParityOf(e.number)
			f.Range.RightStart, f.Range.RightEnd = start, stop
		}
	}
	return f, true
}

// innerNumber is the number next to observed on the widened side of it, kept
// between observed and widened.
func innerNumber(observed, widened int) int {
	if widened < observed {
		return max(widened, observed-2)
	}
	return min(widened, observed+2)
}

func insert(features []Feature, f Feature, head bool) []Feature {
	if head {
		return append([]Feature{f}, features...)
	}
	return append(features, f)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
