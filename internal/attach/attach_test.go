package attach

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/itp/internal/linear"
)

func segments() []*geom.LineString {
	return []*geom.LineString{
		geom.NewLineStringFlat(geom.XY, []float64{0, 0, 10, 0}),
		geom.NewLineStringFlat(geom.XY, []float64{10, 0, 10, 10}),
	}
}

func TestAttach_NearestSegment(t *testing.T) {
	coords := []geom.Coord{
		{11, 8}, // segment 1
		{7, 1},  // segment 0
		{2, -1}, // segment 0
		{9, 5},  // segment 1
	}

	locs, err := Attach(segments(), coords, linear.Planar{})
	require.NoError(t, err)
	require.Len(t, locs, len(coords))

	assert.Equal(t, 1, locs[0].Segment)
	assert.InDelta(t, 8.0, locs[0].Along, 1e-9)
	assert.InDelta(t, 1.0, locs[0].Offset, 1e-9)

	assert.Equal(t, 0, locs[1].Segment)
	assert.InDelta(t, 7.0, locs[1].Along, 1e-9)

	for i, l := range locs {
		assert.Equal(t, i, l.Index)
	}
}

func TestAttach_TieGoesToFirstSegment(t *testing.T) {
	// Equidistant from both segments' shared vertex.
	locs, err := Attach(segments(), []geom.Coord{{11, -1}}, linear.Planar{})
	require.NoError(t, err)
	assert.Equal(t, 0, locs[0].Segment)
}

func TestAttach_ZeroLengthNetwork(t *testing.T) {
	segs := []*geom.LineString{geom.NewLineStringFlat(geom.XY, []float64{1, 1, 1, 1})}
	_, err := Attach(segs, []geom.Coord{{0, 0}}, linear.Planar{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero length")

	_, err = Attach(nil, []geom.Coord{{0, 0}}, linear.Planar{})
	require.Error(t, err)
}

func TestSort_OrdersBySegmentThenAlong(t *testing.T) {
	coords := []geom.Coord{{11, 8}, {7, 1}, {2, -1}, {9, 5}, {7, -1}}
	locs, err := Attach(segments(), coords, linear.Planar{})
	require.NoError(t, err)

	sorted := Sort(locs)
	require.Len(t, sorted, len(coords))

	var order []int
	for i, l := range sorted {
		order = append(order, l.Index)
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if prev.Segment == l.Segment {
			assert.LessOrEqual(t, prev.Along, l.Along)
		} else {
			assert.Less(t, prev.Segment, l.Segment)
		}
	}
	// Points 1 and 4 share a position; input order is preserved.
	assert.Equal(t, []int{2, 1, 4, 3, 0}, order)

	// The input slice is untouched.
	assert.Equal(t, 0, locs[0].Index)
}
