package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/model"
)

func testResult() *interpolate.Result {
	lstart := &model.Bound{Point: model.AttachedPoint{Coord: geom.Coord{1, 1}, Number: 2}, Number: 2}
	lend := &model.Bound{Point: model.AttachedPoint{Coord: geom.Coord{9, 1}, Number: 8}, Number: 8}
	r := model.Range{ParityLeft: model.ParityEven, LeftStart: lstart, LeftEnd: lend}
	return &interpolate.Result{
		ClusterID: 12,
		Features: []interpolate.Feature{
			{
				Line:  geom.NewLineStringFlat(geom.XY, []float64{0, 0, 10, 0}),
				End:   10,
				Range: r,
				Debug: r.Bounds(),
			},
			{
				Line:      geom.NewLineStringFlat(geom.XY, []float64{10, 0, 10, 0}),
				Start:     10,
				End:       10,
				Extension: true,
			},
		},
		Addresses: []model.AttachedPoint{
			{Coord: geom.Coord{1, 1}, Number: 2, Output: true},
			{Coord: geom.Coord{9, 1}, Number: 8, Output: false},
		},
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func props(f map[string]any) map[string]any {
	p, _ := f["properties"].(map[string]any)
	return p
}

func TestWriter_RangesOnly(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Options{})
	require.NoError(t, w.Write(testResult()))
	assert.Equal(t, 2, w.Count())

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	p := props(lines[0])
	assert.Equal(t, "Feature", lines[0]["type"])
	assert.Equal(t, KindRange, p["kind"])
	assert.EqualValues(t, 12, p["cluster_id"])
	assert.Equal(t, "E", p["lparity"])
	assert.EqualValues(t, 2, p["lstart"])
	assert.EqualValues(t, 8, p["lend"])
	assert.Nil(t, p["rparity"])
	assert.Nil(t, p["rstart"])
	assert.Nil(t, p["rend"])
	assert.NotContains(t, p, "extension")

	geometry, ok := lines[0]["geometry"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "LineString", geometry["type"])

	assert.Equal(t, true, props(lines[1])["extension"])
}

func TestWriter_AddressesAndDebug(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, Options{Addresses: true, Debug: true})
	require.NoError(t, w.Write(testResult()))

	lines := decodeLines(t, &buf)
	// Two ranges, one visible address, two markers.
	require.Len(t, lines, 5)

	addr := props(lines[2])
	assert.Equal(t, KindAddress, addr["kind"])
	assert.EqualValues(t, 2, addr["number"])

	assert.Equal(t, KindMarker, props(lines[3])["kind"])
	assert.Equal(t, "lstart", props(lines[3])["marker"])
	assert.Equal(t, "lend", props(lines[4])["marker"])
}

func TestCollection(t *testing.T) {
	fc := Collection([]*interpolate.Result{testResult(), testResult()}, Options{})
	assert.Len(t, fc.Features, 4)

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FeatureCollection"`)
}
