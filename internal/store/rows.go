package store

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/model"
)

var rangeColumns = []string{
	"run_id", "cluster_id", "line", "seq", "extension", "geom",
	"lparity", "lstart", "lend", "rparity", "rstart", "rend",
}

var addressColumns = []string{
	"run_id", "cluster_id", "source", "number", "output", "outlier",
	"offset_dist", "along", "line", "geom",
}

// rangeRows flattens the features of res into rows matching rangeColumns.
func rangeRows(runID string, res *interpolate.Result) ([][]any, error) {
	rows := make([][]any, 0, len(res.Features))
	seq := make(map[int]int)
	for _, f := range res.Features {
		wkb, err := encodeLine(f.Line)
		if err != nil {
			return nil, err
		}
		r := f.Range
		rows = append(rows, []any{
			runID, res.ClusterID, f.Segment, seq[f.Segment], f.Extension, wkb,
			parity(r.ParityLeft), r.LeftStart.Value(), r.LeftEnd.Value(),
			parity(r.ParityRight), r.RightStart.Value(), r.RightEnd.Value(),
		})
		seq[f.Segment]++
	}
	return rows, nil
}

// addressRows flattens the attached addresses of res into rows matching
// addressColumns.
func addressRows(runID string, res *interpolate.Result) ([][]any, error) {
	rows := make([][]any, 0, len(res.Addresses))
	for _, a := range res.Addresses {
		wkb, err := encodePoint(a.Coord)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{
			runID, res.ClusterID, a.Source, a.Number, a.Output, a.Outlier,
			a.Offset, a.Along, a.Segment, wkb,
		})
	}
	return rows, nil
}

func parity(p model.Parity) *string {
	if p == model.ParityNone {
		return nil
	}
	s := p.String()
	return &s
}

func encodeLine(ls *geom.LineString) ([]byte, error) {
	if ls == nil {
		return nil, nil
	}
	g := geom.NewLineStringFlat(geom.XY, xyFlat(ls)).SetSRID(SRID)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode line")
	}
	return data, nil
}

func encodePoint(c geom.Coord) ([]byte, error) {
	if len(c) < 2 {
		return nil, nil
	}
	g := geom.NewPointFlat(geom.XY, []float64{c[0], c[1]}).SetSRID(SRID)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode point")
	}
	return data, nil
}

func xyFlat(ls *geom.LineString) []float64 {
	flat := make([]float64, 0, ls.NumCoords()*2)
	for i := 0; i < ls.NumCoords(); i++ {
		c := ls.Coord(i)
		flat = append(flat, c.X(), c.Y())
	}
	return flat
}
