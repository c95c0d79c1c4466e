// Package output renders interpolation results as GeoJSON.
package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/model"
)

// Feature kinds, stored in the "kind" property.
const (
	KindRange   = "range"
	KindAddress = "address"
	KindMarker  = "marker"
)

// Options selects the optional feature kinds.
type Options struct {
	Addresses bool // visible address points (output=true)
	Debug     bool // start/end markers of every range bound, computed when the engine did not record them
}

// Features converts res into GeoJSON features: one per sub-segment, then
// address points and debug markers when enabled.
func Features(res *interpolate.Result, opts Options) []*geojson.Feature {
	var out []*geojson.Feature
	for _, f := range res.Features {
		out = append(out, rangeFeature(res.ClusterID, f))
	}
	if opts.Addresses {
		for _, a := range res.Addresses {
			if !a.Output {
				continue
			}
			out = append(out, &geojson.Feature{
				Geometry: geom.NewPointFlat(geom.XY, []float64{a.Coord[0], a.Coord[1]}),
				Properties: map[string]any{
					"kind":       KindAddress,
					"cluster_id": res.ClusterID,
					"number":     a.Number,
					"outlier":    a.Outlier,
					"props":      a.Props,
				},
			})
		}
	}
	if opts.Debug {
		for _, f := range res.Features {
			bounds := f.Debug
			if bounds == nil {
				bounds = f.Range.Bounds()
			}
			for _, nb := range bounds {
				c := nb.Bound.Point.Coord
				if len(c) < 2 {
					continue
				}
				out = append(out, &geojson.Feature{
					Geometry: geom.NewPointFlat(geom.XY, []float64{c[0], c[1]}),
					Properties: map[string]any{
						"kind":       KindMarker,
						"cluster_id": res.ClusterID,
						"marker":     string(nb.Name),
						"number":     nb.Bound.Number,
					},
				})
			}
		}
	}
	return out
}

func rangeFeature(clusterID int64, f interpolate.Feature) *geojson.Feature {
	r := f.Range
	props := map[string]any{
		"kind":       KindRange,
		"cluster_id": clusterID,
		"lparity":    parity(r.ParityLeft),
		"lstart":     r.LeftStart.Value(),
		"lend":       r.LeftEnd.Value(),
		"rparity":    parity(r.ParityRight),
		"rstart":     r.RightStart.Value(),
		"rend":       r.RightEnd.Value(),
	}
	if f.Extension {
		props["extension"] = true
	}
	var g geom.T
	if f.Line != nil {
		g = f.Line
	}
	return &geojson.Feature{Geometry: g, Properties: props}
}

func parity(p model.Parity) any {
	if p == model.ParityNone {
		return nil
	}
	return p.String()
}

// Collection wraps the features of every result in one FeatureCollection.
func Collection(results []*interpolate.Result, opts Options) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{}
	for _, res := range results {
		fc.Features = append(fc.Features, Features(res, opts)...)
	}
	return fc
}

// Writer streams features as newline-delimited GeoJSON. It is safe for
// concurrent use.
type Writer struct {
	mu   sync.Mutex
	w    io.Writer
	opts Options
	n    int
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer, opts Options) *Writer {
	return &Writer{w: w, opts: opts}
}

// Write emits every feature of res, one JSON document per line.
func (w *Writer) Write(res *interpolate.Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range Features(res, w.opts) {
		data, err := json.Marshal(f)
		if err != nil {
			return eris.Wrapf(err, "output: marshal feature of cluster %d", res.ClusterID)
		}
		data = append(data, '\n')
		if _, err := w.w.Write(data); err != nil {
			return eris.Wrap(err, "output: write feature")
		}
		w.n++
	}
	return nil
}

// Count returns the number of features written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}
