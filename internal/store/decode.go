package store

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/itp/internal/model"
)

// addressProps is the per-point companion of the address multipoint.
type addressProps struct {
	Output *bool          `json:"output"`
	Props  map[string]any `json:"props"`
}

// clusterRow holds the raw columns of one itp.clusters row.
type clusterRow struct {
	ID            int64
	Network       []byte
	Addresses     []byte
	AddressProps  []byte
	Intersections []byte
	Streets       []byte
}

// decode builds a Cluster from EWKB geometries and JSON companions.
// Address numbers are carried in the Z ordinate of the address multipoint.
func (r clusterRow) decode() (*model.Cluster, error) {
	c := &model.Cluster{ID: r.ID}

	if len(r.Network) > 0 {
		g, err := ewkb.Unmarshal(r.Network)
		if err != nil {
			return nil, eris.Wrapf(err, "store: decode network of cluster %d", r.ID)
		}
		c.Network = g
	}

	if len(r.Addresses) > 0 {
		pts, err := multiPoint(r.Addresses)
		if err != nil {
			return nil, eris.Wrapf(err, "store: decode addresses of cluster %d", r.ID)
		}
		var props []addressProps
		if len(r.AddressProps) > 0 {
			if err := json.Unmarshal(r.AddressProps, &props); err != nil {
				return nil, eris.Wrapf(err, "store: decode address props of cluster %d", r.ID)
			}
		}
		z := pts.Layout().ZIndex()
		if z < 0 {
			return nil, model.NewClusterError(r.ID, "address points carry no house number")
		}
		for i := 0; i < pts.NumPoints(); i++ {
			p := pts.Point(i)
			a := model.AddressPoint{
				Coord:  geom.Coord{p.X(), p.Y()},
				Number: int(math.Round(p.Coords()[z])),
				Output: true,
			}
			if i < len(props) {
				if props[i].Output != nil {
					a.Output = *props[i].Output
				}
				a.Props = props[i].Props
			}
			c.Addresses = append(c.Addresses, a)
		}
	}

	if len(r.Intersections) > 0 {
		pts, err := multiPoint(r.Intersections)
		if err != nil {
			return nil, eris.Wrapf(err, "store: decode intersections of cluster %d", r.ID)
		}
		var streets [][]string
		if len(r.Streets) > 0 {
			if err := json.Unmarshal(r.Streets, &streets); err != nil {
				return nil, eris.Wrapf(err, "store: decode intersection streets of cluster %d", r.ID)
			}
		}
		for i := 0; i < pts.NumPoints(); i++ {
			p := pts.Point(i)
			ip := model.IntersectionPoint{Coord: geom.Coord{p.X(), p.Y()}}
			if i < len(streets) {
				ip.Streets = streets[i]
			}
			c.Intersections = append(c.Intersections, ip)
		}
	}

	return c, nil
}

// multiPoint decodes EWKB holding a Point or MultiPoint.
func multiPoint(data []byte) (*geom.MultiPoint, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	switch t := g.(type) {
	case *geom.MultiPoint:
		return t, nil
	case *geom.Point:
		mp := geom.NewMultiPoint(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil, err
		}
		return mp, nil
	}
	return nil, eris.Errorf("unexpected geometry %T", g)
}
