// Package shapefile reads pre-clustered street networks, address points and
// intersections from ESRI shapefiles.
//
// A dataset directory holds network.shp (polylines with cluster_id),
// addresses.shp (points with cluster_id, number and an optional output flag)
// and optionally intersections.shp (points with cluster_id and streets, a
// ';'-separated list of peer street names).
package shapefile

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/itp/internal/model"
)

// Layer file names.
const (
	NetworkFile       = "network.shp"
	AddressesFile     = "addresses.shp"
	IntersectionsFile = "intersections.shp"
)

// Attribute names, matched case-insensitively.
const (
	FieldClusterID = "cluster_id"
	FieldNumber    = "number"
	FieldOutput    = "output"
	FieldStreets   = "streets"
)

// record is one shapefile row with its attributes keyed by lowercase name.
type record struct {
	shape shp.Shape
	attrs map[string]string
}

// ReadClusters loads every cluster of the dataset in dir, ordered by ID.
// Clusters with several network records get a MultiLineString network.
func ReadClusters(dir string) ([]*model.Cluster, error) {
	log := zap.L().With(zap.String("component", "shapefile"), zap.String("dir", dir))

	network, err := readLayer(filepath.Join(dir, NetworkFile))
	if err != nil {
		return nil, err
	}
	addresses, err := readLayer(filepath.Join(dir, AddressesFile))
	if err != nil {
		return nil, err
	}
	var intersections []record
	if path := filepath.Join(dir, IntersectionsFile); exists(path) {
		if intersections, err = readLayer(path); err != nil {
			return nil, err
		}
	}

	clusters := make(map[int64]*model.Cluster)
	lines := make(map[int64]*geom.MultiLineString)
	get := func(id int64) *model.Cluster {
		c, ok := clusters[id]
		if !ok {
			c = &model.Cluster{ID: id}
			clusters[id] = c
		}
		return c
	}

	var skipped int
	for i, r := range network {
		id, ok := r.int64(FieldClusterID)
		if !ok {
			skipped++
			continue
		}
		pl, ok := r.shape.(*shp.PolyLine)
		if !ok {
			return nil, eris.Errorf("shapefile: %s record %d is %T, want polyline", NetworkFile, i, r.shape)
		}
		mls, ok := lines[id]
		if !ok {
			mls = geom.NewMultiLineString(geom.XY)
			lines[id] = mls
			get(id)
		}
		for _, ls := range polyLineParts(pl) {
			if err := mls.Push(ls); err != nil {
				log.Debug("skipping malformed network part", zap.Int64("cluster_id", id), zap.Error(err))
			}
		}
	}

	for i, r := range addresses {
		id, ok := r.int64(FieldClusterID)
		if !ok {
			skipped++
			continue
		}
		c, ok := pointCoord(r.shape)
		if !ok {
			return nil, eris.Errorf("shapefile: %s record %d is %T, want point", AddressesFile, i, r.shape)
		}
		n, ok := r.int64(FieldNumber)
		if !ok {
			skipped++
			continue
		}
		output := true
		if v, ok := r.attrs[FieldOutput]; ok && v != "" {
			output = parseBool(v)
		}
		cl := get(id)
		cl.Addresses = append(cl.Addresses, model.AddressPoint{Coord: c, Number: int(n), Output: output})
	}

	for i, r := range intersections {
		id, ok := r.int64(FieldClusterID)
		if !ok {
			skipped++
			continue
		}
		c, ok := pointCoord(r.shape)
		if !ok {
			return nil, eris.Errorf("shapefile: %s record %d is %T, want point", IntersectionsFile, i, r.shape)
		}
		cl := get(id)
		cl.Intersections = append(cl.Intersections, model.IntersectionPoint{
			Coord:   c,
			Streets: splitStreets(r.attrs[FieldStreets]),
		})
	}

	out := make([]*model.Cluster, 0, len(clusters))
	for id, c := range clusters {
		if mls, ok := lines[id]; ok {
			c.Network = simplify(mls)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if skipped > 0 {
		log.Warn("skipped records without usable attributes", zap.Int("skipped", skipped))
	}
	log.Info("clusters read", zap.Int("clusters", len(out)))
	return out, nil
}

// readLayer reads every record of the shapefile at path, decoding string
// attributes with the charset named by the companion .cpg file.
func readLayer(path string) ([]record, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	dec, err := attributeDecoder(path)
	if err != nil {
		return nil, err
	}

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var out []record
	for reader.Next() {
		_, shape := reader.Shape()
		r := record{shape: shape, attrs: make(map[string]string, len(names))}
		for i, name := range names {
			v := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if v, err = dec(v); err != nil {
				return nil, eris.Wrapf(err, "shapefile: decode %s of %s", name, path)
			}
			r.attrs[name] = v
		}
		out = append(out, r)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", path)
	}
	return out, nil
}

func (r record) int64(name string) (int64, bool) {
	v, ok := r.attrs[name]
	if !ok || v == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

func pointCoord(s shp.Shape) (geom.Coord, bool) {
	switch p := s.(type) {
	case *shp.Point:
		return geom.Coord{p.X, p.Y}, true
	case *shp.PointZ:
		return geom.Coord{p.X, p.Y}, true
	case *shp.PointM:
		return geom.Coord{p.X, p.Y}, true
	}
	return nil, false
}

// polyLineParts splits a polyline into one line string per part.
func polyLineParts(pl *shp.PolyLine) []*geom.LineString {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}
	var out []*geom.LineString
	for i := int32(0); i < pl.NumParts; i++ {
		start := pl.Parts[i]
		end := int32(len(pl.Points))
		if i+1 < pl.NumParts {
			end = pl.Parts[i+1]
		}
		flat := make([]float64, 0, 2*(end-start))
		for _, p := range pl.Points[start:end] {
			flat = append(flat, p.X, p.Y)
		}
		out = append(out, geom.NewLineStringFlat(geom.XY, flat))
	}
	return out
}

// simplify returns the only line of a single-part network.
func simplify(mls *geom.MultiLineString) geom.T {
	if mls.NumLineStrings() == 1 {
		return mls.LineString(0)
	}
	return mls
}

func splitStreets(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "0", "f", "false", "n", "no":
		return false
	}
	return true
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
