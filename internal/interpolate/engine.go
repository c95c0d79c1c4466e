package interpolate

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/itp/internal/attach"
	"github.com/sells-group/itp/internal/breaks"
	"github.com/sells-group/itp/internal/linear"
	"github.com/sells-group/itp/internal/model"
	"github.com/sells-group/itp/internal/split"
)

// Split strategy names.
const (
	SplitDiscontinuity = "discontinuity"
	SplitIntersection  = "intersection"
	SplitCombined      = "combined"
)

// Options configures an Engine.
type Options struct {
	Metric           linear.Metric
	Split            string  // one of the Split* names; empty means discontinuity
	MaxSegmentLength float64 // regular breakpoint spacing for intersection splits
	Debug            bool    // attach start/end markers to features
	DropLow          bool
	RaiseHigh        bool
}

// Feature is one interpolable slice of a cluster's network.
type Feature struct {
	Line      *geom.LineString
	Segment   int     // index of the exploded network line
	Start     float64 // distance along the network line
	End       float64
	Range     model.Range
	Extension bool               // synthesized by range extension
	Debug     []model.NamedBound // bounds that served as range endpoints
}

// Result is the engine output for one cluster.
type Result struct {
	ClusterID int64
	Features  []Feature
	Addresses []model.AttachedPoint // every attached address, outliers flagged
}

// Engine computes interpolation ranges for clusters. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	opts Options
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Metric == nil {
		opts.Metric = linear.Haversine{}
	}
	if opts.Split == "" {
		opts.Split = SplitDiscontinuity
	}
	switch opts.Split {
	case SplitDiscontinuity, SplitIntersection, SplitCombined:
	default:
		return nil, eris.Errorf("interpolate: unknown split strategy %q", opts.Split)
	}
	if opts.MaxSegmentLength <= 0 {
		opts.MaxSegmentLength = split.DefaultMaxLength
	}
	return &Engine{opts: opts}, nil
}

// Process runs attachment, discontinuity detection, splitting, range
// synthesis, overlap reconciliation and extension for one cluster.
// Precondition violations are returned unwrapped as *model.ClusterError.
func (e *Engine) Process(c *model.Cluster) (*Result, error) {
	if c == nil {
		return nil, model.NewClusterError(0, "nil cluster")
	}
	log := zap.L().With(zap.String("component", "interpolate.engine"), zap.Int64("cluster_id", c.ID))

	lines, err := e.validate(c)
	if err != nil {
		return nil, err
	}

	addrCoords := make([]geom.Coord, len(c.Addresses))
	for i, a := range c.Addresses {
		addrCoords[i] = a.Coord
	}
	intCoords := make([]geom.Coord, len(c.Intersections))
	for i, p := range c.Intersections {
		intCoords[i] = p.Coord
	}

	addrLocs, err := attach.Attach(lines, addrCoords, e.opts.Metric)
	if err != nil {
		return nil, model.NewClusterError(c.ID, "attach addresses: %v", err)
	}
	intLocs, err := attach.Attach(lines, intCoords, e.opts.Metric)
	if err != nil {
		return nil, model.NewClusterError(c.ID, "attach intersections: %v", err)
	}

	addrs := make([][]model.AttachedPoint, len(lines))
	for _, loc := range attach.Sort(addrLocs) {
		a := c.Addresses[loc.Index]
		addrs[loc.Segment] = append(addrs[loc.Segment], model.AttachedPoint{
			Coord:   a.Coord,
			Offset:  loc.Offset,
			Along:   loc.Along,
			Segment: loc.Segment,
			Source:  loc.Index,
			Number:  a.Number,
			Output:  a.Output,
			Props:   a.Props,
		})
	}
	ints := make([][]model.AttachedPoint, len(lines))
	for _, loc := range attach.Sort(intLocs) {
		p := c.Intersections[loc.Index]
		ints[loc.Segment] = append(ints[loc.Segment], model.AttachedPoint{
			Coord:   p.Coord,
			Offset:  loc.Offset,
			Along:   loc.Along,
			Segment: loc.Segment,
			Source:  loc.Index,
			Streets: p.Streets,
		})
	}

	res := &Result{ClusterID: c.ID}
	for s, line := range lines {
		features, retained := e.processLine(line, s, addrs[s], ints[s], log)
		res.Features = append(res.Features, features...)
		res.Addresses = append(res.Addresses, retained...)
	}

	log.Debug("cluster processed",
		zap.Int("lines", len(lines)),
		zap.Int("features", len(res.Features)),
		zap.Int("addresses", len(res.Addresses)),
	)
	return res, nil
}

// processLine handles one simple line of the network with its own limits.
func (e *Engine) processLine(line *geom.LineString, idx int, addrs, ints []model.AttachedPoint, log *zap.Logger) ([]Feature, []model.AttachedPoint) {
	numbers := make([]int, len(addrs))
	for i, a := range addrs {
		numbers[i] = a.Number
	}
	cuts := breaks.Detect(numbers)

	segs := split.Split(line, addrs, ints, e.strategy(cuts), e.opts.Metric)
	log.Debug("line split",
		zap.Int("line", idx),
		zap.Int("breaks", len(cuts)),
		zap.Int("segments", len(segs)),
	)

	limits := &Limits{}
	ranges := make([]model.Range, len(segs))
	var retained []model.AttachedPoint
	for i, seg := range segs {
		r, pts := Compute(seg, limits, e.opts.Metric)
		ranges[i] = r
		retained = append(retained, pts...)
	}

	hints := make(map[int][]Overlap)
	for _, o := range Overlaps(ranges) {
		hints[o.Index] = append(hints[o.Index], o)
	}
	for i, hs := range hints {
		ranges[i], _ = Compute(segs[i], limits, e.opts.Metric, hs...)
	}
	if len(hints) > 0 {
		log.Debug("overlapping ranges recomputed", zap.Int("line", idx), zap.Int("segments", len(hints)))
	}

	features := make([]Feature, len(segs))
	for i, seg := range segs {
		features[i] = Feature{
			Line:    seg.Line,
			Segment: idx,
			Start:   seg.Start,
			End:     seg.End,
			Range:   ranges[i],
		}
	}

	if e.opts.DropLow || e.opts.RaiseHigh {
		before := len(features)
		features = Extend(features, limits, line, e.opts.Metric, ExtendOptions{
			DropLow:   e.opts.DropLow,
			RaiseHigh: e.opts.RaiseHigh,
		})
		for i := range features {
			features[i].Segment = idx
		}
		if added := len(features) - before; added > 0 {
			log.Debug("ranges extended", zap.Int("line", idx), zap.Int("added", added))
		}
	}

	if e.opts.Debug {
		for i := range features {
			features[i].Debug = features[i].Range.Bounds()
		}
	}

	for _, a := range retained {
		if a.Outlier {
			log.Debug("address discarded as outlier",
				zap.Int("line", idx),
				zap.Int("number", a.Number),
				zap.Float64("offset", a.Offset),
			)
		}
	}
	return features, retained
}

func (e *Engine) strategy(cuts []int) split.Strategy {
	byLength := split.ByIntersection{MaxLength: e.opts.MaxSegmentLength}
	switch e.opts.Split {
	case SplitIntersection:
		return byLength
	case SplitCombined:
		return split.Combine{split.ByIndex(cuts), byLength}
	default:
		return split.ByIndex(cuts)
	}
}

// validate checks cluster preconditions and returns the exploded network.
func (e *Engine) validate(c *model.Cluster) ([]*geom.LineString, error) {
	lines, err := linear.Explode(c.Network)
	if err != nil {
		return nil, model.NewClusterError(c.ID, "%v", err)
	}
	if len(lines) == 0 {
		return nil, model.NewClusterError(c.ID, "network has no lines")
	}
	for i, l := range lines {
		if l.NumCoords() < 2 {
			return nil, model.NewClusterError(c.ID, "network line %d has fewer than two vertices", i)
		}
		if linear.Length(l, e.opts.Metric) == 0 {
			return nil, model.NewClusterError(c.ID, "network line %d has zero length", i)
		}
	}
	for i, a := range c.Addresses {
		if !validCoord(a.Coord) {
			return nil, model.NewClusterError(c.ID, "address %d has no valid coordinate", i)
		}
	}
	for i, p := range c.Intersections {
		if !validCoord(p.Coord) {
			return nil, model.NewClusterError(c.ID, "intersection %d has no valid coordinate", i)
		}
	}
	return lines, nil
}

func validCoord(c geom.Coord) bool {
	if len(c) < 2 {
		return false
	}
	for _, v := range c[:2] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
