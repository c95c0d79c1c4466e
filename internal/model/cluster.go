package model

import (
	"fmt"

	"github.com/twpayne/go-geom"
)

// AddressPoint is a civic address observation associated with a cluster.
// Output false keeps the point for geometry and ranges but hides it from
// visible address output.
type AddressPoint struct {
	Coord  geom.Coord     `json:"coord"`
	Number int            `json:"number"`
	Output bool           `json:"output"`
	Props  map[string]any `json:"props,omitempty"`
}

// IntersectionPoint is a location where the cluster's street meets another.
type IntersectionPoint struct {
	Coord   geom.Coord `json:"coord"`
	Streets []string   `json:"streets,omitempty"`
}

// Cluster is one street's network geometry and the points matched to it.
// Network must be a LineString or a MultiLineString of simple segments.
type Cluster struct {
	ID            int64               `json:"id"`
	Network       geom.T              `json:"-"`
	Addresses     []AddressPoint      `json:"addresses"`
	Intersections []IntersectionPoint `json:"intersections,omitempty"`
}

// AttachedPoint is an address or intersection bound to the network segment
// nearest to it.
type AttachedPoint struct {
	Coord   geom.Coord     // original coordinate
	Offset  float64        // perpendicular distance to the segment
	Along   float64        // distance along the segment
	Segment int            // index of the segment in the exploded network
	Source  int            // index into the cluster's input slice
	Number  int            // house number; zero for intersections
	Output  bool           // visible in address output
	Outlier bool           // excluded from range computation
	Streets []string       // peer street names for intersections
	Props   map[string]any // opaque source properties
}

// ClusterError reports a precondition violation that makes a cluster
// unprocessable.
type ClusterError struct {
	ClusterID int64
	Reason    string
}

func (e *ClusterError) Error() string {
	return fmt.Sprintf("cluster %d: %s", e.ClusterID, e.Reason)
}

// NewClusterError builds a ClusterError with a formatted reason.
func NewClusterError(id int64, format string, args ...any) *ClusterError {
	return &ClusterError{ClusterID: id, Reason: fmt.Sprintf(format, args...)}
}
