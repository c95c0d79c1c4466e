// Package store loads clusters from PostGIS and persists interpolation
// results to PostgreSQL or a local SQLite database.
package store

import (
	"context"

	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/model"
)

// SRID of stored geometries.
const SRID = 4326

// Source yields clusters for batch processing.
type Source interface {
	ClusterIDs(ctx context.Context, from, to int64) ([]int64, error)
	LoadCluster(ctx context.Context, id int64) (*model.Cluster, error)
}

// Sink persists engine results under a run.
type Sink interface {
	// Runs
	CreateRun(ctx context.Context, source string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)

	// Results
	SaveResult(ctx context.Context, runID string, res *interpolate.Result) error
	SaveFailure(ctx context.Context, f model.ClusterFailure) error
	Failures(ctx context.Context, runID string) ([]model.ClusterFailure, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
