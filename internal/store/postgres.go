package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/itp/internal/db"
	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/model"
)

// Postgres reads clusters from and writes results to a PostGIS database.
type Postgres struct {
	pool db.Pool
}

// NewPostgres connects to connString and returns a Postgres store.
func NewPostgres(ctx context.Context, connString string, cfg db.PoolConfig) (*Postgres, error) {
	pool, err := db.Connect(ctx, connString, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE SCHEMA IF NOT EXISTS itp;

CREATE TABLE IF NOT EXISTS itp.clusters (
	id                   BIGINT PRIMARY KEY,
	network              geometry NOT NULL,
	addresses            geometry(MultiPointZ, 4326),
	address_props        JSONB,
	intersections        geometry(MultiPoint, 4326),
	intersection_streets JSONB
);

CREATE TABLE IF NOT EXISTS itp.runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS itp.ranges (
	run_id     TEXT NOT NULL REFERENCES itp.runs(id),
	cluster_id BIGINT NOT NULL,
	line       INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	extension  BOOLEAN NOT NULL DEFAULT false,
	geom       geometry(LineString, 4326),
	lparity    TEXT,
	lstart     INTEGER,
	lend       INTEGER,
	rparity    TEXT,
	rstart     INTEGER,
	rend       INTEGER,
	PRIMARY KEY (run_id, cluster_id, line, seq)
);

CREATE TABLE IF NOT EXISTS itp.addresses (
	run_id      TEXT NOT NULL REFERENCES itp.runs(id),
	cluster_id  BIGINT NOT NULL,
	source      INTEGER NOT NULL,
	number      INTEGER NOT NULL,
	output      BOOLEAN NOT NULL,
	outlier     BOOLEAN NOT NULL,
	offset_dist DOUBLE PRECISION NOT NULL,
	along       DOUBLE PRECISION NOT NULL,
	line        INTEGER NOT NULL,
	geom        geometry(Point, 4326)
);

CREATE TABLE IF NOT EXISTS itp.failures (
	run_id     TEXT NOT NULL REFERENCES itp.runs(id),
	cluster_id BIGINT NOT NULL,
	reason     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, cluster_id)
);

CREATE INDEX IF NOT EXISTS idx_ranges_geom ON itp.ranges USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_addresses_run_cluster ON itp.addresses (run_id, cluster_id);
`

// Migrate creates the itp schema and tables.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// ClusterIDs returns the cluster IDs in [from, to] in ascending order. A
// non-positive to means no upper bound.
func (s *Postgres) ClusterIDs(ctx context.Context, from, to int64) ([]int64, error) {
	query := `SELECT id FROM itp.clusters WHERE id >= $1 ORDER BY id`
	args := []any{from}
	if to > 0 {
		query = `SELECT id FROM itp.clusters WHERE id >= $1 AND id <= $2 ORDER BY id`
		args = append(args, to)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cluster ids")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cluster id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list cluster ids iterate")
}

// LoadCluster loads one cluster snapshot.
func (s *Postgres) LoadCluster(ctx context.Context, id int64) (*model.Cluster, error) {
	var r clusterRow
	err := s.pool.QueryRow(ctx,
		`SELECT id, ST_AsEWKB(network), ST_AsEWKB(addresses), address_props, ST_AsEWKB(intersections), intersection_streets
		 FROM itp.clusters WHERE id = $1`,
		id,
	).Scan(&r.ID, &r.Network, &r.Addresses, &r.AddressProps, &r.Intersections, &r.Streets)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: cluster %d not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load cluster %d", id)
	}
	return r.decode()
}

// CreateRun inserts a running run.
func (s *Postgres) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	now := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO itp.runs (id, source, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Source, string(run.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

// FinishRun records the final status and stats of a run.
func (s *Postgres) FinishRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE itp.runs SET status = $1, stats = $2, updated_at = $3 WHERE id = $4`,
		string(status), statsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", runID)
	}
	return nil
}

// GetRun returns a run by ID.
func (s *Postgres) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	var status string
	var statsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, source, status, stats, created_at, updated_at FROM itp.runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &run.Source, &status, &statsJSON, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: get run: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	run.Status = model.RunStatus(status)
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &run.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	return &run, nil
}

// SaveResult upserts the ranges of res and atomically replaces its address
// rows.
func (s *Postgres) SaveResult(ctx context.Context, runID string, res *interpolate.Result) error {
	ranges, err := rangeRows(runID, res)
	if err != nil {
		return err
	}
	addrs, err := addressRows(runID, res)
	if err != nil {
		return err
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "itp.ranges",
		Columns:      rangeColumns,
		ConflictKeys: []string{"run_id", "cluster_id", "line", "seq"},
	}, ranges)
	if err != nil {
		return eris.Wrapf(err, "postgres: save ranges of cluster %d", res.ClusterID)
	}

	m, err := db.Replace(ctx, s.pool, db.ReplaceConfig{
		Table:   "itp.addresses",
		Columns: addressColumns,
		Keys:    []string{"run_id", "cluster_id"},
		Values:  []any{runID, res.ClusterID},
	}, addrs)
	if err != nil {
		return eris.Wrapf(err, "postgres: save addresses of cluster %d", res.ClusterID)
	}

	zap.L().Debug("result saved",
		zap.String("component", "store.postgres"),
		zap.Int64("cluster_id", res.ClusterID),
		zap.Int64("ranges", n),
		zap.Int64("addresses", m),
	)
	return nil
}

// SaveFailure records a skipped cluster.
func (s *Postgres) SaveFailure(ctx context.Context, f model.ClusterFailure) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO itp.failures (run_id, cluster_id, reason) VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, cluster_id) DO UPDATE SET reason = EXCLUDED.reason`,
		f.RunID, f.ClusterID, f.Reason,
	)
	return eris.Wrapf(err, "postgres: save failure of cluster %d", f.ClusterID)
}

// Failures lists the clusters skipped by a run in cluster order.
func (s *Postgres) Failures(ctx context.Context, runID string) ([]model.ClusterFailure, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, cluster_id, reason FROM itp.failures WHERE run_id = $1 ORDER BY cluster_id`, runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failures")
	}
	defer rows.Close()

	var out []model.ClusterFailure
	for rows.Next() {
		var f model.ClusterFailure
		if err := rows.Scan(&f.RunID, &f.ClusterID, &f.Reason); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list failures iterate")
}

var (
	_ Source = (*Postgres)(nil)
	_ Sink   = (*Postgres)(nil)
)
