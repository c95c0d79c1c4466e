package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/model"
)

// SQLite is a local result sink backed by modernc.org/sqlite. Geometries are
// stored as EWKB blobs.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	stats      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ranges (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	cluster_id INTEGER NOT NULL,
	line       INTEGER NOT NULL,
	seq        INTEGER NOT NULL,
	extension  INTEGER NOT NULL DEFAULT 0,
	geom       BLOB,
	lparity    TEXT,
	lstart     INTEGER,
	lend       INTEGER,
	rparity    TEXT,
	rstart     INTEGER,
	rend       INTEGER,
	PRIMARY KEY (run_id, cluster_id, line, seq)
);

CREATE TABLE IF NOT EXISTS addresses (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	cluster_id  INTEGER NOT NULL,
	source      INTEGER NOT NULL,
	number      INTEGER NOT NULL,
	output      INTEGER NOT NULL,
	outlier     INTEGER NOT NULL,
	offset_dist REAL NOT NULL,
	along       REAL NOT NULL,
	line        INTEGER NOT NULL,
	geom        BLOB
);

CREATE TABLE IF NOT EXISTS failures (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	cluster_id INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, cluster_id)
);

CREATE INDEX IF NOT EXISTS idx_addresses_run_cluster ON addresses(run_id, cluster_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

// Migrate creates the result tables.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	now := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Source, string(run.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLite) FinishRun(ctx context.Context, runID string, status model.RunStatus, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, updated_at = ? WHERE id = ?`,
		string(status), string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLite) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	var status string
	var statsJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, stats, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	).Scan(&run.ID, &run.Source, &status, &statsJSON, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	run.Status = model.RunStatus(status)
	if statsJSON.Valid {
		if err := json.Unmarshal([]byte(statsJSON.String), &run.Stats); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal stats")
		}
	}
	return &run, nil
}

// SaveResult replaces the ranges and addresses of one cluster in a single
// transaction.
func (s *SQLite) SaveResult(ctx context.Context, runID string, res *interpolate.Result) error {
	ranges, err := rangeRows(runID, res)
	if err != nil {
		return err
	}
	addrs, err := addressRows(runID, res)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"ranges", "addresses"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE run_id = ? AND cluster_id = ?`, runID, res.ClusterID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s of cluster %d", table, res.ClusterID)
		}
	}
	if err := insertRows(ctx, tx, "ranges", rangeColumns, ranges); err != nil {
		return err
	}
	if err := insertRows(ctx, tx, "addresses", addressColumns, addrs); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit result")
}

func (s *SQLite) SaveFailure(ctx context.Context, f model.ClusterFailure) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO failures (run_id, cluster_id, reason) VALUES (?, ?, ?)`,
		f.RunID, f.ClusterID, f.Reason,
	)
	return eris.Wrapf(err, "sqlite: save failure of cluster %d", f.ClusterID)
}

// Failures lists the clusters skipped by a run in cluster order.
func (s *SQLite) Failures(ctx context.Context, runID string) ([]model.ClusterFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, cluster_id, reason FROM failures WHERE run_id = ? ORDER BY cluster_id`, runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failures")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ClusterFailure
	for rows.Next() {
		var f model.ClusterFailure
		if err := rows.Scan(&f.RunID, &f.ClusterID, &f.Reason); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list failures iterate")
}

// helpers

func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(table, columns))
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert into %s", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert into %s", table)
		}
	}
	return nil
}

func insertSQL(table string, columns []string) string {
	q := "INSERT INTO " + table + " ("
	for i, c := range columns {
		if i > 0 {
			q += ", "
		}
		q += c
	}
	q += ") VALUES ("
	for i := range columns {
		if i > 0 {
			q += ", "
		}
		q += "?"
	}
	return q + ")"
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

var _ Sink = (*SQLite)(nil)
