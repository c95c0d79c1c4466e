package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/itp/internal/db"
	"github.com/sells-group/itp/internal/model"
)

func newMockPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostgresWithPool(mock), mock
}

func mustEWKB(t *testing.T, g geom.T) []byte {
	t.Helper()
	data, err := ewkb.Marshal(g, ewkb.NDR)
	require.NoError(t, err)
	return data
}

func TestPostgres_ClusterIDs(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT id FROM itp.clusters WHERE id >= \$1 AND id <= \$2 ORDER BY id`).
		WithArgs(int64(10), int64(20)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)).AddRow(int64(15)))

	ids, err := s.ClusterIDs(context.Background(), 10, 20)
	require.NoError(t, err)
	assert.Equal(t, []int64{11, 15}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ClusterIDs_Unbounded(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT id FROM itp.clusters WHERE id >= \$1 ORDER BY id`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	ids, err := s.ClusterIDs(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadCluster(t *testing.T) {
	s, mock := newMockPostgres(t)

	network := mustEWKB(t, geom.NewLineStringFlat(geom.XY, []float64{0, 0, 0.001, 0}).SetSRID(SRID))
	addresses := mustEWKB(t, geom.NewMultiPointFlat(geom.XYZ, []float64{
		0.0002, 0.0001, 2,
		0.0008, -0.0001, 7,
	}).SetSRID(SRID))
	intersections := mustEWKB(t, geom.NewMultiPointFlat(geom.XY, []float64{0, 0}).SetSRID(SRID))
	props := []byte(`[{"props":{"unit":"A"}},{"output":false}]`)
	streets := []byte(`[["Main St","Oak Ave"]]`)

	mock.ExpectQuery(`FROM itp.clusters WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "network", "addresses", "address_props", "intersections", "intersection_streets"}).
			AddRow(int64(5), network, addresses, props, intersections, streets))

	c, err := s.LoadCluster(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.ID)
	_, ok := c.Network.(*geom.LineString)
	assert.True(t, ok)

	require.Len(t, c.Addresses, 2)
	assert.Equal(t, 2, c.Addresses[0].Number)
	assert.True(t, c.Addresses[0].Output)
	assert.Equal(t, "A", c.Addresses[0].Props["unit"])
	assert.Equal(t, 7, c.Addresses[1].Number)
	assert.False(t, c.Addresses[1].Output)
	assert.InDelta(t, -0.0001, c.Addresses[1].Coord[1], 1e-12)

	require.Len(t, c.Intersections, 1)
	assert.Equal(t, []string{"Main St", "Oak Ave"}, c.Intersections[0].Streets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadCluster_AddressesWithoutNumbers(t *testing.T) {
	s, mock := newMockPostgres(t)

	network := mustEWKB(t, geom.NewLineStringFlat(geom.XY, []float64{0, 0, 0.001, 0}).SetSRID(SRID))
	addresses := mustEWKB(t, geom.NewMultiPointFlat(geom.XY, []float64{
		0.0002, 0.0001,
		0.0008, -0.0001,
	}).SetSRID(SRID))

	mock.ExpectQuery(`FROM itp.clusters WHERE id = \$1`).
		WithArgs(int64(6)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "network", "addresses", "address_props", "intersections", "intersection_streets"}).
			AddRow(int64(6), network, addresses, []byte(nil), []byte(nil), []byte(nil)))

	c, err := s.LoadCluster(context.Background(), 6)
	require.Error(t, err)
	assert.Nil(t, c)

	var ce *model.ClusterError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, int64(6), ce.ClusterID)
	assert.Contains(t, ce.Reason, "no house number")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadCluster_NotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`FROM itp.clusters WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LoadCluster(context.Background(), 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster 99 not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateRun(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO itp.runs`).
		WithArgs(pgxmock.AnyArg(), "postgres", "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "postgres")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`UPDATE itp.runs SET status`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "missing", model.RunStatusComplete, model.RunStats{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT id, source, status, stats, created_at, updated_at FROM itp.runs WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveResult(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{db.TempTable("itp.ranges")}, rangeColumns).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "itp"."addresses"`).
		WithArgs("run-1", int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"itp", "addresses"}, addressColumns).WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, s.SaveResult(context.Background(), "run-1", testResult(42)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveResult_UpsertError(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectBegin().WillReturnError(errors.New("conn reset"))

	err := s.SaveResult(context.Background(), "run-1", testResult(42))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save ranges of cluster 42")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveFailure(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO itp.failures`).
		WithArgs("run-1", int64(3), "network has no lines").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveFailure(context.Background(), model.ClusterFailure{RunID: "run-1", ClusterID: 3, Reason: "network has no lines"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Failures(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT run_id, cluster_id, reason FROM itp.failures WHERE run_id = \$1 ORDER BY cluster_id`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"run_id", "cluster_id", "reason"}).
			AddRow("run-1", int64(3), "network has no lines").
			AddRow("run-1", int64(9), "context deadline exceeded"))

	failures, err := s.Failures(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, int64(3), failures[0].ClusterID)
	assert.Equal(t, "context deadline exceeded", failures[1].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRangeRows_SequencePerLine(t *testing.T) {
	res := testResult(1)
	res.Features = append(res.Features, res.Features[0])
	res.Features[2].Segment = 1

	rows, err := rangeRows("r", res)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 0, rows[0][3])
	assert.Equal(t, 1, rows[1][3])
	assert.Equal(t, 1, rows[2][2])
	assert.Equal(t, 0, rows[2][3])
}
