package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/itp/internal/config"
	"github.com/sells-group/itp/internal/model"
	"github.com/sells-group/itp/internal/output"
	"github.com/sells-group/itp/internal/store"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestInitSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "itp.db")
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "sqlite", SQLitePath: path}})

	sink, err := initSink(context.Background(), nil)
	require.NoError(t, err)
	defer sink.Close() //nolint:errcheck
	assert.IsType(t, &store.SQLite{}, sink)
}

func TestInitSink_Errors(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "postgres"}})
	_, err := initSink(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url is required")

	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "mysql"}})
	_, err = initSink(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitSink_ReusesSource(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "postgres"}})
	src := &store.Postgres{}

	sink, err := initSink(context.Background(), src)
	require.NoError(t, err)
	assert.Same(t, src, sink)
}

func TestOpenOutput(t *testing.T) {
	out, err := openOutput("")
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = openOutput("-")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.NoError(t, out.Close())

	path := filepath.Join(t.TempDir(), "ranges.geojsonl")
	out, err = openOutput(path)
	require.NoError(t, err)
	_, err = out.Write([]byte("{}\n"))
	require.NoError(t, err)
	require.NoError(t, out.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))

	_, err = openOutput(filepath.Join(t.TempDir(), "missing", "ranges.geojsonl"))
	assert.Error(t, err)
}

func newSQLiteSink(t *testing.T) *store.SQLite {
	t.Helper()
	sink, err := store.NewSQLite(filepath.Join(t.TempDir(), "itp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() }) //nolint:errcheck
	require.NoError(t, sink.Migrate(context.Background()))
	return sink
}

func TestResultEmitter_PersistsAndStreams(t *testing.T) {
	ctx := context.Background()
	sink := newSQLiteSink(t)
	run, err := sink.CreateRun(ctx, "test")
	require.NoError(t, err)

	res, err := testEngine(t).Process(goodCluster(1))
	require.NoError(t, err)

	var buf bytes.Buffer
	w := output.NewWriter(&buf, output.Options{})
	emit := resultEmitter(sink, run.ID, w)

	require.NoError(t, emit(ctx, outcome{ClusterID: 1, Result: res}))
	require.NoError(t, emit(ctx, outcome{ClusterID: 2, Err: model.NewClusterError(2, "network has no lines")}))

	assert.Equal(t, 1, w.Count())
	assert.Contains(t, buf.String(), `"cluster_id":1`)

	failures, err := sink.Failures(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, int64(2), failures[0].ClusterID)
	assert.Equal(t, "cluster 2: network has no lines", failures[0].Reason)
}

func TestResultEmitter_NoSink(t *testing.T) {
	res, err := testEngine(t).Process(goodCluster(5))
	require.NoError(t, err)

	var buf bytes.Buffer
	w := output.NewWriter(&buf, output.Options{})
	emit := resultEmitter(nil, "", w)

	require.NoError(t, emit(context.Background(), outcome{ClusterID: 4, Err: errors.New("boom")}))
	require.NoError(t, emit(context.Background(), outcome{ClusterID: 5, Result: res}))
	assert.Equal(t, 1, w.Count())
}

func TestFinishRun(t *testing.T) {
	sink := newSQLiteSink(t)
	ctx, cancel := context.WithCancel(context.Background())

	ok, err := sink.CreateRun(ctx, "test")
	require.NoError(t, err)
	failed, err := sink.CreateRun(ctx, "test")
	require.NoError(t, err)
	cancel()

	stats := model.RunStats{Clusters: 2, Succeeded: 1, Failed: 1, Features: 3}
	require.NoError(t, finishRun(ctx, sink, ok.ID, stats, nil))
	require.NoError(t, finishRun(ctx, sink, failed.ID, stats, context.Canceled))

	got, err := sink.GetRun(context.Background(), ok.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, stats, got.Stats)

	got, err = sink.GetRun(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
}
