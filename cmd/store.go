package main

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/itp/internal/model"
	"github.com/sells-group/itp/internal/output"
	"github.com/sells-group/itp/internal/store"
)

// initSink opens the result sink selected by store.driver. An open
// Postgres source is reused as the sink instead of opening a second pool.
func initSink(ctx context.Context, src *store.Postgres) (store.Sink, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		if src != nil {
			return src, nil
		}
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver (ITP_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool())
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openOutput opens the GeoJSON destination: "" for none, "-" for stdout.
func openOutput(path string) (io.WriteCloser, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "create output %s", path)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// resultEmitter persists outcomes under runID when sink is set and streams
// successful results to w when it is set.
func resultEmitter(sink store.Sink, runID string, w *output.Writer) emitFunc {
	return func(ctx context.Context, o outcome) error {
		if o.Err != nil {
			if sink == nil {
				return nil
			}
			err := sink.SaveFailure(ctx, model.ClusterFailure{RunID: runID, ClusterID: o.ClusterID, Reason: o.Err.Error()})
			return eris.Wrapf(err, "record failure of cluster %d", o.ClusterID)
		}
		if sink != nil {
			if err := sink.SaveResult(ctx, runID, o.Result); err != nil {
				return eris.Wrapf(err, "save cluster %d", o.ClusterID)
			}
		}
		if w != nil {
			if err := w.Write(o.Result); err != nil {
				return err
			}
		}
		return nil
	}
}

// finishRun records the final state of a run. It runs even when ctx has
// been cancelled.
func finishRun(ctx context.Context, sink store.Sink, runID string, stats model.RunStats, runErr error) error {
	status := model.RunStatusComplete
	if runErr != nil {
		status = model.RunStatusFailed
	}
	return sink.FinishRun(context.WithoutCancel(ctx), runID, status, stats)
}
