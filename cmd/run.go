package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/itp/internal/interpolate"
	"github.com/sells-group/itp/internal/model"
	"github.com/sells-group/itp/internal/output"
	"github.com/sells-group/itp/internal/resilience"
	"github.com/sells-group/itp/internal/store"
)

var (
	runFrom      int64
	runTo        int64
	runLimit     int
	runOut       string
	runAddresses bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Interpolate clusters stored in PostGIS",
	Long:  "Loads clusters from itp.clusters, computes interpolation ranges, and saves them to the configured result store under a new run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("run"); err != nil {
			return err
		}
		opts, err := cfg.Engine.Options()
		if err != nil {
			return err
		}
		engine, err := interpolate.New(opts)
		if err != nil {
			return err
		}

		src, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool())
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck

		sink, err := initSink(ctx, src)
		if err != nil {
			return err
		}
		if sink != store.Sink(src) {
			defer sink.Close() //nolint:errcheck
		}
		if err := sink.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		ids, err := src.ClusterIDs(ctx, runFrom, runTo)
		if err != nil {
			return err
		}
		if runLimit > 0 && len(ids) > runLimit {
			ids = ids[:runLimit]
		}

		out, err := openOutput(runOut)
		if err != nil {
			return err
		}
		var w *output.Writer
		if out != nil {
			defer out.Close() //nolint:errcheck
			w = output.NewWriter(out, output.Options{Addresses: runAddresses, Debug: cfg.Engine.Debug})
		}

		run, err := sink.CreateRun(ctx, "postgres")
		if err != nil {
			return err
		}
		log := zap.L().With(zap.String("component", "cmd.run"), zap.String("run_id", run.ID))
		log.Info("run started", zap.Int("clusters", len(ids)))

		stats, runErr := processClusters(ctx, ids, batchOptions{
			Concurrency: cfg.Batch.Concurrency,
			Timeout:     cfg.Batch.ClusterTimeout(),
			Limiter:     newLimiter(cfg.Batch.MaxRate, cfg.Batch.Concurrency),
		}, engine, retryingLoader(src.LoadCluster, cfg.Batch.LoadAttempts), resultEmitter(sink, run.ID, w))

		if err := finishRun(ctx, sink, run.ID, stats, runErr); err != nil {
			log.Error("failed to record run status", zap.Error(err))
		}
		if runErr != nil {
			return runErr
		}

		log.Info("run complete",
			zap.Int("succeeded", stats.Succeeded),
			zap.Int("failed", stats.Failed),
			zap.Int("features", stats.Features),
		)
		return nil
	},
}

// retryingLoader retries transient database failures of load.
func retryingLoader(load loadFunc, attempts int) loadFunc {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = attempts
	return func(ctx context.Context, id int64) (*model.Cluster, error) {
		r := retry
		r.OnRetry = resilience.RetryLogger("load cluster", zap.Int64("cluster_id", id))
		return resilience.Do(ctx, r, func(ctx context.Context) (*model.Cluster, error) {
			return load(ctx, id)
		})
	}
}

func init() {
	runCmd.Flags().Int64Var(&runFrom, "from", 0, "lowest cluster ID to process")
	runCmd.Flags().Int64Var(&runTo, "to", 0, "highest cluster ID to process (0 = no upper bound)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max number of clusters to process (0 = all)")
	runCmd.Flags().StringVar(&runOut, "out", "", "also write GeoJSON features to this file (- for stdout)")
	runCmd.Flags().BoolVar(&runAddresses, "addresses", false, "include address points in GeoJSON output")
	rootCmd.AddCommand(runCmd)
}
