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
	"github.com/sells-group/itp/internal/shapefile"
	"github.com/sells-group/itp/internal/store"
)

var (
	shpOut       string
	shpAddresses bool
	shpSave      bool
)

var shpCmd = &cobra.Command{
	Use:   "shp <dir>",
	Short: "Interpolate clusters read from shapefiles",
	Long:  "Reads network.shp, addresses.shp and optional intersections.shp from dir and writes the ranges as newline-delimited GeoJSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("shp"); err != nil {
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

		clusters, err := shapefile.ReadClusters(args[0])
		if err != nil {
			return err
		}
		ids, load := clusterLoader(clusters)

		out, err := openOutput(shpOut)
		if err != nil {
			return err
		}
		var w *output.Writer
		if out != nil {
			defer out.Close() //nolint:errcheck
			w = output.NewWriter(out, output.Options{Addresses: shpAddresses, Debug: cfg.Engine.Debug})
		}

		var sink store.Sink
		runID := ""
		if shpSave {
			sink, err = initSink(ctx, nil)
			if err != nil {
				return err
			}
			defer sink.Close() //nolint:errcheck
			if err := sink.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			run, err := sink.CreateRun(ctx, "shapefile")
			if err != nil {
				return err
			}
			runID = run.ID
		}

		stats, runErr := processClusters(ctx, ids, batchOptions{
			Concurrency: cfg.Batch.Concurrency,
			Timeout:     cfg.Batch.ClusterTimeout(),
		}, engine, load, resultEmitter(sink, runID, w))

		if sink != nil {
			if err := finishRun(ctx, sink, runID, stats, runErr); err != nil {
				zap.L().Error("failed to record run status", zap.String("run_id", runID), zap.Error(err))
			}
		}
		if runErr != nil {
			return runErr
		}

		zap.L().Info("shapefile run complete",
			zap.String("dir", args[0]),
			zap.Int("clusters", stats.Clusters),
			zap.Int("failed", stats.Failed),
			zap.Int("features", stats.Features),
		)
		return nil
	},
}

// clusterLoader serves in-memory clusters through a loadFunc. IDs are
// returned in the order of clusters.
func clusterLoader(clusters []*model.Cluster) ([]int64, loadFunc) {
	ids := make([]int64, len(clusters))
	byID := make(map[int64]*model.Cluster, len(clusters))
	for i, c := range clusters {
		ids[i] = c.ID
		byID[c.ID] = c
	}
	return ids, func(_ context.Context, id int64) (*model.Cluster, error) {
		c, ok := byID[id]
		if !ok {
			return nil, eris.Errorf("cluster %d not found", id)
		}
		return c, nil
	}
}

func init() {
	shpCmd.Flags().StringVar(&shpOut, "out", "-", "GeoJSON output file (- for stdout)")
	shpCmd.Flags().BoolVar(&shpAddresses, "addresses", false, "include address points in GeoJSON output")
	shpCmd.Flags().BoolVar(&shpSave, "save", false, "also save results to the configured store")
	rootCmd.AddCommand(shpCmd)
}
