package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/itp/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect interpolation runs",
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the status, counts and skipped clusters of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sink, err := initSink(ctx, nil)
		if err != nil {
			return err
		}
		defer sink.Close() //nolint:errcheck

		run, err := sink.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		failures, err := sink.Failures(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*model.Run
				Failures []model.ClusterFailure `json:"failures"`
			}{run, failures})
		}

		formatRun(os.Stdout, run, failures)
		return nil
	},
}

func init() {
	runsShowCmd.Flags().Bool("json", false, "print the run as JSON")

	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRun writes a run summary followed by its skipped clusters to w.
func formatRun(out io.Writer, run *model.Run, failures []model.ClusterFailure) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Source:\t%s\n", run.Source)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "Started:\t%s\n", run.CreatedAt.Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", run.UpdatedAt.Sub(run.CreatedAt).Round(time.Second))
	_, _ = fmt.Fprintf(w, "Clusters:\t%d\n", run.Stats.Clusters)
	_, _ = fmt.Fprintf(w, "  Succeeded:\t%d\n", run.Stats.Succeeded)
	_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", run.Stats.Failed)
	_, _ = fmt.Fprintf(w, "Features:\t%d\n", run.Stats.Features)
	_ = w.Flush()

	if len(failures) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CLUSTER\tREASON")
	_, _ = fmt.Fprintln(w, "-------\t------")
	for _, f := range failures {
		reason := f.Reason
		if len(reason) > 80 {
			reason = reason[:77] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\n", f.ClusterID, reason)
	}
	_ = w.Flush()
}
