package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report PATH",
	Short: "Summarise a run report written by scan --report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := report.Read(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}

		top, _ := cmd.Flags().GetInt("top")
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "Run %s (%s) against %s\n", r.RunID, r.Mode, r.Domain)
		fmt.Fprintf(out, "Started %s, took %s, concurrency %d (peak %d)\n",
			r.StartedAt.Format("2006-01-02 15:04:05 MST"), r.Duration, r.Concurrency, r.PeakInFlight)
		fmt.Fprintf(out, "Probes %d: %d found, %d not found, %d transport errors\n",
			r.Totals.Attempted, r.Totals.Found, r.Totals.NotFound, r.Totals.TransportErrors)
		fmt.Fprintf(out, "Recorded %d (%d empty), sink failures: store=%d log=%d index=%d feed=%d\n",
			r.Recording.Recorded, r.Recording.EmptyPayloads, r.Recording.StoreFailures,
			r.Recording.LogFailures, r.Recording.IndexFailures, r.Recording.FeedFailures)

		shown := 0
		for _, b := range r.Batches {
			if b.Found == 0 && b.TransportErrors == 0 {
				continue
			}
			if top > 0 && shown == top {
				break
			}
			fmt.Fprintf(out, "  %-16s %s  found %d  errors %d  (%s)\n", b.Category, b.Prefix, b.Found, b.TransportErrors, b.Duration)
			shown++
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Int("top", 20, "maximum prefixes with hits or errors to list (0 for all)")
}
