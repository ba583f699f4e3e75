package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/database"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/feed"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/recorder"
)

var discoveriesCmd = &cobra.Command{
	Use:   "discoveries",
	Short: "List found titles from the discovery index or the live feed",
	Long: `List discovered titles.

By default rows come from the discovery index (--db-driver/--db-dsn). With
--feed the most recent events are read from the Redis feed instead, and with
--follow new events are streamed until interrupted.

Examples:
  tmdbscan discoveries --limit 20
  tmdbscan discoveries --run 5f0c... --category disc4
  tmdbscan discoveries --feed --redis-addr localhost:6379 --follow`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		category, _ := cmd.Flags().GetString("category")
		titleID, _ := cmd.Flags().GetString("title")
		limit, _ := cmd.Flags().GetInt("limit")
		useFeed, _ := cmd.Flags().GetBool("feed")
		follow, _ := cmd.Flags().GetBool("follow")

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if useFeed || follow {
			return listFromFeed(ctx, out, limit, follow)
		}
		return listFromIndex(ctx, out, database.Query{
			RunID:    runID,
			Category: category,
			TitleID:  titleID,
			Limit:    limit,
		})
	},
}

func init() {
	rootCmd.AddCommand(discoveriesCmd)

	discoveriesCmd.Flags().String("run", "", "only discoveries from this run")
	discoveriesCmd.Flags().String("category", "", "only discoveries in this category")
	discoveriesCmd.Flags().String("title", "", "only this title ID")
	discoveriesCmd.Flags().Int("limit", 50, "maximum rows to print (0 for all)")
	discoveriesCmd.Flags().Bool("feed", false, "read from the Redis feed instead of the index")
	discoveriesCmd.Flags().Bool("follow", false, "stream new discoveries from the Redis feed")
}

func listFromIndex(ctx context.Context, out io.Writer, q database.Query) error {
	store, err := database.NewStore(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to open discovery index: %w", err)
	}
	defer store.Close()

	if q.RunID != "" {
		if run, err := store.GetRun(ctx, q.RunID); err == nil {
			fmt.Fprintf(out, "Run %s (%s): %d prefixes, %d probes, %d found, %d errors, finished %s\n\n",
				run.RunID, run.Mode, run.Batches, run.Attempted, run.Found, run.TransportErrors,
				run.FinishedAt.Format("2006-01-02 15:04:05 MST"))
		} else {
			log.Debugw("Run summary not found", "run_id", q.RunID, "error", err)
		}
	}

	rows, err := store.ListDiscoveries(ctx, q)
	if err != nil {
		return err
	}
	total, err := store.CountDiscoveries(ctx, q.RunID)
	if err != nil {
		return err
	}

	printDiscoveries(out, rows)
	fmt.Fprintf(out, "\n%d shown, %d indexed\n", len(rows), total)
	return nil
}

func listFromFeed(ctx context.Context, out io.Writer, limit int, follow bool) error {
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("--redis-addr is required to read the discovery feed")
	}

	rf, err := feed.NewRedisFeed(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rf.Close()

	if !follow {
		rows, err := rf.Recent(ctx, limit)
		if err != nil {
			return err
		}
		printDiscoveries(out, rows)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := rf.Subscribe(ctx)
	if err != nil {
		return err
	}
	color.Cyan("Following %s (Ctrl+C to stop)\n", rf.Key())
	for d := range events {
		printDiscovery(out, d)
	}
	return nil
}

func printDiscoveries(out io.Writer, rows []recorder.Discovery) {
	fmt.Fprintf(out, "%-9s %-16s %-8s %-8s %-20s %s\n", "TITLE", "CATEGORY", "BYTES", "HASH", "FOUND", "NAME")
	fmt.Fprintf(out, "%-9s %-16s %-8s %-8s %-20s %s\n",
		strings.Repeat("-", 9), strings.Repeat("-", 16), strings.Repeat("-", 8),
		strings.Repeat("-", 8), strings.Repeat("-", 20), strings.Repeat("-", 20))
	for _, d := range rows {
		printDiscovery(out, d)
	}
}

func printDiscovery(out io.Writer, d recorder.Discovery) {
	name := d.Name
	if d.Empty {
		name = "(empty payload)"
	}
	fmt.Fprintf(out, "%-9s %-16s %-8d %-8s %-20s %s\n",
		d.TitleID,
		d.Category,
		d.Size,
		d.Fingerprint,
		d.DiscoveredAt.Format("2006-01-02 15:04:05"),
		name,
	)
}
