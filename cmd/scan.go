package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/database"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/feed"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/logger"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/progress"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/ratelimit"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/recorder"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/report"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/scanner"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/telemetry"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/shutdown"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

// exitInterrupted is the conventional status for a run stopped by SIGINT.
const exitInterrupted = 130

var scanCmd = &cobra.Command{
	Use:   "scan [PREFIX|TITLEID]",
	Short: "Probe every title ID behind one prefix, or behind every prefix with --all",
	Long: `Probe TMDB for every title ID behind a prefix.

With --all, every prefix of every enabled category is swept, one prefix at a
time, in category order. Otherwise the argument is a 4-character prefix
(SCUS) or a 9-character title ID (SCUS97399) whose prefix is swept.

Examples:
  tmdbscan scan --all --concurrency 50
  tmdbscan scan CUSA --progress
  tmdbscan scan BCES00001 --db --report run.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	defaults := config.Default()

	scanCmd.Flags().Bool("all", false, "sweep every prefix of every enabled category")
	scanCmd.Flags().StringSlice("categories", nil, "categories to enable (physical-legacy, physical-disc3, physical-disc3-special, digital-disc3, disc4)")
	scanCmd.Flags().IntP("concurrency", "c", defaults.Scan.Concurrency, "maximum probes in flight")
	scanCmd.Flags().Bool("progress", true, "render batch progress")
	scanCmd.Flags().String("report", "", "write a YAML run report to this path")
	viper.BindPFlag("scan.categories", scanCmd.Flags().Lookup("categories"))
	viper.BindPFlag("scan.concurrency", scanCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("scan.progress", scanCmd.Flags().Lookup("progress"))
	viper.BindPFlag("scan.report_path", scanCmd.Flags().Lookup("report"))
}

func runScan(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	switch {
	case all && len(args) > 0:
		return fmt.Errorf("--all does not take a prefix, got %q", args[0])
	case !all && len(args) == 0:
		return fmt.Errorf("a prefix or title ID is required (or use --all)")
	}

	categories := cfg.Categories()

	var target titleid.Target
	if !all {
		var err error
		target, err = titleid.ParseTarget(args[0], categories...)
		if err != nil {
			return fmt.Errorf("invalid target: %w", err)
		}
	}

	runID := uuid.New().String()
	runLog := log.WithRunID(runID)

	ctx, cancel := context.WithCancel(logger.WithLogger(cmd.Context(), runLog))
	defer cancel()

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(cfg.Storage.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	key, err := tmdb.ParseKey(cfg.TMDB.HMACKey)
	if err != nil {
		return fmt.Errorf("invalid hmac key: %w", err)
	}
	resolver := tmdb.NewResolver(tmdb.NewDeriver(key), tmdb.NewBuilder(cfg.TMDB.Domain))

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	})
	client := httpclient.NewClient(httpclient.FromConfig(cfg.HTTP))
	prober := httpclient.NewProber(client, limiter, cfg.HTTP.UserAgent, cfg.HTTP.MaxBodyBytes)

	h := shutdown.NewHandler(runLog)

	discoveryLog, err := recorder.OpenDiscoveryLog(fs, filepath.Join(cfg.Storage.OutputDir, cfg.Storage.DiscoveryLog))
	if err != nil {
		return err
	}

	recOpts := []recorder.Option{recorder.WithRunID(runID)}

	var store *database.Store
	if cfg.Database.Enabled {
		store, err = database.NewStore(ctx, cfg.Database, runLog)
		if err != nil {
			_ = discoveryLog.Close()
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		h.Register("database", store.Close)
		recOpts = append(recOpts, recorder.WithIndex(store))
	}

	if cfg.Redis.Addr != "" {
		rf, err := feed.NewRedisFeed(ctx, cfg.Redis)
		if err != nil {
			// The feed is best-effort; the scan proceeds without it.
			runLog.Warnw("Discovery feed unavailable, continuing without it",
				"addr", cfg.Redis.Addr,
				"error", err,
			)
		} else {
			h.Register("feed", rf.Close)
			recOpts = append(recOpts, recorder.WithFeed(rf))
		}
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		runLog.Warnw("Telemetry disabled", "error", err)
		tel, _ = telemetry.New(ctx, config.Default().Telemetry)
	}
	h.Register("telemetry", tel.Close)

	rec := recorder.New(recorder.NewPayloadStore(fs, cfg.Storage.OutputDir), discoveryLog, runLog, recOpts...)
	h.Register("recorder", rec.Close)

	budget, err := scanner.NewBudget(cfg.Scan.Concurrency)
	if err != nil {
		_ = h.Shutdown()
		return err
	}

	totalBatches := 1
	if all {
		totalBatches = 0
		for _, c := range categories {
			totalBatches += len(titleid.EnumerateAll(c))
		}
	}
	tracker := progress.New(cmd.OutOrStdout(), cfg.Scan.Progress, totalBatches)

	sched := scanner.New(resolver, prober, rec, budget, runLog,
		scanner.WithObserver(tel),
		scanner.WithObserver(tracker),
		scanner.WithRunID(runID),
	)

	// A signal flushes every sink and ends the process; in-flight probes
	// are abandoned.
	go func() {
		if sig := h.WaitForSignal(ctx); sig != nil {
			color.Yellow("\n  Received %s - discoveries flushed to %s\n", sig, discoveryLog.Path())
			os.Exit(exitInterrupted)
		}
	}()

	mode := "single"
	if all {
		mode = "all"
	}
	runLog.Infow("Starting scan",
		"mode", mode,
		"domain", cfg.TMDB.Domain,
		"concurrency", budget.Size(),
		"batches", totalBatches,
		"output_dir", cfg.Storage.OutputDir,
	)

	var run scanner.RunStats
	if all {
		run = sched.ScanAll(ctx, categories)
	} else {
		run = sched.ScanTarget(ctx, target)
	}
	tracker.Complete(run)
	runLog.LogDuration(ctx, "scan", run.StartedAt,
		"batches", len(run.Batches),
		"peak_in_flight", budget.Peak(),
	)
	if limiter.Enabled() {
		stats := limiter.GetStats()
		runLog.Infow("Request pacing",
			"requests_per_second", stats.RequestsPerSecond,
			"waits", stats.Waits,
		)
	}

	if err := finishRun(ctx, fs, run, mode, budget, categories, rec, store); err != nil {
		runLog.Errorw("Failed to persist run summary", "error", err)
	}

	printScanSummary(run, rec.Stats(), discoveryLog.Path())

	if err := h.ShutdownWithTimeout(30 * time.Second); err != nil {
		return fmt.Errorf("failed to close sinks: %w", err)
	}
	return nil
}

// finishRun stores the run row and writes the YAML report concurrently.
func finishRun(ctx context.Context, fs afero.Fs, run scanner.RunStats, mode string, budget *scanner.Budget, categories []titleid.Category, rec *recorder.Recorder, store *database.Store) error {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.String()
	}

	var g errgroup.Group
	if store != nil {
		g.Go(func() error {
			totals := run.Totals()
			return store.SaveRun(ctx, database.Run{
				RunID:           run.RunID,
				Mode:            mode,
				StartedAt:       run.StartedAt,
				FinishedAt:      run.StartedAt.Add(run.Duration),
				Batches:         len(run.Batches),
				Attempted:       totals.Attempted,
				Found:           totals.Found,
				NotFound:        totals.NotFound,
				TransportErrors: totals.Errors,
			})
		})
	}
	if cfg.Scan.ReportPath != "" {
		g.Go(func() error {
			r := report.Build(run, report.Meta{
				Mode:         mode,
				Domain:       cfg.TMDB.Domain,
				Concurrency:  budget.Size(),
				PeakInFlight: budget.Peak(),
				Categories:   names,
			}, rec.Stats())
			return report.Write(fs, cfg.Scan.ReportPath, r)
		})
	}
	return g.Wait()
}

func printScanSummary(run scanner.RunStats, stats recorder.Stats, logPath string) {
	totals := run.Totals()

	color.Cyan("\n Scan Summary\n")
	fmt.Printf("═══════════════════════════════════════\n\n")
	fmt.Printf("Run ID:      %s\n", run.RunID)
	fmt.Printf("Prefixes:    %d\n", len(run.Batches))
	fmt.Printf("Probes:      %d\n", totals.Attempted)
	fmt.Printf("Duration:    %s\n", run.Duration.Round(time.Millisecond))

	if totals.Found > 0 {
		color.Green("Found:       %d (see %s)\n", totals.Found, logPath)
	} else {
		fmt.Printf("Found:       0\n")
	}
	if totals.Errors > 0 {
		color.Yellow("Errors:      %d transport errors\n", totals.Errors)
	}
	if stats.StoreFailures+stats.LogFailures+stats.IndexFailures+stats.FeedFailures > 0 {
		color.Red("Sink errors: store=%d log=%d index=%d feed=%d\n",
			stats.StoreFailures, stats.LogFailures, stats.IndexFailures, stats.FeedFailures)
	}
	fmt.Println()
}
