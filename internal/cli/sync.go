package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendertrack/tendertrack/internal/scroll"
	"github.com/tendertrack/tendertrack/internal/syncer"
)

var (
	syncInterval   time.Duration
	syncLookback   int
	syncFilters    string
	syncOutput     string
	syncOutputFile string
	syncDBTable    string
	syncOnce       bool
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Keep the local dataset in sync with the notice feed",
	Long: `Sync runs periodic ingestion passes. Each pass covers the window from
the last successful pass (or a fixed lookback on first run) up to today,
and the window marker only advances when a pass completes.

Example:
  tendertrack sync --interval 24h --output db
  tendertrack sync --once --lookback-days 30`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().DurationVar(&syncInterval, "interval", 0, "time between passes (default from config)")
	syncCmd.Flags().IntVar(&syncLookback, "lookback-days", 0, "window length when no previous sync exists (default from config)")
	syncCmd.Flags().StringVar(&syncFilters, "filters", "", "extra expert-query clauses ANDed onto the window")
	syncCmd.Flags().StringVar(&syncOutput, "output", "", "output format: csv, json, db (default from config)")
	syncCmd.Flags().StringVar(&syncOutputFile, "output-file", "", "output path (default from config, or notices.csv/notices.json)")
	syncCmd.Flags().StringVar(&syncDBTable, "db-table", "", "target table for db output (default from config)")
	syncCmd.Flags().BoolVar(&syncOnce, "once", false, "run a single pass and exit")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	interval := syncInterval
	if interval <= 0 {
		interval = cfg.Sync.Interval
	}
	lookback := syncLookback
	if lookback <= 0 {
		lookback = cfg.Sync.LookbackDays
	}
	format, outputFile := resolveOutput(syncOutput, syncOutputFile, cfg)
	table := syncDBTable
	if table == "" {
		table = cfg.Database.Table
	}

	sinks, closeStore, err := buildSinks(cfg, format, outputFile, table, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	client := buildSearchClient(cfg, logger)
	controller := scroll.NewController(client, scroll.NewFileCheckpoint(cfg.Ingest.CheckpointPath), sinks, scroll.Options{
		Limit:                cfg.API.PageLimit,
		DuplicateStreakLimit: cfg.Ingest.DuplicateStreakLimit,
		Pause:                cfg.Ingest.Pause,
	}, logger)

	s := syncer.New(controller, cfg.Sync.LastSyncPath, lookback, syncFilters, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if syncOnce {
		return s.SyncOnce(ctx)
	}
	return s.Start(ctx, interval)
}
