package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendertrack/tendertrack/internal/model"
	"github.com/tendertrack/tendertrack/internal/scroll"
	"github.com/tendertrack/tendertrack/internal/ted"
)

const flagDateLayout = "20060102"

var (
	fetchStartDate  string
	fetchEndDate    string
	fetchMode       string
	fetchFilters    string
	fetchOutput     string
	fetchOutputFile string
	fetchDBTable    string
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch procurement notices for a date range",
	Long: `Fetch retrieves notices published inside [start-date, end-date] and
writes them to CSV, JSON, or PostgreSQL.

Modes:
  pagination   one page of results
  scroll       one iteration-mode batch
  full-scroll  the complete result set, checkpointed and resumable

Example:
  tendertrack fetch --start-date 20240101 --end-date 20240131
  tendertrack fetch --start-date 20240101 --end-date 20240131 --mode full-scroll --output db
  tendertrack fetch --start-date 20240101 --end-date 20240131 --filters 'buyer-country="DEU"'`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVar(&fetchStartDate, "start-date", "", "window start, YYYYMMDD (required)")
	fetchCmd.Flags().StringVar(&fetchEndDate, "end-date", "", "window end, YYYYMMDD (required)")
	fetchCmd.Flags().StringVar(&fetchMode, "mode", "pagination", "retrieval mode (pagination, scroll, full-scroll)")
	fetchCmd.Flags().StringVar(&fetchFilters, "filters", "", "extra expert-query clauses ANDed onto the date window")
	fetchCmd.Flags().StringVar(&fetchOutput, "output", "", "output format: csv, json, db (default from config)")
	fetchCmd.Flags().StringVar(&fetchOutputFile, "output-file", "", "output path (default from config, or notices.csv/notices.json)")
	fetchCmd.Flags().StringVar(&fetchDBTable, "db-table", "", "target table for db output (default from config)")

	_ = fetchCmd.MarkFlagRequired("start-date")
	_ = fetchCmd.MarkFlagRequired("end-date")
}

func runFetch(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(flagDateLayout, fetchStartDate)
	if err != nil {
		return fmt.Errorf("invalid --start-date %q: expected YYYYMMDD", fetchStartDate)
	}
	end, err := time.Parse(flagDateLayout, fetchEndDate)
	if err != nil {
		return fmt.Errorf("invalid --end-date %q: expected YYYYMMDD", fetchEndDate)
	}
	if end.Before(start) {
		return fmt.Errorf("--end-date precedes --start-date")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	format, outputFile := resolveOutput(fetchOutput, fetchOutputFile, cfg)
	table := fetchDBTable
	if table == "" {
		table = cfg.Database.Table
	}

	sinks, closeStore, err := buildSinks(cfg, format, outputFile, table, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	client := buildSearchClient(cfg, logger)
	query := ted.BuildQuery(start, end, fetchFilters)
	ctx := cmd.Context()

	switch fetchMode {
	case "full-scroll":
		controller := scroll.NewController(client, scroll.NewFileCheckpoint(cfg.Ingest.CheckpointPath), sinks, scroll.Options{
			Limit:                cfg.API.PageLimit,
			DuplicateStreakLimit: cfg.Ingest.DuplicateStreakLimit,
			Pause:                cfg.Ingest.Pause,
		}, logger)
		records, err := controller.Run(ctx, query)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Fetched %d notices\n", len(records))
	case "pagination", "scroll":
		mode := ted.ModePageNumber
		if fetchMode == "scroll" {
			mode = ted.ModeIteration
		}
		resp, err := client.Search(ctx, ted.SearchRequest{
			Query:          query,
			Limit:          cfg.API.PageLimit,
			Scope:          cfg.API.Scope,
			Fields:         cfg.API.Fields,
			PaginationMode: mode,
		})
		if err != nil {
			return err
		}
		if err := writeBatch(ctx, sinks, resp.Notices); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Fetched %d notices\n", len(resp.Notices))
	default:
		return fmt.Errorf("unsupported mode %q (pagination, scroll, full-scroll)", fetchMode)
	}

	if format != "db" {
		fmt.Fprintf(os.Stderr, "Saved output to %s\n", outputFile)
	}
	return nil
}

// writeBatch pushes a single batch through the full sink lifecycle.
func writeBatch(ctx context.Context, sinks []scroll.Sink, batch []model.Notice) error {
	for _, s := range sinks {
		if err := s.Reset(); err != nil {
			return err
		}
		if err := s.Flush(ctx, batch); err != nil {
			return err
		}
		if err := s.Close(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
