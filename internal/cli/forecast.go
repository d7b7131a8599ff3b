package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendertrack/tendertrack/internal/analyze"
	"github.com/tendertrack/tendertrack/internal/mlforecast"
	"github.com/tendertrack/tendertrack/internal/model"
	"github.com/tendertrack/tendertrack/internal/scroll"
	"github.com/tendertrack/tendertrack/internal/ted"
)

var (
	forecastInput      string
	forecastStartDate  string
	forecastEndDate    string
	forecastFilters    string
	forecastOutputFile string
	forecastServiceURL string
	forecastOrder      string
	forecastHorizon    int
)

// forecastCmd represents the forecast command
var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Analyze monthly notice volumes and forecast future activity",
	Long: `Forecast aggregates notices into a monthly count series, replaces
structural outliers with neighbor-based estimates, and asks the external
model-fitting service for held-out predictions plus a forward forecast.

Notices come either from a previously fetched CSV (--input) or from a
fresh ingestion over a date window (--start-date/--end-date).

The merged report carries, per month, the actual count, the imputed
count, the model's value, and an explanation for every replaced point.

Example:
  tendertrack forecast --input notices.csv
  tendertrack forecast --start-date 20230101 --end-date 20241231
  tendertrack forecast --start-date 20230101 --end-date 20241231 --filters 'buyer-country="DEU"'`,
	RunE: runForecast,
}

func init() {
	rootCmd.AddCommand(forecastCmd)

	forecastCmd.Flags().StringVar(&forecastInput, "input", "", "read notices from a previously fetched CSV instead of the API")
	forecastCmd.Flags().StringVar(&forecastStartDate, "start-date", "", "ingestion window start, YYYYMMDD")
	forecastCmd.Flags().StringVar(&forecastEndDate, "end-date", "", "ingestion window end, YYYYMMDD")
	forecastCmd.Flags().StringVar(&forecastFilters, "filters", "", "extra expert-query clauses ANDed onto the date window")
	forecastCmd.Flags().StringVar(&forecastOutputFile, "output-file", "forecast_report.json", "report path")
	forecastCmd.Flags().StringVar(&forecastServiceURL, "service-url", "", "model-fitting service URL (default from config)")
	forecastCmd.Flags().StringVar(&forecastOrder, "order", "", "model order as p,d,q (default from config)")
	forecastCmd.Flags().IntVar(&forecastHorizon, "horizon", 0, "months to forecast past the series end (default from config)")
}

func runForecast(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	serviceURL := forecastServiceURL
	if serviceURL == "" {
		serviceURL = cfg.Forecast.ServiceURL
	}
	if serviceURL == "" {
		return fmt.Errorf("forecasting requires a model service URL (--service-url or forecast.service_url)")
	}

	order := cfg.Forecast.Order
	if forecastOrder != "" {
		order, err = parseOrder(forecastOrder)
		if err != nil {
			return err
		}
	}
	horizon := forecastHorizon
	if horizon <= 0 {
		horizon = cfg.Forecast.Horizon
	}

	ctx := cmd.Context()

	var notices []model.Notice
	switch {
	case forecastInput != "":
		notices, err = readNoticesCSV(forecastInput)
		if err != nil {
			return err
		}
	case forecastStartDate != "" && forecastEndDate != "":
		start, err := time.Parse(flagDateLayout, forecastStartDate)
		if err != nil {
			return fmt.Errorf("invalid --start-date %q: expected YYYYMMDD", forecastStartDate)
		}
		end, err := time.Parse(flagDateLayout, forecastEndDate)
		if err != nil {
			return fmt.Errorf("invalid --end-date %q: expected YYYYMMDD", forecastEndDate)
		}

		client := buildSearchClient(cfg, logger)
		controller := scroll.NewController(client, scroll.NewFileCheckpoint(cfg.Ingest.CheckpointPath), nil, scroll.Options{
			Limit:                cfg.API.PageLimit,
			DuplicateStreakLimit: cfg.Ingest.DuplicateStreakLimit,
			Pause:                cfg.Ingest.Pause,
		}, logger)

		notices, err = controller.Run(ctx, ted.BuildQuery(start, end, forecastFilters))
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --input or both --start-date and --end-date are required")
	}

	series, err := analyze.MonthlyCounts(notices, "publication-date")
	if err != nil {
		return err
	}
	logger.Info("monthly series built", "notices", len(notices), "months", len(series))

	imputed, explanations, detections := analyze.ImputeOutliers(series, cfg.Forecast.RefractoryFraction, logger)
	if len(detections) > 0 {
		fmt.Fprintf(os.Stderr, "Replaced %d outlier months\n", len(explanations))
	}

	forecaster := mlforecast.NewClient(serviceURL, cfg.Forecast.APIKey, cfg.API.Timeout, logger)
	orchestrator := analyze.NewOrchestrator(forecaster, order, horizon, cfg.Forecast.MinPoints, logger)

	report, err := orchestrator.Run(ctx, series, imputed, explanations)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(forecastOutputFile, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Saved forecast report to %s\n", forecastOutputFile)
	return nil
}

// parseOrder reads a p,d,q triple.
func parseOrder(value string) ([3]int, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return [3]int{}, fmt.Errorf("invalid --order %q: expected p,d,q", value)
	}
	var order [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return [3]int{}, fmt.Errorf("invalid --order %q: expected p,d,q", value)
		}
		order[i] = n
	}
	return order, nil
}

// readNoticesCSV loads notices written by the CSV sink.
func readNoticesCSV(path string) ([]model.Notice, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var notices []model.Notice
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		n := make(model.Notice, len(header))
		for i, col := range header {
			if i < len(record) && record[i] != "" {
				n[col] = record[i]
			}
		}
		notices = append(notices, n)
	}
	return notices, nil
}
