package cli

import (
	"fmt"
	"log/slog"

	"github.com/tendertrack/tendertrack/internal/cache"
	"github.com/tendertrack/tendertrack/internal/model"
	"github.com/tendertrack/tendertrack/internal/preprocess"
	"github.com/tendertrack/tendertrack/internal/scroll"
	"github.com/tendertrack/tendertrack/internal/storage"
	"github.com/tendertrack/tendertrack/internal/ted"
	"github.com/tendertrack/tendertrack/internal/transport"
)

// buildSearchClient assembles the rate-limited, retrying search client.
func buildSearchClient(cfg *model.Config, logger *slog.Logger) *ted.Client {
	limiter := transport.NewRateLimiter(cfg.API.RateLimitPerMinute)
	tr := transport.New(cfg.API.Timeout, limiter, cfg.API.MaxRetries, cfg.API.BackoffFactor, logger)

	var responses cache.Cache
	if cfg.Cache.Enabled {
		responses = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}
	return ted.NewClient(cfg.API.BaseURL, tr, responses, logger)
}

// buildSinks creates the output sinks for the requested format. The
// returned closer releases database resources and is a no-op for file
// outputs.
func buildSinks(cfg *model.Config, format, outputFile, table string, logger *slog.Logger) ([]scroll.Sink, func() error, error) {
	noop := func() error { return nil }

	switch format {
	case "csv":
		return []scroll.Sink{scroll.NewCSVSink(outputFile, cfg.API.Fields, logger)}, noop, nil
	case "json":
		return []scroll.Sink{scroll.NewJSONSink(outputFile, logger)}, noop, nil
	case "db":
		if cfg.Database.URL == "" {
			return nil, nil, fmt.Errorf("database output requires a connection URL (TENDERTRACK_DATABASE_URL or database.url)")
		}
		store, err := storage.Open(cfg.Database.URL, cfg.Database.BatchSize, logger)
		if err != nil {
			return nil, nil, err
		}
		sink := scroll.NewDBSink(preprocess.NewShaper(logger), store, table, logger)
		return []scroll.Sink{sink}, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported output format %q (csv, json, db)", format)
	}
}

// resolveOutput picks the output format and path: explicit flags win,
// then the configured ingestion defaults, then a filename derived from
// the format.
func resolveOutput(flagFormat, flagFile string, cfg *model.Config) (format, file string) {
	format = flagFormat
	if format == "" {
		format = cfg.Ingest.OutputFormat
	}
	if format == "" {
		format = "csv"
	}

	file = flagFile
	if file == "" {
		file = cfg.Ingest.OutputFile
	}
	if file == "" {
		file = defaultOutputFile(format)
	}
	return format, file
}

// defaultOutputFile picks a filename matching the format when neither
// the flag nor the config names one.
func defaultOutputFile(format string) string {
	if format == "json" {
		return "notices.json"
	}
	return "notices.csv"
}
