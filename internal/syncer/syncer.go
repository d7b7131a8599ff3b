// Package syncer keeps a local dataset in step with the remote notice
// feed: each pass ingests the window since the last successful run.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tendertrack/tendertrack/internal/model"
	"github.com/tendertrack/tendertrack/internal/ted"
)

const windowLayout = "20060102"

// Runner executes one ingestion over a query window. Satisfied by the
// scroll controller.
type Runner interface {
	Run(ctx context.Context, query string) ([]model.Notice, error)
}

// Syncer runs windowed ingestion passes. The window start comes from the
// last-sync marker file, falling back to a fixed lookback when no marker
// exists; the marker only advances after a pass succeeds.
type Syncer struct {
	runner       Runner
	markerPath   string
	lookbackDays int
	filters      string
	logger       *slog.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// New wires a syncer. lookbackDays defaults to 7.
func New(runner Runner, markerPath string, lookbackDays int, filters string, logger *slog.Logger) *Syncer {
	if lookbackDays <= 0 {
		lookbackDays = 7
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		runner:       runner,
		markerPath:   markerPath,
		lookbackDays: lookbackDays,
		filters:      filters,
		logger:       logger,
		now:          time.Now,
	}
}

// SyncOnce runs a single pass: build the window query, ingest it, and
// advance the marker on success.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	today := s.now().UTC()
	start := s.windowStart(today)
	query := ted.BuildQuery(start, today, s.filters)

	s.logger.Info("sync pass starting",
		"from", start.Format(windowLayout),
		"to", today.Format(windowLayout),
	)

	records, err := s.runner.Run(ctx, query)
	if err != nil {
		return fmt.Errorf("sync pass: %w", err)
	}

	if err := s.saveMarker(today); err != nil {
		return err
	}
	s.logger.Info("sync pass complete", "records", len(records))
	return nil
}

// Start runs an immediate pass and then one per interval until the
// context is cancelled. Pass failures are logged, not fatal; the next
// tick retries with the unadvanced window.
func (s *Syncer) Start(ctx context.Context, interval time.Duration) error {
	if err := s.SyncOnce(ctx); err != nil {
		s.logger.Error("sync pass failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				s.logger.Error("sync pass failed", "error", err)
			}
		}
	}
}

// windowStart reads the last-sync marker, falling back to the lookback
// when the marker is absent or unparseable.
func (s *Syncer) windowStart(today time.Time) time.Time {
	data, err := os.ReadFile(s.markerPath)
	if err == nil {
		if t, perr := time.Parse(windowLayout, strings.TrimSpace(string(data))); perr == nil {
			return t
		}
		s.logger.Warn("last-sync marker unreadable, using lookback", "path", s.markerPath)
	}
	return today.AddDate(0, 0, -s.lookbackDays)
}

func (s *Syncer) saveMarker(today time.Time) error {
	if err := os.WriteFile(s.markerPath, []byte(today.Format(windowLayout)), 0644); err != nil {
		return fmt.Errorf("save last-sync marker: %w", err)
	}
	return nil
}
