// Package scroll drives iteration-mode ingestion against the notice
// search API with checkpointed crash recovery.
package scroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tendertrack/tendertrack/internal/model"
	"github.com/tendertrack/tendertrack/internal/ted"
)

// ErrInvalidToken reports a response whose continuation token was
// missing, not a string, or blank. The run stops abnormally and the
// checkpoint is left in place.
var ErrInvalidToken = errors.New("iteration token missing or invalid")

// StopReason records why a run ended.
type StopReason string

const (
	StopEmptyBatch      StopReason = "empty_batch"
	StopInvalidToken    StopReason = "invalid_token"
	StopDuplicateStreak StopReason = "duplicate_streak"
)

// Searcher is the slice of the API client the controller needs.
type Searcher interface {
	Search(ctx context.Context, req ted.SearchRequest) (*ted.SearchResponse, error)
}

// Options tune a controller.
type Options struct {
	// Limit is the per-batch record count requested from the service.
	Limit int
	// DuplicateStreakLimit is how many consecutive batches may repeat the
	// previous batch's ordered key list before the run is treated as
	// drained. Defaults to 2.
	DuplicateStreakLimit int
	// Pause is the courtesy delay between batches, separate from the
	// transport's rate limiting.
	Pause time.Duration
}

// Controller runs one scroll ingestion: repeated iteration-mode
// requests, key-based deduplication, per-batch sink flushes, and a
// checkpoint overwritten after every successfully processed batch.
type Controller struct {
	searcher   Searcher
	checkpoint CheckpointStore
	sinks      []Sink
	opts       Options
	logger     *slog.Logger

	sleep func(time.Duration)
}

// NewController wires a controller.
func NewController(searcher Searcher, checkpoint CheckpointStore, sinks []Sink, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DuplicateStreakLimit <= 0 {
		opts.DuplicateStreakLimit = 2
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	return &Controller{
		searcher:   searcher,
		checkpoint: checkpoint,
		sinks:      sinks,
		opts:       opts,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// Run executes a full scroll over the query and returns the accumulated,
// deduplicated record set. A graceful end (empty batch, duplicate
// streak) returns a nil error and clears the checkpoint; abnormal stops
// return an error and leave the checkpoint for resumption. A sink flush
// failure does not abort the run, but it freezes the checkpoint at the
// batch that failed and surfaces as an error at the end, so a rerun
// replays everything from that batch on.
func (c *Controller) Run(ctx context.Context, query string) ([]model.Notice, error) {
	log := c.logger.With("run_id", uuid.NewString())

	token, err := c.checkpoint.Load()
	if err != nil {
		log.Warn("checkpoint unreadable, starting fresh", "error", err)
		token = ""
	}
	if token == "" {
		// Fresh run: discard prior output so runs do not mix.
		for _, s := range c.sinks {
			if err := s.Reset(); err != nil {
				return nil, fmt.Errorf("reset sink: %w", err)
			}
		}
		log.Info("starting ingestion", "query", query)
	} else {
		log.Info("resuming ingestion from checkpoint", "query", query)
	}

	var (
		accumulated []model.Notice
		seen        = make(map[string]struct{})
		prevKeys    []string
		streak      int
		flushErr    error
	)

	for {
		resp, err := c.searcher.Search(ctx, ted.SearchRequest{
			Query:              query,
			Limit:              c.opts.Limit,
			PaginationMode:     ted.ModeIteration,
			IterationNextToken: token,
		})
		if err != nil {
			// Retries already exhausted inside the transport; the
			// checkpoint stays put so the next invocation resumes here.
			c.closeSinks(ctx, log, accumulated)
			return accumulated, fmt.Errorf("search: %w", err)
		}

		if len(resp.Notices) == 0 {
			log.Info("run complete", "reason", StopEmptyBatch, "records", len(accumulated))
			return accumulated, c.finish(ctx, log, accumulated, flushErr)
		}

		next, ok := resp.NextToken()
		if !ok {
			log.Error("run aborted", "reason", StopInvalidToken, "records", len(accumulated))
			c.closeSinks(ctx, log, accumulated)
			return accumulated, ErrInvalidToken
		}

		keys := model.Keys(resp.Notices)
		if prevKeys != nil && slices.Equal(keys, prevKeys) {
			streak++
			if streak >= c.opts.DuplicateStreakLimit {
				log.Warn("run complete", "reason", StopDuplicateStreak, "streak", streak, "records", len(accumulated))
				return accumulated, c.finish(ctx, log, accumulated, flushErr)
			}
		} else {
			streak = 0
		}
		prevKeys = keys

		fresh := make([]model.Notice, 0, len(resp.Notices))
		for _, n := range resp.Notices {
			key := n.Key()
			if key != "" {
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			accumulated = append(accumulated, n)
			fresh = append(fresh, n)
		}

		for _, s := range c.sinks {
			if err := s.Flush(ctx, fresh); err != nil {
				var storageErr *StorageError
				if errors.As(err, &storageErr) {
					log.Error("storage failure, holding checkpoint", "error", err)
				} else {
					log.Error("sink flush failed, holding checkpoint", "error", err)
				}
				if flushErr == nil {
					flushErr = err
				}
			}
		}

		// The hold is sticky: a later save would move the checkpoint past
		// the unflushed batch and a resume would never replay it.
		if flushErr == nil {
			if err := c.checkpoint.Save(next); err != nil {
				log.Error("checkpoint save failed", "error", err)
			}
		}

		log.Info("batch processed",
			"batch", len(resp.Notices),
			"new", len(fresh),
			"total", len(accumulated),
		)

		token = next
		c.sleep(c.opts.Pause)
	}
}

// finish handles end-of-data termination: flush deferred sinks, then
// drop the checkpoint. When any batch went unstored the checkpoint is
// kept so the next invocation replays from before that batch, and the
// failure surfaces to the caller.
func (c *Controller) finish(ctx context.Context, log *slog.Logger, accumulated []model.Notice, flushErr error) error {
	c.closeSinks(ctx, log, accumulated)
	if flushErr != nil {
		log.Warn("checkpoint kept, run had unstored batches", "error", flushErr)
		return fmt.Errorf("unstored batches remain: %w", flushErr)
	}
	if err := c.checkpoint.Clear(); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

func (c *Controller) closeSinks(ctx context.Context, log *slog.Logger, accumulated []model.Notice) {
	for _, s := range c.sinks {
		if err := s.Close(ctx, accumulated); err != nil {
			log.Error("sink close failed", "error", err)
		}
	}
}
