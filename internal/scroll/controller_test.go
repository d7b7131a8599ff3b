package scroll

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tendertrack/tendertrack/internal/model"
	"github.com/tendertrack/tendertrack/internal/ted"
)

type scriptedSearcher struct {
	responses []*ted.SearchResponse
	errs      []error
	requests  []ted.SearchRequest
}

func (s *scriptedSearcher) Search(ctx context.Context, req ted.SearchRequest) (*ted.SearchResponse, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i >= len(s.responses) {
		return &ted.SearchResponse{}, nil
	}
	if s.errs != nil && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.responses[i], nil
}

func batch(token string, keys ...string) *ted.SearchResponse {
	notices := make([]model.Notice, len(keys))
	for i, k := range keys {
		notices[i] = model.Notice{"publication-number": k}
	}
	var raw json.RawMessage
	if token != "" {
		raw, _ = json.Marshal(token)
	}
	return &ted.SearchResponse{Notices: notices, IterationNextToken: raw}
}

// collectSink records flush/close/reset calls.
type collectSink struct {
	flushed  [][]model.Notice
	closed   []model.Notice
	resets   int
	flushErr error
}

func (s *collectSink) Flush(ctx context.Context, b []model.Notice) error {
	cp := make([]model.Notice, len(b))
	copy(cp, b)
	s.flushed = append(s.flushed, cp)
	return s.flushErr
}

func (s *collectSink) Close(ctx context.Context, all []model.Notice) error {
	s.closed = all
	return nil
}

func (s *collectSink) Reset() error {
	s.resets++
	return nil
}

func newController(searcher Searcher, checkpoint CheckpointStore, sinks ...Sink) *Controller {
	c := NewController(searcher, checkpoint, sinks, Options{Limit: 10, Pause: time.Second}, nil)
	c.sleep = func(time.Duration) {}
	return c
}

func keysOf(notices []model.Notice) []string {
	return model.Keys(notices)
}

func TestRun_EndToEndGraceful(t *testing.T) {
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
		batch("T1", "P1"),
		batch("T2", "P2"),
		batch("T3"), // empty batch ends the run
	}}
	checkpoint := NewFileCheckpoint(filepath.Join(t.TempDir(), "checkpoint"))
	sink := &collectSink{}

	got, err := newController(searcher, checkpoint, sink).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("expected graceful termination, got %v", err)
	}

	keys := keysOf(got)
	if len(keys) != 2 || keys[0] != "P1" || keys[1] != "P2" {
		t.Errorf("expected accumulated {P1,P2}, got %v", keys)
	}

	// Checkpoint deleted on graceful completion.
	if token, _ := checkpoint.Load(); token != "" {
		t.Errorf("checkpoint should be cleared, still holds %q", token)
	}

	// First request carries no token, later requests carry the previous
	// response's token.
	if searcher.requests[0].IterationNextToken != "" {
		t.Errorf("first request must not carry a token, got %q", searcher.requests[0].IterationNextToken)
	}
	if searcher.requests[1].IterationNextToken != "T1" {
		t.Errorf("second request should carry T1, got %q", searcher.requests[1].IterationNextToken)
	}
	if searcher.requests[2].IterationNextToken != "T2" {
		t.Errorf("third request should carry T2, got %q", searcher.requests[2].IterationNextToken)
	}

	if len(sink.flushed) != 2 {
		t.Errorf("expected 2 flushes, got %d", len(sink.flushed))
	}
	if len(sink.closed) != 2 {
		t.Errorf("close should receive the full set, got %v", keysOf(sink.closed))
	}
}

func TestRun_DedupAcrossBatches(t *testing.T) {
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
		batch("T1", "P1", "P2"),
		batch("T2", "P2", "P3"),
		batch("T3"),
	}}
	sink := &collectSink{}

	got, err := newController(searcher, NewMemoryCheckpoint(), sink).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	keys := keysOf(got)
	if len(keys) != 3 {
		t.Fatalf("expected 3 unique keys, got %v", keys)
	}
	// Second flush only carries the new record.
	if second := keysOf(sink.flushed[1]); len(second) != 1 || second[0] != "P3" {
		t.Errorf("expected second flush {P3}, got %v", second)
	}
}

func TestRun_UnkeyedNoticesNeverDeduplicated(t *testing.T) {
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
		{
			Notices: []model.Notice{
				{"buyer-country": "DEU"},
				{"buyer-country": "FRA"},
			},
			IterationNextToken: json.RawMessage(`"T1"`),
		},
		batch("T2"),
	}}

	got, err := newController(searcher, NewMemoryCheckpoint(), &collectSink{}).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("unkeyed notices must all be kept, got %d", len(got))
	}
}

func TestRun_DuplicateStreakTerminates(t *testing.T) {
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
		batch("T1", "P1"),
		batch("T2", "P1"), // identical key list: streak 1
		batch("T3", "P1"), // identical again: streak 2, stop
		batch("T4", "P9"), // never reached
	}}
	checkpoint := NewMemoryCheckpoint()

	got, err := newController(searcher, checkpoint, &collectSink{}).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("duplicate streak is a graceful stop, got %v", err)
	}
	if len(searcher.requests) != 3 {
		t.Errorf("expected run to stop after 3 batches, made %d requests", len(searcher.requests))
	}
	if keys := keysOf(got); len(keys) != 1 || keys[0] != "P1" {
		t.Errorf("expected accumulated {P1}, got %v", keys)
	}
	// Treated as natural end-of-data: checkpoint cleared.
	if token, _ := checkpoint.Load(); token != "" {
		t.Errorf("checkpoint should be cleared, still holds %q", token)
	}
}

func TestRun_SingleDuplicateThenDistinctContinues(t *testing.T) {
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
		batch("T1", "P1"),
		batch("T2", "P1"), // one duplicate
		batch("T3", "P2"), // distinct: streak resets
		batch("T4", "P1"), // duplicate of nothing (differs from previous)
		batch("T5"),
	}}

	got, err := newController(searcher, NewMemoryCheckpoint(), &collectSink{}).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(searcher.requests) != 5 {
		t.Errorf("run should continue past a single duplicate, made %d requests", len(searcher.requests))
	}
	if keys := keysOf(got); len(keys) != 2 {
		t.Errorf("expected {P1,P2}, got %v", keys)
	}
}

func TestRun_InvalidTokenAbnormalStop(t *testing.T) {
	cases := []struct {
		name string
		raw  json.RawMessage
	}{
		{"missing", nil},
		{"number", json.RawMessage(`42`)},
		{"blank", json.RawMessage(`"  "`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
				batch("T1", "P1"),
				{
					Notices:            []model.Notice{{"publication-number": "P2"}},
					IterationNextToken: tc.raw,
				},
			}}
			checkpoint := NewMemoryCheckpoint()

			_, err := newController(searcher, checkpoint, &collectSink{}).Run(context.Background(), "q")
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
			// Abnormal stop: the last confirmed token survives for resumption.
			if token, _ := checkpoint.Load(); token != "T1" {
				t.Errorf("checkpoint should still hold T1, got %q", token)
			}
		})
	}
}

func TestRun_ResumeSkipsResetAndSendsToken(t *testing.T) {
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
		batch("T2", "P2"),
		batch("T3"),
	}}
	checkpoint := NewMemoryCheckpoint()
	_ = checkpoint.Save("T1")
	sink := &collectSink{}

	got, err := newController(searcher, checkpoint, sink).Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sink.resets != 0 {
		t.Error("resumed run must not reset sinks")
	}
	if searcher.requests[0].IterationNextToken != "T1" {
		t.Errorf("resumed run should start from T1, got %q", searcher.requests[0].IterationNextToken)
	}
	if keys := keysOf(got); len(keys) != 1 || keys[0] != "P2" {
		t.Errorf("expected {P2}, got %v", keys)
	}
}

func TestRun_FreshRunResetsSinks(t *testing.T) {
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{batch("T1")}}
	sink := &collectSink{}

	if _, err := newController(searcher, NewMemoryCheckpoint(), sink).Run(context.Background(), "q"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sink.resets != 1 {
		t.Errorf("fresh run should reset sinks once, got %d", sink.resets)
	}
}

func TestRun_StorageFailureHoldsCheckpoint(t *testing.T) {
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
		batch("T1", "P1"),
		{
			Notices:            []model.Notice{{"publication-number": "P2"}},
			IterationNextToken: json.RawMessage(`"T2"`),
		},
		batch("T3"),
	}}
	checkpoint := NewMemoryCheckpoint()

	controller := newController(searcher, checkpoint)

	// Fail storage for the second batch only.
	count := 0
	controller.sinks = []Sink{sinkFunc(func(ctx context.Context, b []model.Notice) error {
		count++
		if count == 2 {
			return &StorageError{Err: errors.New("insert failed")}
		}
		return nil
	})}

	got, err := controller.Run(context.Background(), "q")
	if err == nil {
		t.Fatal("a run with unstored batches must surface the failure")
	}
	if keys := keysOf(got); len(keys) != 2 {
		t.Errorf("expected both records accumulated, got %v", keys)
	}
	// The checkpoint froze at T1, so a rerun replays the failed batch.
	if token, _ := checkpoint.Load(); token != "T1" {
		t.Errorf("checkpoint should hold T1 for replay, got %q", token)
	}
}

func TestRun_StorageFailureFreezesCheckpointForRestOfRun(t *testing.T) {
	// The batch after the failed one succeeds; its token must still not
	// be saved, or a resume would skip the unstored batch.
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
		batch("T1", "P1"), // storage fails
		batch("T2", "P2"), // storage succeeds
		batch("T3"),       // end of data
	}}
	checkpoint := NewMemoryCheckpoint()

	controller := newController(searcher, checkpoint)
	count := 0
	controller.sinks = []Sink{sinkFunc(func(ctx context.Context, b []model.Notice) error {
		count++
		if count == 1 {
			return &StorageError{Err: errors.New("insert failed")}
		}
		return nil
	})}

	got, err := controller.Run(context.Background(), "q")
	if err == nil {
		t.Fatal("a run with unstored batches must surface the failure")
	}
	if len(searcher.requests) != 3 {
		t.Errorf("the run should continue past the failure, made %d requests", len(searcher.requests))
	}
	if keys := keysOf(got); len(keys) != 2 {
		t.Errorf("expected both records accumulated, got %v", keys)
	}
	if token, _ := checkpoint.Load(); token != "" {
		t.Errorf("checkpoint must not advance past the unstored batch, holds %q", token)
	}
}

func TestRun_StorageFailureFreezeSurvivesAbnormalStop(t *testing.T) {
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
		batch("T1", "P1"), // storage fails
		batch("T2", "P2"), // storage succeeds
		{
			Notices:            []model.Notice{{"publication-number": "P3"}},
			IterationNextToken: json.RawMessage(`42`), // abort
		},
	}}
	checkpoint := NewMemoryCheckpoint()

	controller := newController(searcher, checkpoint)
	count := 0
	controller.sinks = []Sink{sinkFunc(func(ctx context.Context, b []model.Notice) error {
		count++
		if count == 1 {
			return &StorageError{Err: errors.New("insert failed")}
		}
		return nil
	})}

	_, err := controller.Run(context.Background(), "q")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if token, _ := checkpoint.Load(); token != "" {
		t.Errorf("checkpoint must not hold T2 after an earlier unstored batch, holds %q", token)
	}
}

// sinkFunc adapts a function to the Sink interface for tests.
type sinkFunc func(ctx context.Context, batch []model.Notice) error

func (f sinkFunc) Flush(ctx context.Context, batch []model.Notice) error { return f(ctx, batch) }
func (f sinkFunc) Close(ctx context.Context, all []model.Notice) error   { return nil }
func (f sinkFunc) Reset() error                                          { return nil }

func TestRun_StorageFailureDoesNotAdvanceCheckpoint(t *testing.T) {
	searcher := &scriptedSearcher{responses: []*ted.SearchResponse{
		batch("T1", "P1"),
		{
			Notices:            []model.Notice{{"publication-number": "P2"}},
			IterationNextToken: json.RawMessage(`42`), // abort after the failed batch
		},
	}}
	checkpoint := NewMemoryCheckpoint()

	controller := newController(searcher, checkpoint)
	count := 0
	controller.sinks = []Sink{sinkFunc(func(ctx context.Context, b []model.Notice) error {
		count++
		if count == 1 {
			return &StorageError{Err: errors.New("insert failed")}
		}
		return nil
	})}

	_, err := controller.Run(context.Background(), "q")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	// The first batch's storage failure blocked the T1 checkpoint.
	if token, _ := checkpoint.Load(); token != "" {
		t.Errorf("checkpoint must not advance past a failed batch, holds %q", token)
	}
}

func TestRun_SearchErrorLeavesCheckpoint(t *testing.T) {
	searcher := &scriptedSearcher{
		responses: []*ted.SearchResponse{
			batch("T1", "P1"),
			nil,
		},
		errs: []error{nil, errors.New("max retries exceeded")},
	}
	checkpoint := NewMemoryCheckpoint()

	_, err := newController(searcher, checkpoint, &collectSink{}).Run(context.Background(), "q")
	if err == nil {
		t.Fatal("expected the exhausted-retries error to surface")
	}
	if token, _ := checkpoint.Load(); token != "T1" {
		t.Errorf("checkpoint should hold the last confirmed token, got %q", token)
	}
}
