package scroll

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/tendertrack/tendertrack/internal/model"
)

// Sink receives deduplicated notices during an ingestion run. Flush is
// called once per batch with only the records new in that batch; Close is
// called once at run end with the full accumulated set; Reset is called
// before a fresh (non-resumed) run to discard prior output.
type Sink interface {
	Flush(ctx context.Context, batch []model.Notice) error
	Close(ctx context.Context, all []model.Notice) error
	Reset() error
}

// StorageError marks a batch-scoped database failure. The controller
// logs it, holds back the checkpoint for that batch, and continues.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %v", e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// CSVSink appends each batch to a delimited-table file, writing the
// header only when the file is created.
type CSVSink struct {
	path    string
	columns []string
	logger  *slog.Logger
}

// NewCSVSink creates a CSV sink with a fixed column set: the key field
// followed by the requested attribute fields.
func NewCSVSink(path string, fields []string, logger *slog.Logger) *CSVSink {
	if logger == nil {
		logger = slog.Default()
	}
	columns := []string{model.KeyField}
	for _, f := range fields {
		if f != model.KeyField {
			columns = append(columns, f)
		}
	}
	return &CSVSink{path: path, columns: columns, logger: logger}
}

func (s *CSVSink) Flush(ctx context.Context, batch []model.Notice) error {
	if len(batch) == 0 {
		return nil
	}

	writeHeader := false
	if info, err := os.Stat(s.path); os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		writeHeader = true
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(s.columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	row := make([]string, len(s.columns))
	for _, n := range batch {
		for i, col := range s.columns {
			row[i] = cell(n[col])
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}

	s.logger.Debug("batch appended", "file", s.path, "records", len(batch))
	return nil
}

func (s *CSVSink) Close(ctx context.Context, all []model.Notice) error {
	return nil
}

// Reset deletes a leftover output file so a fresh run does not mix with
// a previous one.
func (s *CSVSink) Reset() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove output: %w", err)
	}
	return nil
}

// cell renders an arbitrary notice field as a CSV cell. List values
// collapse to their first element, matching how the categorical
// attributes come back from the API.
func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		if len(val) == 0 {
			return ""
		}
		return cell(val[0])
	default:
		return fmt.Sprint(val)
	}
}

// JSONSink serializes the whole accumulated record list once at run end.
type JSONSink struct {
	path   string
	logger *slog.Logger
}

// NewJSONSink creates a JSON document sink.
func NewJSONSink(path string, logger *slog.Logger) *JSONSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONSink{path: path, logger: logger}
}

func (s *JSONSink) Flush(ctx context.Context, batch []model.Notice) error {
	return nil
}

func (s *JSONSink) Close(ctx context.Context, all []model.Notice) error {
	if all == nil {
		all = []model.Notice{}
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal notices: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	s.logger.Info("document written", "file", s.path, "records", len(all))
	return nil
}

func (s *JSONSink) Reset() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove output: %w", err)
	}
	return nil
}

// Preprocessor shapes raw notices into storable rows.
type Preprocessor interface {
	Preprocess(batch []model.Notice) ([]map[string]any, error)
}

// RowStore is the database contract consumed by the DB sink: create the
// table if absent, evolve the schema, bulk-insert in chunks.
type RowStore interface {
	Store(ctx context.Context, rows []map[string]any, table string) error
}

// DBSink routes each batch through preprocessing into a row store.
// Preprocessing failures skip the batch; store failures surface as
// StorageError so the controller can hold the checkpoint.
type DBSink struct {
	pre    Preprocessor
	store  RowStore
	table  string
	logger *slog.Logger
}

// NewDBSink creates a database sink targeting the given table.
func NewDBSink(pre Preprocessor, store RowStore, table string, logger *slog.Logger) *DBSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBSink{pre: pre, store: store, table: table, logger: logger}
}

func (s *DBSink) Flush(ctx context.Context, batch []model.Notice) error {
	if len(batch) == 0 {
		return nil
	}

	rows, err := s.pre.Preprocess(batch)
	if err != nil {
		s.logger.Warn("preprocessing failed, skipping batch", "records", len(batch), "error", err)
		return nil
	}

	if err := s.store.Store(ctx, rows, s.table); err != nil {
		return &StorageError{Err: err}
	}
	return nil
}

func (s *DBSink) Close(ctx context.Context, all []model.Notice) error { return nil }
func (s *DBSink) Reset() error                                        { return nil }
