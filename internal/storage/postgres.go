package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/tendertrack/tendertrack/internal/model"
)

// schemaHints maps known columns to their Postgres types. Anything not
// listed lands as TEXT; one-hot indicator columns match by prefix.
var schemaHints = map[string]string{
	model.KeyField:        "TEXT PRIMARY KEY",
	"tender-value":        "NUMERIC",
	"TVH":                 "NUMERIC",
	"tender-value-lowest": "NUMERIC",
	"buyer-country":       "TEXT",
	"notice-type":         "TEXT",
	"contract-nature":     "TEXT",
	"main-activity":       "TEXT",
	"dispatch-date":       "TIMESTAMP",
	"publication-date":    "TIMESTAMP",
}

const defaultChunkSize = 50000

// maxBindParams is the bind-parameter ceiling of the Postgres extended
// protocol (an int16 field on the wire). A multi-row INSERT spends one
// parameter per cell, so wide rows shrink the effective chunk.
const maxBindParams = 65535

// Store writes preprocessed rows into Postgres, creating and evolving
// the target table as the column set grows.
type Store struct {
	db        *sql.DB
	chunkSize int
	logger    *slog.Logger
}

// Open connects to Postgres with the given connection string and wraps
// it in a Store.
func Open(dsn string, chunkSize int, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db, chunkSize, logger), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, chunkSize int, logger *slog.Logger) *Store {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, chunkSize: chunkSize, logger: logger}
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Store persists rows into table. Rows without a key are dropped. The
// table is created on first use and missing columns are added as they
// appear; inserts run in chunks (bounded by both the configured row
// count and the protocol's parameter limit), each inside its own
// transaction, and re-inserted keys are ignored so replayed batches
// stay idempotent.
func (s *Store) Store(ctx context.Context, rows []map[string]any, table string) error {
	rows = dropKeyless(rows, s.logger)
	if len(rows) == 0 {
		return nil
	}

	columns := columnSet(rows)

	if err := s.ensureTable(ctx, table, columns); err != nil {
		return err
	}
	if err := s.ensureColumns(ctx, table, columns); err != nil {
		return err
	}

	chunk := rowsPerChunk(s.chunkSize, len(columns))

	s.logger.Info("storing rows", "table", table, "rows", len(rows), "chunk", chunk)
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.insertChunk(ctx, table, columns, rows[start:end]); err != nil {
			return fmt.Errorf("insert chunk %d: %w", start/chunk+1, err)
		}
	}
	return nil
}

// rowsPerChunk caps the configured chunk so one INSERT never exceeds the
// protocol's bind-parameter limit.
func rowsPerChunk(chunkSize, numColumns int) int {
	chunk := chunkSize
	if limit := maxBindParams / numColumns; chunk > limit {
		chunk = limit
	}
	if chunk < 1 {
		chunk = 1
	}
	return chunk
}

func (s *Store) ensureTable(ctx context.Context, table string, columns []string) error {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = pq.QuoteIdentifier(col) + " " + columnType(col)
	}
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pq.QuoteIdentifier(table), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func (s *Store) ensureColumns(ctx context.Context, table string, columns []string) error {
	existing, err := s.existingColumns(ctx, table)
	if err != nil {
		return err
	}
	for _, col := range columns {
		if existing[col] {
			continue
		}
		colType := columnType(col)
		s.logger.Warn("adding missing column", "table", table, "column", col, "type", colType)
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			pq.QuoteIdentifier(table), pq.QuoteIdentifier(col), colType)
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

func (s *Store) existingColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_name = $1", table)
	if err != nil {
		return nil, fmt.Errorf("inspect columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

func (s *Store) insertChunk(ctx context.Context, table string, columns []string, chunk []map[string]any) error {
	builder := sq.Insert(pq.QuoteIdentifier(table)).
		Columns(quoteAll(columns)...).
		PlaceholderFormat(sq.Dollar).
		Suffix("ON CONFLICT (" + pq.QuoteIdentifier(model.KeyField) + ") DO NOTHING")

	for _, row := range chunk {
		values := make([]any, len(columns))
		for i, col := range columns {
			values[i] = cellValue(row[col])
		}
		builder = builder.Values(values...)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("chunk inserted", "table", table, "rows", len(chunk))
	return nil
}

// dropKeyless removes rows missing the primary key.
func dropKeyless(rows []map[string]any, logger *slog.Logger) []map[string]any {
	kept := rows[:0:0]
	for _, row := range rows {
		if key, ok := row[model.KeyField].(string); ok && key != "" {
			kept = append(kept, row)
		}
	}
	if dropped := len(rows) - len(kept); dropped > 0 {
		logger.Warn("dropped rows with missing key", "rows", dropped)
	}
	return kept
}

// columnSet returns the union of all row keys, key field first, the
// rest sorted for stable statements.
func columnSet(rows []map[string]any) []string {
	seen := map[string]bool{model.KeyField: true}
	var rest []string
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				rest = append(rest, col)
			}
		}
	}
	sort.Strings(rest)
	return append([]string{model.KeyField}, rest...)
}

func columnType(col string) string {
	if t, ok := schemaHints[col]; ok {
		return t
	}
	for prefix := range schemaHints {
		if strings.HasPrefix(col, prefix+"_") {
			return "BOOLEAN"
		}
	}
	return "TEXT"
}

func quoteAll(columns []string) []string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
	}
	return quoted
}

// cellValue maps a row value onto a driver-friendly type.
func cellValue(v any) any {
	switch val := v.(type) {
	case nil, string, float64, bool, int, int64:
		return val
	case []any:
		if len(val) == 0 {
			return nil
		}
		return cellValue(val[0])
	default:
		return fmt.Sprint(val)
	}
}
