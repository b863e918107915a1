package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/invopipe/invopipe/internal/entity"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know a bind type for.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	created_at     TIMESTAMP NOT NULL,
	file_name      TEXT NOT NULL DEFAULT '',
	source_type    TEXT NOT NULL,
	status         TEXT NOT NULL,
	parser_used    TEXT NOT NULL DEFAULT '',
	item_count     INTEGER NOT NULL DEFAULT 0,
	confidence     REAL NOT NULL DEFAULT 0,
	needs_review   INTEGER NOT NULL DEFAULT 0,
	vendor_name    TEXT NOT NULL DEFAULT '',
	invoice_number TEXT NOT NULL DEFAULT '',
	document_date  TEXT NOT NULL DEFAULT '',
	currency_code  TEXT NOT NULL DEFAULT '',
	total          REAL,
	result_json    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE TABLE IF NOT EXISTS line_items (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	sku         TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL,
	quantity    REAL NOT NULL,
	unit_price  REAL NOT NULL,
	line_total  REAL,
	uom         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);`

const runColumns = `id, created_at, file_name, source_type, status, parser_used,
	item_count, confidence, needs_review, vendor_name, invoice_number,
	document_date, currency_code, total`

// SQLite is the file-backed Store implementation.
type SQLite struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the results database at path and
// bootstraps the schema. The special path ":memory:" yields a throwaway
// in-process database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	// single connection: sqlite has one writer, and the batch workload is
	// sequential anyway
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Migrate: %w", err)
	}
	logger.Info("results store ready", "path", path)
	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) SaveResult(ctx context.Context, res entity.UnifiedResult) (Run, error) {
	run := summarize(res)
	blob, err := json.Marshal(res)
	if err != nil {
		return Run{}, fmt.Errorf("sqlite.SaveResult: marshal: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("sqlite.SaveResult: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(`+runColumns+`, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.FileName, run.SourceType, run.Status,
		run.ParserUsed, run.ItemCount, run.Confidence, boolToInt(run.NeedsReview),
		run.VendorName, run.InvoiceNumber, run.DocumentDate, run.CurrencyCode,
		run.Total, blob)
	if err != nil {
		return Run{}, fmt.Errorf("sqlite.SaveResult: insert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE run_id = ?`, run.ID); err != nil {
		return Run{}, fmt.Errorf("sqlite.SaveResult: clear items: %w", err)
	}
	for i, li := range res.Extracted.Items {
		_, err := tx.ExecContext(ctx, `INSERT INTO line_items
			(run_id, seq, sku, description, quantity, unit_price, line_total, uom)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, li.SKU, li.Description, li.Quantity, li.UnitPrice, li.LineTotal, li.UOM)
		if err != nil {
			return Run{}, fmt.Errorf("sqlite.SaveResult: insert item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("sqlite.SaveResult: commit: %w", err)
	}
	s.logger.Debug("result stored", "run_id", run.ID, "status", run.Status, "items", run.ItemCount)
	return run, nil
}

func (s *SQLite) GetResult(ctx context.Context, runID string) (entity.UnifiedResult, error) {
	var blob []byte
	err := s.db.GetContext(ctx, &blob, `SELECT result_json FROM runs WHERE id = ?`, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.UnifiedResult{}, ErrRunNotFound
		}
		return entity.UnifiedResult{}, fmt.Errorf("sqlite.GetResult: %w", err)
	}
	var res entity.UnifiedResult
	if err := json.Unmarshal(blob, &res); err != nil {
		return entity.UnifiedResult{}, fmt.Errorf("sqlite.GetResult: unmarshal: %w", err)
	}
	return res, nil
}

func (s *SQLite) ListRuns(ctx context.Context, f ListFilter) ([]Run, error) {
	q := `SELECT ` + runColumns + ` FROM runs`
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.NeedsReview != nil {
		conds = append(conds, "needs_review = ?")
		args = append(args, boolToInt(*f.NeedsReview))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := f.Limit
	if limit == 0 {
		limit = 100
	}
	if limit < 0 {
		limit = -1 // sqlite treats a negative LIMIT as no limit
	}
	q += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	runs := []Run{}
	if err := s.db.SelectContext(ctx, &runs, q, args...); err != nil {
		return nil, fmt.Errorf("sqlite.ListRuns: %w", err)
	}
	return runs, nil
}

func (s *SQLite) ListItems(ctx context.Context, runID string) ([]Item, error) {
	items := []Item{}
	err := s.db.SelectContext(ctx, &items, `SELECT run_id, seq, sku, description,
		quantity, unit_price, line_total, uom
		FROM line_items WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("sqlite.ListItems: %w", err)
	}
	return items, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// summarize flattens a result into its queryable row.
func summarize(res entity.UnifiedResult) Run {
	run := Run{
		ID:          res.RunID,
		CreatedAt:   Now(),
		FileName:    res.FileName,
		SourceType:  string(res.SourceType),
		Status:      string(res.Status),
		ParserUsed:  res.Debug.ParserUsed,
		ItemCount:   len(res.Extracted.Items),
		Confidence:  float64(res.Extracted.Meta.Confidence),
		NeedsReview: res.Debug.NeedsReview,
	}
	if d := res.Extracted.Meta.Draft; d != nil {
		run.VendorName = d.VendorName
		run.InvoiceNumber = d.InvoiceNumber
		run.DocumentDate = d.DocumentDate
		run.CurrencyCode = d.CurrencyCode
		if d.Total != nil {
			v := *d.Total
			run.Total = &v
		}
	}
	return run
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
