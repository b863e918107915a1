// Package store persists pipeline results for later inspection and export.
// Each run is stored twice over: a queryable summary row plus the full
// UnifiedResult JSON, and its line items land in their own table so exports
// can read them without unpacking documents.
package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/invopipe/invopipe/internal/entity"
)

// ErrRunNotFound means no stored run matches the requested ID.
var ErrRunNotFound = errors.New("run not found")

// timeLayout keeps stored timestamps in a text form whose lexicographic
// order matches chronological order, so ORDER BY created_at works.
const timeLayout = "2006-01-02 15:04:05.999999999-07:00"

// Timestamp stores a time as text. sqlite has no timestamp type, and
// relying on the driver to pick a column format makes ordering fragile.
type Timestamp struct {
	time.Time
}

// Now returns the current UTC time as a Timestamp.
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC()}
}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	return t.UTC().Format(timeLayout), nil
}

// Scan implements sql.Scanner. It accepts text in the stored layout and
// time.Time values from drivers that convert timestamp columns themselves.
func (t *Timestamp) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = x
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	default:
		return fmt.Errorf("timestamp: cannot scan %T", v)
	}
}

func (t *Timestamp) parse(s string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized value %q", s)
}

// Run is the queryable summary of one stored pipeline result.
type Run struct {
	ID            string    `db:"id" json:"id"`
	CreatedAt     Timestamp `db:"created_at" json:"created_at"`
	FileName      string    `db:"file_name" json:"file_name,omitempty"`
	SourceType    string    `db:"source_type" json:"source_type"`
	Status        string    `db:"status" json:"status"`
	ParserUsed    string    `db:"parser_used" json:"parser_used,omitempty"`
	ItemCount     int       `db:"item_count" json:"item_count"`
	Confidence    float64   `db:"confidence" json:"confidence"`
	NeedsReview   bool      `db:"needs_review" json:"needs_review"`
	VendorName    string    `db:"vendor_name" json:"vendor_name,omitempty"`
	InvoiceNumber string    `db:"invoice_number" json:"invoice_number,omitempty"`
	DocumentDate  string    `db:"document_date" json:"document_date,omitempty"`
	CurrencyCode  string    `db:"currency_code" json:"currency_code,omitempty"`
	Total         *float64  `db:"total" json:"total,omitempty"`
}

// Item is one stored line item, ordered by Seq within its run.
type Item struct {
	RunID       string   `db:"run_id" json:"run_id"`
	Seq         int      `db:"seq" json:"seq"`
	SKU         string   `db:"sku" json:"sku,omitempty"`
	Description string   `db:"description" json:"description"`
	Quantity    float64  `db:"quantity" json:"quantity"`
	UnitPrice   float64  `db:"unit_price" json:"unit_price"`
	LineTotal   *float64 `db:"line_total" json:"line_total,omitempty"`
	UOM         string   `db:"uom" json:"uom,omitempty"`
}

// ListFilter narrows ListRuns. Zero values mean "any".
type ListFilter struct {
	Status      string
	NeedsReview *bool
	Limit       int // 0 = default 100, negative = no cap
}

// Store is the persistence boundary for pipeline results.
type Store interface {
	// SaveResult stores one result with its items. Saving the same run ID
	// again replaces the previous row, so batch retries are safe.
	SaveResult(ctx context.Context, res entity.UnifiedResult) (Run, error)
	// GetResult returns the full stored UnifiedResult for a run ID.
	GetResult(ctx context.Context, runID string) (entity.UnifiedResult, error)
	// ListRuns returns summary rows, newest first.
	ListRuns(ctx context.Context, f ListFilter) ([]Run, error)
	// ListItems returns a run's line items in extraction order.
	ListItems(ctx context.Context, runID string) ([]Item, error)
	Close() error
}
