// Package export renders stored extraction results as XLSX workbooks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/invopipe/invopipe/internal/store"
)

const (
	runsSheet  = "Runs"
	itemsSheet = "Line Items"
)

// Service is a tiny façade over the results store that produces XLSX bytes.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// ResultsXLSX returns an XLSX workbook (as bytes) for the stored runs matching
// the filter. The workbook has a run summary sheet and a line-items sheet; line
// items are fetched per matching run.
func (s *Service) ResultsXLSX(ctx context.Context, filter store.ListFilter) ([]byte, error) {
	start := time.Now()

	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	f := excelize.NewFile()
	for _, sheet := range []string{runsSheet, itemsSheet} {
		if index, _ := f.GetSheetIndex(sheet); index == -1 {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, err
			}
		}
	}
	// Drop the workbook's default sheet so only the named ones remain.
	_ = f.DeleteSheet("Sheet1")
	activeIndex, _ := f.GetSheetIndex(runsSheet)
	f.SetActiveSheet(activeIndex)

	runHeaders := []string{
		"Run ID",
		"Created (UTC)",
		"File",
		"Source",
		"Status",
		"Parser",
		"Items",
		"Confidence",
		"Needs Review",
		"Vendor",
		"Invoice #",
		"Document Date",
		"Currency",
		"Total",
	}
	for i, h := range runHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(runsSheet, cell, h)
	}

	itemHeaders := []string{
		"Run ID",
		"Seq",
		"SKU",
		"Description",
		"Quantity",
		"Unit Price",
		"Line Total",
		"UOM",
	}
	for i, h := range itemHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, h)
	}

	itemRow := 2
	totalItems := 0
	for i, r := range runs {
		row := i + 2

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(runsSheet, cell, v)
		}

		write(1, r.ID)
		if !r.CreatedAt.IsZero() {
			write(2, r.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
		}
		write(3, r.FileName)
		write(4, r.SourceType)
		write(5, r.Status)
		write(6, r.ParserUsed)
		write(7, r.ItemCount)
		write(8, r.Confidence)
		if r.NeedsReview {
			write(9, "yes")
		}
		write(10, r.VendorName)
		write(11, r.InvoiceNumber)
		write(12, r.DocumentDate)
		write(13, r.CurrencyCode)
		if r.Total != nil {
			write(14, *r.Total)
		}

		items, err := s.store.ListItems(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("query items for %s: %w", r.ID, err)
		}
		for _, it := range items {
			writeItem := func(col int, v any) {
				cell, _ := excelize.CoordinatesToCellName(col, itemRow)
				_ = f.SetCellValue(itemsSheet, cell, v)
			}
			writeItem(1, it.RunID)
			writeItem(2, it.Seq)
			writeItem(3, it.SKU)
			writeItem(4, truncate(it.Description, 140))
			writeItem(5, it.Quantity)
			writeItem(6, it.UnitPrice)
			if it.LineTotal != nil {
				writeItem(7, *it.LineTotal)
			}
			writeItem(8, it.UOM)
			itemRow++
			totalItems++
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(runsSheet, "A", "A", 38) // run id
	_ = f.SetColWidth(runsSheet, "B", "B", 20) // created
	_ = f.SetColWidth(runsSheet, "C", "C", 32) // file
	_ = f.SetColWidth(runsSheet, "E", "F", 16) // status, parser
	_ = f.SetColWidth(runsSheet, "J", "K", 24) // vendor, invoice
	_ = f.SetColWidth(itemsSheet, "A", "A", 38)
	_ = f.SetColWidth(itemsSheet, "D", "D", 48) // description

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"runs", len(runs),
		"items", totalItems,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
