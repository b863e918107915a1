package guardrail

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invopipe/invopipe/internal/entity"
)

func testGuardrail() *Guardrail {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func amt(v float64) *float64 { return &v }

func item(desc string, qty, unit float64, total *float64) entity.LineItem {
	return entity.LineItem{Description: desc, Quantity: qty, UnitPrice: unit, LineTotal: total}
}

func TestApplyFullScanIsNoOp(t *testing.T) {
	lines := []string{
		"Widget A 2 $5.00 $10.00",
		"Widget B 1 $3.00 $3.00",
		"thank you",
	}
	attempt := entity.ParseAttemptResult{
		LineItems:      []entity.LineItem{item("Widget A", 2, 5, amt(10))},
		Confidence:     82,
		LastParsedLine: 2,
	}

	out, report := testGuardrail().Apply(lines, attempt)

	assert.Equal(t, 100.0, report.ScanCompleteness)
	assert.Equal(t, len(lines), report.LastParsedLine)
	assert.Equal(t, len(lines), report.TotalLines)
	assert.False(t, report.Applied)
	assert.Zero(t, report.ExtendedItems)
	assert.False(t, report.TotalAdopted)
	assert.Len(t, out.LineItems, len(attempt.LineItems))
}

func TestApplyUntrackedScanPresumedComplete(t *testing.T) {
	lines := make([]string, 10)
	attempt := entity.ParseAttemptResult{Confidence: 90, LastParsedLine: -1}

	out, report := testGuardrail().Apply(lines, attempt)

	assert.Equal(t, 100.0, report.ScanCompleteness)
	assert.Equal(t, 10, report.LastParsedLine)
	assert.False(t, report.Applied)
	assert.Empty(t, out.LineItems)
}

func TestApplyEmptyDocument(t *testing.T) {
	attempt := entity.ParseAttemptResult{Confidence: 90, LastParsedLine: -1}

	out, report := testGuardrail().Apply(nil, attempt)

	assert.Equal(t, 100.0, report.ScanCompleteness)
	assert.Zero(t, report.TotalLines)
	assert.False(t, report.Applied)
	assert.False(t, report.NeedsReview)
	assert.Empty(t, out.LineItems)
}

// A parser that stopped at the first subtotal leaves the second item section
// unread; the guardrail must recover those rows and the grand total.
func TestApplyExtendsTruncatedScan(t *testing.T) {
	lines := []string{
		"ACME SUPPLY CO",
		"INVOICE 1001",
		"Widget A 2 $5.00 $10.00",
		"Widget B 4 $5.00 $20.00",
		"SUBTOTAL $30.00",
		"Gadget C 1 $12.00 $12.00",
		"Gadget D 2 $4.00 $8.00",
		"INVOICE TOTAL $50.00",
	}
	attempt := entity.ParseAttemptResult{
		Draft: entity.Draft{Total: amt(30)},
		LineItems: []entity.LineItem{
			item("Widget A", 2, 5, amt(10)),
			item("Widget B", 4, 5, amt(20)),
		},
		Confidence:     80,
		LastParsedLine: 4,
	}

	out, report := testGuardrail().Apply(lines, attempt)

	assert.InDelta(t, 62.5, report.ScanCompleteness, 0.01)
	assert.Equal(t, 5, report.LastParsedLine)
	assert.Equal(t, 8, report.TotalLines)
	assert.True(t, report.Applied)
	assert.Equal(t, 2, report.ExtendedItems)

	require.Len(t, out.LineItems, 4)
	assert.Equal(t, "Gadget C", out.LineItems[2].Description)
	assert.Equal(t, 1.0, out.LineItems[2].Quantity)
	assert.Equal(t, "Gadget D", out.LineItems[3].Description)
	assert.Equal(t, 2.0, out.LineItems[3].Quantity)
	assert.Equal(t, 4.0, out.LineItems[3].UnitPrice)
	require.NotNil(t, out.LineItems[3].LineTotal)
	assert.Equal(t, 8.0, *out.LineItems[3].LineTotal)

	require.Len(t, report.FoundSubtotals, 1)
	assert.Equal(t, 30.0, report.FoundSubtotals[0].Value)
	assert.Equal(t, 4, report.FoundSubtotals[0].Line)

	require.Len(t, report.FoundTotals, 1)
	assert.Equal(t, "invoice_total", report.FoundTotals[0].Label)

	assert.True(t, report.TotalAdopted)
	require.NotNil(t, out.Draft.Total)
	assert.Equal(t, 50.0, *out.Draft.Total)
	assert.Equal(t, 95, out.Draft.TotalConfidence)

	assert.True(t, report.NeedsReview)
	require.Len(t, report.ReviewReasons, 1)
	assert.Contains(t, report.ReviewReasons[0], "recovered 2 items")

	// the input attempt must be untouched
	assert.Len(t, attempt.LineItems, 2)
	assert.Equal(t, 30.0, *attempt.Draft.Total)
}

// Receipts often trail off into footers with no amounts at all. The extension
// runs but finds nothing, and that alone must not flag the result for review.
func TestApplyExtensionOverFooterFindsNothing(t *testing.T) {
	lines := []string{
		"CORNER MART",
		"MILK 4.50",
		"SUBTOTAL 4.50",
		"",
		"Thank you for shopping",
		"Come again",
		"Loyalty points: 12",
	}
	attempt := entity.ParseAttemptResult{
		LineItems:      []entity.LineItem{item("MILK", 1, 4.5, amt(4.5))},
		Confidence:     85,
		LastParsedLine: 2,
	}

	out, report := testGuardrail().Apply(lines, attempt)

	assert.True(t, report.Applied)
	assert.Zero(t, report.ExtendedItems)
	assert.Len(t, out.LineItems, 1)
	assert.False(t, report.TotalAdopted)
	assert.False(t, report.NeedsReview, "an empty extension is not a review reason")
	assert.GreaterOrEqual(t, len(out.LineItems), len(attempt.LineItems))
}

func TestApplyTotalAdoption(t *testing.T) {
	lines := []string{
		"Stuff 1 $5.00 $5.00",
		"TOTAL $40.00",
		"INVOICE TOTAL $50.00",
	}
	base := entity.ParseAttemptResult{
		LineItems:      []entity.LineItem{item("Stuff", 1, 5, amt(5))},
		Confidence:     90,
		LastParsedLine: 2,
	}

	t.Run("adopts when draft has no total", func(t *testing.T) {
		out, report := testGuardrail().Apply(lines, base)

		assert.True(t, report.TotalAdopted)
		require.NotNil(t, out.Draft.Total)
		assert.Equal(t, 50.0, *out.Draft.Total)
		assert.Equal(t, 95, out.Draft.TotalConfidence)
		assert.False(t, report.Applied, "adoption is independent of the extension scan")
	})

	t.Run("adopts the larger labeled total", func(t *testing.T) {
		attempt := base
		attempt.Draft.Total = amt(30)

		out, report := testGuardrail().Apply(lines, attempt)

		assert.True(t, report.TotalAdopted)
		assert.Equal(t, 50.0, *out.Draft.Total)
	})

	t.Run("keeps a larger recorded total", func(t *testing.T) {
		attempt := base
		attempt.Draft.Total = amt(60)
		attempt.Draft.TotalConfidence = 90

		out, report := testGuardrail().Apply(lines, attempt)

		assert.False(t, report.TotalAdopted)
		assert.Equal(t, 60.0, *out.Draft.Total)
		assert.Equal(t, 90, out.Draft.TotalConfidence)
	})
}

func TestExtendScan(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  int
	}{
		{"label lines are skipped", []string{"SUBTOTAL $10.00", "Gadget $5.00"}, 1},
		{"pure number rows are not items", []string{"123.45"}, 0},
		{"rows without decimals are skipped", []string{"three widgets"}, 0},
		{"negative amounts are dropped", []string{"Refund -7.50"}, 0},
		{"blank lines are skipped", []string{"", "  ", "Fee 2.50"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, extendScan(tt.lines, 0), tt.want)
		})
	}

	t.Run("lone amount doubles as unit and total", func(t *testing.T) {
		items := extendScan([]string{"Delivery fee 7.50"}, 0)

		require.Len(t, items, 1)
		assert.Equal(t, "Delivery fee", items[0].Description)
		assert.Equal(t, 1.0, items[0].Quantity)
		assert.Equal(t, 7.5, items[0].UnitPrice)
		require.NotNil(t, items[0].LineTotal)
		assert.Equal(t, 7.5, *items[0].LineTotal)
	})

	t.Run("quantity recovered from a clean multiple", func(t *testing.T) {
		items := extendScan([]string{"Bolt 3 $2.00 $6.00"}, 0)

		require.Len(t, items, 1)
		assert.Equal(t, "Bolt", items[0].Description)
		assert.Equal(t, 3.0, items[0].Quantity)
		assert.Equal(t, 2.0, items[0].UnitPrice)
	})

	t.Run("ragged multiple keeps quantity one", func(t *testing.T) {
		items := extendScan([]string{"Thing $5.00 $12.00"}, 0)

		require.Len(t, items, 1)
		assert.Equal(t, 1.0, items[0].Quantity)
		assert.Equal(t, 5.0, items[0].UnitPrice)
		assert.Equal(t, 12.0, *items[0].LineTotal)
	})

	t.Run("starts at the given line", func(t *testing.T) {
		items := extendScan([]string{"Early 1.00", "Late 2.00"}, 1)

		require.Len(t, items, 1)
		assert.Equal(t, "Late", items[0].Description)
		assert.Equal(t, 1, items[0].SourceLine)
	})
}

func TestReviewReasons(t *testing.T) {
	passing := []entity.LineItem{
		item("a", 1, 5, amt(5)),
		item("b", 2, 3, amt(6)),
	}

	t.Run("clean result needs no review", func(t *testing.T) {
		need, reasons := reviewReasons(&entity.GuardrailReport{}, entity.ParseAttemptResult{
			LineItems:  passing,
			Confidence: 90,
		})

		assert.False(t, need)
		assert.Empty(t, reasons)
	})

	t.Run("extension recovery", func(t *testing.T) {
		need, reasons := reviewReasons(&entity.GuardrailReport{ExtendedItems: 3}, entity.ParseAttemptResult{
			LineItems:  passing,
			Confidence: 90,
		})

		assert.True(t, need)
		require.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "recovered 3 items")
	})

	t.Run("low confidence", func(t *testing.T) {
		need, reasons := reviewReasons(&entity.GuardrailReport{}, entity.ParseAttemptResult{
			LineItems:  passing,
			Confidence: 55,
		})

		assert.True(t, need)
		require.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "confidence 55")
	})

	t.Run("arithmetic minority", func(t *testing.T) {
		items := []entity.LineItem{
			item("ok", 1, 5, amt(5)),
			item("off", 2, 3, amt(9)),
			item("off too", 1, 4, amt(7)),
		}

		need, reasons := reviewReasons(&entity.GuardrailReport{}, entity.ParseAttemptResult{
			LineItems:  items,
			Confidence: 90,
		})

		assert.True(t, need)
		require.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "1 of 3 priced items")
	})

	t.Run("exactly half passing is acceptable", func(t *testing.T) {
		items := []entity.LineItem{
			item("ok", 1, 5, amt(5)),
			item("off", 2, 3, amt(9)),
		}

		need, _ := reviewReasons(&entity.GuardrailReport{}, entity.ParseAttemptResult{
			LineItems:  items,
			Confidence: 90,
		})

		assert.False(t, need)
	})

	t.Run("unpriced items are not counted", func(t *testing.T) {
		items := []entity.LineItem{
			item("no total a", 1, 5, nil),
			item("no total b", 1, 3, nil),
		}

		need, _ := reviewReasons(&entity.GuardrailReport{}, entity.ParseAttemptResult{
			LineItems:  items,
			Confidence: 90,
		})

		assert.False(t, need)
	})

	t.Run("too many subtotal sections", func(t *testing.T) {
		report := &entity.GuardrailReport{
			FoundSubtotals: []entity.FoundAmount{
				{Label: "subtotal", Value: 10, Line: 2},
				{Label: "subtotal", Value: 20, Line: 8},
				{Label: "subtotal", Value: 15, Line: 14},
			},
		}

		need, reasons := reviewReasons(report, entity.ParseAttemptResult{
			LineItems:  passing,
			Confidence: 90,
		})

		assert.True(t, need)
		require.Len(t, reasons, 1)
		assert.Contains(t, reasons[0], "3 subtotal sections")
	})
}

func TestResidualText(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"Gadget C 1 $12.00 $12.00", "Gadget C"},
		{"Bolt 3 $2.00 $6.00", "Bolt"},
		{"12.00", ""},
		{"SKU-99 Widget 4.00", "SKU-99 Widget"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, residualText(tt.line), tt.line)
	}
}
