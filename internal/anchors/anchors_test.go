package anchors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func padLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("filler line %d", i)
	}
	return lines
}

func TestFindInvoiceNumber(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"Invoice #12345", "12345"},
		{"INVOICE NO. A-7788", "A-7788"},
		{"Invoice: 2024-0099", "2024-0099"},
		{"Ref INV-2024-001 attached", "INV-2024-001"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := FindInvoiceNumber([]string{tt.line})
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, 0, got.Line)
		})
	}
}

func TestFindInvoiceNumberRejectsDates(t *testing.T) {
	assert.Nil(t, FindInvoiceNumber([]string{"Invoice Date: 12/31/2024"}))
	assert.Nil(t, FindInvoiceNumber([]string{"Invoice 12/31/2024"}))
}

func TestFindInvoiceNumberWindowBound(t *testing.T) {
	lines := padLines(InvoiceNumberWindow + 5)
	lines[InvoiceNumberWindow+2] = "Invoice #9999"
	assert.Nil(t, FindInvoiceNumber(lines))

	lines[10] = "Invoice #1234"
	got := FindInvoiceNumber(lines)
	require.NotNil(t, got)
	assert.Equal(t, "1234", got.Value)
	assert.Equal(t, 10, got.Line)
}

func TestFindPONumber(t *testing.T) {
	got := FindPONumber([]string{"P.O. #4500012"})
	require.NotNil(t, got)
	assert.Equal(t, "4500012", got.Value)

	got = FindPONumber([]string{"Purchase Order: PO-998"})
	require.NotNil(t, got)
	assert.Equal(t, "PO-998", got.Value)

	assert.Nil(t, FindPONumber([]string{"point of sale terminal"}))
	assert.Nil(t, FindPONumber([]string{"Ponderosa Lumber Co"}))
}

func TestFindDocumentDatePrefersLabeled(t *testing.T) {
	lines := []string{
		"Shipped 01/02/2024",
		"Invoice Date: 03/04/2024",
	}
	got := FindDocumentDate(lines)
	require.NotNil(t, got)
	assert.Equal(t, "03/04/2024", got.Value)
	assert.Equal(t, 1, got.Line)
}

func TestFindDocumentDateFallsBackToBareDate(t *testing.T) {
	got := FindDocumentDate([]string{"ACME Corp", "March 5, 2024"})
	require.NotNil(t, got)
	assert.Equal(t, "March 5, 2024", got.Value)

	got = FindDocumentDate([]string{"2024-07-15 order confirmation"})
	require.NotNil(t, got)
	assert.Equal(t, "2024-07-15", got.Value)

	assert.Nil(t, FindDocumentDate([]string{"no dates here"}))
}

func TestTotalSeekStart(t *testing.T) {
	assert.Equal(t, 0, TotalSeekStart(10))  // min window swallows short docs
	assert.Equal(t, 25, TotalSeekStart(50)) // min window of 25
	assert.Equal(t, 60, TotalSeekStart(100))
}

func TestFindSubtotals(t *testing.T) {
	lines := []string{
		"Widget A 2 $5.00 $10.00",
		"SUBTOTAL $30",
		"Widget B 1 $3.00 $3.00",
		"SUB-TOTAL",
		"$45.00",
	}
	got := FindSubtotals(lines)
	require.Len(t, got, 2)
	assert.InDelta(t, 30, got[0].Value, 1e-9)
	assert.Equal(t, 1, got[0].Line)
	// stacked layout: amount on the following line
	assert.InDelta(t, 45, got[1].Value, 1e-9)
	assert.Equal(t, 3, got[1].Line)
}

func TestTotalLadder(t *testing.T) {
	lines := []string{
		"GROUP TOTAL $99.00",
		"Total $40.00",
		"BALANCE DUE $45.00",
		"INVOICE TOTAL $50.00",
	}
	cands := FindTotalCandidates(lines)
	require.Len(t, cands, 3) // group total excluded
	best := FindBestTotal(lines)
	require.NotNil(t, best)
	assert.InDelta(t, 50, best.Value, 1e-9)
	assert.Equal(t, ConfidenceInvoiceTotal, best.Confidence)
}

func TestTotalLadderTiers(t *testing.T) {
	best := FindBestTotal([]string{"Total $40.00", "AMOUNT DUE $45.00"})
	require.NotNil(t, best)
	assert.Equal(t, ConfidenceAmountDue, best.Confidence)
	assert.InDelta(t, 45, best.Value, 1e-9)

	best = FindBestTotal([]string{"Total $40.00"})
	require.NotNil(t, best)
	assert.Equal(t, ConfidenceBareTotal, best.Confidence)

	assert.Nil(t, FindBestTotal([]string{"SUBTOTAL $40.00"}))
}

func TestFindTax(t *testing.T) {
	got := FindTax([]string{"Sales Tax $4.13"})
	require.NotNil(t, got)
	assert.InDelta(t, 4.13, got.Value, 1e-9)

	assert.Nil(t, FindTax([]string{"Tax ID: 12-3456789"}))
}

func TestDetectCurrency(t *testing.T) {
	assert.Equal(t, "EUR", DetectCurrency([]string{"Gesamt €120.00"}))
	assert.Equal(t, "GBP", DetectCurrency([]string{"Total £9.99"}))
	assert.Equal(t, "CAD", DetectCurrency([]string{"Total CAD 55.00"}))
	assert.Equal(t, "USD", DetectCurrency([]string{"no currency markers"}))
}

func TestIsAmountLabelLine(t *testing.T) {
	assert.True(t, IsAmountLabelLine("SUBTOTAL $30"))
	assert.True(t, IsAmountLabelLine("INVOICE TOTAL $50"))
	assert.True(t, IsAmountLabelLine("Sales Tax $4.13"))
	assert.False(t, IsAmountLabelLine("Widget A 2 $5.00 $10.00"))
}
