// Package anchors locates invoice header fields and money labels inside
// normalized line sequences. All scans are first-match and bounded to a
// line window so deep item tables cannot produce false header positives.
package anchors

import (
	"regexp"
	"strings"

	"github.com/invopipe/invopipe/internal/entity"
	"github.com/invopipe/invopipe/internal/money"
)

// Scan windows. Invoice/PO windows are tighter than the total-seeking
// window, which covers the trailing section since totals cluster at the end.
const (
	InvoiceNumberWindow = 40
	PONumberWindow      = 40
	DateWindow          = 50

	totalTailFraction = 0.4
	totalTailMinLines = 25
)

// Ladder confidences for total candidates.
const (
	ConfidenceInvoiceTotal = 95
	ConfidenceAmountDue    = 90
	ConfidenceBareTotal    = 70
	ConfidenceSubtotal     = 80
	ConfidenceTax          = 80
)

var (
	reInvoiceNo = regexp.MustCompile(`(?i)\binvoice\s*(?:#|no\.?|num(?:ber)?)?\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9\-/]*\d[A-Za-z0-9\-/]*)`)
	reInvShort  = regexp.MustCompile(`(?i)\b(INV[-#]?\d[\w-]*)\b`)
	rePONumber  = regexp.MustCompile(`(?i)\b(?:p\.?o\.?|purchase\s+order)\s*(?:#|no\.?|num(?:ber)?)?\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9\-/]*\d[A-Za-z0-9\-/]*)`)

	reDateNumeric = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`)
	reDateWordy   = regexp.MustCompile(`(?i)\b((?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{1,2},?\s+\d{4}|\d{1,2}\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+\d{4})\b`)
	reDateLabel   = regexp.MustCompile(`(?i)\b(?:invoice\s+)?date\b`)

	reSubtotal    = regexp.MustCompile(`(?i)\bsub[\s-]?total\b`)
	reTaxLabel    = regexp.MustCompile(`(?i)\b(?:sales\s+)?tax\b|\bvat\b|\bgst\b|\bhst\b`)
	reTaxExclude  = regexp.MustCompile(`(?i)\btax(?:payer)?\s*(?:id|no\.?|number|identification)\b|\btax\s+invoice\b`)
	reInvoiceTot  = regexp.MustCompile(`(?i)\binvoice\s+total\b`)
	reAmountDue   = regexp.MustCompile(`(?i)\btotal\s+usd\b|\bamount\s+due\b|\bbalance\s+due\b|\btotal\s+due\b`)
	reBareTotal   = regexp.MustCompile(`(?i)\btotal\b`)
	reTotExcluded = regexp.MustCompile(`(?i)\bsub[\s-]?total\b|\bgroup\b|\bdepartment\b|\bdept\b`)

	reCurrencyISO = regexp.MustCompile(`(?i)\b(USD|EUR|GBP|CAD|AUD|INR|JPY)\b`)
)

// Anchor is a located header value.
type Anchor struct {
	Value string
	Line  int
}

func window(lines []string, max int) []string {
	if len(lines) > max {
		return lines[:max]
	}
	return lines
}

// FindInvoiceNumber scans the first InvoiceNumberWindow lines.
func FindInvoiceNumber(lines []string) *Anchor {
	for i, line := range window(lines, InvoiceNumberWindow) {
		if m := reInvoiceNo.FindStringSubmatch(line); m != nil && !isDateShaped(m[1]) {
			return &Anchor{Value: m[1], Line: i}
		}
		if m := reInvShort.FindStringSubmatch(line); m != nil {
			return &Anchor{Value: m[1], Line: i}
		}
	}
	return nil
}

// FindPONumber scans the first PONumberWindow lines.
func FindPONumber(lines []string) *Anchor {
	for i, line := range window(lines, PONumberWindow) {
		if m := rePONumber.FindStringSubmatch(line); m != nil && !isDateShaped(m[1]) {
			return &Anchor{Value: m[1], Line: i}
		}
	}
	return nil
}

// isDateShaped guards against "Invoice 12/31/2024" capturing the date as an id.
func isDateShaped(v string) bool {
	return reDateNumeric.FindString(v) == v
}

// FindDocumentDate scans the first DateWindow lines, preferring lines that
// carry a date label over bare date-shaped tokens.
func FindDocumentDate(lines []string) *Anchor {
	scoped := window(lines, DateWindow)
	for i, line := range scoped {
		if !reDateLabel.MatchString(line) {
			continue
		}
		if v := firstDate(line); v != "" {
			return &Anchor{Value: v, Line: i}
		}
	}
	for i, line := range scoped {
		if v := firstDate(line); v != "" {
			return &Anchor{Value: v, Line: i}
		}
	}
	return nil
}

func firstDate(line string) string {
	if m := reDateNumeric.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	if m := reDateWordy.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

// TotalSeekStart returns the first line index of the trailing total-seeking
// window for a document of n lines.
func TotalSeekStart(n int) int {
	w := int(float64(n) * totalTailFraction)
	if w < totalTailMinLines {
		w = totalTailMinLines
	}
	start := n - w
	if start < 0 {
		start = 0
	}
	return start
}

// FindSubtotals returns every subtotal label with a resolvable amount,
// scanning the whole document since multi-section invoices repeat them.
func FindSubtotals(lines []string) []entity.FoundAmount {
	var out []entity.FoundAmount
	for i, line := range lines {
		if !reSubtotal.MatchString(line) {
			continue
		}
		if amt := labeledAmount(lines, i); amt != nil {
			out = append(out, entity.FoundAmount{
				Label:      "subtotal",
				Value:      *amt,
				Line:       i,
				Confidence: ConfidenceSubtotal,
			})
		}
	}
	return out
}

// FindTax scans the trailing window for a tax line carrying an amount.
func FindTax(lines []string) *entity.FoundAmount {
	for i := TotalSeekStart(len(lines)); i < len(lines); i++ {
		line := lines[i]
		if !reTaxLabel.MatchString(line) || reTaxExclude.MatchString(line) {
			continue
		}
		if amt := labeledAmount(lines, i); amt != nil {
			return &entity.FoundAmount{Label: "tax", Value: *amt, Line: i, Confidence: ConfidenceTax}
		}
	}
	return nil
}

// FindTotalCandidates collects total candidates from the trailing window with
// ladder confidences: explicit "invoice total" beats due/USD phrasing, which
// beats a bare "total" that is not a subtotal/group/department variant.
func FindTotalCandidates(lines []string) []entity.FoundAmount {
	var out []entity.FoundAmount
	for i := TotalSeekStart(len(lines)); i < len(lines); i++ {
		line := lines[i]
		conf, label := totalTier(line)
		if conf == 0 {
			continue
		}
		if amt := labeledAmount(lines, i); amt != nil {
			out = append(out, entity.FoundAmount{Label: label, Value: *amt, Line: i, Confidence: conf})
		}
	}
	return out
}

func totalTier(line string) (int, string) {
	switch {
	case reInvoiceTot.MatchString(line):
		return ConfidenceInvoiceTotal, "invoice_total"
	case reAmountDue.MatchString(line):
		return ConfidenceAmountDue, "amount_due"
	case reBareTotal.MatchString(line) && !reTotExcluded.MatchString(line):
		return ConfidenceBareTotal, "total"
	}
	return 0, ""
}

// FindBestTotal returns the strongest candidate: highest confidence first,
// then the larger value, since under-extraction is the common failure.
func FindBestTotal(lines []string) *entity.FoundAmount {
	cands := FindTotalCandidates(lines)
	if len(cands) == 0 {
		return nil
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Confidence > best.Confidence || (c.Confidence == best.Confidence && c.Value > best.Value) {
			best = c
		}
	}
	return &best
}

// DetectCurrency returns an ISO currency code guessed from explicit codes or
// symbols, defaulting to USD.
func DetectCurrency(lines []string) string {
	for _, line := range lines {
		if m := reCurrencyISO.FindStringSubmatch(line); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	for _, line := range lines {
		switch {
		case strings.ContainsRune(line, '£'):
			return "GBP"
		case strings.ContainsRune(line, '€'):
			return "EUR"
		case strings.ContainsRune(line, '$'):
			return "USD"
		}
	}
	return "USD"
}

// labeledAmount resolves the amount for a label at line i: the rightmost
// parseable token on the line, else on the next line for stacked layouts.
// Integer amounts are allowed here; only item-line anchoring requires decimals.
func labeledAmount(lines []string, i int) *float64 {
	if v := lineEndAny(lines[i]); v != nil {
		return v
	}
	if i+1 < len(lines) {
		return lineEndAny(lines[i+1])
	}
	return nil
}

func lineEndAny(line string) *float64 {
	toks := strings.Fields(line)
	for i := len(toks) - 1; i >= 0; i-- {
		if v, ok := money.ParseToken(toks[i]); ok {
			return &v
		}
	}
	return nil
}

// IsAmountLabelLine reports whether the line is a subtotal/tax/total label
// line. The extension scan skips these so label amounts never become items.
func IsAmountLabelLine(line string) bool {
	if reSubtotal.MatchString(line) {
		return true
	}
	if conf, _ := totalTier(line); conf > 0 {
		return true
	}
	if reTaxLabel.MatchString(line) && !reTaxExclude.MatchString(line) {
		return true
	}
	return false
}
