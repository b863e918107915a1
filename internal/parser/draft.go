package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/invopipe/invopipe/internal/anchors"
	"github.com/invopipe/invopipe/internal/entity"
	"github.com/invopipe/invopipe/internal/money"
)

// draftFromLines assembles the header draft every layout plugin shares:
// identity anchors from the leading window, amount anchors from the
// trailing window, currency from anywhere.
func draftFromLines(lines []string) (entity.Draft, []string) {
	var d entity.Draft
	var evidence []string

	if a := anchors.FindInvoiceNumber(lines); a != nil {
		d.InvoiceNumber = a.Value
		evidence = append(evidence, fmt.Sprintf("invoice number %q (line %d)", a.Value, a.Line+1))
	}
	if a := anchors.FindPONumber(lines); a != nil {
		d.PONumber = a.Value
		evidence = append(evidence, fmt.Sprintf("po number %q (line %d)", a.Value, a.Line+1))
	}
	if a := anchors.FindDocumentDate(lines); a != nil {
		d.DocumentDate = a.Value
		evidence = append(evidence, fmt.Sprintf("document date %q (line %d)", a.Value, a.Line+1))
	}
	if v := guessVendor(lines); v != "" {
		d.VendorName = v
	}
	d.CurrencyCode = anchors.DetectCurrency(lines)

	if subs := anchors.FindSubtotals(lines); len(subs) > 0 {
		v := subs[len(subs)-1].Value
		d.Subtotal = &v
	}
	if tax := anchors.FindTax(lines); tax != nil {
		v := tax.Value
		d.Tax = &v
	}
	if best := anchors.FindBestTotal(lines); best != nil {
		v := best.Value
		d.Total = &v
		d.TotalConfidence = best.Confidence
		evidence = append(evidence, fmt.Sprintf("%s %.2f (line %d, confidence %d)", best.Label, best.Value, best.Line+1, best.Confidence))
	}
	return d, evidence
}

const vendorScanWindow = 10

var reVendorNoise = regexp.MustCompile(`(?i)\b(invoice|receipt|statement|bill\s+to|ship\s+to|sold\s+to|remit|page\s+\d)\b`)

// guessVendor takes the first letter-heavy line near the top that is not
// invoice boilerplate, an amount label, or a money-bearing row. Vendor
// names head most layouts; when they don't, an empty guess is fine.
func guessVendor(lines []string) string {
	for i, line := range lines {
		if i >= vendorScanWindow {
			break
		}
		if len(line) < 3 || len(line) > 60 {
			continue
		}
		if reVendorNoise.MatchString(line) || anchors.IsAmountLabelLine(line) {
			continue
		}
		if money.FindLineEnd(line) != nil {
			continue
		}
		letters := 0
		for _, r := range line {
			if unicode.IsLetter(r) {
				letters++
			}
		}
		if letters*2 >= len(line) {
			return line
		}
	}
	return ""
}

var (
	reSKU = regexp.MustCompile(`^[A-Z0-9][A-Z0-9\-]{2,}$`)
	reUOM = regexp.MustCompile(`^(?i)(ea|cs|bx|pk|dz|lb|kg|oz|g|hr|hrs|pc|pcs|ct|gal|l|m|ft|yd|rm|set)$`)
)

// looksLikeSKU wants at least one digit so plain words in caps don't read
// as part numbers.
func looksLikeSKU(tok string) bool {
	if !reSKU.MatchString(tok) {
		return false
	}
	return strings.ContainsAny(tok, "0123456789")
}

// parseQty parses a bare quantity token: plain digits with an optional
// decimal part, no signs, symbols, or separators.
func parseQty(tok string) (float64, bool) {
	if tok == "" || strings.ContainsAny(tok, "$£€,()-") {
		return 0, false
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || v <= 0 || v >= 100000 {
		return 0, false
	}
	return v, true
}

// arithmeticAgreement is the fraction of items whose quantity times unit
// price matches their line total, used as a confidence signal.
func arithmeticAgreement(items []entity.LineItem) float64 {
	if len(items) == 0 {
		return 0
	}
	ok := 0
	for _, it := range items {
		if it.LineTotal != nil && money.ApproxEqual(it.Quantity*it.UnitPrice, *it.LineTotal) {
			ok++
		}
	}
	return float64(ok) / float64(len(items))
}

// attemptConfidence maps item volume, arithmetic agreement, and draft
// completeness onto the canonical 0-100 attempt scale.
func attemptConfidence(items []entity.LineItem, draft entity.Draft, base float64) float64 {
	if len(items) == 0 {
		return 5
	}
	conf := base
	conf += math.Min(30, float64(len(items))*6)
	conf += 20 * arithmeticAgreement(items)
	if draft.Total != nil {
		conf += 10
	}
	if draft.InvoiceNumber != "" {
		conf += 5
	}
	if conf > 100 {
		conf = 100
	}
	return conf
}
