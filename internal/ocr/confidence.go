package ocr

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reDate   = regexp.MustCompile(`\b\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}\b|\b20\d{2}\b`)
	reCurr   = regexp.MustCompile(`\b(usd|eur|gbp|cad|aud|inr|jpy)\b|[$£€]`)
	reAmount = regexp.MustCompile(`\b\d{1,3}(,\d{3})*\.\d{2}\b|\b\d+\.\d{2}\b`)
)

// Horizontal rules and tear-off lines that tesseract reads back as
// underscore or dash runs.
var reBoxNoise = regexp.MustCompile(`(?m)^\s*[_\-]{3,}\s*$`)

func hasDatePattern(s string) bool     { return reDate.MatchString(s) }
func hasCurrencyPattern(s string) bool { return reCurr.MatchString(s) }
func hasAmountPattern(s string) bool   { return reAmount.MatchString(s) }

// heuristicConfidence scores recognized text on invoice-shaped signals:
// dates, currency markers, money amounts, and sheer content volume.
func heuristicConfidence(txt string) float32 {
	txtL := strings.ToLower(txt)
	score := float32(0.2) // base
	if hasDatePattern(txtL) {
		score += 0.2
	}
	if hasCurrencyPattern(txtL) {
		score += 0.15
	}
	if hasAmountPattern(txtL) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	} // enough content
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// blendConfidence mixes the recognizer's own word confidence with the
// text-shape heuristic, weighted toward the recognizer.
func blendConfidence(ocrConf, heurConf float32) float32 {
	if ocrConf <= 0 {
		return heurConf
	}
	c := 0.7*ocrConf + 0.3*heurConf
	if c > 1.0 {
		c = 1.0
	}
	return c
}

// printableRatio is the fraction of non-space runes that are letters,
// digits, or common punctuation. Subsetted fonts and broken encodings in
// a PDF text layer decode as control runes and replacement characters,
// which drag the ratio down.
func printableRatio(s string) float64 {
	var total, printable int
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if r == unicode.ReplacementChar {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(printable) / float64(total)
}
