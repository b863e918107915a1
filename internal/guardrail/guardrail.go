// Package guardrail repairs truncated extractions after primary parsing.
// Heuristic parsers tend to stop at the first subtotal and silently drop a
// second item section; the guardrail measures how much of the document the
// winning parser actually consumed, re-walks the remainder for missed items,
// and cross-checks the recorded invoice total against the document's own
// total lines. It is best effort and never fails the run.
package guardrail

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/invopipe/invopipe/internal/anchors"
	"github.com/invopipe/invopipe/internal/entity"
	"github.com/invopipe/invopipe/internal/money"
)

const (
	// fullScanThreshold is the coverage percentage at or above which the
	// extension scan is skipped.
	fullScanThreshold = 70.0
	// reviewConfidenceFloor flags low-confidence attempts for human review.
	reviewConfidenceFloor = 70
	// maxSubtotalSections is how many subtotal blocks a document may carry
	// before it is considered multi-section and flagged for review.
	maxSubtotalSections = 2
)

// Guardrail is the post-parse completeness and total cross-check stage.
type Guardrail struct {
	logger *slog.Logger
}

// New returns a Guardrail logging through the given logger.
func New(logger *slog.Logger) *Guardrail {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guardrail{logger: logger}
}

// Apply inspects the winning attempt against the full document. When the
// parser consumed too little of it, lines past the stop point are re-walked
// and any money-bearing rows are appended as inferred items; recovered items
// never replace parsed ones. Independently, the strongest labeled total is
// adopted into the draft when it exceeds the recorded one, since
// under-extraction is far more common than over-extraction.
//
// Apply never returns an error. Any internal panic degrades to the original
// attempt with a report warning, so a guardrail defect can only cost the
// extension, never the run.
func (g *Guardrail) Apply(lines []string, attempt entity.ParseAttemptResult) (out entity.ParseAttemptResult, report *entity.GuardrailReport) {
	out = attempt
	report = &entity.GuardrailReport{
		ScanCompleteness: 100,
		LastParsedLine:   len(lines),
		TotalLines:       len(lines),
	}
	defer func() {
		if r := recover(); r != nil {
			out = attempt
			report.Applied = false
			report.ExtendedItems = 0
			report.TotalAdopted = false
			report.Warnings = append(report.Warnings, fmt.Sprintf("guardrail recovered from panic: %v", r))
			g.logger.Warn("guardrail panicked, no extension applied", "panic", r)
		}
	}()

	tracked := attempt.LastParsedLine >= 0 && len(lines) > 0
	if tracked {
		idx := attempt.LastParsedLine
		if idx >= len(lines) {
			idx = len(lines) - 1
		}
		report.LastParsedLine = idx + 1
		report.ScanCompleteness = float64(idx+1) / float64(len(lines)) * 100
	}

	report.FoundSubtotals = anchors.FindSubtotals(lines)
	report.FoundTotals = anchors.FindTotalCandidates(lines)

	if tracked && report.ScanCompleteness < fullScanThreshold {
		report.Applied = true
		extended := extendScan(lines, attempt.LastParsedLine+1)
		report.ExtendedItems = len(extended)
		if len(extended) > 0 {
			out.LineItems = append(append([]entity.LineItem{}, out.LineItems...), extended...)
			out.Evidence = append(append([]string{}, out.Evidence...),
				fmt.Sprintf("scan extended past line %d: %d items recovered", report.LastParsedLine, len(extended)))
		}
	}

	if best := anchors.FindBestTotal(lines); best != nil && adoptTotal(&out.Draft, best) {
		report.TotalAdopted = true
		out.Evidence = append(out.Evidence,
			fmt.Sprintf("%s %.2f adopted (line %d, confidence %d)", best.Label, best.Value, best.Line+1, best.Confidence))
	}

	report.NeedsReview, report.ReviewReasons = reviewReasons(report, out)

	if report.Applied || report.TotalAdopted {
		g.logger.Info("guardrail applied",
			"scan_completeness", fmt.Sprintf("%.1f", report.ScanCompleteness),
			"extended_items", report.ExtendedItems,
			"total_adopted", report.TotalAdopted,
			"needs_review", report.NeedsReview,
		)
	}
	return out, report
}

// adoptTotal overwrites the draft total with the candidate when the draft has
// none or the candidate is larger. A smaller candidate never wins: parsers
// that found a bigger number almost always found the real grand total.
func adoptTotal(draft *entity.Draft, best *entity.FoundAmount) bool {
	if draft.Total != nil && best.Value <= *draft.Total {
		return false
	}
	v := best.Value
	draft.Total = &v
	draft.TotalConfidence = best.Confidence
	return true
}

// extendScan walks lines[from:] and infers an item from every row carrying at
// least one decimal money token, skipping subtotal/tax/total label rows so
// summary amounts never become items.
func extendScan(lines []string, from int) []entity.LineItem {
	var out []entity.LineItem
	for i := from; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || anchors.IsAmountLabelLine(line) {
			continue
		}
		vals := money.DecimalTokens(line)
		if len(vals) == 0 {
			continue
		}
		if li := inferItem(line, vals, i); li != nil {
			out = append(out, *li)
		}
	}
	return out
}

// inferItem builds a line item from the residual non-numeric text plus the
// trailing money tokens: the last two act as unit price and line total, a
// lone token as both. Quantity is recovered when the total is a clean
// integer multiple of the unit, otherwise it defaults to one.
func inferItem(line string, vals []float64, idx int) *entity.LineItem {
	desc := residualText(line)
	if desc == "" {
		return nil
	}
	li := entity.LineItem{
		Description: desc,
		Quantity:    1,
		SourceLine:  idx,
	}
	if len(vals) >= 2 {
		unit := vals[len(vals)-2]
		total := vals[len(vals)-1]
		li.UnitPrice = unit
		li.LineTotal = &total
		if unit > 0 && total > 0 {
			if q := math.Round(total / unit); q >= 1 && money.ApproxEqual(q*unit, total) {
				li.Quantity = q
			}
		}
	} else {
		v := vals[0]
		li.UnitPrice = v
		li.LineTotal = &v
	}
	if !li.Valid() {
		return nil
	}
	return &li
}

// residualText strips every money-parseable token, including bare integers
// such as quantity columns, and returns what is left as the description.
func residualText(line string) string {
	var kept []string
	for _, tok := range strings.Fields(line) {
		if _, ok := money.ParseToken(tok); ok {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

func reviewReasons(report *entity.GuardrailReport, res entity.ParseAttemptResult) (bool, []string) {
	var reasons []string
	if report.ExtendedItems > 0 {
		reasons = append(reasons, fmt.Sprintf("scan extension recovered %d items", report.ExtendedItems))
	}
	if res.Confidence < reviewConfidenceFloor {
		reasons = append(reasons, fmt.Sprintf("confidence %.0f below %d", res.Confidence, reviewConfidenceFloor))
	}
	if priced, passed := arithmeticPasses(res.LineItems); priced > 0 && passed*2 < priced {
		reasons = append(reasons, fmt.Sprintf("arithmetic holds for %d of %d priced items", passed, priced))
	}
	if n := len(report.FoundSubtotals); n > maxSubtotalSections {
		reasons = append(reasons, fmt.Sprintf("%d subtotal sections found", n))
	}
	return len(reasons) > 0, reasons
}

// arithmeticPasses counts items carrying a printed line total and how many of
// them satisfy quantity times unit price within rounding slack.
func arithmeticPasses(items []entity.LineItem) (priced, passed int) {
	for _, li := range items {
		if li.LineTotal == nil {
			continue
		}
		priced++
		if money.ApproxEqual(li.Quantity*li.UnitPrice, *li.LineTotal) {
			passed++
		}
	}
	return priced, passed
}
