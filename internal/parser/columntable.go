package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/invopipe/invopipe/internal/anchors"
	"github.com/invopipe/invopipe/internal/entity"
	"github.com/invopipe/invopipe/internal/money"
)

var reColumnHeader = regexp.MustCompile(`(?i)\b(qty|quantity|description|item)\b.*\b(unit|price|rate|amount|total|ext)\b`)

// ColumnTable handles the classic ruled-table layout: one item per line
// with description, quantity, unit price, and extended total in columns.
type ColumnTable struct{}

func (ColumnTable) ID() string      { return "column-table" }
func (ColumnTable) Version() string { return "1.3.0" }

func (ColumnTable) Match(in entity.NormalizedInput) MatchResult {
	if len(in.Lines) == 0 {
		return MatchResult{}
	}

	var moneyLines, columnar int
	headerLine := -1
	for i, line := range in.Lines {
		if headerLine < 0 && reColumnHeader.MatchString(line) {
			headerLine = i
		}
		if money.FindLineEnd(line) == nil {
			continue
		}
		moneyLines++
		if _, ok := columnarItem(line); ok {
			columnar++
		}
	}

	var score float64
	var reasons []string
	if columnar >= 1 && moneyLines > 0 {
		frac := float64(columnar) / float64(moneyLines)
		score = 0.15 + 0.6*frac
		reasons = append(reasons, fmt.Sprintf("%d of %d money lines have qty/unit/total columns", columnar, moneyLines))
	}
	if headerLine >= 0 {
		score += 0.25
		reasons = append(reasons, fmt.Sprintf("column header at line %d", headerLine+1))
	}
	if score > 1 {
		score = 1
	}
	return MatchResult{Score: score, Reasons: reasons}
}

func (ColumnTable) Parse(in entity.NormalizedInput) (entity.ParseAttemptResult, error) {
	draft, evidence := draftFromLines(in.Lines)
	res := entity.ParseAttemptResult{Draft: draft, Evidence: evidence, LastParsedLine: -1}

	for i, line := range in.Lines {
		res.LastParsedLine = i
		if line == "" {
			continue
		}
		if anchors.IsAmountLabelLine(line) {
			break // the table ends where the totals block starts
		}
		item, ok := columnarItem(line)
		if !ok {
			continue
		}
		item.SourceLine = i
		res.LineItems = append(res.LineItems, item)
	}

	if n := len(res.LineItems); n > 0 {
		res.Evidence = append(res.Evidence, fmt.Sprintf("%d columnar item lines", n))
	}
	res.Confidence = attemptConfidence(res.LineItems, draft, 35)
	return res, nil
}

// columnarItem reads a "DESC .. QTY [UOM] UNIT TOTAL" line backwards from
// its trailing money anchor: a decimal unit price immediately left of the
// total, a bare quantity left of that (optionally separated by a unit of
// measure), and description text before the quantity.
func columnarItem(line string) (entity.LineItem, bool) {
	end := money.FindLineEnd(line)
	if end == nil || end.OffsetFromEnd != 0 {
		return entity.LineItem{}, false
	}
	toks := strings.Fields(line)
	if end.Index < 3 {
		return entity.LineItem{}, false
	}

	unitTok := toks[end.Index-1]
	if !strings.Contains(unitTok, ".") {
		return entity.LineItem{}, false
	}
	unit, ok := money.ParseToken(unitTok)
	if !ok || unit < 0 {
		return entity.LineItem{}, false
	}

	qtyIdx := end.Index - 2
	uom := ""
	if reUOM.MatchString(toks[qtyIdx]) && qtyIdx >= 1 {
		uom = strings.ToUpper(toks[qtyIdx])
		qtyIdx--
	}
	qty, ok := parseQty(toks[qtyIdx])
	if !ok {
		return entity.LineItem{}, false
	}

	descToks := toks[:qtyIdx]
	if len(descToks) == 0 {
		return entity.LineItem{}, false
	}

	item := entity.LineItem{
		Quantity:  qty,
		UnitPrice: unit,
		UOM:       uom,
	}
	if len(descToks) >= 2 && looksLikeSKU(descToks[0]) {
		item.SKU = descToks[0]
		descToks = descToks[1:]
	}
	item.Description = strings.Join(descToks, " ")
	total := end.Value
	item.LineTotal = &total
	return item, true
}
