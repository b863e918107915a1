package parser

import (
	"fmt"
	"strings"

	"github.com/invopipe/invopipe/internal/anchors"
	"github.com/invopipe/invopipe/internal/entity"
	"github.com/invopipe/invopipe/internal/money"
)

// How many preceding text-only lines can wrap into one item description.
const maxWrappedLines = 2

// WrappedLine handles layouts where the description runs long and wraps,
// with the amounts landing on the final line of each item block.
type WrappedLine struct{}

func (WrappedLine) ID() string      { return "wrapped-line" }
func (WrappedLine) Version() string { return "1.1.2" }

func (WrappedLine) Match(in entity.NormalizedInput) MatchResult {
	if len(in.Lines) == 0 {
		return MatchResult{}
	}

	var moneyLines, wrapped, columnar int
	for i, line := range in.Lines {
		if money.FindLineEnd(line) == nil {
			continue
		}
		moneyLines++
		if _, ok := columnarItem(line); ok {
			columnar++
		}
		if i > 0 && in.Lines[i-1] != "" && money.FindLineEnd(in.Lines[i-1]) == nil && !anchors.IsAmountLabelLine(line) {
			wrapped++
		}
	}
	if moneyLines == 0 || wrapped == 0 {
		return MatchResult{}
	}

	frac := float64(wrapped) / float64(moneyLines)
	score := 0.1 + 0.55*frac
	// a strongly columnar document belongs to the table plugin
	score -= 0.3 * float64(columnar) / float64(moneyLines)
	if score < 0 {
		score = 0
	}
	reasons := []string{fmt.Sprintf("%d of %d amount lines follow wrapped text", wrapped, moneyLines)}
	return MatchResult{Score: score, Reasons: reasons}
}

func (WrappedLine) Parse(in entity.NormalizedInput) (entity.ParseAttemptResult, error) {
	draft, evidence := draftFromLines(in.Lines)
	res := entity.ParseAttemptResult{Draft: draft, Evidence: evidence, LastParsedLine: -1}

	var pending []string
	for i, line := range in.Lines {
		res.LastParsedLine = i
		if line == "" {
			pending = pending[:0] // paragraph break
			continue
		}
		if anchors.IsAmountLabelLine(line) {
			break
		}

		end := money.FindLineEnd(line)
		if end == nil {
			pending = append(pending, line)
			if len(pending) > maxWrappedLines {
				pending = pending[len(pending)-maxWrappedLines:]
			}
			continue
		}

		item := wrappedItem(line, end, pending)
		pending = pending[:0]
		if item == nil {
			continue
		}
		item.SourceLine = i
		res.LineItems = append(res.LineItems, *item)
	}

	if n := len(res.LineItems); n > 0 {
		res.Evidence = append(res.Evidence, fmt.Sprintf("%d wrapped item blocks", n))
	}
	res.Confidence = attemptConfidence(res.LineItems, draft, 30)
	return res, nil
}

// wrappedItem assembles an item from an amount-bearing line plus the text
// lines wrapped above it. Quantity and unit price come from the amount
// line when it carries them, otherwise the single amount is the total of a
// quantity-one item.
func wrappedItem(line string, end *money.EndAmount, pending []string) *entity.LineItem {
	toks := strings.Fields(line)

	item := entity.LineItem{Quantity: 1, UnitPrice: end.Value}
	total := end.Value
	item.LineTotal = &total

	descEnd := end.Index
	if end.Index >= 2 && strings.Contains(toks[end.Index-1], ".") {
		if unit, ok := money.ParseToken(toks[end.Index-1]); ok && unit >= 0 {
			if qty, qok := parseQty(toks[end.Index-2]); qok {
				item.Quantity = qty
				item.UnitPrice = unit
				descEnd = end.Index - 2
			}
		}
	}

	desc := strings.TrimSpace(strings.Join(append(append([]string{}, pending...), strings.Join(toks[:descEnd], " ")), " "))
	if desc == "" {
		return nil
	}
	item.Description = desc
	return &item
}
