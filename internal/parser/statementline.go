package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/invopipe/invopipe/internal/anchors"
	"github.com/invopipe/invopipe/internal/entity"
	"github.com/invopipe/invopipe/internal/money"
)

var reLeadDate = regexp.MustCompile(`^(?:\d{4}-\d{2}-\d{2}|\d{1,2}[/-]\d{1,2}(?:[/-]\d{2,4})?)$`)

// StatementLine handles account statements and ledgers: date-led rows with
// a description and a trailing amount. Credit rows (CR suffix, parentheses)
// are recognized but not emitted as items.
type StatementLine struct{}

func (StatementLine) ID() string      { return "statement-line" }
func (StatementLine) Version() string { return "1.0.4" }

func (StatementLine) Match(in entity.NormalizedInput) MatchResult {
	if len(in.Lines) == 0 {
		return MatchResult{}
	}

	var nonEmpty, dated int
	for _, line := range in.Lines {
		if line == "" {
			continue
		}
		nonEmpty++
		if isStatementRow(line) {
			dated++
		}
	}
	if dated < 2 {
		return MatchResult{}
	}

	frac := float64(dated) / float64(nonEmpty)
	score := 0.15 + 0.7*frac
	if score > 1 {
		score = 1
	}
	return MatchResult{
		Score:   score,
		Reasons: []string{fmt.Sprintf("%d of %d lines are date-led amount rows", dated, nonEmpty)},
	}
}

func (StatementLine) Parse(in entity.NormalizedInput) (entity.ParseAttemptResult, error) {
	draft, evidence := draftFromLines(in.Lines)
	res := entity.ParseAttemptResult{Draft: draft, Evidence: evidence, LastParsedLine: -1}

	credits := 0
	for i, line := range in.Lines {
		res.LastParsedLine = i
		if line == "" {
			continue
		}
		if anchors.IsAmountLabelLine(line) {
			break
		}
		if !isStatementRow(line) {
			continue
		}

		toks := strings.Fields(line)
		end := money.FindLineEnd(line)
		amount := end.Value
		if end.Index+1 < len(toks) && strings.EqualFold(toks[end.Index+1], "CR") {
			amount = -amount // detached credit marker after the amount
		}
		if amount < 0 {
			credits++ // credit postings are not billable items
			continue
		}

		desc := strings.Join(toks[1:end.Index], " ")
		if desc == "" {
			continue
		}
		res.LineItems = append(res.LineItems, entity.LineItem{
			Description: desc,
			Quantity:    1,
			UnitPrice:   amount,
			LineTotal:   &amount,
			SourceLine:  i,
		})
	}

	if credits > 0 {
		res.Evidence = append(res.Evidence, fmt.Sprintf("%d credit rows skipped", credits))
	}
	if n := len(res.LineItems); n > 0 {
		res.Evidence = append(res.Evidence, fmt.Sprintf("%d statement rows", n))
	}
	res.Confidence = attemptConfidence(res.LineItems, draft, 30)
	return res, nil
}

// isStatementRow wants a bare date as the first token and a money amount
// at the line end. A detached trailing "CR" does not break the anchor since
// the scan walks past non-money tokens.
func isStatementRow(line string) bool {
	toks := strings.Fields(line)
	if len(toks) < 3 {
		return false
	}
	if !reLeadDate.MatchString(toks[0]) {
		return false
	}
	return money.FindLineEnd(line) != nil
}
