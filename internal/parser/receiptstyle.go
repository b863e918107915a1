package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/invopipe/invopipe/internal/anchors"
	"github.com/invopipe/invopipe/internal/entity"
	"github.com/invopipe/invopipe/internal/money"
)

var (
	reReceiptWord = regexp.MustCompile(`(?i)\b(cash|change|card|visa|mastercard|debit|credit|tender|cashier|register|lane|store\s*#|thank\s+you)\b`)
	reQtyAt       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:x|@)\s*\$?(\d[\d,]*(?:\.\d{1,4})?)`)
)

// Thermal receipts are narrow; long average lines rule the layout out.
const receiptLineWidth = 34

// ReceiptStyle handles narrow point-of-sale receipts: item name and price
// on one line, quantities spelled as "2 x 4.50" or "1.25 @ 2.99".
type ReceiptStyle struct{}

func (ReceiptStyle) ID() string      { return "receipt-style" }
func (ReceiptStyle) Version() string { return "1.2.1" }

func (ReceiptStyle) Match(in entity.NormalizedInput) MatchResult {
	if len(in.Lines) == 0 {
		return MatchResult{}
	}

	var nonEmpty, short, moneyLines, keywords, qtyAt int
	for _, line := range in.Lines {
		if line == "" {
			continue
		}
		nonEmpty++
		if len(line) <= receiptLineWidth {
			short++
		}
		if money.FindLineEnd(line) != nil {
			moneyLines++
		}
		if reReceiptWord.MatchString(line) {
			keywords++
		}
		if reQtyAt.MatchString(line) {
			qtyAt++
		}
	}
	if nonEmpty == 0 || moneyLines == 0 {
		return MatchResult{}
	}

	shortFrac := float64(short) / float64(nonEmpty)
	score := 0.45 * shortFrac
	var reasons []string
	reasons = append(reasons, fmt.Sprintf("%.0f%% of lines fit receipt width", shortFrac*100))
	if keywords > 0 {
		k := float64(keywords)
		if k > 3 {
			k = 3
		}
		score += 0.12 * k
		reasons = append(reasons, fmt.Sprintf("%d point-of-sale keywords", keywords))
	}
	if qtyAt > 0 {
		score += 0.2
		reasons = append(reasons, fmt.Sprintf("%d quantity-at-price lines", qtyAt))
	}
	if score > 1 {
		score = 1
	}
	return MatchResult{Score: score, Reasons: reasons}
}

func (ReceiptStyle) Parse(in entity.NormalizedInput) (entity.ParseAttemptResult, error) {
	draft, evidence := draftFromLines(in.Lines)
	res := entity.ParseAttemptResult{Draft: draft, Evidence: evidence, LastParsedLine: -1}

	for i, line := range in.Lines {
		res.LastParsedLine = i
		if line == "" {
			continue
		}
		if anchors.IsAmountLabelLine(line) {
			break
		}
		if reReceiptWord.MatchString(line) {
			continue // tender/change rows carry amounts but are not items
		}

		end := money.FindLineEnd(line)
		if end == nil {
			continue
		}
		toks := strings.Fields(line)

		item := entity.LineItem{Quantity: 1, UnitPrice: end.Value, SourceLine: i}
		total := end.Value
		item.LineTotal = &total

		desc := strings.Join(toks[:end.Index], " ")
		if m := reQtyAt.FindStringSubmatchIndex(line); m != nil {
			if qty, ok := parseQty(line[m[2]:m[3]]); ok {
				if unit, uok := money.ParseToken(line[m[4]:m[5]]); uok && unit >= 0 {
					item.Quantity = qty
					item.UnitPrice = unit
					desc = strings.TrimSpace(line[:m[0]])
					if strings.TrimSpace(line[m[1]:]) == "" {
						// "2 x 4.50" ends the line, no printed extension
						ext := qty * unit
						item.LineTotal = &ext
					}
				}
			}
		}
		desc = strings.TrimSpace(desc)
		if desc == "" {
			continue
		}
		item.Description = desc
		res.LineItems = append(res.LineItems, item)
	}

	if n := len(res.LineItems); n > 0 {
		res.Evidence = append(res.Evidence, fmt.Sprintf("%d receipt item lines", n))
	}
	res.Confidence = attemptConfidence(res.LineItems, draft, 28)
	return res, nil
}
