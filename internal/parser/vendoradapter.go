package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/invopipe/invopipe/internal/anchors"
	"github.com/invopipe/invopipe/internal/entity"
	"github.com/invopipe/invopipe/internal/money"
)

// vendorProfile captures a known layout family as data: activation
// keywords plus an item-row pattern with named groups. The plugin stays
// generic; adding a vendor means adding a profile.
type vendorProfile struct {
	name     string
	keywords []string // lowercase; any hit activates the profile
	itemRe   *regexp.Regexp
}

var builtinProfiles = []vendorProfile{
	{
		name:     "distributor-grid",
		keywords: []string{"packing list", "ship via", "case pack", "freight terms"},
		itemRe: regexp.MustCompile(
			`^(?P<sku>[A-Z0-9][A-Z0-9\-]{2,})\s+(?P<desc>.+?)\s+(?P<qty>\d+(?:\.\d+)?)\s+(?P<uom>[A-Za-z]{1,4})\s+\$?(?P<unit>\d[\d,]*\.\d{2})\s+\$?(?P<total>\d[\d,]*\.\d{2})$`),
	},
	{
		name:     "service-billing",
		keywords: []string{"service period", "billing period", "hourly rate", "labor"},
		itemRe: regexp.MustCompile(
			`^(?P<desc>.+?)\s+(?P<qty>\d+(?:\.\d+)?)\s+(?:hrs?|hours)\s+@?\s*\$?(?P<unit>\d[\d,]*\.\d{2})\s+\$?(?P<total>\d[\d,]*\.\d{2})$`),
	},
	{
		name:     "utility-summary",
		keywords: []string{"meter", "usage charge", "kwh", "service address"},
		itemRe: regexp.MustCompile(
			`^(?P<desc>[A-Za-z][A-Za-z /\-]+?)\s+(?P<qty>\d+(?:\.\d+)?)\s*(?P<uom>(?i:kwh|ccf|gal|therms?))\s+@?\s*\$?(?P<unit>\d[\d,]*\.\d{2,4})\s+\$?(?P<total>\d[\d,]*\.\d{2})$`),
	},
}

// VendorAdapter applies keyword-selected vendor layout profiles. It scores
// high only when a profile activates, so it never shadows the structural
// plugins on generic documents.
type VendorAdapter struct{}

func (VendorAdapter) ID() string      { return "vendor-adapter" }
func (VendorAdapter) Version() string { return "0.9.0" }

func (VendorAdapter) Match(in entity.NormalizedInput) MatchResult {
	profile, keyword, line := detectProfile(in.Lines)
	if profile == nil {
		return MatchResult{}
	}

	score := 0.85
	reasons := []string{fmt.Sprintf("profile %s keyword %q (line %d)", profile.name, keyword, line+1)}
	for _, l := range in.Lines {
		if profile.itemRe.MatchString(l) {
			score = 0.95
			reasons = append(reasons, "profile item pattern confirmed")
			break
		}
	}
	return MatchResult{Score: score, Reasons: reasons}
}

func (VendorAdapter) Parse(in entity.NormalizedInput) (entity.ParseAttemptResult, error) {
	draft, evidence := draftFromLines(in.Lines)
	res := entity.ParseAttemptResult{Draft: draft, Evidence: evidence, LastParsedLine: -1}

	profile, _, _ := detectProfile(in.Lines)
	if profile == nil {
		res.Confidence = 5
		return res, nil
	}
	res.Evidence = append(res.Evidence, fmt.Sprintf("vendor profile %s", profile.name))

	names := profile.itemRe.SubexpNames()
	for i, line := range in.Lines {
		res.LastParsedLine = i
		if line == "" {
			continue
		}
		if anchors.IsAmountLabelLine(line) {
			break
		}
		m := profile.itemRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		item := entity.LineItem{SourceLine: i}
		for gi, name := range names {
			if gi == 0 || gi >= len(m) || m[gi] == "" {
				continue
			}
			switch name {
			case "sku":
				item.SKU = m[gi]
			case "desc":
				item.Description = strings.TrimSpace(m[gi])
			case "uom":
				item.UOM = strings.ToUpper(m[gi])
			case "qty":
				if qty, ok := parseQty(m[gi]); ok {
					item.Quantity = qty
				}
			case "unit":
				if v, ok := money.ParseToken(m[gi]); ok {
					item.UnitPrice = v
				}
			case "total":
				if v, ok := money.ParseToken(m[gi]); ok {
					item.LineTotal = &v
				}
			}
		}
		if item.Description == "" || item.Quantity <= 0 {
			continue
		}
		res.LineItems = append(res.LineItems, item)
	}

	// profile rows are precise, so a hit is worth more than a generic scan
	res.Confidence = attemptConfidence(res.LineItems, draft, 45)
	return res, nil
}

func detectProfile(lines []string) (*vendorProfile, string, int) {
	for i, line := range lines {
		l := strings.ToLower(line)
		for pi := range builtinProfiles {
			for _, kw := range builtinProfiles[pi].keywords {
				if strings.Contains(l, kw) {
					return &builtinProfiles[pi], kw, i
				}
			}
		}
	}
	return nil, "", 0
}
