// Package money parses currency tokens out of invoice text.
package money

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Body grammar after sign/symbol/separator stripping. Anything else is not money.
var reBody = regexp.MustCompile(`^\d+(\.\d{1,4})?$`)

// ParseToken parses a single whitespace-delimited token into a signed amount.
// It strips thousands separators and currency symbols, and recognizes three
// negative forms: a parenthesized value, a leading minus, and a trailing CR
// suffix (a credit posting, so the value is negated). Non-numeric tokens
// return ok=false, never zero.
func ParseToken(tok string) (float64, bool) {
	s := strings.TrimSpace(tok)
	if s == "" {
		return 0, false
	}

	neg := false
	if up := strings.ToUpper(s); strings.HasSuffix(up, "CR") {
		s = strings.TrimSpace(s[:len(s)-2])
		neg = true
	}
	if len(s) > 2 && strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = s[1 : len(s)-1]
		neg = true
	}
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == '-' {
			neg = true
			s = s[size:]
			continue
		}
		if r == '$' || r == '£' || r == '€' {
			s = s[size:]
			continue
		}
		break
	}
	s = strings.ReplaceAll(s, ",", "")

	if !reBody.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// EndAmount is the rightmost money token found on a line.
type EndAmount struct {
	Value         float64
	Token         string
	Index         int // token index within the line
	OffsetFromEnd int // 0 means the last token
}

// FindLineEnd scans a line's tokens from the end and returns the first
// (rightmost) decimal-bearing token that parses as money. Integer tokens do
// not anchor an item line, so a line without a digit-decimal token yields nil.
func FindLineEnd(line string) *EndAmount {
	toks := strings.Fields(line)
	for i := len(toks) - 1; i >= 0; i-- {
		if !strings.Contains(toks[i], ".") {
			continue
		}
		if v, ok := ParseToken(toks[i]); ok {
			return &EndAmount{
				Value:         v,
				Token:         toks[i],
				Index:         i,
				OffsetFromEnd: len(toks) - 1 - i,
			}
		}
	}
	return nil
}

// ApproxEqual reports whether two amounts agree within rounding slack:
// two cents absolute, widening proportionally for large values so a
// rounded unit price times a big quantity still compares equal.
func ApproxEqual(a, b float64) bool {
	tol := 0.02
	if r := 0.002 * math.Abs(b); r > tol {
		tol = r
	}
	return math.Abs(a-b) <= tol
}

// DecimalTokens returns every decimal-bearing money value on the line, in order.
func DecimalTokens(line string) []float64 {
	var out []float64
	for _, tok := range strings.Fields(line) {
		if !strings.Contains(tok, ".") {
			continue
		}
		if v, ok := ParseToken(tok); ok {
			out = append(out, v)
		}
	}
	return out
}
