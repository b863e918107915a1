// Package normalize turns raw document text into the canonical line
// sequence every parser plugin consumes.
package normalize

import (
	"regexp"
	"strings"

	"github.com/invopipe/invopipe/constants"
	"github.com/invopipe/invopipe/internal/entity"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
)

// Lines collapses noisy whitespace and splits raw into trimmed lines.
// Interior blank lines are preserved as explicit empty strings because
// downstream scan arithmetic indexes into the slice; only leading and
// trailing blank lines are dropped. Empty input yields an empty slice.
func Lines(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	s := reCRLF.ReplaceAllString(raw, "\n")
	s = strings.ReplaceAll(s, "\f", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	start, end := 0, len(lines)
	for start < end && lines[start] == "" {
		start++
	}
	for end > start && lines[end-1] == "" {
		end--
	}
	return lines[start:end]
}

// Input derives the immutable NormalizedInput for one pipeline run.
func Input(raw string, source constants.SourceType, meta map[string]string) entity.NormalizedInput {
	lines := Lines(raw)
	return entity.NormalizedInput{
		Text:       strings.Join(lines, "\n"),
		Lines:      lines,
		SourceType: source,
		Meta:       meta,
	}
}
