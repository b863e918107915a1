package entity

import (
	"github.com/invopipe/invopipe/constants"
)

// NormalizedInput is the canonical line-oriented view of a document's text.
// Derived once per run and immutable thereafter; Lines order is significant
// because downstream scan arithmetic indexes into it.
type NormalizedInput struct {
	Text       string               `json:"text"`
	Lines      []string             `json:"lines"`
	SourceType constants.SourceType `json:"source_type"`
	Meta       map[string]string    `json:"meta,omitempty"`
}
