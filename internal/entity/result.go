package entity

import (
	"github.com/invopipe/invopipe/constants"
)

// ResultVersion is the version tag stamped on every UnifiedResult.
const ResultVersion = "1"

// RawTextPreviewLimit caps extracted.raw_text_preview in bytes.
const RawTextPreviewLimit = 2000

// ExtractedMeta describes how the text behind the extraction was obtained.
type ExtractedMeta struct {
	Method     constants.ExtractionMethod `json:"method"`
	Pages      int                        `json:"pages"`
	Language   string                     `json:"language,omitempty"`
	Confidence float32                    `json:"confidence"` // 0..1 text confidence
	Variant    string                     `json:"variant,omitempty"`
	Draft      *Draft                     `json:"draft,omitempty"`
	Warnings   []string                   `json:"warnings,omitempty"`
}

// Extracted is the raw extraction half of a UnifiedResult.
type Extracted struct {
	Items          []LineItem    `json:"items"`
	RawTextLength  int           `json:"raw_text_length"`
	RawTextPreview string        `json:"raw_text_preview"`
	Meta           ExtractedMeta `json:"meta"`
}

// Validation reports the canonical-validation outcome for the accepted candidate.
type Validation struct {
	Attempted bool     `json:"attempted"`
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
}

// Debug carries run diagnostics. Field names are part of the output contract.
type Debug struct {
	ParserUsed       string             `json:"parserUsed"`
	ParsedItemsCount int                `json:"parsedItemsCount"`
	UsedOCR          bool               `json:"usedOcr"`
	ParserCandidates []Attempt          `json:"parserCandidates"`
	OCRDecision      string             `json:"ocrDecision,omitempty"`
	NeedsReview      bool               `json:"needsReview"`
	Quality          *QualityAssessment `json:"quality,omitempty"`
	Guardrail        *GuardrailReport   `json:"guardrail,omitempty"`
	DurationMS       int64              `json:"durationMs"`
}

// Artifacts points at retained debugging artifacts, when retention was requested.
type Artifacts struct {
	TempDir  string   `json:"temp_dir,omitempty"`
	Kept     bool     `json:"kept,omitempty"`
	Variants []string `json:"variants,omitempty"`
}

// RunError is the structured terminal failure attached to parse_error results.
type RunError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// UnifiedResult is the single externally visible output of a pipeline run.
type UnifiedResult struct {
	RunID      string                 `json:"run_id"`
	SourceType constants.SourceType   `json:"source_type"`
	FileName   string                 `json:"file_name,omitempty"`
	Version    string                 `json:"version"`
	Status     constants.ResultStatus `json:"status"`
	Canonical  map[string]any         `json:"canonical"`
	Extracted  Extracted              `json:"extracted"`
	Validation Validation             `json:"validation"`
	Debug      Debug                  `json:"debug"`
	Artifacts  Artifacts              `json:"artifacts"`
	Error      *RunError              `json:"error"`
}

// DeriveStatus classifies a run outcome. Status is a pure function of its
// inputs, evaluated in fixed priority order: an error always wins, then a
// validated canonical, then any non-empty extraction.
func DeriveStatus(hasError, valid, canonicalPresent bool, itemCount int) constants.ResultStatus {
	switch {
	case hasError:
		return constants.StatusParseError
	case valid && canonicalPresent:
		return constants.StatusCanonicalValid
	case itemCount > 0:
		return constants.StatusExtractedOnly
	default:
		return constants.StatusNoItems
	}
}

// PreviewText truncates s to RawTextPreviewLimit bytes.
func PreviewText(s string) string {
	if len(s) <= RawTextPreviewLimit {
		return s
	}
	return s[:RawTextPreviewLimit]
}
