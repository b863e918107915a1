package entity

// FoundAmount is a labeled money value located during a guardrail scan.
type FoundAmount struct {
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
	Line       int     `json:"line"`
	Confidence int     `json:"confidence"` // 0-100
}

// GuardrailReport describes what the scan guardrail observed and changed.
type GuardrailReport struct {
	ScanCompleteness float64       `json:"scan_completeness"` // 0-100
	LastParsedLine   int           `json:"last_parsed_line"`
	TotalLines       int           `json:"total_lines"`
	FoundSubtotals   []FoundAmount `json:"found_subtotals,omitempty"`
	FoundTotals      []FoundAmount `json:"found_totals,omitempty"`
	ExtendedItems    int           `json:"extended_items"`
	TotalAdopted     bool          `json:"total_adopted"`
	Warnings         []string      `json:"warnings,omitempty"`
	Applied          bool          `json:"applied"`
	NeedsReview      bool          `json:"needs_review"`
	ReviewReasons    []string      `json:"review_reasons,omitempty"`
}
