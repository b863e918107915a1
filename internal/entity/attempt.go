package entity

// ParseCandidate is one plugin's ranked opinion about one input.
// Recomputed every run; MatchScore is on the canonical 0-100 scale.
type ParseCandidate struct {
	PluginID   string   `json:"pluginId"`
	Version    string   `json:"version"`
	MatchScore float64  `json:"matchScore"`
	Reasons    []string `json:"reasons,omitempty"`
}

// ParseAttemptResult is the output of one plugin's parse invocation.
type ParseAttemptResult struct {
	Draft      Draft      `json:"draft"`
	LineItems  []LineItem `json:"line_items"`
	Confidence float64    `json:"confidence"` // 0-100
	Evidence   []string   `json:"evidence,omitempty"`
	// LastParsedLine is the zero-based index of the last line the plugin
	// consumed, or -1 when the plugin does not track it.
	LastParsedLine int `json:"-"`
}

// Outcome notes recorded per attempt. Stable values.
const (
	NoteOK             = "ok"
	NoteTooFewItems    = "too_few_items"
	NoteParseError     = "parse_error"
	NoteMatchError     = "match_error"
	NoteValidatedOK    = "validated_ok"
	NoteValidateFailed = "validate_failed"
	NoteNotAttempted   = "not_attempted"
)

// Attempt records one candidate's run through the selector, tried or not.
// The ordered trail of attempts is a first-class output for diagnosis.
type Attempt struct {
	ParseCandidate
	Note  string `json:"note"`
	Items int    `json:"items"`
	Error string `json:"error,omitempty"`
}
