// Package parser ranks document-layout plugins against a normalized input
// and drives parse attempts in rank order until one is accepted.
package parser

import (
	"github.com/invopipe/invopipe/internal/entity"
)

// MatchResult is a plugin's self-assessed compatibility with an input.
// Score is on the plugin's own scale (the built-ins use [0,1]); it is
// normalized to the canonical 0-100 scale at the ranking boundary and is
// used only for ordering, never for correctness.
type MatchResult struct {
	Score   float64
	Reasons []string
}

// Plugin is the extension surface for document-layout strategies. Match
// must be a cheap heuristic; Parse does the real extraction and returns a
// low-confidence or empty result for malformed input rather than failing.
type Plugin interface {
	ID() string
	Version() string
	Match(in entity.NormalizedInput) MatchResult
	Parse(in entity.NormalizedInput) (entity.ParseAttemptResult, error)
}

// Registry is the ordered plugin collection. Registration order is the
// tie-break order for equal match scores, so it is part of the contract.
type Registry struct {
	plugins []Plugin
}

func NewRegistry(plugins ...Plugin) *Registry {
	return &Registry{plugins: append([]Plugin(nil), plugins...)}
}

func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
}

// Plugins returns a copy of the registered plugins in registration order.
func (r *Registry) Plugins() []Plugin {
	return append([]Plugin(nil), r.plugins...)
}

func (r *Registry) Len() int {
	return len(r.plugins)
}

// DefaultRegistry wires the built-in layout plugins: structural shapes in
// specificity order, the keyword-profile vendor adapter last.
func DefaultRegistry() *Registry {
	return NewRegistry(
		ColumnTable{},
		WrappedLine{},
		ReceiptStyle{},
		StatementLine{},
		VendorAdapter{},
	)
}
