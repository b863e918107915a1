package parser

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/invopipe/invopipe/internal/common"
	"github.com/invopipe/invopipe/internal/entity"
)

// CanonicalBuilder turns an accepted draft and its valid items into the
// canonical document shape. Injected by the caller; the selector never owns
// invoice business rules.
type CanonicalBuilder func(draft entity.Draft, items []entity.LineItem) map[string]any

// CanonicalValidator checks a canonical document against the caller's
// schema and returns validation messages on failure.
type CanonicalValidator func(canonical map[string]any) (bool, []string)

// Selection is the outcome of running the registry against one input.
// Attempts is the full trail, one entry per ranked candidate whether it was
// tried or not; it is a first-class output for diagnosis, not a log line.
type Selection struct {
	OK         bool
	ParserUsed string // plugin ID, or "none" when nothing was accepted
	Result     entity.ParseAttemptResult
	Items      []entity.LineItem // valid items of the accepted attempt
	Canonical  map[string]any    // nil unless validation passed
	Validation entity.Validation
	Attempts   []entity.Attempt
	Candidates []entity.ParseCandidate // full ranked list
}

// Selector scores every registered plugin against an input, then attempts
// the top candidates sequentially until one is accepted.
type Selector struct {
	registry *Registry
	logger   *slog.Logger

	topN     int
	minItems int

	buildCanonical CanonicalBuilder
	validate       CanonicalValidator
}

type SelectorOption func(*Selector)

// WithTopN bounds how many ranked candidates get a parse attempt.
func WithTopN(n int) SelectorOption {
	return func(s *Selector) {
		if n >= 1 {
			s.topN = n
		}
	}
}

// WithMinItems sets the acceptance threshold: an attempt needs at least
// this many valid items to win.
func WithMinItems(n int) SelectorOption {
	return func(s *Selector) {
		if n >= 1 {
			s.minItems = n
		}
	}
}

// WithCanonicalStage wires the per-candidate canonical build and validation
// collaborators. Without it, acceptance stops at the item threshold.
func WithCanonicalStage(build CanonicalBuilder, validate CanonicalValidator) SelectorOption {
	return func(s *Selector) {
		s.buildCanonical = build
		s.validate = validate
	}
}

func NewSelector(registry *Registry, logger *slog.Logger, opts ...SelectorOption) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Selector{
		registry: registry,
		logger:   logger,
		topN:     common.DefaultTopN,
		minItems: common.DefaultMinItems,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type rankedCandidate struct {
	candidate   entity.ParseCandidate
	plugin      Plugin
	matchFailed bool
	matchErr    string
}

// Select ranks all plugins and attempts the top candidates in order.
// A candidate is accepted when it yields enough valid items; with a
// canonical stage wired, a validated candidate wins outright and a
// validation failure falls through to the next candidate. If every
// accepted candidate fails validation, the first one's extraction is kept
// with the validation errors attached.
func (s *Selector) Select(in entity.NormalizedInput) Selection {
	ranked := s.rank(in)

	sel := Selection{ParserUsed: "none", Items: []entity.LineItem{}}
	for _, rc := range ranked {
		sel.Candidates = append(sel.Candidates, rc.candidate)
	}

	type accepted struct {
		candidate entity.ParseCandidate
		result    entity.ParseAttemptResult
		items     []entity.LineItem
		verrs     []string
	}
	var fallback *accepted

	for rank, rc := range ranked {
		attempt := entity.Attempt{ParseCandidate: rc.candidate}

		switch {
		case rc.matchFailed:
			attempt.Note = entity.NoteMatchError
			attempt.Error = rc.matchErr
		case rank >= s.topN || sel.OK:
			attempt.Note = entity.NoteNotAttempted
		default:
			result, perr := safeParse(rc.plugin, in)
			if perr != nil {
				s.logger.Warn("plugin parse failed",
					"plugin", rc.candidate.PluginID,
					"error", perr,
				)
				attempt.Note = entity.NoteParseError
				attempt.Error = perr.Error()
				break
			}

			valid := entity.FilterValid(result.LineItems)
			attempt.Items = len(valid)
			if len(valid) < s.minItems {
				attempt.Note = entity.NoteTooFewItems
				break
			}

			if s.buildCanonical == nil {
				attempt.Note = entity.NoteOK
				sel.OK = true
				sel.ParserUsed = rc.candidate.PluginID
				sel.Result = result
				sel.Items = valid
				break
			}

			canonical, ok, verrs := s.buildAndValidate(result.Draft, valid)
			if ok {
				attempt.Note = entity.NoteValidatedOK
				sel.OK = true
				sel.ParserUsed = rc.candidate.PluginID
				sel.Result = result
				sel.Items = valid
				sel.Canonical = canonical
				sel.Validation = entity.Validation{Attempted: true, Valid: true, Errors: []string{}}
				break
			}

			attempt.Note = entity.NoteValidateFailed
			attempt.Error = strings.Join(verrs, "; ")
			if fallback == nil {
				fallback = &accepted{
					candidate: rc.candidate,
					result:    result,
					items:     valid,
					verrs:     verrs,
				}
			}
		}

		sel.Attempts = append(sel.Attempts, attempt)
	}

	if !sel.OK && fallback != nil {
		sel.OK = true
		sel.ParserUsed = fallback.candidate.PluginID
		sel.Result = fallback.result
		sel.Items = fallback.items
		sel.Validation = entity.Validation{Attempted: true, Valid: false, Errors: fallback.verrs}
	}

	s.logger.Debug("plugin selection done",
		"parser_used", sel.ParserUsed,
		"accepted", sel.OK,
		"items", len(sel.Items),
		"attempts", len(sel.Attempts),
	)
	return sel
}

// rank scores every plugin concurrently and sorts descending by score.
// The sort is stable: equal scores keep registration order.
func (s *Selector) rank(in entity.NormalizedInput) []rankedCandidate {
	plugins := s.registry.Plugins()
	out := make([]rankedCandidate, len(plugins))

	var wg sync.WaitGroup
	for i, p := range plugins {
		wg.Add(1)
		go func(i int, p Plugin) {
			defer wg.Done()
			out[i] = s.score(in, p)
		}(i, p)
	}
	wg.Wait()

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].candidate.MatchScore > out[b].candidate.MatchScore
	})
	return out
}

// score runs one plugin's Match under a recover so a panicking plugin
// scores 0 without blocking ranking of the rest.
func (s *Selector) score(in entity.NormalizedInput, p Plugin) (rc rankedCandidate) {
	rc = rankedCandidate{
		plugin:    p,
		candidate: entity.ParseCandidate{PluginID: p.ID(), Version: p.Version()},
	}
	defer func() {
		if r := recover(); r != nil {
			rc.matchFailed = true
			rc.matchErr = fmt.Sprintf("match panicked: %v", r)
			rc.candidate.MatchScore = 0
			rc.candidate.Reasons = []string{"match failed, scored 0"}
		}
	}()

	m := p.Match(in)
	rc.candidate.MatchScore = normalizeScore(m.Score)
	rc.candidate.Reasons = m.Reasons
	return rc
}

// normalizeScore maps a plugin's raw score onto the canonical 0-100 scale.
// Values in [0,1] are treated as fractions, values in (1,100] as percents
// already; anything else is clamped.
func normalizeScore(raw float64) float64 {
	switch {
	case math.IsNaN(raw) || raw <= 0:
		return 0
	case raw <= 1:
		return raw * 100
	case raw <= 100:
		return raw
	default:
		return 100
	}
}

func safeParse(p Plugin, in entity.NormalizedInput) (result entity.ParseAttemptResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse panicked: %v", r)
		}
	}()
	return p.Parse(in)
}

func (s *Selector) buildAndValidate(draft entity.Draft, items []entity.LineItem) (canonical map[string]any, ok bool, errs []string) {
	defer func() {
		if r := recover(); r != nil {
			canonical, ok = nil, false
			errs = []string{fmt.Sprintf("canonical stage panicked: %v", r)}
		}
	}()

	canonical = s.buildCanonical(draft, items)
	ok, errs = s.validate(canonical)
	if !ok {
		if len(errs) == 0 {
			errs = []string{"canonical validation failed"}
		}
		canonical = nil
	}
	return canonical, ok, errs
}
