// Package pipeline wires extraction, parsing, guardrail, and validation into
// single document runs, each producing exactly one UnifiedResult. A failure
// of any kind comes back inside the result, never as a raw panic or error
// escaping the run boundary.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/invopipe/invopipe/constants"
	"github.com/invopipe/invopipe/internal/canonical"
	"github.com/invopipe/invopipe/internal/common"
	"github.com/invopipe/invopipe/internal/entity"
	"github.com/invopipe/invopipe/internal/guardrail"
	"github.com/invopipe/invopipe/internal/normalize"
	"github.com/invopipe/invopipe/internal/ocr"
	"github.com/invopipe/invopipe/internal/parser"
)

// TextExtractor yields document text for one raw input. *ocr.Engine is the
// production implementation.
type TextExtractor interface {
	Extract(ctx context.Context, doc entity.RawDocument) (ocr.Result, error)
}

// Pipeline coordinates extract, normalize, select, guardrail, canonicalize.
// Instances are safe for concurrent use; each run owns its own temporary
// directory and in-memory state.
type Pipeline struct {
	logger    *slog.Logger
	extractor TextExtractor
	selector  *parser.Selector
	guard     *guardrail.Guardrail

	buildCanonical parser.CanonicalBuilder
	validate       parser.CanonicalValidator
}

// Option adjusts pipeline construction.
type Option func(*Pipeline)

// WithCanonicalStage hands the pipeline the same collaborator pair the
// selector validates with, so guardrail repairs can be re-canonicalized.
// Without it, guardrail changes keep the selection-time validation verdict.
func WithCanonicalStage(build parser.CanonicalBuilder, validate parser.CanonicalValidator) Option {
	return func(p *Pipeline) {
		p.buildCanonical = build
		p.validate = validate
	}
}

// New assembles a pipeline from explicit collaborators.
func New(extractor TextExtractor, selector *parser.Selector, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		logger:    logger,
		extractor: extractor,
		selector:  selector,
		guard:     guardrail.New(logger),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewDefault assembles the production stack: an OCR engine on cfg, the
// default plugin registry, and the invoice.v1 canonical stage. Missing
// binaries and schema compile failures surface here, at startup, not per run.
// Selector tuning (top-N, minimum item count) passes through selOpts.
func NewDefault(cfg ocr.Config, logger *slog.Logger, selOpts ...parser.SelectorOption) (*Pipeline, error) {
	engine, err := ocr.NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	validator, err := canonical.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("canonical schema: %w", err)
	}
	selOpts = append(selOpts, parser.WithCanonicalStage(canonical.BuildInvoiceV1, validator.Validate))
	sel := parser.NewSelector(parser.DefaultRegistry(), logger, selOpts...)
	return New(engine, sel, logger,
		WithCanonicalStage(canonical.BuildInvoiceV1, validator.Validate)), nil
}

// Run executes one document through the full pipeline. Terminal failures,
// including panics anywhere below, come back as status parse_error with the
// message and stack attached.
func (p *Pipeline) Run(ctx context.Context, doc entity.RawDocument) (res entity.UnifiedResult) {
	start := time.Now()
	res = entity.UnifiedResult{
		RunID:      uuid.NewString(),
		SourceType: doc.SourceType,
		FileName:   doc.FileName,
		Version:    entity.ResultVersion,
	}
	res.Extracted.Items = []entity.LineItem{}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panicked", "run_id", res.RunID, "panic", r)
			res.Error = &entity.RunError{
				Code:    common.CodePipelineFatal,
				Message: fmt.Sprintf("pipeline panic: %v", r),
				Stack:   string(debug.Stack()),
			}
		}
		res.Status = entity.DeriveStatus(res.Error != nil, res.Validation.Valid, res.Canonical != nil, len(res.Extracted.Items))
		res.Debug.DurationMS = time.Since(start).Milliseconds()
		p.logger.Info("run finished",
			"run_id", res.RunID,
			"source_type", string(res.SourceType),
			"status", string(res.Status),
			"parser", res.Debug.ParserUsed,
			"items", len(res.Extracted.Items),
			"duration_ms", res.Debug.DurationMS,
		)
	}()

	// Extraction-stage logs correlate through the run ID on the context.
	ctx = common.WithRunID(ctx, res.RunID)

	if err := p.run(ctx, doc, &res); err != nil {
		p.logger.Error("run failed", "run_id", res.RunID, "code", common.ErrorCode(err), "err", err)
		res.Error = &entity.RunError{Code: common.ErrorCode(err), Message: err.Error()}
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, doc entity.RawDocument, res *entity.UnifiedResult) error {
	exRes, err := p.extractor.Extract(ctx, doc)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	res.Extracted.RawTextLength = len(exRes.Text)
	res.Extracted.RawTextPreview = entity.PreviewText(exRes.Text)
	res.Extracted.Meta = entity.ExtractedMeta{
		Method:     exRes.Method,
		Pages:      exRes.Pages,
		Language:   exRes.Language,
		Confidence: exRes.Confidence,
		Variant:    exRes.VariantUsed,
		Warnings:   exRes.Warnings,
	}
	res.Debug.UsedOCR = usedOCR(exRes.Method)
	res.Debug.OCRDecision = exRes.Decision
	res.Debug.Quality = exRes.Quality
	res.Artifacts = entity.Artifacts{
		TempDir:  exRes.ArtifactDir,
		Kept:     exRes.ArtifactDir != "",
		Variants: exRes.Variants,
	}

	in := normalize.Input(exRes.Text, doc.SourceType, doc.Meta)

	sel := p.selector.Select(in)
	res.Debug.ParserUsed = sel.ParserUsed
	res.Debug.ParserCandidates = sel.Attempts
	res.Extracted.Items = sel.Items
	res.Debug.ParsedItemsCount = len(sel.Items)
	res.Validation = sel.Validation
	res.Canonical = sel.Canonical

	if !sel.OK {
		return nil
	}

	repaired, report := p.guard.Apply(in.Lines, sel.Result)
	res.Debug.Guardrail = report
	res.Debug.NeedsReview = report.NeedsReview

	items := entity.FilterValid(repaired.LineItems)
	res.Extracted.Items = items
	res.Debug.ParsedItemsCount = len(items)
	res.Extracted.Meta.Draft = &repaired.Draft

	// Guardrail repairs invalidate the selection-time canonical: a recovered
	// second section or an adopted grand total changes what downstream sees,
	// so the document is rebuilt and revalidated against the same schema.
	if (report.ExtendedItems > 0 || report.TotalAdopted) && p.buildCanonical != nil && p.validate != nil {
		cdoc := p.buildCanonical(repaired.Draft, items)
		ok, verrs := p.validate(cdoc)
		if ok {
			res.Canonical = cdoc
			res.Validation = entity.Validation{Attempted: true, Valid: true, Errors: []string{}}
		} else {
			res.Canonical = nil
			res.Validation = entity.Validation{Attempted: true, Valid: false, Errors: verrs}
		}
	}
	return nil
}

func usedOCR(m constants.ExtractionMethod) bool {
	switch m {
	case constants.MethodPDFOCR, constants.MethodImageOCR:
		return true
	}
	return false
}
