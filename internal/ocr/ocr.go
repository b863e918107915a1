package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/invopipe/invopipe/constants"
	"github.com/invopipe/invopipe/internal/common"
	"github.com/invopipe/invopipe/internal/entity"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language    string // default "eng"
	DPI         int    // rasterization DPI for scanned PDFs, default 200
	MaxPages    int    // pages rendered per PDF, 0 = no limit
	Concurrency int    // parallel page recognitions, default 2
	RenderMode  string // "png" | "gray"

	TessdataDir         string
	HeicConverter       string // "heif-convert" | "magick" | "sips"
	EnableTSVConfidence bool

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default

	// KeepArtifacts retains the per-run temp directory (rendered pages,
	// preprocessing variants) instead of removing it after the run.
	KeepArtifacts bool
	TmpDir        string // parent for per-run temp dirs; "" = os default

	RenderTimeout time.Duration // whole-document rasterization budget
	PageTimeout   time.Duration // single page or variant recognition budget
}

func (c Config) withDefaults() Config {
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Language == "" {
		c.Language = common.DefaultLanguage
	}
	if c.DPI <= 0 {
		c.DPI = common.DefaultDPI
	}
	if c.Concurrency <= 0 {
		c.Concurrency = common.DefaultConcurrency
	}
	if c.RenderMode == "" {
		c.RenderMode = common.DefaultRenderMode
	}
	if c.HeicConverter == "" {
		c.HeicConverter = "magick"
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 2 * time.Minute
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = time.Minute
	}
	return c
}

// Result is the outcome of text acquisition for one document.
type Result struct {
	Text       string
	Pages      int
	SourceType constants.SourceType
	Method     constants.ExtractionMethod
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32 // 0..1 blended recognizer/heuristic confidence

	// Decision records why this acquisition path was taken, e.g.
	// "text layer (412 chars/page)" or "ocr: text layer thin (8 chars/page)".
	Decision string

	// VariantUsed names the preprocessing variant whose recognition won,
	// image sources only. Variants lists every variant that was attempted.
	VariantUsed string
	Variants    []string

	// ArtifactDir is the retained per-run temp directory; set only when
	// the engine runs with KeepArtifacts.
	ArtifactDir string

	Quality *entity.QualityAssessment
}

// Engine acquires text from PDFs, images, and plain text documents.
type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Engine)

// WithRunner substitutes the command runner. Binary resolution is skipped
// because commands no longer reach the host directly.
func WithRunner(r Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// NewEngine builds an engine and eagerly resolves the pdftoppm and
// tesseract binaries so a misconfigured host fails at startup, not
// mid-document.
func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{cfg: cfg.withDefaults(), logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		pdftoppm, err := resolveBinary(e.cfg.Pdftoppm)
		if err != nil {
			return nil, fmt.Errorf("resolving pdftoppm: %w", err)
		}
		tesseract, err := resolveBinary(e.cfg.Tesseract)
		if err != nil {
			return nil, fmt.Errorf("resolving tesseract: %w", err)
		}
		e.cfg.Pdftoppm = pdftoppm
		e.cfg.Tesseract = tesseract
		e.runner = execRunner{logger: logger}
	}
	return e, nil
}

// Extract picks an acquisition strategy from the document's source type:
// text passes through untouched, PDFs go through the text-layer probe with
// OCR fallback, images go through quality-driven preprocessing and OCR.
func (e *Engine) Extract(ctx context.Context, doc entity.RawDocument) (Result, error) {
	start := time.Now()
	res := Result{SourceType: doc.SourceType, Language: e.cfg.Language}

	switch doc.SourceType {
	case constants.Text:
		res.Text = doc.Text
		if res.Text == "" {
			res.Text = string(doc.Bytes)
		}
		res.Pages = 1
		res.Method = constants.MethodTextInput
		res.Confidence = 1.0
		res.Decision = "text input, recognition skipped"
		res.Duration = time.Since(start)
		return res, nil
	case constants.PDF, constants.Image:
		// handled below
	default:
		return res, fmt.Errorf("source type %q: %w", doc.SourceType, common.ErrUnsupportedFormat)
	}

	if len(doc.Bytes) == 0 {
		return res, fmt.Errorf("%s document %q: %w", doc.SourceType, doc.FileName, common.ErrEmptyInput)
	}

	runDir, err := os.MkdirTemp(e.cfg.TmpDir, "invopipe-*")
	if err != nil {
		return res, fmt.Errorf("creating run temp dir: %w", err)
	}
	e.logger.Debug("starting text acquisition",
		"run_id", common.RunIDFromContext(ctx),
		"file", doc.FileName,
		"source_type", doc.SourceType,
		"run_dir", runDir,
	)
	defer func() {
		if !e.cfg.KeepArtifacts {
			e.cleanupRunDir(runDir)
		}
	}()

	if doc.SourceType == constants.PDF {
		err = e.extractPDF(ctx, runDir, doc.Bytes, &res)
	} else {
		err = e.extractImage(ctx, runDir, doc, &res)
	}
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}
	if e.cfg.KeepArtifacts {
		res.ArtifactDir = runDir
	}

	e.logger.Info("text acquired",
		"run_id", common.RunIDFromContext(ctx),
		"file", doc.FileName,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"confidence", res.Confidence,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Engine) cleanupRunDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("temp dir cleanup failed", "dir", dir, "error", err)
	}
}
