// Command invopipe runs one document through the extraction pipeline and
// prints the unified result as JSON on stdout. Logs go to stderr.
//
// Exit codes: 0 usable extraction (canonical_valid or extracted_only),
// 1 terminal failure (parse_error), 2 nothing extracted or bad invocation.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/invopipe/invopipe/constants"
	"github.com/invopipe/invopipe/internal/common"
	"github.com/invopipe/invopipe/internal/ingest"
	"github.com/invopipe/invopipe/internal/ocr"
	"github.com/invopipe/invopipe/internal/parser"
	"github.com/invopipe/invopipe/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("invopipe", pflag.ContinueOnError)
	flags.String("lang", common.DefaultLanguage, "OCR language(s), e.g. eng or eng+deu")
	flags.Int("dpi", common.DefaultDPI, "rasterization DPI for scanned PDFs")
	flags.Int("max-pages", common.DefaultMaxPages, "max PDF pages to process (0 = all)")
	flags.Int("concurrency", common.DefaultConcurrency, "parallel page recognitions")
	flags.String("render-mode", common.DefaultRenderMode, "page render mode: png or gray")
	flags.Bool("keep-artifacts", false, "retain the per-run temp directory")
	flags.String("tmp-dir", "", "parent directory for per-run temp dirs")
	flags.String("tessdata", "", "tesseract data directory")
	flags.Int("topn", common.DefaultTopN, "parser candidates tried per document")
	flags.Int("min-items", common.DefaultMinItems, "line items required to accept a parse")
	flags.String("log-level", common.DefaultLogLevel, "log level: debug, info, warn, error")
	compact := flags.Bool("compact", false, "emit compact JSON instead of pretty")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: invopipe [flags] <file>\n\n"+
			"Extracts invoice line items from a document (pdf, image, or text)\n"+
			"and prints the run result as JSON.\n\nFlags:\n%s", flags.FlagUsages())
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	bindFlags(flags)

	if flags.NArg() != 1 {
		flags.Usage()
		return 2
	}
	path := flags.Arg(0)

	cfg := common.LoadConfig()
	logger := newLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc, err := ingest.LoadDocument(path)
	if err != nil {
		logger.Error("load document", "path", path, "error", err)
		return 1
	}

	p, err := pipeline.NewDefault(ocrConfig(cfg), logger,
		parser.WithTopN(cfg.Pipeline.TopN), parser.WithMinItems(cfg.Pipeline.MinItems))
	if err != nil {
		logger.Error("pipeline init", "error", err)
		return 1
	}

	res := p.Run(ctx, doc)

	enc := json.NewEncoder(os.Stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(res); err != nil {
		logger.Error("encode result", "error", err)
		return 1
	}

	switch res.Status {
	case constants.StatusParseError:
		return 1
	case constants.StatusNoItems:
		return 2
	default:
		return 0
	}
}

// bindFlags maps command-line flags onto the viper keys LoadConfig reads, so
// precedence is flag > INVOPIPE_* env > default.
func bindFlags(flags *pflag.FlagSet) {
	for key, name := range map[string]string{
		"lang":        "lang",
		"dpi":         "dpi",
		"maxpages":    "max-pages",
		"concurrency": "concurrency",
		"rendermode":  "render-mode",
		"keeptemp":    "keep-artifacts",
		"tmpdir":      "tmp-dir",
		"tessdata":    "tessdata",
		"topn":        "topn",
		"minitems":    "min-items",
		"loglevel":    "log-level",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func newLogger(w *os.File, levelName string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func ocrConfig(cfg *common.Config) ocr.Config {
	return ocr.Config{
		Language:            cfg.OCR.Language,
		DPI:                 cfg.OCR.DPI,
		MaxPages:            cfg.OCR.MaxPages,
		Concurrency:         cfg.OCR.Concurrency,
		RenderMode:          cfg.OCR.RenderMode,
		KeepArtifacts:       cfg.OCR.KeepTemp,
		TmpDir:              cfg.OCR.TmpDir,
		TessdataDir:         cfg.OCR.TessdataDir,
		HeicConverter:       cfg.OCR.HeicConverter,
		RenderTimeout:       cfg.OCR.RenderTimeout,
		PageTimeout:         cfg.OCR.PageTimeout,
		EnableTSVConfidence: true,
	}
}
