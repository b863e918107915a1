// Command invopipe-batch extracts every document under a directory, stores
// the results in SQLite, and writes an XLSX summary. With --watch it keeps
// running and processes new documents as they appear.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/invopipe/invopipe/constants"
	"github.com/invopipe/invopipe/internal/common"
	"github.com/invopipe/invopipe/internal/export"
	"github.com/invopipe/invopipe/internal/ingest"
	"github.com/invopipe/invopipe/internal/ocr"
	"github.com/invopipe/invopipe/internal/parser"
	"github.com/invopipe/invopipe/internal/pipeline"
	"github.com/invopipe/invopipe/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := pflag.NewFlagSet("invopipe-batch", pflag.ContinueOnError)
	dir := flags.String("dir", "", "directory to process documents from (required)")
	out := flags.String("out", "", "output XLSX path (default: <dir>/../invoices.xlsx)")
	flags.String("db", "", "SQLite results database path (default: temp)")
	watch := flags.Bool("watch", false, "keep running and process new documents as they appear")
	flags.String("lang", common.DefaultLanguage, "OCR language(s), e.g. eng or eng+deu")
	flags.Int("dpi", common.DefaultDPI, "rasterization DPI for scanned PDFs")
	flags.Int("max-pages", common.DefaultMaxPages, "max PDF pages to process (0 = all)")
	flags.Int("concurrency", common.DefaultConcurrency, "parallel page recognitions")
	flags.String("render-mode", common.DefaultRenderMode, "page render mode: png or gray")
	flags.Bool("keep-artifacts", false, "retain per-run temp directories")
	flags.String("tmp-dir", "", "parent directory for per-run temp dirs")
	flags.String("tessdata", "", "tesseract data directory")
	flags.Int("topn", common.DefaultTopN, "parser candidates tried per document")
	flags.Int("min-items", common.DefaultMinItems, "line items required to accept a parse")
	flags.String("log-level", common.DefaultLogLevel, "log level: debug, info, warn, error")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: invopipe-batch --dir <directory> [flags]\n\nFlags:\n%s",
			flags.FlagUsages())
	}

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	bindFlags(flags)

	cfg := common.LoadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 2
	}
	if *dir == "" {
		logger.Error("--dir is required")
		flags.Usage()
		return 2
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "invoices.xlsx")
	}
	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "invopipe-runs.db")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.OpenSQLite(ctx, dbPath, logger)
	if err != nil {
		logger.Error("open results store", "path", dbPath, "error", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	p, err := pipeline.NewDefault(ocrConfig(cfg), logger,
		parser.WithTopN(cfg.Pipeline.TopN), parser.WithMinItems(cfg.Pipeline.MinItems))
	if err != nil {
		logger.Error("pipeline init", "error", err)
		return 1
	}

	processed := 0
	failures := 0
	review := 0
	processOne := func(path string) {
		doc, err := ingest.LoadDocument(path)
		if err != nil {
			logger.Error("load document", "path", path, "error", err)
			failures++
			return
		}
		res := p.Run(ctx, doc)
		// Persist with a fresh context so a result from a run finished
		// during shutdown still lands in the store.
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := st.SaveResult(saveCtx, res); err != nil {
			logger.Error("store result", "path", path, "run_id", res.RunID, "error", err)
			failures++
			return
		}
		processed++
		if res.Status == constants.StatusParseError {
			failures++
		}
		if res.Debug.NeedsReview {
			review++
		}
	}

	logger.Info("starting batch", "dir", *dir, "db", dbPath)
	paths, stats, err := ingest.DiscoverFiles(*dir, true)
	if err != nil {
		logger.Error("discover documents", "dir", *dir, "error", err)
		return 1
	}
	logger.Info("discovery complete",
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"skipped", stats.Skipped,
		"failed", stats.Failed)

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		processOne(path)
	}

	if *watch && ctx.Err() == nil {
		logger.Info("watching for new documents", "dir", *dir)
		ev, errCh, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:    []string{*dir},
			Debounce: 500 * time.Millisecond,
		})
		if err != nil {
			logger.Error("start watcher", "dir", *dir, "error", err)
			return 1
		}
	loop:
		for {
			select {
			case <-ctx.Done():
				break loop
			case path, ok := <-ev:
				if !ok {
					break loop
				}
				processOne(path)
			case werr, ok := <-errCh:
				if ok && werr != nil {
					logger.Warn("watch error", "error", werr)
				}
			}
		}
	}

	// Export everything stored, including runs from earlier invocations
	// against the same database.
	exportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	svc := export.NewService(st, logger)
	xlsx, err := svc.ResultsXLSX(exportCtx, store.ListFilter{Limit: -1})
	if err != nil {
		logger.Error("export results", "error", err)
		return 1
	}
	if err := os.WriteFile(*out, xlsx, 0o644); err != nil {
		logger.Error("write output file", "path", *out, "error", err)
		return 1
	}

	logger.Info("batch complete",
		"processed", processed,
		"failures", failures,
		"needs_review", review,
		"output", *out,
		"db", dbPath)
	fmt.Printf("Processed %d document(s), %d failure(s), %d flagged for review.\n", processed, failures, review)
	fmt.Printf("Results: %s (database: %s)\n", *out, dbPath)
	return 0
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
		"db":          "db",
		"loglevel":    "log-level",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func newLogger(levelName string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
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
