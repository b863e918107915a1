package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invopipe/invopipe/constants"
	"github.com/invopipe/invopipe/internal/common"
	"github.com/invopipe/invopipe/internal/entity"
)

const tsvHeader = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext"

func tsvWithConfs(confs ...int) string {
	var b strings.Builder
	b.WriteString(tsvHeader + "\n")
	for i, c := range confs {
		fmt.Fprintf(&b, "5\t1\t1\t1\t1\t%d\t0\t0\t10\t10\t%d\tword%d\n", i+1, c, i)
	}
	return b.String()
}

// fakeRunner scripts pdftoppm, tesseract, and magick without touching the
// host. pdftoppm writes page files next to the requested prefix; tesseract
// answers from the configured callbacks; magick writes a decodable PNG.
type fakeRunner struct {
	pages         int
	failPdftoppm  bool
	failTesseract bool
	tessText      func(imgPath string) string
	tessConf      func(imgPath string) int // TSV word conf; <0 means no word rows

	mu    sync.Mutex
	calls []string
}

func (f *fakeRunner) record(name string, args []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.record(name, args)
	switch name {
	case "pdftoppm":
		if f.failPdftoppm {
			return nil, []byte("Syntax Error: render boom"), errors.New("exit status 1")
		}
		prefix := args[len(args)-1]
		for i := 1; i <= f.pages; i++ {
			p := fmt.Sprintf("%s-%d.png", prefix, i)
			if err := os.WriteFile(p, []byte("img"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		if f.failTesseract {
			return nil, []byte("tesseract boom"), errors.New("exit status 1")
		}
		imgPath := args[0]
		if args[len(args)-1] == "tsv" {
			conf := 80
			if f.tessConf != nil {
				conf = f.tessConf(imgPath)
			}
			if conf < 0 {
				return []byte(tsvHeader + "\n"), nil, nil
			}
			return []byte(tsvWithConfs(conf)), nil, nil
		}
		text := "recognized " + filepath.Base(imgPath)
		if f.tessText != nil {
			text = f.tessText(imgPath)
		}
		return []byte(text), nil, nil
	case "magick":
		out := args[len(args)-1]
		return nil, nil, writePNG(out, 900, 600)
	}
	return nil, nil, fmt.Errorf("unexpected command %q", name)
}

func writePNG(path string, w, h int) error {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 240, G: 240, B: 240, A: 255}
			if y%40 < 4 && x > w/10 && x < w*9/10 {
				c = color.NRGBA{R: 20, G: 20, B: 20, A: 255} // text-ish bands
			}
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	p := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, writePNG(p, w, h))
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return data
}

func testEngine(t *testing.T, r Runner, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := Config{
		MaxPages:            3,
		Concurrency:         2,
		EnableTSVConfidence: true,
		TmpDir:              t.TempDir(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := NewEngine(cfg, logger, WithRunner(r))
	require.NoError(t, err)
	return e
}

func TestResolveBinary(t *testing.T) {
	t.Run("absolute path accepted when it exists", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "toolbin")
		require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"), 0o755))
		got, err := resolveBinary(p)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("missing absolute path fails", func(t *testing.T) {
		_, err := resolveBinary(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, common.ErrBinaryMissing)
	})

	t.Run("unknown bare name fails", func(t *testing.T) {
		_, err := resolveBinary("definitely-not-a-real-binary-name")
		assert.ErrorIs(t, err, common.ErrBinaryMissing)
	})

	t.Run("empty name fails", func(t *testing.T) {
		_, err := resolveBinary("")
		assert.ErrorIs(t, err, common.ErrBinaryMissing)
	})
}

func TestExtractTextPassthrough(t *testing.T) {
	e := testEngine(t, &fakeRunner{}, nil)

	res, err := e.Extract(context.Background(), entity.RawDocument{
		Text:       "INVOICE #42\nTotal $10.00",
		SourceType: constants.Text,
		FileName:   "inline.txt",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.MethodTextInput, res.Method)
	assert.Equal(t, "INVOICE #42\nTotal $10.00", res.Text)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, float32(1.0), res.Confidence)
}

func TestExtractRejectsUnknownSourceType(t *testing.T) {
	e := testEngine(t, &fakeRunner{}, nil)

	_, err := e.Extract(context.Background(), entity.RawDocument{
		SourceType: constants.SourceType("spreadsheet"),
	})
	assert.ErrorIs(t, err, common.ErrUnsupportedFormat)
}

func TestExtractRejectsEmptyBytes(t *testing.T) {
	e := testEngine(t, &fakeRunner{}, nil)

	_, err := e.Extract(context.Background(), entity.RawDocument{
		SourceType: constants.PDF,
		FileName:   "empty.pdf",
	})
	assert.ErrorIs(t, err, common.ErrEmptyInput)
}

func TestExtractPDFFallsBackToOCR(t *testing.T) {
	runner := &fakeRunner{
		pages: 2,
		tessText: func(imgPath string) string {
			return "PAGE TEXT " + filepath.Base(imgPath)
		},
		tessConf: func(string) int { return 80 },
	}
	e := testEngine(t, runner, nil)

	// Not a parseable PDF: both the metadata read and the text-layer probe
	// fail, which routes the document to rasterize-and-recognize.
	res, err := e.Extract(context.Background(), entity.RawDocument{
		Bytes:      []byte("%PDF-1.4 not really"),
		SourceType: constants.PDF,
		FileName:   "scan.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, constants.MethodPDFOCR, res.Method)
	assert.Equal(t, 2, res.Pages)
	assert.Contains(t, res.Decision, "ocr")

	// Page order is preserved with a form-feed separator between pages.
	first := strings.Index(res.Text, "page-1.png")
	second := strings.Index(res.Text, "page-2.png")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, second, first)
	assert.Contains(t, res.Text, "\f")

	// 0.7 * 0.80 TSV + 0.3 * 0.20 heuristic floor.
	assert.InDelta(t, 0.62, float64(res.Confidence), 0.02)
}

func TestExtractPDFRenderFailure(t *testing.T) {
	e := testEngine(t, &fakeRunner{failPdftoppm: true}, nil)

	_, err := e.Extract(context.Background(), entity.RawDocument{
		Bytes:      []byte("%PDF-1.4 not really"),
		SourceType: constants.PDF,
		FileName:   "bad.pdf",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRenderFailure)
	assert.Equal(t, common.CodeRenderFailure, common.ErrorCode(err))
}

func TestExtractPDFNoPagesRendered(t *testing.T) {
	e := testEngine(t, &fakeRunner{pages: 0}, nil)

	_, err := e.Extract(context.Background(), entity.RawDocument{
		Bytes:      []byte("%PDF-1.4 not really"),
		SourceType: constants.PDF,
		FileName:   "hollow.pdf",
	})
	assert.ErrorIs(t, err, common.ErrNoPages)
}

func TestExtractPDFPageFailureIsNonFatal(t *testing.T) {
	runner := &fakeRunner{
		pages: 3,
		tessText: func(imgPath string) string {
			if strings.Contains(imgPath, "page-2") {
				return "" // still succeeds, just empty
			}
			return "OK " + filepath.Base(imgPath)
		},
		tessConf: func(string) int { return 70 },
	}
	e := testEngine(t, runner, nil)

	res, err := e.Extract(context.Background(), entity.RawDocument{
		Bytes:      []byte("%PDF-1.4 not really"),
		SourceType: constants.PDF,
		FileName:   "partial.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	assert.Contains(t, res.Text, "page-1.png")
	assert.Contains(t, res.Text, "page-3.png")
}

func TestExtractImagePicksBestVariant(t *testing.T) {
	runner := &fakeRunner{
		tessText: func(imgPath string) string {
			return "ITEM 2 x 4.50 TOTAL 9.00 from " + filepath.Base(imgPath)
		},
		tessConf: func(imgPath string) int {
			if strings.Contains(imgPath, "high_contrast") {
				return 92
			}
			return 55
		},
	}
	e := testEngine(t, runner, nil)

	res, err := e.Extract(context.Background(), entity.RawDocument{
		Bytes:      pngBytes(t, 900, 600),
		SourceType: constants.Image,
		FileName:   "photo.png",
	})
	require.NoError(t, err)

	assert.Equal(t, constants.MethodImageOCR, res.Method)
	assert.Equal(t, "high_contrast", res.VariantUsed)
	assert.Contains(t, res.Variants, "standard")
	assert.Contains(t, res.Variants, "high_contrast")
	assert.Contains(t, res.Variants, "receipt_mode")
	require.NotNil(t, res.Quality)
	assert.Equal(t, 1, res.Pages)
	assert.Contains(t, res.Text, "high_contrast")
}

func TestExtractImageAllVariantsFail(t *testing.T) {
	e := testEngine(t, &fakeRunner{failTesseract: true}, nil)

	_, err := e.Extract(context.Background(), entity.RawDocument{
		Bytes:      pngBytes(t, 900, 600),
		SourceType: constants.Image,
		FileName:   "photo.png",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all")
}

func TestExtractImageHEICGoesThroughConverter(t *testing.T) {
	runner := &fakeRunner{
		tessText: func(string) string { return "converted invoice text" },
		tessConf: func(string) int { return 75 },
	}
	e := testEngine(t, runner, nil)

	heicBytes := pngBytes(t, 900, 600) // payload is irrelevant, magick is faked
	res, err := e.Extract(context.Background(), entity.RawDocument{
		Bytes:      heicBytes,
		SourceType: constants.Image,
		FileName:   "IMG_0042.HEIC",
	})
	require.NoError(t, err)
	assert.Equal(t, constants.MethodImageOCR, res.Method)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	var sawMagick bool
	for _, c := range runner.calls {
		if strings.HasPrefix(c, "magick ") {
			sawMagick = true
		}
	}
	assert.True(t, sawMagick, "expected the HEIC converter to run")
}

func TestConvertHEICUnknownConverter(t *testing.T) {
	_, _, err := convertHEICtoPNG(context.Background(), &fakeRunner{}, "paintbrush", "in.heic", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heif-convert | magick | sips")
}

func TestTempDirLifecycle(t *testing.T) {
	t.Run("removed by default", func(t *testing.T) {
		parent := t.TempDir()
		runner := &fakeRunner{pages: 1, tessConf: func(string) int { return 60 }}
		e := testEngine(t, runner, func(c *Config) { c.TmpDir = parent })

		res, err := e.Extract(context.Background(), entity.RawDocument{
			Bytes:      []byte("%PDF-1.4 not really"),
			SourceType: constants.PDF,
			FileName:   "a.pdf",
		})
		require.NoError(t, err)
		assert.Empty(t, res.ArtifactDir)

		entries, err := os.ReadDir(parent)
		require.NoError(t, err)
		assert.Empty(t, entries, "run dir should be cleaned up")
	})

	t.Run("kept on request", func(t *testing.T) {
		parent := t.TempDir()
		runner := &fakeRunner{pages: 1, tessConf: func(string) int { return 60 }}
		e := testEngine(t, runner, func(c *Config) {
			c.TmpDir = parent
			c.KeepArtifacts = true
		})

		res, err := e.Extract(context.Background(), entity.RawDocument{
			Bytes:      []byte("%PDF-1.4 not really"),
			SourceType: constants.PDF,
			FileName:   "a.pdf",
		})
		require.NoError(t, err)
		require.NotEmpty(t, res.ArtifactDir)

		st, err := os.Stat(res.ArtifactDir)
		require.NoError(t, err)
		assert.True(t, st.IsDir())

		pages, _ := filepath.Glob(filepath.Join(res.ArtifactDir, "page-*"))
		assert.NotEmpty(t, pages, "rendered pages should be retained")
	})
}

func TestTextLayerDecision(t *testing.T) {
	longClean := strings.Repeat("Regular invoice wording with amounts 12.34 and part numbers. ", 20)
	mostlyGarbage := strings.Repeat("���� ab ", 40)

	tests := []struct {
		name     string
		text     string
		probed   int
		probeErr error
		useText  bool
	}{
		{"probe error forces ocr", "whatever", 1, errors.New("boom"), false},
		{"zero pages forces ocr", "", 0, nil, false},
		{"thin layer forces ocr", "just a title", 3, nil, false},
		{"garbled layer forces ocr", mostlyGarbage, 1, nil, false},
		{"dense clean layer wins", longClean, 1, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, useText := textLayerDecision(tt.text, tt.probed, tt.probeErr)
			assert.Equal(t, tt.useText, useText)
			assert.NotEmpty(t, decision)
			if !tt.useText {
				assert.Contains(t, decision, "ocr")
			}
		})
	}
}

func TestPrintableRatio(t *testing.T) {
	assert.InDelta(t, 1.0, printableRatio("Invoice #42: $10.99 due"), 0.001)
	assert.Less(t, printableRatio("ab����"), 0.5)
	assert.Equal(t, 0.0, printableRatio("   \n\t  "))
}

func TestHeuristicConfidence(t *testing.T) {
	assert.InDelta(t, 0.2, float64(heuristicConfidence("short note")), 0.001)

	rich := "Invoice dated 12/01/2026, total USD 1,234.56. " + strings.Repeat("line ", 30)
	assert.InDelta(t, 0.8, float64(heuristicConfidence(rich)), 0.001)
}

func TestBlendConfidence(t *testing.T) {
	assert.InDelta(t, 0.62, float64(blendConfidence(0.8, 0.2)), 0.001)
	// no recognizer signal: heuristic passes through
	assert.InDelta(t, 0.45, float64(blendConfidence(0, 0.45)), 0.001)
	assert.Equal(t, float32(1.0), blendConfidence(1.0, 1.0))
}

func TestTSVConfidenceUsesConfColumn(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "w.png")
	require.NoError(t, os.WriteFile(img, []byte("x"), 0o600))

	runner := &fakeRunner{tessConf: func(string) int { return 90 }}
	e := testEngine(t, runner, nil)

	conf, _, err := e.tesseractTSVConfidence(context.Background(), img)
	require.NoError(t, err)
	assert.InDelta(t, 0.90, float64(conf), 0.001)
}

func TestTSVConfidenceNoWordRows(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "w.png")
	require.NoError(t, os.WriteFile(img, []byte("x"), 0o600))

	runner := &fakeRunner{tessConf: func(string) int { return -1 }}
	e := testEngine(t, runner, nil)

	conf, _, err := e.tesseractTSVConfidence(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, float32(0), conf)
}

func TestSortByPageNumber(t *testing.T) {
	paths := []string{"/tmp/x/page-10.png", "/tmp/x/page-2.png", "/tmp/x/page-1.png"}
	sortByPageNumber(paths)
	assert.Equal(t, []string{"/tmp/x/page-1.png", "/tmp/x/page-2.png", "/tmp/x/page-10.png"}, paths)
}

func TestRunPagePool(t *testing.T) {
	e := testEngine(t, &fakeRunner{}, func(c *Config) { c.Concurrency = 2 })

	outs, warns := e.runPagePool(context.Background(), 5, func(_ context.Context, page int) (pageOut, error) {
		if page == 2 {
			return pageOut{}, errors.New("smudged page")
		}
		return pageOut{text: fmt.Sprintf("p%d", page), conf: 0.5}, nil
	})

	require.Len(t, outs, 5)
	assert.Equal(t, "p0", outs[0].text)
	assert.Equal(t, "p1", outs[1].text)
	assert.Empty(t, outs[2].text, "failed page yields empty text")
	assert.Equal(t, "p3", outs[3].text)
	assert.Equal(t, "p4", outs[4].text)

	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "page 3")
}

func TestStagingExt(t *testing.T) {
	assert.Equal(t, ".heic", stagingExt("IMG_0042.HEIC"))
	assert.Equal(t, ".jpg", stagingExt("photo.jpg"))
	assert.Equal(t, ".png", stagingExt("noext"))
}
