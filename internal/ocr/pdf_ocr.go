package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/invopipe/invopipe/constants"
	"github.com/invopipe/invopipe/internal/common"
)

// Text-layer probe thresholds. Below either one the layer is treated as
// absent or junk and the document goes to OCR.
const (
	minCharsPerPage   = 50
	minPrintableRatio = 0.85
)

func (e *Engine) extractPDF(ctx context.Context, runDir string, data []byte, res *Result) error {
	inPath := filepath.Join(runDir, "input.pdf")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return fmt.Errorf("staging pdf: %w", err)
	}

	pageCount, err := pdfPageCount(data)
	if err != nil {
		e.logger.Warn("pdf page count unavailable", "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("pdf metadata: %v", err))
		pageCount = 0
	}

	probeLimit := e.cfg.MaxPages
	text, probed, probeErr := probeTextLayer(inPath, probeLimit)
	if probeErr != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("text layer probe: %v", probeErr))
	}

	decision, useText := textLayerDecision(text, probed, probeErr)
	res.Decision = decision
	e.logger.Debug("pdf acquisition decision",
		"decision", decision,
		"page_count", pageCount,
		"probed_pages", probed,
	)
	if useText {
		res.Text = text
		res.Pages = probed
		res.Method = constants.MethodPDFText
		res.Confidence = blendConfidence(0.95, heuristicConfidence(text))
		return nil
	}

	return e.ocrPDF(ctx, runDir, inPath, res)
}

// pdfPageCount reads the page count with relaxed validation so that the
// slightly broken PDFs invoicing software emits still report a count.
func pdfPageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("reading pdf: %w", err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return pdfCtx.PageCount, nil
}

// probeTextLayer pulls the embedded text layer from up to limit pages
// (0 = all). The pdf library panics on some malformed files, so the probe
// recovers and reports that as an ordinary error.
func probeTextLayer(path string, limit int) (text string, probed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, probed = "", 0
			err = fmt.Errorf("text layer parse panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	n := reader.NumPage()
	if limit > 0 && n > limit {
		n = limit
	}

	var b strings.Builder
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(pageText)
	}
	return b.String(), n, nil
}

// textLayerDecision decides between the embedded text layer and OCR.
// The layer wins only when it is both dense enough per page and mostly
// printable; scanned PDFs and subsetted-font exports fail one of the two.
func textLayerDecision(text string, probed int, probeErr error) (string, bool) {
	if probeErr != nil {
		return "ocr: text layer unreadable", false
	}
	if probed == 0 {
		return "ocr: no pages probed", false
	}
	chars := len(strings.TrimSpace(text))
	charsPerPage := chars / probed
	if charsPerPage < minCharsPerPage {
		return fmt.Sprintf("ocr: text layer thin (%d chars/page)", charsPerPage), false
	}
	if ratio := printableRatio(text); ratio < minPrintableRatio {
		return fmt.Sprintf("ocr: text layer garbled (%.0f%% printable)", ratio*100), false
	}
	return fmt.Sprintf("text layer (%d chars/page)", charsPerPage), true
}

func (e *Engine) ocrPDF(ctx context.Context, runDir, inPath string, res *Result) error {
	prefix := filepath.Join(runDir, "page")

	args := []string{"-r", strconv.Itoa(e.cfg.DPI)}
	if e.cfg.RenderMode == common.RenderModeGray {
		args = append(args, "-gray")
	} else {
		args = append(args, "-png")
	}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, inPath, prefix)

	renderCtx, cancel := context.WithTimeout(ctx, e.cfg.RenderTimeout)
	_, errb, err := e.runner.Run(renderCtx, e.cfg.Pdftoppm, args...)
	cancel()
	if err != nil {
		detail := strings.TrimSpace(truncate(string(errb), 512))
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("pdftoppm: %s: %w", detail, common.ErrRenderFailure)
	}

	matches, _ := filepath.Glob(prefix + "-*")
	sortByPageNumber(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return fmt.Errorf("pdftoppm produced no page images: %w", common.ErrNoPages)
	}

	outs, warns := e.runPagePool(ctx, len(matches), func(pageCtx context.Context, page int) (pageOut, error) {
		return e.recognizePage(pageCtx, matches[page])
	})
	res.Warnings = append(res.Warnings, warns...)

	var b strings.Builder
	var confSum float32
	var confN int
	for i, out := range outs {
		if i > 0 {
			b.WriteString("\n\f\n") // keep a clear page break marker
		}
		b.WriteString(out.text)
		if out.conf > 0 {
			confSum += out.conf
			confN++
		}
	}

	res.Text = strings.TrimSpace(b.String())
	res.Pages = len(matches)
	res.Method = constants.MethodPDFOCR

	var recognizerConf float32
	if confN > 0 {
		recognizerConf = confSum / float32(confN)
	}
	res.Confidence = blendConfidence(recognizerConf, heuristicConfidence(res.Text))
	return nil
}

// sortByPageNumber orders pdftoppm outputs by their numeric page suffix.
// Lexicographic order breaks past page 9 when pdftoppm does not zero-pad.
func sortByPageNumber(paths []string) {
	num := func(p string) int {
		base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		idx := strings.LastIndexByte(base, '-')
		if idx < 0 {
			return 0
		}
		n, err := strconv.Atoi(base[idx+1:])
		if err != nil {
			return 0
		}
		return n
	}
	sort.Slice(paths, func(i, j int) bool { return num(paths[i]) < num(paths[j]) })
}
