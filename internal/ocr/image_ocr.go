package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/invopipe/invopipe/constants"
	"github.com/invopipe/invopipe/internal/entity"
	"github.com/invopipe/invopipe/internal/imageprep"
)

func (e *Engine) extractImage(ctx context.Context, runDir string, doc entity.RawDocument, res *Result) error {
	srcPath := filepath.Join(runDir, "input"+stagingExt(doc.FileName))
	if err := os.WriteFile(srcPath, doc.Bytes, 0o600); err != nil {
		return fmt.Errorf("staging image: %w", err)
	}

	ext := constants.NormalizeExt(filepath.Ext(doc.FileName))
	if constants.IsHEICExt(ext) {
		converted, warns, err := convertHEICtoPNG(ctx, e.runner, e.cfg.HeicConverter, srcPath, runDir)
		res.Warnings = append(res.Warnings, warns...)
		if err != nil {
			e.logger.Error("heic conversion failed", "file", doc.FileName, "error", err)
			return err
		}
		srcPath = converted
	}

	img, err := imageprep.Load(srcPath)
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}

	qa := imageprep.Assess(img)
	res.Quality = &qa
	e.logger.Debug("image quality assessed",
		"file", doc.FileName,
		"blur", qa.BlurScore,
		"glare", qa.GlareScore,
		"overall", qa.OverallQuality,
	)

	variants := imageprep.BuildVariants(img, qa)

	type recognized struct {
		name string
		text string
		conf float32
	}
	var best *recognized
	for _, v := range variants {
		res.Variants = append(res.Variants, v.Name)

		variantPath := filepath.Join(runDir, "variant-"+v.Name+".png")
		if err := imageprep.Save(v.Image, variantPath); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("variant %s: save: %v", v.Name, err))
			continue
		}

		variantCtx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
		out, err := e.recognizePage(variantCtx, variantPath)
		cancel()
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("variant %s: %v", v.Name, err))
			continue
		}

		conf := blendConfidence(out.conf, heuristicConfidence(out.text))
		e.logger.Debug("variant recognized",
			"variant", v.Name,
			"chars", len(out.text),
			"confidence", conf,
		)
		if best == nil || conf > best.conf {
			best = &recognized{name: v.Name, text: out.text, conf: conf}
		}
	}
	if best == nil {
		return fmt.Errorf("recognition failed for all %d preprocessing variants", len(variants))
	}

	res.Text = strings.TrimSpace(best.text)
	res.Pages = 1
	res.Method = constants.MethodImageOCR
	res.Confidence = best.conf
	res.VariantUsed = best.name
	res.Decision = fmt.Sprintf("image ocr, best of %d variants: %s", len(variants), best.name)
	return nil
}

// stagingExt picks a filename extension for the staged copy of an uploaded
// image so downstream tools sniff the right format.
func stagingExt(fileName string) string {
	ext := constants.NormalizeExt(filepath.Ext(fileName))
	if ext == "" {
		return ".png"
	}
	return "." + ext
}

// recognizePage runs tesseract over one page or variant image, optionally
// following up with a TSV pass for word-level confidence.
func (e *Engine) recognizePage(ctx context.Context, imgPath string) (pageOut, error) {
	text, _, err := e.tesseractText(ctx, imgPath)
	if err != nil {
		return pageOut{}, err
	}

	var conf float32
	if e.cfg.EnableTSVConfidence {
		c, _, tsvErr := e.tesseractTSVConfidence(ctx, imgPath)
		if tsvErr != nil {
			e.logger.Warn("tsv confidence pass failed", "image", filepath.Base(imgPath), "error", tsvErr)
		} else {
			conf = c
		}
	}
	return pageOut{text: text, conf: conf}, nil
}

func (e *Engine) tesseractText(ctx context.Context, path string) (string, []string, error) {
	args := []string{path, "stdout", "-l", e.cfg.Language}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}

	// minor cleanup of obvious line noise
	txt := reBoxNoise.ReplaceAllString(string(out), "")
	return txt, nil, nil
}

// tesseractTSVConfidence runs tesseract in TSV mode and returns mean word
// conf in 0..1. Word rows carry the confidence in column 11 of 12; the
// final column is the word text itself.
func (e *Engine) tesseractTSVConfidence(ctx context.Context, path string) (float32, []string, error) {
	args := []string{path, "stdout", "-l", e.cfg.Language}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	// TSV output
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, []string{string(errb)}, fmt.Errorf("tesseract TSV: %w", err)
	}

	lines := strings.Split(string(out), "\n")
	var sum, n float64
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue
		} // skip header
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		} // malformed row
		confStr := cols[10]
		if confStr == "" || confStr == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil, nil
	}
	mean := sum / n // 0..100
	return float32(mean / 100.0), nil, nil
}
