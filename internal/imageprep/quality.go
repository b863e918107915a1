// Package imageprep assesses raster quality and builds the OCR-oriented
// image variants fed to the text-recognition engine.
package imageprep

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/invopipe/invopipe/internal/entity"
)

// Coarse sampling grid for the per-pixel passes. Full-resolution scans are
// not needed for scoring and would dominate runtime on large scans.
const sampleGrid = 96

const (
	glareLumFloor   = 245  // top ~4% of the 8-bit range
	paperBright     = 0.78 // sample counts as paper at or above this
	minDocDimension = 300
)

// Assess computes per-image quality signals, each in [0,1].
func Assess(img image.Image) entity.QualityAssessment {
	g := imaging.Grayscale(img)
	w, h := g.Bounds().Dx(), g.Bounds().Dy()

	stepX, stepY := w/sampleGrid, h/sampleGrid
	if stepX < 1 {
		stepX = 1
	}
	if stepY < 1 {
		stepY = 1
	}

	lum := func(x, y int) float64 {
		return float64(g.Pix[y*g.Stride+x*4]) / 255.0
	}

	var samples []float64
	var rows []float64
	bright := 0
	for y := 0; y < h; y += stepY {
		rowSum, rowN := 0.0, 0
		for x := 0; x < w; x += stepX {
			v := lum(x, y)
			samples = append(samples, v)
			rowSum += v
			rowN++
			if v >= paperBright {
				bright++
			}
		}
		if rowN > 0 {
			rows = append(rows, rowSum/float64(rowN))
		}
	}

	brightness := mean(samples)
	contrast := clamp01(stddev(samples, brightness) * 2)

	// Laplacian-like edge variance on the sample grid; flat means blurry.
	var lapSq, lapN float64
	for y := stepY; y+stepY < h; y += stepY {
		for x := stepX; x+stepX < w; x += stepX {
			lap := lum(x-stepX, y) + lum(x+stepX, y) + lum(x, y-stepY) + lum(x, y+stepY) - 4*lum(x, y)
			lapSq += lap * lap
			lapN++
		}
	}
	blur := 1.0
	if lapN > 0 {
		blur = 1 - clamp01((lapSq/lapN)/0.05)
	}

	// Glare from the luminance histogram mass above the near-white floor.
	hist := imaging.Histogram(g)
	glareFrac := 0.0
	for i := glareLumFloor; i < len(hist); i++ {
		glareFrac += hist[i]
	}
	glare := clamp01(glareFrac * 10)

	// Row-variance skew proxy: straight text alternates dark rows and gaps,
	// so low variance across row means suggests rotation or smear.
	rowVar := 0.0
	if len(rows) > 0 {
		rm := mean(rows)
		for _, r := range rows {
			rowVar += (r - rm) * (r - rm)
		}
		rowVar /= float64(len(rows))
	}
	skew := 1 - clamp01(rowVar/0.01)

	docDetected := false
	if len(samples) > 0 {
		brightFrac := float64(bright) / float64(len(samples))
		docDetected = brightFrac >= 0.2 && min(w, h) >= minDocDimension
	}

	qa := entity.QualityAssessment{
		BlurScore:   blur,
		GlareScore:  glare,
		SkewScore:   skew,
		Brightness:  brightness,
		Contrast:    contrast,
		Resolution:  entity.Resolution{Width: w, Height: h},
		DocDetected: docDetected,
	}
	qa.OverallQuality = overallQuality(qa)
	return qa
}

// overallQuality applies the fixed-weight combination with asymmetric
// penalty/bonus rules: blur and glare only penalize above threshold,
// brightness penalizes deviation from midtone, contrast earns a bonus,
// skew penalizes at half weight.
func overallQuality(qa entity.QualityAssessment) float64 {
	q := 1.0
	if qa.BlurScore > 0.5 {
		q -= 0.3 * (qa.BlurScore - 0.5) / 0.5
	}
	if qa.GlareScore > 0.4 {
		q -= 0.2 * (qa.GlareScore - 0.4) / 0.6
	}
	if dev := math.Abs(qa.Brightness - 0.5); dev > 0.3 {
		q -= 0.2 * (dev - 0.3) / 0.2
	}
	if qa.Contrast > 0.3 {
		q += 0.2 * math.Min(1, (qa.Contrast-0.3)/0.7)
	}
	if qa.SkewScore > 0.4 {
		q -= 0.05 * (qa.SkewScore - 0.4) / 0.6
	}
	return clamp01(q)
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func stddev(vs []float64, m float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(vs)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
