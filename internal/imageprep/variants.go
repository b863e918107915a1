package imageprep

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/invopipe/invopipe/internal/entity"
)

const (
	targetLongEdge = 2800
	minLongEdge    = 800
	maxLongEdge    = 4000

	binarizeThreshold  = 160
	sharpenedBlurFloor = 0.3
)

// Variant is one OCR-oriented rendition of a source image.
type Variant struct {
	Name        string
	Description string
	Image       *image.NRGBA
}

// Load decodes an image from disk, honoring EXIF orientation.
func Load(path string) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(true))
}

// Save writes img to path; the format follows the file extension.
func Save(img image.Image, path string) error {
	return imaging.Save(img, path)
}

// BuildVariants produces the ordered variant set for one source image:
// standard, high_contrast, receipt_mode, plus a sharpened variant only when
// the source scored blurry. Each variant is independently fed to OCR.
func BuildVariants(src image.Image, qa entity.QualityAssessment) []Variant {
	base := resizeLongEdge(imaging.Grayscale(src))

	standard := imaging.Sharpen(stretchContrast(imaging.Blur(base, 0.4), 0.02, 0.98), 0.5)

	variants := []Variant{
		{
			Name:        "standard",
			Description: "grayscale, normalized, mild sharpen",
			Image:       standard,
		},
		{
			Name:        "high_contrast",
			Description: "strong contrast stretch",
			Image:       imaging.Sharpen(imaging.AdjustContrast(base, 35), 1.2),
		},
		{
			Name:        "receipt_mode",
			Description: "fixed-threshold binarization for thermal receipts",
			Image:       binarize(base, binarizeThreshold),
		},
	}
	if qa.BlurScore > sharpenedBlurFloor {
		variants = append(variants, Variant{
			Name:        "sharpened",
			Description: "aggressive sharpen for blurry sources",
			Image:       imaging.Sharpen(standard, 2.0),
		})
	}
	return variants
}

// resizeLongEdge resizes to the target long edge when the source falls
// outside the accepted range; in-range images pass through untouched.
func resizeLongEdge(img *image.NRGBA) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	long := w
	if h > long {
		long = h
	}
	if long >= minLongEdge && long <= maxLongEdge {
		return img
	}
	if w >= h {
		return imaging.Resize(img, targetLongEdge, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, targetLongEdge, imaging.Lanczos)
}

// stretchContrast linearly remaps luminance so the loPct..hiPct percentile
// band spans the full range. Gentler than a fixed contrast bump on documents
// that are mostly paper.
func stretchContrast(img *image.NRGBA, loPct, hiPct float64) *image.NRGBA {
	hist := imaging.Histogram(img)
	lo, hi := percentile(hist, loPct), percentile(hist, hiPct)
	if hi <= lo {
		return img
	}
	scale := 255.0 / float64(hi-lo)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		remap := func(v uint8) uint8 {
			f := (float64(v) - float64(lo)) * scale
			if f < 0 {
				f = 0
			}
			if f > 255 {
				f = 255
			}
			return uint8(f)
		}
		return color.NRGBA{R: remap(c.R), G: remap(c.G), B: remap(c.B), A: c.A}
	})
}

func percentile(hist [256]float64, p float64) int {
	cum := 0.0
	for i, v := range hist {
		cum += v
		if cum >= p {
			return i
		}
	}
	return 255
}

func binarize(img *image.NRGBA, threshold uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := uint8(0)
		// grayscale input, so any channel works
		if c.R >= threshold {
			v = 255
		}
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})
}
