package runner

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
)

// DiffReport summarizes a pixel comparison between two images.
type DiffReport struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	DiffPixels  int     `json:"diff_pixels"`
	TotalPixels int     `json:"total_pixels"`
	DiffRatio   float64 `json:"diff_ratio"`
}

// Match reports whether the diff ratio is within the tolerance (0..1).
func (r DiffReport) Match(tolerance float64) bool {
	return r.DiffRatio <= tolerance
}

// CompareImages compares two PNG files pixel by pixel and, when diffPath is
// non-empty, writes a diff image with mismatching pixels highlighted in red.
// Dimension mismatch is an error; callers treat it as a failed comparison.
func CompareImages(beforePath, afterPath, diffPath string) (DiffReport, error) {
	before, err := loadPNG(beforePath)
	if err != nil {
		return DiffReport{}, fmt.Errorf("load %s: %w", beforePath, err)
	}
	after, err := loadPNG(afterPath)
	if err != nil {
		return DiffReport{}, fmt.Errorf("load %s: %w", afterPath, err)
	}
	bb, ab := before.Bounds(), after.Bounds()
	if bb.Dx() != ab.Dx() || bb.Dy() != ab.Dy() {
		return DiffReport{}, fmt.Errorf("dimension mismatch: %dx%d vs %dx%d", bb.Dx(), bb.Dy(), ab.Dx(), ab.Dy())
	}

	w, h := bb.Dx(), bb.Dy()
	report := DiffReport{Width: w, Height: h, TotalPixels: w * h}
	var diffImg *image.RGBA
	if diffPath != "" {
		diffImg = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	highlight := color.RGBA{R: 255, A: 255}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bp := before.At(bb.Min.X+x, bb.Min.Y+y)
			ap := after.At(ab.Min.X+x, ab.Min.Y+y)
			if samePixel(bp, ap) {
				if diffImg != nil {
					diffImg.Set(x, y, dimmed(ap))
				}
				continue
			}
			report.DiffPixels++
			if diffImg != nil {
				diffImg.Set(x, y, highlight)
			}
		}
	}
	if report.TotalPixels > 0 {
		report.DiffRatio = float64(report.DiffPixels) / float64(report.TotalPixels)
	}

	if diffImg != nil {
		f, err := os.Create(diffPath)
		if err != nil {
			return report, err
		}
		if err := png.Encode(f, diffImg); err != nil {
			f.Close()
			return report, err
		}
		if err := f.Close(); err != nil {
			return report, err
		}
	}
	return report, nil
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

func samePixel(a, b color.Color) bool {
	ar, ag, ab2, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab2 == bb && aa == ba
}

// dimmed renders a matching pixel as a faded grayscale backdrop so the red
// highlights stand out in the diff image.
func dimmed(c color.Color) color.Color {
	r, g, b, _ := c.RGBA()
	gray := uint8(((r + g + b) / 3) >> 8)
	faded := gray/2 + 128
	return color.RGBA{R: faded, G: faded, B: faded, A: 255}
}
