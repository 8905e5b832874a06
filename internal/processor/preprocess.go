/**
 * Image Preprocessor - page normalization ahead of OCR
 *
 * Grayscale, 3x3 median denoise, then adaptive Gaussian thresholding.
 * Preprocessing only improves accuracy: any failure hands back the input image.
 */

package processor

import (
	"fmt"
	"image"
	"math"
	"sort"

	"golang.org/x/image/draw"

	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
)

// PreprocessConfig holds thresholding parameters
type PreprocessConfig struct {
	BlockSize int     // odd neighbourhood size for the local mean
	C         float64 // subtracted from the local mean
}

// DefaultPreprocessConfig matches the tuning the pipeline ships with.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{BlockSize: 11, C: 2}
}

// ImagePreprocessor normalizes decoded pages. Safe for concurrent use.
type ImagePreprocessor struct {
	cfg    PreprocessConfig
	kernel []float64
	logger *logging.Logger
}

// NewImagePreprocessor builds the Gaussian kernel once for cfg.
func NewImagePreprocessor(cfg PreprocessConfig) (*ImagePreprocessor, error) {
	if cfg.BlockSize < 3 || cfg.BlockSize%2 == 0 {
		return nil, fmt.Errorf("block size must be odd and >= 3, got %d", cfg.BlockSize)
	}
	return &ImagePreprocessor{
		cfg:    cfg,
		kernel: gaussianKernel(cfg.BlockSize),
		logger: logging.NewLogger("preprocess"),
	}, nil
}

// Normalize returns a binarized grayscale copy of img, or img itself when it
// cannot be processed.
func (p *ImagePreprocessor) Normalize(img image.Image) (out image.Image) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Preprocessing failed, using original image", "panic", fmt.Sprint(r))
			out = img
		}
	}()

	if img == nil {
		return img
	}
	b := img.Bounds()
	if b.Empty() {
		return img
	}

	gray := toGray(img)
	w, h := b.Dx(), b.Dy()

	px := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		copy(px[y*w:(y+1)*w], gray.Pix[y*gray.Stride:y*gray.Stride+w])
	}

	denoised := medianFilter3(px, w, h)
	binary := p.adaptiveThreshold(denoised, w, h)

	return &image.Gray{Pix: binary, Stride: w, Rect: image.Rect(0, 0, w, h)}
}

// toGray converts to 8-bit luminance; single-channel input is copied as is.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// medianFilter3 applies a 3x3 median with replicated borders.
func medianFilter3(src []uint8, w, h int) []uint8 {
	dst := make([]uint8, len(src))
	var win [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				yy := clamp(y+dy, 0, h-1)
				for dx := -1; dx <= 1; dx++ {
					win[n] = src[yy*w+clamp(x+dx, 0, w-1)]
					n++
				}
			}
			s := win[:]
			sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
			dst[y*w+x] = win[4]
		}
	}
	return dst
}

// gaussianKernel returns a normalized 1-D kernel of odd size with the sigma
// derived from the size.
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	half := size / 2
	k := make([]float64, size)
	sum := 0.0
	for i := range k {
		d := float64(i - half)
		k[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// adaptiveThreshold sets a pixel to white when it is brighter than its
// Gaussian-weighted neighbourhood mean minus C, black otherwise.
func (p *ImagePreprocessor) adaptiveThreshold(src []uint8, w, h int) []uint8 {
	half := len(p.kernel) / 2

	// separable blur: rows then columns, replicated borders
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := src[y*w : (y+1)*w]
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range p.kernel {
				acc += kv * float64(row[clamp(x+i-half, 0, w-1)])
			}
			tmp[y*w+x] = acc
		}
	}

	dst := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := 0.0
			for i, kv := range p.kernel {
				acc += kv * tmp[clamp(y+i-half, 0, h-1)*w+x]
			}
			mean := math.Round(acc)
			if float64(src[y*w+x]) > mean-p.cfg.C {
				dst[y*w+x] = 255
			}
		}
	}
	return dst
}
