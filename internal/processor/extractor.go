/**
 * Page Extractor - OCR for a single page
 *
 * Preprocesses the page, hands it to the recognizer and keeps only regions at or
 * above the confidence threshold with non-blank text. Detector order is preserved.
 */

package processor

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

// Region is one word the recognizer detected. Box is in page pixels.
type Region struct {
	Text       string
	Confidence float64 // 0-100
	Box        image.Rectangle
}

// Recognizer runs OCR over an encoded page image.
type Recognizer interface {
	Recognize(ctx context.Context, pageImage []byte, language string) ([]Region, error)
}

// PageExtractor turns one page into text blocks
type PageExtractor struct {
	preprocessor *ImagePreprocessor
	recognizer   Recognizer
}

// NewPageExtractor creates a page extractor
func NewPageExtractor(pre *ImagePreprocessor, rec Recognizer) *PageExtractor {
	return &PageExtractor{preprocessor: pre, recognizer: rec}
}

// Extract returns the retained blocks of page, tagged with pageNumber.
func (e *PageExtractor) Extract(ctx context.Context, page image.Image, language string, pageNumber int, threshold float64) ([]models.TextBlock, error) {
	img := page
	if e.preprocessor != nil {
		img = e.preprocessor.Normalize(page)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.NewOCRFailedError(pageNumber, err)
	}

	regions, err := e.recognizer.Recognize(ctx, buf.Bytes(), language)
	if err != nil {
		return nil, errors.NewOCRFailedError(pageNumber, err)
	}

	return filterRegions(regions, pageNumber, threshold), nil
}

func filterRegions(regions []Region, pageNumber int, threshold float64) []models.TextBlock {
	blocks := make([]models.TextBlock, 0, len(regions))
	for _, r := range regions {
		text := strings.TrimSpace(r.Text)
		if text == "" || r.Confidence < threshold {
			continue
		}
		blocks = append(blocks, models.TextBlock{
			Text:       text,
			Confidence: models.Round2(r.Confidence),
			BBox: models.BoundingBox{
				X:      r.Box.Min.X,
				Y:      r.Box.Min.Y,
				Width:  r.Box.Dx(),
				Height: r.Box.Dy(),
			},
			Page: pageNumber,
		})
	}
	return blocks
}
