/**
 * Tesseract Engine - word-level OCR through gosseract
 *
 * A fresh gosseract client is created per page; clients are not safe for
 * concurrent use and hold the decoded image.
 */

package tesseract

import (
	"context"
	"fmt"
	"strconv"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/ocr-pipeline/internal/processor"
)

// Config holds Tesseract configuration
type Config struct {
	TessdataPrefix string // "" uses the library default
	DPI            int    // resolution hint for rasterized pages
}

// Engine implements processor.Recognizer
type Engine struct {
	cfg Config
}

var _ processor.Recognizer = (*Engine)(nil)

// NewEngine creates a Tesseract engine
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Recognize returns word boxes in detection order.
func (e *Engine) Recognize(ctx context.Context, pageImage []byte, language string) ([]processor.Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.cfg.TessdataPrefix); err != nil {
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("failed to set language %s: %w", language, err)
	}
	if e.cfg.DPI > 0 {
		if err := client.SetVariable("user_defined_dpi", strconv.Itoa(e.cfg.DPI)); err != nil {
			return nil, fmt.Errorf("failed to set dpi: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(pageImage); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	regions := make([]processor.Region, len(boxes))
	for i, b := range boxes {
		regions[i] = processor.Region{
			Text:       b.Word,
			Confidence: b.Confidence,
			Box:        b.Box,
		}
	}
	return regions, nil
}

// Info describes the installed engine for health checks.
type Info struct {
	Version   string   `json:"version"`
	Languages []string `json:"languages"`
}

// Describe reports the tesseract version and installed language packs.
func (e *Engine) Describe() (*Info, error) {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return nil, fmt.Errorf("failed to list tesseract languages: %w", err)
	}
	return &Info{Version: gosseract.Version(), Languages: langs}, nil
}

// MissingLanguages returns the wanted languages with no installed pack.
func MissingLanguages(installed, wanted []string) []string {
	have := make(map[string]struct{}, len(installed))
	for _, l := range installed {
		have[l] = struct{}{}
	}
	var missing []string
	for _, l := range wanted {
		if _, ok := have[l]; !ok {
			missing = append(missing, l)
		}
	}
	return missing
}
