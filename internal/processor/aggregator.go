/**
 * Document Aggregator - whole-document OCR
 *
 * Decodes a PDF or single image into pages, extracts every page and merges the
 * blocks into one OCRResult. The first page failure aborts the document.
 */

package processor

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/filetype"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

// AggregatorConfig holds document-level settings
type AggregatorConfig struct {
	SupportedLanguages []string
	PageConcurrency    int
}

// DocumentAggregator runs the OCR pipeline over whole documents
type DocumentAggregator struct {
	cfg        AggregatorConfig
	extractor  *PageExtractor
	rasterizer Rasterizer
	languages  map[string]struct{}
	now        func() time.Time
	logger     *logging.Logger
}

// NewDocumentAggregator creates a document aggregator
func NewDocumentAggregator(cfg AggregatorConfig, extractor *PageExtractor, rasterizer Rasterizer) (*DocumentAggregator, error) {
	if extractor == nil {
		return nil, fmt.Errorf("page extractor is required")
	}
	if rasterizer == nil {
		return nil, fmt.Errorf("rasterizer is required")
	}
	if len(cfg.SupportedLanguages) == 0 {
		return nil, fmt.Errorf("supported languages are required")
	}
	if cfg.PageConcurrency < 1 {
		cfg.PageConcurrency = 1
	}

	langs := make(map[string]struct{}, len(cfg.SupportedLanguages))
	for _, l := range cfg.SupportedLanguages {
		langs[l] = struct{}{}
	}

	return &DocumentAggregator{
		cfg:        cfg,
		extractor:  extractor,
		rasterizer: rasterizer,
		languages:  langs,
		now:        time.Now,
		logger:     logging.NewLogger("aggregator"),
	}, nil
}

// SupportsLanguage reports whether language is in the allow-list.
func (a *DocumentAggregator) SupportsLanguage(language string) bool {
	_, ok := a.languages[language]
	return ok
}

// ValidateRequest rejects an unsupported language or out-of-range threshold.
func (a *DocumentAggregator) ValidateRequest(language string, threshold float64) error {
	if !a.SupportsLanguage(language) {
		return errors.NewUnsupportedLanguageError(language, a.cfg.SupportedLanguages)
	}
	if threshold < 0 || threshold > 100 {
		return errors.NewValidationError(
			fmt.Sprintf("confidence_threshold must be between 0 and 100, got %g", threshold), nil)
	}
	return nil
}

// Process OCRs data as a whole document.
func (a *DocumentAggregator) Process(ctx context.Context, data []byte, filename, language string, threshold float64) (*models.OCRResult, error) {
	start := a.now()

	if err := a.ValidateRequest(language, threshold); err != nil {
		return nil, err
	}

	pages, err := a.decodePages(ctx, data, filename)
	if err != nil {
		return nil, err
	}

	perPage := make([][]models.TextBlock, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.PageConcurrency)
	for i, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			blocks, err := a.extractor.Extract(gctx, page, language, i+1, threshold)
			if err != nil {
				return err
			}
			perPage[i] = blocks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Error("Document OCR failed", "filename", filename, "pages", len(pages), "error", err)
		return nil, err
	}

	result := assemble(perPage, language)
	result.ProcessingTime = models.Round2(a.now().Sub(start).Seconds())
	result.Timestamp = a.now().UTC()
	result.Metadata = map[string]interface{}{
		"filename":             filename,
		"file_size":            len(data),
		"confidence_threshold": threshold,
		"total_text_blocks":    len(result.TextBlocks),
	}

	a.logger.Info("Document OCR completed",
		"filename", filename,
		"pages", result.TotalPages,
		"blocks", len(result.TextBlocks),
		"overall_confidence", result.OverallConfidence,
		"processing_time", result.ProcessingTime)
	return result, nil
}

func (a *DocumentAggregator) decodePages(ctx context.Context, data []byte, filename string) ([]image.Image, error) {
	switch {
	case filetype.IsPDF(filename):
		return a.rasterizer.Rasterize(ctx, data)
	case filetype.IsImage(filename):
		img, err := DecodeImage(data)
		if err != nil {
			return nil, err
		}
		return []image.Image{img}, nil
	}
	return nil, errors.NewUnsupportedFormatError(filename, filetype.Extension(filename))
}

// assemble merges per-page blocks in page order.
func assemble(perPage [][]models.TextBlock, language string) *models.OCRResult {
	blocks := make([]models.TextBlock, 0)
	var sections []string
	sum := 0.0

	for i, pageBlocks := range perPage {
		if len(pageBlocks) == 0 {
			continue
		}
		texts := make([]string, len(pageBlocks))
		for j, b := range pageBlocks {
			texts[j] = b.Text
			sum += b.Confidence
		}
		sections = append(sections, fmt.Sprintf("--- Page %d ---\n%s", i+1, strings.Join(texts, "\n")))
		blocks = append(blocks, pageBlocks...)
	}

	overall := 0.0
	if len(blocks) > 0 {
		overall = models.Round2(sum / float64(len(blocks)))
	}

	return &models.OCRResult{
		TotalPages:        len(perPage),
		Language:          language,
		OverallConfidence: overall,
		TextBlocks:        blocks,
		FullText:          strings.Join(sections, "\n\n"),
	}
}
