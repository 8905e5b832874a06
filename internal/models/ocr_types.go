/**
 * OCR Types - Shared data structures for OCR output
 *
 * Produced by the page extractor and the document aggregator, embedded into Job records.
 */

package models

import (
	"math"
	"time"
)

// BoundingBox represents coordinates of a region in page pixels
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TextBlock is one recognized word with its confidence (0-100)
type TextBlock struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
	Page       int         `json:"page"`
}

// OCRResult represents the aggregated result of one document
type OCRResult struct {
	TotalPages        int                    `json:"total_pages"`
	Language          string                 `json:"language"`
	OverallConfidence float64                `json:"overall_confidence"`
	TextBlocks        []TextBlock            `json:"text_blocks"`
	FullText          string                 `json:"full_text"`
	Metadata          map[string]interface{} `json:"metadata"`
	ProcessingTime    float64                `json:"processing_time"` // seconds
	Timestamp         time.Time              `json:"timestamp"`
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
