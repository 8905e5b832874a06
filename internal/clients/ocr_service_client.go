package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

const ocrServiceName = "ocr-service"

// OCRServiceClient implements the coordinator's extractor port by posting
// documents to a remote OCR service.
type OCRServiceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewOCRServiceClient(baseURL string, timeout time.Duration) *OCRServiceClient {
	return &OCRServiceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewLogger("ocr-service-client"),
	}
}

// HealthCheck verifies the OCR service is available
func (c *OCRServiceClient) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, c.baseURL, ocrServiceName)
}

// Process sends data to POST /extract and decodes the OCRResult it returns.
func (c *OCRServiceClient) Process(ctx context.Context, data []byte, filename, language string, threshold float64) (*models.OCRResult, error) {
	if len(data) == 0 {
		return nil, errors.NewValidationError("file content is empty", nil)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write file data to form: %w", err)
	}
	if err := writer.WriteField("language", language); err != nil {
		return nil, fmt.Errorf("failed to write language field: %w", err)
	}
	if err := writer.WriteField("confidence_threshold", strconv.FormatFloat(threshold, 'f', -1, 64)); err != nil {
		return nil, fmt.Errorf("failed to write confidence_threshold field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.logger.Debug("Sending document to OCR service", "filename", filename, "size", len(data), "language", language)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamError(ocrServiceName, 0,
			fmt.Errorf("extract request failed after %v: %w", time.Since(startTime), err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewUpstreamError(ocrServiceName, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}
	if err := checkStatus(ocrServiceName, resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	var result models.OCRResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, errors.NewUpstreamError(ocrServiceName, resp.StatusCode, fmt.Errorf("failed to decode OCR result: %w", err))
	}

	c.logger.Info("OCR service finished", "filename", filename, "pages", result.TotalPages,
		"confidence", result.OverallConfidence, "duration", time.Since(startTime).String())
	return &result, nil
}
