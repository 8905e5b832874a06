/**
 * File Service Client for the OCR worker
 *
 * Lets the coordinator run against a remote file service instead of the
 * local content store:
 * - GET  /files/{id}           record lookup
 * - GET  /files/{id}/download  original bytes
 * - PUT  /files/{id}/status    status push (query: status, error_message)
 */

package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

const fileServiceName = "file-service"

// FileServiceClient implements the coordinator's file port over HTTP.
type FileServiceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewFileServiceClient creates a client; timeout bounds each request.
func NewFileServiceClient(baseURL string, timeout time.Duration) *FileServiceClient {
	return &FileServiceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewLogger("file-service-client"),
	}
}

// HealthCheck verifies the file service is available
func (c *FileServiceClient) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, c.httpClient, c.baseURL, fileServiceName)
}

// Get fetches the file record.
func (c *FileServiceClient) Get(ctx context.Context, fileID string) (*models.StoredFile, error) {
	body, err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID), fileID)
	if err != nil {
		return nil, err
	}

	var file models.StoredFile
	if err := json.Unmarshal(body, &file); err != nil {
		return nil, errors.NewUpstreamError(fileServiceName, 0, fmt.Errorf("failed to decode file record: %w", err))
	}
	if file.ID == "" {
		file.ID = fileID
	}
	return &file, nil
}

// ReadBytes downloads the original content.
func (c *FileServiceClient) ReadBytes(ctx context.Context, file *models.StoredFile) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(file.ID)+"/download", file.ID)
}

// SetStatus pushes a status change to the file service.
func (c *FileServiceClient) SetStatus(ctx context.Context, fileID string, status models.FileStatus, errorMessage string) error {
	if !status.Valid() {
		return errors.NewValidationError(fmt.Sprintf("invalid file status: %s", status), nil)
	}

	q := url.Values{}
	q.Set("status", string(status))
	if errorMessage != "" {
		q.Set("error_message", errorMessage)
	}

	_, err := c.do(ctx, http.MethodPut, "/files/"+url.PathEscape(fileID)+"/status?"+q.Encode(), fileID)
	if err == nil {
		c.logger.Debug("File status pushed", "file_id", fileID, "status", status)
	}
	return err
}

func (c *FileServiceClient) do(ctx context.Context, method, path, fileID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamError(fileServiceName, 0,
			fmt.Errorf("%s %s failed after %v: %w", method, path, time.Since(startTime), err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewUpstreamError(fileServiceName, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewNotFoundError("file", fileID)
	}
	if err := checkStatus(fileServiceName, resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
