package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
)

// maxErrorBody caps how much of an error response is kept in the message.
const maxErrorBody = 512

func healthCheck(ctx context.Context, client *http.Client, baseURL, service string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s health check failed: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s health check returned status %d: %s", service, resp.StatusCode, string(body))
	}
	return nil
}

// checkStatus maps a non-2xx response to an UpstreamError carrying the status.
func checkStatus(service string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return errors.NewUpstreamError(service, status, fmt.Errorf("response: %s", string(body)))
}
