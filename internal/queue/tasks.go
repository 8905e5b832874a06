package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

// TypeProcessDocument is the asynq task type carrying a models.RunRequest.
const TypeProcessDocument = "ocr:process"

// NewProcessTask wraps req in a task.
func NewProcessTask(req models.RunRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run request: %w", err)
	}
	return asynq.NewTask(TypeProcessDocument, payload), nil
}

// ParseRunRequest decodes and checks a task payload.
func ParseRunRequest(payload []byte) (models.RunRequest, error) {
	var req models.RunRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("failed to unmarshal run request: %w", err)
	}
	if req.JobID == "" || req.FileID == "" {
		return req, fmt.Errorf("run request missing job_id or file_id")
	}
	return req, nil
}
