// Package models holds the records shared by the store, the pipeline and the
// coordinator.
package models

import "time"

// FileStatus is the lifecycle state of a StoredFile.
type FileStatus string

const (
	FileStatusUploaded   FileStatus = "uploaded"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// Valid reports whether s is one of the enumerated file statuses.
func (s FileStatus) Valid() bool {
	switch s {
	case FileStatusUploaded, FileStatusProcessing, FileStatusCompleted, FileStatusFailed:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo enforces queued -> processing -> completed|failed.
// A queued job may fail directly when its request is rejected before processing.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	}
	return false
}

// PredecessorsOf lists the statuses from which next may be entered.
func PredecessorsOf(next JobStatus) []JobStatus {
	var out []JobStatus
	for _, s := range []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed} {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// StoredFile is a content-addressed upload.
type StoredFile struct {
	ID             string                 `json:"file_id"`
	ContentHash    string                 `json:"file_hash"`
	OriginalName   string                 `json:"original_filename"`
	StorageName    string                 `json:"stored_filename"`
	MimeType       string                 `json:"mime_type"`
	SizeBytes      int64                  `json:"file_size"`
	Status         FileStatus             `json:"processing_status"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	CreatedAt      time.Time              `json:"upload_timestamp"`
	LastAccessedAt time.Time              `json:"last_accessed"`
	StartedAt      *time.Time             `json:"processing_started_at,omitempty"`
	CompletedAt    *time.Time             `json:"processing_completed_at,omitempty"`
	Metadata       map[string]interface{} `json:"file_metadata,omitempty"`
}

// FileStatusView is the polling projection of a StoredFile.
type FileStatusView struct {
	FileID       string     `json:"file_id"`
	Status       FileStatus `json:"status"`
	CreatedAt    time.Time  `json:"upload_timestamp"`
	StartedAt    *time.Time `json:"processing_started_at,omitempty"`
	CompletedAt  *time.Time `json:"processing_completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// StatusView projects the file onto its polling view.
func (f *StoredFile) StatusView() *FileStatusView {
	return &FileStatusView{
		FileID:       f.ID,
		Status:       f.Status,
		CreatedAt:    f.CreatedAt,
		StartedAt:    f.StartedAt,
		CompletedAt:  f.CompletedAt,
		ErrorMessage: f.ErrorMessage,
	}
}

// Job is one OCR attempt against a StoredFile.
type Job struct {
	ID                  string     `json:"job_id"`
	FileID              string     `json:"file_id"`
	Language            string     `json:"language"`
	ConfidenceThreshold float64    `json:"confidence_threshold"`
	Status              JobStatus  `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	Result              *OCRResult `json:"result,omitempty"`
}

// JobUpdate is one status transition of a Job.
type JobUpdate struct {
	Status       JobStatus
	ErrorMessage string
	Result       *OCRResult
}

// JobSummary is a row of the recent-jobs listing.
type JobSummary struct {
	JobID             string     `json:"job_id"`
	FileID            string     `json:"file_id"`
	Language          string     `json:"language"`
	Status            JobStatus  `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	TotalPages        int        `json:"total_pages,omitempty"`
	OverallConfidence float64    `json:"overall_confidence,omitempty"`
}

// RunRequest is the payload handed from submit to run.
type RunRequest struct {
	JobID               string  `json:"job_id"`
	FileID              string  `json:"file_id"`
	Language            string  `json:"language"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}
