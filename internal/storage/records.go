package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

type fileRecord struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ContentHash    string    `gorm:"size:64;not null;uniqueIndex"`
	OriginalName   string    `gorm:"not null"`
	StorageName    string    `gorm:"not null"`
	MimeType       string    `gorm:"not null"`
	SizeBytes      int64     `gorm:"not null"`
	Status         string    `gorm:"size:16;not null;index"`
	ErrorMessage   string    `gorm:"type:text"`
	Metadata       string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null;index"`
	LastAccessedAt time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

func (fileRecord) TableName() string { return "files" }

type jobRecord struct {
	ID                  string  `gorm:"primaryKey;size:36"`
	FileID              string  `gorm:"size:36;not null;index"`
	Language            string  `gorm:"size:16;not null"`
	ConfidenceThreshold float64 `gorm:"not null"`
	Status              string  `gorm:"size:16;not null;index"`
	ErrorMessage        string  `gorm:"type:text"`
	Result              string  `gorm:"type:text"`
	TotalPages          int
	OverallConfidence   float64
	CreatedAt           time.Time `gorm:"not null;index"`
	StartedAt           *time.Time
	CompletedAt         *time.Time
}

func (jobRecord) TableName() string { return "jobs" }

func fileRecordFromModel(f *models.StoredFile) (fileRecord, error) {
	meta, err := encodeJSON(f.Metadata)
	if err != nil {
		return fileRecord{}, fmt.Errorf("failed to marshal file metadata: %w", err)
	}

	return fileRecord{
		ID:             f.ID,
		ContentHash:    f.ContentHash,
		OriginalName:   f.OriginalName,
		StorageName:    f.StorageName,
		MimeType:       f.MimeType,
		SizeBytes:      f.SizeBytes,
		Status:         string(f.Status),
		ErrorMessage:   f.ErrorMessage,
		Metadata:       meta,
		CreatedAt:      f.CreatedAt,
		LastAccessedAt: f.LastAccessedAt,
		StartedAt:      f.StartedAt,
		CompletedAt:    f.CompletedAt,
	}, nil
}

func (r *fileRecord) toModel() *models.StoredFile {
	f := &models.StoredFile{
		ID:             r.ID,
		ContentHash:    r.ContentHash,
		OriginalName:   r.OriginalName,
		StorageName:    r.StorageName,
		MimeType:       r.MimeType,
		SizeBytes:      r.SizeBytes,
		Status:         models.FileStatus(r.Status),
		ErrorMessage:   r.ErrorMessage,
		CreatedAt:      r.CreatedAt,
		LastAccessedAt: r.LastAccessedAt,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
	}
	if r.Metadata != "" {
		// metadata is written by this package only
		_ = json.Unmarshal([]byte(r.Metadata), &f.Metadata)
	}
	return f
}

func jobRecordFromModel(j *models.Job) (jobRecord, error) {
	rec := jobRecord{
		ID:                  j.ID,
		FileID:              j.FileID,
		Language:            j.Language,
		ConfidenceThreshold: j.ConfidenceThreshold,
		Status:              string(j.Status),
		ErrorMessage:        j.ErrorMessage,
		CreatedAt:           j.CreatedAt,
		StartedAt:           j.StartedAt,
		CompletedAt:         j.CompletedAt,
	}
	if j.Result != nil {
		res, err := encodeJSON(j.Result)
		if err != nil {
			return jobRecord{}, fmt.Errorf("failed to marshal job result: %w", err)
		}
		rec.Result = res
		rec.TotalPages = j.Result.TotalPages
		rec.OverallConfidence = j.Result.OverallConfidence
	}
	return rec, nil
}

func (r *jobRecord) toModel() (*models.Job, error) {
	j := &models.Job{
		ID:                  r.ID,
		FileID:              r.FileID,
		Language:            r.Language,
		ConfidenceThreshold: r.ConfidenceThreshold,
		Status:              models.JobStatus(r.Status),
		ErrorMessage:        r.ErrorMessage,
		CreatedAt:           r.CreatedAt,
		StartedAt:           r.StartedAt,
		CompletedAt:         r.CompletedAt,
	}
	if r.Result != "" {
		var res models.OCRResult
		if err := json.Unmarshal([]byte(r.Result), &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result of job %s: %w", r.ID, err)
		}
		j.Result = &res
	}
	return j, nil
}

func (r *jobRecord) toSummary() models.JobSummary {
	return models.JobSummary{
		JobID:             r.ID,
		FileID:            r.FileID,
		Language:          r.Language,
		Status:            models.JobStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		CompletedAt:       r.CompletedAt,
		ErrorMessage:      r.ErrorMessage,
		TotalPages:        r.TotalPages,
		OverallConfidence: r.OverallConfidence,
	}
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(sanitizeJSONForPostgres(b)), nil
}
