package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

// MaxListLimit bounds ListRecent and ContentStore.List page sizes.
const MaxListLimit = 100

// JobStore persists Job records. Every status change is one conditional
// UPDATE, so a terminal job can never be moved again.
type JobStore struct {
	db     *gorm.DB
	now    func() time.Time
	logger *logging.Logger
}

// NewJobStore creates a job store
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.NewLogger("job-store"),
	}
}

// Create inserts a new job. Status defaults to queued.
func (s *JobStore) Create(ctx context.Context, job *models.Job) error {
	if job.ID == "" || job.FileID == "" {
		return errors.NewValidationError("job_id and file_id are required", nil)
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if !job.Status.Valid() {
		return errors.NewValidationError(fmt.Sprintf("Invalid job status: %q", job.Status), nil)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}

	rec, err := jobRecordFromModel(job)
	if err != nil {
		return errors.NewPersistenceError("encode job record", err)
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return errors.NewValidationError(fmt.Sprintf("Job already exists: %s", job.ID), nil)
		}
		return errors.NewPersistenceError("insert job record", err)
	}

	s.logger.Debug("Job created", "job_id", job.ID, "file_id", job.FileID, "status", job.Status)
	return nil
}

// Get returns the job or a NotFound error.
func (s *JobStore) Get(ctx context.Context, jobID string) (*models.Job, error) {
	var rec jobRecord
	err := s.db.WithContext(ctx).Where("id = ?", jobID).First(&rec).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NewNotFoundError("job", jobID)
	}
	if err != nil {
		return nil, errors.NewPersistenceError("load job record", err)
	}

	job, err := rec.toModel()
	if err != nil {
		return nil, errors.NewPersistenceError("decode job record", err)
	}
	return job, nil
}

// UpdateStatus applies upd if the job's current status may move to upd.Status.
// An unknown id is NotFound; a disallowed transition is a ValidationError and
// leaves the row untouched.
func (s *JobStore) UpdateStatus(ctx context.Context, jobID string, upd models.JobUpdate) error {
	if !upd.Status.Valid() {
		return errors.NewValidationError(fmt.Sprintf("Invalid job status: %q", upd.Status), nil)
	}

	from := models.PredecessorsOf(upd.Status)
	if len(from) == 0 {
		return errors.NewValidationError(fmt.Sprintf("No transition leads to %q", upd.Status), nil)
	}
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	now := s.now()
	updates := map[string]interface{}{
		"status":        string(upd.Status),
		"error_message": upd.ErrorMessage,
	}
	switch upd.Status {
	case models.JobStatusProcessing:
		updates["started_at"] = now
	case models.JobStatusCompleted, models.JobStatusFailed:
		updates["completed_at"] = now
	}
	if upd.Result != nil {
		encoded, err := encodeJSON(upd.Result)
		if err != nil {
			return errors.NewPersistenceError("encode job result", err)
		}
		updates["result"] = encoded
		updates["total_pages"] = upd.Result.TotalPages
		updates["overall_confidence"] = upd.Result.OverallConfidence
	}

	res := s.db.WithContext(ctx).Model(&jobRecord{}).
		Where("id = ? AND status IN ?", jobID, allowed).
		Updates(updates)
	if res.Error != nil {
		return errors.NewPersistenceError("update job status", res.Error)
	}
	if res.RowsAffected == 1 {
		s.logger.Debug("Job status updated", "job_id", jobID, "status", upd.Status)
		return nil
	}

	current, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return errors.NewValidationError(
		fmt.Sprintf("Invalid job transition %s -> %s", current.Status, upd.Status),
		map[string]interface{}{"job_id": jobID, "from": string(current.Status), "to": string(upd.Status)},
	)
}

// ListRecent returns up to limit jobs, newest first.
func (s *JobStore) ListRecent(ctx context.Context, limit int) ([]models.JobSummary, error) {
	if limit < 1 || limit > MaxListLimit {
		return nil, errors.NewValidationError(
			fmt.Sprintf("limit must be between 1 and %d, got %d", MaxListLimit, limit), nil)
	}

	var recs []jobRecord
	err := s.db.WithContext(ctx).
		Select("id", "file_id", "language", "status", "created_at", "completed_at",
			"error_message", "total_pages", "overall_confidence").
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, errors.NewPersistenceError("list jobs", err)
	}

	out := make([]models.JobSummary, len(recs))
	for i := range recs {
		out[i] = recs[i].toSummary()
	}
	return out, nil
}
