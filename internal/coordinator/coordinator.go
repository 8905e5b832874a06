/**
 * Job Coordinator - OCR job lifecycle
 *
 * submit creates a queued Job and hands a RunRequest to the dispatcher. run moves
 * the File and Job through processing to completed or failed. The Job update is
 * authoritative; File updates are best-effort and reported on the Outcome.
 */

package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

// FileStore is the coordinator's view of stored uploads.
type FileStore interface {
	Get(ctx context.Context, fileID string) (*models.StoredFile, error)
	ReadBytes(ctx context.Context, file *models.StoredFile) ([]byte, error)
	SetStatus(ctx context.Context, fileID string, status models.FileStatus, errorMessage string) error
}

// JobRepository persists Job records.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, jobID string) (*models.Job, error)
	UpdateStatus(ctx context.Context, jobID string, upd models.JobUpdate) error
	ListRecent(ctx context.Context, limit int) ([]models.JobSummary, error)
}

// Extractor OCRs a whole document.
type Extractor interface {
	Process(ctx context.Context, data []byte, filename, language string, threshold float64) (*models.OCRResult, error)
}

// Dispatcher hands a run request to whatever executes jobs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req models.RunRequest) error
}

// Notifier is told about every job transition. Failures are logged only.
type Notifier interface {
	JobStatusChanged(ctx context.Context, job models.RunRequest, status models.JobStatus, errorMessage string) error
}

// Config holds request defaults and limits
type Config struct {
	SupportedLanguages         []string
	DefaultConfidenceThreshold float64
}

// Coordinator runs OCR jobs against stored files
type Coordinator struct {
	cfg        Config
	languages  map[string]struct{}
	files      FileStore
	jobs       JobRepository
	extractor  Extractor
	dispatcher Dispatcher
	notifier   Notifier
	newID      func() string
	logger     *logging.Logger
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithNotifier publishes job transitions to n.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithDispatcher sets the handoff used by Submit.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Coordinator) { c.dispatcher = d }
}

// New creates a coordinator. A dispatcher is only needed for Submit.
func New(cfg Config, files FileStore, jobs JobRepository, extractor Extractor, opts ...Option) (*Coordinator, error) {
	if files == nil || jobs == nil || extractor == nil {
		return nil, fmt.Errorf("file store, job repository and extractor are required")
	}
	if len(cfg.SupportedLanguages) == 0 {
		return nil, fmt.Errorf("supported languages are required")
	}

	c := &Coordinator{
		cfg:       cfg,
		languages: make(map[string]struct{}, len(cfg.SupportedLanguages)),
		files:     files,
		jobs:      jobs,
		extractor: extractor,
		newID:     uuid.NewString,
		logger:    logging.NewLogger("coordinator"),
	}
	for _, l := range cfg.SupportedLanguages {
		c.languages[l] = struct{}{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Coordinator) validate(language string, threshold float64) error {
	if _, ok := c.languages[language]; !ok {
		return errors.NewUnsupportedLanguageError(language, c.cfg.SupportedLanguages)
	}
	if threshold < 0 || threshold > 100 {
		return errors.NewValidationError(
			fmt.Sprintf("confidence_threshold must be between 0 and 100, got %g", threshold), nil)
	}
	return nil
}

// threshold resolves an optional per-request threshold.
func (c *Coordinator) threshold(t *float64) float64 {
	if t == nil {
		return c.cfg.DefaultConfidenceThreshold
	}
	return *t
}

// Submit creates a queued Job for fileID and dispatches it. The job id is
// returned even when the request is rejected: such a job is recorded as failed
// and never dispatched.
func (c *Coordinator) Submit(ctx context.Context, fileID, language string, threshold *float64) (string, error) {
	if c.dispatcher == nil {
		return "", fmt.Errorf("no dispatcher configured")
	}
	if _, err := c.files.Get(ctx, fileID); err != nil {
		return "", err
	}

	req := models.RunRequest{
		JobID:               c.newID(),
		FileID:              fileID,
		Language:            language,
		ConfidenceThreshold: c.threshold(threshold),
	}
	job := &models.Job{
		ID:                  req.JobID,
		FileID:              req.FileID,
		Language:            req.Language,
		ConfidenceThreshold: req.ConfidenceThreshold,
		Status:              models.JobStatusQueued,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return "", err
	}
	c.notify(ctx, req, models.JobStatusQueued, "")

	if err := c.validate(req.Language, req.ConfidenceThreshold); err != nil {
		c.logger.Warn("Rejected job request", "job_id", req.JobID, "file_id", fileID, "error", err)
		if updErr := c.transitionJob(ctx, req, models.JobUpdate{Status: models.JobStatusFailed, ErrorMessage: err.Error()}); updErr != nil {
			c.logger.Error("Failed to record rejected job", "job_id", req.JobID, "error", updErr)
		}
		return req.JobID, err
	}

	if err := c.dispatcher.Dispatch(ctx, req); err != nil {
		dispatchErr := errors.NewUpstreamError("job dispatch", 0, err).ForJob(req.JobID)
		c.logger.Error("Failed to dispatch job", "job_id", req.JobID, "error", err)
		if updErr := c.transitionJob(context.WithoutCancel(ctx), req, models.JobUpdate{Status: models.JobStatusFailed, ErrorMessage: dispatchErr.Error()}); updErr != nil {
			c.logger.Error("Failed to record dispatch failure", "job_id", req.JobID, "error", updErr)
		}
		return req.JobID, dispatchErr
	}

	c.logger.Info("Job submitted", "job_id", req.JobID, "file_id", fileID, "language", language)
	return req.JobID, nil
}

// Run processes one job to a terminal state. The returned error is the
// primary failure; secondary failures while recording it are on the Outcome.
// A job that is already terminal is acknowledged without running again.
func (c *Coordinator) Run(ctx context.Context, req models.RunRequest) (*Outcome, error) {
	out := &Outcome{JobID: req.JobID, FileID: req.FileID}

	job, err := c.jobs.Get(ctx, req.JobID)
	if err != nil {
		out.Err = err
		return out, err
	}
	if job.Status.IsTerminal() {
		c.logger.Info("Job already finished, skipping", "job_id", job.ID, "status", job.Status)
		out.Status = job.Status
		out.Skipped = true
		return out, nil
	}

	// the stored job is authoritative over the delivered payload
	req.FileID = job.FileID
	req.Language = job.Language
	req.ConfidenceThreshold = job.ConfidenceThreshold
	out.FileID = job.FileID

	if err := c.validate(req.Language, req.ConfidenceThreshold); err != nil {
		// rejected before processing: the file is left untouched
		out.Err = err
		out.Status = models.JobStatusFailed
		out.JobUpdateErr = c.transitionJob(context.WithoutCancel(ctx), req,
			models.JobUpdate{Status: models.JobStatusFailed, ErrorMessage: err.Error()})
		c.logOutcome(out)
		return out, err
	}

	result, fileTouched, err := c.process(ctx, req, job.Status)
	if err != nil {
		c.fail(ctx, req, out, err, fileTouched)
		return out, err
	}

	if err := c.transitionJob(ctx, req, models.JobUpdate{Status: models.JobStatusCompleted, Result: result}); err != nil {
		c.fail(ctx, req, out, err, true)
		return out, err
	}
	out.Status = models.JobStatusCompleted
	out.Result = result

	if err := c.files.SetStatus(ctx, req.FileID, models.FileStatusCompleted, ""); err != nil {
		out.FileUpdateErr = err
	}
	c.logOutcome(out)
	return out, nil
}

// process moves file and job to processing and runs the extractor. fileTouched
// reports whether the file may have left its previous status.
func (c *Coordinator) process(ctx context.Context, req models.RunRequest, current models.JobStatus) (*models.OCRResult, bool, error) {
	file, err := c.files.Get(ctx, req.FileID)
	if err != nil {
		return nil, false, err
	}
	data, err := c.files.ReadBytes(ctx, file)
	if err != nil {
		return nil, true, err
	}

	if err := c.files.SetStatus(ctx, file.ID, models.FileStatusProcessing, ""); err != nil {
		return nil, true, err
	}
	// a redelivered job may already be processing
	if current == models.JobStatusQueued {
		if err := c.transitionJob(ctx, req, models.JobUpdate{Status: models.JobStatusProcessing}); err != nil {
			return nil, true, err
		}
	}

	c.logger.Info("Processing job", "job_id", req.JobID, "file_id", file.ID,
		"filename", file.OriginalName, "language", req.Language)

	result, err := c.extractor.Process(ctx, data, file.OriginalName, req.Language, req.ConfidenceThreshold)
	if err != nil {
		return nil, true, err
	}
	return result, true, nil
}

// fail records cause on the file and the job. Both writes are attempted even
// when the caller's context is done.
func (c *Coordinator) fail(ctx context.Context, req models.RunRequest, out *Outcome, cause error, fileTouched bool) {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()

	out.Err = cause
	out.Status = models.JobStatusFailed
	out.Result = nil

	if fileTouched {
		if err := c.files.SetStatus(ctx, req.FileID, models.FileStatusFailed, msg); err != nil {
			out.FileUpdateErr = err
		}
	}
	out.JobUpdateErr = c.transitionJob(ctx, req, models.JobUpdate{Status: models.JobStatusFailed, ErrorMessage: msg})
	c.logOutcome(out)
}

func (c *Coordinator) transitionJob(ctx context.Context, req models.RunRequest, upd models.JobUpdate) error {
	if err := c.jobs.UpdateStatus(ctx, req.JobID, upd); err != nil {
		return err
	}
	c.notify(ctx, req, upd.Status, upd.ErrorMessage)
	return nil
}

func (c *Coordinator) notify(ctx context.Context, req models.RunRequest, status models.JobStatus, msg string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.JobStatusChanged(ctx, req, status, msg); err != nil {
		c.logger.Warn("Failed to publish job status", "job_id", req.JobID, "status", status, "error", err)
	}
}

func (c *Coordinator) logOutcome(out *Outcome) {
	kv := []interface{}{"job_id", out.JobID, "file_id", out.FileID, "status", out.Status}
	if out.FileUpdateErr != nil {
		c.logger.Error("Failed to update file status", append(kv, "error", out.FileUpdateErr)...)
	}
	if out.JobUpdateErr != nil {
		c.logger.Error("Failed to update job status", append(kv, "error", out.JobUpdateErr)...)
	}
	if out.Err != nil {
		c.logger.Error("Job failed", append(kv, "error", out.Err)...)
		return
	}
	if out.Result != nil {
		c.logger.Info("Job completed", append(kv,
			"pages", out.Result.TotalPages, "overall_confidence", out.Result.OverallConfidence)...)
	}
}

// GetStatus returns the file's current processing status without reading jobs.
func (c *Coordinator) GetStatus(ctx context.Context, fileID string) (*models.FileStatusView, error) {
	file, err := c.files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return file.StatusView(), nil
}

// GetJob returns the job record or a NotFound error.
func (c *Coordinator) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return c.jobs.Get(ctx, jobID)
}

// ListRecent returns up to limit jobs, newest first. limit must be 1..100.
func (c *Coordinator) ListRecent(ctx context.Context, limit int) ([]models.JobSummary, error) {
	if limit < 1 || limit > 100 {
		return nil, errors.NewValidationError(fmt.Sprintf("limit must be between 1 and 100, got %d", limit), nil)
	}
	return c.jobs.ListRecent(ctx, limit)
}

// ExtractNow OCRs a stored file synchronously. No job is created and no
// status changes.
func (c *Coordinator) ExtractNow(ctx context.Context, fileID, language string, threshold *float64) (*models.OCRResult, error) {
	t := c.threshold(threshold)
	if err := c.validate(language, t); err != nil {
		return nil, err
	}
	file, err := c.files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	data, err := c.files.ReadBytes(ctx, file)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := c.extractor.Process(ctx, data, file.OriginalName, language, t)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Synchronous extraction completed", "file_id", fileID, "duration", time.Since(start).String())
	return result, nil
}
