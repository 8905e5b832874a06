package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
	"github.com/adverant/nexus/ocr-pipeline/internal/storage"
)

var languages = []string{"eng", "fra", "deu", "spa", "ita", "por", "hau", "ibo", "yor"}

type fakeExtractor struct {
	mu     sync.Mutex
	result *models.OCRResult
	err    error
	calls  int
}

func (f *fakeExtractor) Process(_ context.Context, _ []byte, filename, language string, threshold float64) (*models.OCRResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.Language = language
	res.Metadata = map[string]interface{}{"filename": filename, "confidence_threshold": threshold}
	return &res, nil
}

type recordingDispatcher struct {
	reqs []models.RunRequest
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req models.RunRequest) error {
	if d.err != nil {
		return d.err
	}
	d.reqs = append(d.reqs, req)
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses map[string][]models.JobStatus
}

func (n *recordingNotifier) JobStatusChanged(_ context.Context, req models.RunRequest, status models.JobStatus, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.statuses == nil {
		n.statuses = map[string][]models.JobStatus{}
	}
	n.statuses[req.JobID] = append(n.statuses[req.JobID], status)
	return nil
}

// flakyFiles fails SetStatus for the listed statuses.
type flakyFiles struct {
	FileStore
	failOn map[models.FileStatus]bool
}

func (f *flakyFiles) SetStatus(ctx context.Context, id string, status models.FileStatus, msg string) error {
	if f.failOn[status] {
		return fmt.Errorf("status write to %s failed", status)
	}
	return f.FileStore.SetStatus(ctx, id, status, msg)
}

// flakyJobs fails UpdateStatus into the listed statuses.
type flakyJobs struct {
	JobRepository
	failOn map[models.JobStatus]bool
}

func (j *flakyJobs) UpdateStatus(ctx context.Context, id string, upd models.JobUpdate) error {
	if j.failOn[upd.Status] {
		return fmt.Errorf("job write to %s failed", upd.Status)
	}
	return j.JobRepository.UpdateStatus(ctx, id, upd)
}

type harness struct {
	files      *storage.ContentStore
	jobs       *storage.JobStore
	extractor  *fakeExtractor
	dispatcher *recordingDispatcher
	notifier   *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := storage.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(context.Background(), db))
	t.Cleanup(func() { _ = storage.Close(db) })

	blobs, err := storage.NewFSBlobStore(t.TempDir())
	require.NoError(t, err)
	files, err := storage.NewContentStore(db, blobs, storage.ContentStoreConfig{
		MaxFileSize:       1 << 20,
		AllowedExtensions: []string{"pdf", "png", "jpg"},
	})
	require.NoError(t, err)

	return &harness{
		files: files,
		jobs:  storage.NewJobStore(db),
		extractor: &fakeExtractor{result: &models.OCRResult{
			TotalPages:        2,
			OverallConfidence: 91.25,
			TextBlocks: []models.TextBlock{
				{Text: "Hello", Confidence: 92.5, Page: 1},
				{Text: "World", Confidence: 90, Page: 2},
			},
			FullText: "--- Page 1 ---\nHello\n\n--- Page 2 ---\nWorld",
		}},
		dispatcher: &recordingDispatcher{},
		notifier:   &recordingNotifier{},
	}
}

func (h *harness) coordinator(t *testing.T, files FileStore, jobs JobRepository) *Coordinator {
	t.Helper()
	if files == nil {
		files = h.files
	}
	if jobs == nil {
		jobs = h.jobs
	}
	c, err := New(Config{SupportedLanguages: languages, DefaultConfidenceThreshold: 30},
		files, jobs, h.extractor, WithDispatcher(h.dispatcher), WithNotifier(h.notifier))
	require.NoError(t, err)
	return c
}

func (h *harness) upload(t *testing.T, name string) *models.StoredFile {
	t.Helper()
	f, err := h.files.Put(context.Background(), []byte("scan "+name), name)
	require.NoError(t, err)
	return f
}

func (h *harness) fileStatus(t *testing.T, id string) *models.StoredFile {
	t.Helper()
	f, err := h.files.Get(context.Background(), id)
	require.NoError(t, err)
	return f
}

func TestSubmitAndRunCompletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)
	file := h.upload(t, "report.png")

	jobID, err := c.Submit(ctx, file.ID, "eng", nil)
	require.NoError(t, err)
	require.Len(t, h.dispatcher.reqs, 1)
	assert.Equal(t, models.RunRequest{JobID: jobID, FileID: file.ID, Language: "eng", ConfidenceThreshold: 30}, h.dispatcher.reqs[0])

	queued, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, queued.Status)

	out, err := c.Run(ctx, h.dispatcher.reqs[0])
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, out.Status)
	assert.True(t, out.JobUpdateOK())
	assert.True(t, out.FileUpdateOK())
	assert.NoError(t, out.Combined())

	job, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 2, job.Result.TotalPages)
	assert.Contains(t, job.Result.FullText, "--- Page 1 ---")
	assert.Contains(t, job.Result.FullText, "--- Page 2 ---")
	assert.NotNil(t, job.CompletedAt)

	status, err := c.GetStatus(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusCompleted, status.Status)
	assert.NotNil(t, status.StartedAt)
	assert.NotNil(t, status.CompletedAt)

	assert.Equal(t, []models.JobStatus{
		models.JobStatusQueued, models.JobStatusProcessing, models.JobStatusCompleted,
	}, h.notifier.statuses[jobID])
}

func TestSubmitCustomThreshold(t *testing.T) {
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)
	file := h.upload(t, "a.png")

	th := 55.5
	_, err := c.Submit(context.Background(), file.ID, "fra", &th)
	require.NoError(t, err)
	assert.Equal(t, 55.5, h.dispatcher.reqs[0].ConfidenceThreshold)
}

func TestSubmitUnsupportedLanguageFailsJobOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)
	file := h.upload(t, "a.png")

	jobID, err := c.Submit(ctx, file.ID, "xyz", nil)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	require.NotEmpty(t, jobID)

	job, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "Unsupported language: xyz")
	assert.Nil(t, job.Result)

	assert.Equal(t, models.FileStatusUploaded, h.fileStatus(t, file.ID).Status)
	assert.Empty(t, h.dispatcher.reqs)
	assert.Zero(t, h.extractor.calls)
	assert.Equal(t, []models.JobStatus{models.JobStatusQueued, models.JobStatusFailed}, h.notifier.statuses[jobID])
}

func TestRunUnsupportedLanguageLeavesFileUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)
	file := h.upload(t, "a.png")

	require.NoError(t, h.jobs.Create(ctx, &models.Job{ID: "job-xyz", FileID: file.ID, Language: "xyz", ConfidenceThreshold: 30}))

	out, err := c.Run(ctx, models.RunRequest{JobID: "job-xyz", FileID: file.ID, Language: "xyz", ConfidenceThreshold: 30})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, models.JobStatusFailed, out.Status)
	assert.True(t, out.JobUpdateOK())

	job, err := c.GetJob(ctx, "job-xyz")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Nil(t, job.StartedAt)

	f := h.fileStatus(t, file.ID)
	assert.Equal(t, models.FileStatusUploaded, f.Status)
	assert.Nil(t, f.StartedAt)
	assert.Zero(t, h.extractor.calls)
}

func TestRunExtractionFailureFailsJobAndFile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.extractor.err = errors.NewOCRFailedError(2, fmt.Errorf("tesseract crashed"))
	c := h.coordinator(t, nil, nil)
	file := h.upload(t, "three-pages.png")

	jobID, err := c.Submit(ctx, file.ID, "eng", nil)
	require.NoError(t, err)

	out, err := c.Run(ctx, h.dispatcher.reqs[0])
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrorOCRFailed))
	assert.Equal(t, models.JobStatusFailed, out.Status)
	assert.Nil(t, out.Result)

	job, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "tesseract crashed")
	assert.Nil(t, job.Result)

	f := h.fileStatus(t, file.ID)
	assert.Equal(t, models.FileStatusFailed, f.Status)
	assert.Contains(t, f.ErrorMessage, "OCR failed on page 2")

	assert.Equal(t, []models.JobStatus{
		models.JobStatusQueued, models.JobStatusProcessing, models.JobStatusFailed,
	}, h.notifier.statuses[jobID])
}

func TestRunMissingFileFailsJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)
	file := h.upload(t, "a.png")

	jobID, err := c.Submit(ctx, file.ID, "eng", nil)
	require.NoError(t, err)
	require.NoError(t, h.files.Delete(ctx, file.ID))

	out, err := c.Run(ctx, h.dispatcher.reqs[0])
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, out.FileUpdateOK())

	job, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "not found")
}

func TestRunFileCompletionFailureKeepsJobCompleted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	files := &flakyFiles{FileStore: h.files, failOn: map[models.FileStatus]bool{models.FileStatusCompleted: true}}
	c := h.coordinator(t, files, nil)
	file := h.upload(t, "a.png")

	jobID, err := c.Submit(ctx, file.ID, "eng", nil)
	require.NoError(t, err)

	out, err := c.Run(ctx, h.dispatcher.reqs[0])
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, out.Status)
	assert.True(t, out.JobUpdateOK())
	assert.False(t, out.FileUpdateOK())
	assert.Error(t, out.Combined())

	job, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.NotNil(t, job.Result)

	assert.Equal(t, models.FileStatusProcessing, h.fileStatus(t, file.ID).Status)
}

func TestRunFileProcessingUpdateFailureFailsJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	files := &flakyFiles{FileStore: h.files, failOn: map[models.FileStatus]bool{models.FileStatusProcessing: true}}
	c := h.coordinator(t, files, nil)
	file := h.upload(t, "a.png")

	jobID, err := c.Submit(ctx, file.ID, "eng", nil)
	require.NoError(t, err)

	_, err = c.Run(ctx, h.dispatcher.reqs[0])
	require.Error(t, err)
	assert.Zero(t, h.extractor.calls)

	job, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.FileStatusFailed, h.fileStatus(t, file.ID).Status)
}

func TestRunResultPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	jobs := &flakyJobs{JobRepository: h.jobs, failOn: map[models.JobStatus]bool{models.JobStatusCompleted: true}}
	c := h.coordinator(t, nil, jobs)
	file := h.upload(t, "a.png")

	jobID, err := c.Submit(ctx, file.ID, "eng", nil)
	require.NoError(t, err)

	out, err := c.Run(ctx, h.dispatcher.reqs[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job write to completed failed")
	assert.True(t, out.JobUpdateOK())

	job, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Nil(t, job.Result)
	assert.Equal(t, models.FileStatusFailed, h.fileStatus(t, file.ID).Status)
}

func TestRunReportsSecondaryFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.extractor.err = fmt.Errorf("engine exploded")
	files := &flakyFiles{FileStore: h.files, failOn: map[models.FileStatus]bool{models.FileStatusFailed: true}}
	jobs := &flakyJobs{JobRepository: h.jobs, failOn: map[models.JobStatus]bool{models.JobStatusFailed: true}}
	c := h.coordinator(t, files, jobs)
	file := h.upload(t, "a.png")

	_, err := c.Submit(ctx, file.ID, "eng", nil)
	require.NoError(t, err)

	out, err := c.Run(ctx, h.dispatcher.reqs[0])
	require.EqualError(t, err, "engine exploded")
	assert.False(t, out.JobUpdateOK())
	assert.False(t, out.FileUpdateOK())

	combined := out.Combined().Error()
	assert.Contains(t, combined, "engine exploded")
	assert.Contains(t, combined, "job write to failed failed")
	assert.Contains(t, combined, "status write to failed failed")
}

func TestRunRedeliveryOfFinishedJobIsSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)
	file := h.upload(t, "a.png")

	_, err := c.Submit(ctx, file.ID, "eng", nil)
	require.NoError(t, err)
	req := h.dispatcher.reqs[0]

	_, err = c.Run(ctx, req)
	require.NoError(t, err)

	out, err := c.Run(ctx, req)
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, models.JobStatusCompleted, out.Status)
	assert.Equal(t, 1, h.extractor.calls)
}

func TestRunResumesProcessingJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)
	file := h.upload(t, "a.png")

	_, err := c.Submit(ctx, file.ID, "eng", nil)
	require.NoError(t, err)
	req := h.dispatcher.reqs[0]
	require.NoError(t, h.jobs.UpdateStatus(ctx, req.JobID, models.JobUpdate{Status: models.JobStatusProcessing}))

	out, err := c.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, out.Status)
}

func TestRunUnknownJob(t *testing.T) {
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)

	_, err := c.Run(context.Background(), models.RunRequest{JobID: "missing", FileID: "f", Language: "eng"})
	assert.True(t, errors.IsNotFound(err))
}

func TestSubmitErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)

	_, err := c.Submit(ctx, "no-such-file", "eng", nil)
	assert.True(t, errors.IsNotFound(err))
	recent, err := c.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	file := h.upload(t, "a.png")
	h.dispatcher.err = fmt.Errorf("redis unavailable")
	jobID, err := c.Submit(ctx, file.ID, "eng", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrorUpstream))

	job, err := c.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, models.FileStatusUploaded, h.fileStatus(t, file.ID).Status)
}

func TestGetJobAndListRecent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)
	file := h.upload(t, "a.png")

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := c.Submit(ctx, file.ID, "eng", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	first, err := c.GetJob(ctx, ids[0])
	require.NoError(t, err)
	second, err := c.GetJob(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = c.GetJob(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))

	recent, err := c.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	for _, limit := range []int{0, 101} {
		_, err := c.ListRecent(ctx, limit)
		assert.True(t, errors.IsValidation(err))
	}
}

func TestExtractNowTouchesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	c := h.coordinator(t, nil, nil)
	file := h.upload(t, "a.png")

	res, err := c.ExtractNow(ctx, file.ID, "deu", nil)
	require.NoError(t, err)
	assert.Equal(t, "deu", res.Language)
	assert.Equal(t, 30.0, res.Metadata["confidence_threshold"])

	assert.Equal(t, models.FileStatusUploaded, h.fileStatus(t, file.ID).Status)
	recent, err := c.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)

	_, err = c.ExtractNow(ctx, file.ID, "xyz", nil)
	assert.True(t, errors.IsValidation(err))
	_, err = c.ExtractNow(ctx, "missing", "eng", nil)
	assert.True(t, errors.IsNotFound(err))
}
