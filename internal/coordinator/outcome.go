package coordinator

import (
	"go.uber.org/multierr"

	"github.com/adverant/nexus/ocr-pipeline/internal/models"
)

// Outcome reports what Run did, including secondary writes that failed
// while the job was being finished.
type Outcome struct {
	JobID  string
	FileID string
	Status models.JobStatus
	Result *models.OCRResult

	// Skipped is set when the job was already terminal on delivery.
	Skipped bool

	Err           error
	JobUpdateErr  error
	FileUpdateErr error
}

// JobUpdateOK reports whether the final job status was recorded.
func (o *Outcome) JobUpdateOK() bool { return o.JobUpdateErr == nil }

// FileUpdateOK reports whether the final file status was recorded.
func (o *Outcome) FileUpdateOK() bool { return o.FileUpdateErr == nil }

// Combined joins the primary and secondary errors.
func (o *Outcome) Combined() error {
	return multierr.Combine(o.Err, o.JobUpdateErr, o.FileUpdateErr)
}
