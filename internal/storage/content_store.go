/**
 * ContentStore - deduplicating store for uploaded documents
 *
 * Bytes are keyed by their sha256 digest: a second upload of identical content
 * resolves to the existing StoredFile and is never written twice. The row insert
 * and the blob write share one transaction; a failed blob write rolls the row back.
 */

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/filetype"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
	"github.com/adverant/nexus/ocr-pipeline/internal/pdfinfo"
)

// ContentStoreConfig holds upload limits
type ContentStoreConfig struct {
	MaxFileSize       int64
	AllowedExtensions []string
}

// PDFInspector extracts upload metadata from PDF bytes.
type PDFInspector func(data []byte) (*pdfinfo.Info, error)

// ContentStore persists uploads and tracks their processing status
type ContentStore struct {
	db      *gorm.DB
	blobs   BlobStore
	cfg     ContentStoreConfig
	inspect PDFInspector
	now     func() time.Time
	logger  *logging.Logger
}

// NewContentStore creates a content store over db and blobs
func NewContentStore(db *gorm.DB, blobs BlobStore, cfg ContentStoreConfig) (*ContentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("max file size must be positive")
	}
	if len(cfg.AllowedExtensions) == 0 {
		return nil, fmt.Errorf("allowed extensions are required")
	}

	return &ContentStore{
		db:      db,
		blobs:   blobs,
		cfg:     cfg,
		inspect: pdfinfo.Inspect,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logging.NewLogger("content-store"),
	}, nil
}

// HashContent returns the hex sha256 digest used as the dedup key.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data unless identical bytes are already present, in which case the
// existing record is returned without re-validating it.
func (s *ContentStore) Put(ctx context.Context, data []byte, originalName string) (*models.StoredFile, error) {
	hash := HashContent(data)

	existing, err := s.findByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.touch(ctx, existing)
		s.logger.Info("Duplicate upload resolved to existing file",
			"file_id", existing.ID, "file_hash", hash, "filename", originalName)
		return existing, nil
	}

	if err := s.validate(data, originalName); err != nil {
		return nil, err
	}

	now := s.now()
	file := &models.StoredFile{
		ID:             uuid.NewString(),
		ContentHash:    hash,
		OriginalName:   originalName,
		StorageName:    uuid.New().String() + "." + filetype.Extension(originalName),
		MimeType:       filetype.DetectMimeType(data, originalName),
		SizeBytes:      int64(len(data)),
		Status:         models.FileStatusUploaded,
		CreatedAt:      now,
		LastAccessedAt: now,
		Metadata:       s.describe(data, originalName),
	}

	rec, err := fileRecordFromModel(file)
	if err != nil {
		return nil, errors.NewPersistenceError("encode file record", err)
	}

	blobWritten := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if err := s.blobs.Put(ctx, file.StorageName, data); err != nil {
			return errors.NewUpstreamError("blob storage "+s.blobs.Backend(), 0, err)
		}
		blobWritten = true
		return nil
	})
	if err != nil {
		if blobWritten {
			s.removeOrphan(ctx, file.StorageName)
		}
		if isUniqueViolation(err) {
			// a concurrent upload of the same bytes won the insert
			winner, findErr := s.findByHash(ctx, hash)
			if findErr == nil && winner != nil {
				return winner, nil
			}
		}
		if errors.CodeOf(err) != "" {
			return nil, err
		}
		return nil, errors.NewPersistenceError("insert file record", err)
	}

	s.logger.Info("File stored",
		"file_id", file.ID, "filename", originalName, "size", file.SizeBytes,
		"mime_type", file.MimeType, "backend", s.blobs.Backend())
	return file, nil
}

func (s *ContentStore) validate(data []byte, originalName string) error {
	size := int64(len(data))
	if size == 0 {
		return errors.NewValidationError("Empty file", map[string]interface{}{"filename": originalName})
	}
	if size > s.cfg.MaxFileSize {
		return errors.NewValidationError(
			fmt.Sprintf("File too large: %d bytes exceeds limit of %d bytes", size, s.cfg.MaxFileSize),
			map[string]interface{}{"filename": originalName, "file_size": size, "max_file_size": s.cfg.MaxFileSize},
		)
	}
	if !filetype.Allowed(originalName, s.cfg.AllowedExtensions) {
		return errors.NewValidationError(
			fmt.Sprintf("File type not allowed: %q", filetype.Extension(originalName)),
			map[string]interface{}{"filename": originalName, "allowed": s.cfg.AllowedExtensions},
		)
	}
	return nil
}

// describe builds format-specific metadata; PDF inspection problems are recorded, not fatal.
func (s *ContentStore) describe(data []byte, originalName string) map[string]interface{} {
	if !filetype.IsPDF(originalName) || s.inspect == nil {
		return nil
	}
	info, err := s.inspect(data)
	if err != nil {
		s.logger.Warn("Could not inspect PDF upload", "filename", originalName, "error", err)
		return map[string]interface{}{"pdf_error": err.Error()}
	}
	return info.Metadata()
}

func (s *ContentStore) removeOrphan(ctx context.Context, name string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), name); err != nil && !stderrors.Is(err, ErrBlobNotFound) {
		s.logger.Warn("Failed to remove orphaned blob", "storage_name", name, "error", err)
	}
}

func (s *ContentStore) findByHash(ctx context.Context, hash string) (*models.StoredFile, error) {
	var rec fileRecord
	err := s.db.WithContext(ctx).Where("content_hash = ?", hash).Limit(1).Find(&rec).Error
	if err != nil {
		return nil, errors.NewPersistenceError("look up file by hash", err)
	}
	if rec.ID == "" {
		return nil, nil
	}
	return rec.toModel(), nil
}

func (s *ContentStore) touch(ctx context.Context, file *models.StoredFile) {
	now := s.now()
	err := s.db.WithContext(ctx).Model(&fileRecord{}).
		Where("id = ?", file.ID).
		Update("last_accessed_at", now).Error
	if err != nil {
		s.logger.Warn("Failed to refresh last access time", "file_id", file.ID, "error", err)
		return
	}
	file.LastAccessedAt = now
}

// Get returns the file record or a NotFound error
func (s *ContentStore) Get(ctx context.Context, fileID string) (*models.StoredFile, error) {
	rec, err := s.load(s.db.WithContext(ctx), fileID)
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

func (s *ContentStore) load(db *gorm.DB, fileID string) (*fileRecord, error) {
	var rec fileRecord
	err := db.Where("id = ?", fileID).First(&rec).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NewNotFoundError("file", fileID)
	}
	if err != nil {
		return nil, errors.NewPersistenceError("load file record", err)
	}
	return &rec, nil
}

// ReadBytes returns the stored bytes of file. A live record whose blob has
// vanished is reported as NotFound.
func (s *ContentStore) ReadBytes(ctx context.Context, file *models.StoredFile) ([]byte, error) {
	data, err := s.blobs.Get(ctx, file.StorageName)
	if stderrors.Is(err, ErrBlobNotFound) {
		s.logger.Error("Stored bytes missing for live file record",
			"file_id", file.ID, "storage_name", file.StorageName, "backend", s.blobs.Backend())
		return nil, errors.NewNotFoundError("file content", file.ID)
	}
	if err != nil {
		return nil, errors.NewUpstreamError("blob storage "+s.blobs.Backend(), 0, err)
	}
	return data, nil
}

// SetStatus moves a file to status and stamps started_at / completed_at.
func (s *ContentStore) SetStatus(ctx context.Context, fileID string, status models.FileStatus, errorMessage string) error {
	if !status.Valid() {
		return errors.NewValidationError(fmt.Sprintf("Invalid file status: %q", status), nil)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.load(tx, fileID); err != nil {
			return err
		}

		now := s.now()
		updates := map[string]interface{}{
			"status":        string(status),
			"error_message": errorMessage,
		}
		switch status {
		case models.FileStatusProcessing:
			updates["started_at"] = now
			updates["completed_at"] = nil
		case models.FileStatusCompleted, models.FileStatusFailed:
			updates["completed_at"] = now
		}

		if err := tx.Model(&fileRecord{}).Where("id = ?", fileID).Updates(updates).Error; err != nil {
			return errors.NewPersistenceError("update file status", err)
		}
		return nil
	})
}

// Delete removes the backing bytes, then the record. Bytes that are already
// gone do not block removal of the record.
func (s *ContentStore) Delete(ctx context.Context, fileID string) error {
	file, err := s.Get(ctx, fileID)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, file.StorageName); err != nil {
		if !stderrors.Is(err, ErrBlobNotFound) {
			return errors.NewUpstreamError("blob storage "+s.blobs.Backend(), 0, err)
		}
		s.logger.Warn("Stored bytes already gone on delete", "file_id", fileID, "storage_name", file.StorageName)
	}

	res := s.db.WithContext(ctx).Where("id = ?", fileID).Delete(&fileRecord{})
	if res.Error != nil {
		return errors.NewPersistenceError("delete file record", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.NewNotFoundError("file", fileID)
	}

	s.logger.Info("File deleted", "file_id", fileID)
	return nil
}

// List returns one page of files, newest first, and the total matching count.
// An empty status lists every file.
func (s *ContentStore) List(ctx context.Context, page, perPage int, status models.FileStatus) ([]*models.StoredFile, int64, error) {
	if page < 1 {
		return nil, 0, errors.NewValidationError(fmt.Sprintf("page must be >= 1, got %d", page), nil)
	}
	if perPage < 1 || perPage > 100 {
		return nil, 0, errors.NewValidationError(fmt.Sprintf("per_page must be between 1 and 100, got %d", perPage), nil)
	}
	if status != "" && !status.Valid() {
		return nil, 0, errors.NewValidationError(fmt.Sprintf("Invalid file status: %q", status), nil)
	}

	q := s.db.WithContext(ctx).Model(&fileRecord{})
	if status != "" {
		q = q.Where("status = ?", string(status))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.NewPersistenceError("count files", err)
	}

	var recs []fileRecord
	err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&recs).Error
	if err != nil {
		return nil, 0, errors.NewPersistenceError("list files", err)
	}

	out := make([]*models.StoredFile, len(recs))
	for i := range recs {
		out[i] = recs[i].toModel()
	}
	return out, total, nil
}
