/**
 * Component wiring for the OCR pipeline binaries
 *
 * Builds the record store, blob backend, stores, OCR engine and coordinator
 * from a Config. When FILE_SERVICE_URL or OCR_SERVICE_URL is set the matching
 * coordinator port is served by the remote collaborator instead.
 */

package app

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/adverant/nexus/ocr-pipeline/internal/clients"
	"github.com/adverant/nexus/ocr-pipeline/internal/config"
	"github.com/adverant/nexus/ocr-pipeline/internal/coordinator"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/ocr/tesseract"
	"github.com/adverant/nexus/ocr-pipeline/internal/processor"
	"github.com/adverant/nexus/ocr-pipeline/internal/queue"
	"github.com/adverant/nexus/ocr-pipeline/internal/storage"
)

// App holds the wired components.
type App struct {
	Config *config.Config

	DB    *gorm.DB
	Blobs storage.BlobStore
	Files *storage.ContentStore
	Jobs  *storage.JobStore

	Engine     *tesseract.Engine
	Aggregator *processor.DocumentAggregator

	// coordinator ports; local components unless a remote collaborator is configured
	FileStore coordinator.FileStore
	Extractor coordinator.Extractor

	FileService *clients.FileServiceClient
	OCRService  *clients.OCRServiceClient
	Events      *queue.RedisEventPublisher

	closers []func() error
	logger  *logging.Logger
}

// Build connects everything cfg describes. Close releases what was opened.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, logger: logging.NewLogger("app")}

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildPipeline(); err != nil {
		a.Close()
		return nil, err
	}

	a.FileStore = a.Files
	if cfg.FileServiceURL != "" {
		a.FileService = clients.NewFileServiceClient(cfg.FileServiceURL, cfg.CollaboratorTimeout)
		a.FileStore = a.FileService
		a.logger.Info("Using remote file service", "url", cfg.FileServiceURL)
	}

	a.Extractor = a.Aggregator
	if cfg.OCRServiceURL != "" {
		a.OCRService = clients.NewOCRServiceClient(cfg.OCRServiceURL, cfg.CollaboratorTimeout)
		a.Extractor = a.OCRService
		a.logger.Info("Using remote OCR service", "url", cfg.OCRServiceURL)
	}

	if cfg.StatusEvents {
		events, err := queue.NewRedisEventPublisher(ctx, cfg.RedisURL, cfg.QueueName)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize status events: %w", err)
		}
		a.Events = events
		a.closers = append(a.closers, events.Close)
	}

	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config

	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.DB = db
	a.closers = append(a.closers, func() error { return storage.Close(db) })

	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}
	a.Blobs = blobs
	if c, ok := blobs.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.Files, err = storage.NewContentStore(db, blobs, storage.ContentStoreConfig{
		MaxFileSize:       cfg.MaxFileSize,
		AllowedExtensions: cfg.AllowedExtensions,
	})
	if err != nil {
		return err
	}
	a.Jobs = storage.NewJobStore(db)

	a.logger.Info("Record store ready", "driver", cfg.DatabaseDriver, "blobs", blobs.Backend())
	return nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		return storage.NewS3BlobStore(ctx, cfg.S3Bucket, cfg.S3Region, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")
	case "gcs":
		return storage.NewGCSBlobStore(ctx, cfg.GCSBucket, "")
	default:
		return storage.NewFSBlobStore(cfg.UploadDir)
	}
}

func (a *App) buildPipeline() error {
	cfg := a.Config

	pre, err := processor.NewImagePreprocessor(processor.DefaultPreprocessConfig())
	if err != nil {
		return err
	}

	a.Engine = tesseract.NewEngine(tesseract.Config{TessdataPrefix: cfg.TessdataPrefix, DPI: cfg.RasterDPI})
	rasterizer := processor.NewPdftoppmRasterizer(processor.RasterizerConfig{
		PdftoppmPath: cfg.PdftoppmPath,
		DPI:          cfg.RasterDPI,
		TempDir:      cfg.TempDir,
	})

	a.Aggregator, err = processor.NewDocumentAggregator(processor.AggregatorConfig{
		SupportedLanguages: cfg.SupportedLanguages,
		PageConcurrency:    cfg.PageConcurrency,
	}, processor.NewPageExtractor(pre, a.Engine), rasterizer)
	return err
}

// NewCoordinator creates a coordinator over the wired ports. d may be nil
// for callers that only read or extract synchronously.
func (a *App) NewCoordinator(d coordinator.Dispatcher) (*coordinator.Coordinator, error) {
	var opts []coordinator.Option
	if d != nil {
		opts = append(opts, coordinator.WithDispatcher(d))
	}
	if a.Events != nil {
		opts = append(opts, coordinator.WithNotifier(a.Events))
	}
	return coordinator.New(coordinator.Config{
		SupportedLanguages:         a.Config.SupportedLanguages,
		DefaultConfidenceThreshold: a.Config.DefaultConfidenceThreshold,
	}, a.FileStore, a.Jobs, a.Extractor, opts...)
}

// Health reports record store, engine, collaborator and queue state.
func (a *App) Health(ctx context.Context) map[string]interface{} {
	report := map[string]interface{}{"healthy": true}
	unhealthy := func(key string, err error) {
		report[key] = map[string]interface{}{"ok": false, "error": err.Error()}
		report["healthy"] = false
	}

	if err := storage.Ping(ctx, a.DB); err != nil {
		unhealthy("database", err)
	} else {
		report["database"] = map[string]interface{}{"ok": true, "driver": a.Config.DatabaseDriver}
	}

	if a.OCRService != nil {
		if err := a.OCRService.HealthCheck(ctx); err != nil {
			unhealthy("ocr_service", err)
		} else {
			report["ocr_service"] = map[string]interface{}{"ok": true}
		}
	} else if info, err := a.Engine.Describe(); err != nil {
		unhealthy("tesseract", err)
	} else {
		missing := tesseract.MissingLanguages(info.Languages, a.Config.SupportedLanguages)
		report["tesseract"] = map[string]interface{}{
			"ok":                len(missing) == 0,
			"version":           info.Version,
			"languages":         info.Languages,
			"missing_languages": missing,
		}
		if len(missing) > 0 {
			report["healthy"] = false
		}
	}

	if a.FileService != nil {
		if err := a.FileService.HealthCheck(ctx); err != nil {
			unhealthy("file_service", err)
		} else {
			report["file_service"] = map[string]interface{}{"ok": true}
		}
	}

	if a.Events != nil {
		if stats, err := a.Events.GetStats(ctx); err != nil {
			unhealthy("queue", err)
		} else {
			report["queue"] = stats
		}
	}

	return report
}

// Close releases everything Build opened, newest first.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}
