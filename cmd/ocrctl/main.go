// Command ocrctl is the operator CLI for the OCR pipeline.
//
//	ocrctl upload <path>
//	ocrctl submit -file <id> [-lang eng] [-threshold 30] [-local]
//	ocrctl status <file_id>
//	ocrctl job <job_id>
//	ocrctl jobs [-limit 10]
//	ocrctl files [-page 1] [-per-page 20] [-status completed]
//	ocrctl delete <file_id>
//	ocrctl extract -file <id> [-lang eng] [-threshold 30]
//	ocrctl health
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/ocr-pipeline/internal/app"
	"github.com/adverant/nexus/ocr-pipeline/internal/config"
	"github.com/adverant/nexus/ocr-pipeline/internal/coordinator"
	perrors "github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/models"
	"github.com/adverant/nexus/ocr-pipeline/internal/queue"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout)
	logging.Sync()

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		usage(os.Stderr)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		if perrors.IsNotFound(err) {
			os.Exit(4)
		}
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: ocrctl <command> [flags] [args]

commands:
  upload <path>                 store a document (duplicates return the existing record)
  submit -file <id>             queue an OCR job; -local runs it in-process and waits
  status <file_id>              processing status of a stored file
  job <job_id>                  job record including its result
  jobs                          most recent jobs
  files                         list stored files
  delete <file_id>              delete a stored file and its content
  extract -file <id>            run OCR now without creating a job
  health                        dependency health report`)
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		usage(out)
		return nil
	}

	_ = godotenv.Load()
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := logging.Configure(cfg.LogLevel, "console"); err != nil {
		return err
	}

	components, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	c := &cli{app: components, out: out}
	switch cmd {
	case "upload":
		return c.upload(ctx, args)
	case "submit":
		return c.submit(ctx, args)
	case "status":
		return c.status(ctx, args)
	case "job":
		return c.job(ctx, args)
	case "jobs":
		return c.jobs(ctx, args)
	case "files":
		return c.files(ctx, args)
	case "delete":
		return c.delete(ctx, args)
	case "extract":
		return c.extract(ctx, args)
	case "health":
		return c.print(components.Health(ctx))
	}
	return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
}

type cli struct {
	app *app.App
	out io.Writer
}

func (c *cli) print(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jobFlags are shared by submit and extract. A negative threshold means unset.
type jobFlags struct {
	fileID    string
	language  string
	threshold float64
}

func (f *jobFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.fileID, "file", "", "stored file id")
	fs.StringVar(&f.language, "lang", "eng", "tesseract language code")
	fs.Float64Var(&f.threshold, "threshold", -1, "minimum block confidence 0..100 (default from config)")
}

func (f *jobFlags) thresholdPtr() *float64 {
	if f.threshold < 0 {
		return nil
	}
	return &f.threshold
}

func oneArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s takes exactly one argument: %w", fs.Name(), errUsage)
	}
	return fs.Arg(0), nil
}

func (c *cli) upload(ctx context.Context, args []string) error {
	path, err := oneArg(flag.NewFlagSet("upload", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	file, err := c.app.Files.Put(ctx, data, filepath.Base(path))
	if err != nil {
		return err
	}
	return c.print(file)
}

func (c *cli) submit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	var jf jobFlags
	jf.register(fs)
	local := fs.Bool("local", false, "run the job in-process and wait for it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if jf.fileID == "" {
		return fmt.Errorf("submit requires -file: %w", errUsage)
	}

	var (
		dispatcher coordinator.Dispatcher
		pool       *queue.LocalPool
	)
	if *local {
		runner, err := c.app.NewCoordinator(nil)
		if err != nil {
			return err
		}
		pool, err = queue.NewLocalPool(runner, 1, 1)
		if err != nil {
			return err
		}
		pool.Start()
		defer pool.Close()
		dispatcher = pool
	} else {
		d, err := queue.NewAsynqDispatcher(c.app.Config.RedisURL, c.app.Config.QueueName, c.app.Config.JobTimeout)
		if err != nil {
			return err
		}
		defer d.Close()
		dispatcher = d
	}

	coord, err := c.app.NewCoordinator(dispatcher)
	if err != nil {
		return err
	}

	jobID, err := coord.Submit(ctx, jf.fileID, jf.language, jf.thresholdPtr())
	if err != nil {
		if jobID != "" {
			fmt.Fprintf(c.out, "job %s failed: %v\n", jobID, err)
		}
		return err
	}

	if pool != nil {
		pool.Close()
	}
	job, err := coord.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return c.print(job)
}

func (c *cli) coordinator() (*coordinator.Coordinator, error) {
	return c.app.NewCoordinator(nil)
}

func (c *cli) status(ctx context.Context, args []string) error {
	fileID, err := oneArg(flag.NewFlagSet("status", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	coord, err := c.coordinator()
	if err != nil {
		return err
	}
	view, err := coord.GetStatus(ctx, fileID)
	if err != nil {
		return err
	}
	return c.print(view)
}

func (c *cli) job(ctx context.Context, args []string) error {
	jobID, err := oneArg(flag.NewFlagSet("job", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	coord, err := c.coordinator()
	if err != nil {
		return err
	}
	job, err := coord.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return c.print(job)
}

func (c *cli) jobs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	limit := fs.Int("limit", 10, "number of jobs (1..100)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	coord, err := c.coordinator()
	if err != nil {
		return err
	}
	jobs, err := coord.ListRecent(ctx, *limit)
	if err != nil {
		return err
	}
	return c.print(jobs)
}

func (c *cli) files(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("files", flag.ContinueOnError)
	page := fs.Int("page", 1, "page number")
	perPage := fs.Int("per-page", 20, "files per page (1..100)")
	status := fs.String("status", "", "filter by processing status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	files, total, err := c.app.Files.List(ctx, *page, *perPage, models.FileStatus(*status))
	if err != nil {
		return err
	}
	return c.print(map[string]interface{}{
		"files":    files,
		"total":    total,
		"page":     *page,
		"per_page": *perPage,
	})
}

func (c *cli) delete(ctx context.Context, args []string) error {
	fileID, err := oneArg(flag.NewFlagSet("delete", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	if err := c.app.Files.Delete(ctx, fileID); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "deleted %s\n", fileID)
	return nil
}

func (c *cli) extract(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	var jf jobFlags
	jf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if jf.fileID == "" {
		return fmt.Errorf("extract requires -file: %w", errUsage)
	}
	coord, err := c.coordinator()
	if err != nil {
		return err
	}
	result, err := coord.ExtractNow(ctx, jf.fileID, jf.language, jf.thresholdPtr())
	if err != nil {
		return err
	}
	return c.print(result)
}
