package processor

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/adverant/nexus/ocr-pipeline/internal/errors"
	"github.com/adverant/nexus/ocr-pipeline/internal/logging"
	"github.com/adverant/nexus/ocr-pipeline/internal/pdfinfo"
)

// Rasterizer turns a PDF into one image per page, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([]image.Image, error)
}

// RasterizerConfig holds pdftoppm settings
type RasterizerConfig struct {
	PdftoppmPath string
	DPI          int
	TempDir      string // "" uses the OS temp dir
}

// PdftoppmRasterizer shells out to poppler's pdftoppm.
type PdftoppmRasterizer struct {
	cfg       RasterizerConfig
	pageCount func([]byte) (int, error)
	logger    *logging.Logger
}

// NewPdftoppmRasterizer creates a rasterizer
func NewPdftoppmRasterizer(cfg RasterizerConfig) *PdftoppmRasterizer {
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &PdftoppmRasterizer{
		cfg:       cfg,
		pageCount: pdfinfo.PageCount,
		logger:    logging.NewLogger("rasterizer"),
	}
}

var pageFileRe = regexp.MustCompile(`-(\d+)\.png$`)

// Rasterize renders every page at the configured DPI. Any failure is a DecodeError.
func (r *PdftoppmRasterizer) Rasterize(ctx context.Context, pdf []byte) ([]image.Image, error) {
	if len(pdf) == 0 {
		return nil, errors.NewDecodeError("Failed to process PDF: empty payload", nil)
	}

	dir, err := os.MkdirTemp(r.cfg.TempDir, "ocr-raster-*")
	if err != nil {
		return nil, errors.NewDecodeError("Failed to process PDF: temp dir", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, pdf, 0o600); err != nil {
		return nil, errors.NewDecodeError("Failed to process PDF: write input", err)
	}

	cmd := exec.CommandContext(ctx, r.cfg.PdftoppmPath,
		"-r", strconv.Itoa(r.cfg.DPI),
		"-png",
		input,
		filepath.Join(dir, "page"),
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.NewDecodeError(
			fmt.Sprintf("Failed to process PDF: %s", strings.TrimSpace(string(out))), err)
	}

	files, err := orderedPageFiles(dir)
	if err != nil {
		return nil, errors.NewDecodeError("Failed to process PDF: list pages", err)
	}
	if len(files) == 0 {
		return nil, errors.NewDecodeError("Failed to process PDF: no pages rendered", nil)
	}

	if r.pageCount != nil {
		if want, err := r.pageCount(pdf); err != nil {
			r.logger.Warn("Could not cross-check rendered page count", "error", err)
		} else if want != len(files) {
			return nil, errors.NewDecodeError(
				fmt.Sprintf("Failed to process PDF: rendered %d of %d pages", len(files), want), nil)
		}
	}

	pages := make([]image.Image, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.NewDecodeError("Failed to process PDF: read page", err)
		}
		img, err := DecodeImage(data)
		if err != nil {
			return nil, err
		}
		pages = append(pages, img)
	}

	r.logger.Debug("PDF rasterized", "pages", len(pages), "dpi", r.cfg.DPI)
	return pages, nil
}

// orderedPageFiles lists page-N.png files sorted by N; pdftoppm zero-pads N by page count.
func orderedPageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type pageFile struct {
		n    int
		path string
	}
	var found []pageFile
	for _, e := range entries {
		m := pageFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		found = append(found, pageFile{n: n, path: filepath.Join(dir, e.Name())})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.path
	}
	return out, nil
}
