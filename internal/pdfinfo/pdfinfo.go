// Package pdfinfo reads page counts and document properties from PDF bytes.
package pdfinfo

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// Info is what the pipeline records about a PDF upload.
type Info struct {
	PageCount int
	Title     string
	Author    string
	Creator   string
	Producer  string
}

// Metadata renders the non-empty properties for StoredFile.Metadata.
func (i *Info) Metadata() map[string]interface{} {
	m := map[string]interface{}{
		"page_count": i.PageCount,
	}
	for k, v := range map[string]string{
		"title":    i.Title,
		"author":   i.Author,
		"creator":  i.Creator,
		"producer": i.Producer,
	} {
		if v = strings.TrimSpace(v); v != "" {
			m[k] = v
		}
	}
	return m
}

func configuration() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// Inspect parses and validates data in relaxed mode.
func Inspect(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty pdf")
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf: %w", err)
	}

	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to validate pdf: %w", err)
	}

	return &Info{
		PageCount: ctx.PageCount,
		Title:     ctx.Title,
		Author:    ctx.Author,
		Creator:   ctx.Creator,
		Producer:  ctx.Producer,
	}, nil
}

// PageCount returns the number of pages in data.
func PageCount(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty pdf")
	}

	n, err := api.PageCount(bytes.NewReader(data), configuration())
	if err != nil {
		return 0, fmt.Errorf("failed to count pdf pages: %w", err)
	}
	return n, nil
}
