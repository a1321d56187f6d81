// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fulltext locates the full text of a record in the configured
// directory and turns it into plain text for fulltext screening and
// charting. Pre-converted .txt and .md files are read as is; PDFs go
// through a converter backend.
package fulltext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/openreviewscope/internal/container"
	"github.com/pdiddy/openreviewscope/internal/logging"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

// ErrNoConverter is returned for a PDF when the text backend is selected.
var ErrNoConverter = errors.New("no PDF converter configured")

// Extractor returns the plain text of a located full-text file.
type Extractor interface {
	ExtractFullText(ctx context.Context, path string) (string, error)
}

// Converter transforms a PDF file into text. Different backends
// (pdftotext, markitdown) implement this interface.
type Converter interface {
	Convert(ctx context.Context, pdfPath string) (string, error)
}

// locateExts lists text formats before .pdf so a converted copy wins.
var locateExts = []string{".txt", ".md", ".pdf"}

// Locate looks in dir for <record id> or <external id slug> with a .txt,
// .md or .pdf extension and returns the first match.
func Locate(dir string, rec types.Record) (string, bool) {
	names := []string{rec.ID}
	if slug := Slug(rec.ExternalID); slug != "" {
		names = append(names, slug)
	}
	for _, name := range names {
		for _, ext := range locateExts {
			p := filepath.Join(dir, name+ext)
			if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
				return p, true
			}
		}
	}
	return "", false
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

// Slug turns an external identifier into a file name stem:
// "https://doi.org/10.1000/ABC" becomes "10.1000_abc".
func Slug(externalID string) string {
	id := types.NormalizeExternalID(externalID)
	return strings.Trim(slugUnsafe.ReplaceAllString(id, "_"), "_")
}

// Reader is the Extractor used by the pipeline. It reads text files
// directly, converts PDFs with PDF and truncates to MaxChars runes.
// When Cache is set a converted PDF is saved next to it as .md; later
// extractions of the same PDF read that file instead of converting again,
// and Locate prefers it on the next lookup.
type Reader struct {
	PDF      Converter
	MaxChars int
	Cache    bool
	Logger   *slog.Logger
}

// New builds the Reader for cfg, detecting a container runtime or host
// binary as the backend needs.
func New(ctx context.Context, cfg types.FullTextConfig) (*Reader, error) {
	r := &Reader{MaxChars: cfg.MaxChars, Cache: true}
	switch cfg.Backend {
	case types.FullTextPlain, "":
	case types.FullTextPdftotext:
		if host := container.NewHost(); host.Has(binPdftotext) {
			r.PDF = &Pdftotext{Runner: host, Tool: binPdftotext}
			break
		}
		rt, err := container.DetectRuntime(ctx)
		if err != nil {
			return nil, fmt.Errorf("pdftotext not on PATH and %w", err)
		}
		r.PDF = &Pdftotext{Runner: rt, Tool: imagePdftotext}
	case types.FullTextMarkitdown:
		rt, err := container.DetectRuntime(ctx)
		if err != nil {
			return nil, err
		}
		m, err := NewMarkitdown(ctx, rt)
		if err != nil {
			return nil, err
		}
		r.PDF = m
	default:
		return nil, &types.ValidationError{Field: "fulltext.backend", Msg: fmt.Sprintf("unsupported backend %q", cfg.Backend)}
	}
	return r, nil
}

// ExtractFullText returns the text of the file at path.
func (r *Reader) ExtractFullText(ctx context.Context, path string) (string, error) {
	var text string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		text = string(data)
	case ".pdf":
		out, err := r.convertPDF(ctx, path)
		if err != nil {
			return "", err
		}
		text = out
	default:
		return "", fmt.Errorf("unsupported full-text file %s", path)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s has no text", path)
	}
	return Truncate(text, r.MaxChars), nil
}

// convertPDF returns the cached conversion of path when one exists and
// otherwise runs the converter, caching the result when enabled.
func (r *Reader) convertPDF(ctx context.Context, path string) (string, error) {
	cached := strings.TrimSuffix(path, filepath.Ext(path)) + ".md"
	if r.Cache {
		if data, err := os.ReadFile(cached); err == nil {
			return string(data), nil
		}
	}
	if r.PDF == nil {
		return "", fmt.Errorf("%s: %w", path, ErrNoConverter)
	}
	text, err := r.PDF.Convert(ctx, path)
	if err != nil {
		return "", err
	}
	if r.Cache {
		if err := os.WriteFile(cached, []byte(text), 0o644); err != nil {
			r.logger().Warn("caching converted full text", "path", cached, "error", err)
		}
	}
	return text, nil
}

func (r *Reader) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.Discard()
	}
	return r.Logger
}

// Truncate cuts s to at most max runes; max <= 0 disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
