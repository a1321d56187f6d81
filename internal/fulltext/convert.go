// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/openreviewscope/internal/container"
)

const (
	binPdftotext    = "pdftotext"
	imagePdftotext  = "openreviewscope/pdftotext:latest"
	imageMarkitdown = "openreviewscope/markitdown:latest"
)

// Pdftotext converts PDFs with poppler's pdftotext, either the host binary
// or an image whose entrypoint is pdftotext. Tool is the binary or image.
type Pdftotext struct {
	Runner container.Runner
	Tool   string
}

// Convert pipes the PDF through pdftotext in layout mode.
func (p *Pdftotext) Convert(ctx context.Context, pdfPath string) (string, error) {
	return pipe(ctx, p.Runner, p.Tool, []string{"-layout", "-enc", "UTF-8", "-", "-"}, pdfPath)
}

// Markitdown converts PDFs by piping them through the markitdown
// container image.
type Markitdown struct {
	runtime container.Runtime
}

// NewMarkitdown verifies that the markitdown image exists locally.
func NewMarkitdown(ctx context.Context, rt container.Runtime) (*Markitdown, error) {
	if err := rt.ImageExists(ctx, imageMarkitdown); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &Markitdown{runtime: rt}, nil
}

// Convert returns the Markdown rendering of the PDF.
func (m *Markitdown) Convert(ctx context.Context, pdfPath string) (string, error) {
	return pipe(ctx, m.runtime, imageMarkitdown, nil, pdfPath)
}

func pipe(ctx context.Context, r container.Runner, tool string, args []string, pdfPath string) (string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := r.Run(ctx, tool, args, f, &out); err != nil {
		return "", fmt.Errorf("converting %s with %s: %w", pdfPath, tool, err)
	}

	if out.Len() == 0 {
		return "", fmt.Errorf("%s produced empty output for %s", tool, pdfPath)
	}
	return out.String(), nil
}
