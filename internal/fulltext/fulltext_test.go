// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// fakeRunner writes a canned reply and records what it was asked to run.
type fakeRunner struct {
	reply string
	err   error
	tool  string
	args  []string
	input string
}

func (f *fakeRunner) Run(_ context.Context, tool string, args []string, stdin io.Reader, stdout io.Writer) error {
	f.tool, f.args = tool, args
	data, _ := io.ReadAll(stdin)
	f.input = string(data)
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(stdout, f.reply)
	return err
}

type fakeRuntime struct {
	fakeRunner
	images map[string]bool
}

func (f *fakeRuntime) Name() string                   { return "docker" }
func (f *fakeRuntime) Available(context.Context) bool { return true }
func (f *fakeRuntime) ImageExists(_ context.Context, image string) error {
	if f.images[image] {
		return nil
	}
	return errors.New("no such image")
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "10.1000_abc", Slug("https://doi.org/10.1000/ABC"))
	assert.Equal(t, "31234567", Slug("pmid:31234567"))
	assert.Equal(t, "10.1002_sici_1097", Slug("10.1002/(SICI)1097"))
	assert.Equal(t, "", Slug(""))
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	rec := types.NewRecord("Telehealth for older adults", []string{"Smith J"}, 2020)
	rec.ExternalID = "10.1000/tele.1"

	_, ok := Locate(dir, rec)
	assert.False(t, ok)

	write(t, filepath.Join(dir, "10.1000_tele.1.pdf"), "%PDF")
	p, ok := Locate(dir, rec)
	require.True(t, ok)
	assert.Equal(t, "10.1000_tele.1.pdf", filepath.Base(p))

	write(t, filepath.Join(dir, rec.ID+".pdf"), "%PDF")
	p, _ = Locate(dir, rec)
	assert.Equal(t, rec.ID+".pdf", filepath.Base(p), "record id wins over external id")

	write(t, filepath.Join(dir, rec.ID+".md"), "# text")
	p, _ = Locate(dir, rec)
	assert.Equal(t, rec.ID+".md", filepath.Base(p), "text wins over pdf")

	require.NoError(t, os.Mkdir(filepath.Join(dir, rec.ID+".txt"), 0o755))
	p, _ = Locate(dir, rec)
	assert.Equal(t, rec.ID+".md", filepath.Base(p), "directories are skipped")
}

func TestReaderText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	write(t, path, "\n  METHODS: we enrolled adults.  \n")

	r := &Reader{}
	text, err := r.ExtractFullText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "METHODS: we enrolled adults.", text)

	r.MaxChars = 7
	text, err = r.ExtractFullText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "METHODS", text)

	empty := filepath.Join(dir, "empty.md")
	write(t, empty, "  \n")
	_, err = r.ExtractFullText(context.Background(), empty)
	assert.Error(t, err)

	_, err = r.ExtractFullText(context.Background(), filepath.Join(dir, "a.docx"))
	assert.Error(t, err)
}

func TestReaderPDFWithoutConverter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.pdf")
	write(t, path, "%PDF")
	_, err := (&Reader{}).ExtractFullText(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoConverter)
}

func TestReaderPDFCachesConversion(t *testing.T) {
	dir := t.TempDir()
	rec := types.NewRecord("T", nil, 2020)
	pdf := filepath.Join(dir, rec.ID+".pdf")
	write(t, pdf, "%PDF-1.7")

	runner := &fakeRunner{reply: "converted body"}
	r := &Reader{PDF: &Pdftotext{Runner: runner, Tool: binPdftotext}, Cache: true}

	text, err := r.ExtractFullText(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, "converted body", text)
	assert.Equal(t, "pdftotext", runner.tool)
	assert.Equal(t, []string{"-layout", "-enc", "UTF-8", "-", "-"}, runner.args)
	assert.Equal(t, "%PDF-1.7", runner.input)

	p, ok := Locate(dir, rec)
	require.True(t, ok)
	assert.Equal(t, rec.ID+".md", filepath.Base(p))
}

// countingConverter counts conversions.
type countingConverter struct {
	calls int
}

func (c *countingConverter) Convert(context.Context, string) (string, error) {
	c.calls++
	return "converted body", nil
}

func TestReaderPDFReadsCachedConversion(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "paper.pdf")
	write(t, pdf, "%PDF-1.7")

	conv := &countingConverter{}
	r := &Reader{PDF: conv, Cache: true}
	for i := 0; i < 2; i++ {
		text, err := r.ExtractFullText(context.Background(), pdf)
		require.NoError(t, err)
		assert.Equal(t, "converted body", text)
	}
	assert.Equal(t, 1, conv.calls)

	write(t, filepath.Join(dir, "paper.md"), "edited by hand")
	text, err := r.ExtractFullText(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, "edited by hand", text)

	uncached := &Reader{PDF: conv}
	_, err = uncached.ExtractFullText(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.calls)
}

func TestReaderPDFCacheWriteFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "paper.pdf")
	write(t, pdf, "%PDF-1.7")
	// A directory where the cache file belongs makes the write fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "paper.md"), 0o755))

	conv := &countingConverter{}
	r := &Reader{PDF: conv, Cache: true}
	text, err := r.ExtractFullText(context.Background(), pdf)
	require.NoError(t, err)
	assert.Equal(t, "converted body", text)
	assert.Equal(t, 1, conv.calls)
}

func TestPdftotextErrors(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "a.pdf")
	write(t, pdf, "%PDF")

	_, err := (&Pdftotext{Runner: &fakeRunner{err: errors.New("exit 1")}, Tool: "pdftotext"}).Convert(context.Background(), pdf)
	assert.Error(t, err)

	_, err = (&Pdftotext{Runner: &fakeRunner{}, Tool: "pdftotext"}).Convert(context.Background(), pdf)
	assert.ErrorContains(t, err, "empty output")

	_, err = (&Pdftotext{Runner: &fakeRunner{reply: "x"}, Tool: "pdftotext"}).Convert(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
}

func TestMarkitdown(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "a.pdf")
	write(t, pdf, "%PDF")

	_, err := NewMarkitdown(context.Background(), &fakeRuntime{})
	assert.ErrorContains(t, err, "markitdown image not available")

	rt := &fakeRuntime{fakeRunner: fakeRunner{reply: "# Title\n\nBody"}, images: map[string]bool{imageMarkitdown: true}}
	m, err := NewMarkitdown(context.Background(), rt)
	require.NoError(t, err)

	out, err := m.Convert(context.Background(), pdf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Title"))
	assert.Equal(t, imageMarkitdown, rt.tool)
	assert.Empty(t, rt.args)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo wörld", 5))
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "abc", Truncate("abc", 10))
}

func TestNewPlain(t *testing.T) {
	r, err := New(context.Background(), types.FullTextConfig{Backend: types.FullTextPlain, MaxChars: 10})
	require.NoError(t, err)
	assert.Nil(t, r.PDF)
	assert.Equal(t, 10, r.MaxChars)

	_, err = New(context.Background(), types.FullTextConfig{Backend: "ocr"})
	var ve *types.ValidationError
	assert.ErrorAs(t, err, &ve)
}
