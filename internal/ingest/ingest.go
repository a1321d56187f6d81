// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest turns bibliographic exports into Records. It reads RIS,
// MEDLINE/PubMed and CSL (YAML or JSON) files and the criteria file.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// Format names a supported bibliographic file format.
type Format string

const (
	FormatRIS     Format = "ris"
	FormatMedline Format = "medline"
	FormatCSLYAML Format = "csl-yaml"
	FormatCSLJSON Format = "csl-json"
)

// FormatFor picks the format from the file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ris":
		return FormatRIS, nil
	case ".nbib", ".medline", ".txt":
		return FormatMedline, nil
	case ".yaml", ".yml":
		return FormatCSLYAML, nil
	case ".json":
		return FormatCSLJSON, nil
	}
	return "", &types.ValidationError{Field: "input", Msg: fmt.Sprintf("unsupported file type %q", path)}
}

// Parse reads every record in r. provenance is stored on each record.
func Parse(r io.Reader, format Format, provenance string) ([]types.Record, error) {
	var (
		records []types.Record
		err     error
	)
	switch format {
	case FormatRIS:
		records, err = parseRIS(r)
	case FormatMedline:
		records, err = parseMedline(r)
	case FormatCSLYAML:
		records, err = parseCSLYAML(r)
	case FormatCSLJSON:
		records, err = parseCSLJSON(r)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", provenance, err)
	}
	for i := range records {
		records[i].Provenance = provenance
	}
	return records, nil
}

// ParseFile parses one file, choosing the format from its extension.
func ParseFile(path string) ([]types.Record, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, format, filepath.Base(path))
}

// Source supplies the candidate records of a run.
type Source interface {
	Records(ctx context.Context) ([]types.Record, error)
}

// FileSource reads records from a list of files in order. Records are not
// deduplicated here; identical entries in two files both count as
// identified.
type FileSource struct {
	Paths []string
}

// Records parses every path and concatenates the results.
func (s FileSource) Records(ctx context.Context) ([]types.Record, error) {
	if len(s.Paths) == 0 {
		return nil, &types.ValidationError{Field: "input", Msg: "no input files"}
	}
	var all []types.Record
	for _, p := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := ParseFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

// StaticSource serves a fixed record list.
type StaticSource []types.Record

// Records returns a copy of the list.
func (s StaticSource) Records(context.Context) ([]types.Record, error) {
	return append([]types.Record(nil), s...), nil
}

var yearRe = regexp.MustCompile(`\b(1[5-9]\d\d|2\d\d\d)\b`)

// parseYear returns the first plausible four-digit year in s, or 0.
func parseYear(s string) int {
	m := yearRe.FindString(s)
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}

// build applies the common post-processing of all tagged formats and
// derives the record ID.
func build(title string, authors []string, year int) types.Record {
	title = strings.Join(strings.Fields(title), " ")
	clean := make([]string, 0, len(authors))
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			clean = append(clean, a)
		}
	}
	return types.NewRecord(title, clean, year)
}

// splitKeywords splits a keyword field that may hold several entries
// separated by semicolons or commas.
func splitKeywords(values []string) []string {
	var out []string
	for _, v := range values {
		for _, k := range strings.FieldsFunc(v, func(r rune) bool { return r == ';' || r == ',' }) {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
	}
	return out
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// firstOf returns the first non-empty value among the given tags.
func firstOf(fields map[string][]string, tags ...string) string {
	for _, t := range tags {
		if v := first(fields[t]); v != "" {
			return v
		}
	}
	return ""
}

// allOf returns the values of the first tag that has any.
func allOf(fields map[string][]string, tags ...string) []string {
	for _, t := range tags {
		if len(fields[t]) > 0 {
			return fields[t]
		}
	}
	return nil
}
