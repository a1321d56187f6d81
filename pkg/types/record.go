// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the screening pipeline:
// records, criteria, votes, verdicts, the stage order, funnel counters and
// the RunState aggregate that the pipeline driver owns.
package types

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Record is a candidate bibliographic entry moving through the pipeline.
// ID is derived from the normalized title, authors and year; parsers build
// records through NewRecord and never set ID themselves.
type Record struct {
	// ID is the deterministic identifier (see RecordID).
	ID string `json:"id" yaml:"id"`

	// Title is the entry title as parsed.
	Title string `json:"title" yaml:"title"`

	// Authors lists the authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Year is the publication year (0 when unknown).
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Venue is the journal, conference or publisher.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// ExternalID is a DOI, PMID or similar identifier when the source has one.
	ExternalID string `json:"external_id,omitempty" yaml:"external_id,omitempty"`

	// Abstract is the free-text abstract.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// Keywords holds author or indexer keywords.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// Provenance is the file the record was parsed from.
	Provenance string `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// NewRecord builds a Record and derives its ID from title, authors and year.
func NewRecord(title string, authors []string, year int) Record {
	return Record{
		ID:      RecordID(title, authors, year),
		Title:   title,
		Authors: authors,
		Year:    year,
	}
}

// HasValidID reports whether ID still matches the value derived from the
// record's title, authors and year.
func (r Record) HasValidID() bool {
	return r.ID != "" && r.ID == RecordID(r.Title, r.Authors, r.Year)
}

// RecordID returns the first 16 hex characters of
// SHA-256(normalized title | normalized authors | year). The same input
// always yields the same identifier across runs.
func RecordID(title string, authors []string, year int) string {
	normAuthors := make([]string, 0, len(authors))
	for _, a := range authors {
		if n := NormalizeText(a); n != "" {
			normAuthors = append(normAuthors, n)
		}
	}

	h := sha256.New()
	h.Write([]byte(NormalizeText(title)))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.Join(normAuthors, ";")))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(year)))
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

// foldDiacritics decomposes accented characters and drops the combining
// marks, so "Müller" and "Muller" normalize the same way.
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText lowercases s, folds diacritics, strips punctuation and
// collapses runs of whitespace to single spaces.
func NormalizeText(s string) string {
	folded, _, err := transform.String(foldDiacritics, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeExternalID lowercases an identifier and strips resolver URL
// prefixes such as "https://doi.org/" or "doi:".
func NormalizeExternalID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, prefix := range externalIDPrefixes {
		if strings.HasPrefix(id, prefix) {
			id = strings.TrimPrefix(id, prefix)
			break
		}
	}
	return strings.TrimSpace(id)
}

var externalIDPrefixes = []string{
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"https://doi.org/",
	"http://doi.org/",
	"dx.doi.org/",
	"doi.org/",
	"https://pubmed.ncbi.nlm.nih.gov/",
	"doi:",
	"pmid:",
}

// Criteria is the Population/Concept/Context scoping statement plus the
// ordered inclusion and exclusion lists. It does not change during a run.
type Criteria struct {
	Population string   `json:"population" yaml:"population"`
	Concept    string   `json:"concept" yaml:"concept"`
	Context    string   `json:"context" yaml:"context"`
	Inclusion  []string `json:"inclusion" yaml:"inclusion"`
	Exclusion  []string `json:"exclusion" yaml:"exclusion"`
}

// Validate checks that every PCC element is present and that at least one
// inclusion statement exists.
func (c Criteria) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"population", c.Population},
		{"concept", c.Concept},
		{"context", c.Context},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: "criteria." + f.name, Msg: "must not be empty"}
		}
	}
	if len(c.Inclusion) == 0 {
		return &ValidationError{Field: "criteria.inclusion", Msg: "at least one inclusion statement is required"}
	}
	for i, s := range c.Inclusion {
		if strings.TrimSpace(s) == "" {
			return &ValidationError{Field: fmt.Sprintf("criteria.inclusion[%d]", i), Msg: "empty statement"}
		}
	}
	for i, s := range c.Exclusion {
		if strings.TrimSpace(s) == "" {
			return &ValidationError{Field: fmt.Sprintf("criteria.exclusion[%d]", i), Msg: "empty statement"}
		}
	}
	return nil
}

// MatchReason names the deduplication strategy that matched a duplicate.
type MatchReason string

const (
	MatchExternalID     MatchReason = "exact_identifier"
	MatchTitle          MatchReason = "title_similarity"
	MatchYearAuthorName MatchReason = "year_author_title"
)

// Duplicate is one collapsed record and the strategy that matched it.
type Duplicate struct {
	Record Record      `json:"record" yaml:"record"`
	Reason MatchReason `json:"reason" yaml:"reason"`
}

// DuplicateGroup ties every collapsed record to its canonical survivor,
// which is always the first-seen record in input order.
type DuplicateGroup struct {
	CanonicalID string      `json:"canonical_id" yaml:"canonical_id"`
	Duplicates  []Duplicate `json:"duplicates" yaml:"duplicates"`
}
