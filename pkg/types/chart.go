// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Chart is the data-charting entry for one record included at fulltext
// screening. Bibliographic fields are copied from the record; Findings
// holds the key/value items supplied by a charting oracle, if one is
// configured.
type Chart struct {
	RecordID   string            `json:"record_id" yaml:"record_id"`
	Title      string            `json:"title" yaml:"title"`
	Authors    []string          `json:"authors,omitempty" yaml:"authors,omitempty"`
	Year       int               `json:"year,omitempty" yaml:"year,omitempty"`
	Venue      string            `json:"venue,omitempty" yaml:"venue,omitempty"`
	ExternalID string            `json:"external_id,omitempty" yaml:"external_id,omitempty"`
	Keywords   []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Resolution Resolution        `json:"resolution" yaml:"resolution"`
	Findings   map[string]string `json:"findings,omitempty" yaml:"findings,omitempty"`
	ChartedAt  time.Time         `json:"charted_at" yaml:"charted_at"`
}

// KeywordCount is one entry in the synthesis keyword frequency list.
type KeywordCount struct {
	Keyword string `json:"keyword" yaml:"keyword"`
	Count   int    `json:"count" yaml:"count"`
}

// StageSummary aggregates the verdicts of one screening stage.
type StageSummary struct {
	Verdicts     int `json:"verdicts" yaml:"verdicts"`
	Included     int `json:"included" yaml:"included"`
	Excluded     int `json:"excluded" yaml:"excluded"`
	AutoMajority int `json:"auto_majority" yaml:"auto_majority"`
	Adjudicated  int `json:"adjudicated" yaml:"adjudicated"`

	// Unanimous counts panels where all three votes agreed.
	Unanimous int `json:"unanimous" yaml:"unanimous"`

	// Agreement is Unanimous / Verdicts (0 when there are no verdicts).
	Agreement float64 `json:"agreement" yaml:"agreement"`
}

// Synthesis is the descriptive summary over the charted studies.
type Synthesis struct {
	Included    int                     `json:"included" yaml:"included"`
	ByYear      map[int]int             `json:"by_year,omitempty" yaml:"by_year,omitempty"`
	ByVenue     map[string]int          `json:"by_venue,omitempty" yaml:"by_venue,omitempty"`
	TopKeywords []KeywordCount          `json:"top_keywords,omitempty" yaml:"top_keywords,omitempty"`
	Stages      map[string]StageSummary `json:"stages" yaml:"stages"`
	GeneratedAt time.Time               `json:"generated_at" yaml:"generated_at"`
}
