// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes the reporting artifacts of a run: the PRISMA-ScR
// funnel snapshot, the verdict table, the data charts with the synthesis,
// and the included records as CSL-YAML for citation tooling.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/openreviewscope/internal/ingest"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

// File names written by Write.
const (
	FunnelFile    = "funnel.yaml"
	VerdictsJSON  = "verdicts.json"
	VerdictsYAML  = "verdicts.yaml"
	ChartsFile    = "charts.yaml"
	IncludedFile  = "included.csl.yaml"
	SynthesisFile = "synthesis.yaml"
)

// FunnelSnapshot is the funnel with the context a flow diagram needs.
type FunnelSnapshot struct {
	RunID        string               `json:"run_id" yaml:"run_id"`
	Stage        types.Stage          `json:"stage" yaml:"stage"`
	Funnel       types.FunnelCounters `json:"funnel" yaml:"funnel"`
	Duplicates   int                  `json:"duplicates" yaml:"duplicates"`
	NotRetrieved []string             `json:"not_retrieved,omitempty" yaml:"not_retrieved,omitempty"`
}

// VerdictRow is one line of the verdict table.
type VerdictRow struct {
	RecordID   string           `json:"record_id" yaml:"record_id"`
	Title      string           `json:"title" yaml:"title"`
	Year       int              `json:"year,omitempty" yaml:"year,omitempty"`
	Stage      types.Stage      `json:"stage" yaml:"stage"`
	Decision   types.Decision   `json:"decision" yaml:"decision"`
	Resolution types.Resolution `json:"resolution" yaml:"resolution"`
	Rationale  string           `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Votes      []VoteCell       `json:"votes" yaml:"votes"`
}

// VoteCell is a reviewer's decision within a verdict row.
type VoteCell struct {
	ReviewerID string         `json:"reviewer_id" yaml:"reviewer_id"`
	Decision   types.Decision `json:"decision" yaml:"decision"`
	Reasons    []string       `json:"reasons" yaml:"reasons"`
}

// Funnel builds the funnel snapshot of state.
func Funnel(state *types.RunState) FunnelSnapshot {
	dups := 0
	for _, g := range state.Duplicates {
		dups += len(g.Duplicates)
	}
	return FunnelSnapshot{
		RunID:        state.RunID,
		Stage:        state.Stage,
		Funnel:       state.Funnel,
		Duplicates:   dups,
		NotRetrieved: state.NotRetrieved,
	}
}

// Verdicts returns the verdict table ordered by stage, then by record order
// in the state.
func Verdicts(state *types.RunState) []VerdictRow {
	order := make(map[string]int, len(state.Records))
	for i, r := range state.Records {
		order[r.ID] = i
	}
	rows := make([]VerdictRow, 0, len(state.Verdicts))
	for _, v := range state.Verdicts {
		rec, _ := state.Record(v.RecordID)
		row := VerdictRow{
			RecordID:   v.RecordID,
			Title:      rec.Title,
			Year:       rec.Year,
			Stage:      v.Stage,
			Decision:   v.Decision,
			Resolution: v.Resolution,
			Rationale:  v.Rationale,
		}
		for _, vote := range v.Votes {
			row.Votes = append(row.Votes, VoteCell{ReviewerID: vote.ReviewerID, Decision: vote.Decision, Reasons: vote.Reasons})
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Stage != rows[j].Stage {
			return rows[i].Stage < rows[j].Stage
		}
		return order[rows[i].RecordID] < order[rows[j].RecordID]
	})
	return rows
}

// Included returns the CSL items of the records included at fulltext
// screening.
func Included(state *types.RunState) []ingest.CSLItem {
	records := state.IncludedAt(types.StageFulltextScreening)
	items := make([]ingest.CSLItem, len(records))
	for i, r := range records {
		items[i] = ingest.CSLFromRecord(r)
	}
	return items
}

// Write writes every export file into dir and returns their paths. Charts
// and synthesis are written only once they exist.
func Write(dir string, state *types.RunState) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	var written []string
	write := func(name string, data []byte) error {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}
	writeYAML := func(name string, v any) error {
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", name, err)
		}
		return write(name, data)
	}

	if err := writeYAML(FunnelFile, Funnel(state)); err != nil {
		return written, err
	}

	rows := Verdicts(state)
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return written, fmt.Errorf("marshaling %s: %w", VerdictsJSON, err)
	}
	if err := write(VerdictsJSON, data); err != nil {
		return written, err
	}
	if err := writeYAML(VerdictsYAML, rows); err != nil {
		return written, err
	}

	if len(state.Charts) > 0 {
		if err := writeYAML(ChartsFile, state.Charts); err != nil {
			return written, err
		}
	}
	if state.Synthesis != nil {
		if err := writeYAML(SynthesisFile, state.Synthesis); err != nil {
			return written, err
		}
	}

	if items := Included(state); len(items) > 0 {
		var buf bytes.Buffer
		if err := ingest.WriteCSL(&buf, items); err != nil {
			return written, fmt.Errorf("encoding %s: %w", IncludedFile, err)
		}
		if err := write(IncludedFile, buf.Bytes()); err != nil {
			return written, err
		}
	}
	return written, nil
}

// FormatFunnel renders the funnel as the aligned lines printed by the CLI.
func FormatFunnel(f types.FunnelCounters) string {
	lines := []struct {
		label string
		value int
	}{
		{"identified", f.Identified},
		{"after deduplication", f.Deduplicated},
		{"screened", f.Screened},
		{"excluded at screening", f.ExcludedAtScreen},
		{"full text retrieved", f.Retrieved},
		{"excluded at full text", f.ExcludedAtFulltext},
		{"included", f.Included},
	}
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "  %-22s %d\n", l.label, l.value)
	}
	return b.String()
}
