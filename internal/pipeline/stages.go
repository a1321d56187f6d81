// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pdiddy/openreviewscope/internal/audit"
	"github.com/pdiddy/openreviewscope/internal/consensus"
	"github.com/pdiddy/openreviewscope/internal/dedup"
	"github.com/pdiddy/openreviewscope/internal/fulltext"
	"github.com/pdiddy/openreviewscope/internal/logging"
	"github.com/pdiddy/openreviewscope/internal/oracle"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

// ingest reads the source, deduplicates and stores the unique set. A
// state that already holds records was ingested before a crash and is
// left as is.
func (d *Driver) ingest(ctx context.Context, state *types.RunState) error {
	if len(state.Records) > 0 {
		return nil
	}
	if d.Source == nil {
		return &types.ValidationError{Field: "input", Msg: "no record source configured"}
	}
	records, err := d.Source.Records(ctx)
	if err != nil {
		return fmt.Errorf("reading records: %w", err)
	}

	unique, groups := dedup.Deduplicate(records, d.Config.Dedup.TitleThreshold)
	if err := state.SetIngested(len(records), unique, groups); err != nil {
		return err
	}
	d.printf("ingested %d records, %d unique, %d duplicate groups\n", len(records), len(unique), len(groups))
	return d.Store.Save(ctx, state)
}

func (d *Driver) screenAbstracts(ctx context.Context, state *types.RunState) error {
	return d.screen(ctx, state, types.StageAbstractScreening)
}

func (d *Driver) screenFullTexts(ctx context.Context, state *types.RunState) error {
	if d.FullText == nil {
		return &types.ValidationError{Field: "fulltext", Msg: "no full-text extractor configured"}
	}
	return d.screen(ctx, state, types.StageFulltextScreening)
}

// screen collects a panel verdict for every member of stage that has none
// yet. Each verdict is appended and checkpointed before the next one is
// folded in.
func (d *Driver) screen(ctx context.Context, state *types.RunState, stage types.Stage) error {
	if d.Panel == nil {
		return &types.ValidationError{Field: "screening.reviewers", Msg: "no reviewer panel configured"}
	}
	pending := state.Pending(stage)
	if len(pending) == 0 {
		return nil
	}
	log := d.logger().With(logging.KeyRunID, state.RunID, logging.KeyStage, stage.String())
	d.printf("%s: %d pending of %d\n", stage, len(pending), len(state.Members(stage)))

	criteria := state.Criteria
	paths := d.fullTextPaths(state, pending, stage == types.StageFulltextScreening)

	var included, excluded, adjudicated int
	work := func(ctx context.Context, rec types.Record) (types.Verdict, error) {
		d.printf("screening %s\n", rec.ID)
		var text string
		if stage == types.StageFulltextScreening {
			t, err := d.FullText.ExtractFullText(ctx, paths[rec.ID])
			if err != nil {
				return types.Verdict{}, fmt.Errorf("full text of %s: %w", rec.ID, err)
			}
			text = t
		}
		votes, err := d.Panel.Collect(ctx, oracle.ScreeningRequest{
			Record:   rec,
			Stage:    stage,
			Criteria: criteria,
			FullText: text,
		})
		if err != nil {
			return types.Verdict{}, err
		}
		return consensus.Settle(ctx, d.Adjudicator, oracle.AdjudicationRequest{
			Record:   rec,
			Stage:    stage,
			Votes:    votes,
			Criteria: criteria,
			FullText: text,
		})
	}
	fold := func(v types.Verdict) error {
		if err := state.AppendVerdict(v); err != nil {
			return err
		}
		if err := d.checkpoint(ctx, state, audit.VerdictEvents(state.RunID, v)...); err != nil {
			return err
		}
		if v.Decision == types.DecisionInclude {
			included++
		} else {
			excluded++
		}
		if v.Resolution == types.ResolutionAdjudicated {
			adjudicated++
		}
		d.printf("decided %s %s (%s)\n", v.RecordID, v.Decision, v.Resolution)
		log.Debug("verdict recorded", logging.KeyRecordID, v.RecordID, "decision", v.Decision, "resolution", v.Resolution)
		return nil
	}

	err := runBatches(ctx, pending, d.Config.Screening.BatchSize, d.Config.Screening.BatchDelay, work, fold)
	d.printf("%s summary: %d included, %d excluded, %d adjudicated\n", stage, included, excluded, adjudicated)
	return err
}

// fullTextPaths copies the located file paths of records so workers never
// read RunState.
func (d *Driver) fullTextPaths(state *types.RunState, records []types.Record, needed bool) map[string]string {
	paths := make(map[string]string, len(records))
	if !needed {
		return paths
	}
	for _, r := range records {
		paths[r.ID] = state.Retrieved[r.ID]
	}
	return paths
}

// gate locates a full text for every record included at abstract
// screening. Located files are recorded as retrieved and never removed.
// When some are missing and missing texts are not allowed, the run pauses
// with ErrAwaitingFullText.
func (d *Driver) gate(ctx context.Context, state *types.RunState) error {
	dir := d.Config.FullText.Dir
	var missing []string
	for _, rec := range state.Members(types.StageFulltextGate) {
		if state.IsRetrieved(rec.ID) {
			continue
		}
		path, ok := fulltext.Locate(dir, rec)
		if !ok {
			state.MarkNotRetrieved(rec.ID)
			missing = append(missing, rec.ID)
			continue
		}
		if err := state.MarkRetrieved(rec.ID, path); err != nil {
			return err
		}
		d.printf("retrieved %s: %s\n", rec.ID, path)
	}
	if err := d.Store.Save(ctx, state); err != nil {
		return err
	}

	d.printf("fulltext gate: %d retrieved, %d missing\n", len(state.Retrieved), len(missing))
	if len(missing) == 0 || d.Config.FullText.AllowMissing {
		return nil
	}
	for _, id := range missing {
		rec, _ := state.Record(id)
		name := id
		if slug := fulltext.Slug(rec.ExternalID); slug != "" {
			name += " or " + slug
		}
		d.printf("missing  %s (%s.{txt,md,pdf} in %s)\n", rec.Title, name, dir)
	}
	return fmt.Errorf("%w: %d of %d included records", ErrAwaitingFullText, len(missing), len(state.Members(types.StageFulltextGate)))
}

// extract charts every record included at fulltext screening.
func (d *Driver) extract(ctx context.Context, state *types.RunState) error {
	pending := state.Pending(types.StageExtraction)
	if len(pending) == 0 {
		return nil
	}
	criteria := state.Criteria
	paths := d.fullTextPaths(state, pending, d.Charter != nil)
	resolutions := make(map[string]types.Resolution, len(pending))
	for _, r := range pending {
		v, _ := state.Verdict(r.ID, types.StageFulltextScreening)
		resolutions[r.ID] = v.Resolution
	}

	work := func(ctx context.Context, rec types.Record) (types.Chart, error) {
		chart := types.Chart{
			RecordID:   rec.ID,
			Title:      rec.Title,
			Authors:    rec.Authors,
			Year:       rec.Year,
			Venue:      rec.Venue,
			ExternalID: rec.ExternalID,
			Keywords:   rec.Keywords,
			Resolution: resolutions[rec.ID],
		}
		if d.Charter != nil {
			findings, err := d.chart(ctx, rec, criteria, paths[rec.ID])
			if err != nil {
				return types.Chart{}, err
			}
			chart.Findings = findings
		}
		chart.ChartedAt = time.Now().UTC()
		return chart, nil
	}
	fold := func(c types.Chart) error {
		if err := state.AppendChart(c); err != nil {
			return err
		}
		d.printf("charted %s\n", c.RecordID)
		return d.checkpoint(ctx, state, audit.ChartEvent(state.RunID, c))
	}
	return runBatches(ctx, pending, d.Config.Screening.BatchSize, d.Config.Screening.BatchDelay, work, fold)
}

func (d *Driver) chart(ctx context.Context, rec types.Record, criteria types.Criteria, path string) (map[string]string, error) {
	var text string
	if path != "" && d.FullText != nil {
		t, err := d.FullText.ExtractFullText(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("full text of %s: %w", rec.ID, err)
		}
		text = t
	}
	resp, err := d.Charter.Chart(ctx, oracle.ChartingRequest{Record: rec, Criteria: criteria, FullText: text})
	if err != nil {
		return nil, &types.OracleCallError{Oracle: "charting", RecordID: rec.ID, Malformed: isMalformed(err), Err: err}
	}
	return resp.Findings, nil
}

func (d *Driver) synthesize(_ context.Context, state *types.RunState) error {
	syn := Synthesize(state, time.Now().UTC())
	state.SetSynthesis(syn)
	d.printf("synthesis: %d included studies\n", syn.Included)
	return nil
}
