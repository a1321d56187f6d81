// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/openreviewscope/internal/ingest"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

// --- test helpers ---

func votes(id string, stage types.Stage, d ...types.Decision) []types.Vote {
	out := make([]types.Vote, len(d))
	for i, dec := range d {
		out[i] = types.Vote{
			RecordID:   id,
			Stage:      stage,
			ReviewerID: []string{"r1", "r2", "r3"}[i],
			Decision:   dec,
			Reasons:    []string{"one", "two"},
			Evidence:   []string{"quote"},
		}
	}
	return out
}

func verdict(id string, stage types.Stage, d types.Decision) types.Verdict {
	return types.Verdict{
		RecordID:   id,
		Stage:      stage,
		Votes:      votes(id, stage, d, d, d),
		Resolution: types.ResolutionAutoMajority,
		Decision:   d,
		DecidedAt:  time.Now().UTC(),
	}
}

func testState(t *testing.T) *types.RunState {
	t.Helper()
	state := types.NewRunState("run-x", types.Criteria{
		Population: "adults", Concept: "telehealth", Context: "primary care",
		Inclusion: []string{"telehealth use"},
	})

	a := types.NewRecord("Telehealth in primary care", []string{"Smith, John"}, 2020)
	a.ExternalID = "10.1/a"
	a.Venue = "J Telemed"
	b := types.NewRecord("Sourdough chemistry", []string{"Baker B"}, 2019)
	dup := types.NewRecord("Telehealth in Primary Care", []string{"Smith, John"}, 2020)

	require.NoError(t, state.SetIngested(3, []types.Record{a, b}, []types.DuplicateGroup{{
		CanonicalID: a.ID,
		Duplicates:  []types.Duplicate{{Record: dup, Reason: types.MatchTitle}},
	}}))
	require.NoError(t, state.AppendVerdict(verdict(b.ID, types.StageAbstractScreening, types.DecisionExclude)))
	require.NoError(t, state.AppendVerdict(verdict(a.ID, types.StageAbstractScreening, types.DecisionInclude)))
	require.NoError(t, state.MarkRetrieved(a.ID, "fulltext/a.txt"))
	require.NoError(t, state.AppendVerdict(verdict(a.ID, types.StageFulltextScreening, types.DecisionInclude)))
	require.NoError(t, state.AppendChart(types.Chart{RecordID: a.ID, Title: a.Title, Year: 2020}))
	return state
}

// --- tests ---

func TestFunnel(t *testing.T) {
	snap := Funnel(testState(t))
	assert.Equal(t, "run-x", snap.RunID)
	assert.Equal(t, 1, snap.Duplicates)
	assert.Equal(t, types.FunnelCounters{
		Identified: 3, Deduplicated: 2, Screened: 2, ExcludedAtScreen: 1, Retrieved: 1, Included: 1,
	}, snap.Funnel)
}

func TestVerdictsOrderedByStageThenRecord(t *testing.T) {
	state := testState(t)
	rows := Verdicts(state)
	require.Len(t, rows, 3)

	assert.Equal(t, state.Records[0].ID, rows[0].RecordID, "records appear in ingest order within a stage")
	assert.Equal(t, types.StageAbstractScreening, rows[1].Stage)
	assert.Equal(t, types.StageFulltextScreening, rows[2].Stage)
	assert.Equal(t, "Telehealth in primary care", rows[0].Title)
	require.Len(t, rows[0].Votes, 3)
	assert.Equal(t, "r1", rows[0].Votes[0].ReviewerID)
}

func TestIncluded(t *testing.T) {
	items := Included(testState(t))
	require.Len(t, items, 1)
	assert.Equal(t, "10.1/a", items[0].DOI)
	assert.Equal(t, "Smith", items[0].Author[0].Family)
	assert.Equal(t, "J Telemed", items[0].ContainerTitle)
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "export")
	state := testState(t)

	written, err := Write(dir, state)
	require.NoError(t, err)
	assert.Len(t, written, 5, "no synthesis yet")

	data, err := os.ReadFile(filepath.Join(dir, FunnelFile))
	require.NoError(t, err)
	var snap FunnelSnapshot
	require.NoError(t, yaml.Unmarshal(data, &snap))
	assert.Equal(t, state.Funnel, snap.Funnel)

	data, err = os.ReadFile(filepath.Join(dir, VerdictsJSON))
	require.NoError(t, err)
	var rows []VerdictRow
	require.NoError(t, json.Unmarshal(data, &rows))
	assert.Len(t, rows, 3)

	recs, err := ingest.ParseFile(filepath.Join(dir, IncludedFile))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, state.Records[0].ID, recs[0].ID, "exported CSL parses back to the same record")

	state.SetSynthesis(&types.Synthesis{Included: 1})
	written, err = Write(dir, state)
	require.NoError(t, err)
	assert.Len(t, written, 6)
}

func TestWriteEmptyRun(t *testing.T) {
	dir := t.TempDir()
	written, err := Write(dir, types.NewRunState("empty", types.Criteria{}))
	require.NoError(t, err)
	assert.Len(t, written, 3)
	assert.NoFileExists(t, filepath.Join(dir, IncludedFile))
}

func TestFormatFunnel(t *testing.T) {
	out := FormatFunnel(types.FunnelCounters{Identified: 10, Included: 2})
	assert.Contains(t, out, "identified             10")
	assert.Contains(t, out, "included               2")
}
