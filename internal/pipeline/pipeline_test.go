// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/openreviewscope/internal/audit"
	"github.com/pdiddy/openreviewscope/internal/fulltext"
	"github.com/pdiddy/openreviewscope/internal/ingest"
	"github.com/pdiddy/openreviewscope/internal/oracle"
	"github.com/pdiddy/openreviewscope/internal/store"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

var (
	inc = types.DecisionInclude
	exc = types.DecisionExclude
	uns = types.DecisionUnsure
)

func criteria() types.Criteria {
	return types.Criteria{
		Population: "older adults",
		Concept:    "telehealth adoption",
		Context:    "primary care",
		Inclusion:  []string{"reports telehealth use by adults over 65"},
		Exclusion:  []string{"paediatric populations"},
	}
}

func record(title string, author string, year int, venue, extID string, keywords ...string) types.Record {
	r := types.NewRecord(title, []string{author}, year)
	r.Venue = venue
	r.ExternalID = extID
	r.Keywords = keywords
	return r
}

var (
	recTelehealth = record("Telehealth adoption among older adults", "Smith J", 2020, "J Telemed", "10.1/a", "telehealth", "Older adults")
	recBaking     = record("Sourdough baking chemistry", "Baker B", 2019, "Food Sci", "10.1/b")
	recRemote     = record("Remote consultations in rural clinics", "Kim Y", 2021, "Rural Health", "10.1/c", "telehealth")
	recDuplicate  = record("Telehealth Adoption Among Older Adults.", "Smith J", 2020, "J Telemed", "10.1/A")
)

func sourceRecords() ingest.StaticSource {
	return ingest.StaticSource{recTelehealth, recBaking, recRemote, recDuplicate}
}

// --- fakes ---

// decideFunc picks the decision of reviewer i for a request.
type decideFunc func(i int, req oracle.ScreeningRequest) (types.Decision, error)

// defaultDecide includes telehealth, excludes baking, splits the panel on
// remote consultations at abstract screening and follows the full text at
// fulltext screening.
func defaultDecide(i int, req oracle.ScreeningRequest) (types.Decision, error) {
	if req.Stage == types.StageFulltextScreening {
		if strings.Contains(req.FullText, "not eligible") {
			return exc, nil
		}
		return inc, nil
	}
	switch req.Record.ID {
	case recBaking.ID:
		return exc, nil
	case recRemote.ID:
		return []types.Decision{inc, exc, uns}[i], nil
	}
	return inc, nil
}

type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *callCounter) add(stage types.Stage, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[stage.String()+"/"+id]++
}

func (c *callCounter) get(stage types.Stage, id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[stage.String()+"/"+id]
}

func (c *callCounter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

type fakeScreener struct {
	index   int
	decide  decideFunc
	counter *callCounter
}

func (f *fakeScreener) Screen(_ context.Context, req oracle.ScreeningRequest) (oracle.ScreeningResponse, error) {
	f.counter.add(req.Stage, req.Record.ID)
	d, err := f.decide(f.index, req)
	if err != nil {
		return oracle.ScreeningResponse{}, err
	}
	return oracle.ScreeningResponse{
		Decision: d,
		Reasons:  []string{"population matches", "concept matches"},
		Evidence: []string{"quoted sentence"},
	}, nil
}

type fakeAdjudicator struct {
	mu       sync.Mutex
	resp     oracle.AdjudicationResponse
	requests []oracle.AdjudicationRequest
}

func (f *fakeAdjudicator) Adjudicate(_ context.Context, req oracle.AdjudicationRequest) (oracle.AdjudicationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.resp, nil
}

type fakeCharter struct{}

func (fakeCharter) Chart(_ context.Context, req oracle.ChartingRequest) (oracle.ChartingResponse, error) {
	return oracle.ChartingResponse{Findings: map[string]string{
		"study_design": "cohort",
		"has_text":     fmt.Sprint(req.FullText != ""),
	}}, nil
}

type memLog struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memLog) Append(_ context.Context, events ...audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *memLog) Close() error { return nil }

func (m *memLog) count(kind audit.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// --- harness ---

type harness struct {
	dir     string
	store   *store.FileStore
	log     *memLog
	counter *callCounter
	adj     *fakeAdjudicator
	out     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:     dir,
		store:   store.NewFileStore(filepath.Join(dir, "run", "state.json")),
		log:     &memLog{},
		counter: &callCounter{},
		adj: &fakeAdjudicator{resp: oracle.AdjudicationResponse{
			Decision:  inc,
			Rationale: "rural older adults meet the population criterion",
		}},
		out: &bytes.Buffer{},
	}
	require.NoError(t, os.MkdirAll(h.fullTextDir(), 0o755))
	h.writeFullText(t, recTelehealth.ID+".txt", "Eligible full text about telehealth in older adults.")
	h.writeFullText(t, "10.1_c.md", "This study is not eligible: participants are clinicians.")
	return h
}

func (h *harness) fullTextDir() string { return filepath.Join(h.dir, "fulltext") }

func (h *harness) writeFullText(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.fullTextDir(), name), []byte(content), 0o644))
}

func (h *harness) config() types.PipelineConfig {
	cfg := types.DefaultPipelineConfig()
	cfg.Screening.BatchSize = 2
	cfg.FullText.Dir = h.fullTextDir()
	cfg.Store.Dir = h.dir
	return cfg
}

func (h *harness) driver(t *testing.T, decide decideFunc) *Driver {
	t.Helper()
	reviewers := make([]oracle.Reviewer, types.PanelSize)
	for i := range reviewers {
		reviewers[i] = oracle.Reviewer{
			ID:     fmt.Sprintf("reviewer-%d", i+1),
			Oracle: &fakeScreener{index: i, decide: decide, counter: h.counter},
		}
	}
	panel, err := oracle.NewPanel(reviewers, 0)
	require.NoError(t, err)
	return &Driver{
		Config:      h.config(),
		Store:       h.store,
		Audit:       h.log,
		Source:      sourceRecords(),
		Panel:       panel,
		Adjudicator: h.adj,
		FullText:    &fulltext.Reader{},
		Charter:     fakeCharter{},
		Out:         h.out,
	}
}

// --- Advance ---

func TestAdvanceFullRun(t *testing.T) {
	h := newHarness(t)
	d := h.driver(t, defaultDecide)
	state := types.NewRunState("run-1", criteria())

	require.NoError(t, d.Advance(context.Background(), state))
	assert.Equal(t, types.StageComplete, state.Stage)

	assert.Equal(t, types.FunnelCounters{
		Identified:         4,
		Deduplicated:       3,
		Screened:           3,
		ExcludedAtScreen:   1,
		Retrieved:          2,
		ExcludedAtFulltext: 1,
		Included:           1,
	}, state.Funnel)
	require.Len(t, state.Duplicates, 1)
	assert.Equal(t, recTelehealth.ID, state.Duplicates[0].CanonicalID)

	v, ok := state.Verdict(recRemote.ID, types.StageAbstractScreening)
	require.True(t, ok)
	assert.Equal(t, types.ResolutionAdjudicated, v.Resolution)
	assert.Equal(t, inc, v.Decision)
	assert.NotEmpty(t, v.Rationale)

	v, ok = state.Verdict(recRemote.ID, types.StageFulltextScreening)
	require.True(t, ok)
	assert.Equal(t, exc, v.Decision)

	require.Len(t, state.Charts, 1)
	chart := state.Charts[0]
	assert.Equal(t, recTelehealth.ID, chart.RecordID)
	assert.Equal(t, "J Telemed", chart.Venue)
	assert.Equal(t, types.ResolutionAutoMajority, chart.Resolution)
	assert.Equal(t, "cohort", chart.Findings["study_design"])
	assert.Equal(t, "true", chart.Findings["has_text"])

	require.NotNil(t, state.Synthesis)
	assert.Equal(t, 1, state.Synthesis.Included)
	assert.Equal(t, map[int]int{2020: 1}, state.Synthesis.ByYear)
	assert.Equal(t, 1, state.Synthesis.Stages["abstract_screening"].Adjudicated)

	loaded, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StageComplete, loaded.Stage)
	assert.Equal(t, state.Funnel, loaded.Funnel)

	assert.Equal(t, 7, h.log.count(audit.KindStage))
	assert.Equal(t, 5, h.log.count(audit.KindVerdict))
	assert.Equal(t, 15, h.log.count(audit.KindVote))
	assert.Equal(t, 1, h.log.count(audit.KindChart))
	assert.Contains(t, h.out.String(), "synthesis complete")
}

func TestAdvanceResumeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.driver(t, defaultDecide).Advance(context.Background(), types.NewRunState("run-1", criteria())))
	calls := h.counter.total()
	events := len(h.log.events)

	loaded, err := h.store.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.driver(t, defaultDecide).Advance(context.Background(), loaded))

	assert.Equal(t, calls, h.counter.total(), "a completed run makes no further oracle calls")
	assert.Equal(t, events, len(h.log.events))
	assert.Len(t, loaded.Votes, 15)
}

func TestAdvanceStoresAdjudicatorDecision(t *testing.T) {
	h := newHarness(t)
	h.adj.resp = oracle.AdjudicationResponse{Decision: exc, Rationale: "clinic staff, not older adults"}
	state := types.NewRunState("run-1", criteria())

	require.NoError(t, h.driver(t, defaultDecide).Advance(context.Background(), state))

	require.Len(t, h.adj.requests, 1)
	assert.Len(t, h.adj.requests[0].Votes, 3)
	assert.Equal(t, recRemote.ID, h.adj.requests[0].Record.ID)

	v, ok := state.Verdict(recRemote.ID, types.StageAbstractScreening)
	require.True(t, ok)
	assert.Equal(t, exc, v.Decision, "the adjudicator's exclude is stored although one reviewer voted include")
	assert.Equal(t, types.ResolutionAdjudicated, v.Resolution)

	for _, r := range state.Members(types.StageFulltextGate) {
		assert.NotEqual(t, recRemote.ID, r.ID)
	}
	assert.Equal(t, 2, state.Funnel.ExcludedAtScreen)
}

func TestAdvanceResumesAfterOracleFailure(t *testing.T) {
	h := newHarness(t)
	var broken atomic.Bool
	broken.Store(true)
	decide := func(i int, req oracle.ScreeningRequest) (types.Decision, error) {
		if broken.Load() && req.Record.ID == recBaking.ID {
			return "", errors.New("connection reset by peer")
		}
		return defaultDecide(i, req)
	}

	d := h.driver(t, decide)
	d.Config.Screening.BatchSize = 1
	state := types.NewRunState("run-1", criteria())

	err := d.Advance(context.Background(), state)
	var oce *types.OracleCallError
	require.ErrorAs(t, err, &oce)
	assert.Equal(t, recBaking.ID, oce.RecordID)

	loaded, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StageIngested, loaded.Stage)
	require.Len(t, loaded.Verdicts, 1)
	assert.Equal(t, recTelehealth.ID, loaded.Verdicts[0].RecordID)

	broken.Store(false)
	d = h.driver(t, decide)
	require.NoError(t, d.Advance(context.Background(), loaded))

	assert.Equal(t, types.StageComplete, loaded.Stage)
	assert.Equal(t, 3, h.counter.get(types.StageAbstractScreening, recTelehealth.ID), "recorded verdicts are not screened again")
	assert.Len(t, loaded.VerdictsAt(types.StageAbstractScreening), 3)
}

func TestAdvancePausesAtGate(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(filepath.Join(h.fullTextDir(), "10.1_c.md")))
	state := types.NewRunState("run-1", criteria())

	err := h.driver(t, defaultDecide).Advance(context.Background(), state)
	require.ErrorIs(t, err, ErrAwaitingFullText)
	assert.Equal(t, types.StageAbstractScreening, state.Stage)
	assert.Equal(t, []string{recRemote.ID}, state.NotRetrieved)
	assert.Equal(t, 1, state.Funnel.Retrieved)
	assert.Contains(t, h.out.String(), "10.1_c")

	loaded, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StageAbstractScreening, loaded.Stage)
	assert.True(t, loaded.IsRetrieved(recTelehealth.ID))

	h.writeFullText(t, recRemote.ID+".txt", "This study is not eligible.")
	require.NoError(t, h.driver(t, defaultDecide).Advance(context.Background(), loaded))
	assert.Equal(t, types.StageComplete, loaded.Stage)
	assert.Empty(t, loaded.NotRetrieved)
	assert.Equal(t, 2, loaded.Funnel.Retrieved)
}

func TestAdvanceAllowMissingFullText(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(filepath.Join(h.fullTextDir(), "10.1_c.md")))
	d := h.driver(t, defaultDecide)
	d.Config.FullText.AllowMissing = true
	state := types.NewRunState("run-1", criteria())

	require.NoError(t, d.Advance(context.Background(), state))
	assert.Equal(t, types.StageComplete, state.Stage)
	assert.Equal(t, 1, state.Funnel.Retrieved)
	assert.Equal(t, []string{recRemote.ID}, state.NotRetrieved)
	_, ok := state.Verdict(recRemote.ID, types.StageFulltextScreening)
	assert.False(t, ok)
}

func TestAdvanceValidatesBeforeAnyStage(t *testing.T) {
	h := newHarness(t)
	d := h.driver(t, defaultDecide)

	bad := criteria()
	bad.Population = " "
	err := d.Advance(context.Background(), types.NewRunState("run-1", bad))
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "criteria.population", ve.Field)

	d.Config.Screening.BatchSize = 0
	err = d.Advance(context.Background(), types.NewRunState("run-1", criteria()))
	require.ErrorAs(t, err, &ve)

	_, err = h.store.Load(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, h.counter.total())
}

func TestAdvanceCancelledContextKeepsCheckpoint(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	decide := func(i int, req oracle.ScreeningRequest) (types.Decision, error) {
		if req.Record.ID == recRemote.ID {
			cancel()
			return "", ctx.Err()
		}
		return defaultDecide(i, req)
	}
	d := h.driver(t, decide)
	d.Config.Screening.BatchSize = 1

	err := d.Advance(ctx, types.NewRunState("run-1", criteria()))
	require.ErrorIs(t, err, context.Canceled)

	loaded, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded.Verdicts, 2)
}

// verdictCapStore records the verdict count of every saved state and
// refuses, like a dead disk, any state holding more than max verdicts.
type verdictCapStore struct {
	store.Store
	max    int
	counts []int
}

func (s *verdictCapStore) Save(ctx context.Context, state *types.RunState) error {
	if s.max >= 0 && len(state.Verdicts) > s.max {
		return errors.New("disk unavailable")
	}
	s.counts = append(s.counts, len(state.Verdicts))
	return s.Store.Save(ctx, state)
}

func TestAdvanceSavesAfterEveryVerdict(t *testing.T) {
	h := newHarness(t)
	capped := &verdictCapStore{Store: h.store, max: -1}
	d := h.driver(t, defaultDecide)
	d.Store = capped
	d.Config.Screening.BatchSize = 1

	require.NoError(t, d.Advance(context.Background(), types.NewRunState("run-1", criteria())))

	// Three abstract verdicts and two fulltext verdicts, each saved as it
	// is recorded.
	for k := 1; k <= 5; k++ {
		assert.Contains(t, capped.counts, k, "no checkpoint holding %d verdicts", k)
	}
}

func TestAdvanceCrashLosesOnlyInFlightVerdict(t *testing.T) {
	for _, k := range []int{0, 1, 2} {
		t.Run(fmt.Sprintf("after %d verdicts", k), func(t *testing.T) {
			h := newHarness(t)
			d := h.driver(t, defaultDecide)
			d.Store = &verdictCapStore{Store: h.store, max: k}

			err := d.Advance(context.Background(), types.NewRunState("run-1", criteria()))
			require.Error(t, err)

			loaded, err := h.store.Load(context.Background())
			require.NoError(t, err)
			assert.Len(t, loaded.Verdicts, k)
			assert.Len(t, loaded.Votes, k*types.PanelSize)
			assert.Equal(t, k, loaded.Funnel.Screened)
		})
	}
}

func TestHandlerCoversEveryStage(t *testing.T) {
	d := &Driver{}
	for _, s := range types.Stages() {
		if s == types.StageInit {
			assert.Nil(t, d.handler(s))
			continue
		}
		assert.NotNil(t, d.handler(s), "stage %s", s)
	}
}

// --- runBatches ---

func numbered(n int) []types.Record {
	out := make([]types.Record, n)
	for i := range out {
		out[i] = types.NewRecord(fmt.Sprintf("record %d", i), nil, 2000+i)
	}
	return out
}

func TestRunBatchesFoldsEveryResult(t *testing.T) {
	var folded []string
	var active, peak atomic.Int32
	work := func(_ context.Context, r types.Record) (string, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return r.ID, nil
	}
	fold := func(id string) error {
		folded = append(folded, id)
		return nil
	}

	require.NoError(t, runBatches(context.Background(), numbered(5), 2, time.Millisecond, work, fold))
	assert.Len(t, folded, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunBatchesFoldErrorCancelsWorkers(t *testing.T) {
	records := numbered(4)
	foldErr := errors.New("disk full")
	var exited atomic.Int32
	work := func(ctx context.Context, r types.Record) (string, error) {
		defer exited.Add(1)
		if r.ID == records[0].ID {
			return r.ID, nil
		}
		<-ctx.Done()
		return "", ctx.Err()
	}

	err := runBatches(context.Background(), records, 4, 0, work, func(string) error { return foldErr })
	assert.ErrorIs(t, err, foldErr)
	assert.Equal(t, int32(4), exited.Load())
}

func TestRunBatchesWorkError(t *testing.T) {
	boom := errors.New("boom")
	var folded int
	work := func(_ context.Context, r types.Record) (int, error) {
		if r.Year == 2001 {
			return 0, boom
		}
		return r.Year, nil
	}
	err := runBatches(context.Background(), numbered(4), 1, 0, work, func(int) error {
		folded++
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, folded)
}

// --- synthesis ---

func TestSummarize(t *testing.T) {
	vote := func(d types.Decision) types.Vote { return types.Vote{Decision: d} }
	verdicts := []types.Verdict{
		{Decision: inc, Resolution: types.ResolutionAutoMajority, Votes: []types.Vote{vote(inc), vote(inc), vote(inc)}},
		{Decision: exc, Resolution: types.ResolutionAutoMajority, Votes: []types.Vote{vote(exc), vote(exc), vote(inc)}},
		{Decision: exc, Resolution: types.ResolutionAdjudicated, Votes: []types.Vote{vote(inc), vote(exc), vote(uns)}},
		{Decision: exc, Resolution: types.ResolutionAutoMajority, Votes: []types.Vote{vote(exc), vote(exc), vote(exc)}},
	}
	s := Summarize(verdicts)
	assert.Equal(t, types.StageSummary{
		Verdicts:     4,
		Included:     1,
		Excluded:     3,
		AutoMajority: 3,
		Adjudicated:  1,
		Unanimous:    2,
		Agreement:    0.5,
	}, s)
	assert.Equal(t, types.StageSummary{}, Summarize(nil))
}

func TestSynthesizeKeywords(t *testing.T) {
	state := types.NewRunState("run-1", criteria())
	state.Charts = []types.Chart{
		{RecordID: "a", Year: 2020, Venue: "J", Keywords: []string{"Telehealth", "telehealth", "Older adults"}},
		{RecordID: "b", Year: 2020, Venue: "J", Keywords: []string{"telehealth"}},
		{RecordID: "c", Venue: " ", Keywords: []string{" "}},
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	syn := Synthesize(state, at)
	assert.Equal(t, 3, syn.Included)
	assert.Equal(t, map[int]int{2020: 2}, syn.ByYear)
	assert.Equal(t, map[string]int{"J": 2}, syn.ByVenue)
	assert.Equal(t, []types.KeywordCount{
		{Keyword: "Telehealth", Count: 2},
		{Keyword: "Older adults", Count: 1},
	}, syn.TopKeywords)
	assert.Equal(t, at, syn.GeneratedAt)
	assert.Contains(t, syn.Stages, "fulltext_screening")
}
