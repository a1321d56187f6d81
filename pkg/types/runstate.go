// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunState is the aggregate root of one screening run. Only the pipeline
// driver mutates it; every other component reads it or returns values that
// the driver folds in through the methods below. Votes, verdicts and charts
// are append-only.
type RunState struct {
	RunID string `json:"run_id" yaml:"run_id"`

	// Stage is the last stage that finished.
	Stage Stage `json:"stage" yaml:"stage"`

	Criteria   Criteria         `json:"criteria" yaml:"criteria"`
	Records    []Record         `json:"records" yaml:"records"`
	Duplicates []DuplicateGroup `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`

	// Retrieved maps record ID to the located full-text file for records
	// that passed abstract screening. NotRetrieved lists the ones with no
	// file at the time of the fulltext gate.
	Retrieved    map[string]string `json:"retrieved,omitempty" yaml:"retrieved,omitempty"`
	NotRetrieved []string          `json:"not_retrieved,omitempty" yaml:"not_retrieved,omitempty"`

	Votes     []Vote     `json:"votes" yaml:"votes"`
	Verdicts  []Verdict  `json:"verdicts" yaml:"verdicts"`
	Charts    []Chart    `json:"charts,omitempty" yaml:"charts,omitempty"`
	Synthesis *Synthesis `json:"synthesis,omitempty" yaml:"synthesis,omitempty"`

	Funnel FunnelCounters `json:"funnel" yaml:"funnel"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	idx *stateIndex
}

type verdictKey struct {
	recordID string
	stage    Stage
}

type voteKey struct {
	recordID   string
	stage      Stage
	reviewerID string
}

// stateIndex is rebuilt lazily after a state is loaded from storage.
type stateIndex struct {
	records  map[string]int
	verdicts map[verdictKey]int
	votes    map[voteKey]bool
	charts   map[string]int
}

// NewRunState creates the state for a new run. An empty runID gets a
// random UUID.
func NewRunState(runID string, criteria Criteria) *RunState {
	if runID == "" {
		runID = uuid.NewString()
	}
	now := time.Now().UTC()
	return &RunState{
		RunID:     runID,
		Stage:     StageInit,
		Criteria:  criteria,
		Retrieved: map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *RunState) index() *stateIndex {
	if s.idx != nil {
		return s.idx
	}
	idx := &stateIndex{
		records:  make(map[string]int, len(s.Records)),
		verdicts: make(map[verdictKey]int, len(s.Verdicts)),
		votes:    make(map[voteKey]bool, len(s.Votes)),
		charts:   make(map[string]int, len(s.Charts)),
	}
	for i, r := range s.Records {
		idx.records[r.ID] = i
	}
	for i, v := range s.Verdicts {
		idx.verdicts[verdictKey{v.RecordID, v.Stage}] = i
	}
	for _, v := range s.Votes {
		idx.votes[voteKey{v.RecordID, v.Stage, v.ReviewerID}] = true
	}
	for i, c := range s.Charts {
		idx.charts[c.RecordID] = i
	}
	s.idx = idx
	return idx
}

func (s *RunState) touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Record looks up a record by ID.
func (s *RunState) Record(id string) (Record, bool) {
	i, ok := s.index().records[id]
	if !ok {
		return Record{}, false
	}
	return s.Records[i], true
}

// SetIngested stores the deduplicated record set. It may only be called
// once per run.
func (s *RunState) SetIngested(identified int, unique []Record, groups []DuplicateGroup) error {
	if len(s.Records) > 0 {
		return &InvariantError{Msg: "record set already ingested"}
	}
	if identified < len(unique) {
		return &InvariantError{Msg: fmt.Sprintf("identified (%d) below unique record count (%d)", identified, len(unique))}
	}
	seen := make(map[string]bool, len(unique))
	for _, r := range unique {
		if !r.HasValidID() {
			return &InvariantError{Msg: fmt.Sprintf("record %q has an identifier that does not match its content", r.ID)}
		}
		if seen[r.ID] {
			return &InvariantError{Msg: fmt.Sprintf("record %s appears twice in the unique set", r.ID)}
		}
		seen[r.ID] = true
	}

	s.Records = unique
	s.Duplicates = groups
	s.Funnel.Identified = identified
	s.idx = nil
	s.touch()
	return s.RecomputeFunnel()
}

// HasVerdict reports whether a verdict exists for the record at stage.
func (s *RunState) HasVerdict(recordID string, stage Stage) bool {
	_, ok := s.index().verdicts[verdictKey{recordID, stage}]
	return ok
}

// Verdict returns the verdict for the record at stage.
func (s *RunState) Verdict(recordID string, stage Stage) (Verdict, bool) {
	i, ok := s.index().verdicts[verdictKey{recordID, stage}]
	if !ok {
		return Verdict{}, false
	}
	return s.Verdicts[i], true
}

// VerdictsAt returns all verdicts recorded for stage in write order.
func (s *RunState) VerdictsAt(stage Stage) []Verdict {
	var out []Verdict
	for _, v := range s.Verdicts {
		if v.Stage == stage {
			out = append(out, v)
		}
	}
	return out
}

// AppendVerdict validates v and appends it together with its three votes.
// An existing verdict for the same (record, stage), or an existing vote
// for the same (record, stage, reviewer), is never overwritten.
func (s *RunState) AppendVerdict(v Verdict) error {
	if err := v.Validate(); err != nil {
		return err
	}
	idx := s.index()
	if _, ok := idx.records[v.RecordID]; !ok {
		return &InvariantError{Msg: fmt.Sprintf("verdict for unknown record %s", v.RecordID)}
	}
	if _, ok := idx.verdicts[verdictKey{v.RecordID, v.Stage}]; ok {
		return &InvariantError{Msg: fmt.Sprintf("verdict for %s at %s already recorded", v.RecordID, v.Stage)}
	}
	for _, vote := range v.Votes {
		if idx.votes[voteKey{vote.RecordID, vote.Stage, vote.ReviewerID}] {
			return &InvariantError{Msg: fmt.Sprintf("vote by %s on %s at %s already recorded", vote.ReviewerID, vote.RecordID, vote.Stage)}
		}
	}

	candidate := s.deriveFunnel(append(s.Verdicts[:len(s.Verdicts):len(s.Verdicts)], v), len(s.Retrieved))
	if err := s.acceptFunnel(candidate); err != nil {
		return err
	}

	for _, vote := range v.Votes {
		s.Votes = append(s.Votes, vote)
		idx.votes[voteKey{vote.RecordID, vote.Stage, vote.ReviewerID}] = true
	}
	idx.verdicts[verdictKey{v.RecordID, v.Stage}] = len(s.Verdicts)
	s.Verdicts = append(s.Verdicts, v)
	s.Funnel = candidate
	s.touch()
	return nil
}

// MarkRetrieved records the located full-text file for a record. Entries
// are never removed, so the retrieved counter only grows.
func (s *RunState) MarkRetrieved(recordID, path string) error {
	if _, ok := s.Record(recordID); !ok {
		return &InvariantError{Msg: fmt.Sprintf("retrieval for unknown record %s", recordID)}
	}
	if v, ok := s.Verdict(recordID, StageAbstractScreening); !ok || v.Decision != DecisionInclude {
		return &InvariantError{Msg: fmt.Sprintf("record %s was not included at abstract screening", recordID)}
	}
	if s.Retrieved == nil {
		s.Retrieved = map[string]string{}
	}
	if _, ok := s.Retrieved[recordID]; ok {
		return nil
	}
	candidate := s.deriveFunnel(s.Verdicts, len(s.Retrieved)+1)
	if err := s.acceptFunnel(candidate); err != nil {
		return err
	}
	s.Retrieved[recordID] = path
	s.Funnel = candidate

	kept := s.NotRetrieved[:0]
	for _, id := range s.NotRetrieved {
		if id != recordID {
			kept = append(kept, id)
		}
	}
	s.NotRetrieved = kept
	s.touch()
	return nil
}

// MarkNotRetrieved records that no full text was found for a record.
func (s *RunState) MarkNotRetrieved(recordID string) {
	if _, ok := s.Retrieved[recordID]; ok {
		return
	}
	for _, id := range s.NotRetrieved {
		if id == recordID {
			return
		}
	}
	s.NotRetrieved = append(s.NotRetrieved, recordID)
	s.touch()
}

// IsRetrieved reports whether a full-text file was located for the record.
func (s *RunState) IsRetrieved(recordID string) bool {
	_, ok := s.Retrieved[recordID]
	return ok
}

// IncludedAt returns the records whose verdict at stage is include.
func (s *RunState) IncludedAt(stage Stage) []Record {
	var out []Record
	for _, r := range s.Records {
		if v, ok := s.Verdict(r.ID, stage); ok && v.Decision == DecisionInclude {
			out = append(out, r)
		}
	}
	return out
}

// Members returns the records that take part in stage, in record order.
func (s *RunState) Members(stage Stage) []Record {
	switch stage {
	case StageAbstractScreening:
		return s.Records
	case StageFulltextGate:
		return s.IncludedAt(StageAbstractScreening)
	case StageFulltextScreening:
		var out []Record
		for _, r := range s.IncludedAt(StageAbstractScreening) {
			if s.IsRetrieved(r.ID) {
				out = append(out, r)
			}
		}
		return out
	case StageExtraction:
		return s.IncludedAt(StageFulltextScreening)
	}
	return nil
}

// Pending returns the members of stage that still lack their result: a
// verdict for screening stages, a chart for extraction. It is the set
// difference that makes resume skip work already recorded.
func (s *RunState) Pending(stage Stage) []Record {
	var out []Record
	for _, r := range s.Members(stage) {
		switch {
		case stage.IsScreening():
			if !s.HasVerdict(r.ID, stage) {
				out = append(out, r)
			}
		case stage == StageExtraction:
			if !s.HasChart(r.ID) {
				out = append(out, r)
			}
		}
	}
	return out
}

// HasChart reports whether a data chart exists for the record.
func (s *RunState) HasChart(recordID string) bool {
	_, ok := s.index().charts[recordID]
	return ok
}

// AppendChart appends the data chart for an included record.
func (s *RunState) AppendChart(c Chart) error {
	idx := s.index()
	if _, ok := idx.charts[c.RecordID]; ok {
		return &InvariantError{Msg: fmt.Sprintf("chart for %s already recorded", c.RecordID)}
	}
	if v, ok := s.Verdict(c.RecordID, StageFulltextScreening); !ok || v.Decision != DecisionInclude {
		return &InvariantError{Msg: fmt.Sprintf("chart for %s which was not included at fulltext screening", c.RecordID)}
	}
	idx.charts[c.RecordID] = len(s.Charts)
	s.Charts = append(s.Charts, c)
	s.touch()
	return nil
}

// SetSynthesis stores the synthesis summary.
func (s *RunState) SetSynthesis(syn *Synthesis) {
	s.Synthesis = syn
	s.touch()
}

// Complete marks stage as finished. Stages finish strictly in order.
func (s *RunState) Complete(stage Stage) error {
	next, ok := s.Stage.Next()
	if !ok || next != stage {
		return &InvariantError{Msg: fmt.Sprintf("cannot complete %s after %s", stage, s.Stage)}
	}
	s.Stage = stage
	s.touch()
	return nil
}

// RecomputeFunnel derives the counters from the recorded verdicts and
// retrievals, then checks ordering and monotonicity against the previous
// values. On error the previous counters are kept.
func (s *RunState) RecomputeFunnel() error {
	next := s.deriveFunnel(s.Verdicts, len(s.Retrieved))
	if err := s.acceptFunnel(next); err != nil {
		return err
	}
	s.Funnel = next
	return nil
}

func (s *RunState) deriveFunnel(verdicts []Verdict, retrieved int) FunnelCounters {
	next := FunnelCounters{
		Identified:   s.Funnel.Identified,
		Deduplicated: len(s.Records),
		Retrieved:    retrieved,
	}
	for _, v := range verdicts {
		switch v.Stage {
		case StageAbstractScreening:
			next.Screened++
			if v.Decision == DecisionExclude {
				next.ExcludedAtScreen++
			}
		case StageFulltextScreening:
			if v.Decision == DecisionExclude {
				next.ExcludedAtFulltext++
			} else {
				next.Included++
			}
		}
	}
	return next
}

// acceptFunnel checks candidate counters before any field of s changes.
func (s *RunState) acceptFunnel(next FunnelCounters) error {
	if err := next.Check(); err != nil {
		return err
	}
	return next.CheckMonotonic(s.Funnel)
}

// Validate checks a loaded state: known stage, derived record IDs,
// well-formed verdicts and a consistent funnel.
func (s *RunState) Validate() error {
	if !s.Stage.Valid() {
		return &InvariantError{Msg: fmt.Sprintf("unknown stage %d", int(s.Stage))}
	}
	seen := make(map[string]bool, len(s.Records))
	for _, r := range s.Records {
		if !r.HasValidID() {
			return &InvariantError{Msg: fmt.Sprintf("record %q has an identifier that does not match its content", r.ID)}
		}
		if seen[r.ID] {
			return &InvariantError{Msg: fmt.Sprintf("record %s appears twice", r.ID)}
		}
		seen[r.ID] = true
	}
	verdicts := make(map[verdictKey]bool, len(s.Verdicts))
	for _, v := range s.Verdicts {
		if err := v.Validate(); err != nil {
			return err
		}
		k := verdictKey{v.RecordID, v.Stage}
		if verdicts[k] {
			return &InvariantError{Msg: fmt.Sprintf("two verdicts for %s at %s", v.RecordID, v.Stage)}
		}
		verdicts[k] = true
	}
	if len(s.Votes) != len(s.Verdicts)*PanelSize {
		return &InvariantError{Msg: fmt.Sprintf("%d votes for %d verdicts", len(s.Votes), len(s.Verdicts))}
	}
	if err := s.Funnel.Check(); err != nil {
		return err
	}
	if derived := s.deriveFunnel(s.Verdicts, len(s.Retrieved)); derived != s.Funnel {
		return &InvariantError{Msg: fmt.Sprintf("funnel %+v does not match recorded verdicts and retrievals %+v", s.Funnel, derived)}
	}
	return nil
}
