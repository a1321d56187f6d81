// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// Decision is a reviewer's verdict on one record at one stage.
type Decision string

const (
	DecisionInclude Decision = "include"
	DecisionExclude Decision = "exclude"
	DecisionUnsure  Decision = "unsure"
)

// Valid reports whether d is one of include, exclude or unsure.
func (d Decision) Valid() bool {
	switch d {
	case DecisionInclude, DecisionExclude, DecisionUnsure:
		return true
	}
	return false
}

// Final reports whether d can close a Verdict (include or exclude).
func (d Decision) Final() bool {
	return d == DecisionInclude || d == DecisionExclude
}

// PanelSize is the number of independent reviewers per record per stage.
// It is a protocol constant, not a setting.
const PanelSize = 3

const (
	minReasons  = 2
	minEvidence = 1
)

// Vote is one reviewer's decision on one record at one screening stage.
type Vote struct {
	RecordID   string    `json:"record_id" yaml:"record_id"`
	Stage      Stage     `json:"stage" yaml:"stage"`
	ReviewerID string    `json:"reviewer_id" yaml:"reviewer_id"`
	Decision   Decision  `json:"decision" yaml:"decision"`
	Reasons    []string  `json:"reasons" yaml:"reasons"`
	Evidence   []string  `json:"evidence" yaml:"evidence"`
	CastAt     time.Time `json:"cast_at" yaml:"cast_at"`
}

// Validate checks the decision value and the minimum number of reasons
// and evidence citations.
func (v Vote) Validate() error {
	if v.RecordID == "" {
		return fmt.Errorf("vote has no record id")
	}
	if v.ReviewerID == "" {
		return fmt.Errorf("vote for %s has no reviewer id", v.RecordID)
	}
	if !v.Decision.Valid() {
		return fmt.Errorf("vote for %s by %s: invalid decision %q", v.RecordID, v.ReviewerID, v.Decision)
	}
	if n := countNonBlank(v.Reasons); n < minReasons {
		return fmt.Errorf("vote for %s by %s: %d reasons, need at least %d", v.RecordID, v.ReviewerID, n, minReasons)
	}
	if n := countNonBlank(v.Evidence); n < minEvidence {
		return fmt.Errorf("vote for %s by %s: %d evidence citations, need at least %d", v.RecordID, v.ReviewerID, n, minEvidence)
	}
	return nil
}

func countNonBlank(ss []string) int {
	n := 0
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			n++
		}
	}
	return n
}

// Resolution records how a Verdict was reached.
type Resolution string

const (
	ResolutionAutoMajority Resolution = "auto_majority"
	ResolutionAdjudicated  Resolution = "adjudicated"
)

// Verdict is the resolved outcome for one (record, stage). It is written
// once and never revised.
type Verdict struct {
	RecordID   string     `json:"record_id" yaml:"record_id"`
	Stage      Stage      `json:"stage" yaml:"stage"`
	Votes      []Vote     `json:"votes" yaml:"votes"`
	Resolution Resolution `json:"resolution" yaml:"resolution"`
	Decision   Decision   `json:"decision" yaml:"decision"`

	// Rationale is the adjudicator's explanation; empty for auto-majority.
	Rationale string    `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	DecidedAt time.Time `json:"decided_at" yaml:"decided_at"`
}

// Validate checks the panel size, that every vote belongs to this record
// and stage with a distinct reviewer, and that the decision is final.
func (v Verdict) Validate() error {
	if len(v.Votes) != PanelSize {
		return &VoteCountError{RecordID: v.RecordID, Stage: v.Stage, Got: len(v.Votes)}
	}
	if !v.Stage.IsScreening() {
		return &InvariantError{Msg: fmt.Sprintf("verdict for %s at non-screening stage %s", v.RecordID, v.Stage)}
	}
	reviewers := make(map[string]bool, PanelSize)
	for _, vote := range v.Votes {
		if vote.RecordID != v.RecordID || vote.Stage != v.Stage {
			return &InvariantError{Msg: fmt.Sprintf("vote %s/%s/%s attached to verdict %s/%s",
				vote.RecordID, vote.Stage, vote.ReviewerID, v.RecordID, v.Stage)}
		}
		if reviewers[vote.ReviewerID] {
			return &InvariantError{Msg: fmt.Sprintf("reviewer %s voted twice on %s at %s", vote.ReviewerID, v.RecordID, v.Stage)}
		}
		reviewers[vote.ReviewerID] = true
	}
	if !v.Decision.Final() {
		return &InvariantError{Msg: fmt.Sprintf("verdict for %s at %s has non-final decision %q", v.RecordID, v.Stage, v.Decision)}
	}
	switch v.Resolution {
	case ResolutionAutoMajority:
	case ResolutionAdjudicated:
		if strings.TrimSpace(v.Rationale) == "" {
			return &AdjudicationContractError{RecordID: v.RecordID, Reason: "adjudicated verdict without rationale"}
		}
	default:
		return &InvariantError{Msg: fmt.Sprintf("verdict for %s has unknown resolution %q", v.RecordID, v.Resolution)}
	}
	return nil
}
