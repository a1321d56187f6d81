// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package consensus resolves a three-reviewer panel into a verdict and
// hands escalated records to the adjudication oracle.
//
// Resolve applies, in order: any unsure vote escalates; two or more
// include votes decide include; two or more exclude votes decide exclude;
// anything else escalates. The adjudicator's answer is written into the
// verdict as returned.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/openreviewscope/internal/oracle"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

// Status is the outcome kind of Resolve.
type Status string

const (
	StatusDecided  Status = "decided"
	StatusEscalate Status = "escalate"
)

// Outcome is the result of Resolve. Decision is set only when Status is
// StatusDecided.
type Outcome struct {
	Status   Status         `json:"status"`
	Decision types.Decision `json:"decision,omitempty"`
	Reason   string         `json:"reason"`
}

// Resolve computes the preliminary verdict for one record from exactly
// types.PanelSize votes. It is pure and deterministic. Any other vote
// count returns a *types.VoteCountError.
func Resolve(record types.Record, votes []types.Vote) (Outcome, error) {
	if len(votes) != types.PanelSize {
		stage := types.StageInit
		if len(votes) > 0 {
			stage = votes[0].Stage
		}
		return Outcome{}, &types.VoteCountError{RecordID: record.ID, Stage: stage, Got: len(votes)}
	}

	var include, exclude, unsure int
	for _, v := range votes {
		if v.RecordID != record.ID {
			return Outcome{}, &types.InvariantError{Msg: fmt.Sprintf("vote by %s is for %s, not %s", v.ReviewerID, v.RecordID, record.ID)}
		}
		if v.Stage != votes[0].Stage {
			return Outcome{}, &types.InvariantError{Msg: fmt.Sprintf("votes for %s span stages %s and %s", record.ID, votes[0].Stage, v.Stage)}
		}
		switch v.Decision {
		case types.DecisionInclude:
			include++
		case types.DecisionExclude:
			exclude++
		case types.DecisionUnsure:
			unsure++
		default:
			return Outcome{}, &types.InvariantError{Msg: fmt.Sprintf("vote by %s on %s has invalid decision %q", v.ReviewerID, record.ID, v.Decision)}
		}
	}

	switch {
	case unsure > 0:
		return Outcome{
			Status: StatusEscalate,
			Reason: fmt.Sprintf("%d reviewer(s) unsure", unsure),
		}, nil
	case include >= 2:
		return Outcome{
			Status:   StatusDecided,
			Decision: types.DecisionInclude,
			Reason:   fmt.Sprintf("majority include (%d-%d)", include, exclude),
		}, nil
	case exclude >= 2:
		return Outcome{
			Status:   StatusDecided,
			Decision: types.DecisionExclude,
			Reason:   fmt.Sprintf("majority exclude (%d-%d)", exclude, include),
		}, nil
	default:
		return Outcome{
			Status: StatusEscalate,
			Reason: fmt.Sprintf("no majority (%d include, %d exclude)", include, exclude),
		}, nil
	}
}

// Settle resolves the panel in req and, on escalation, calls the
// adjudicator. The returned verdict is ready to append to the run state.
func Settle(ctx context.Context, adj oracle.AdjudicationOracle, req oracle.AdjudicationRequest) (types.Verdict, error) {
	outcome, err := Resolve(req.Record, req.Votes)
	if err != nil {
		return types.Verdict{}, err
	}

	verdict := types.Verdict{
		RecordID: req.Record.ID,
		Stage:    req.Stage,
		Votes:    append([]types.Vote(nil), req.Votes...),
	}

	if outcome.Status == StatusDecided {
		verdict.Resolution = types.ResolutionAutoMajority
		verdict.Decision = outcome.Decision
		verdict.DecidedAt = time.Now().UTC()
		return verdict, nil
	}

	if adj == nil {
		return types.Verdict{}, &types.AdjudicationContractError{RecordID: req.Record.ID, Reason: "escalation with no adjudicator configured"}
	}

	resp, err := adj.Adjudicate(ctx, req)
	if err != nil {
		var oce *types.OracleCallError
		if errors.As(err, &oce) {
			return types.Verdict{}, err
		}
		return types.Verdict{}, &types.OracleCallError{
			Oracle:    "adjudicator",
			RecordID:  req.Record.ID,
			Malformed: errors.Is(err, oracle.ErrMalformedResponse),
			Err:       err,
		}
	}

	if !resp.Decision.Final() {
		return types.Verdict{}, &types.AdjudicationContractError{
			RecordID: req.Record.ID,
			Reason:   fmt.Sprintf("decision %q is not include or exclude", resp.Decision),
		}
	}
	if strings.TrimSpace(resp.Rationale) == "" {
		return types.Verdict{}, &types.AdjudicationContractError{RecordID: req.Record.ID, Reason: "empty rationale"}
	}

	verdict.Resolution = types.ResolutionAdjudicated
	verdict.Decision = resp.Decision
	verdict.Rationale = resp.Rationale
	verdict.DecidedAt = time.Now().UTC()
	return verdict, nil
}
