// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package oracle defines the external decision capabilities the pipeline
// consumes (screening, adjudication, data charting) with typed request and
// response contracts, a three-reviewer panel that collects votes
// concurrently, and a Claude Messages API backend for all three.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// ErrMalformedResponse marks an oracle answer that could not be parsed or
// that broke the response contract. Wrap it with %w.
var ErrMalformedResponse = errors.New("malformed oracle response")

// ScreeningRequest is what one reviewer sees for one record at one stage.
// FullText is set only for fulltext screening.
type ScreeningRequest struct {
	Record   types.Record
	Stage    types.Stage
	Criteria types.Criteria
	FullText string
}

// ScreeningResponse is one reviewer's answer.
type ScreeningResponse struct {
	Decision types.Decision `json:"decision"`
	Reasons  []string       `json:"reasons"`
	Evidence []string       `json:"evidence"`
}

// ScreeningOracle screens one record against the criteria. Three
// independently configured instances form a Panel.
type ScreeningOracle interface {
	Screen(ctx context.Context, req ScreeningRequest) (ScreeningResponse, error)
}

// AdjudicationRequest carries an escalated record with its panel votes.
type AdjudicationRequest struct {
	Record   types.Record
	Stage    types.Stage
	Votes    []types.Vote
	Criteria types.Criteria
	FullText string
}

// AdjudicationResponse is the adjudicator's final answer. Decision must be
// include or exclude; unsure is not a terminal state.
type AdjudicationResponse struct {
	Decision  types.Decision `json:"decision"`
	Rationale string         `json:"rationale"`
}

// AdjudicationOracle settles an escalated record.
type AdjudicationOracle interface {
	Adjudicate(ctx context.Context, req AdjudicationRequest) (AdjudicationResponse, error)
}

// ChartingRequest asks for the data-charting items of an included record.
type ChartingRequest struct {
	Record   types.Record
	Criteria types.Criteria
	FullText string
}

// ChartingResponse holds charted key/value items (e.g. "study_design").
type ChartingResponse struct {
	Findings map[string]string `json:"findings"`
}

// ChartingOracle extracts charting items from an included study.
type ChartingOracle interface {
	Chart(ctx context.Context, req ChartingRequest) (ChartingResponse, error)
}

// validateScreening checks a screening answer against the vote contract so
// that a bad answer is rejected before it becomes a Vote.
func validateScreening(resp ScreeningResponse) error {
	candidate := types.Vote{
		RecordID:   "-",
		ReviewerID: "-",
		Decision:   resp.Decision,
		Reasons:    resp.Reasons,
		Evidence:   resp.Evidence,
	}
	if err := candidate.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, strings.TrimPrefix(err.Error(), "vote for - by -: "))
	}
	return nil
}
