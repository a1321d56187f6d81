// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

// Reviewer is one independently configured screening oracle.
type Reviewer struct {
	ID     string
	Oracle ScreeningOracle
}

// Panel holds exactly types.PanelSize reviewers and collects one vote from
// each for a record.
type Panel struct {
	reviewers  []Reviewer
	maxRetries int
}

// NewPanel validates the reviewer set: exactly types.PanelSize reviewers
// with distinct, non-empty IDs and non-nil oracles.
func NewPanel(reviewers []Reviewer, maxRetries int) (*Panel, error) {
	if len(reviewers) != types.PanelSize {
		return nil, &types.ValidationError{
			Field: "screening.reviewers",
			Msg:   fmt.Sprintf("need exactly %d reviewers, got %d", types.PanelSize, len(reviewers)),
		}
	}
	seen := make(map[string]bool, len(reviewers))
	for i, r := range reviewers {
		if r.ID == "" || r.Oracle == nil {
			return nil, &types.ValidationError{Field: fmt.Sprintf("screening.reviewers[%d]", i), Msg: "reviewer needs an id and an oracle"}
		}
		if seen[r.ID] {
			return nil, &types.ValidationError{Field: fmt.Sprintf("screening.reviewers[%d].id", i), Msg: fmt.Sprintf("duplicate reviewer id %q", r.ID)}
		}
		seen[r.ID] = true
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Panel{reviewers: append([]Reviewer(nil), reviewers...), maxRetries: maxRetries}, nil
}

// ReviewerIDs returns the reviewer IDs in panel order.
func (p *Panel) ReviewerIDs() []string {
	ids := make([]string, len(p.reviewers))
	for i, r := range p.reviewers {
		ids[i] = r.ID
	}
	return ids
}

// Collect asks every reviewer concurrently and returns their votes in
// panel order. Nothing is returned unless all three succeed; the first
// failure cancels the others and is reported as a *types.OracleCallError.
func (p *Panel) Collect(ctx context.Context, req ScreeningRequest) ([]types.Vote, error) {
	votes := make([]types.Vote, len(p.reviewers))
	g, gctx := errgroup.WithContext(ctx)

	for i, r := range p.reviewers {
		g.Go(func() error {
			resp, err := callWithRetry(gctx, p.maxRetries, func(ctx context.Context) (ScreeningResponse, error) {
				resp, err := r.Oracle.Screen(ctx, req)
				if err != nil {
					return resp, err
				}
				return resp, validateScreening(resp)
			})
			if err != nil {
				return &types.OracleCallError{
					Oracle:     "screening",
					RecordID:   req.Record.ID,
					ReviewerID: r.ID,
					Malformed:  errors.Is(err, ErrMalformedResponse),
					Err:        err,
				}
			}
			votes[i] = types.Vote{
				RecordID:   req.Record.ID,
				Stage:      req.Stage,
				ReviewerID: r.ID,
				Decision:   resp.Decision,
				Reasons:    resp.Reasons,
				Evidence:   resp.Evidence,
				CastAt:     time.Now().UTC(),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return votes, nil
}

// RetryingAdjudicator wraps an AdjudicationOracle with the same retry
// policy the panel uses.
type RetryingAdjudicator struct {
	Oracle     AdjudicationOracle
	MaxRetries int
}

// Adjudicate calls the wrapped oracle, retrying failed and unparsable
// calls. Contract checks on the answer are left to consensus.Settle.
func (a RetryingAdjudicator) Adjudicate(ctx context.Context, req AdjudicationRequest) (AdjudicationResponse, error) {
	return callWithRetry(ctx, a.MaxRetries, func(ctx context.Context) (AdjudicationResponse, error) {
		return a.Oracle.Adjudicate(ctx, req)
	})
}

// RetryingCharter wraps a ChartingOracle with the panel's retry policy.
type RetryingCharter struct {
	Oracle     ChartingOracle
	MaxRetries int
}

// Chart calls the wrapped oracle, retrying failed and unparsable calls.
func (c RetryingCharter) Chart(ctx context.Context, req ChartingRequest) (ChartingResponse, error) {
	return callWithRetry(ctx, c.MaxRetries, func(ctx context.Context) (ChartingResponse, error) {
		return c.Oracle.Chart(ctx, req)
	})
}
