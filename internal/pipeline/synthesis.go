// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/openreviewscope/internal/oracle"
	"github.com/pdiddy/openreviewscope/pkg/types"
)

// topKeywords bounds the keyword frequency list.
const topKeywords = 20

// Synthesize aggregates the charts and verdicts of state. It reads state
// only.
func Synthesize(state *types.RunState, at time.Time) *types.Synthesis {
	syn := &types.Synthesis{
		Included:    len(state.Charts),
		ByYear:      map[int]int{},
		ByVenue:     map[string]int{},
		Stages:      map[string]types.StageSummary{},
		GeneratedAt: at,
	}

	keywords := map[string]int{}
	display := map[string]string{}
	for _, c := range state.Charts {
		if c.Year > 0 {
			syn.ByYear[c.Year]++
		}
		if v := strings.TrimSpace(c.Venue); v != "" {
			syn.ByVenue[v]++
		}
		seen := map[string]bool{}
		for _, k := range c.Keywords {
			key := types.NormalizeText(k)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			keywords[key]++
			if _, ok := display[key]; !ok {
				display[key] = strings.TrimSpace(k)
			}
		}
	}
	for k, n := range keywords {
		syn.TopKeywords = append(syn.TopKeywords, types.KeywordCount{Keyword: display[k], Count: n})
	}
	sort.Slice(syn.TopKeywords, func(i, j int) bool {
		a, b := syn.TopKeywords[i], syn.TopKeywords[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Keyword < b.Keyword
	})
	if len(syn.TopKeywords) > topKeywords {
		syn.TopKeywords = syn.TopKeywords[:topKeywords]
	}

	for _, stage := range []types.Stage{types.StageAbstractScreening, types.StageFulltextScreening} {
		syn.Stages[stage.String()] = Summarize(state.VerdictsAt(stage))
	}
	return syn
}

// Summarize counts decisions, resolution paths and unanimous panels.
func Summarize(verdicts []types.Verdict) types.StageSummary {
	var s types.StageSummary
	for _, v := range verdicts {
		s.Verdicts++
		if v.Decision == types.DecisionInclude {
			s.Included++
		} else {
			s.Excluded++
		}
		if v.Resolution == types.ResolutionAdjudicated {
			s.Adjudicated++
		} else {
			s.AutoMajority++
		}
		if unanimous(v.Votes) {
			s.Unanimous++
		}
	}
	if s.Verdicts > 0 {
		s.Agreement = float64(s.Unanimous) / float64(s.Verdicts)
	}
	return s
}

func unanimous(votes []types.Vote) bool {
	if len(votes) == 0 {
		return false
	}
	for _, v := range votes[1:] {
		if v.Decision != votes[0].Decision {
			return false
		}
	}
	return true
}

func isMalformed(err error) bool {
	return errors.Is(err, oracle.ErrMalformedResponse)
}
