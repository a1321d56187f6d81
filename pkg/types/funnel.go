// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// FunnelCounters are the PRISMA-ScR running totals. Every field only grows,
// and identified >= deduplicated >= screened >= retrieved >= included
// holds after every mutation.
type FunnelCounters struct {
	Identified         int `json:"identified" yaml:"identified"`
	Deduplicated       int `json:"deduplicated" yaml:"deduplicated"`
	Screened           int `json:"screened" yaml:"screened"`
	ExcludedAtScreen   int `json:"excluded_at_screen" yaml:"excluded_at_screen"`
	Retrieved          int `json:"retrieved" yaml:"retrieved"`
	ExcludedAtFulltext int `json:"excluded_at_fulltext" yaml:"excluded_at_fulltext"`
	Included           int `json:"included" yaml:"included"`
}

// Check verifies the funnel ordering and the per-stage exclusion bounds.
func (f FunnelCounters) Check() error {
	chain := []struct {
		name  string
		value int
	}{
		{"identified", f.Identified},
		{"deduplicated", f.Deduplicated},
		{"screened", f.Screened},
		{"retrieved", f.Retrieved},
		{"included", f.Included},
	}
	for i, c := range chain {
		if c.value < 0 {
			return &InvariantError{Msg: fmt.Sprintf("funnel %s is negative (%d)", c.name, c.value)}
		}
		if i > 0 && c.value > chain[i-1].value {
			return &InvariantError{Msg: fmt.Sprintf("funnel %s (%d) exceeds %s (%d)",
				c.name, c.value, chain[i-1].name, chain[i-1].value)}
		}
	}
	if f.ExcludedAtScreen > f.Screened {
		return &InvariantError{Msg: fmt.Sprintf("funnel excluded_at_screen (%d) exceeds screened (%d)", f.ExcludedAtScreen, f.Screened)}
	}
	if f.Retrieved > f.Screened-f.ExcludedAtScreen {
		return &InvariantError{Msg: fmt.Sprintf("funnel retrieved (%d) exceeds records passing screening (%d)",
			f.Retrieved, f.Screened-f.ExcludedAtScreen)}
	}
	if f.ExcludedAtFulltext+f.Included > f.Retrieved {
		return &InvariantError{Msg: fmt.Sprintf("funnel fulltext outcomes (%d excluded + %d included) exceed retrieved (%d)",
			f.ExcludedAtFulltext, f.Included, f.Retrieved)}
	}
	return nil
}

// CheckMonotonic verifies that no counter decreased relative to prev.
func (f FunnelCounters) CheckMonotonic(prev FunnelCounters) error {
	pairs := []struct {
		name      string
		now, then int
	}{
		{"identified", f.Identified, prev.Identified},
		{"deduplicated", f.Deduplicated, prev.Deduplicated},
		{"screened", f.Screened, prev.Screened},
		{"excluded_at_screen", f.ExcludedAtScreen, prev.ExcludedAtScreen},
		{"retrieved", f.Retrieved, prev.Retrieved},
		{"excluded_at_fulltext", f.ExcludedAtFulltext, prev.ExcludedAtFulltext},
		{"included", f.Included, prev.Included},
	}
	for _, p := range pairs {
		if p.now < p.then {
			return &InvariantError{Msg: fmt.Sprintf("funnel %s decreased from %d to %d", p.name, p.then, p.now)}
		}
	}
	return nil
}
