// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup collapses near-duplicate bibliographic records into a
// unique working set before screening begins.
//
// Records are processed in input order. Each new record is checked against
// the unique records accepted so far with three cascading strategies; the
// first strategy that finds a match decides, and within a strategy the
// earliest accepted record wins:
//
//  1. equal normalized external identifiers (both present),
//  2. normalized-title similarity at or above the threshold,
//  3. same year (two unknown years count as the same), author Jaccard
//     overlap above 0.5 and title similarity above 0.7.
//
// The first-seen record is always the canonical survivor. Records with the
// same derived ID always collapse through strategy 2, since their
// normalized titles are equal.
package dedup

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

const (
	// authorOverlapMin is the exclusive Jaccard bound for strategy 3.
	authorOverlapMin = 0.5
	// looseTitleMin is the exclusive title similarity bound for strategy 3.
	looseTitleMin = 0.7
)

// candidate caches the normalized forms of an accepted record.
type candidate struct {
	externalID string
	title      string
	year       int
	authors    map[string]bool
	group      int // index into groups, -1 until the first duplicate
}

func newCandidate(r types.Record) candidate {
	return candidate{
		externalID: types.NormalizeExternalID(r.ExternalID),
		title:      types.NormalizeText(r.Title),
		year:       r.Year,
		authors:    authorKeys(r.Authors),
		group:      -1,
	}
}

// Deduplicate returns the unique records in input order and one group per
// canonical record that absorbed duplicates. A threshold outside (0, 1]
// falls back to types.DefaultTitleThreshold. It never fails; with no
// matches it returns the input order unchanged and no groups.
func Deduplicate(records []types.Record, threshold float64) ([]types.Record, []types.DuplicateGroup) {
	if threshold <= 0 || threshold > 1 {
		threshold = types.DefaultTitleThreshold
	}

	var unique []types.Record
	var cands []candidate
	var groups []types.DuplicateGroup

	for _, r := range records {
		c := newCandidate(r)
		idx, reason, ok := match(c, cands, threshold)
		if !ok {
			unique = append(unique, r)
			cands = append(cands, c)
			continue
		}

		canon := &cands[idx]
		if canon.group < 0 {
			canon.group = len(groups)
			groups = append(groups, types.DuplicateGroup{CanonicalID: unique[idx].ID})
		}
		groups[canon.group].Duplicates = append(groups[canon.group].Duplicates, types.Duplicate{
			Record: r,
			Reason: reason,
		})
	}

	return unique, groups
}

// match runs the strategy cascade against the accepted candidates.
func match(c candidate, accepted []candidate, threshold float64) (int, types.MatchReason, bool) {
	if c.externalID != "" {
		for i, u := range accepted {
			if u.externalID != "" && u.externalID == c.externalID {
				return i, types.MatchExternalID, true
			}
		}
	}

	sims := make([]float64, len(accepted))
	for i, u := range accepted {
		sims[i] = Similarity(c.title, u.title)
		if sims[i] >= threshold {
			return i, types.MatchTitle, true
		}
	}

	if len(c.authors) == 0 {
		return 0, "", false
	}
	for i, u := range accepted {
		if u.year != c.year || len(u.authors) == 0 {
			continue
		}
		if jaccard(c.authors, u.authors) > authorOverlapMin && sims[i] > looseTitleMin {
			return i, types.MatchYearAuthorName, true
		}
	}

	return 0, "", false
}

// Similarity returns 1 - editDistance/maxLen over the runes of two already
// normalized strings. Two empty strings are identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// TitleSimilarity normalizes both titles and returns their Similarity.
func TitleSimilarity(a, b string) float64 {
	return Similarity(types.NormalizeText(a), types.NormalizeText(b))
}

// authorKeys reduces author names to "surname initial" keys so that
// "Smith, John", "John Smith" and "Smith J" compare equal while
// "Smith, Anna" does not. Names written "Surname, Given" split at the
// comma; MEDLINE names end in an uppercase initials token; otherwise the
// last token is the surname.
func authorKeys(authors []string) map[string]bool {
	keys := make(map[string]bool, len(authors))
	for _, a := range authors {
		if k := authorKey(a); k != "" {
			keys[k] = true
		}
	}
	return keys
}

func authorKey(name string) string {
	family, given := splitName(name)
	if family == "" {
		return ""
	}
	if given == "" {
		return family
	}
	return family + " " + string([]rune(given)[:1])
}

// splitName returns the normalized surname and given names of an author.
func splitName(name string) (family, given string) {
	if i := strings.Index(name, ","); i >= 0 {
		return types.NormalizeText(name[:i]), types.NormalizeText(name[i+1:])
	}
	tokens := strings.Fields(types.NormalizeText(name))
	switch {
	case len(tokens) == 0:
		return "", ""
	case len(tokens) == 1:
		return tokens[0], ""
	}
	last := lastField(name)
	if len(tokens[len(tokens)-1]) <= 2 && strings.ToUpper(last) == last {
		return tokens[0], strings.Join(tokens[1:], " ")
	}
	return tokens[len(tokens)-1], strings.Join(tokens[:len(tokens)-1], " ")
}

func lastField(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return strings.Trim(f[len(f)-1], ".")
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
