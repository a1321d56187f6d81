// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

func rec(title string, authors []string, year int, extID string) types.Record {
	r := types.NewRecord(title, authors, year)
	r.ExternalID = extID
	return r
}

func ids(records []types.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestDeduplicateExternalIDCaseInsensitive(t *testing.T) {
	a := rec("Telehealth in primary care", []string{"Smith J"}, 2020, "10.1/abc")
	b := rec("A completely different title", []string{"Jones K"}, 2019, "https://doi.org/10.1/ABC")

	unique, groups := Deduplicate([]types.Record{a, b}, 0.85)
	require.Len(t, unique, 1)
	assert.Equal(t, a.ID, unique[0].ID)
	require.Len(t, groups, 1)
	assert.Equal(t, a.ID, groups[0].CanonicalID)
	require.Len(t, groups[0].Duplicates, 1)
	assert.Equal(t, b.ID, groups[0].Duplicates[0].Record.ID)
	assert.Equal(t, types.MatchExternalID, groups[0].Duplicates[0].Reason)
}

func TestDeduplicateByTitle(t *testing.T) {
	a := rec("Attention Is All You Need", []string{"Vaswani A"}, 2017, "")
	b := rec("attention is all you need!", nil, 0, "10.5/xyz")

	unique, groups := Deduplicate([]types.Record{a, b}, 0.85)
	require.Len(t, unique, 1)
	require.Len(t, groups, 1)
	assert.Equal(t, types.MatchTitle, groups[0].Duplicates[0].Reason)
}

func TestDeduplicateYearAuthorTitle(t *testing.T) {
	base := rec("Deep learning for medical image segmentation", []string{"Smith, John", "Lee, Ann"}, 2021, "")
	near := "Deep learning methods for medical image segmentation"

	sim := TitleSimilarity(base.Title, near)
	require.Greater(t, sim, looseTitleMin)
	require.Less(t, sim, 0.85, "title alone must not match at the default threshold")

	tests := []struct {
		name      string
		other     types.Record
		wantDup   bool
		wantCount int
	}{
		{
			name:      "same year and authors",
			other:     rec(near, []string{"John Smith", "Ann Lee"}, 2021, ""),
			wantDup:   true,
			wantCount: 1,
		},
		{
			name:      "different year",
			other:     rec(near, []string{"John Smith", "Ann Lee"}, 2022, ""),
			wantCount: 2,
		},
		{
			name:      "disjoint authors",
			other:     rec(near, []string{"Kim, Y", "Park, S"}, 2021, ""),
			wantCount: 2,
		},
		{
			name:      "no authors can never match strategy 3",
			other:     rec(near, nil, 2021, ""),
			wantCount: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unique, groups := Deduplicate([]types.Record{base, tt.other}, 0.85)
			assert.Len(t, unique, tt.wantCount)
			if tt.wantDup {
				require.Len(t, groups, 1)
				assert.Equal(t, types.MatchYearAuthorName, groups[0].Duplicates[0].Reason)
			} else {
				assert.Empty(t, groups)
			}
		})
	}
}

func TestDeduplicateMissingExternalIDSkipsStrategyOne(t *testing.T) {
	a := rec("Study of apples", []string{"A"}, 2000, "")
	b := rec("Research on oranges", []string{"B"}, 2001, "")

	unique, groups := Deduplicate([]types.Record{a, b}, 0.85)
	assert.Len(t, unique, 2)
	assert.Empty(t, groups)
}

func TestDeduplicateFirstSeenIsCanonical(t *testing.T) {
	a := rec("Mobile health for diabetes", []string{"Smith J"}, 2019, "10.9/m")
	b := rec("Mobile Health for Diabetes.", []string{"Smith J"}, 2019, "10.9/M")

	unique, groups := Deduplicate([]types.Record{a, b}, 0.85)
	require.Len(t, unique, 1)
	assert.Equal(t, a.ID, unique[0].ID)
	assert.Equal(t, a.Provenance, unique[0].Provenance)

	a.Provenance = "first.ris"
	b.Provenance = "second.ris"
	unique, groups = Deduplicate([]types.Record{b, a}, 0.85)
	require.Len(t, unique, 1)
	assert.Equal(t, "second.ris", unique[0].Provenance, "reordering changes the canonical to whichever came first")
	assert.Equal(t, "first.ris", groups[0].Duplicates[0].Record.Provenance)
}

func TestDeduplicateIdempotent(t *testing.T) {
	input := []types.Record{
		rec("Telehealth adoption among older adults", []string{"Smith J", "Lee A"}, 2020, "10.1/a"),
		rec("Telehealth Adoption Among Older Adults", []string{"Smith J"}, 2020, ""),
		rec("Barriers to telehealth in rural clinics", []string{"Kim Y"}, 2021, "10.1/b"),
		rec("Something unrelated entirely", []string{"Park S"}, 2018, "10.1/A"),
		rec("Deep learning for medical image segmentation", []string{"Smith, John", "Lee, Ann"}, 2021, ""),
		rec("Deep learning methods for medical image segmentation", []string{"John Smith", "Ann Lee"}, 2021, ""),
		rec("", nil, 0, ""),
		rec("", nil, 0, ""),
	}

	first, _ := Deduplicate(input, 0.85)
	second, groups := Deduplicate(first, 0.85)
	assert.Equal(t, ids(first), ids(second))
	assert.Empty(t, groups)
	assert.Len(t, first, 4)
}

func TestDeduplicateEqualIDsAlwaysCollapse(t *testing.T) {
	a := rec("", nil, 0, "")
	b := rec("", nil, 0, "")
	require.Equal(t, a.ID, b.ID)

	unique, groups := Deduplicate([]types.Record{a, b, rec("Titled", nil, 0, "")}, 0.85)
	assert.Len(t, unique, 2)
	require.Len(t, groups, 1)
	assert.Equal(t, types.MatchTitle, groups[0].Duplicates[0].Reason)
}

func TestDeduplicateThresholdFallback(t *testing.T) {
	a := rec("Deep learning for medical image segmentation", nil, 0, "")
	b := rec("Deep learning methods for medical image segmentation", nil, 0, "")

	unique, _ := Deduplicate([]types.Record{a, b}, 0)
	assert.Len(t, unique, 2, "zero threshold falls back to the default")

	unique, groups := Deduplicate([]types.Record{a, b}, 0.8)
	assert.Len(t, unique, 1)
	assert.Equal(t, types.MatchTitle, groups[0].Duplicates[0].Reason)
}

func TestDeduplicateEmptyInput(t *testing.T) {
	unique, groups := Deduplicate(nil, 0.85)
	assert.Empty(t, unique)
	assert.Empty(t, groups)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.Equal(t, 0.0, Similarity("abc", ""))
	assert.InDelta(t, 2.0/3.0, Similarity("abc", "abd"), 1e-9)
}

func TestAuthorKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Smith, John", "smith j"},
		{"John Smith", "smith j"},
		{"Smith JA", "smith j"},
		{"J. Smith", "smith j"},
		{"Smith, Anna", "smith a"},
		{"Jo Li", "li j"},
		{"Plato", "plato"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, authorKey(tt.in), "input %q", tt.in)
	}
}

func TestDeduplicateSameSurnameDifferentAuthors(t *testing.T) {
	a := rec("Deep learning for medical image segmentation", []string{"Smith, John"}, 2021, "")
	b := rec("Deep learning methods for medical image segmentation", []string{"Smith, Anna"}, 2021, "")

	unique, groups := Deduplicate([]types.Record{a, b}, 0.85)
	assert.Len(t, unique, 2)
	assert.Empty(t, groups)
}

func TestDeduplicateUnknownYearsCountAsSame(t *testing.T) {
	a := rec("Deep learning for medical image segmentation", []string{"Smith, John"}, 0, "")
	b := rec("Deep learning methods for medical image segmentation", []string{"John Smith"}, 0, "")

	unique, groups := Deduplicate([]types.Record{a, b}, 0.85)
	assert.Len(t, unique, 1)
	require.Len(t, groups, 1)
	assert.Equal(t, types.MatchYearAuthorName, groups[0].Duplicates[0].Reason)

	c := rec("Deep learning methods for medical image segmentation", []string{"John Smith"}, 2021, "")
	unique, _ = Deduplicate([]types.Record{a, c}, 0.85)
	assert.Len(t, unique, 2, "a known year never matches an unknown one")
}
