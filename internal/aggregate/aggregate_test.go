// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-pipeline/pkg/types"
)

func venuePaper(title, venue string) types.Paper {
	return types.Paper{Title: title, Venue: venue, Source: types.SourceOpenReview, Authors: []string{"V"}}
}

func preprint(title string, citations *int) types.Paper {
	return types.Paper{Title: title, Venue: "arXiv", Source: types.SourceArxiv, CitationCount: citations, Authors: []string{"P"}}
}

func cites(n int) *int { return &n }

func titles(papers []types.Paper) []string {
	out := make([]string, len(papers))
	for i, p := range papers {
		out[i] = p.Title
	}
	return out
}

func TestCitationThresholdFailsClosed(t *testing.T) {
	tests := []struct {
		name      string
		citations *int
		kept      bool
	}{
		{"unknown", nil, false},
		{"below", cites(4), false},
		{"at threshold", cites(5), true},
		{"above", cites(50), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Aggregate([][]types.Paper{{preprint("P", tt.citations)}}, Options{MinCitations: 5})
			if tt.kept {
				assert.Len(t, res.Papers, 1)
				assert.Zero(t, res.BelowThreshold)
			} else {
				assert.Empty(t, res.Papers)
				assert.Equal(t, 1, res.BelowThreshold)
			}
		})
	}
}

func TestVenuePapersIgnoreThreshold(t *testing.T) {
	res := Aggregate([][]types.Paper{{venuePaper("V", "ICLR 2025")}}, Options{MinCitations: 1000})
	assert.Len(t, res.Papers, 1)
}

func TestVenueBeatsEarlierPreprint(t *testing.T) {
	streams := [][]types.Paper{
		{preprint("Shared Title", cites(30)), preprint("Only Preprint", cites(30))},
		{venuePaper("shared   TITLE", "ICML 2025")},
	}
	res := Aggregate(streams, Options{MinCitations: 5})

	require.Len(t, res.Papers, 2)
	assert.Equal(t, []string{"Only Preprint", "shared   TITLE"}, titles(res.Papers))
	assert.Equal(t, types.SourceOpenReview, res.Papers[1].Source)
	assert.Equal(t, 1, res.DupsRemoved)
}

func TestFirstEncounteredWinsWithinSameKind(t *testing.T) {
	streams := [][]types.Paper{
		{venuePaper("Dup", "ICLR 2025"), venuePaper("dup", "ICML 2025")},
		{preprint("Other", cites(9)), preprint("OTHER", cites(99))},
	}
	res := Aggregate(streams, Options{MinCitations: 5})

	require.Len(t, res.Papers, 2)
	assert.Equal(t, "ICLR 2025", res.Papers[0].Venue)
	assert.Equal(t, 9, *res.Papers[1].CitationCount)
	assert.Equal(t, 2, res.DupsRemoved)
}

func TestGroupsByVenueInFirstSeenOrder(t *testing.T) {
	streams := [][]types.Paper{
		{venuePaper("a", "ICLR 2025"), venuePaper("b", "ICML 2025"), venuePaper("c", "ICLR 2025")},
		{preprint("d", cites(10))},
		{venuePaper("e", "ICML 2025")},
	}
	res := Aggregate(streams, Options{MinCitations: 5})
	assert.Equal(t, []string{"a", "c", "b", "e", "d"}, titles(res.Papers))
}

// Venue stream returns A and B with the same normalized title; the preprint
// stream returns B again (12 citations) and C (2 citations).
func TestCalibrationScenario(t *testing.T) {
	a := venuePaper("Calibrating LLMs", "ICLR 2025")
	bVenue := venuePaper("calibrating   llms", "ICLR 2025")
	bPreprint := preprint("calibrating   llms", cites(12))
	c := preprint("Conformal Heads", cites(2))

	res := Aggregate([][]types.Paper{{a, bVenue}, {bPreprint, c}}, Options{MinCitations: 5})

	require.Len(t, res.Papers, 1)
	assert.Equal(t, "Calibrating LLMs", res.Papers[0].Title)
	assert.Equal(t, types.SourceOpenReview, res.Papers[0].Source)
	assert.Equal(t, 2, res.DupsRemoved)
	assert.Equal(t, 1, res.BelowThreshold)
}

// Same scenario with the preprint B under its own title: it clears the
// threshold and is retained next to A.
func TestCalibrationScenarioDistinctPreprint(t *testing.T) {
	a := venuePaper("Calibrating LLMs", "ICLR 2025")
	bPreprint := preprint("Calibrated Uncertainty in LLMs", cites(12))
	c := preprint("Conformal Heads", cites(2))

	res := Aggregate([][]types.Paper{{a}, {bPreprint, c}}, Options{MinCitations: 5})

	assert.Equal(t, []string{"Calibrating LLMs", "Calibrated Uncertainty in LLMs"}, titles(res.Papers))
	assert.Equal(t, 12, *res.Papers[1].CitationCount)
	assert.Equal(t, 1, res.BelowThreshold)
}

func TestAggregateIsIdempotentAndPure(t *testing.T) {
	streams := [][]types.Paper{
		{venuePaper("x", "ICLR 2024"), venuePaper("Y", "NEURIPS 2024"), venuePaper("x ", "ICML 2024")},
		{preprint("y", cites(7)), preprint("z", cites(7)), preprint("w", nil)},
	}
	snapshot := make([][]types.Paper, len(streams))
	for i, s := range streams {
		snapshot[i] = types.ClonePapers(s)
	}

	first := Aggregate(streams, Options{MinCitations: 5})
	second := Aggregate(streams, Options{MinCitations: 5})
	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, streams, "input is not mutated")

	// Feeding the output back in changes nothing.
	again := Aggregate([][]types.Paper{first.Papers}, Options{MinCitations: 5})
	assert.Equal(t, first.Papers, again.Papers)
	assert.Zero(t, again.DupsRemoved)

	// Output never shares storage with the input.
	first.Papers[0].Authors[0] = "changed"
	assert.Equal(t, "V", streams[0][0].Authors[0])
}

func TestTitleDedupInvariant(t *testing.T) {
	var streams [][]types.Paper
	names := []string{"Alpha", "alpha", "ALPHA  ", "Beta", "beta gamma", "Beta  Gamma", "delta"}
	venues := []types.Paper{}
	pre := []types.Paper{}
	for i, n := range names {
		if i%2 == 0 {
			venues = append(venues, venuePaper(n, "ICLR 2025"))
		} else {
			pre = append(pre, preprint(n, cites(i+5)))
		}
	}
	streams = append(streams, pre, venues)

	res := Aggregate(streams, Options{MinCitations: 5})
	seen := map[string]bool{}
	for _, p := range res.Papers {
		key := p.NormalizedTitle()
		assert.False(t, seen[key], "duplicate normalized title %q", key)
		seen[key] = true
	}
	assert.Len(t, res.Papers, 4)
}

func TestAggregateEmpty(t *testing.T) {
	res := Aggregate(nil, Options{MinCitations: 5})
	assert.Empty(t, res.Papers)
	assert.NotNil(t, res.Papers)
}
