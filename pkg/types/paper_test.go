package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Calibrating LLMs", "calibrating llms"},
		{"  Calibrating \n\tLLMs  ", "calibrating llms"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTitle(tt.in))
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := Paper{Title: "x", Authors: []string{"a"}, Keywords: []string{"k"}}
	p.SetCitations(3)

	c := p.Clone()
	c.Authors[0] = "changed"
	c.Keywords[0] = "changed"
	*c.CitationCount = 99

	assert.Equal(t, "a", p.Authors[0])
	assert.Equal(t, "k", p.Keywords[0])
	assert.Equal(t, 3, *p.CitationCount)
	assert.Nil(t, ClonePapers(nil))
}

func TestParseVenues(t *testing.T) {
	got, err := ParseVenues([]string{"iclr", " NIPS ", "NeurIPS", "", "acl"})
	require.NoError(t, err)
	assert.Equal(t, []Venue{VenueICLR, VenueNeurIPS, VenueACL}, got)

	_, err = ParseVenues([]string{"ICLR", "KDD"})
	assert.ErrorContains(t, err, "KDD")
}

func TestSourceIsVenue(t *testing.T) {
	assert.True(t, SourceOpenReview.IsVenue())
	assert.False(t, SourceArxiv.IsVenue())
}
