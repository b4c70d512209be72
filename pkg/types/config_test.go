package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineConfigIsValid(t *testing.T) {
	cfg := DefaultPipelineConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultConcurrency, cfg.Filter.Concurrency)
	assert.Equal(t, DefaultMinCitations, cfg.Citation.MinCitations)
	assert.Equal(t, AllVenues, cfg.Source.Venues)
	assert.True(t, cfg.Source.EnableArxiv)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.Source.Years = []int{2025, -1}
	cfg.Source.Venues = []Venue{"CVPR"}
	cfg.Filter.Concurrency = 0
	cfg.Citation.MinCitations = -2
	cfg.Citation.Provider = "crossref"
	cfg.OutputDir = ""

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"invalid year -1",
		`unsupported venue "CVPR"`,
		"concurrency must be at least 1",
		"min citations must not be negative",
		`unknown citation provider "crossref"`,
		"output directory is required",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateNoSources(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.Source.Venues = nil
	cfg.Source.EnableArxiv = false
	assert.ErrorContains(t, cfg.Validate(), "no sources enabled")
}

func TestDefaultYears(t *testing.T) {
	assert.Equal(t, []int{2024, 2025}, DefaultYears(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		venues  []Venue
		want    []Venue
		wantErr string
	}{
		{"canonical", []Venue{VenueICLR, VenueACL}, []Venue{VenueICLR, VenueACL}, ""},
		{"lowercase and alias", []Venue{"iclr", "nips", "icml"}, []Venue{VenueICLR, VenueNeurIPS, VenueICML}, ""},
		{"alias collapses into canonical", []Venue{"NeurIPS", "nips"}, []Venue{VenueNeurIPS}, ""},
		{"unknown", []Venue{"iclr", "cvpr"}, nil, "cvpr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			cfg.Source.Venues = tt.venues
			err := cfg.Normalize()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Source.Venues)
			assert.NoError(t, cfg.Validate())
		})
	}
}
