// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// --- mock adapter ---

type mockAdapter struct {
	name   string
	papers []types.Paper
	err    error
	delay  time.Duration
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Search(ctx context.Context, _ Request) ([]types.Paper, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	return m.papers, m.err
}

// --- MatchesKeywords ---

func TestMatchesKeywords(t *testing.T) {
	tests := []struct {
		name     string
		keywords []string
		fields   []string
		want     bool
	}{
		{"no keywords matches all", nil, []string{"anything"}, true},
		{"title match", []string{"calibration"}, []string{"LLM Calibration at Scale", "", ""}, true},
		{"abstract match case-insensitive", []string{"Uncertainty Quantification"}, []string{"t", "we study uncertainty quantification", ""}, true},
		{"keyword field match", []string{"conformal"}, []string{"t", "a", "conformal prediction, llm"}, true},
		{"any keyword suffices", []string{"nope", "llm"}, []string{"An LLM paper"}, true},
		{"no match", []string{"graph neural"}, []string{"vision transformer", "images"}, false},
		{"blank keyword ignored", []string{"  "}, []string{"text"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesKeywords(tt.keywords, tt.fields...))
		})
	}
}

// --- ArxivYears ---

func TestArxivYearsExtendsOneYearEarlier(t *testing.T) {
	window := ArxivYears([]int{2025, 2024})
	assert.Equal(t, map[int]bool{2023: true, 2024: true, 2025: true}, window)
}

func TestArxivYearsEmpty(t *testing.T) {
	assert.Nil(t, ArxivYears(nil))
}

// --- Crawl ---

func TestCrawlKeepsAdapterOrder(t *testing.T) {
	slow := &mockAdapter{name: "openreview", delay: 30 * time.Millisecond,
		papers: []types.Paper{{Title: "Venue paper", Source: types.SourceOpenReview}}}
	fast := &mockAdapter{name: "arxiv",
		papers: []types.Paper{{Title: "Preprint", Source: types.SourceArxiv}}}

	res := Crawl(context.Background(), []Adapter{slow, fast}, Request{Keywords: []string{"x"}})

	require.Len(t, res.Streams, 2)
	assert.Equal(t, "openreview", res.Streams[0].Adapter)
	assert.Equal(t, "arxiv", res.Streams[1].Adapter)
	assert.Equal(t, 2, res.Total())
	assert.Empty(t, res.Exhausted)

	streams := res.Papers()
	assert.Equal(t, "Venue paper", streams[0][0].Title)
	assert.Equal(t, "Preprint", streams[1][0].Title)
}

func TestCrawlIsolatesAdapterFailure(t *testing.T) {
	broken := &mockAdapter{name: "openreview", err: errors.New("connection reset"),
		papers: []types.Paper{{Title: "partial"}}}
	ok := &mockAdapter{name: "arxiv", papers: []types.Paper{{Title: "Preprint"}}}

	res := Crawl(context.Background(), []Adapter{broken, ok}, Request{})

	require.Len(t, res.Streams, 2)
	assert.Empty(t, res.Streams[0].Papers, "failed adapter contributes nothing")
	assert.Error(t, res.Streams[0].Err)
	assert.Len(t, res.Streams[1].Papers, 1)
	assert.Equal(t, []string{"openreview"}, res.Exhausted)
}

func TestCrawlReportsEmptyAdapterAsExhausted(t *testing.T) {
	res := Crawl(context.Background(), []Adapter{
		&mockAdapter{name: "openreview"},
		&mockAdapter{name: "arxiv"},
	}, Request{})

	assert.Equal(t, []string{"openreview", "arxiv"}, res.Exhausted)
	assert.Zero(t, res.Total())
}
