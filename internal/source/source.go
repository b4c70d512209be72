// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source crawls external paper catalogs. Each catalog is an Adapter
// with its own query model: the OpenReview adapter queries one (venue, year)
// pair at a time, the arXiv adapter issues one boolean keyword query over a
// year range. Crawl runs the adapters side by side and keeps their output in
// adapter order.
package source

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// Adapter fetches papers from one external catalog.
type Adapter interface {
	Name() string
	Search(ctx context.Context, req Request) ([]types.Paper, error)
}

// Request holds the crawl parameters shared by all adapters.
type Request struct {
	Keywords []string
	Years    []int
	Venues   []types.Venue
}

// Stream is the output of one adapter.
type Stream struct {
	Adapter string
	Papers  []types.Paper
	Err     error
}

// CrawlResult holds per-adapter streams in adapter order.
type CrawlResult struct {
	Streams []Stream

	// Exhausted names the adapters that produced nothing, either because
	// they failed or because the catalog had no matches.
	Exhausted []string
}

// Papers returns the streams as plain paper slices, in adapter order.
func (r CrawlResult) Papers() [][]types.Paper {
	out := make([][]types.Paper, len(r.Streams))
	for i, s := range r.Streams {
		out[i] = s.Papers
	}
	return out
}

// Total returns the number of papers across all streams.
func (r CrawlResult) Total() int {
	n := 0
	for _, s := range r.Streams {
		n += len(s.Papers)
	}
	return n
}

// Crawl runs every adapter concurrently. An adapter error never aborts the
// crawl: it is logged and the adapter contributes an empty stream. Adapters
// that come back empty are surfaced in Exhausted so callers know the result
// set may be incomplete.
func Crawl(ctx context.Context, adapters []Adapter, req Request) CrawlResult {
	streams := make([]Stream, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range adapters {
		i, a := i, a
		g.Go(func() error {
			papers, err := a.Search(gctx, req)
			streams[i] = Stream{Adapter: a.Name(), Papers: papers, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var result CrawlResult
	for _, s := range streams {
		if s.Err != nil {
			logger.Log.WithField("source", s.Adapter).Warnf("adapter failed: %v", s.Err)
			s.Papers = nil
		}
		if len(s.Papers) == 0 {
			logger.Log.WithField("source", s.Adapter).Warn("adapter returned no papers; result set may be incomplete")
			result.Exhausted = append(result.Exhausted, s.Adapter)
		}
		result.Streams = append(result.Streams, s)
	}
	return result
}

// MatchesKeywords reports whether any keyword occurs, case-insensitively, in
// any of the given fields. An empty keyword list matches everything.
func MatchesKeywords(keywords []string, fields ...string) bool {
	if len(keywords) == 0 {
		return true
	}
	lowered := make([]string, len(fields))
	for i, f := range fields {
		lowered[i] = strings.ToLower(f)
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		for _, f := range lowered {
			if strings.Contains(f, kw) {
				return true
			}
		}
	}
	return false
}

// ArxivYears returns the year window for preprints: every requested year
// plus the year before the earliest one, so preprints of later-accepted
// work are caught.
func ArxivYears(years []int) map[int]bool {
	if len(years) == 0 {
		return nil
	}
	lo, hi := years[0], years[0]
	for _, y := range years {
		if y < lo {
			lo = y
		}
		if y > hi {
			hi = y
		}
	}
	window := make(map[int]bool, hi-lo+2)
	for y := lo - 1; y <= hi; y++ {
		window[y] = true
	}
	return window
}

func cleanSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
