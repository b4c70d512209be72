// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citation annotates preprints with citation counts from a secondary
// lookup service. The enricher never filters: papers whose count cannot be
// resolved keep an unknown count and the aggregator decides what to do with
// them.
package citation

import (
	"context"

	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// Query identifies one paper to look up. ArxivID is preferred; Title is the
// fallback for papers without one.
type Query struct {
	ArxivID string
	Title   string
}

// Key returns the identifier under which the count for q is reported.
func (q Query) Key() string {
	if q.ArxivID != "" {
		return "ARXIV:" + q.ArxivID
	}
	return "TITLE:" + types.NormalizeTitle(q.Title)
}

// Provider resolves citation counts. Lookup returns the counts it found keyed
// by Query.Key; queries absent from the map are not found. A non-nil error
// reports failed requests; the map still holds everything that succeeded.
type Provider interface {
	Lookup(ctx context.Context, queries []Query) (map[string]int, error)
}

// Cache stores counts between runs.
type Cache interface {
	GetCounts(ctx context.Context, keys []string) (map[string]int, error)
	PutCounts(ctx context.Context, counts map[string]int) error
}

// Enricher fills in CitationCount on preprint papers.
type Enricher struct {
	Provider Provider
	// Cache is optional. Hits skip the provider; provider results are
	// written through.
	Cache Cache
}

// EnrichSummary holds counts from one enrichment pass.
type EnrichSummary struct {
	Queried  int
	CacheHit int
	Resolved int
	Unknown  int
}

// Enrich returns annotated copies of papers. Only arXiv-origin papers without
// a known count are looked up; everything else passes through unchanged.
func (e *Enricher) Enrich(ctx context.Context, papers []types.Paper) ([]types.Paper, EnrichSummary) {
	out := types.ClonePapers(papers)

	var (
		queries []Query
		index   = make(map[string][]int)
	)
	for i, p := range out {
		if p.Source != types.SourceArxiv || p.HasCitations() {
			continue
		}
		if p.ArxivID == "" && p.Title == "" {
			continue
		}
		q := Query{ArxivID: p.ArxivID, Title: p.Title}
		k := q.Key()
		if _, seen := index[k]; !seen {
			queries = append(queries, q)
		}
		index[k] = append(index[k], i)
	}

	summary := EnrichSummary{Queried: len(queries)}
	if len(queries) == 0 {
		return out, summary
	}

	counts := make(map[string]int, len(queries))
	pending := queries

	if e.Cache != nil {
		keys := make([]string, len(queries))
		for i, q := range queries {
			keys[i] = q.Key()
		}
		cached, err := e.Cache.GetCounts(ctx, keys)
		if err != nil {
			logger.Log.Warnf("citation cache read failed: %v", err)
		}
		pending = pending[:0:0]
		for _, q := range queries {
			if n, ok := cached[q.Key()]; ok {
				counts[q.Key()] = n
				summary.CacheHit++
				continue
			}
			pending = append(pending, q)
		}
	}

	if len(pending) > 0 && e.Provider != nil {
		found, err := e.Provider.Lookup(ctx, pending)
		if err != nil {
			logger.Log.Warnf("citation lookup incomplete: %v", err)
		}
		if e.Cache != nil && len(found) > 0 {
			if err := e.Cache.PutCounts(ctx, found); err != nil {
				logger.Log.Warnf("citation cache write failed: %v", err)
			}
		}
		for k, n := range found {
			counts[k] = n
		}
	}

	for k, idxs := range index {
		n, ok := counts[k]
		if !ok {
			summary.Unknown += len(idxs)
			continue
		}
		for _, i := range idxs {
			out[i].SetCitations(n)
			summary.Resolved++
		}
	}

	logger.Log.WithFields(map[string]any{
		"queried":   summary.Queried,
		"cache_hit": summary.CacheHit,
		"resolved":  summary.Resolved,
		"unknown":   summary.Unknown,
	}).Info("citation counts resolved")
	return out, summary
}
