// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-pipeline/internal/httputil"
	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// semanticAPIBase is the Semantic Scholar Graph API root. Declared as a var
// so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1"

const (
	semanticFields   = "citationCount,externalIds"
	defaultBatchSize = 100
)

// SemanticScholarProvider looks up citation counts on Semantic Scholar.
// Papers with an arXiv id are resolved through the batch endpoint; the rest
// through title matching, one request each.
type SemanticScholarProvider struct {
	Client    *http.Client
	APIKey    string
	UserAgent string

	// BatchSize is the number of ids per batch request (default 100).
	BatchSize int
	// Limiter paces every request. Nil means unpaced.
	Limiter *rate.Limiter
}

// NewSemanticScholarProvider builds a provider from cfg.
func NewSemanticScholarProvider(cfg types.CitationConfig) *SemanticScholarProvider {
	p := &SemanticScholarProvider{
		Client:    &http.Client{Timeout: cfg.Timeout},
		APIKey:    cfg.SemanticScholarAPIKey,
		UserAgent: cfg.UserAgent,
		BatchSize: cfg.BatchSize,
	}
	if cfg.RequestsPerSecond > 0 {
		p.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p
}

// Lookup resolves queries. A failed batch or title request leaves its
// papers unresolved and the remaining requests still run.
func (p *SemanticScholarProvider) Lookup(ctx context.Context, queries []Query) (map[string]int, error) {
	var (
		ids    []string
		titles []Query
	)
	for _, q := range queries {
		if q.ArxivID != "" {
			ids = append(ids, q.ArxivID)
		} else if q.Title != "" {
			titles = append(titles, q)
		}
	}

	size := p.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}

	counts := make(map[string]int, len(queries))
	var errs []error

	for start := 0; start < len(ids); start += size {
		batch := ids[start:min(start+size, len(ids))]
		found, err := p.lookupBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return counts, errors.Join(append(errs, ctx.Err())...)
			}
			logger.Log.WithField("batch", start/size).Warnf("citation batch failed: %v", err)
			errs = append(errs, err)
		}
		for k, n := range found {
			counts[k] = n
		}
	}

	for _, q := range titles {
		n, ok, err := p.lookupTitle(ctx, q.Title)
		if err != nil {
			if ctx.Err() != nil {
				return counts, errors.Join(append(errs, ctx.Err())...)
			}
			logger.Log.WithField("title", q.Title).Warnf("citation title match failed: %v", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			counts[q.Key()] = n
		}
	}

	return counts, errors.Join(errs...)
}

func (p *SemanticScholarProvider) wait(ctx context.Context) error {
	if p.Limiter == nil {
		return nil
	}
	return p.Limiter.Wait(ctx)
}

// lookupBatch resolves up to BatchSize arXiv ids in one request. The response
// is positional: entry i answers id i, and unknown ids come back as null.
func (p *SemanticScholarProvider) lookupBatch(ctx context.Context, arxivIDs []string) (map[string]int, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	keys := make([]string, len(arxivIDs))
	for i, id := range arxivIDs {
		keys[i] = Query{ArxivID: id}.Key()
	}
	body, err := json.Marshal(map[string][]string{"ids": keys})
	if err != nil {
		return nil, fmt.Errorf("encoding batch request: %w", err)
	}

	reqURL := semanticAPIBase + "/paper/batch?" + url.Values{"fields": {semanticFields}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.setHeaders(req)

	resp, err := httputil.DoWithRetry(ctx, p.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("Semantic Scholar batch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Semantic Scholar batch returned HTTP %d", resp.StatusCode)
	}

	var entries []*semanticPaper
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("parsing Semantic Scholar batch response: %w", err)
	}

	counts := make(map[string]int, len(entries))
	if len(entries) == len(keys) {
		for i, e := range entries {
			if n, ok := e.citations(); ok {
				counts[keys[i]] = n
			}
		}
		return counts, nil
	}

	// Length mismatch: fall back to matching on the returned arXiv id.
	wanted := make(map[string]bool, len(arxivIDs))
	for _, id := range arxivIDs {
		wanted[id] = true
	}
	for _, e := range entries {
		if e == nil || !wanted[e.ExternalIDs.ArXiv] {
			continue
		}
		if n, ok := e.citations(); ok {
			counts[Query{ArxivID: e.ExternalIDs.ArXiv}.Key()] = n
		}
	}
	return counts, nil
}

// lookupTitle resolves one title through the match endpoint. A match whose
// normalized title differs from the query is treated as not found.
func (p *SemanticScholarProvider) lookupTitle(ctx context.Context, title string) (int, bool, error) {
	if err := p.wait(ctx); err != nil {
		return 0, false, err
	}

	params := url.Values{"query": {title}, "fields": {"title,citationCount"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, semanticAPIBase+"/paper/search/match?"+params.Encode(), nil)
	if err != nil {
		return 0, false, fmt.Errorf("creating request: %w", err)
	}
	p.setHeaders(req)

	resp, err := httputil.DoWithRetry(ctx, p.Client, req, 0)
	if err != nil {
		return 0, false, fmt.Errorf("Semantic Scholar match request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("Semantic Scholar match returned HTTP %d", resp.StatusCode)
	}

	var mr semanticMatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return 0, false, fmt.Errorf("parsing Semantic Scholar match response: %w", err)
	}
	for _, m := range mr.Data {
		if types.NormalizeTitle(m.Title) == types.NormalizeTitle(title) {
			n, ok := m.citations()
			return n, ok, nil
		}
	}
	return 0, false, nil
}

func (p *SemanticScholarProvider) setHeaders(req *http.Request) {
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	if p.APIKey != "" {
		req.Header.Set("x-api-key", p.APIKey)
	}
}

// Semantic Scholar API JSON structures.
type semanticPaper struct {
	PaperID       string              `json:"paperId"`
	Title         string              `json:"title"`
	CitationCount *int                `json:"citationCount"`
	ExternalIDs   semanticExternalIDs `json:"externalIds"`
}

// citations reports the count, or false when the entry is missing or the
// provider left citationCount null.
func (sp *semanticPaper) citations() (int, bool) {
	if sp == nil || sp.CitationCount == nil {
		return 0, false
	}
	return *sp.CitationCount, true
}

type semanticExternalIDs struct {
	ArXiv string `json:"ArXiv"`
	DOI   string `json:"DOI"`
}

type semanticMatchResponse struct {
	Data []semanticPaper `json:"data"`
}
