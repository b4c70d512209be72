// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-pipeline/internal/httputil"
	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// openAlexAPIBase is the OpenAlex Works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works"

const (
	// openAlexMaxFilterValues is the OR-filter limit of the Works endpoint.
	openAlexMaxFilterValues = 50
	// arxivDOIPrefix is the DataCite prefix arXiv registers preprints under.
	arxivDOIPrefix = "10.48550/arxiv."
)

// OpenAlexProvider looks up citation counts on OpenAlex. arXiv ids are
// resolved through their DataCite DOI in batches; the rest through a title
// search checked for an exact normalized-title match.
type OpenAlexProvider struct {
	Client    *http.Client
	UserAgent string
	// Email is sent as the mailto parameter for polite pool access.
	Email string
	// Limiter paces every request. Nil means unpaced.
	Limiter *rate.Limiter
}

// NewOpenAlexProvider builds a provider from cfg.
func NewOpenAlexProvider(cfg types.CitationConfig) *OpenAlexProvider {
	p := &OpenAlexProvider{
		Client:    &http.Client{Timeout: cfg.Timeout},
		UserAgent: cfg.UserAgent,
		Email:     cfg.OpenAlexEmail,
	}
	if cfg.RequestsPerSecond > 0 {
		p.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p
}

// Lookup resolves queries. A failed request leaves its papers unresolved and
// the remaining requests still run.
func (p *OpenAlexProvider) Lookup(ctx context.Context, queries []Query) (map[string]int, error) {
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

	counts := make(map[string]int, len(queries))
	var errs []error

	for start := 0; start < len(ids); start += openAlexMaxFilterValues {
		batch := ids[start:min(start+openAlexMaxFilterValues, len(ids))]
		found, err := p.lookupDOIs(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return counts, errors.Join(append(errs, ctx.Err())...)
			}
			logger.Log.WithField("provider", "openalex").Warnf("citation batch failed: %v", err)
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
			logger.Log.WithField("title", q.Title).Warnf("openalex title search failed: %v", err)
			errs = append(errs, err)
			continue
		}
		if ok {
			counts[q.Key()] = n
		}
	}

	return counts, errors.Join(errs...)
}

func (p *OpenAlexProvider) lookupDOIs(ctx context.Context, arxivIDs []string) (map[string]int, error) {
	dois := make([]string, len(arxivIDs))
	byDOI := make(map[string]string, len(arxivIDs))
	for i, id := range arxivIDs {
		dois[i] = arxivDOIPrefix + strings.ToLower(id)
		byDOI[dois[i]] = id
	}

	params := url.Values{
		"filter":   {"doi:" + strings.Join(dois, "|")},
		"per_page": {fmt.Sprintf("%d", openAlexMaxFilterValues)},
		"select":   {"doi,title,cited_by_count"},
	}
	works, err := p.fetch(ctx, params)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(works))
	for _, w := range works {
		doi := strings.ToLower(strings.TrimPrefix(w.DOI, "https://doi.org/"))
		if id, ok := byDOI[doi]; ok {
			counts[Query{ArxivID: id}.Key()] = w.CitedByCount
		}
	}
	return counts, nil
}

func (p *OpenAlexProvider) lookupTitle(ctx context.Context, title string) (int, bool, error) {
	params := url.Values{
		"search":   {title},
		"per_page": {"5"},
		"select":   {"doi,title,cited_by_count"},
	}
	works, err := p.fetch(ctx, params)
	if err != nil {
		return 0, false, err
	}
	want := types.NormalizeTitle(title)
	for _, w := range works {
		if types.NormalizeTitle(w.Title) == want {
			return w.CitedByCount, true, nil
		}
	}
	return 0, false, nil
}

func (p *OpenAlexProvider) fetch(ctx context.Context, params url.Values) ([]openAlexWork, error) {
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if p.Email != "" {
		params.Set("mailto", p.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, p.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}
	return oar.Results, nil
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	DOI          string `json:"doi"`
	Title        string `json:"title"`
	CitedByCount int    `json:"cited_by_count"`
}

// Chain asks each provider in turn for the queries the previous ones left
// unresolved.
type Chain []Provider

// Lookup implements Provider.
func (c Chain) Lookup(ctx context.Context, queries []Query) (map[string]int, error) {
	counts := make(map[string]int, len(queries))
	pending := queries
	var errs []error
	for _, p := range c {
		if len(pending) == 0 {
			break
		}
		found, err := p.Lookup(ctx, pending)
		if err != nil {
			errs = append(errs, err)
		}
		for k, n := range found {
			counts[k] = n
		}
		if ctx.Err() != nil {
			break
		}

		var rest []Query
		for _, q := range pending {
			if _, ok := counts[q.Key()]; !ok {
				rest = append(rest, q)
			}
		}
		pending = rest
	}
	return counts, errors.Join(errs...)
}

// NewProvider returns the provider selected by cfg.Provider.
func NewProvider(cfg types.CitationConfig) Provider {
	switch cfg.Provider {
	case types.CitationOpenAlex:
		return NewOpenAlexProvider(cfg)
	case types.CitationBoth:
		return Chain{NewSemanticScholarProvider(cfg), NewOpenAlexProvider(cfg)}
	default:
		return NewSemanticScholarProvider(cfg)
	}
}
