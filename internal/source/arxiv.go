// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/paper-pipeline/internal/httputil"
	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

const arxivPageSize = 100

var defaultArxivCategories = []string{"cs.CL", "cs.LG", "cs.AI"}

// ArxivAdapter queries the arXiv API with one boolean keyword query.
type ArxivAdapter struct {
	Client    *http.Client
	UserAgent string

	// MaxResults caps the entries fetched across pages (default 500).
	MaxResults int
	// Categories restricts the query (default cs.CL, cs.LG, cs.AI).
	Categories []string
	// PageDelay is the pause between result pages.
	PageDelay time.Duration
}

// Name returns the adapter identifier.
func (a *ArxivAdapter) Name() string { return string(types.SourceArxiv) }

// Search runs the keyword query and returns entries published within the
// preprint year window that also pass the keyword re-check. Citation counts
// are left unknown. A failed page ends the crawl with what was collected.
func (a *ArxivAdapter) Search(ctx context.Context, req Request) ([]types.Paper, error) {
	if len(req.Keywords) == 0 {
		return nil, nil
	}

	q := buildArxivQuery(req.Keywords, a.categories())
	window := ArxivYears(req.Years)
	lowest := lowestYear(window)

	maxResults := a.MaxResults
	if maxResults <= 0 {
		maxResults = 500
	}

	log := logger.Log.WithField("source", a.Name())
	log.WithField("query", q).Debug("searching")

	var (
		papers      []types.Paper
		outOfWindow int
		offTopic    int
	)
	for start := 0; start < maxResults; start += arxivPageSize {
		if start > 0 && a.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return papers, ctx.Err()
			case <-time.After(a.PageDelay):
			}
		}

		size := min(arxivPageSize, maxResults-start)
		entries, err := a.fetchPage(ctx, q, start, size)
		if err != nil {
			log.Warnf("page at offset %d failed: %v", start, err)
			if len(papers) == 0 {
				return nil, err
			}
			break
		}

		pastWindow := false
		for _, e := range entries {
			p, ok := e.toPaper()
			if !ok {
				continue
			}
			if window != nil && !window[p.Year] {
				outOfWindow++
				if p.Year < lowest {
					pastWindow = true
				}
				continue
			}
			if !MatchesKeywords(req.Keywords, p.Title, p.Abstract) {
				offTopic++
				continue
			}
			papers = append(papers, p)
		}

		// Results are sorted newest first, so nothing after this page can fall
		// in the window once a page reaches below it.
		if len(entries) < size || pastWindow {
			break
		}
	}

	log.WithFields(map[string]any{"kept": len(papers), "year_filtered": outOfWindow, "keyword_filtered": offTopic}).Info("arXiv crawled")
	return papers, nil
}

func (a *ArxivAdapter) categories() []string {
	if len(a.Categories) > 0 {
		return a.Categories
	}
	return defaultArxivCategories
}

func (a *ArxivAdapter) fetchPage(ctx context.Context, q string, start, size int) ([]arxivEntry, error) {
	params := url.Values{
		"search_query": {q},
		"start":        {strconv.Itoa(start)},
		"max_results":  {strconv.Itoa(size)},
		"sortBy":       {"submittedDate"},
		"sortOrder":    {"descending"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, a.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}
	return feed.Entries, nil
}

// buildArxivQuery ORs the keywords as abstract phrase matches and ANDs the
// result with the category restriction.
func buildArxivQuery(keywords, categories []string) string {
	var kw []string
	for _, k := range keywords {
		k = strings.TrimSpace(strings.ReplaceAll(k, `"`, ""))
		if k != "" {
			kw = append(kw, fmt.Sprintf(`abs:"%s"`, k))
		}
	}
	if len(kw) == 0 {
		return ""
	}
	q := "(" + strings.Join(kw, " OR ") + ")"

	var cats []string
	for _, c := range categories {
		cats = append(cats, "cat:"+c)
	}
	if len(cats) > 0 {
		q += " AND (" + strings.Join(cats, " OR ") + ")"
	}
	return q
}

func lowestYear(window map[int]bool) int {
	lowest := 0
	for y := range window {
		if lowest == 0 || y < lowest {
			lowest = y
		}
	}
	return lowest
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID         string          `xml:"id"`
	Title      string          `xml:"title"`
	Summary    string          `xml:"summary"`
	Published  string          `xml:"published"`
	Authors    []arxivAuthor   `xml:"author"`
	Categories []arxivCategory `xml:"category"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivCategory struct {
	Term string `xml:"term,attr"`
}

func (e arxivEntry) toPaper() (types.Paper, bool) {
	title := cleanSpace(e.Title)
	if title == "" {
		return types.Paper{}, false
	}
	published, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published))
	if err != nil {
		return types.Paper{}, false
	}

	p := types.Paper{
		Title:    title,
		Abstract: cleanSpace(e.Summary),
		Venue:    "arXiv",
		Year:     published.Year(),
		URL:      strings.TrimSpace(e.ID),
		ArxivID:  extractArxivID(e.ID),
		Source:   types.SourceArxiv,
	}
	for _, au := range e.Authors {
		if name := strings.TrimSpace(au.Name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	for _, c := range e.Categories {
		if c.Term != "" {
			p.Keywords = append(p.Keywords, c.Term)
		}
	}
	return p, true
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" → "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := strings.TrimSpace(idURL[idx+len(prefix):])

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}
