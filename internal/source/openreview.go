// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/paper-pipeline/internal/httputil"
	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// openReviewAPIBase is the OpenReview API v2 notes endpoint. Declared as a
// var so tests can substitute an httptest server.
var openReviewAPIBase = "https://api2.openreview.net/notes"

const (
	openReviewForumURL = "https://openreview.net/forum?id="
	openReviewPageSize = 1000
)

// errNotAccessible marks venues that the API refuses or does not know.
var errNotAccessible = errors.New("not accessible")

// OpenReviewAdapter queries OpenReview submissions one (venue, year) pair at a time.
type OpenReviewAdapter struct {
	Client    *http.Client
	UserAgent string
	// Token is an optional bearer token.
	Token string
}

// Name returns the adapter identifier.
func (a *OpenReviewAdapter) Name() string { return string(types.SourceOpenReview) }

// Search queries every (venue, year) pair in req and returns the matching
// submissions in query order. A failed pair is logged and skipped. Venue tags
// are matched case-insensitively; an unsupported tag fails the whole search
// before any request is made.
func (a *OpenReviewAdapter) Search(ctx context.Context, req Request) ([]types.Paper, error) {
	venues, err := normalizeVenues(req.Venues)
	if err != nil {
		return nil, err
	}

	var papers []types.Paper
	for _, year := range req.Years {
		for _, venue := range venues {
			if err := ctx.Err(); err != nil {
				return papers, err
			}
			found := a.searchVenue(ctx, venue, year, req.Keywords)
			papers = append(papers, found...)
		}
	}
	return papers, nil
}

func normalizeVenues(venues []types.Venue) ([]types.Venue, error) {
	tags := make([]string, len(venues))
	for i, v := range venues {
		tags[i] = string(v)
	}
	return types.ParseVenues(tags)
}

// venueQuery is one OpenReview notes query: either a venueid or an invitation.
type venueQuery struct {
	param string
	value string
}

// venueQueries maps a (venue, year) pair to the notes queries that cover it.
// ACL submissions live under ACL Rolling Review cycles, one invitation per month.
func venueQueries(venue types.Venue, year int) []venueQuery {
	y := strconv.Itoa(year)
	switch venue {
	case types.VenueICLR:
		return []venueQuery{{"content.venueid", "ICLR.cc/" + y + "/Conference"}}
	case types.VenueICML:
		return []venueQuery{{"content.venueid", "ICML.cc/" + y + "/Conference"}}
	case types.VenueNeurIPS:
		return []venueQuery{{"content.venueid", "NeurIPS.cc/" + y + "/Conference"}}
	case types.VenueACL:
		var qs []venueQuery
		for _, m := range arrMonths(year) {
			qs = append(qs, venueQuery{"invitation", fmt.Sprintf("aclweb.org/ACL/ARR/%d/%s/-/Submission", year, m)})
		}
		return qs
	}
	return nil
}

func arrMonths(year int) []string {
	switch year {
	case 2024:
		return []string{"February", "April", "June", "October"}
	case 2025:
		return []string{"May", "July", "October"}
	default:
		return []string{"February", "April", "June", "October", "May", "July"}
	}
}

func (a *OpenReviewAdapter) searchVenue(ctx context.Context, venue types.Venue, year int, keywords []string) []types.Paper {
	log := logger.Log.WithField("venue", fmt.Sprintf("%s %d", venue, year))

	queries := venueQueries(venue, year)

	var notes []openReviewNote
	for _, q := range queries {
		batch, err := a.fetchAll(ctx, q)
		if err != nil {
			if errors.Is(err, errNotAccessible) {
				log.WithField("query", q.value).Warn("venue not accessible")
			} else {
				log.WithField("query", q.value).Warnf("query failed: %v", err)
			}
			continue
		}
		notes = append(notes, batch...)
	}

	label := fmt.Sprintf("%s %d", venue, year)
	seen := make(map[string]bool)
	var papers []types.Paper
	skipped := 0
	for _, n := range notes {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true

		p, ok := n.toPaper(label, year)
		if !ok {
			continue
		}
		if !MatchesKeywords(keywords, p.Title, p.Abstract, strings.Join(p.Keywords, " ")) {
			skipped++
			continue
		}
		papers = append(papers, p)
	}

	log.WithFields(map[string]any{"fetched": len(notes), "kept": len(papers), "keyword_filtered": skipped}).Info("venue crawled")
	return papers
}

// fetchAll pages through one notes query until a short page.
func (a *OpenReviewAdapter) fetchAll(ctx context.Context, q venueQuery) ([]openReviewNote, error) {
	var all []openReviewNote
	for offset := 0; ; offset += openReviewPageSize {
		params := url.Values{
			q.param:  {q.value},
			"limit":  {strconv.Itoa(openReviewPageSize)},
			"offset": {strconv.Itoa(offset)},
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, openReviewAPIBase+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", a.UserAgent)
		if a.Token != "" {
			req.Header.Set("Authorization", "Bearer "+a.Token)
		}

		resp, err := httputil.DoWithRetry(ctx, a.Client, req, 0)
		if err != nil {
			return nil, fmt.Errorf("OpenReview API request: %w", err)
		}

		var page openReviewResponse
		switch resp.StatusCode {
		case http.StatusOK:
			err = json.NewDecoder(resp.Body).Decode(&page)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("parsing OpenReview response: %w", err)
			}
		case http.StatusForbidden, http.StatusNotFound:
			resp.Body.Close()
			return nil, fmt.Errorf("%s: HTTP %d: %w", q.value, resp.StatusCode, errNotAccessible)
		default:
			resp.Body.Close()
			return nil, fmt.Errorf("OpenReview API returned HTTP %d", resp.StatusCode)
		}

		all = append(all, page.Notes...)
		if len(page.Notes) < openReviewPageSize {
			return all, nil
		}
	}
}

// OpenReview API JSON structures. Content fields are raw because API v1
// stores plain values and API v2 wraps each one as {"value": ...}.
type openReviewResponse struct {
	Notes []openReviewNote `json:"notes"`
	Count int              `json:"count"`
}

type openReviewNote struct {
	ID      string                     `json:"id"`
	Content map[string]json.RawMessage `json:"content"`
}

func (n openReviewNote) toPaper(venue string, year int) (types.Paper, bool) {
	title := cleanSpace(n.contentString("title"))
	abstract := cleanAbstract(n.contentString("abstract"))
	if title == "" || abstract == "" {
		return types.Paper{}, false
	}

	return types.Paper{
		Title:        title,
		Abstract:     abstract,
		Authors:      n.contentStrings("authors"),
		Affiliations: emailDomains(n.contentStrings("authorids")),
		Keywords:     n.contentStrings("keywords"),
		Venue:        venue,
		Year:         year,
		URL:          openReviewForumURL + n.ID,
		Source:       types.SourceOpenReview,
	}, true
}

// contentRaw unwraps an API v2 {"value": x} field, or returns the v1 value as is.
func (n openReviewNote) contentRaw(key string) json.RawMessage {
	raw, ok := n.Content[key]
	if !ok {
		return nil
	}
	var wrapped struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Value != nil {
		return wrapped.Value
	}
	return raw
}

func (n openReviewNote) contentString(key string) string {
	var s string
	if err := json.Unmarshal(n.contentRaw(key), &s); err != nil {
		return ""
	}
	return s
}

func (n openReviewNote) contentStrings(key string) []string {
	raw := n.contentRaw(key)
	if raw == nil {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	// Some venues store keywords as a single comma-separated string.
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}

// emailDomains extracts sorted, unique institution domains from author ids
// that are email addresses. Profile ids like "~Jane_Doe1" carry none.
func emailDomains(authorIDs []string) []string {
	set := make(map[string]bool)
	for _, id := range authorIDs {
		if at := strings.LastIndex(id, "@"); at >= 0 && at < len(id)-1 {
			set[strings.ToLower(id[at+1:])] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// cleanAbstract folds whitespace and reduces HTML markup to its text.
func cleanAbstract(s string) string {
	if strings.Contains(s, "<") && strings.Contains(s, ">") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return cleanSpace(s)
}
