// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-pipeline/internal/aggregate"
	"github.com/pdiddy/paper-pipeline/internal/httputil"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

func withSemanticServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(h)
	old := semanticAPIBase
	semanticAPIBase = ts.URL
	t.Cleanup(func() {
		semanticAPIBase = old
		ts.Close()
	})
	return ts
}

func TestSemanticBatchLookup(t *testing.T) {
	var (
		mu      sync.Mutex
		batches [][]string
	)
	ts := withSemanticServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/paper/batch", r.URL.Path)
		assert.Equal(t, "citationCount,externalIds", r.URL.Query().Get("fields"))
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))

		var body struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		batches = append(batches, body.IDs)
		mu.Unlock()

		// Positional answers; the second id is unknown.
		var entries []string
		for i, id := range body.IDs {
			if i == 1 {
				entries = append(entries, "null")
				continue
			}
			entries = append(entries, fmt.Sprintf(`{"paperId":"p%d","citationCount":%d,"externalIds":{"ArXiv":%q}}`, i, 10+i, id[len("ARXIV:"):]))
		}
		fmt.Fprintf(w, "[%s]", strings.Join(entries, ","))
	})

	p := &SemanticScholarProvider{Client: ts.Client(), APIKey: "secret", BatchSize: 2}
	counts, err := p.Lookup(context.Background(), []Query{
		{ArxivID: "a1"}, {ArxivID: "a2"}, {ArxivID: "a3"},
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"ARXIV:a1", "ARXIV:a2"}, {"ARXIV:a3"}}, batches)
	assert.Equal(t, map[string]int{"ARXIV:a1": 10, "ARXIV:a3": 10}, counts)
}

func TestSemanticNullCitationCountStaysUnknown(t *testing.T) {
	ts := withSemanticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[{"paperId":"p","citationCount":null,"externalIds":{"ArXiv":"x"}},`+
			`{"paperId":"q","citationCount":0,"externalIds":{"ArXiv":"y"}}]`)
	})

	p := &SemanticScholarProvider{Client: ts.Client()}
	counts, err := p.Lookup(context.Background(), []Query{{ArxivID: "x"}, {ArxivID: "y"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ARXIV:y": 0}, counts)
}

func TestSemanticNullCitationCountFailsZeroThreshold(t *testing.T) {
	ts := withSemanticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[{"paperId":"p","citationCount":null,"externalIds":{"ArXiv":"x"}}]`)
	})

	e := &Enricher{Provider: &SemanticScholarProvider{Client: ts.Client()}}
	out, _ := e.Enrich(context.Background(), []types.Paper{{Title: "t", Source: types.SourceArxiv, ArxivID: "x"}})
	require.Len(t, out, 1)
	assert.False(t, out[0].HasCitations())
	assert.False(t, aggregate.PassesThreshold(out[0], 0))
}

func TestSemanticBatchFailureContinues(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	ts := withSemanticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"citationCount":5,"externalIds":{"ArXiv":"b"}}]`)
	})

	p := &SemanticScholarProvider{Client: ts.Client(), BatchSize: 1}
	counts, err := p.Lookup(context.Background(), []Query{{ArxivID: "a"}, {ArxivID: "b"}})
	assert.Error(t, err)
	assert.Equal(t, map[string]int{"ARXIV:b": 5}, counts)
}

func TestSemanticRetriesThrottledBatch(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	ts := withSemanticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[{"citationCount":42,"externalIds":{"ArXiv":"a"}}]`)
	})

	p := &SemanticScholarProvider{Client: ts.Client()}
	counts, err := p.Lookup(context.Background(), []Query{{ArxivID: "a"}})
	require.NoError(t, err)
	assert.Equal(t, 42, counts["ARXIV:a"])
}

func TestSemanticTitleMatch(t *testing.T) {
	ts := withSemanticServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/paper/search/match", r.URL.Path)
		switch r.URL.Query().Get("query") {
		case "Exact Title":
			fmt.Fprint(w, `{"data":[{"paperId":"p","title":"exact  title","citationCount":17}]}`)
		case "Near Title":
			fmt.Fprint(w, `{"data":[{"paperId":"q","title":"A Different Paper","citationCount":900}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	p := &SemanticScholarProvider{Client: ts.Client()}
	qs := []Query{{Title: "Exact Title"}, {Title: "Near Title"}, {Title: "Unknown"}}
	counts, err := p.Lookup(context.Background(), qs)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{qs[0].Key(): 17}, counts)
}

func TestSemanticPacing(t *testing.T) {
	ts := withSemanticServer(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[null]`)
	})

	p := &SemanticScholarProvider{
		Client:    ts.Client(),
		BatchSize: 1,
		Limiter:   rate.NewLimiter(rate.Every(40*time.Millisecond), 1),
	}
	start := time.Now()
	_, err := p.Lookup(context.Background(), []Query{{ArxivID: "a"}, {ArxivID: "b"}, {ArxivID: "c"}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestNewSemanticScholarProvider(t *testing.T) {
	cfg := types.DefaultPipelineConfig().Citation
	cfg.SemanticScholarAPIKey = "k"
	p := NewSemanticScholarProvider(cfg)
	assert.Equal(t, "k", p.APIKey)
	assert.Equal(t, 100, p.BatchSize)
	require.NotNil(t, p.Limiter)
	assert.Equal(t, rate.Limit(1), p.Limiter.Limit())

	cfg.RequestsPerSecond = 0
	assert.Nil(t, NewSemanticScholarProvider(cfg).Limiter)
}
