package types

import (
	"errors"
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paper-pipeline/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SourceConfig holds settings for the crawl stage.
type SourceConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Years is the set of conference years to crawl (default: current and prior year).
	Years []int `json:"years" yaml:"years" mapstructure:"years"`

	// Venues lists the OpenReview conferences to crawl.
	Venues []Venue `json:"venues" yaml:"venues" mapstructure:"venues"`

	// EnableArxiv controls whether the arXiv preprint adapter runs.
	EnableArxiv bool `json:"enable_arxiv" yaml:"enable_arxiv" mapstructure:"enable_arxiv"`

	// ArxivMaxResults caps the number of arXiv entries fetched (default 500).
	ArxivMaxResults int `json:"arxiv_max_results" yaml:"arxiv_max_results" mapstructure:"arxiv_max_results"`

	// ArxivCategories restricts the arXiv query (default cs.CL, cs.LG, cs.AI).
	ArxivCategories []string `json:"arxiv_categories" yaml:"arxiv_categories" mapstructure:"arxiv_categories"`

	// ArxivPageDelay is the pause between arXiv result pages (default 3s).
	ArxivPageDelay time.Duration `json:"arxiv_page_delay" yaml:"arxiv_page_delay" mapstructure:"arxiv_page_delay"`

	// OpenReviewToken is an optional bearer token for non-public venues.
	OpenReviewToken string `json:"openreview_token,omitempty" yaml:"openreview_token,omitempty" mapstructure:"openreview_token"`
}

// CitationConfig holds settings for the citation enricher.
type CitationConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MinCitations is the threshold an arXiv paper must reach to be kept (default 5).
	MinCitations int `json:"min_citations" yaml:"min_citations" mapstructure:"min_citations"`

	// Provider selects the citation source: "semantic_scholar" (default),
	// "openalex", or "both" to ask OpenAlex for what Semantic Scholar misses.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// OpenAlexEmail is sent to OpenAlex for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty" mapstructure:"openalex_email"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty" mapstructure:"semantic_scholar_api_key"`

	// RequestsPerSecond paces provider requests (default 1).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// BatchSize is the number of arXiv ids per batch lookup (default 100).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// CachePath is the SQLite database used to cache citation counts and
	// record runs. Empty disables both.
	CachePath string `json:"cache_path" yaml:"cache_path" mapstructure:"cache_path"`
}

// LLMConfig holds settings for the OpenAI-compatible chat endpoint.
type LLMConfig struct {
	// BaseURL is the API root (e.g. "https://api.siliconflow.cn/v1").
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey is the authentication key for the LLM API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Model is the model identifier (e.g. "deepseek-ai/DeepSeek-V3").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	Temperature float32 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// RequestsPerMinute bounds the call rate across all concurrent calls (0 = unlimited).
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// MaxRetries is the number of retries on rate-limit responses (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// FilterConfig holds settings for the relevance filter.
type FilterConfig struct {
	// Concurrency is the maximum number of in-flight classification calls (default 10).
	Concurrency int `json:"concurrency" yaml:"concurrency" mapstructure:"concurrency"`

	// CallTimeout bounds a single classification call (default 120s).
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout" mapstructure:"call_timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `json:"level" yaml:"level" mapstructure:"level"`
	File  string `json:"file" yaml:"file" mapstructure:"file"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Source   SourceConfig   `json:"source" yaml:"source" mapstructure:"source"`
	Citation CitationConfig `json:"citation" yaml:"citation" mapstructure:"citation"`
	LLM      LLMConfig      `json:"llm" yaml:"llm" mapstructure:"llm"`
	Filter   FilterConfig   `json:"filter" yaml:"filter" mapstructure:"filter"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`

	// OutputDir holds persisted intermediate state and reports.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// Interactive enables confirmation prompts between stages.
	Interactive bool `json:"interactive" yaml:"interactive" mapstructure:"interactive"`
}

const (
	CitationSemanticScholar = "semantic_scholar"
	CitationOpenAlex        = "openalex"
	CitationBoth            = "both"

	DefaultConcurrency  = 10
	DefaultMinCitations = 5
	defaultUserAgent    = "paper-pipeline/0.1"
)

// DefaultYears returns the current and prior calendar year.
func DefaultYears(now time.Time) []int {
	return []int{now.Year() - 1, now.Year()}
}

// DefaultPipelineConfig returns the configuration used when nothing is overridden.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Source: SourceConfig{
			HTTPConfig:      HTTPConfig{Timeout: 60 * time.Second, UserAgent: defaultUserAgent},
			Years:           DefaultYears(time.Now()),
			Venues:          append([]Venue(nil), AllVenues...),
			EnableArxiv:     true,
			ArxivMaxResults: 500,
			ArxivCategories: []string{"cs.CL", "cs.LG", "cs.AI"},
			ArxivPageDelay:  3 * time.Second,
		},
		Citation: CitationConfig{
			HTTPConfig:        HTTPConfig{Timeout: 30 * time.Second, UserAgent: defaultUserAgent},
			Provider:          CitationSemanticScholar,
			MinCitations:      DefaultMinCitations,
			RequestsPerSecond: 1,
			BatchSize:         100,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.siliconflow.cn/v1",
			Model:       "deepseek-ai/DeepSeek-V3",
			Temperature: 0.1,
			MaxTokens:   4096,
			MaxRetries:  3,
		},
		Filter: FilterConfig{
			Concurrency: DefaultConcurrency,
			CallTimeout: 120 * time.Second,
		},
		Log:         LogConfig{Level: "info"},
		OutputDir:   "output",
		Interactive: true,
	}
}

// Normalize rewrites venue tags read from a config file or the environment
// into their canonical form, so "iclr" and "nips" become ICLR and NEURIPS.
// An unsupported tag is an error.
func (c *PipelineConfig) Normalize() error {
	tags := make([]string, len(c.Source.Venues))
	for i, v := range c.Source.Venues {
		tags[i] = string(v)
	}
	venues, err := ParseVenues(tags)
	if err != nil {
		return err
	}
	c.Source.Venues = venues
	return nil
}

// Validate reports every configuration problem at once.
func (c PipelineConfig) Validate() error {
	var errs []error
	if len(c.Source.Years) == 0 {
		errs = append(errs, errors.New("at least one year is required"))
	}
	for _, y := range c.Source.Years {
		if y <= 0 {
			errs = append(errs, fmt.Errorf("invalid year %d", y))
		}
	}
	for _, v := range c.Source.Venues {
		if _, err := ParseVenue(string(v)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(c.Source.Venues) == 0 && !c.Source.EnableArxiv {
		errs = append(errs, errors.New("no sources enabled: configure venues or enable arXiv"))
	}
	if c.Filter.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Filter.Concurrency))
	}
	switch c.Citation.Provider {
	case "", CitationSemanticScholar, CitationOpenAlex, CitationBoth:
	default:
		errs = append(errs, fmt.Errorf("unknown citation provider %q", c.Citation.Provider))
	}
	if c.Citation.MinCitations < 0 {
		errs = append(errs, fmt.Errorf("min citations must not be negative, got %d", c.Citation.MinCitations))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	return errors.Join(errs...)
}
