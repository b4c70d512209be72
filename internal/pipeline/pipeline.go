// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline sequences the stages of a run: crawl, citation
// enrichment, aggregation, relevance filtering and reporting. Each stage
// boundary persists its paper set so a later run can resume from it.
//
// A run moves through NotStarted, Crawled, Filtered and Reported. The
// SkipCrawl entry point starts at Crawled from the persisted candidate set;
// ReportOnly starts at Filtered from the persisted filtered set and only
// reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/pdiddy/paper-pipeline/internal/aggregate"
	"github.com/pdiddy/paper-pipeline/internal/citation"
	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/internal/relevance"
	"github.com/pdiddy/paper-pipeline/internal/source"
	"github.com/pdiddy/paper-pipeline/internal/state"
	"github.com/pdiddy/paper-pipeline/internal/store"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// Stage is the pipeline state.
type Stage string

const (
	StageNotStarted Stage = "not_started"
	StageCrawled    Stage = "crawled"
	StageFiltered   Stage = "filtered"
	StageReported   Stage = "reported"
)

// Entry selects where a run starts.
type Entry string

const (
	EntryFull       Entry = "full"
	EntrySkipCrawl  Entry = "skip_crawl"
	EntryReportOnly Entry = "report_only"
)

var (
	// ErrNoCandidates means SkipCrawl found no persisted candidate set.
	ErrNoCandidates = errors.New("no persisted candidate set; run a crawl first")
	// ErrNoFiltered means ReportOnly found no persisted filtered set.
	ErrNoFiltered = errors.New("no persisted filtered set; run the filter first")
	// ErrNoKeywords means a crawl was requested without keywords.
	ErrNoKeywords = errors.New("no search keywords")
	// ErrEmptyCrawl means every source came back empty.
	ErrEmptyCrawl = errors.New("crawl produced no papers")
)

// Enricher annotates papers with citation counts.
type Enricher interface {
	Enrich(ctx context.Context, papers []types.Paper) ([]types.Paper, citation.EnrichSummary)
}

// Ledger records runs.
type Ledger interface {
	StartRun(ctx context.Context, entry, description, state string) (store.Run, error)
	FinishRun(ctx context.Context, run store.Run) error
}

// Reporter consumes the final paper sequence.
type Reporter interface {
	Name() string
	Report(papers []types.Paper, s Summary) error
}

// Options are the per-run inputs.
type Options struct {
	Entry       Entry
	Description string
	Keywords    []string
	// Prompt is the relevance template. Empty falls back to the one stored
	// with the candidate set, then to relevance.DefaultTemplate.
	Prompt       string
	Years        []int
	Venues       []types.Venue
	MinCitations int
	// SkipFilter passes the candidate set through with verdicts unset.
	SkipFilter bool
}

// Summary describes a finished or stopped run.
type Summary struct {
	RunID          string
	Entry          Entry
	Stage          Stage
	Keywords       []string
	Candidates     int
	Accepted       int
	Rejected       int
	Errors         int
	DupsRemoved    int
	BelowThreshold int
	// Exhausted names sources that returned nothing.
	Exhausted []string
}

// Pipeline wires the stages. Only Adapters and OutputDir are needed for a
// crawl; Classifier is needed unless SkipFilter is set.
type Pipeline struct {
	Adapters   []source.Adapter
	Enricher   Enricher
	Classifier relevance.Classifier
	Filter     types.FilterConfig
	Reporters  []Reporter
	Ledger     Ledger

	// Confirm is called after the candidate set is persisted. Returning
	// false stops the run at Crawled.
	Confirm func(Summary) bool

	OutputDir string
	// Out receives progress lines. Nil discards them.
	Out io.Writer

	now func() time.Time
}

// CandidatesPath returns the location of the persisted candidate set.
func (p *Pipeline) CandidatesPath() string {
	return filepath.Join(p.OutputDir, state.CandidatesFile)
}

// FilteredPath returns the location of the persisted filtered set.
func (p *Pipeline) FilteredPath() string {
	return filepath.Join(p.OutputDir, state.FilteredFile)
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

func (p *Pipeline) out() io.Writer {
	if p.Out == nil {
		return io.Discard
	}
	return p.Out
}

// Run executes one run from opts.Entry. Configuration and entry-point errors
// are returned before any stage has side effects; failures inside a stage
// are isolated by that stage and never abort the run.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Entry == "" {
		opts.Entry = EntryFull
	}
	s := Summary{Entry: opts.Entry, Stage: StageNotStarted, Keywords: opts.Keywords}

	switch opts.Entry {
	case EntryFull:
		if len(opts.Keywords) == 0 {
			return s, ErrNoKeywords
		}
	case EntrySkipCrawl, EntryReportOnly:
	default:
		return s, fmt.Errorf("unknown entry point %q", opts.Entry)
	}
	if opts.Entry != EntryReportOnly && !opts.SkipFilter && p.Classifier == nil {
		return s, errors.New("no classifier configured")
	}

	run := p.startRun(ctx, opts)
	s.RunID = run.ID

	err := p.run(ctx, opts, &s)

	p.finishRun(ctx, run, s, err)
	return s, err
}

func (p *Pipeline) run(ctx context.Context, opts Options, s *Summary) error {
	w := p.out()

	var (
		candidates []types.Paper
		filtered   []types.Paper
		prompt     = opts.Prompt
	)

	switch opts.Entry {
	case EntryFull:
		var err error
		candidates, err = p.crawl(ctx, opts, s)
		if err != nil {
			return err
		}
		if err := p.persist(p.CandidatesPath(), state.StageCrawled, opts, prompt, candidates, *s); err != nil {
			return err
		}
		s.Stage = StageCrawled
		fmt.Fprintf(w, "crawled %d candidates (%d duplicates removed, %d below citation threshold)\n",
			s.Candidates, s.DupsRemoved, s.BelowThreshold)

	case EntrySkipCrawl:
		f, err := state.Read(p.CandidatesPath())
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("%s: %w", p.CandidatesPath(), ErrNoCandidates)
			}
			return err
		}
		res := aggregate.Aggregate([][]types.Paper{f.Papers}, aggregate.Options{MinCitations: opts.MinCitations})
		candidates = res.Papers
		s.Candidates = len(candidates)
		s.DupsRemoved = f.Summary.DupsRemoved + res.DupsRemoved
		s.BelowThreshold = f.Summary.BelowThreshold + res.BelowThreshold
		s.Exhausted = f.Summary.Exhausted
		if len(s.Keywords) == 0 {
			s.Keywords = f.Keywords
		}
		if opts.Description == "" {
			opts.Description = f.Description
		}
		if prompt == "" {
			prompt = f.Prompt
		}
		s.Stage = StageCrawled
		fmt.Fprintf(w, "loaded %d candidates from %s\n", s.Candidates, p.CandidatesPath())

	case EntryReportOnly:
		f, err := state.Read(p.FilteredPath())
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				return fmt.Errorf("%s: %w", p.FilteredPath(), ErrNoFiltered)
			}
			return err
		}
		filtered = f.Papers
		s.Keywords = f.Keywords
		s.Candidates = f.Summary.Total
		s.DupsRemoved = f.Summary.DupsRemoved
		s.BelowThreshold = f.Summary.BelowThreshold
		s.Exhausted = f.Summary.Exhausted
		countVerdicts(s, filtered)
		s.Stage = StageFiltered
		fmt.Fprintf(w, "loaded %d filtered papers from %s\n", len(filtered), p.FilteredPath())
	}

	if opts.Entry != EntryReportOnly {
		if p.Confirm != nil && !p.Confirm(*s) {
			fmt.Fprintln(w, "stopped after crawl; resume with --skip-crawl")
			return nil
		}

		if opts.SkipFilter {
			filtered = candidates
			fmt.Fprintln(w, "relevance filter skipped")
		} else {
			f := &relevance.Filter{
				Classifier:  p.Classifier,
				Template:    prompt,
				Concurrency: p.Filter.Concurrency,
				CallTimeout: p.Filter.CallTimeout,
			}
			filtered = f.Run(ctx, candidates)
		}
		countVerdicts(s, filtered)

		if err := p.persist(p.FilteredPath(), state.StageFiltered, opts, prompt, filtered, *s); err != nil {
			return err
		}
		s.Stage = StageFiltered
		fmt.Fprintf(w, "filtered: %d accepted, %d rejected, %d errors\n", s.Accepted, s.Rejected, s.Errors)
	}

	var errs []error
	for _, r := range p.Reporters {
		if err := r.Report(filtered, *s); err != nil {
			errs = append(errs, fmt.Errorf("%s report: %w", r.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.Stage = StageReported
	return nil
}

// crawl runs the adapters, enriches preprint streams and aggregates.
func (p *Pipeline) crawl(ctx context.Context, opts Options, s *Summary) ([]types.Paper, error) {
	req := source.Request{Keywords: opts.Keywords, Years: opts.Years, Venues: opts.Venues}
	crawled := source.Crawl(ctx, p.Adapters, req)
	s.Exhausted = crawled.Exhausted

	streams := crawled.Papers()
	if p.Enricher != nil {
		for i, stream := range streams {
			if hasPreprints(stream) {
				streams[i], _ = p.Enricher.Enrich(ctx, stream)
			}
		}
	}

	res := aggregate.Aggregate(streams, aggregate.Options{MinCitations: opts.MinCitations})
	s.Candidates = len(res.Papers)
	s.DupsRemoved = res.DupsRemoved
	s.BelowThreshold = res.BelowThreshold

	if len(s.Exhausted) > 0 {
		logger.Log.WithField("sources", s.Exhausted).Warn("some sources returned nothing; results may be incomplete")
	}
	if len(res.Papers) == 0 {
		return nil, fmt.Errorf("%w (%d crawled, %d below citation threshold)", ErrEmptyCrawl, crawled.Total(), res.BelowThreshold)
	}
	return res.Papers, nil
}

func hasPreprints(papers []types.Paper) bool {
	for _, p := range papers {
		if p.Source == types.SourceArxiv {
			return true
		}
	}
	return false
}

func countVerdicts(s *Summary, papers []types.Paper) {
	v := relevance.Summarize(papers)
	s.Accepted, s.Rejected, s.Errors = v.Accepted, v.Rejected, v.Errors
}

func (p *Pipeline) persist(path string, stage state.Stage, opts Options, prompt string, papers []types.Paper, s Summary) error {
	f := &state.File{
		Stage:       stage,
		Description: opts.Description,
		Keywords:    s.Keywords,
		Prompt:      prompt,
		Papers:      papers,
		Summary: state.Summary{
			Total:          s.Candidates,
			Accepted:       s.Accepted,
			DupsRemoved:    s.DupsRemoved,
			BelowThreshold: s.BelowThreshold,
			Exhausted:      s.Exhausted,
			Timestamp:      p.clock().UTC(),
		},
	}
	if err := state.Write(path, f); err != nil {
		return fmt.Errorf("persisting %s set: %w", stage, err)
	}
	logger.Log.WithField("path", path).Debug("state persisted")
	return nil
}

func (p *Pipeline) startRun(ctx context.Context, opts Options) store.Run {
	if p.Ledger == nil {
		return store.Run{}
	}
	run, err := p.Ledger.StartRun(ctx, string(opts.Entry), opts.Description, string(StageNotStarted))
	if err != nil {
		logger.Log.Warnf("run ledger unavailable: %v", err)
		return store.Run{}
	}
	return run
}

func (p *Pipeline) finishRun(ctx context.Context, run store.Run, s Summary, runErr error) {
	if p.Ledger == nil || run.ID == "" {
		return
	}
	run.State = string(s.Stage)
	run.Candidates = s.Candidates
	run.Accepted = s.Accepted
	run.Exhausted = s.Exhausted
	if runErr != nil {
		run.Error = runErr.Error()
	}
	// Close the ledger entry even when ctx is cancelled.
	if err := p.Ledger.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Log.Warnf("recording run %s: %v", run.ID, err)
	}
}
