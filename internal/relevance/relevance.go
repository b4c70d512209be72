// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevance classifies candidate papers against a research topic
// with an LLM. Calls run concurrently behind a fixed admission gate and each
// result lands in its input position, so output order always equals input
// order. A failed call marks only its own paper.
//
// With a non-deterministic model, rerunning the filter on the same input can
// change verdicts. Runs are reproducible only with a deterministic
// Classifier.
package relevance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// Classifier sends a fully rendered prompt to a model and returns its raw reply.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

const (
	defaultCallTimeout = 120 * time.Second
	maxReasonRunes     = 200
)

// Filter runs the relevance stage.
type Filter struct {
	Classifier Classifier

	// Template is the prompt with {title} and {abstract} placeholders.
	// Empty uses DefaultTemplate.
	Template string

	// Concurrency bounds in-flight calls (default 10).
	Concurrency int

	// CallTimeout bounds one call (default 120s).
	CallTimeout time.Duration
}

// Summary counts verdicts in a filtered set.
type Summary struct {
	Accepted int
	Rejected int
	Errors   int
	Unset    int
}

// Run classifies every paper whose verdict is unset and returns annotated
// copies in input order. Papers that already carry a verdict pass through
// untouched. Errors never escape: a failed, timed out or unparseable call
// marks its paper VerdictError with the cause as the reason. Cancelling ctx
// stops admission; papers not yet admitted are marked with the context error.
func (f *Filter) Run(ctx context.Context, papers []types.Paper) []types.Paper {
	out := types.ClonePapers(papers)

	limit := f.Concurrency
	if limit < 1 {
		limit = types.DefaultConcurrency
	}
	sem := semaphore.NewWeighted(int64(limit))

	log := logger.Log.WithField("stage", "filter")
	log.WithFields(map[string]any{"papers": len(out), "concurrency": limit}).Info("classifying papers")

	var wg sync.WaitGroup
	for i := range out {
		if out[i].Verdict != types.VerdictUnset {
			log.WithField("title", out[i].Title).Debugf("verdict already %q; leaving it", out[i].Verdict)
			continue
		}
		wg.Add(1)
		go func(p *types.Paper) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				markError(p, fmt.Errorf("not admitted: %w", err))
				return
			}
			defer sem.Release(1)
			f.classify(ctx, p)
		}(&out[i])
	}
	wg.Wait()

	s := Summarize(out)
	log.WithFields(map[string]any{"accepted": s.Accepted, "rejected": s.Rejected, "errors": s.Errors}).Info("classification finished")
	return out
}

func (f *Filter) classify(ctx context.Context, p *types.Paper) {
	timeout := f.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	template := f.Template
	if template == "" {
		template = DefaultTemplate
	}

	reply, err := f.Classifier.Classify(cctx, Render(template, *p))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("call timed out after %s: %w", timeout, err)
		}
		logger.Log.WithField("title", p.Title).Warnf("classification failed: %v", err)
		markError(p, err)
		return
	}

	d, err := ParseResponse(reply)
	if err != nil {
		logger.Log.WithField("title", p.Title).Warnf("unparseable classification: %v", err)
		markError(p, err)
		return
	}
	p.Verdict = d.Verdict
	p.Reason = d.Reason
	p.TranslatedSummary = d.Summary
}

func markError(p *types.Paper, err error) {
	p.Verdict = types.VerdictError
	p.Reason = err.Error()
}

// Render fills the title and abstract placeholders of template. Both the
// single-brace and the double-brace forms are recognized.
func Render(template string, p types.Paper) string {
	r := strings.NewReplacer(
		"{{title}}", p.Title,
		"{{abstract}}", p.Abstract,
		"{title}", p.Title,
		"{abstract}", p.Abstract,
	)
	return r.Replace(template)
}

// Accepted returns the accepted papers in order.
func Accepted(papers []types.Paper) []types.Paper {
	var out []types.Paper
	for _, p := range papers {
		if p.Verdict == types.VerdictAccepted {
			out = append(out, p)
		}
	}
	return out
}

// Summarize counts the verdicts in papers.
func Summarize(papers []types.Paper) Summary {
	var s Summary
	for _, p := range papers {
		switch p.Verdict {
		case types.VerdictAccepted:
			s.Accepted++
		case types.VerdictRejected:
			s.Rejected++
		case types.VerdictError:
			s.Errors++
		default:
			s.Unset++
		}
	}
	return s
}

// DefaultTemplate is used when no generated prompt is available.
const DefaultTemplate = `You are a rigorous research assistant. Given the title and abstract of a paper, decide whether it is closely related to the research topic.

A paper is relevant only if it substantively addresses the topic, not if it merely mentions the terms.

Answer strictly in the format below, with nothing else:

<is_relevant>
true or false
</is_relevant>

<reason>
If true, one or two sentences explaining why. If false, leave empty.
</reason>

<translation>
If true, a translation of the abstract into the reader's language. If false, leave empty.
</translation>

Title: {title}

Abstract: {abstract}
`
