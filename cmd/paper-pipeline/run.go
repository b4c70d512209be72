// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-pipeline/internal/citation"
	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/internal/pipeline"
	"github.com/pdiddy/paper-pipeline/internal/prompt"
	"github.com/pdiddy/paper-pipeline/internal/relevance"
	"github.com/pdiddy/paper-pipeline/internal/source"
	"github.com/pdiddy/paper-pipeline/internal/store"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// reportFile is the JSON report written next to the state files.
const reportFile = "papers.json"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl, filter and report papers for a research description",
	Long: `Run executes the pipeline. Without keywords, the research description is
sent to the LLM to generate search keywords and a screening prompt.

Stages:
  crawl    query OpenReview venues and arXiv, enrich preprints with citation
           counts, drop duplicates; writes <output-dir>/candidates.yaml
  filter   ask the LLM whether each candidate is relevant; writes
           <output-dir>/filtered.yaml
  report   print accepted papers and write <output-dir>/papers.json

--skip-crawl resumes from candidates.yaml, --report-only from filtered.yaml.`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringP("description", "d", "", "research description used to generate keywords and the screening prompt")
	runCmd.Flags().String("keywords", "", "search keywords (comma-separated); skips keyword generation")
	runCmd.Flags().IntSlice("years", nil, "conference years to crawl (default: current and prior year)")
	runCmd.Flags().StringSlice("venues", nil, "venues to crawl: ICLR, ICML, NEURIPS, ACL (default: all)")
	runCmd.Flags().Bool("no-arxiv", false, "do not crawl arXiv preprints")
	runCmd.Flags().Bool("skip-crawl", false, "resume from the persisted candidate set")
	runCmd.Flags().Bool("skip-filter", false, "report crawled candidates without relevance screening")
	runCmd.Flags().Bool("report-only", false, "report the persisted filtered set")
	runCmd.Flags().Bool("no-interactive", false, "do not ask for confirmation between stages")
	runCmd.Flags().Bool("all", false, "print rejected papers too")
	runCmd.Flags().Int("concurrency", types.DefaultConcurrency, "maximum concurrent LLM calls")
	runCmd.Flags().Int("min-citations", types.DefaultMinCitations, "minimum citations for arXiv preprints")
	runCmd.Flags().String("output-dir", "output", "directory for state files and reports")
	runCmd.Flags().String("cache", "", "SQLite database for cached citation counts and the run ledger")

	viper.BindPFlag("filter.concurrency", runCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("citation.min_citations", runCmd.Flags().Lookup("min-citations"))
	viper.BindPFlag("output_dir", runCmd.Flags().Lookup("output-dir"))
	viper.BindPFlag("citation.cache_path", runCmd.Flags().Lookup("cache"))

	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	entry, err := entryFromFlags(cmd)
	if err != nil {
		return err
	}
	skipFilter, _ := cmd.Flags().GetBool("skip-filter")
	showAll, _ := cmd.Flags().GetBool("all")
	description, _ := cmd.Flags().GetString("description")
	keywordFlag, _ := cmd.Flags().GetString("keywords")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	needLLM := entry != pipeline.EntryReportOnly && (!skipFilter || (entry == pipeline.EntryFull && keywordFlag == ""))
	if needLLM && cfg.LLM.APIKey == "" {
		return errors.New("no LLM API key: set llm.api_key, PAPER_PIPELINE_LLM_API_KEY or .secrets/llm-api-key")
	}

	opts := pipeline.Options{
		Entry:        entry,
		Description:  description,
		Keywords:     prompt.SplitKeywords(keywordFlag),
		Years:        cfg.Source.Years,
		Venues:       cfg.Source.Venues,
		MinCitations: cfg.Citation.MinCitations,
		SkipFilter:   skipFilter,
	}

	p := &pipeline.Pipeline{
		Filter:    cfg.Filter,
		OutputDir: cfg.OutputDir,
		Out:       os.Stderr,
		Reporters: []pipeline.Reporter{
			&pipeline.TableReporter{W: os.Stdout, All: showAll},
			&pipeline.JSONReporter{Path: filepath.Join(cfg.OutputDir, reportFile)},
		},
	}

	if cfg.Citation.CachePath != "" {
		db, err := store.Open(cfg.Citation.CachePath)
		if err != nil {
			return err
		}
		defer db.Close()
		p.Ledger = db
		p.Enricher = &citation.Enricher{Provider: citation.NewProvider(cfg.Citation), Cache: db}
	} else {
		p.Enricher = &citation.Enricher{Provider: citation.NewProvider(cfg.Citation)}
	}

	if needLLM {
		cls, err := relevance.NewEinoClassifier(ctx, cfg.LLM)
		if err != nil {
			return err
		}
		p.Classifier = cls

		if entry == pipeline.EntryFull {
			if err := prepareQuery(ctx, cls, description, &opts); err != nil {
				return err
			}
		}
	}

	if entry == pipeline.EntryFull {
		if len(opts.Keywords) == 0 {
			return errors.New("no search keywords: pass --keywords or a --description to generate them")
		}
		fmt.Fprintf(os.Stderr, "keywords: %s\n", strings.Join(opts.Keywords, ", "))
		p.Adapters = buildAdapters(cfg.Source)
	}

	if cfg.Interactive && entry != pipeline.EntryReportOnly && !skipFilter {
		p.Confirm = confirmPrompt(os.Stdin, os.Stderr)
	}

	summary, err := p.Run(ctx, opts)
	if summary.RunID != "" {
		logger.Log.WithField("run", summary.RunID).Infof("run finished in state %s", summary.Stage)
	}
	return err
}

// applyRunFlags overlays flags that viper does not bind.
func applyRunFlags(cmd *cobra.Command, cfg *types.PipelineConfig) error {
	if cmd.Flags().Changed("years") {
		cfg.Source.Years, _ = cmd.Flags().GetIntSlice("years")
	}
	if cmd.Flags().Changed("venues") {
		tags, _ := cmd.Flags().GetStringSlice("venues")
		venues, err := types.ParseVenues(tags)
		if err != nil {
			return err
		}
		cfg.Source.Venues = venues
	}
	if noArxiv, _ := cmd.Flags().GetBool("no-arxiv"); noArxiv {
		cfg.Source.EnableArxiv = false
	}
	if noInteractive, _ := cmd.Flags().GetBool("no-interactive"); noInteractive {
		cfg.Interactive = false
	}
	return nil
}

func entryFromFlags(cmd *cobra.Command) (pipeline.Entry, error) {
	skipCrawl, _ := cmd.Flags().GetBool("skip-crawl")
	reportOnly, _ := cmd.Flags().GetBool("report-only")
	switch {
	case skipCrawl && reportOnly:
		return "", errors.New("--skip-crawl and --report-only are mutually exclusive")
	case reportOnly:
		return pipeline.EntryReportOnly, nil
	case skipCrawl:
		return pipeline.EntrySkipCrawl, nil
	}
	return pipeline.EntryFull, nil
}

// prepareQuery fills in keywords and the screening prompt from the
// description. Keywords given on the command line take precedence over
// generated ones.
func prepareQuery(ctx context.Context, cls *relevance.EinoClassifier, description string, opts *pipeline.Options) error {
	if strings.TrimSpace(description) == "" {
		if len(opts.Keywords) == 0 {
			return errors.New("a --description or --keywords is required")
		}
		return nil
	}

	gen := &prompt.Generator{Completer: &prompt.EinoCompleter{
		Model:      cls.Model,
		Limiter:    cls.Limiter,
		MaxRetries: cls.MaxRetries,
	}}
	fmt.Fprintln(os.Stderr, "generating keywords and screening prompt...")
	out, err := gen.Generate(ctx, description)
	if err != nil {
		return fmt.Errorf("generating keywords: %w", err)
	}
	if len(opts.Keywords) == 0 {
		opts.Keywords = out.Keywords
	}
	opts.Prompt = out.Prompt
	return nil
}

func buildAdapters(cfg types.SourceConfig) []source.Adapter {
	var adapters []source.Adapter
	if len(cfg.Venues) > 0 {
		adapters = append(adapters, &source.OpenReviewAdapter{
			Client:    &http.Client{Timeout: cfg.Timeout},
			UserAgent: cfg.UserAgent,
			Token:     cfg.OpenReviewToken,
		})
	}
	if cfg.EnableArxiv {
		adapters = append(adapters, &source.ArxivAdapter{
			Client:     &http.Client{Timeout: cfg.Timeout},
			UserAgent:  cfg.UserAgent,
			MaxResults: cfg.ArxivMaxResults,
			Categories: cfg.ArxivCategories,
			PageDelay:  cfg.ArxivPageDelay,
		})
	}
	return adapters
}

// confirmPrompt asks on w whether to continue to the filter stage. Anything
// but an explicit "n" continues.
func confirmPrompt(r io.Reader, w io.Writer) func(pipeline.Summary) bool {
	in := bufio.NewReader(r)
	return func(s pipeline.Summary) bool {
		fmt.Fprintf(w, "Screen %d candidates with the LLM? [Y/n] ", s.Candidates)
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return true
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer != "n" && answer != "no"
	}
}
