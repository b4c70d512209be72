// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-pipeline CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/internal/secrets"
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the paper-pipeline CLI.
var rootCmd = &cobra.Command{
	Use:   "paper-pipeline",
	Short: "Crawl, deduplicate and screen recent ML papers for a research topic",
	Long: `paper-pipeline turns a free-text research description into a short list of
relevant papers. It crawls conference submissions on OpenReview and preprints
on arXiv, drops preprints with too few citations, removes duplicate titles and
asks an LLM to screen each remaining paper.

Intermediate results are written to the output directory so a run can be
resumed with --skip-crawl or re-reported with --report-only.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Log.Debugf("loaded secrets: %v", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paper-pipeline.yaml or ~/.config/paper-pipeline/paper-pipeline.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "also append log output to this file")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("paper-pipeline")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "paper-pipeline"))
		}
	}

	setDefaults(types.DefaultPipelineConfig())

	viper.SetEnvPrefix("PAPER_PIPELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logger.Log.Infof("using config file %s", viper.ConfigFileUsed())
	}
}

// setDefaults registers every config key so environment variables resolve
// during Unmarshal.
func setDefaults(d types.PipelineConfig) {
	viper.SetDefault("source.timeout", d.Source.Timeout)
	viper.SetDefault("source.user_agent", d.Source.UserAgent)
	viper.SetDefault("source.years", d.Source.Years)
	viper.SetDefault("source.venues", d.Source.Venues)
	viper.SetDefault("source.enable_arxiv", d.Source.EnableArxiv)
	viper.SetDefault("source.arxiv_max_results", d.Source.ArxivMaxResults)
	viper.SetDefault("source.arxiv_categories", d.Source.ArxivCategories)
	viper.SetDefault("source.arxiv_page_delay", d.Source.ArxivPageDelay)
	viper.SetDefault("source.openreview_token", "")

	viper.SetDefault("citation.timeout", d.Citation.Timeout)
	viper.SetDefault("citation.user_agent", d.Citation.UserAgent)
	viper.SetDefault("citation.min_citations", d.Citation.MinCitations)
	viper.SetDefault("citation.provider", d.Citation.Provider)
	viper.SetDefault("citation.openalex_email", "")
	viper.SetDefault("citation.semantic_scholar_api_key", "")
	viper.SetDefault("citation.requests_per_second", d.Citation.RequestsPerSecond)
	viper.SetDefault("citation.batch_size", d.Citation.BatchSize)
	viper.SetDefault("citation.cache_path", d.Citation.CachePath)

	viper.SetDefault("llm.base_url", d.LLM.BaseURL)
	viper.SetDefault("llm.api_key", "")
	viper.SetDefault("llm.model", d.LLM.Model)
	viper.SetDefault("llm.temperature", d.LLM.Temperature)
	viper.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	viper.SetDefault("llm.requests_per_minute", d.LLM.RequestsPerMinute)
	viper.SetDefault("llm.max_retries", d.LLM.MaxRetries)

	viper.SetDefault("filter.concurrency", d.Filter.Concurrency)
	viper.SetDefault("filter.call_timeout", d.Filter.CallTimeout)

	viper.SetDefault("log.level", d.Log.Level)
	viper.SetDefault("log.file", d.Log.File)
	viper.SetDefault("output_dir", d.OutputDir)
	viper.SetDefault("interactive", d.Interactive)
}

// loadConfig reads the merged configuration and fills API keys from
// .secrets/ where config and environment leave them empty.
func loadConfig() (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Normalize(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.LLM.APIKey = secrets.Resolve(loadedSecrets, secrets.LLMAPIKey, cfg.LLM.APIKey)
	cfg.Citation.SemanticScholarAPIKey = secrets.Resolve(loadedSecrets, secrets.SemanticScholarAPIKey, cfg.Citation.SemanticScholarAPIKey)
	cfg.Citation.OpenAlexEmail = secrets.Resolve(loadedSecrets, secrets.OpenAlexEmail, cfg.Citation.OpenAlexEmail)
	cfg.Source.OpenReviewToken = secrets.Resolve(loadedSecrets, secrets.OpenReviewToken, cfg.Source.OpenReviewToken)

	if err := logger.Init(cfg.Log.Level, cfg.Log.File); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
