// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-pipeline/internal/prompt"
	"github.com/pdiddy/paper-pipeline/internal/relevance"
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords [description]",
	Short: "Generate search keywords and a screening prompt from a description",
	Long: `Keywords asks the LLM to turn a research description into search keywords
and a relevance screening prompt, and prints both without crawling. Use it to
check what a run would search for before starting one.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runKeywords,
}

func init() {
	keywordsCmd.Flags().StringP("description", "d", "", "research description")
	rootCmd.AddCommand(keywordsCmd)
}

func runKeywords(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	description, _ := cmd.Flags().GetString("description")
	if description == "" && len(args) == 1 {
		description = args[0]
	}
	if cfg.LLM.APIKey == "" {
		return errors.New("no LLM API key: set llm.api_key, PAPER_PIPELINE_LLM_API_KEY or .secrets/llm-api-key")
	}

	ctx := context.Background()
	cm, err := relevance.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	gen := &prompt.Generator{Completer: &prompt.EinoCompleter{
		Model:      cm,
		Limiter:    relevance.NewLimiter(cfg.LLM.RequestsPerMinute),
		MaxRetries: cfg.LLM.MaxRetries,
	}}

	out, err := gen.Generate(ctx, description)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Keywords: %s\n\n", strings.Join(out.Keywords, ", "))
	if out.DefaultPrompt {
		fmt.Fprintln(os.Stdout, "Prompt (default template):")
	} else {
		fmt.Fprintln(os.Stdout, "Prompt:")
	}
	fmt.Fprintln(os.Stdout, out.Prompt)
	return nil
}
