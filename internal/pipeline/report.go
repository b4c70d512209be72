// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// TableReporter prints a fixed-width table of papers.
type TableReporter struct {
	W io.Writer
	// All prints every paper. By default only accepted papers are shown
	// when the set carries verdicts.
	All bool
}

// Name returns the reporter identifier.
func (r *TableReporter) Name() string { return "table" }

// Report writes the table and a summary line.
func (r *TableReporter) Report(papers []types.Paper, s Summary) error {
	rows := papers
	if !r.All && hasVerdicts(papers) {
		rows = nil
		for _, p := range papers {
			if p.Verdict == types.VerdictAccepted {
				rows = append(rows, p)
			}
		}
	}

	if len(rows) == 0 {
		fmt.Fprintln(r.W, "No papers to report.")
	} else {
		fmt.Fprintf(r.W, "%-4s  %-60s  %-20s  %-12s  %-5s  %s\n",
			"#", "Title", "Authors", "Venue", "Cites", "Verdict")
		fmt.Fprintln(r.W, strings.Repeat("-", 116))
		for i, p := range rows {
			cites := "-"
			if p.HasCitations() {
				cites = fmt.Sprintf("%d", *p.CitationCount)
			}
			verdict := string(p.Verdict)
			if verdict == "" {
				verdict = "-"
			}
			fmt.Fprintf(r.W, "%-4d  %-60s  %-20s  %-12s  %-5s  %s\n",
				i+1, truncate(p.Title, 60), formatAuthors(p.Authors), truncate(p.Venue, 12), cites, verdict)
		}
	}

	fmt.Fprintf(r.W, "\n%d candidates, %d accepted", s.Candidates, s.Accepted)
	if s.Errors > 0 {
		fmt.Fprintf(r.W, ", %d errors", s.Errors)
	}
	if s.DupsRemoved > 0 {
		fmt.Fprintf(r.W, " (%d duplicates removed)", s.DupsRemoved)
	}
	fmt.Fprintln(r.W)
	if len(s.Exhausted) > 0 {
		fmt.Fprintf(r.W, "warning: no results from %s; the result set may be incomplete\n", strings.Join(s.Exhausted, ", "))
	}
	return nil
}

// JSONReporter writes the full paper sequence as indented JSON to Path.
type JSONReporter struct {
	Path string
}

// Name returns the reporter identifier.
func (r *JSONReporter) Name() string { return "json" }

// Report writes the file.
func (r *JSONReporter) Report(papers []types.Paper, _ Summary) error {
	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.Create(r.Path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", r.Path, err)
	}
	if err := FormatJSON(papers, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FormatJSON writes papers as indented JSON to w.
func FormatJSON(papers []types.Paper, w io.Writer) error {
	if papers == nil {
		papers = []types.Paper{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(papers)
}

func hasVerdicts(papers []types.Paper) bool {
	for _, p := range papers {
		if p.Verdict != types.VerdictUnset {
			return true
		}
	}
	return false
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
