// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state reads and writes the persisted candidate and filtered sets.
// Both use the same YAML schema so either can be reloaded to resume a run.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// File names inside the output directory.
const (
	CandidatesFile = "candidates.yaml"
	FilteredFile   = "filtered.yaml"
)

// Stage names the pipeline state a file was written at.
type Stage string

const (
	StageCrawled  Stage = "crawled"
	StageFiltered Stage = "filtered"
)

// Summary holds run counts stored alongside the papers.
type Summary struct {
	Total          int       `yaml:"total"`
	Accepted       int       `yaml:"accepted"`
	DupsRemoved    int       `yaml:"dups_removed"`
	BelowThreshold int       `yaml:"below_threshold"`
	Exhausted      []string  `yaml:"exhausted,omitempty"`
	Timestamp      time.Time `yaml:"timestamp"`
}

// File is one persisted paper set.
type File struct {
	Stage       Stage         `yaml:"stage"`
	Description string        `yaml:"description,omitempty"`
	Keywords    []string      `yaml:"keywords,omitempty"`
	Prompt      string        `yaml:"prompt,omitempty"`
	Papers      []types.Paper `yaml:"papers"`
	Summary     Summary       `yaml:"summary"`
}

// ErrNotFound is returned by Read when the file does not exist.
var ErrNotFound = errors.New("state file not found")

// Write stores f at path. The data goes to a temp file in the same directory
// first and is renamed into place, so a crash never leaves a partial file.
func Write(path string, f *File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}

// Read loads the file at path. A missing file wraps ErrNotFound.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}
