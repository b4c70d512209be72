// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists data that outlives a single run in SQLite: cached
// citation counts, so reruns do not hit the citation service again, and a
// ledger of pipeline runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite caps the number of bound parameters per statement.
const maxKeysPerQuery = 500

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS citation_counts (
			key TEXT PRIMARY KEY,
			count INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			entry TEXT NOT NULL,
			description TEXT,
			state TEXT NOT NULL,
			candidates INTEGER NOT NULL DEFAULT 0,
			accepted INTEGER NOT NULL DEFAULT 0,
			exhausted TEXT,
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// --- citation cache ---

// GetCounts returns the cached counts for keys. Missing keys are absent from
// the map.
func (s *Store) GetCounts(ctx context.Context, keys []string) (map[string]int, error) {
	counts := make(map[string]int, len(keys))
	for start := 0; start < len(keys); start += maxKeysPerQuery {
		chunk := keys[start:min(start+maxKeysPerQuery, len(keys))]

		query, args, err := sq.Select("key", "count").
			From("citation_counts").
			Where(sq.Eq{"key": chunk}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("building citation query: %w", err)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("querying citation counts: %w", err)
		}
		for rows.Next() {
			var (
				key string
				n   int
			)
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning citation count: %w", err)
			}
			counts[key] = n
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("reading citation counts: %w", err)
		}
	}
	return counts, nil
}

// PutCounts upserts counts in one transaction.
func (s *Store) PutCounts(ctx context.Context, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	updated := s.now().UTC().Format(time.RFC3339)
	for key, n := range counts {
		query, args, err := sq.Insert("citation_counts").
			Columns("key", "count", "updated_at").
			Values(key, n, updated).
			Suffix("ON CONFLICT(key) DO UPDATE SET count=excluded.count, updated_at=excluded.updated_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("building upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upserting citation count %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// --- run ledger ---

// Run is one pipeline invocation.
type Run struct {
	ID          string
	Entry       string
	Description string
	State       string
	Candidates  int
	Accepted    int
	Exhausted   []string
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// StartRun records a new run and returns it with a fresh id.
func (s *Store) StartRun(ctx context.Context, entry, description, state string) (Run, error) {
	run := Run{
		ID:          uuid.NewString(),
		Entry:       entry,
		Description: description,
		State:       state,
		StartedAt:   s.now().UTC(),
	}

	query, args, err := sq.Insert("runs").
		Columns("id", "entry", "description", "state", "started_at").
		Values(run.ID, run.Entry, run.Description, run.State, run.StartedAt.Format(time.RFC3339Nano)).
		ToSql()
	if err != nil {
		return Run{}, fmt.Errorf("building insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return Run{}, fmt.Errorf("recording run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final state and counts of run.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = s.now().UTC()
	}
	exhausted, err := json.Marshal(run.Exhausted)
	if err != nil {
		return fmt.Errorf("encoding exhausted sources: %w", err)
	}

	query, args, err := sq.Update("runs").
		SetMap(map[string]any{
			"state":       run.State,
			"candidates":  run.Candidates,
			"accepted":    run.Accepted,
			"exhausted":   string(exhausted),
			"error":       run.Error,
			"finished_at": run.FinishedAt.Format(time.RFC3339Nano),
		}).
		Where(sq.Eq{"id": run.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	b := sq.Select("id", "entry", "description", "state", "candidates", "accepted",
		"exhausted", "error", "started_at", "finished_at").
		From("runs").
		OrderBy("started_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                     Run
			desc, exh, errText    sql.NullString
			startedAt, finishedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Entry, &desc, &r.State, &r.Candidates, &r.Accepted,
			&exh, &errText, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Description = desc.String
		r.Error = errText.String
		if exh.Valid && exh.String != "" {
			_ = json.Unmarshal([]byte(exh.String), &r.Exhausted)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt.String)
		if finishedAt.Valid {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
