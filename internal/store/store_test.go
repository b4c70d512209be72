// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCitationCountsRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutCounts(ctx, map[string]int{"ARXIV:1": 3, "TITLE:a paper": 0}))

	got, err := s.GetCounts(ctx, []string{"ARXIV:1", "ARXIV:2", "TITLE:a paper"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ARXIV:1": 3, "TITLE:a paper": 0}, got)
}

func TestPutCountsOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutCounts(ctx, map[string]int{"ARXIV:1": 3}))
	require.NoError(t, s.PutCounts(ctx, map[string]int{"ARXIV:1": 11}))

	got, err := s.GetCounts(ctx, []string{"ARXIV:1"})
	require.NoError(t, err)
	assert.Equal(t, 11, got["ARXIV:1"])
}

func TestGetCountsChunksLargeKeySets(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	counts := make(map[string]int)
	var keys []string
	for i := 0; i < maxKeysPerQuery*2+7; i++ {
		k := fmt.Sprintf("ARXIV:%d", i)
		counts[k] = i
		keys = append(keys, k)
	}
	require.NoError(t, s.PutCounts(ctx, counts))

	got, err := s.GetCounts(ctx, keys)
	require.NoError(t, err)
	assert.Len(t, got, len(keys))
	assert.Equal(t, 1000, got["ARXIV:1000"])
}

func TestGetCountsEmpty(t *testing.T) {
	s := testStore(t)
	got, err := s.GetCounts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunLedger(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	clock := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	first, err := s.StartRun(ctx, "full", "LLM uncertainty", "not_started")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	first.State = "reported"
	first.Candidates = 40
	first.Accepted = 12
	first.Exhausted = []string{"arxiv"}
	require.NoError(t, s.FinishRun(ctx, first))

	clock = clock.Add(time.Hour)
	second, err := s.StartRun(ctx, "report_only", "", "filtered")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.True(t, runs[0].FinishedAt.IsZero())

	r := runs[1]
	assert.Equal(t, "full", r.Entry)
	assert.Equal(t, "LLM uncertainty", r.Description)
	assert.Equal(t, "reported", r.State)
	assert.Equal(t, 40, r.Candidates)
	assert.Equal(t, 12, r.Accepted)
	assert.Equal(t, []string{"arxiv"}, r.Exhausted)
	assert.True(t, r.StartedAt.Equal(clock.Add(-time.Hour)))
	assert.True(t, r.FinishedAt.Equal(clock.Add(-time.Hour)))

	limited, err := s.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFinishUnknownRun(t *testing.T) {
	s := testStore(t)
	err := s.FinishRun(context.Background(), Run{ID: "missing", State: "reported"})
	assert.Error(t, err)
}
