package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/site2md/internal/models"
)

func setupTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "state", "site2md.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "index.db")
	idx, err := Open(path)
	require.NoError(t, err)
	defer idx.Close()

	assert.FileExists(t, path)
	assert.Equal(t, path, idx.Path())
}

func TestRecordPage(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()
	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("insert", func(t *testing.T) {
		require.NoError(t, idx.RecordPage(ctx, "run-1", models.PageResult{
			URL:        "https://example.com/b",
			Success:    true,
			Title:      "B",
			Markdown:   "# B\n",
			StatusCode: 200,
			Depth:      1,
			Attempts:   1,
			FetchedAt:  fetched,
			Duration:   250 * time.Millisecond,
		}))
		require.NoError(t, idx.RecordPage(ctx, "run-1", models.PageResult{
			URL:        "https://example.com/a",
			Error:      "fetch https://example.com/a: status 500",
			ErrorKind:  "non_success_status",
			StatusCode: 500,
			Attempts:   1,
			FetchedAt:  fetched,
		}))

		pages, err := idx.Pages(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, pages, 2)

		assert.Equal(t, "https://example.com/a", pages[0].URL)
		assert.False(t, pages[0].Success)
		assert.Equal(t, "non_success_status", pages[0].ErrorKind)
		assert.Equal(t, 500, pages[0].StatusCode)

		assert.True(t, pages[1].Success)
		assert.Equal(t, "B", pages[1].Title)
		assert.Equal(t, 4, pages[1].MarkdownBytes)
		assert.Equal(t, 250*time.Millisecond, pages[1].Duration)
		assert.True(t, fetched.Equal(pages[1].FetchedAt))
	})

	t.Run("upsert", func(t *testing.T) {
		require.NoError(t, idx.RecordPage(ctx, "run-1", models.PageResult{
			URL:       "https://example.com/a",
			Success:   true,
			Title:     "A",
			Attempts:  2,
			FetchedAt: fetched,
		}))

		pages, err := idx.Pages(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, pages, 2)
		assert.True(t, pages[0].Success)
		assert.Equal(t, 2, pages[0].Attempts)
		assert.Empty(t, pages[0].ErrorKind)
	})

	t.Run("other run", func(t *testing.T) {
		pages, err := idx.Pages(ctx, "run-2")
		require.NoError(t, err)
		assert.Empty(t, pages)
	})
}

func TestRecordRun(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "new"} {
		require.NoError(t, idx.RecordRun(ctx, &models.CrawlSummary{
			RunID:          id,
			SeedURL:        "https://example.com/",
			StartedAt:      start.Add(time.Duration(i) * time.Hour),
			FinishedAt:     start.Add(time.Duration(i)*time.Hour + 2*time.Second),
			Duration:       2 * time.Second,
			TotalAttempted: 3,
			TotalSucceeded: 2,
			TotalFailed:    1,
			Cancelled:      id == "new",
		}))
	}

	run, err := idx.Run(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", run.SeedURL)
	assert.Equal(t, 2*time.Second, run.Duration)
	assert.Equal(t, 3, run.Attempted)
	assert.False(t, run.Cancelled)
	assert.True(t, start.Equal(run.StartedAt))

	runs, err := idx.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.True(t, runs[0].Cancelled)

	_, err = idx.Run(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecordPageConcurrent(t *testing.T) {
	idx := setupTestIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, idx.RecordPage(ctx, "run", models.PageResult{
				URL:       "https://example.com/p" + string(rune('a'+i)),
				Success:   true,
				FetchedAt: time.Now(),
			}))
		}(i)
	}
	wg.Wait()

	pages, err := idx.Pages(ctx, "run")
	require.NoError(t, err)
	assert.Len(t, pages, 16)
}
