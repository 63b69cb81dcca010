package reporter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/amosWeiskopf/site2md/internal/config"
	"github.com/amosWeiskopf/site2md/internal/models"
)

func newWriter(t *testing.T, frontMatter bool, formats ...string) *Writer {
	t.Helper()
	w, err := New(config.OutputConfig{Dir: t.TempDir(), FrontMatter: frontMatter, ReportFormats: formats}, nil)
	require.NoError(t, err)
	return w
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(config.OutputConfig{Dir: "  "}, nil)
	assert.ErrorIs(t, err, ErrNoOutputDir)

	dir := filepath.Join(t.TempDir(), "nested", "out")
	w, err := New(config.OutputConfig{Dir: dir}, nil)
	require.NoError(t, err)
	assert.DirExists(t, w.Dir())
}

func TestWritePageFrontMatter(t *testing.T) {
	w := newWriter(t, true)
	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	name, err := w.WritePage(context.Background(), models.PageResult{
		URL:       "https://example.com/docs/getting-started",
		Success:   true,
		Title:     "Getting: Started",
		Markdown:  "# Getting: Started\n\nhello",
		FetchedAt: fetched,
	})
	require.NoError(t, err)
	assert.Equal(t, "docs_getting-started.md", name)

	content := read(t, filepath.Join(w.Dir(), name))
	require.True(t, strings.HasPrefix(content, "---\n"))
	parts := strings.SplitN(content[4:], "---\n", 2)
	require.Len(t, parts, 2)

	var fm frontMatter
	require.NoError(t, yaml.Unmarshal([]byte(parts[0]), &fm))
	assert.Equal(t, "Getting: Started", fm.Title)
	assert.Equal(t, "https://example.com/docs/getting-started", fm.URL)
	assert.True(t, fetched.Equal(fm.CrawledAt))
	assert.Equal(t, "\n# Getting: Started\n\nhello\n", parts[1])
}

func TestWritePageWithoutFrontMatter(t *testing.T) {
	w := newWriter(t, false)
	name, err := w.WritePage(context.Background(), models.PageResult{URL: "https://example.com/", Markdown: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "index.md", name)
	assert.Equal(t, "hello\n", read(t, filepath.Join(w.Dir(), name)))
}

func TestWritePageCollisions(t *testing.T) {
	w := newWriter(t, false)
	ctx := context.Background()

	var names []string
	for _, u := range []string{
		"https://example.com/docs/intro",
		"https://example.com/docs/intro.html",
		"https://example.com/docs/intro.htm",
		"https://example.com/docs_intro_2",
	} {
		name, err := w.WritePage(ctx, models.PageResult{URL: u, Markdown: u})
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.Equal(t, []string{"docs_intro.md", "docs_intro_2.md", "docs_intro_3.md", "docs_intro_2_2.md"}, names)
}

func TestWritePageConcurrent(t *testing.T) {
	w := newWriter(t, true)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names = make(map[string]bool)
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := w.WritePage(context.Background(), models.PageResult{URL: "https://example.com/same", Markdown: "x"})
			assert.NoError(t, err)
			mu.Lock()
			names[name] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, names, 20)

	entries, err := os.ReadDir(w.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func sampleSummary() *models.CrawlSummary {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.CrawlSummary{
		RunID:          "run-1",
		SeedURL:        "https://example.com/",
		StartedAt:      start,
		FinishedAt:     start.Add(1500 * time.Millisecond),
		Duration:       1500 * time.Millisecond,
		DurationText:   "1.5s",
		TotalAttempted: 2,
		TotalSucceeded: 1,
		TotalFailed:    1,
		Failures:       []models.Failure{{URL: "https://example.com/broken", Reason: "fetch https://example.com/broken: status 500", Kind: "non_success_status", StatusCode: 500}},
		Pages:          []models.PageEntry{{URL: "https://example.com/", Title: "Home <&>", File: "index.md"}},
	}
}

func TestWriteSummaryJSON(t *testing.T) {
	w := newWriter(t, true)
	require.NoError(t, w.WriteSummary(context.Background(), sampleSummary()))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(read(t, filepath.Join(w.Dir(), SummaryFile))), &got))
	assert.Equal(t, "https://example.com/", got["seed_url"])
	assert.Equal(t, "1.5s", got["duration"])
	assert.EqualValues(t, 2, got["total_attempted"])
	assert.Len(t, got["failures"], 1)

	assert.NoFileExists(t, filepath.Join(w.Dir(), MarkdownReportFile))
	assert.NoFileExists(t, filepath.Join(w.Dir(), HTMLReportFile))
}

func TestWriteSummaryReports(t *testing.T) {
	w := newWriter(t, true, "json", "markdown", "html")
	require.NoError(t, w.WriteSummary(context.Background(), sampleSummary()))

	md := read(t, filepath.Join(w.Dir(), MarkdownReportFile))
	assert.Contains(t, md, "# Crawl Report")
	assert.Contains(t, md, "https://example.com/broken")
	assert.Contains(t, md, "non_success_status")
	assert.Contains(t, md, "50.0%")

	page := read(t, filepath.Join(w.Dir(), HTMLReportFile))
	assert.Contains(t, page, "Crawl Report for https://example.com/")
	assert.Contains(t, page, "Home &lt;&amp;&gt;")
	assert.Contains(t, page, "50%")
}

func TestWriteSummaryUnknownFormat(t *testing.T) {
	w := newWriter(t, true, "pdf")
	err := w.WriteSummary(context.Background(), sampleSummary())
	assert.ErrorContains(t, err, "unsupported format")
}
