package crawler

import (
	"sort"
	"sync"
	"time"

	"github.com/amosWeiskopf/site2md/internal/models"
)

// aggregator collects PageResults from all workers. Results arrive in no
// particular order.
type aggregator struct {
	runID   string
	seed    string
	started time.Time

	mu      sync.Mutex
	results []models.PageResult
	files   map[string]string
}

func newAggregator(runID, seed string, started time.Time) *aggregator {
	return &aggregator{
		runID:   runID,
		seed:    seed,
		started: started,
		files:   make(map[string]string),
	}
}

func (a *aggregator) add(res models.PageResult, file string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = append(a.results, res)
	if file != "" {
		a.files[res.URL] = file
	}
}

// summary builds the CrawlSummary; failures and pages are sorted by URL
func (a *aggregator) summary(finished time.Time, cancelled bool) *models.CrawlSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &models.CrawlSummary{
		RunID:          a.runID,
		SeedURL:        a.seed,
		StartedAt:      a.started,
		FinishedAt:     finished,
		Duration:       finished.Sub(a.started),
		TotalAttempted: len(a.results),
		Failures:       []models.Failure{},
		Pages:          []models.PageEntry{},
		Cancelled:      cancelled,
	}
	s.DurationText = s.Duration.Round(time.Millisecond).String()

	for _, r := range a.results {
		if r.Success {
			s.TotalSucceeded++
			s.Pages = append(s.Pages, models.PageEntry{URL: r.URL, Title: r.Title, File: a.files[r.URL]})
			continue
		}
		s.TotalFailed++
		s.Failures = append(s.Failures, models.Failure{
			URL:        r.URL,
			Reason:     r.Error,
			Kind:       r.ErrorKind,
			StatusCode: r.StatusCode,
		})
	}

	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].URL < s.Failures[j].URL })
	sort.Slice(s.Pages, func(i, j int) bool { return s.Pages[i].URL < s.Pages[j].URL })
	return s
}
