package models

import "time"

// PageState is the lifecycle position of a single URL inside a crawl
type PageState string

const (
	StatePending    PageState = "pending"
	StateFetching   PageState = "fetching"
	StateFiltering  PageState = "filtering"
	StateConverting PageState = "converting"
	StateDone       PageState = "done"
	StateFailed     PageState = "failed"
)

// Terminal reports whether no further transition can leave the state
func (s PageState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// FrontierEntry is a URL admitted to the frontier and waiting to be fetched.
// URL is the normalized identity; FetchURL is the address as linked, which
// is what gets requested and what relative links resolve against.
type FrontierEntry struct {
	URL            string `json:"url"`
	FetchURL       string `json:"fetch_url,omitempty"`
	Depth          int    `json:"depth"`
	DiscoveredFrom string `json:"discovered_from,omitempty"`
}

// Target returns the address to request for the entry
func (e FrontierEntry) Target() string {
	if e.FetchURL != "" {
		return e.FetchURL
	}
	return e.URL
}

// PageResult is the terminal outcome of processing one fetched URL.
// It is built once by the worker that fetched the page and never mutated.
type PageResult struct {
	URL             string        `json:"url"`
	Success         bool          `json:"success"`
	Title           string        `json:"title,omitempty"`
	Markdown        string        `json:"-"`
	Error           string        `json:"error,omitempty"`
	ErrorKind       string        `json:"error_kind,omitempty"`
	StatusCode      int           `json:"status_code,omitempty"`
	DiscoveredLinks []string      `json:"discovered_links,omitempty"`
	Depth           int           `json:"depth"`
	Attempts        int           `json:"attempts"`
	FetchedAt       time.Time     `json:"fetched_at"`
	Duration        time.Duration `json:"duration"`
}

// Failure records why a page could not be crawled
type Failure struct {
	URL        string `json:"url"`
	Reason     string `json:"reason"`
	Kind       string `json:"kind,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// PageEntry lists a successfully written page in the summary
type PageEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	File  string `json:"file,omitempty"`
}

// CrawlSummary aggregates every PageResult of a crawl
type CrawlSummary struct {
	RunID          string        `json:"run_id"`
	SeedURL        string        `json:"seed_url"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	Duration       time.Duration `json:"-"`
	DurationText   string        `json:"duration"`
	TotalAttempted int           `json:"total_attempted"`
	TotalSucceeded int           `json:"total_succeeded"`
	TotalFailed    int           `json:"total_failed"`
	Failures       []Failure     `json:"failures"`
	Pages          []PageEntry   `json:"pages"`
	Cancelled      bool          `json:"cancelled,omitempty"`
}

// SuccessRate returns the fraction of attempted pages that succeeded
func (s *CrawlSummary) SuccessRate() float64 {
	if s.TotalAttempted == 0 {
		return 0
	}
	return float64(s.TotalSucceeded) / float64(s.TotalAttempted)
}

// TotalFailure reports whether the crawl attempted pages but none succeeded
func (s *CrawlSummary) TotalFailure() bool {
	return s.TotalSucceeded == 0
}
