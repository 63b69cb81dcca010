package fetcher

import (
	"context"
	"time"
)

// NavigateOptions are passed to a Renderer for a single navigation
type NavigateOptions struct {
	// WaitForContent asks the renderer to wait up to JSWaitTime for network
	// and DOM quiescence before taking the snapshot
	WaitForContent bool
	JSWaitTime     time.Duration

	UserAgent string
	Headers   map[string]string
}

// Document is a live snapshot of a navigated page. Expand and Scroll refresh
// HTML in place. Close releases the backend session.
type Document struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string

	// Links are absolute anchor targets when the backend collects them;
	// when nil they are extracted from HTML
	Links []string

	session context.Context
	release func()
}

// Close releases any backend resources. It is safe to call more than once.
func (d *Document) Close() {
	if d == nil || d.release == nil {
		return
	}
	d.release()
	d.release = nil
}

// Renderer is the rendering backend capability driven by the Fetcher
type Renderer interface {
	Navigate(ctx context.Context, url string, opts NavigateOptions) (*Document, error)

	// Expand triggers expand toggles on collapsed navigation elements and
	// returns how many were triggered
	Expand(ctx context.Context, doc *Document, selectorHint string) (int, error)

	// Scroll scrolls to the bottom repeatedly to trigger lazy loading, at most
	// maxIterations times, and returns the number of iterations performed
	Scroll(ctx context.Context, doc *Document, maxIterations int) (int, error)
}
