package crawler

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/amosWeiskopf/site2md/internal/models"
	"github.com/amosWeiskopf/site2md/pkg/fetcher"
	"github.com/amosWeiskopf/site2md/pkg/frontier"
)

// Sink receives successful pages as they complete and the summary at the
// end. Implementations must be safe for concurrent WritePage calls.
type Sink interface {
	// WritePage persists one page and returns the artifact name
	WritePage(ctx context.Context, page models.PageResult) (string, error)
	WriteSummary(ctx context.Context, summary *models.CrawlSummary) error
}

// Index records every page result, failed ones included, and each run
type Index interface {
	RecordPage(ctx context.Context, runID string, page models.PageResult) error
	RecordRun(ctx context.Context, summary *models.CrawlSummary) error
}

// ContentExtractor narrows a filtered page down to its main content
type ContentExtractor interface {
	MainContent(root *html.Node, pageURL string) (*html.Node, bool)
}

// Option configures a Crawler
type Option func(*Crawler)

// WithRenderer sets the rendering backend instead of building one from the
// configuration
func WithRenderer(r fetcher.Renderer) Option {
	return func(c *Crawler) {
		c.renderer = r
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSink sets the output writer
func WithSink(s Sink) Option {
	return func(c *Crawler) {
		c.sink = s
	}
}

// WithIndex sets the crawl index
func WithIndex(idx Index) Option {
	return func(c *Crawler) {
		c.index = idx
	}
}

// WithGate adds an admission gate, e.g. a robots.txt agent
func WithGate(g frontier.Gate) Option {
	return func(c *Crawler) {
		c.gates = append(c.gates, g)
	}
}

// WithExtractor enables main-content extraction
func WithExtractor(e ContentExtractor) Option {
	return func(c *Crawler) {
		c.extractor = e
	}
}
