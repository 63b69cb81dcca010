// Package fetcher retrieves pages through a pluggable rendering backend and
// applies the bounded wait, expand and scroll steps before parsing the DOM.
package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/amosWeiskopf/site2md/internal/config"
)

// Options is the rendering strategy for every fetch of a crawl
type Options struct {
	Timeout             time.Duration
	JavaScriptEnabled   bool
	WaitForContent      bool
	JSWaitTime          time.Duration
	ExpandMenus         bool
	ExpandSelector      string
	ScrollForContent    bool
	MaxScrollIterations int
	UserAgent           string
	Headers             map[string]string
}

// OptionsFromConfig extracts the fetcher's view of a crawl configuration
func OptionsFromConfig(cfg config.CrawlConfig) Options {
	return Options{
		Timeout:             cfg.Timeout,
		JavaScriptEnabled:   cfg.JavaScriptEnabled,
		WaitForContent:      cfg.WaitForContent,
		JSWaitTime:          cfg.JSWaitTime,
		ExpandMenus:         cfg.ExpandMenus,
		ExpandSelector:      cfg.ExpandSelector,
		ScrollForContent:    cfg.ScrollForContent,
		MaxScrollIterations: cfg.MaxScrollIterations,
		UserAgent:           cfg.UserAgent,
		Headers:             cfg.Headers,
	}
}

// Outcome is a successfully fetched page
type Outcome struct {
	URL        string
	FinalURL   string
	StatusCode int
	Root       *html.Node
	Links      []string
}

// Fetcher turns a URL into a parsed DOM or a FetchError
type Fetcher struct {
	renderer Renderer
	opts     Options
	logger   *zap.Logger
}

// New creates a fetcher on top of renderer
func New(renderer Renderer, opts Options, logger *zap.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{renderer: renderer, opts: opts, logger: logger.Named("fetcher")}
}

// Fetch retrieves rawURL within the configured timeout
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	doc, err := f.renderer.Navigate(ctx, rawURL, NavigateOptions{
		WaitForContent: f.opts.JavaScriptEnabled && f.opts.WaitForContent,
		JSWaitTime:     f.opts.JSWaitTime,
		UserAgent:      f.opts.UserAgent,
		Headers:        f.opts.Headers,
	})
	if err != nil {
		return nil, classify(ctx, rawURL, err)
	}
	defer doc.Close()

	// 0 means the backend could not observe a status
	if doc.StatusCode != 0 && (doc.StatusCode < 200 || doc.StatusCode > 299) {
		return nil, &FetchError{Kind: KindNonSuccessStatus, URL: rawURL, StatusCode: doc.StatusCode}
	}

	if f.opts.ExpandMenus {
		n, err := f.renderer.Expand(ctx, doc, f.opts.ExpandSelector)
		if err != nil {
			if ctx.Err() != nil {
				return nil, classify(ctx, rawURL, err)
			}
			f.logger.Warn("expand menus failed", zap.String("url", rawURL), zap.Error(err))
		} else if n > 0 {
			f.logger.Debug("expanded menus", zap.String("url", rawURL), zap.Int("count", n))
		}
	}

	if f.opts.ScrollForContent && f.opts.MaxScrollIterations > 0 {
		n, err := f.renderer.Scroll(ctx, doc, f.opts.MaxScrollIterations)
		if err != nil {
			if ctx.Err() != nil {
				return nil, classify(ctx, rawURL, err)
			}
			f.logger.Warn("scroll failed", zap.String("url", rawURL), zap.Error(err))
		} else if n > 0 {
			f.logger.Debug("scrolled", zap.String("url", rawURL), zap.Int("iterations", n))
		}
	}

	root, err := html.Parse(strings.NewReader(doc.HTML))
	if err != nil {
		return nil, &FetchError{Kind: KindRender, URL: rawURL, StatusCode: doc.StatusCode, Err: fmt.Errorf("parse html: %w", err)}
	}

	finalURL := doc.FinalURL
	if finalURL == "" {
		finalURL = rawURL
	}
	links := doc.Links
	if links == nil {
		links = ExtractLinks(root, finalURL)
	}

	return &Outcome{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: doc.StatusCode,
		Root:       root,
		Links:      links,
	}, nil
}
