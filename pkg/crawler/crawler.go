// Package crawler drives a pool of workers over the shared frontier and
// turns every admitted page into Markdown.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/site2md/internal/config"
	"github.com/amosWeiskopf/site2md/internal/models"
	"github.com/amosWeiskopf/site2md/pkg/fetcher"
	"github.com/amosWeiskopf/site2md/pkg/filter"
	"github.com/amosWeiskopf/site2md/pkg/frontier"
	"github.com/amosWeiskopf/site2md/pkg/markdown"
)

var (
	// ErrTotalFailure is returned with the summary when no page succeeded
	ErrTotalFailure = errors.New("no page was crawled successfully")
	// ErrSeedRejected is returned when the seed itself is not admitted
	ErrSeedRejected = errors.New("seed URL rejected")
)

const (
	kindConversion = "conversion"
	kindWrite      = "write"
)

// Crawler runs crawls for one configuration. A Crawler may run several
// crawls one after another; each gets its own frontier.
type Crawler struct {
	cfg       config.CrawlConfig
	filter    *filter.Filter
	renderer  fetcher.Renderer
	fetcher   *fetcher.Fetcher
	limiter   *rate.Limiter
	gates     []frontier.Gate
	sink      Sink
	index     Index
	extractor ContentExtractor
	logger    *zap.Logger
}

// New validates cfg and compiles the exclusion selectors. A selector syntax
// error is returned here, before anything is fetched.
func New(cfg config.CrawlConfig, opts ...Option) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawl config: %w", err)
	}

	c := &Crawler{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("crawler")

	selectors := filter.BaseDefaults()
	if cfg.DocsMode {
		selectors = filter.Merge(selectors, filter.DocumentationDefaults())
	}
	selectors = filter.Merge(selectors, cfg.ExcludeSelectors)
	f, err := filter.Compile(selectors)
	if err != nil {
		return nil, fmt.Errorf("compile exclude selectors: %w", err)
	}
	c.filter = f

	if c.renderer == nil {
		if cfg.JavaScriptEnabled {
			c.renderer = fetcher.NewChromeRenderer(fetcher.ChromeOptions{
				Headless:       cfg.Headless,
				MaxSessions:    cfg.MaxConcurrentRequests,
				UserAgent:      cfg.UserAgent,
				AcquireTimeout: cfg.Timeout,
			}, c.logger)
		} else {
			c.renderer = fetcher.NewHTTPRenderer(fetcher.HTTPOptions{MaxBodyBytes: cfg.MaxBodyBytes})
		}
	}
	c.fetcher = fetcher.New(c.renderer, fetcher.OptionsFromConfig(cfg), c.logger)

	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	c.gates = append([]frontier.Gate{frontier.AssetGate}, c.gates...)
	if len(cfg.IncludePatterns) > 0 || len(cfg.ExcludePatterns) > 0 {
		c.gates = append(c.gates, frontier.PatternGate{Include: cfg.IncludePatterns, Exclude: cfg.ExcludePatterns})
	}
	return c, nil
}

// Selectors returns the effective exclusion selectors in application order
func (c *Crawler) Selectors() []string {
	return c.filter.Selectors()
}

// Close releases the rendering backend when it holds resources
func (c *Crawler) Close() error {
	if closer, ok := c.renderer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Crawl crawls from seed until the frontier drains or ctx is cancelled. The
// summary is returned even on cancellation and on total failure.
func (c *Crawler) Crawl(ctx context.Context, seed string) (*models.CrawlSummary, error) {
	front, err := frontier.New(seed, frontier.Options{
		MaxPages:            c.cfg.MaxPages,
		MaxDepth:            c.cfg.MaxDepth,
		FollowExternalLinks: c.cfg.FollowExternalLinks,
		Gates:               c.gates,
	})
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", seed, err)
	}

	runID := uuid.NewString()
	logger := c.logger.With(zap.String("run_id", runID))
	agg := newAggregator(runID, front.Seed(), time.Now())

	logger.Info("crawl started",
		zap.String("seed", front.Seed()),
		zap.Int("max_pages", c.cfg.MaxPages),
		zap.Int("max_depth", c.cfg.MaxDepth),
		zap.Int("workers", c.cfg.MaxConcurrentRequests),
		zap.Int("selectors", c.filter.Len()),
	)

	if d := front.Admit(ctx, seed, 0, ""); !d.Admitted {
		summary := agg.summary(time.Now(), ctx.Err() != nil)
		logger.Warn("seed rejected", zap.String("seed", d.URL), zap.Stringer("reason", d.Rejection))
		if err := c.finish(ctx, summary, logger); err != nil {
			return summary, err
		}
		return summary, fmt.Errorf("%w: %s", ErrSeedRejected, d.Rejection)
	}

	stop := context.AfterFunc(ctx, func() {
		dropped := front.Close()
		logger.Warn("crawl cancelled", zap.Int("dropped", dropped))
	})
	defer stop()

	var g errgroup.Group
	for i := 0; i < c.cfg.MaxConcurrentRequests; i++ {
		worker := i
		g.Go(func() error {
			c.work(ctx, front, agg, logger.With(zap.Int("worker", worker)))
			return nil
		})
	}
	_ = g.Wait()

	summary := agg.summary(time.Now(), ctx.Err() != nil)
	logger.Info("crawl finished",
		zap.Int("attempted", summary.TotalAttempted),
		zap.Int("succeeded", summary.TotalSucceeded),
		zap.Int("failed", summary.TotalFailed),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Duration("duration", summary.Duration),
	)

	if err := c.finish(ctx, summary, logger); err != nil {
		return summary, err
	}
	if summary.TotalFailure() {
		return summary, ErrTotalFailure
	}
	return summary, nil
}

// finish records the run and writes the summary. Outputs are written even
// after cancellation.
func (c *Crawler) finish(ctx context.Context, summary *models.CrawlSummary, logger *zap.Logger) error {
	outCtx := context.WithoutCancel(ctx)
	if c.index != nil {
		if err := c.index.RecordRun(outCtx, summary); err != nil {
			logger.Error("record run failed", zap.Error(err))
		}
	}
	if c.sink != nil {
		if err := c.sink.WriteSummary(outCtx, summary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

func (c *Crawler) work(ctx context.Context, front *frontier.Frontier, agg *aggregator, logger *zap.Logger) {
	var lastStart time.Time
	for {
		entry, ok := front.Next(ctx)
		if !ok {
			return
		}

		if err := c.pace(ctx, lastStart); err != nil {
			front.Done()
			return
		}
		lastStart = time.Now()

		res := c.process(ctx, entry, logger)

		var file string
		if res.Success && c.sink != nil {
			name, err := c.sink.WritePage(ctx, res)
			if err != nil {
				logger.Error("write page failed", zap.String("url", res.URL), zap.Error(err))
				res = failedWrite(res, err)
			}
			file = name
		}

		if res.Success {
			for _, link := range res.DiscoveredLinks {
				d := front.Admit(ctx, link, entry.Depth+1, entry.Target())
				if !d.Admitted && d.Rejection != nil {
					logger.Debug("link rejected", zap.String("url", d.URL), zap.String("reason", string(d.Rejection.Reason)))
				}
			}
		}

		if c.index != nil {
			if err := c.index.RecordPage(context.WithoutCancel(ctx), agg.runID, res); err != nil {
				logger.Error("record page failed", zap.String("url", res.URL), zap.Error(err))
			}
		}
		agg.add(res, file)
		front.Done()
	}
}

// pace keeps consecutive fetch starts of one worker at least Delay apart and
// honours the global rate limit
func (c *Crawler) pace(ctx context.Context, lastStart time.Time) error {
	if !lastStart.IsZero() && c.cfg.Delay > 0 {
		if wait := c.cfg.Delay - time.Since(lastStart); wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	if c.limiter != nil {
		return c.limiter.Wait(ctx)
	}
	return nil
}

// process fetches, filters and converts one entry. The returned result is
// final: every failure is recorded in it rather than returned.
func (c *Crawler) process(ctx context.Context, entry models.FrontierEntry, logger *zap.Logger) models.PageResult {
	start := time.Now()
	res := models.PageResult{URL: entry.URL, Depth: entry.Depth, FetchedAt: start}
	logger = logger.With(zap.String("url", entry.URL), zap.Int("depth", entry.Depth))
	transition := func(s models.PageState) {
		logger.Debug("page state", zap.String("state", string(s)))
	}

	transition(models.StateFetching)
	var (
		out *fetcher.Outcome
		err error
	)
	for attempt := 0; ; attempt++ {
		res.Attempts = attempt + 1
		out, err = c.fetcher.Fetch(ctx, entry.Target())
		if err == nil {
			break
		}
		var fe *fetcher.FetchError
		if !errors.As(err, &fe) || !fe.Retryable() || attempt >= c.cfg.MaxRetries || ctx.Err() != nil {
			break
		}
		backoff := c.cfg.RetryBackoff << attempt
		logger.Warn("fetch timed out, retrying", zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff))
		if sleep(ctx, backoff) != nil {
			break
		}
	}
	if err != nil {
		transition(models.StateFailed)
		logger.Warn("fetch failed", zap.Error(err), zap.Int("attempts", res.Attempts))
		res.Error = err.Error()
		res.ErrorKind = string(fetcher.KindOf(err))
		var fe *fetcher.FetchError
		if errors.As(err, &fe) {
			res.StatusCode = fe.StatusCode
		}
		res.Duration = time.Since(start)
		return res
	}
	res.StatusCode = out.StatusCode

	transition(models.StateFiltering)
	root := c.filter.Apply(out.Root)
	title := markdown.Title(root, out.FinalURL)
	// <base> lives in <head>, which main-content extraction drops
	base := fetcher.BaseURL(root, out.FinalURL)
	if c.extractor != nil {
		if main, ok := c.extractor.MainContent(root, out.FinalURL); ok {
			root = main
		}
	}

	transition(models.StateConverting)
	conv, err := markdown.Convert(root, base)
	if err != nil {
		transition(models.StateFailed)
		res.Error = err.Error()
		res.ErrorKind = kindConversion
		res.Duration = time.Since(start)
		return res
	}
	for _, skipped := range conv.Skipped {
		logger.Debug("skipped malformed subtree", zap.String("reason", skipped.Error()))
	}

	transition(models.StateDone)
	res.Success = true
	res.Title = title
	res.Markdown = conv.Markdown
	res.DiscoveredLinks = out.Links
	res.Duration = time.Since(start)
	logger.Info("page crawled", zap.String("title", title), zap.Int("links", len(out.Links)), zap.Duration("duration", res.Duration))
	return res
}

func failedWrite(res models.PageResult, err error) models.PageResult {
	return models.PageResult{
		URL:        res.URL,
		Error:      err.Error(),
		ErrorKind:  kindWrite,
		StatusCode: res.StatusCode,
		Depth:      res.Depth,
		Attempts:   res.Attempts,
		FetchedAt:  res.FetchedAt,
		Duration:   res.Duration,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
