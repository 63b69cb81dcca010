package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultExpandSelector matches the usual collapsed navigation toggles
const DefaultExpandSelector = `[aria-expanded="false"], details:not([open]) > summary, .collapsed > a, .menu-item-has-children > button, .nav-toggle, .sidebar-toggle`

const quiescencePoll = 200 * time.Millisecond

// ChromeOptions configures ChromeRenderer
type ChromeOptions struct {
	Headless    bool
	MaxSessions int
	UserAgent   string
	// ExecPath overrides the Chrome binary lookup
	ExecPath string
	// AcquireTimeout bounds the wait for a free session
	AcquireTimeout time.Duration
}

// ChromeRenderer drives a shared headless Chrome through chromedp. Each
// navigation gets its own tab; at most MaxSessions tabs are open at a time.
type ChromeRenderer struct {
	opts   ChromeOptions
	sem    *semaphore.Weighted
	logger *zap.Logger

	once          sync.Once
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	startErr      error
}

// NewChromeRenderer constructs a renderer. The browser starts on first use.
func NewChromeRenderer(opts ChromeOptions, logger *zap.Logger) *ChromeRenderer {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 1
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeRenderer{
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.MaxSessions)),
		logger: logger.Named("chrome"),
	}
}

func (r *ChromeRenderer) start() error {
	r.once.Do(func() {
		execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		execOpts = append(execOpts,
			chromedp.Flag("headless", r.opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("no-sandbox", true),
		)
		if r.opts.UserAgent != "" {
			execOpts = append(execOpts, chromedp.UserAgent(r.opts.UserAgent))
		}
		if r.opts.ExecPath != "" {
			execOpts = append(execOpts, chromedp.ExecPath(r.opts.ExecPath))
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), execOpts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		// an empty Run starts the browser process
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			r.startErr = fmt.Errorf("start browser: %w", err)
			return
		}
		r.browserCtx, r.browserCancel, r.allocCancel = browserCtx, browserCancel, allocCancel
		r.logger.Info("browser started", zap.Bool("headless", r.opts.Headless), zap.Int("max_sessions", r.opts.MaxSessions))
	})
	return r.startErr
}

// Close shuts the browser down
func (r *ChromeRenderer) Close() error {
	if r.browserCancel == nil {
		return nil
	}
	err := chromedp.Cancel(r.browserCtx)
	r.browserCancel()
	r.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (r *ChromeRenderer) Navigate(ctx context.Context, rawURL string, opts NavigateOptions) (*Document, error) {
	if err := r.start(); err != nil {
		return nil, &FetchError{Kind: KindRender, URL: rawURL, Err: err}
	}

	acquireCtx, cancelAcquire := context.WithTimeout(ctx, r.opts.AcquireTimeout)
	err := r.sem.Acquire(acquireCtx, 1)
	cancelAcquire()
	if err != nil {
		return nil, &FetchError{Kind: KindTimeout, URL: rawURL, Err: fmt.Errorf("acquire browser session: %w", err)}
	}

	tabCtx, tabCancel := chromedp.NewContext(r.browserCtx)
	stop := context.AfterFunc(ctx, tabCancel)
	release := func() {
		stop()
		tabCancel()
		r.sem.Release(1)
	}

	var (
		mu     sync.Mutex
		status int
	)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
			return
		}
		mu.Lock()
		if status == 0 {
			status = int(resp.Response.Status)
		}
		mu.Unlock()
	})

	actions := []chromedp.Action{network.Enable()}
	if len(opts.Headers) > 0 {
		headers := make(network.Headers, len(opts.Headers))
		for k, v := range opts.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	actions = append(actions, chromedp.Navigate(rawURL))
	if opts.WaitForContent {
		actions = append(actions, waitForQuiescence(opts.JSWaitTime))
	} else if opts.JSWaitTime > 0 {
		actions = append(actions, chromedp.Sleep(opts.JSWaitTime))
	}

	var html, finalURL string
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		release()
		return nil, r.classifyRun(ctx, rawURL, err)
	}

	mu.Lock()
	code := status
	mu.Unlock()
	if finalURL == "" {
		finalURL = rawURL
	}

	doc := &Document{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: code,
		HTML:       html,
		session:    tabCtx,
		release:    release,
	}
	r.logger.Debug("rendered", zap.String("url", rawURL), zap.Int("status", code), zap.Int("html_bytes", len(html)))
	return doc, nil
}

func (r *ChromeRenderer) Expand(ctx context.Context, doc *Document, selectorHint string) (int, error) {
	if doc == nil || doc.session == nil {
		return 0, nil
	}
	selector := strings.TrimSpace(selectorHint)
	if selector == "" {
		selector = DefaultExpandSelector
	}
	quoted, err := json.Marshal(selector)
	if err != nil {
		return 0, fmt.Errorf("encode selector: %w", err)
	}
	script := fmt.Sprintf(`(() => {
	let n = 0;
	for (const el of document.querySelectorAll(%s)) {
		try { el.click(); n++; } catch (e) {}
	}
	return n;
})()`, quoted)

	var clicked int
	err = r.runBound(ctx, doc,
		chromedp.Evaluate(script, &clicked),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &doc.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return 0, r.classifyRun(ctx, doc.URL, err)
	}
	return clicked, nil
}

func (r *ChromeRenderer) Scroll(ctx context.Context, doc *Document, maxIterations int) (int, error) {
	if doc == nil || doc.session == nil || maxIterations <= 0 {
		return 0, nil
	}

	iterations := 0
	scroll := chromedp.ActionFunc(func(ctx context.Context) error {
		var last float64
		if err := chromedp.Evaluate(`document.body ? document.body.scrollHeight : 0`, &last).Do(ctx); err != nil {
			return err
		}
		for iterations < maxIterations {
			var height float64
			if err := chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`, &height).Do(ctx); err != nil {
				return err
			}
			iterations++
			if err := sleepCtx(ctx, time.Second); err != nil {
				return err
			}
			if err := chromedp.Evaluate(`document.body.scrollHeight`, &height).Do(ctx); err != nil {
				return err
			}
			if height == last {
				return nil
			}
			last = height
		}
		return nil
	})

	err := r.runBound(ctx, doc, scroll, chromedp.OuterHTML("html", &doc.HTML, chromedp.ByQuery))
	if err != nil {
		return iterations, r.classifyRun(ctx, doc.URL, err)
	}
	return iterations, nil
}

// runBound runs actions on the document's tab, cancelled with ctx
func (r *ChromeRenderer) runBound(ctx context.Context, doc *Document, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(doc.session)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (r *ChromeRenderer) classifyRun(ctx context.Context, rawURL string, err error) *FetchError {
	if isTimeout(err) || ctx.Err() != nil {
		return classify(ctx, rawURL, err)
	}
	return &FetchError{Kind: KindRender, URL: rawURL, Err: err}
}

// waitForQuiescence polls until the document is complete and the body size
// stops changing, or limit elapses. Hitting the limit is not an error.
func waitForQuiescence(limit time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if limit <= 0 {
			limit = 3 * time.Second
		}
		deadline := time.Now().Add(limit)
		lastSize := -1
		stable := 0
		for time.Now().Before(deadline) {
			var state struct {
				Ready string `json:"ready"`
				Size  int    `json:"size"`
			}
			err := chromedp.Evaluate(`({ready: document.readyState, size: document.body ? document.body.innerHTML.length : 0})`, &state).Do(ctx)
			if err != nil {
				return err
			}
			if state.Ready == "complete" {
				if state.Size == lastSize {
					stable++
					if stable >= 2 {
						return nil
					}
				} else {
					stable = 0
				}
				lastSize = state.Size
			}
			if err := sleepCtx(ctx, quiescencePoll); err != nil {
				return err
			}
		}
		return nil
	})
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
