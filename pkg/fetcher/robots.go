package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RobotsOptions configures RobotsAgent
type RobotsOptions struct {
	Client    *http.Client
	UserAgent string
	CacheTTL  time.Duration
	Timeout   time.Duration
}

// RobotsAgent evaluates robots.txt rules per host with a TTL cache.
// Unreachable or broken robots files allow everything.
type RobotsAgent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	timeout   time.Duration
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]robotsEntry
	group singleflight.Group
}

type robotsEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// NewRobotsAgent constructs an agent
func NewRobotsAgent(opts RobotsOptions, logger *zap.Logger) *RobotsAgent {
	if opts.Client == nil {
		opts.Client = NewHTTPClient()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsAgent{
		client:    opts.Client,
		userAgent: opts.UserAgent,
		ttl:       opts.CacheTTL,
		timeout:   opts.Timeout,
		logger:    logger.Named("robots"),
		cache:     make(map[string]robotsEntry),
	}
}

// Allow reports whether rawURL may be crawled. It satisfies frontier.Gate.
func (a *RobotsAgent) Allow(ctx context.Context, rawURL string) (bool, string) {
	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() {
		return true, ""
	}

	rules, err := a.rules(ctx, target)
	if err != nil {
		a.logger.Debug("robots.txt unavailable, allowing", zap.String("host", target.Host), zap.Error(err))
		return true, ""
	}

	group := rules.FindGroup(a.userAgent)
	if group == nil {
		return true, ""
	}
	if group.Test(target.RequestURI()) {
		return true, ""
	}
	return false, "disallowed by robots.txt"
}

func (a *RobotsAgent) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(target.Scheme + "://" + target.Host)
	if rules, ok := a.cached(key); ok {
		return rules, nil
	}

	v, err, _ := a.group.Do(key, func() (interface{}, error) {
		if rules, ok := a.cached(key); ok {
			return rules, nil
		}
		rules, err := a.fetch(ctx, key+"/robots.txt")
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.cache[key] = robotsEntry{fetched: time.Now(), rules: rules}
		a.mu.Unlock()
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*robotstxt.RobotsData), nil
}

func (a *RobotsAgent) cached(key string) (*robotstxt.RobotsData, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.cache[key]
	if !ok || time.Since(entry.fetched) >= a.ttl {
		return nil, false
	}
	return entry.rules, true
}

func (a *RobotsAgent) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("robots returned status %d", resp.StatusCode)
	}

	// 4xx means no rules
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// Purge evicts cached rules for a scheme://host origin
func (a *RobotsAgent) Purge(origin string) {
	a.mu.Lock()
	delete(a.cache, strings.ToLower(strings.TrimRight(origin, "/")))
	a.mu.Unlock()
}
