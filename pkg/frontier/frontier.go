// Package frontier holds the set of URLs to crawl and decides which
// discovered URLs are admitted.
package frontier

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/amosWeiskopf/site2md/internal/models"
	"github.com/amosWeiskopf/site2md/pkg/utils"
)

var (
	ErrInvalidSeed    = errors.New("invalid seed URL")
	ErrInvalidOptions = errors.New("invalid frontier options")
)

// Reason explains why a URL was not admitted
type Reason string

const (
	ReasonInvalidURL Reason = "invalid url"
	ReasonVisited    Reason = "already visited"
	ReasonTooDeep    Reason = "max depth exceeded"
	ReasonExternal   Reason = "external domain"
	ReasonPageLimit  Reason = "max pages reached"
	ReasonDisallowed Reason = "disallowed"
	ReasonClosed     Reason = "frontier closed"
)

// Rejection is a control signal, not a failure
type Rejection struct {
	URL    string
	Reason Reason
	Detail string
}

func (r *Rejection) String() string {
	if r.Detail == "" {
		return fmt.Sprintf("rejected %s: %s", r.URL, r.Reason)
	}
	return fmt.Sprintf("rejected %s: %s (%s)", r.URL, r.Reason, r.Detail)
}

// Decision is the result of Admit
type Decision struct {
	URL       string
	Admitted  bool
	Rejection *Rejection
}

// Options is the admission policy
type Options struct {
	MaxPages            int
	MaxDepth            int
	FollowExternalLinks bool

	// Gates are consulted, in order, after the built-in checks pass
	Gates []Gate
}

// Frontier is a FIFO queue of admitted URLs plus the visited set. Admit and
// Next are atomic with respect to each other.
type Frontier struct {
	opts       Options
	seed       string
	seedDomain string

	mu       sync.Mutex
	cond     *sync.Cond
	queue    *list.List
	visited  map[string]struct{}
	inFlight int
	closed   bool
}

// New creates a frontier whose domain restriction is anchored at seed. The
// seed itself is not admitted; callers Admit it at depth 0.
func New(seed string, opts Options) (*Frontier, error) {
	if opts.MaxPages < 1 || opts.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max pages %d, max depth %d", ErrInvalidOptions, opts.MaxPages, opts.MaxDepth)
	}
	normalized, err := utils.NormalizeURL(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}

	f := &Frontier{
		opts:       opts,
		seed:       normalized,
		seedDomain: utils.RegisteredDomain(u.Hostname()),
		queue:      list.New(),
		visited:    make(map[string]struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	return f, nil
}

// Seed returns the normalized seed URL
func (f *Frontier) Seed() string {
	return f.seed
}

// SeedDomain returns the registered domain of the seed
func (f *Frontier) SeedDomain() string {
	return f.seedDomain
}

// Admit resolves rawURL against from, normalizes it and enqueues it when the
// policy allows. The visited set is keyed by the normalized form while the
// entry keeps the resolved address for fetching. Gates may do I/O, so they
// run outside the lock and every built-in check is repeated under the lock
// afterwards.
func (f *Frontier) Admit(ctx context.Context, rawURL string, depth int, from string) Decision {
	abs, err := utils.AbsoluteURL(from, rawURL)
	if err != nil {
		return reject(rawURL, ReasonInvalidURL, err.Error())
	}
	normalized, err := utils.NormalizeURL(abs)
	if err != nil {
		return reject(rawURL, ReasonInvalidURL, err.Error())
	}

	f.mu.Lock()
	rej := f.checkLocked(normalized, depth)
	f.mu.Unlock()
	if rej != nil {
		return Decision{URL: normalized, Rejection: rej}
	}

	for _, g := range f.opts.Gates {
		if ok, detail := g.Allow(ctx, normalized); !ok {
			return reject(normalized, ReasonDisallowed, detail)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if rej := f.checkLocked(normalized, depth); rej != nil {
		return Decision{URL: normalized, Rejection: rej}
	}

	f.visited[normalized] = struct{}{}
	f.queue.PushBack(models.FrontierEntry{URL: normalized, FetchURL: abs, Depth: depth, DiscoveredFrom: from})
	f.cond.Signal()
	return Decision{URL: normalized, Admitted: true}
}

func (f *Frontier) checkLocked(normalized string, depth int) *Rejection {
	if f.closed {
		return &Rejection{URL: normalized, Reason: ReasonClosed}
	}
	if _, ok := f.visited[normalized]; ok {
		return &Rejection{URL: normalized, Reason: ReasonVisited}
	}
	if depth > f.opts.MaxDepth {
		return &Rejection{URL: normalized, Reason: ReasonTooDeep, Detail: fmt.Sprintf("depth %d > %d", depth, f.opts.MaxDepth)}
	}
	if !f.opts.FollowExternalLinks {
		u, err := url.Parse(normalized)
		if err != nil {
			return &Rejection{URL: normalized, Reason: ReasonInvalidURL, Detail: err.Error()}
		}
		if domain := utils.RegisteredDomain(u.Hostname()); domain != f.seedDomain {
			return &Rejection{URL: normalized, Reason: ReasonExternal, Detail: domain}
		}
	}
	if len(f.visited) >= f.opts.MaxPages {
		return &Rejection{URL: normalized, Reason: ReasonPageLimit}
	}
	return nil
}

func reject(u string, reason Reason, detail string) Decision {
	return Decision{URL: u, Rejection: &Rejection{URL: u, Reason: reason, Detail: detail}}
}

// Next dequeues the oldest entry and marks it in flight. While the queue is
// empty but other entries are in flight it blocks, since those may still
// admit links. It returns false once the queue is empty with nothing in
// flight, after Close, or when ctx is done.
func (f *Frontier) Next(ctx context.Context) (models.FrontierEntry, bool) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.closed || ctx.Err() != nil {
			return models.FrontierEntry{}, false
		}
		if e := f.queue.Front(); e != nil {
			f.queue.Remove(e)
			f.inFlight++
			return e.Value.(models.FrontierEntry), true
		}
		if f.inFlight == 0 {
			return models.FrontierEntry{}, false
		}
		f.cond.Wait()
	}
}

// Done marks one entry returned by Next as finished. Call it after the
// entry's links have been admitted.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	f.cond.Broadcast()
}

// Close drops every queued entry, rejects further admissions and wakes all
// waiters. It returns the number of dropped entries.
func (f *Frontier) Close() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	dropped := f.queue.Len()
	f.queue.Init()
	f.closed = true
	f.cond.Broadcast()
	return dropped
}

// Size returns the number of queued entries
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// IsEmpty reports whether no entries are queued
func (f *Frontier) IsEmpty() bool {
	return f.Size() == 0
}

// Admitted returns the size of the visited set
func (f *Frontier) Admitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// InFlight returns the number of entries handed out by Next and not yet Done
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Closed reports whether Close was called
func (f *Frontier) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
