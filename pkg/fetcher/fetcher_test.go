package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

type fakeRenderer struct {
	mu        sync.Mutex
	calls     []string
	html      string
	status    int
	links     []string
	navErr    error
	expandErr error
	scrollErr error
	navOpts   NavigateOptions
	closed    int
}

func (r *fakeRenderer) Navigate(ctx context.Context, url string, opts NavigateOptions) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "navigate")
	r.navOpts = opts
	if r.navErr != nil {
		return nil, r.navErr
	}
	return &Document{
		URL:        url,
		FinalURL:   url,
		StatusCode: r.status,
		HTML:       r.html,
		Links:      r.links,
		release: func() {
			r.mu.Lock()
			r.closed++
			r.mu.Unlock()
		},
	}, nil
}

func (r *fakeRenderer) Expand(_ context.Context, doc *Document, _ string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "expand")
	if r.expandErr != nil {
		return 0, r.expandErr
	}
	doc.HTML = "<html><body><p>expanded</p></body></html>"
	return 2, nil
}

func (r *fakeRenderer) Scroll(_ context.Context, _ *Document, max int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "scroll")
	return max, r.scrollErr
}

func TestFetchStepOrder(t *testing.T) {
	r := &fakeRenderer{status: 200, html: "<p>x</p>"}
	f := New(r, Options{
		JavaScriptEnabled:   true,
		WaitForContent:      true,
		JSWaitTime:          time.Second,
		ExpandMenus:         true,
		ScrollForContent:    true,
		MaxScrollIterations: 3,
	}, nil)

	out, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"navigate", "expand", "scroll"}, r.calls)
	assert.True(t, r.navOpts.WaitForContent)
	assert.Equal(t, time.Second, r.navOpts.JSWaitTime)
	assert.Equal(t, 1, r.closed)

	// the expanded DOM is what gets parsed
	var text string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text += n.Data
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(out.Root)
	assert.Equal(t, "expanded", text)
}

func TestFetchSkipsDisabledSteps(t *testing.T) {
	r := &fakeRenderer{status: 200, html: "<p>x</p>"}
	f := New(r, Options{WaitForContent: true, ScrollForContent: true}, nil)

	_, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"navigate"}, r.calls)
	assert.False(t, r.navOpts.WaitForContent, "waiting needs JavaScript")
}

func TestFetchExpandAndScrollAreBestEffort(t *testing.T) {
	r := &fakeRenderer{status: 200, html: "<p>x</p>", expandErr: errors.New("no menu"), scrollErr: errors.New("detached")}
	f := New(r, Options{ExpandMenus: true, ScrollForContent: true, MaxScrollIterations: 2}, nil)

	out, err := f.Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.NotNil(t, out.Root)
	assert.Equal(t, []string{"navigate", "expand", "scroll"}, r.calls)
}

func TestFetchStatusHandling(t *testing.T) {
	tests := []struct {
		status int
		ok     bool
	}{
		{0, true},
		{200, true},
		{204, true},
		{299, true},
		{301, false},
		{404, false},
		{500, false},
	}
	for _, tt := range tests {
		r := &fakeRenderer{status: tt.status, html: "<p>x</p>"}
		out, err := New(r, Options{}, nil).Fetch(context.Background(), "https://example.com/")
		if tt.ok {
			assert.NoError(t, err, tt.status)
			assert.NotNil(t, out, tt.status)
			continue
		}
		assert.Nil(t, out, tt.status)
		var fe *FetchError
		require.ErrorAs(t, err, &fe, tt.status)
		assert.Equal(t, KindNonSuccessStatus, fe.Kind)
		assert.Equal(t, tt.status, fe.StatusCode)
		assert.Equal(t, 1, r.closed, "document released on failure")
	}
}

func TestFetchClassifiesRendererErrors(t *testing.T) {
	r := &fakeRenderer{navErr: errors.New("connection reset")}
	_, err := New(r, Options{}, nil).Fetch(context.Background(), "https://example.com/")
	assert.Equal(t, KindNetwork, KindOf(err))

	r = &fakeRenderer{navErr: context.DeadlineExceeded}
	_, err = New(r, Options{}, nil).Fetch(context.Background(), "https://example.com/")
	assert.Equal(t, KindTimeout, KindOf(err))

	passthrough := &FetchError{Kind: KindRender, URL: "https://example.com/", Err: errors.New("crashed")}
	r = &fakeRenderer{navErr: passthrough}
	_, err = New(r, Options{}, nil).Fetch(context.Background(), "https://example.com/")
	assert.Same(t, passthrough, err)
}

func TestFetchPrefersBackendLinks(t *testing.T) {
	r := &fakeRenderer{status: 200, html: `<a href="/a">a</a>`, links: []string{"https://example.com/from-backend"}}
	out, err := New(r, Options{}, nil).Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/from-backend"}, out.Links)

	r = &fakeRenderer{status: 200, html: `<a href="/a">a</a>`}
	out, err = New(r, Options{}, nil).Fetch(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a"}, out.Links)
}

func TestFetchErrorMessages(t *testing.T) {
	err := &FetchError{Kind: KindNonSuccessStatus, URL: "https://x/", StatusCode: 503}
	assert.Equal(t, "fetch https://x/: status 503", err.Error())

	err = &FetchError{Kind: KindTimeout, URL: "https://x/", Err: context.DeadlineExceeded}
	assert.Equal(t, "fetch https://x/: timeout: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
