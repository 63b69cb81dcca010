package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/amosWeiskopf/site2md/pkg/utils"
)

var errBodyTooLarge = errors.New("response body too large")

// HTTPOptions configures HTTPRenderer
type HTTPOptions struct {
	Client       *http.Client
	MaxBodyBytes int64
}

// HTTPRenderer fetches the static DOM with net/http. It does not run
// JavaScript, so Expand and Scroll do nothing.
type HTTPRenderer struct {
	client       *http.Client
	maxBodyBytes int64
}

// NewHTTPClient returns a client with pooled keep-alive connections. Per-page
// deadlines come from the request context.
func NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: transport}
}

// NewHTTPRenderer constructs an HTTP backend
func NewHTTPRenderer(opts HTTPOptions) *HTTPRenderer {
	if opts.Client == nil {
		opts.Client = NewHTTPClient()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}
	return &HTTPRenderer{client: opts.Client, maxBodyBytes: opts.MaxBodyBytes}
}

// Client exposes the underlying client, e.g. for robots.txt fetches
func (r *HTTPRenderer) Client() *http.Client {
	return r.client
}

func (r *HTTPRenderer) Navigate(ctx context.Context, rawURL string, opts NavigateOptions) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: rawURL, Err: fmt.Errorf("build request: %w", err)}
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, classify(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	doc := &Document{URL: rawURL, FinalURL: finalURL, StatusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return doc, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !utils.IsWebpageMIME(contentType) {
		return nil, &FetchError{Kind: KindRender, URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unsupported content type %q", contentType)}
	}

	body, err := r.readBody(resp)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return nil, &FetchError{Kind: KindRender, URL: rawURL, StatusCode: resp.StatusCode, Err: err}
		}
		return nil, classify(ctx, rawURL, err)
	}
	doc.HTML = body
	return doc, nil
}

func (r *HTTPRenderer) Expand(context.Context, *Document, string) (int, error) {
	return 0, nil
}

func (r *HTTPRenderer) Scroll(context.Context, *Document, int) (int, error) {
	return 0, nil
}

// readBody decodes Content-Encoding, converts the charset to UTF-8 and caps
// the size
func (r *HTTPRenderer) readBody(resp *http.Response) (string, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	limited := io.LimitReader(reader, r.maxBodyBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > r.maxBodyBytes {
		return "", fmt.Errorf("%w: limit %d bytes", errBodyTooLarge, r.maxBodyBytes)
	}

	utf8Reader, err := charset.NewReader(bytes.NewReader(raw), resp.Header.Get("Content-Type"))
	if err != nil {
		return string(raw), nil
	}
	decoded, err := io.ReadAll(utf8Reader)
	if err != nil {
		return string(raw), nil
	}
	return string(decoded), nil
}
