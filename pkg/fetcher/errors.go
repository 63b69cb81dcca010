package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a fetch failure
type Kind string

const (
	KindTimeout          Kind = "timeout"
	KindNetwork          Kind = "network"
	KindRender           Kind = "render"
	KindNonSuccessStatus Kind = "non_success_status"
)

// FetchError is returned for every failed fetch. No document accompanies it.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindNonSuccessStatus {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is a timeout worth retrying
func (e *FetchError) Retryable() bool {
	return e.Kind == KindTimeout && !errors.Is(e.Err, context.Canceled)
}

// KindOf returns the Kind of err, or "" when err is not a FetchError
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// classify maps a transport error to a FetchError. ctx is the per-page
// context so an expired deadline is reported as a timeout even when the
// underlying error is a plain cancellation.
func classify(ctx context.Context, rawURL string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
