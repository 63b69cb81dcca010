package frontier

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/amosWeiskopf/site2md/pkg/utils"
)

// Gate is an extra admission check, such as robots.txt. Allow receives the
// normalized URL and returns a detail string when it refuses.
type Gate interface {
	Allow(ctx context.Context, normalizedURL string) (bool, string)
}

// GateFunc adapts a function to Gate
type GateFunc func(ctx context.Context, normalizedURL string) (bool, string)

func (fn GateFunc) Allow(ctx context.Context, normalizedURL string) (bool, string) {
	return fn(ctx, normalizedURL)
}

// PatternGate filters URL paths with glob patterns. A URL must match one of
// Include when Include is non-empty, and must match none of Exclude.
type PatternGate struct {
	Include []string
	Exclude []string
}

func (g PatternGate) Allow(_ context.Context, normalizedURL string) (bool, string) {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return false, err.Error()
	}
	p := u.Path
	for _, pattern := range g.Exclude {
		if MatchPattern(pattern, p) {
			return false, "excluded by " + pattern
		}
	}
	if len(g.Include) == 0 {
		return true, ""
	}
	for _, pattern := range g.Include {
		if MatchPattern(pattern, p) {
			return true, ""
		}
	}
	return false, "not matched by include patterns"
}

// AssetGate refuses URLs that point at images, archives, stylesheets and other
// non-document files
var AssetGate = GateFunc(func(_ context.Context, normalizedURL string) (bool, string) {
	if utils.IsWebpageURL(normalizedURL) {
		return true, ""
	}
	return false, "not a document"
})

// MatchPattern matches a URL path against a glob. "/docs/*" matches the whole
// subtree, "*.pdf" matches by extension, anything else uses path.Match.
func MatchPattern(pattern, p string) bool {
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") {
		if strings.HasSuffix(strings.ToLower(p), strings.ToLower(strings.TrimPrefix(pattern, "*"))) {
			return true
		}
	}

	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}

	// patterns without a slash also match the last path segment
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}

	return false
}
