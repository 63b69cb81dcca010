// Package extractor narrows a page down to its main content with trafilatura.
package extractor

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/markusmobius/go-trafilatura"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Extractor handles main-content extraction from a parsed page
type Extractor struct {
	logger *zap.Logger
}

// New creates a new Extractor instance
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger.Named("extractor")}
}

// MainContent returns the main content subtree of root. When extraction
// fails or yields no text the original root is returned with ok false.
func (e *Extractor) MainContent(root *html.Node, pageURL string) (node *html.Node, ok bool) {
	if root == nil {
		return root, false
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		e.logger.Debug("render for extraction failed", zap.String("url", pageURL), zap.Error(err))
		return root, false
	}

	opts := trafilatura.Options{
		IncludeImages:   true,
		IncludeLinks:    true,
		ExcludeComments: true,
	}
	if u, err := url.Parse(pageURL); err == nil {
		opts.OriginalURL = u
	}

	result, err := trafilatura.Extract(&buf, opts)
	if err != nil {
		e.logger.Debug("main content extraction failed", zap.String("url", pageURL), zap.Error(err))
		return root, false
	}
	if result == nil || result.ContentNode == nil || strings.TrimSpace(result.ContentText) == "" {
		return root, false
	}
	return result.ContentNode, true
}
