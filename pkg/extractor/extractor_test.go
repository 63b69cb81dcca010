package extractor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const article = `<html><head><title>Release notes</title></head><body>
<nav><a href="/">Home</a> <a href="/docs">Docs</a> <a href="/blog">Blog</a></nav>
<article>
<h1>Release notes</h1>
<p>The scheduler now keeps a single queue per worker and steals work from its neighbours when it runs dry, which keeps tail latency flat under bursty load.</p>
<p>Configuration files are validated before the first job is accepted. Unknown keys are reported with their line number so typos no longer silently fall back to defaults.</p>
<p>The storage layer writes checkpoints every thirty seconds and compacts old segments in the background without blocking readers or writers.</p>
</article>
<footer>Copyright Example Corp. All rights reserved.</footer>
</body></html>`

func parse(t *testing.T, doc string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return root
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func TestMainContent(t *testing.T) {
	e := New(nil)
	node, ok := e.MainContent(parse(t, article), "https://example.com/notes")
	require.True(t, ok)
	text := textOf(node)
	assert.Contains(t, text, "steals work from its neighbours")
	assert.NotContains(t, text, "All rights reserved")
}

func TestMainContentFallsBack(t *testing.T) {
	e := New(nil)
	root := parse(t, `<html><body></body></html>`)
	node, ok := e.MainContent(root, "https://example.com/")
	assert.False(t, ok)
	assert.Same(t, root, node)

	node, ok = e.MainContent(nil, "https://example.com/")
	assert.False(t, ok)
	assert.Nil(t, node)
}
