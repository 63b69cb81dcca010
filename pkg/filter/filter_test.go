package filter

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const fixture = `<html><head><title>T</title><script>var x = 1;</script></head><body>
<div id="main" class="content">
<p class="keep">Keep me</p>
<div class="ad-banner">Ad</div>
<ul><li>one</li><li>two</li><li>three</li></ul>
<div data-track="x">Tracked</div>
<span></span>
<a href="/x" target="_blank">External</a>
</div>
<div class="sidebar"><div class="widget">Widget</div><p>Sidebar text</p></div>
<footer>Footer</footer>
</body></html>`

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, html.Render(&buf, n))
	return buf.String()
}

func TestApplySupportedSelectors(t *testing.T) {
	tests := []struct {
		selector string
		gone     []string
		kept     []string
	}{
		{"footer", []string{"Footer"}, []string{"Keep me"}},
		{"#main", []string{"Keep me", "Ad", "Tracked"}, []string{"Widget"}},
		{".sidebar", []string{"Widget", "Sidebar text"}, []string{"Keep me"}},
		{"[class*='ad-']", []string{"Ad"}, []string{"Keep me"}},
		{"[data-track]", []string{"Tracked"}, []string{"Ad"}},
		{"a[target='_blank']", []string{"External"}, []string{"Keep me"}},
		{"#main > .keep", []string{"Keep me"}, []string{"Ad"}},
		{".content p", []string{"Keep me"}, []string{"Sidebar text"}},
		{"li:first-child", []string{"one"}, []string{"two", "three"}},
		{"li:last-child", []string{"three"}, []string{"one", "two"}},
		{"li:nth-child(2)", []string{"two"}, []string{"one", "three"}},
		{"#main > div:not([data-track])", []string{"Ad"}, []string{"Tracked"}},
		{"span:empty", []string{"<span>"}, []string{"Keep me"}},
		{".sidebar *", []string{"Widget", "Sidebar text"}, []string{`class="sidebar"`}},
		{"footer, .ad-banner", []string{"Footer", "Ad"}, []string{"Keep me"}},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			out, err := Prune(parse(t, fixture), []string{tt.selector})
			require.NoError(t, err)
			rendered := render(t, out)
			for _, s := range tt.gone {
				assert.NotContains(t, rendered, s)
			}
			for _, s := range tt.kept {
				assert.Contains(t, rendered, s)
			}
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	f, err := Compile(Merge(BaseDefaults(), []string{".sidebar", "[class*='ad-']", "[data-track]", "footer"}))
	require.NoError(t, err)

	once := f.Apply(parse(t, fixture))
	first := render(t, once)
	second := render(t, f.Apply(once))

	assert.Equal(t, first, second)
	assert.NotContains(t, first, "var x")
}

func TestApplyPositionalSelectorsMatchAfresh(t *testing.T) {
	tests := []struct {
		selector string
		first    []string
		second   []string
	}{
		{"li:first-child", []string{"one"}, []string{"two"}},
		{"li:last-child", []string{"three"}, []string{"two"}},
		{"li:nth-child(2)", []string{"two"}, []string{"three"}},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			f, err := Compile([]string{tt.selector})
			require.NoError(t, err)

			once := f.Apply(parse(t, fixture))
			first := render(t, once)
			for _, s := range tt.first {
				assert.NotContains(t, first, ">"+s+"<")
			}
			for _, s := range tt.second {
				assert.Contains(t, first, ">"+s+"<")
			}

			second := render(t, f.Apply(once))
			assert.NotEqual(t, first, second, "a positional rule removes the next sibling on a second pass")
			for _, s := range tt.second {
				assert.NotContains(t, second, ">"+s+"<")
			}
		})
	}
}

func TestApplyOrderInsensitiveForContainedRules(t *testing.T) {
	forward, err := Prune(parse(t, fixture), []string{".sidebar", ".sidebar .widget"})
	require.NoError(t, err)
	reverse, err := Prune(parse(t, fixture), []string{".sidebar .widget", ".sidebar"})
	require.NoError(t, err)

	assert.Equal(t, render(t, forward), render(t, reverse))
	assert.NotContains(t, render(t, forward), "Widget")
}

func TestLaterRuleMatchingNothingIsNotAnError(t *testing.T) {
	out, err := Prune(parse(t, fixture), []string{"#main", "#main .keep"})
	require.NoError(t, err)
	assert.NotContains(t, render(t, out), "Keep me")
}

func TestCompileSyntaxError(t *testing.T) {
	for _, bad := range []string{"div[", ":no-such-pseudo", "a >> b"} {
		t.Run(bad, func(t *testing.T) {
			f, err := Compile([]string{".ok", bad, "footer"})
			require.Error(t, err)
			assert.Nil(t, f)

			var syntaxErr *SelectorSyntaxError
			require.True(t, errors.As(err, &syntaxErr))
			assert.Equal(t, bad, syntaxErr.Selector)
			assert.Contains(t, err.Error(), bad)
		})
	}
}

func TestPruneSyntaxErrorLeavesTreeUntouched(t *testing.T) {
	doc := parse(t, fixture)
	before := render(t, doc)

	_, err := Prune(doc, []string{"footer", "div["})
	require.Error(t, err)
	assert.Equal(t, before, render(t, doc))
}

func TestCompileSkipsBlankEntries(t *testing.T) {
	f, err := Compile([]string{"", "  ", "footer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"footer"}, f.Selectors())
	assert.Equal(t, 1, f.Len())
}

func TestMerge(t *testing.T) {
	got := Merge([]string{"nav", ".sidebar", "footer"}, []string{".ads", "nav", " .sidebar ", ".ads"})
	assert.Equal(t, []string{"nav", ".sidebar", "footer", ".ads"}, got)

	assert.Empty(t, Merge(nil, nil))
}

func TestDefaultsCompile(t *testing.T) {
	_, err := Compile(BaseDefaults())
	require.NoError(t, err)
	_, err = Compile(DocumentationDefaults())
	require.NoError(t, err)

	// callers get copies
	d := DocumentationDefaults()
	d[0] = "mutated"
	assert.NotEqual(t, "mutated", DocumentationDefaults()[0])
}

func TestDocumentationDefaultsStripChrome(t *testing.T) {
	src := `<html><body>
<header>Site header</header>
<nav>Menu</nav>
<div class="breadcrumb">Home / Docs</div>
<main><h1>Guide</h1><p>Body text</p></main>
<aside class="docs-sidebar">Links</aside>
<div id="toc">Contents</div>
<footer>Copyright</footer>
</body></html>`

	out, err := Prune(parse(t, src), Merge(BaseDefaults(), DocumentationDefaults()))
	require.NoError(t, err)
	rendered := render(t, out)

	assert.Contains(t, rendered, "Guide")
	assert.Contains(t, rendered, "Body text")
	for _, s := range []string{"Site header", "Menu", "Home / Docs", "Links", "Contents", "Copyright"} {
		assert.NotContains(t, rendered, s)
	}
}
