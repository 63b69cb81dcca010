package markdown

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const pageURL = "https://example.com/docs/page"

func convert(t *testing.T, src string) *Result {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	res, err := Convert(doc, pageURL)
	require.NoError(t, err)
	return res
}

func TestConvertSingleParagraph(t *testing.T) {
	res := convert(t, "<p>hello</p>")
	assert.Equal(t, "hello", res.Markdown)
	assert.Empty(t, res.Skipped)
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "headings and inline emphasis",
			src:  `<h1>Title</h1><p>First <strong>bold</strong> and <em>it</em>.</p><h2>Sub</h2><p>Second</p>`,
			want: "# Title\n\nFirst **bold** and _it_.\n\n## Sub\n\nSecond",
		},
		{
			name: "spaces stay outside markers",
			src:  `<p><strong> bold </strong>text</p>`,
			want: "**bold** text",
		},
		{
			name: "nested and ordered lists",
			src:  `<ul><li>one</li><li>two<ul><li>nested</li></ul></li></ul><ol start="3"><li>a</li><li>b</li></ol>`,
			want: "- one\n- two\n  - nested\n\n3. a\n4. b",
		},
		{
			name: "links and images resolve to absolute",
			src:  `<p>See <a href="../api">the API</a> and <img src="/img/logo.png" alt="Logo"></p>`,
			want: "See [the API](https://example.com/api) and ![Logo](https://example.com/img/logo.png)",
		},
		{
			name: "fenced code keeps language and whitespace",
			src:  "<pre><code class=\"language-go\">func main() {\n\tfmt.Println(\"hi\")\n}\n</code></pre>",
			want: "```go\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n```",
		},
		{
			name: "fence grows past backticks in code",
			src:  "<pre>a ``` b</pre>",
			want: "````\na ``` b\n````",
		},
		{
			name: "inline code",
			src:  `<p>Run <code>go test</code> now</p>`,
			want: "Run `go test` now",
		},
		{
			name: "blockquote",
			src:  `<blockquote><p>Quoted</p><p>More</p></blockquote>`,
			want: "> Quoted\n>\n> More",
		},
		{
			name: "line breaks and rules",
			src:  `<p>line one<br>line two</p><hr><p>after</p>`,
			want: "line one\\\nline two\n\n---\n\nafter",
		},
		{
			name: "trailing break is dropped",
			src:  `<p>end<br></p>`,
			want: "end",
		},
		{
			name: "table",
			src:  `<table><thead><tr><th>Name</th><th>Value</th></tr></thead><tbody><tr><td>a</td><td>1</td></tr><tr><td>b|c</td><td>2</td></tr></tbody></table>`,
			want: "| Name | Value |\n| --- | --- |\n| a | 1 |\n| b\\|c | 2 |",
		},
		{
			name: "breaks inside table cells become spaces",
			src:  `<table><tr><th>Key</th><th>Notes</th></tr><tr><td>a<br>b</td><td>line<br><br>next<br></td></tr></table>`,
			want: "| Key | Notes |\n| --- | --- |\n| a b | line next |",
		},
		{
			name: "blank lines collapse",
			src:  "<div><p>a</p>\n\n\n<div></div><p>b</p></div>",
			want: "a\n\nb",
		},
		{
			name: "scripts never render",
			src:  `<p>a</p><script>bad()</script>`,
			want: "a",
		},
		{
			name: "text that looks like block markup is escaped",
			src:  `<p># not a heading</p><p>1. not a list</p><p>- not an item</p><p>&gt; not a quote</p>`,
			want: "\\# not a heading\n\n1\\. not a list\n\n\\- not an item\n\n\\> not a quote",
		},
		{
			name: "text that looks like inline markup is escaped",
			src:  `<p>a *b* c_d `+"`e`"+` [f] g\h</p>`,
			want: "a \\*b\\* c\\_d \\`e\\` \\[f] g\\\\h",
		},
		{
			name: "escaping applies after a line break and inside list items",
			src:  `<p>one<br># two</p><ul><li>3. three</li></ul>`,
			want: "one\\\n\\# two\n\n- 3\\. three",
		},
		{
			name: "numbers and markers mid-line stay as written",
			src:  `<p>Version 2. Released in 2024 - stable + fast</p><h2>1. Setup</h2>`,
			want: "Version 2. Released in 2024 - stable + fast\n\n## 1. Setup",
		},
		{
			name: "code is never escaped",
			src:  "<p><code>a_b*c</code></p><pre># comment\n- item</pre>",
			want: "`a_b*c`\n\n```\n# comment\n- item\n```",
		},
		{
			name: "base href overrides page url",
			src:  `<html><head><base href="https://cdn.example.com/v2/"></head><body><p><a href="page">Page</a> <img src="logo.png" alt="Logo"></p></body></html>`,
			want: "[Page](https://cdn.example.com/v2/page) ![Logo](https://cdn.example.com/v2/logo.png)",
		},
		{
			name: "relative base resolves against page url",
			src:  `<html><head><base href="/v3/"></head><body><p><a href="page">Page</a></p></body></html>`,
			want: "[Page](https://example.com/v3/page)",
		},
		{
			name: "javascript links keep their text",
			src:  `<p><a href="javascript:void(0)">Toggle</a></p>`,
			want: "Toggle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convert(t, tt.src).Markdown)
		})
	}
}

func TestConvertSkipsMalformedSubtrees(t *testing.T) {
	res := convert(t, `<p>x <a href="%zz">bad</a> y</p><table></table><img alt="no source"><p>ok</p>`)

	assert.Equal(t, "x y\n\nok", res.Markdown)
	require.Len(t, res.Skipped, 3)
	assert.Contains(t, res.Skipped[0].Error(), "<a>")
	assert.Contains(t, res.Skipped[1].Error(), "<table>")
	assert.Contains(t, res.Skipped[2].Error(), "<img>")

	var convErr *ConversionError
	assert.True(t, errors.As(res.Skipped[0], &convErr))
}

func TestConvertIsDeterministic(t *testing.T) {
	src := `<h1>T</h1><ul><li>a</li><li>b</li></ul><table><tr><td>1</td></tr></table><p>x <a href="/y">y</a></p>`
	first := convert(t, src).Markdown
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, convert(t, src).Markdown)
	}
}

func TestConvertNilDocument(t *testing.T) {
	_, err := Convert(nil, pageURL)
	assert.ErrorIs(t, err, ErrNilDocument)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"h1 wins", `<html><head><title>Doc title</title></head><body><h1>Main <em>heading</em></h1></body></html>`, "Main heading"},
		{"title element", `<html><head><title> Doc title </title></head><body><p>x</p></body></html>`, "Doc title"},
		{"og title", `<html><head><meta property="og:title" content="OG"></head><body><p>x</p></body></html>`, "OG"},
		{"url fallback", `<p>x</p>`, pageURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, convert(t, tt.src).Title)
		})
	}
}
