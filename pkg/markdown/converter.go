// Package markdown converts a pruned HTML tree into markdown.
package markdown

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var ErrNilDocument = errors.New("nil document")

// ConversionError marks a subtree that could not be mapped to markdown. The
// subtree is omitted from the output; the rest of the page still converts.
type ConversionError struct {
	Node   *html.Node
	Reason string
}

func (e *ConversionError) Error() string {
	tag := "node"
	if e.Node != nil && e.Node.Type == html.ElementNode {
		tag = e.Node.Data
	}
	return fmt.Sprintf("skipped <%s>: %s", tag, e.Reason)
}

// Result is the outcome of converting one page
type Result struct {
	Title    string
	Markdown string
	Skipped  []*ConversionError
}

// skipTags never produce markdown
var skipTags = map[string]bool{
	"head": true, "script": true, "style": true, "noscript": true,
	"template": true, "svg": true, "iframe": true, "canvas": true,
	"object": true, "embed": true, "button": true, "input": true,
	"select": true, "textarea": true, "link": true, "meta": true,
	"title": true,
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"header": true, "footer": true, "aside": true, "nav": true,
	"figure": true, "figcaption": true, "dl": true, "dt": true, "dd": true,
	"details": true, "summary": true, "address": true, "form": true,
	"fieldset": true, "body": true, "html": true,
}

type converter struct {
	base    *url.URL
	skipped []*ConversionError
	// inCell is set while rendering a table cell, where a row must stay on
	// one line
	inCell bool
}

// Convert walks root in document order, starting at <body> when present,
// and returns the page title and markdown. Relative links resolve against
// the document's <base href> when it has one, otherwise against pageURL.
// Identical input always yields identical output.
func Convert(root *html.Node, pageURL string) (*Result, error) {
	if root == nil {
		return nil, ErrNilDocument
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	c := &converter{base: documentBase(root, base)}
	start := findFirstElement(root, "body")
	if start == nil {
		start = root
	}

	acc := &accumulator{}
	c.render(start, acc)

	return &Result{
		Title:    Title(root, pageURL),
		Markdown: finalize(acc.String()),
		Skipped:  c.skipped,
	}, nil
}

// documentBase applies the first <base href> to page. Unparsable or
// non-http bases are ignored.
func documentBase(root *html.Node, page *url.URL) *url.URL {
	var href string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "base") {
			if v := strings.TrimSpace(getAttr(n, "href")); v != "" {
				href = v
				return true
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if walk(child) {
				return true
			}
		}
		return false
	}
	if !walk(root) {
		return page
	}
	ref, err := url.Parse(href)
	if err != nil {
		return page
	}
	resolved := page.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return page
	}
	return resolved
}

// Title prefers the first <h1>, then <title>, then og:title, then pageURL
func Title(root *html.Node, pageURL string) string {
	if h1 := findFirstElement(root, "h1"); h1 != nil {
		if t := getTextContent(h1); t != "" {
			return t
		}
	}
	if t := findFirstElement(root, "title"); t != nil {
		if s := getTextContent(t); s != "" {
			return s
		}
	}
	if og := findMeta(root, "og:title"); og != "" {
		return og
	}
	return pageURL
}

func (c *converter) skip(n *html.Node, reason string) {
	c.skipped = append(c.skipped, &ConversionError{Node: n, Reason: reason})
}

func (c *converter) render(n *html.Node, acc *accumulator) {
	switch n.Type {
	case html.DocumentNode:
		c.renderChildren(n, acc)
	case html.TextNode:
		acc.writeProse(collapseSpace(n.Data))
	case html.ElementNode:
		c.renderElement(n, acc)
	}
}

func (c *converter) renderChildren(n *html.Node, acc *accumulator) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.render(child, acc)
	}
}

func (c *converter) renderElement(n *html.Node, acc *accumulator) {
	tag := strings.ToLower(n.Data)
	if skipTags[tag] {
		return
	}

	switch tag {
	case "br":
		if c.inCell {
			acc.writeText(" ")
			return
		}
		acc.lineBreak()
	case "hr":
		acc.block("---")
	case "h1", "h2", "h3", "h4", "h5", "h6":
		text := flatten(c.inline(n))
		if text == "" {
			return
		}
		acc.block(strings.Repeat("#", int(tag[1]-'0')) + " " + text)
	case "strong", "b":
		c.span(n, acc, func(inner string) string { return "**" + inner + "**" })
	case "em", "i":
		c.span(n, acc, func(inner string) string { return "_" + inner + "_" })
	case "del", "s", "strike":
		c.span(n, acc, func(inner string) string { return "~~" + inner + "~~" })
	case "code":
		c.inlineCode(n, acc)
	case "pre":
		c.codeBlock(n, acc)
	case "a":
		c.link(n, acc)
	case "img":
		c.image(n, acc)
	case "ul", "ol":
		c.list(n, tag == "ol", acc)
	case "blockquote":
		c.blockquote(n, acc)
	case "table":
		c.table(n, acc)
	default:
		if blockTags[tag] {
			acc.ensureBlankLine()
			c.renderChildren(n, acc)
			acc.ensureBlankLine()
			return
		}
		c.renderChildren(n, acc)
	}
}

// inline renders the children of n into a scratch accumulator
func (c *converter) inline(n *html.Node) string {
	sub := &accumulator{keepLeading: true}
	c.renderChildren(n, sub)
	return sub.String()
}

// blockContent renders the children of n as standalone markdown
func (c *converter) blockContent(n *html.Node) string {
	sub := &accumulator{}
	c.renderChildren(n, sub)
	return finalize(sub.String())
}

// span wraps the inline content of n, keeping the spaces around it outside
// the markers
func (c *converter) span(n *html.Node, acc *accumulator, wrap func(string) string) {
	s := c.inline(n)
	inner := flatten(s)
	if inner == "" {
		if s != "" {
			acc.writeText(" ")
		}
		return
	}
	if strings.HasPrefix(s, " ") {
		acc.writeText(" ")
	}
	acc.append(wrap(inner))
	if strings.HasSuffix(s, " ") {
		acc.writeText(" ")
	}
}

func (c *converter) resolve(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return c.base.ResolveReference(u).String(), nil
}

func (c *converter) link(n *html.Node, acc *accumulator) {
	href := strings.TrimSpace(getAttr(n, "href"))
	if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		c.span(n, acc, func(inner string) string { return inner })
		return
	}
	abs, err := c.resolve(href)
	if err != nil {
		c.skip(n, fmt.Sprintf("unresolvable link %q", href))
		return
	}
	c.span(n, acc, func(inner string) string { return "[" + inner + "](" + abs + ")" })
}

func (c *converter) image(n *html.Node, acc *accumulator) {
	src := strings.TrimSpace(getAttr(n, "src"))
	if src == "" {
		src = strings.TrimSpace(getAttr(n, "data-src"))
	}
	if src == "" {
		c.skip(n, "image without src")
		return
	}
	abs, err := c.resolve(src)
	if err != nil {
		c.skip(n, fmt.Sprintf("unresolvable image %q", src))
		return
	}
	alt := flatten(getAttr(n, "alt"))
	acc.append("![" + alt + "](" + abs + ")")
}

func (c *converter) inlineCode(n *html.Node, acc *accumulator) {
	text := flatten(rawText(n))
	if text == "" {
		return
	}
	if strings.Contains(text, "`") {
		acc.append("`` " + text + " ``")
		return
	}
	acc.append("`" + text + "`")
}

func (c *converter) codeBlock(n *html.Node, acc *accumulator) {
	code := strings.ReplaceAll(rawText(n), "\r\n", "\n")
	code = strings.TrimRight(strings.TrimLeft(code, "\n"), "\n \t")
	if strings.TrimSpace(code) == "" {
		return
	}
	fence := fenceFor(code)
	acc.block(fence + codeLanguage(n) + "\n" + code + "\n" + fence)
}

func (c *converter) list(n *html.Node, ordered bool, acc *accumulator) {
	index := 1
	if ordered {
		if start, err := strconv.Atoi(strings.TrimSpace(getAttr(n, "start"))); err == nil {
			index = start
		}
	}

	var lines []string
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		content := tightLines(c.blockContent(child))
		if strings.ToLower(child.Data) != "li" {
			// stray nested lists and wrappers belong to the previous item
			for _, l := range content {
				lines = append(lines, "  "+l)
			}
			continue
		}
		marker := "- "
		if ordered {
			marker = strconv.Itoa(index) + ". "
			index++
		}
		if len(content) == 0 {
			continue
		}
		lines = append(lines, marker+content[0])
		for _, l := range content[1:] {
			lines = append(lines, "  "+l)
		}
	}
	if len(lines) == 0 {
		return
	}
	acc.block(strings.Join(lines, "\n"))
}

func (c *converter) blockquote(n *html.Node, acc *accumulator) {
	content := c.blockContent(n)
	if content == "" {
		return
	}
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		if l == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + l
		}
	}
	acc.block(strings.Join(lines, "\n"))
}

// codeLanguage reads a language hint from the pre element or its first
// code child
func codeLanguage(pre *html.Node) string {
	nodes := []*html.Node{pre}
	if code := findFirstElement(pre, "code"); code != nil {
		nodes = append(nodes, code)
	}
	for _, n := range nodes {
		for _, attr := range []string{"data-language", "data-lang"} {
			if v := strings.TrimSpace(getAttr(n, attr)); v != "" {
				return v
			}
		}
		for _, class := range strings.Fields(getAttr(n, "class")) {
			for _, prefix := range []string{"language-", "lang-", "highlight-source-", "highlight-"} {
				if strings.HasPrefix(class, prefix) && len(class) > len(prefix) {
					return class[len(prefix):]
				}
			}
		}
	}
	return ""
}

// rawText concatenates text nodes verbatim, mapping <br> to a newline
func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			if strings.EqualFold(n.Data, "br") {
				b.WriteString("\n")
				return
			}
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				walk(child)
			}
		}
	}
	walk(n)
	return b.String()
}

func getTextContent(node *html.Node) string {
	if node == nil {
		return ""
	}
	return flatten(rawText(node))
}

func getAttr(node *html.Node, attr string) string {
	for _, a := range node.Attr {
		if strings.EqualFold(a.Key, attr) {
			return a.Val
		}
	}
	return ""
}

func findFirstElement(node *html.Node, tag string) *html.Node {
	if node == nil {
		return nil
	}
	if node.Type == html.ElementNode && strings.EqualFold(node.Data, tag) {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirstElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func findMeta(node *html.Node, property string) string {
	if node == nil {
		return ""
	}
	if node.Type == html.ElementNode && strings.EqualFold(node.Data, "meta") {
		key := getAttr(node, "property")
		if key == "" {
			key = getAttr(node, "name")
		}
		if strings.EqualFold(key, property) {
			if v := flatten(getAttr(node, "content")); v != "" {
				return v
			}
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if v := findMeta(child, property); v != "" {
			return v
		}
	}
	return ""
}
