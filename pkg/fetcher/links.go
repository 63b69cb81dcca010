package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/amosWeiskopf/site2md/pkg/utils"
)

// ExtractLinks returns the absolute http(s) targets of every anchor in root,
// in document order. Links are kept as written, only resolved; two
// spellings of one normalized URL are reported once. A <base href>
// overrides pageURL.
func ExtractLinks(root *html.Node, pageURL string) []string {
	if root == nil {
		return nil
	}
	doc := goquery.NewDocumentFromNode(root)

	base := BaseURL(root, pageURL)

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		abs, err := utils.AbsoluteURL(base, href)
		if err != nil {
			return
		}
		key, err := utils.NormalizeURL(abs)
		if err != nil {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, abs)
	})
	return links
}

// BaseURL returns the document's <base href> resolved against pageURL, or
// pageURL when there is none
func BaseURL(root *html.Node, pageURL string) string {
	if root == nil {
		return pageURL
	}
	href, ok := goquery.NewDocumentFromNode(root).Find("base[href]").First().Attr("href")
	if !ok {
		return pageURL
	}
	resolved, err := utils.AbsoluteURL(pageURL, strings.TrimSpace(href))
	if err != nil {
		return pageURL
	}
	return resolved
}
