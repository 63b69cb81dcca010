package utils

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	ErrMissingHost       = errors.New("URL has no host")
)

var (
	spaceRe          = regexp.MustCompile(`\s+`)
	invalidFileChars = regexp.MustCompile(`[<>:"/\\|?*\s]`)
	repeatedSep      = regexp.MustCompile(`_+`)
)

// maxFilenameBytes leaves room for a collision suffix and the .md extension
const maxFilenameBytes = 200

// CleanText removes extra whitespace and normalizes text
func CleanText(text string) string {
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// TruncateText truncates text to a maximum length, preserving word boundaries
func TruncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}

	truncated := text[:maxLength]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}

// ResolveURL resolves ref against base and normalizes the result
func ResolveURL(base, ref string) (string, error) {
	u, err := resolve(base, ref)
	if err != nil {
		return "", err
	}
	return normalize(u)
}

// AbsoluteURL resolves ref against base and drops the fragment, keeping the
// path and query as written. This is the address to request and to resolve
// relative links against; NormalizeURL gives the identity of the resource.
func AbsoluteURL(base, ref string) (string, error) {
	u, err := resolve(base, ref)
	if err != nil {
		return "", err
	}
	if err := checkHTTP(u); err != nil {
		return "", err
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" && u.RawPath == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

func resolve(base, ref string) (*url.URL, error) {
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", ref, err)
	}
	if base != "" {
		baseURL, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse base %q: %w", base, err)
		}
		refURL = baseURL.ResolveReference(refURL)
	}
	return refURL, nil
}

func checkHTTP(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return ErrMissingHost
	}
	return nil
}

// NormalizeURL returns the canonical form of an absolute http(s) URL so that
// syntactically different spellings of one resource compare equal.
//
// Scheme and host are lowercased, default ports dropped, the fragment removed,
// dot segments cleaned, a trailing slash stripped from non-root paths, an
// empty path turned into "/" and query parameters sorted by key.
func NormalizeURL(rawURL string) (string, error) {
	return ResolveURL("", rawURL)
}

func normalize(u *url.URL) (string, error) {
	if err := checkHTTP(u); err != nil {
		return "", err
	}
	scheme := strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	switch {
	case port != "":
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		host = "[" + host + "]"
	}

	out := &url.URL{
		Scheme: scheme,
		User:   u.User,
		Host:   host,
	}

	escaped := u.EscapedPath()
	if escaped == "" {
		escaped = "/"
	}
	escaped = path.Clean("/" + escaped)
	if unescaped, err := url.PathUnescape(escaped); err == nil {
		out.Path = unescaped
		out.RawPath = escaped
	} else {
		out.Path = escaped
	}

	out.RawQuery = sortQuery(u.RawQuery)

	return out.String(), nil
}

// sortQuery orders the raw k[=v] pairs by decoded key. Pairs are kept as
// written, so "flag" and "flag=" stay distinct; repeated keys keep their order.
func sortQuery(raw string) string {
	if raw == "" {
		return ""
	}
	var pairs []string
	for _, p := range strings.Split(raw, "&") {
		if p != "" {
			pairs = append(pairs, p)
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return queryKey(pairs[i]) < queryKey(pairs[j])
	})
	return strings.Join(pairs, "&")
}

func queryKey(pair string) string {
	k, _, _ := strings.Cut(pair, "=")
	if unescaped, err := url.QueryUnescape(k); err == nil {
		return unescaped
	}
	return k
}

// RegisteredDomain returns the eTLD+1 of host, or the lowercased host itself
// for IP addresses, single-label names and unknown suffixes
func RegisteredDomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// SanitizeFilename replaces characters that are illegal in filenames with a
// single underscore
func SanitizeFilename(filename string) string {
	filename = invalidFileChars.ReplaceAllString(filename, "_")

	filename = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, filename)

	filename = repeatedSep.ReplaceAllString(filename, "_")
	filename = strings.Trim(filename, "_.")
	filename = norm.NFC.String(filename)

	if len(filename) > maxFilenameBytes {
		filename = filename[:maxFilenameBytes]
		for !utf8.ValidString(filename) {
			filename = filename[:len(filename)-1]
		}
	}

	return filename
}

// FilenameFromURL derives the artifact base name for a page: the
// percent-decoded path with separators and illegal characters replaced,
// or "index" for the site root
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return SanitizeOrIndex(rawURL)
	}

	p := u.EscapedPath()
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}
	lower := strings.ToLower(p)
	for _, ext := range []string{".html", ".htm"} {
		if strings.HasSuffix(lower, ext) {
			p = p[:len(p)-len(ext)]
			break
		}
	}

	return SanitizeOrIndex(p)
}

// SanitizeOrIndex sanitizes name, falling back to "index" when nothing is left
func SanitizeOrIndex(name string) string {
	if s := SanitizeFilename(name); s != "" {
		return s
	}
	return "index"
}

// IsWebpageURL reports whether the URL path does not point at a known
// non-document asset
func IsWebpageURL(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	lower := strings.ToLower(u.Path)
	nonWebExts := []string{
		".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".ico",
		".pdf", ".zip", ".gz", ".tar", ".mp4", ".mp3", ".wav",
		".css", ".js", ".woff", ".woff2", ".ttf",
	}
	for _, ext := range nonWebExts {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

// IsWebpageMIME reports whether a Content-Type header denotes an HTML document
func IsWebpageMIME(contentType string) bool {
	if contentType == "" {
		return true
	}
	mimeType := strings.TrimSpace(strings.Split(strings.ToLower(contentType), ";")[0])
	switch mimeType {
	case "text/html", "application/xhtml+xml", "application/xhtml", "text/xml", "application/xml":
		return true
	}
	return false
}
