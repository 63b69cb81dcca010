package markdown

import "strings"

// inlineEscaper backslash-escapes characters that open inline markup
var inlineEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
)

func escapeInline(s string) string {
	return inlineEscaper.Replace(s)
}

// escapeLineStart escapes a leading marker that would otherwise start a
// heading, quote, list item or setext underline
func escapeLineStart(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '#', '>', '-', '+', '=':
		return `\` + s
	}
	// ordered list markers have at most nine digits
	i := 0
	for i < len(s) && i < 10 && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i > 9 || i == len(s) {
		return s
	}
	if (s[i] == '.' || s[i] == ')') && (i+1 == len(s) || s[i+1] == ' ') {
		return s[:i] + `\` + s[i:]
	}
	return s
}
