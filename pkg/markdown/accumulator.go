package markdown

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// accumulator tracks the tail of the output so block separators and spaces
// are never doubled
type accumulator struct {
	buf              bytes.Buffer
	lastRune         rune
	hasLast          bool
	trailingNewlines int

	// keepLeading keeps a leading space, used when rendering inline spans into
	// a scratch accumulator whose output is spliced into a parent
	keepLeading bool

	// pendingBreak is set after a <br> so a break at the end of a block can be
	// dropped again
	pendingBreak bool
}

func (a *accumulator) String() string {
	a.dropPendingBreak()
	return a.buf.String()
}

func (a *accumulator) append(value string) {
	if value == "" {
		return
	}
	a.pendingBreak = false
	a.buf.WriteString(value)
	for _, r := range value {
		a.lastRune = r
		a.hasLast = true
		if r == '\n' {
			a.trailingNewlines++
		} else {
			a.trailingNewlines = 0
		}
	}
}

// writeText appends already collapsed text, dropping a leading space at the
// start of a line or after another space
func (a *accumulator) writeText(text string) {
	a.append(a.dropLeadingSpace(text))
}

// writeProse is writeText for document text, which is escaped so it never
// reads as markup
func (a *accumulator) writeProse(text string) {
	text = a.dropLeadingSpace(escapeInline(text))
	if text != "" && a.atLineStart() {
		text = escapeLineStart(text)
	}
	a.append(text)
}

func (a *accumulator) dropLeadingSpace(text string) string {
	if text == "" || text[0] != ' ' {
		return text
	}
	if a.atLineStart() || (a.hasLast && a.lastRune == ' ') {
		return text[1:]
	}
	return text
}

// atLineStart reports whether the next text begins a markdown line. A span
// accumulator starts mid-line.
func (a *accumulator) atLineStart() bool {
	return a.trailingNewlines > 0 || (!a.hasLast && !a.keepLeading)
}

func (a *accumulator) lineBreak() {
	if !a.hasLast || a.trailingNewlines > 0 {
		return
	}
	a.trimTrailingSpace()
	a.append("\\\n")
	a.pendingBreak = true
}

func (a *accumulator) ensureLineBreak() {
	a.dropPendingBreak()
	if !a.hasLast || a.trailingNewlines >= 1 {
		return
	}
	a.append("\n")
}

func (a *accumulator) ensureBlankLine() {
	a.dropPendingBreak()
	if !a.hasLast || a.trailingNewlines >= 2 {
		return
	}
	if a.trailingNewlines == 0 {
		a.append("\n")
	}
	if a.trailingNewlines == 1 {
		a.append("\n")
	}
}

// block writes s as its own blank-line separated block
func (a *accumulator) block(s string) {
	if s == "" {
		return
	}
	a.ensureBlankLine()
	a.append(s)
	a.ensureBlankLine()
}

func (a *accumulator) dropPendingBreak() {
	if !a.pendingBreak {
		return
	}
	a.pendingBreak = false
	a.buf.Truncate(a.buf.Len() - len("\\\n"))
	a.resync()
}

func (a *accumulator) trimTrailingSpace() {
	b := a.buf.Bytes()
	n := len(b)
	for n > 0 && (b[n-1] == ' ' || b[n-1] == '\t') {
		n--
	}
	if n != len(b) {
		a.buf.Truncate(n)
		a.resync()
	}
}

func (a *accumulator) resync() {
	b := a.buf.Bytes()
	a.trailingNewlines = 0
	for i := len(b) - 1; i >= 0 && b[i] == '\n'; i-- {
		a.trailingNewlines++
	}
	if len(b) == 0 {
		a.hasLast = false
		a.lastRune = 0
		return
	}
	a.lastRune, _ = utf8.DecodeLastRune(b)
	a.hasLast = true
}

// finalize trims trailing whitespace per line and collapses runs of blank
// lines, leaving fenced code untouched
func finalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	fence := ""
	blank := 0
	for _, line := range lines {
		if fence != "" {
			out = append(out, line)
			if isFenceClose(line, fence) {
				fence = ""
			}
			continue
		}
		line = strings.TrimRight(line, " \t")
		if f := fenceOpen(line); f != "" {
			fence = f
			blank = 0
			out = append(out, line)
			continue
		}
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// tightLines splits finalized markdown into lines, dropping blank lines that
// are not part of a fenced block
func tightLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	fence := ""
	for _, line := range strings.Split(s, "\n") {
		if fence != "" {
			out = append(out, line)
			if isFenceClose(line, fence) {
				fence = ""
			}
			continue
		}
		if f := fenceOpen(line); f != "" {
			fence = f
		}
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func fenceOpen(line string) string {
	t := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(t, "```") {
		return ""
	}
	n := 0
	for n < len(t) && t[n] == '`' {
		n++
	}
	return t[:n]
}

func isFenceClose(line, fence string) bool {
	t := strings.TrimSpace(line)
	return len(t) >= len(fence) && strings.Trim(t, "`") == ""
}

// fenceFor returns a backtick fence longer than any run inside code
func fenceFor(code string) string {
	longest, run := 0, 0
	for _, r := range code {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	if longest < 3 {
		return "```"
	}
	return strings.Repeat("`", longest+1)
}

// collapseSpace folds whitespace runs to one space, keeping a single leading
// or trailing space when the input had one
func collapseSpace(s string) string {
	if s == "" {
		return ""
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return " "
	}
	out := strings.Join(fields, " ")
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	if isSpace(first) {
		out = " " + out
	}
	if isSpace(last) {
		out += " "
	}
	return out
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isSpace(r rune) bool {
	return strings.TrimSpace(string(r)) == ""
}
