package markdown

import (
	"strings"

	"golang.org/x/net/html"
)

type tableRow struct {
	cells  []string
	header bool
}

func (c *converter) table(n *html.Node, acc *accumulator) {
	rows := c.collectTableRows(n)
	if len(rows) == 0 {
		c.skip(n, "table without cells")
		return
	}
	acc.block(renderTable(rows))
}

// renderTable emits pipe rows with a separator after the header row. The
// first row flagged as header is used, otherwise the first row.
func renderTable(rows []tableRow) string {
	headerIdx := 0
	for i, row := range rows {
		if row.header {
			headerIdx = i
			break
		}
	}

	colCount := 0
	for _, row := range rows {
		if len(row.cells) > colCount {
			colCount = len(row.cells)
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for i := 0; i < colCount; i++ {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteString("\n")
	}

	writeRow(rows[headerIdx].cells)
	sep := make([]string, colCount)
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for i, row := range rows {
		if i == headerIdx {
			continue
		}
		writeRow(row.cells)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *converter) collectTableRows(node *html.Node) []tableRow {
	var rows []tableRow
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, header bool) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != html.ElementNode {
				continue
			}
			switch strings.ToLower(child.Data) {
			case "thead":
				walk(child, true)
			case "tbody", "tfoot":
				walk(child, header)
			case "tr":
				row := tableRow{header: header}
				for cell := child.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type != html.ElementNode {
						continue
					}
					cellTag := strings.ToLower(cell.Data)
					if cellTag != "td" && cellTag != "th" {
						continue
					}
					if cellTag == "th" {
						row.header = true
					}
					row.cells = append(row.cells, c.cell(cell))
				}
				if len(row.cells) > 0 {
					rows = append(rows, row)
				}
			case "table":
				// nested tables are not flattened into the outer grid
			default:
				walk(child, header)
			}
		}
	}
	walk(node, false)
	return rows
}

// cell renders one table cell on a single line
func (c *converter) cell(n *html.Node) string {
	prev := c.inCell
	c.inCell = true
	text := flatten(c.inline(n))
	c.inCell = prev
	return strings.ReplaceAll(text, "|", `\|`)
}
