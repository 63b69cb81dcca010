package reporter

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/amosWeiskopf/site2md/internal/models"
	"github.com/amosWeiskopf/site2md/pkg/utils"
)

const maxReasonLen = 160

// renderMarkdown renders the human-readable crawl report
func renderMarkdown(s *models.CrawlSummary) (string, error) {
	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)

	md.H1("Crawl Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", s.SeedURL},
			{"Run", s.RunID},
			{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", s.DurationText},
			{"Status", statusText(s)},
		},
	})
	md.PlainText("")

	md.H2("Totals")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Attempted", "Succeeded", "Failed", "Success rate"},
		Rows: [][]string{{
			strconv.Itoa(s.TotalAttempted),
			strconv.Itoa(s.TotalSucceeded),
			strconv.Itoa(s.TotalFailed),
			fmt.Sprintf("%.1f%%", s.SuccessRate()*100),
		}},
	})
	md.PlainText("")

	switch {
	case s.TotalAttempted > 0 && s.TotalFailure():
		md.Cautionf("No page was crawled successfully (%d attempted).", s.TotalAttempted)
	case s.Cancelled:
		md.Warningf("The crawl was cancelled after %d page(s); results are partial.", s.TotalAttempted)
	case s.TotalFailed > 0:
		md.Note(fmt.Sprintf("%d page(s) failed.", s.TotalFailed))
	}
	md.PlainText("")

	md.H2("Pages")
	md.PlainText("")
	if len(s.Pages) == 0 {
		md.PlainText("No pages were written.")
	} else {
		rows := make([][]string, len(s.Pages))
		for i, p := range s.Pages {
			rows[i] = []string{p.Title, p.URL, p.File}
		}
		md.Table(markdown.TableSet{Header: []string{"Title", "URL", "File"}, Rows: rows})
	}
	md.PlainText("")

	if len(s.Failures) > 0 {
		md.H2("Failures")
		md.PlainText("")
		rows := make([][]string, len(s.Failures))
		for i, f := range s.Failures {
			status := "-"
			if f.StatusCode != 0 {
				status = strconv.Itoa(f.StatusCode)
			}
			// reasons can carry newlines, which break table rows
			rows[i] = []string{f.URL, f.Kind, status, utils.TruncateText(utils.CleanText(f.Reason), maxReasonLen)}
		}
		md.Table(markdown.TableSet{Header: []string{"URL", "Kind", "Status", "Reason"}, Rows: rows})
		md.PlainText("")
	}

	if err := md.Build(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func statusText(s *models.CrawlSummary) string {
	switch {
	case s.Cancelled:
		return "Cancelled (partial results)"
	case s.TotalAttempted > 0 && s.TotalFailure():
		return "Failed"
	default:
		return "Complete"
	}
}

const htmlReport = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Crawl Report - {{.SeedURL}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 2rem;
            border-radius: 10px;
            margin-bottom: 2rem;
        }
        .card {
            background: white;
            border-radius: 10px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
            gap: 1rem;
        }
        .metric {
            text-align: center;
            padding: 1rem;
            background: #f8f9fa;
            border-radius: 8px;
        }
        .metric-value {
            font-size: 2rem;
            font-weight: bold;
            color: #667eea;
        }
        .metric-label {
            color: #666;
            font-size: 0.9rem;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th, td {
            text-align: left;
            padding: 0.5rem;
            border-bottom: 1px solid #eee;
        }
        .failure td {
            border-left: 4px solid #dc3545;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>Crawl Report for {{.SeedURL}}</h1>
        <p>Started {{.StartedAt.Format "January 2, 2006 15:04"}} &middot; {{.DurationText}}{{if .Cancelled}} &middot; cancelled{{end}}</p>
    </div>

    <div class="card">
        <div class="grid">
            <div class="metric"><div class="metric-value">{{.TotalAttempted}}</div><div class="metric-label">Attempted</div></div>
            <div class="metric"><div class="metric-value">{{.TotalSucceeded}}</div><div class="metric-label">Succeeded</div></div>
            <div class="metric"><div class="metric-value">{{.TotalFailed}}</div><div class="metric-label">Failed</div></div>
            <div class="metric"><div class="metric-value">{{printf "%.0f" (percent .SuccessRate)}}%</div><div class="metric-label">Success rate</div></div>
        </div>
    </div>

    <div class="card">
        <h2>Pages</h2>
        {{if .Pages}}
        <table>
            <tr><th>Title</th><th>URL</th><th>File</th></tr>
            {{range .Pages}}
            <tr><td>{{.Title}}</td><td><a href="{{.URL}}">{{.URL}}</a></td><td>{{.File}}</td></tr>
            {{end}}
        </table>
        {{else}}
        <p>No pages were written.</p>
        {{end}}
    </div>

    {{if .Failures}}
    <div class="card">
        <h2>Failures</h2>
        <table>
            <tr><th>URL</th><th>Kind</th><th>Status</th><th>Reason</th></tr>
            {{range .Failures}}
            <tr class="failure"><td>{{.URL}}</td><td>{{.Kind}}</td><td>{{if .StatusCode}}{{.StatusCode}}{{end}}</td><td>{{.Reason}}</td></tr>
            {{end}}
        </table>
    </div>
    {{end}}
</body>
</html>
`

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"percent": func(f float64) float64 { return f * 100 },
}).Parse(htmlReport))

// renderHTML renders the crawl report as a standalone HTML page
func renderHTML(s *models.CrawlSummary) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
