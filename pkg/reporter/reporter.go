// Package reporter persists crawled pages as Markdown files and writes the
// crawl summary in JSON, Markdown and HTML.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/amosWeiskopf/site2md/internal/config"
	"github.com/amosWeiskopf/site2md/internal/models"
	"github.com/amosWeiskopf/site2md/pkg/utils"
)

// Well-known artifact names in the output directory
const (
	SummaryFile        = "_crawl_summary.json"
	MarkdownReportFile = "_crawl_report.md"
	HTMLReportFile     = "_crawl_report.html"
)

var ErrNoOutputDir = errors.New("no output directory")

// frontMatter heads every page artifact
type frontMatter struct {
	Title     string    `yaml:"title"`
	URL       string    `yaml:"url"`
	CrawledAt time.Time `yaml:"crawled_at"`
}

// Writer writes one Markdown file per page. It is safe for concurrent use.
type Writer struct {
	dir         string
	frontMatter bool
	formats     []string
	logger      *zap.Logger

	mu   sync.Mutex
	used map[string]struct{}
}

// New creates the output directory and returns a Writer for it
func New(cfg config.OutputConfig, logger *zap.Logger) (*Writer, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, ErrNoOutputDir
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		dir:         cfg.Dir,
		frontMatter: cfg.FrontMatter,
		formats:     cfg.ReportFormats,
		logger:      logger.Named("reporter"),
		used:        make(map[string]struct{}),
	}, nil
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// WritePage writes page to <name>.md and returns the file name. Names that
// were already used in this run get a _2, _3... suffix.
func (w *Writer) WritePage(_ context.Context, page models.PageResult) (string, error) {
	var buf bytes.Buffer
	if w.frontMatter {
		crawledAt := page.FetchedAt
		if crawledAt.IsZero() {
			crawledAt = time.Now()
		}
		fm, err := yaml.Marshal(frontMatter{Title: page.Title, URL: page.URL, CrawledAt: crawledAt.UTC()})
		if err != nil {
			return "", fmt.Errorf("encode front matter: %w", err)
		}
		buf.WriteString("---\n")
		buf.Write(fm)
		buf.WriteString("---\n\n")
	}
	buf.WriteString(page.Markdown)
	buf.WriteString("\n")

	name := w.reserve(utils.FilenameFromURL(page.URL))
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	w.logger.Debug("page written", zap.String("url", page.URL), zap.String("file", name))
	return name, nil
}

func (w *Writer) reserve(base string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	name := base
	for n := 2; ; n++ {
		if _, taken := w.used[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s_%d", base, n)
	}
	w.used[name] = struct{}{}
	return name + ".md"
}

// WriteSummary writes _crawl_summary.json and the configured reports
func (w *Writer) WriteSummary(_ context.Context, summary *models.CrawlSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, SummaryFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	for _, format := range w.formats {
		switch strings.ToLower(format) {
		case "json":
		case "markdown", "md":
			err = w.writeReport(MarkdownReportFile, summary, renderMarkdown)
		case "html":
			err = w.writeReport(HTMLReportFile, summary, renderHTML)
		default:
			err = fmt.Errorf("unsupported format: %s", format)
		}
		if err != nil {
			return err
		}
	}

	w.logger.Info("summary written",
		zap.String("dir", w.dir),
		zap.Int("succeeded", summary.TotalSucceeded),
		zap.Int("failed", summary.TotalFailed),
	)
	return nil
}

func (w *Writer) writeReport(name string, summary *models.CrawlSummary, render func(*models.CrawlSummary) (string, error)) error {
	out, err := render(summary)
	if err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(w.dir, name), []byte(out), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
