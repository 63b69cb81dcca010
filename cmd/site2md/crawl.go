package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/amosWeiskopf/site2md/internal/config"
	"github.com/amosWeiskopf/site2md/internal/logging"
	"github.com/amosWeiskopf/site2md/pkg/crawler"
	"github.com/amosWeiskopf/site2md/pkg/extractor"
	"github.com/amosWeiskopf/site2md/pkg/fetcher"
	"github.com/amosWeiskopf/site2md/pkg/reporter"
	"github.com/amosWeiskopf/site2md/pkg/store"
)

func newCrawlCmd(use, short string, docsMode bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args[0], docsMode)
		},
	}
	addCrawlFlags(cmd.Flags(), config.Default())
	return cmd
}

// addCrawlFlags registers one flag per configurable crawl key. Defaults only
// document the built-in values; config files and env still take precedence
// over an unset flag.
func addCrawlFlags(fs *pflag.FlagSet, d config.Config) {
	fs.StringP("output", "o", "", "Output directory for Markdown files")
	fs.StringSlice("report", nil, "Extra summary reports: markdown, html")
	fs.String("db", "", "Record pages and runs in this sqlite database")

	fs.Int("max-pages", d.Crawl.MaxPages, "Maximum number of pages to crawl")
	fs.Int("max-depth", d.Crawl.MaxDepth, "Maximum link depth from the seed")
	fs.Duration("delay", d.Crawl.Delay, "Minimum delay between requests of one worker")
	fs.Duration("timeout", d.Crawl.Timeout, "Per-page timeout")
	fs.IntP("concurrency", "c", d.Crawl.MaxConcurrentRequests, "Number of concurrent workers")
	fs.Bool("follow-external", d.Crawl.FollowExternalLinks, "Follow links to other domains")
	fs.StringSlice("exclude", nil, "Additional CSS selectors to remove before conversion")
	fs.StringSlice("include", nil, "Only crawl URL paths matching these globs")
	fs.StringSlice("skip", nil, "Skip URL paths matching these globs")
	fs.Bool("main-content", d.Crawl.ExtractMainContent, "Keep only the main article content")

	fs.Bool("javascript", d.Crawl.JavaScriptEnabled, "Render pages in headless Chrome")
	fs.Bool("wait-for-content", d.Crawl.WaitForContent, "Wait for the rendered DOM to settle")
	fs.Duration("js-wait", d.Crawl.JSWaitTime, "Upper bound on waiting for rendered content")
	fs.Bool("expand-menus", d.Crawl.ExpandMenus, "Click collapsed menus before snapshotting")
	fs.Bool("scroll", d.Crawl.ScrollForContent, "Scroll to trigger lazy loading")
	fs.Int("max-scroll-iterations", d.Crawl.MaxScrollIterations, "Maximum scroll steps per page")
	fs.Bool("headless", d.Crawl.Headless, "Run Chrome headless")

	fs.Float64("rps", d.Crawl.RequestsPerSecond, "Global requests per second, 0 for unlimited")
	fs.Int("retries", d.Crawl.MaxRetries, "Retries for timed-out fetches")
	fs.String("user-agent", d.Crawl.UserAgent, "User-Agent header")
	fs.Bool("respect-robots", d.Robots.Respect, "Honor robots.txt")

	fs.String("log-level", d.Logging.Level, "Log level: debug, info, warn, error")
	fs.String("log-format", d.Logging.Format, "Log format: console, json")
	fs.String("log-output", d.Logging.OutputPath, "Log output: stderr, stdout or a file path")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runCrawl(cmd *cobra.Command, seed string, docsMode bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.Crawl.SeedURL = seed
	if docsMode {
		cfg.Crawl.DocsMode = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer closer.Close()
	defer func() { _ = logger.Sync() }()

	writer, err := reporter.New(cfg.Output, logger)
	if err != nil {
		return fmt.Errorf("failed to prepare output: %w", err)
	}

	opts := []crawler.Option{crawler.WithLogger(logger), crawler.WithSink(writer)}
	if cfg.Robots.Respect {
		ua := cfg.Robots.UserAgent
		if ua == "" {
			ua = cfg.Crawl.UserAgent
		}
		opts = append(opts, crawler.WithGate(fetcher.NewRobotsAgent(fetcher.RobotsOptions{
			UserAgent: ua,
			CacheTTL:  cfg.Robots.CacheTTL,
			Timeout:   cfg.Crawl.Timeout,
		}, logger)))
	}
	if cfg.Crawl.ExtractMainContent {
		opts = append(opts, crawler.WithExtractor(extractor.New(logger)))
	}
	if cfg.Store.Path != "" {
		idx, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open crawl index: %w", err)
		}
		defer idx.Close()
		opts = append(opts, crawler.WithIndex(idx))
	}

	c, err := crawler.New(cfg.Crawl, opts...)
	if err != nil {
		return fmt.Errorf("failed to create crawler: %w", err)
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			logger.Warn("closing renderer failed", zap.Error(cerr))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := c.Crawl(ctx, seed)
	if summary != nil {
		printSummary(cmd, summary.TotalSucceeded, summary.TotalFailed, summary.DurationText, writer.Dir())
		if summary.Cancelled {
			fmt.Fprintln(cmd.OutOrStdout(), "Crawl cancelled, results are partial")
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || (errors.Is(err, crawler.ErrTotalFailure) && summary.Cancelled) {
			return nil
		}
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}

func printSummary(cmd *cobra.Command, succeeded, failed int, duration, dir string) {
	fmt.Fprintf(cmd.OutOrStdout(), "Crawled %d pages (%d failed) in %s\n", succeeded, failed, duration)
	fmt.Fprintf(cmd.OutOrStdout(), "Output written to %s\n", dir)
}
