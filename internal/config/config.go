package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AppName is used for the config file name, env prefix and XDG directory
const AppName = "site2md"

// Config holds all application configuration
type Config struct {
	// Crawler configuration
	Crawl CrawlConfig `mapstructure:"crawl"`

	// Output configuration
	Output OutputConfig `mapstructure:"output"`

	// robots.txt handling
	Robots RobotsConfig `mapstructure:"robots"`

	// Crawl index database
	Store StoreConfig `mapstructure:"store"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlConfig is the immutable snapshot that drives a single crawl
type CrawlConfig struct {
	SeedURL               string        `mapstructure:"seed_url"`
	MaxPages              int           `mapstructure:"max_pages"`
	MaxDepth              int           `mapstructure:"max_depth"`
	Delay                 time.Duration `mapstructure:"delay"`
	Timeout               time.Duration `mapstructure:"timeout"`
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
	FollowExternalLinks   bool          `mapstructure:"follow_external_links"`
	ExcludeSelectors      []string      `mapstructure:"exclude_selectors"`
	DocsMode              bool          `mapstructure:"docs_mode"`

	// Rendering strategy, consumed only by the page fetcher
	JavaScriptEnabled   bool          `mapstructure:"javascript_enabled"`
	WaitForContent      bool          `mapstructure:"wait_for_content"`
	JSWaitTime          time.Duration `mapstructure:"js_wait_time"`
	ExpandMenus         bool          `mapstructure:"expand_menus"`
	ExpandSelector      string        `mapstructure:"expand_selector"`
	ScrollForContent    bool          `mapstructure:"scroll_for_content"`
	MaxScrollIterations int           `mapstructure:"max_scroll_iterations"`
	Headless            bool          `mapstructure:"headless"`

	// Politeness and retries
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`

	// HTTP transport
	UserAgent    string            `mapstructure:"user_agent"`
	Headers      map[string]string `mapstructure:"headers"`
	MaxBodyBytes int64             `mapstructure:"max_body_bytes"`

	// URL path globs, e.g. "/blog/*" or "*.pdf"
	IncludePatterns []string `mapstructure:"include_patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`

	ExtractMainContent bool `mapstructure:"extract_main_content"`
}

// OutputConfig controls where and how artifacts are written
type OutputConfig struct {
	Dir           string   `mapstructure:"dir"`
	ReportFormats []string `mapstructure:"report_formats"` // "markdown", "html"
	FrontMatter   bool     `mapstructure:"front_matter"`
}

// RobotsConfig configures robots.txt handling
type RobotsConfig struct {
	Respect   bool          `mapstructure:"respect"`
	UserAgent string        `mapstructure:"user_agent"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

// StoreConfig configures the optional sqlite crawl index
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "console"
	OutputPath string `mapstructure:"output_path"`
}

// Default returns a Config populated with the documented defaults
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxPages:              100,
			MaxDepth:              3,
			Delay:                 time.Second,
			Timeout:               30 * time.Second,
			MaxConcurrentRequests: 3,
			FollowExternalLinks:   false,
			WaitForContent:        true,
			JSWaitTime:            3 * time.Second,
			MaxScrollIterations:   10,
			Headless:              true,
			MaxRetries:            2,
			RetryBackoff:          500 * time.Millisecond,
			UserAgent:             "site2md/1.0 (+https://github.com/amosWeiskopf/site2md)",
			Headers:               map[string]string{},
			MaxBodyBytes:          10 * 1024 * 1024,
		},
		Output: OutputConfig{
			FrontMatter: true,
		},
		Robots: RobotsConfig{
			Respect:  true,
			CacheTTL: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stderr",
		},
	}
}

// flagKeys maps CLI flag names to config keys
var flagKeys = map[string]string{
	"max-pages":             "crawl.max_pages",
	"max-depth":             "crawl.max_depth",
	"delay":                 "crawl.delay",
	"timeout":               "crawl.timeout",
	"concurrency":           "crawl.max_concurrent_requests",
	"follow-external":       "crawl.follow_external_links",
	"exclude":               "crawl.exclude_selectors",
	"javascript":            "crawl.javascript_enabled",
	"wait-for-content":      "crawl.wait_for_content",
	"js-wait":               "crawl.js_wait_time",
	"expand-menus":          "crawl.expand_menus",
	"scroll":                "crawl.scroll_for_content",
	"max-scroll-iterations": "crawl.max_scroll_iterations",
	"headless":              "crawl.headless",
	"rps":                   "crawl.requests_per_second",
	"retries":               "crawl.max_retries",
	"user-agent":            "crawl.user_agent",
	"include":               "crawl.include_patterns",
	"skip":                  "crawl.exclude_patterns",
	"main-content":          "crawl.extract_main_content",
	"output":                "output.dir",
	"report":                "output.report_formats",
	"respect-robots":        "robots.respect",
	"db":                    "store.path",
	"log-level":             "logging.level",
	"log-format":            "logging.format",
	"log-output":            "logging.output_path",
}

// Load loads configuration from defaults, file, environment and flags, in
// increasing order of precedence. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
		v.AddConfigPath("$HOME/." + AppName)
	}

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error, we'll use defaults and env
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("crawl.max_pages", d.Crawl.MaxPages)
	v.SetDefault("crawl.max_depth", d.Crawl.MaxDepth)
	v.SetDefault("crawl.delay", d.Crawl.Delay)
	v.SetDefault("crawl.timeout", d.Crawl.Timeout)
	v.SetDefault("crawl.max_concurrent_requests", d.Crawl.MaxConcurrentRequests)
	v.SetDefault("crawl.follow_external_links", d.Crawl.FollowExternalLinks)
	v.SetDefault("crawl.exclude_selectors", []string{})
	v.SetDefault("crawl.docs_mode", false)
	v.SetDefault("crawl.javascript_enabled", false)
	v.SetDefault("crawl.wait_for_content", d.Crawl.WaitForContent)
	v.SetDefault("crawl.js_wait_time", d.Crawl.JSWaitTime)
	v.SetDefault("crawl.expand_menus", false)
	v.SetDefault("crawl.scroll_for_content", false)
	v.SetDefault("crawl.max_scroll_iterations", d.Crawl.MaxScrollIterations)
	v.SetDefault("crawl.headless", d.Crawl.Headless)
	v.SetDefault("crawl.requests_per_second", 0)
	v.SetDefault("crawl.max_retries", d.Crawl.MaxRetries)
	v.SetDefault("crawl.retry_backoff", d.Crawl.RetryBackoff)
	v.SetDefault("crawl.user_agent", d.Crawl.UserAgent)
	v.SetDefault("crawl.max_body_bytes", d.Crawl.MaxBodyBytes)

	v.SetDefault("output.report_formats", []string{})
	v.SetDefault("output.front_matter", d.Output.FrontMatter)

	v.SetDefault("robots.respect", d.Robots.Respect)
	v.SetDefault("robots.cache_ttl", d.Robots.CacheTTL)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Validate checks the crawl invariants
func (c CrawlConfig) Validate() error {
	if c.MaxPages < 1 {
		return ErrInvalidMaxPages
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxConcurrentRequests < 1 {
		return ErrInvalidConcurrency
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	return nil
}

// Validate validates the configuration, including the required seed URL and
// output directory
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Crawl.SeedURL) == "" {
		return ErrNoSeed
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return ErrNoOutput
	}
	if err := c.Crawl.Validate(); err != nil {
		return err
	}
	for _, f := range c.Output.ReportFormats {
		switch strings.ToLower(f) {
		case "json", "markdown", "md", "html":
		default:
			return fmt.Errorf("%w: %q", ErrUnknownReportFormat, f)
		}
	}
	return nil
}
