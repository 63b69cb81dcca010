package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "site2md",
		Short: "site2md - crawl a website into clean Markdown",
		Long: `site2md crawls a website from a seed URL, strips navigation and other
boilerplate, and writes one Markdown file per page plus a crawl summary.`,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "Config file path")

	root.AddCommand(
		newCrawlCmd("crawl [URL]", "Crawl a website and convert every page to Markdown", false),
		newCrawlCmd("docs [URL]", "Crawl a documentation site, also removing sidebars and doc chrome", true),
		newRunsCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "site2md %s\n", versionString())
		},
	}
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
