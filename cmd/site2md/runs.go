package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/site2md/pkg/store"
	"github.com/amosWeiskopf/site2md/pkg/utils"
)

var errNoDatabase = errors.New("no crawl index database: pass --db or set store.path")

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs [RUN_ID]",
		Short: "List recorded crawl runs, or the pages of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return errNoDatabase
			}
			idx, err := store.Open(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("failed to open crawl index: %w", err)
			}
			defer idx.Close()

			md := markdown.NewMarkdown(cmd.OutOrStdout())
			if len(args) == 1 {
				err = listPages(cmd, idx, md, args[0])
			} else {
				limit, _ := cmd.Flags().GetInt("limit")
				err = listRuns(cmd, idx, md, limit)
			}
			if err != nil {
				return err
			}
			return md.Build()
		},
	}
	cmd.Flags().String("db", "", "Crawl index database")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}

func listRuns(cmd *cobra.Command, idx *store.Index, md *markdown.Markdown, limit int) error {
	runs, err := idx.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		state := "complete"
		if r.Cancelled {
			state = "cancelled"
		}
		rows[i] = []string{
			r.RunID,
			r.SeedURL,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration.String(),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			state,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Run", "Seed", "Started", "Duration", "Succeeded", "Failed", "State"},
		Rows:   rows,
	})
	return nil
}

func listPages(cmd *cobra.Command, idx *store.Index, md *markdown.Markdown, runID string) error {
	run, err := idx.Run(cmd.Context(), runID)
	if err != nil {
		return err
	}
	pages, err := idx.Pages(cmd.Context(), runID)
	if err != nil {
		return err
	}

	md.H2(fmt.Sprintf("Run %s", run.RunID))
	md.PlainText(fmt.Sprintf("%s: %d succeeded, %d failed in %s", run.SeedURL, run.Succeeded, run.Failed, run.Duration))
	md.PlainText("")

	rows := make([][]string, len(pages))
	for i, p := range pages {
		result := "ok"
		if !p.Success {
			result = p.ErrorKind
		}
		status := "-"
		if p.StatusCode != 0 {
			status = strconv.Itoa(p.StatusCode)
		}
		rows[i] = []string{p.URL, result, status, strconv.Itoa(p.Depth), strconv.Itoa(p.Attempts), utils.TruncateText(p.Title, 60)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Result", "Status", "Depth", "Attempts", "Title"},
		Rows:   rows,
	})
	return nil
}
