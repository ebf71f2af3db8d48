package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/topicgrab/topicgrab/internal/config"
	"github.com/topicgrab/topicgrab/internal/history"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded crawl runs",
		Long: `History lists the crawl runs recorded in the SQLite history database.
Runs are recorded when crawling with --history.

Examples:
  # List the most recent runs
  topicgrab history

  # Show the pages of a specific run
  topicgrab history --run 3`,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", 10, "Maximum number of runs to list")
	cmd.Flags().Int64P("run", "r", 0, "Show the pages of this run instead of listing runs")
	cmd.Flags().String("history-dir", "",
		"Directory holding the history database (default: XDG data directory)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	dir, err := cmd.Flags().GetString("history-dir")
	if err != nil {
		return err
	}
	if dir == "" {
		dir = config.DefaultHistoryDir()
	}

	store, err := history.Open(dir, history.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("no history recorded yet: %w", err)
	}
	defer store.Close()

	runID, err := cmd.Flags().GetInt64("run")
	if err != nil {
		return err
	}
	if runID > 0 {
		return printRunPages(cmd, store, runID)
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	return printRuns(cmd, store, limit)
}

// printRuns lists recorded runs, newest first.
func printRuns(cmd *cobra.Command, store *history.Store, limit int) error {
	runs, err := store.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tMODE\tPAGES\tSAVED\tFAILED\tSTART URL")
	for _, run := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID,
			run.StartedAt.Format("2006-01-02 15:04"),
			run.Mode,
			run.PagesTotal,
			run.ImagesSaved,
			run.ImagesFailed,
			run.StartURL,
		)
	}
	return w.Flush()
}

// printRunPages shows one run's page outcomes in crawl order.
func printRunPages(cmd *cobra.Command, store *history.Store, runID int64) error {
	pages, err := store.PagesForRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No pages recorded for run %d.\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tSAVED\tDATE\tTITLE\tURL")
	for _, page := range pages {
		fmt.Fprintf(w, "%s\t%d/%d\t%s\t%s\t%s\n",
			page.Status,
			page.ImagesSaved,
			page.ImagesTotal,
			page.Published,
			page.Title,
			page.URL,
		)
	}
	return w.Flush()
}
