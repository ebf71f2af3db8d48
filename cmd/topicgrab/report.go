package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/topicgrab/topicgrab/internal/config"
	"github.com/topicgrab/topicgrab/internal/history"
	"github.com/topicgrab/topicgrab/internal/report"
)

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a recorded run as a report",
		Long: `Report renders a crawl run recorded in the history database as
Markdown, or as JSON with --json. Without --run the most recent run
is rendered.

Examples:
  # Report on the latest run
  topicgrab report

  # JSON report for run 3, written to a file
  topicgrab report --run 3 --json --output run3.json`,
		RunE: runReportCmd,
	}

	cmd.Flags().Int64P("run", "r", 0, "Run ID to render (default: the latest run)")
	cmd.Flags().Bool("json", false, "Render JSON instead of Markdown")
	cmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().String("history-dir", "",
		"Directory holding the history database (default: XDG data directory)")

	return cmd
}

// runReportCmd executes the report command.
func runReportCmd(cmd *cobra.Command, _ []string) error {
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

	var run *history.RunRecord
	if runID > 0 {
		run, err = store.Run(cmd.Context(), runID)
	} else {
		run, err = store.LatestRun(cmd.Context())
	}
	if err != nil {
		return err
	}
	if run == nil {
		if runID > 0 {
			return fmt.Errorf("run %d not found", runID)
		}
		return errors.New("no runs recorded")
	}

	summary, err := store.Summary(cmd.Context(), run)
	if err != nil {
		return err
	}

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	var w report.Writer
	if asJSON {
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	} else {
		w = report.NewMarkdownWriter(out)
	}
	_, err = w.Write(summary)
	return err
}
