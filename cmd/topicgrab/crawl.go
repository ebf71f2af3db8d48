package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/topicgrab/topicgrab/internal/config"
	"github.com/topicgrab/topicgrab/internal/crawler"
	"github.com/topicgrab/topicgrab/internal/history"
	"github.com/topicgrab/topicgrab/internal/log"
	"github.com/topicgrab/topicgrab/internal/model"
	"github.com/topicgrab/topicgrab/internal/report"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <start-url>",
		Short: "Crawl a topic chain and download its images",
		Long: `Crawl starts at the given topic URL, downloads the images the page
embeds, then follows its navigation links to the next page until the
chain ends.

The first interrupt (Ctrl-C) stops gracefully after the current page;
a second interrupt aborts immediately.

Examples:
  # Crawl forward from a topic
  topicgrab crawl https://forum.example.com/read.php?tid=12345

  # Walk backward through older topics
  topicgrab crawl --mode prev https://forum.example.com/read.php?tid=12345

  # Group images by publish date, skip thumbnails
  topicgrab crawl -p "{YYYY-MM-DD}/{page.title}/{no.001}.jpg" --min-width 400 <url>

  # Record the run in the history database and write a report
  topicgrab crawl --history --report report.md <url>`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	// Traversal and filtering flags
	cmd.Flags().StringP("mode", "m", string(config.ModeNext),
		"Traversal mode: next, prev, or free")
	cmd.Flags().StringSlice("formats", nil,
		"Image extension allow-list (e.g. .jpg,.png); \"*\" admits everything")
	cmd.Flags().Int("min-width", 0,
		"Discard images narrower than this after download (0 disables)")
	cmd.Flags().Int("min-height", 0,
		"Discard images shorter than this after download (0 disables)")

	// Output layout flags
	cmd.Flags().StringP("save-dir", "s", "",
		"Root directory images are saved under")
	cmd.Flags().StringP("pattern", "p", "",
		"Filename template (see 'topicgrab init' for placeholders)")

	// Politeness flags
	cmd.Flags().Float64("page-delay-min", -1, "Minimum delay between pages in seconds")
	cmd.Flags().Float64("page-delay-max", -1, "Maximum delay between pages in seconds")
	cmd.Flags().Float64("image-delay-min", -1, "Minimum delay after each saved image in seconds")
	cmd.Flags().Float64("image-delay-max", -1, "Maximum delay after each saved image in seconds")
	cmd.Flags().Int("concurrency", 0, "Concurrent image downloads per page")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .topicgrab in current or home directory)")

	// History flags
	cmd.Flags().Bool("history", false,
		"Record the run in the SQLite history database")
	cmd.Flags().String("history-dir", "",
		"Directory holding the history database (default: XDG data directory)")

	// Report and event stream flags
	cmd.Flags().StringP("report", "o", "",
		"Write a run report to this path (.json for JSON, Markdown otherwise)")
	cmd.Flags().BoolP("json-events", "j", false,
		"Stream crawl events to stdout as JSON lines")

	// Diagnostics
	cmd.Flags().String("dump-failed-dates", "",
		"Directory for dumps of pages whose publish date could not be detected (default: the save directory)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	jsonEvents, err := cmd.Flags().GetBool("json-events")
	if err != nil {
		return err
	}
	reportPath, err := cmd.Flags().GetString("report")
	if err != nil {
		return err
	}

	verbose := getVerboseFlag(cmd)

	var sink model.Sink
	var logger = log.NewLogger(os.Stderr, verbose)
	if jsonEvents {
		sink = newJSONEventSink(cmd.OutOrStdout())
		logger = log.NewEventLogger(os.Stderr, verbose, sink)
	} else {
		sink = newConsoleSink(cmd.OutOrStdout())
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	opts := []crawler.Option{
		crawler.WithSink(sink),
		crawler.WithLogger(logger),
	}

	if cfg.SaveHistory {
		store, err := history.Open(cfg.HistoryDir, history.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer store.Close()
		logger.Info("history database opened", "dir", cfg.HistoryDir)
		opts = append(opts, crawler.WithHistory(store))
	}

	c := crawler.New(cfg, opts...)

	// First signal requests a graceful stop; a second aborts.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("stop requested, finishing current page (interrupt again to abort)")
		c.Stop()
		<-sigCh
		logger.Warn("aborting")
		cancel()
	}()

	summary, err := c.Run(ctx, args[0])
	if err != nil {
		return err
	}

	if !jsonEvents {
		printSummary(cmd.OutOrStdout(), summary)
	}

	if reportPath != "" {
		if err := writeReport(reportPath, summary); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		logger.Info("report written", "path", reportPath)
	}

	if summary.CountByStatus(model.StatusError) == len(summary.Pages) && len(summary.Pages) > 0 {
		return errors.New("every page failed")
	}
	return nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildCrawlConfig loads the configuration file and overlays every
// flag the user set on the command line.
func buildCrawlConfig(cmd *cobra.Command) (*config.CrawlConfig, error) {
	configPathFlag, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg := config.NewCrawlConfig()
	configPath := config.FindConfigFile(configPathFlag)
	if configPath != "" {
		cfg, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if configPathFlag != "" {
		return nil, fmt.Errorf("configuration file not found: %s", configPathFlag)
	}

	flags := cmd.Flags()

	if flags.Changed("mode") {
		mode, err := flags.GetString("mode")
		if err != nil {
			return nil, err
		}
		cfg.Mode = config.Mode(strings.ToLower(mode))
	}
	if flags.Changed("formats") {
		if cfg.AllowedExtensions, err = flags.GetStringSlice("formats"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("min-width") {
		if cfg.MinWidth, err = flags.GetInt("min-width"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("min-height") {
		if cfg.MinHeight, err = flags.GetInt("min-height"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("save-dir") {
		if cfg.SaveDir, err = flags.GetString("save-dir"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("pattern") {
		if cfg.NamingPattern, err = flags.GetString("pattern"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("page-delay-min") {
		if cfg.PageDelay.Min, err = flags.GetFloat64("page-delay-min"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("page-delay-max") {
		if cfg.PageDelay.Max, err = flags.GetFloat64("page-delay-max"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("image-delay-min") {
		if cfg.ImageDelay.Min, err = flags.GetFloat64("image-delay-min"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("image-delay-max") {
		if cfg.ImageDelay.Max, err = flags.GetFloat64("image-delay-max"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.ConcurrentDownloads, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("history") {
		if cfg.SaveHistory, err = flags.GetBool("history"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("history-dir") {
		if cfg.HistoryDir, err = flags.GetString("history-dir"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("dump-failed-dates") {
		if cfg.DebugDumpDir, err = flags.GetString("dump-failed-dates"); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// newConsoleSink returns a sink that prints crawl progress for humans.
// Download workers emit concurrently, so writes are serialized.
func newConsoleSink(w io.Writer) model.Sink {
	var mu sync.Mutex
	return func(e model.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch ev := e.(type) {
		case model.LogEvent:
			fmt.Fprintf(w, "[%s] %s\n", ev.Level, ev.Message)
		case model.PageStatusEvent:
			if ev.Status == model.StatusRunning {
				fmt.Fprintf(w, "=> %s\n", ev.URL)
				return
			}
			fmt.Fprintf(w, "[%s] %s (%s)\n", ev.Status, ev.Title, ev.DateString)
		case model.RedirectEvent:
			fmt.Fprintf(w, "[redirect] %s -> %s\n", ev.From, ev.To)
		case model.ImageSavedEvent:
			fmt.Fprintf(w, "    saved %s\n", ev.Path)
		}
	}
}

// jsonEvent is the wire shape of one streamed event.
type jsonEvent struct {
	Type  string      `json:"type"`
	Event model.Event `json:"event"`
}

// newJSONEventSink returns a sink that streams every event to w as one
// JSON object per line.
func newJSONEventSink(w io.Writer) model.Sink {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(e model.Event) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(jsonEvent{Type: model.EventType(e), Event: e})
	}
}

// printSummary prints the end-of-run totals for humans.
func printSummary(w io.Writer, summary *model.RunSummary) {
	fmt.Fprintf(w, "\nCrawl finished in %s\n", summary.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  pages:  %d success, %d warning, %d error\n",
		summary.CountByStatus(model.StatusSuccess),
		summary.CountByStatus(model.StatusWarning),
		summary.CountByStatus(model.StatusError),
	)
	fmt.Fprintf(w, "  images: %d saved, %d skipped, %d failed\n",
		summary.ImagesSaved, summary.ImagesSkipped, summary.ImagesFailed)
	fmt.Fprintf(w, "  bytes:  %d\n", summary.TotalBytes)
	if summary.Stopped {
		fmt.Fprintln(w, "  run was stopped before the chain ended")
	}
}

// writeReport writes the run summary to path, choosing the format by
// extension: .json produces JSON, anything else Markdown.
func writeReport(path string, summary *model.RunSummary) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	var w report.Writer
	if strings.EqualFold(filepath.Ext(path), ".json") {
		w = report.NewJSONWriter(f, report.WithPrettyPrint())
	} else {
		w = report.NewMarkdownWriter(f)
	}
	_, err = w.Write(summary)
	return err
}
