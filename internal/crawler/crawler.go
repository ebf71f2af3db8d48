package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/topicgrab/topicgrab/internal/config"
	"github.com/topicgrab/topicgrab/internal/download"
	"github.com/topicgrab/topicgrab/internal/extractor"
	"github.com/topicgrab/topicgrab/internal/fetcher"
	"github.com/topicgrab/topicgrab/internal/history"
	"github.com/topicgrab/topicgrab/internal/model"
	"github.com/topicgrab/topicgrab/internal/resolver"
)

// failedPageTitle stands in for the title of pages that never parsed.
const failedPageTitle = "Failed"

// Crawler walks a topic chain page by page: fetch, extract, download
// the page's images, then follow the navigation link the traversal
// mode selects. The whole run happens on the calling goroutine; only
// image downloads fan out.
type Crawler struct {
	cfg       *config.CrawlConfig
	client    *fetcher.Client
	extractor *extractor.Extractor
	downloads *download.Manager
	sink      model.Sink
	store     *history.Store
	logger    *slog.Logger

	// stop is closed by Stop. The loop checks it between pages and
	// the download manager between jobs, so queued work is abandoned
	// while in-flight work settles.
	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithSink sets the event sink the run reports progress to.
func WithSink(sink model.Sink) Option {
	return func(c *Crawler) {
		c.sink = sink
	}
}

// WithHistory sets the store that records runs, pages, and images.
// Without a store the run leaves no persistent trace.
func WithHistory(store *history.Store) Option {
	return func(c *Crawler) {
		c.store = store
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// New creates a Crawler for one or more runs with the given settings.
// The configuration must have passed Validate.
func New(cfg *config.CrawlConfig, opts ...Option) *Crawler {
	c := &Crawler{
		cfg:    cfg,
		logger: slog.Default(),
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.client = fetcher.NewClient(
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithMaxRetries(cfg.MaxFetchRetries),
	)

	// Pages that defeat every date strategy are dumped under the save
	// root unless a dedicated dump directory is configured.
	dumpDir := cfg.DebugDumpDir
	if dumpDir == "" {
		dumpDir = cfg.SaveDir
	}
	c.extractor = extractor.New(
		extractor.WithAllowedExtensions(cfg.AllowedExtensions),
		extractor.WithDebugDumpDir(dumpDir),
	)

	// The download manager reports through the crawler so saved images
	// reach the history store on their way to the caller's sink, and
	// shares the stop signal so a stop request cuts a page's batch
	// short instead of waiting for every remaining job.
	c.downloads = download.NewManager(c.client, cfg, c.emit, download.WithStopSignal(c.stop))

	return c
}

// Stop requests a graceful stop. In-flight downloads settle, the rest
// of the current page's jobs are abandoned, and no further pages are
// visited. Safe to call from any goroutine; a stopped Crawler stays
// stopped.
func (c *Crawler) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// stopping reports whether a stop was requested.
func (c *Crawler) stopping() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Run crawls from startURL until the chain ends, the context is
// cancelled, or Stop is called. The returned summary is valid in every
// case, including a panic inside the loop: runs degrade to partial
// results rather than losing what was already downloaded.
func (c *Crawler) Run(ctx context.Context, startURL string) (summary *model.RunSummary, err error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, fmt.Errorf("invalid start URL: %w", err)
	}
	if start.Scheme != "http" && start.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in start URL", start.Scheme)
	}

	// Per-run totals start from zero even when the Crawler is reused.
	c.downloads.ResetBytes()

	summary = &model.RunSummary{
		StartURL:  start.String(),
		Mode:      string(c.cfg.Mode),
		StartedAt: time.Now(),
	}

	var runID int64
	if c.store != nil {
		runID, err = c.store.BeginRun(ctx, summary.StartURL, summary.Mode)
		if err != nil {
			c.logger.Warn("history disabled for this run", "error", err)
			c.store = nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("crawl loop panicked", "panic", r)
			c.logf(model.LevelError, "crawl aborted: %v", r)
			summary.Stopped = true
		}
		summary.FinishedAt = time.Now()
		summary.TotalBytes = c.downloads.TotalBytes()
		if c.store != nil {
			if err := c.store.FinishRun(context.WithoutCancel(ctx), runID, summary); err != nil {
				c.logger.Warn("failed to finalize run history", "error", err)
			}
		}
		c.emit(model.FinishedEvent{})
	}()

	c.crawlLoop(ctx, runID, start.String(), summary)
	return summary, nil
}

// crawlLoop processes the page queue until it drains or the run is
// interrupted.
func (c *Crawler) crawlLoop(ctx context.Context, runID int64, startURL string, summary *model.RunSummary) {
	queue := []string{startURL}
	visited := make(map[string]bool)

	for len(queue) > 0 {
		if ctx.Err() != nil || c.stopping() {
			summary.Stopped = true
			c.logf(model.LevelWarning, "stopping: %d pages left unvisited", len(queue))
			return
		}

		pageURL := queue[0]
		queue = queue[1:]

		key := normalizeURL(pageURL)
		if visited[key] {
			continue
		}
		visited[key] = true

		outcome, next := c.crawlPage(ctx, pageURL, visited, summary)
		summary.Pages = append(summary.Pages, outcome)

		if c.store != nil {
			if err := c.store.RecordPage(ctx, runID, outcome); err != nil {
				c.logger.Warn("failed to record page", "url", outcome.URL, "error", err)
			}
		}

		if next != "" && !visited[normalizeURL(next)] {
			queue = append(queue, next)
		}

		if len(queue) > 0 {
			c.waitDelay(ctx, c.cfg.PageDelay.Random())
		}
	}
}

// crawlPage handles one page end to end, folds its download counts
// into the summary, and returns its outcome plus the URL to visit next
// (empty when the chain ends here).
func (c *Crawler) crawlPage(ctx context.Context, pageURL string, visited map[string]bool, summary *model.RunSummary) (model.PageOutcome, string) {
	c.emit(model.PageStatusEvent{URL: pageURL, Status: model.StatusRunning})
	c.logger.Info("crawling page", "url", pageURL)

	page, err := c.fetchAndExtract(ctx, pageURL, visited)
	if err != nil {
		c.logger.Error("page failed", "url", pageURL, "error", err)
		c.logf(model.LevelError, "page %s: %v", pageURL, err)
		outcome := model.PageOutcome{
			URL:        pageURL,
			Title:      failedPageTitle,
			DateString: "No Date",
			Status:     model.StatusError,
		}
		c.emit(model.PageStatusEvent{
			URL:        outcome.URL,
			Status:     outcome.Status,
			Title:      outcome.Title,
			DateString: outcome.DateString,
		})
		return outcome, ""
	}

	c.logf(model.LevelInfo, "%s (%s): %d images", page.Title, page.DateString(), len(page.ImageURLs))

	jobs := make([]model.DownloadJob, 0, len(page.ImageURLs))
	for i, imageURL := range page.ImageURLs {
		jobs = append(jobs, model.DownloadJob{
			ImageURL:  imageURL,
			PageURL:   page.URL,
			PageTitle: page.Title,
			PageDate:  page.PublishedAt,
			Index:     i,
		})
	}

	result := c.downloads.DownloadAll(ctx, jobs)
	summary.ImagesSaved += result.Saved
	summary.ImagesSkipped += result.SkippedExists + result.SkippedSmall
	summary.ImagesFailed += result.Failed

	outcome := model.PageOutcome{
		URL:         page.URL,
		Title:       page.Title,
		DateString:  page.DateString(),
		Status:      result.PageStatus(),
		ImagesTotal: result.Total,
		ImagesSaved: result.Saved,
	}

	c.emit(model.PageStatusEvent{
		URL:        outcome.URL,
		Status:     outcome.Status,
		Title:      outcome.Title,
		DateString: outcome.DateString,
	})

	return outcome, c.nextTarget(ctx, page)
}

// fetchAndExtract fetches a page within the page budget and parses it.
// When the server silently redirects, the final URL is reported and
// marked visited so a later link back to it is not re-crawled.
func (c *Crawler) fetchAndExtract(ctx context.Context, pageURL string, visited map[string]bool) (*model.PageResult, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.PageTimeout)
	defer cancel()

	resp, err := c.client.Fetch(fetchCtx, pageURL)
	if err != nil {
		return nil, err
	}

	if resp.Redirected() {
		c.emit(model.RedirectEvent{From: resp.RequestURL, To: resp.FinalURL})
		c.logger.Info("page redirected", "from", resp.RequestURL, "to", resp.FinalURL)
		visited[normalizeURL(resp.FinalURL)] = true
	}

	return c.extractor.Extract(resp.FinalURL, resp.Text)
}

// nextTarget selects the navigation link the traversal mode follows
// and resolves it if it points at an intermediate redirector. An
// unresolvable link ends the chain rather than failing the run.
func (c *Crawler) nextTarget(ctx context.Context, page *model.PageResult) string {
	var link string
	switch c.cfg.Mode {
	case config.ModeNext:
		link = page.NextLink
	case config.ModePrev:
		link = page.PrevLink
	case config.ModeFree:
		link = page.NextLink
		if link == "" {
			link = page.PrevLink
		}
	}
	if link == "" {
		return ""
	}

	if !resolver.IsRedirector(link) {
		return link
	}

	resolveCtx, cancel := context.WithTimeout(ctx, c.cfg.RedirectTimeout)
	defer cancel()

	resolved, err := resolver.Resolve(resolveCtx, c.client, link)
	if err != nil {
		c.logger.Warn("dropping unresolvable navigation link", "url", link, "error", err)
		c.logf(model.LevelWarning, "could not resolve navigation link %s", link)
		return ""
	}
	return resolved
}

// emit forwards an event to the caller's sink, first recording saved
// images in the history store.
func (c *Crawler) emit(e model.Event) {
	if saved, ok := e.(model.ImageSavedEvent); ok && c.store != nil {
		if err := c.store.RecordImage(context.Background(), saved.PageURL, saved.ImageURL, saved.Path); err != nil {
			c.logger.Warn("failed to record image", "url", saved.ImageURL, "error", err)
		}
	}
	c.sink.Emit(e)
}

func (c *Crawler) logf(level model.LogLevel, format string, args ...any) {
	c.sink.Emit(model.LogEvent{Message: fmt.Sprintf(format, args...), Level: level})
}

// waitDelay sleeps for a politeness delay, returning early on
// cancellation.
func (c *Crawler) waitDelay(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// normalizeURL canonicalizes a URL for visited-set membership:
// fragments are stripped, scheme and host are lowercased, and the
// empty path is treated as "/".
func normalizeURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
