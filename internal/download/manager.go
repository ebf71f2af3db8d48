package download

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	// Registered decoders for the minimum-resolution filter. Formats
	// outside this set bypass the filter rather than fail the download.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/topicgrab/topicgrab/internal/config"
	"github.com/topicgrab/topicgrab/internal/fetcher"
	"github.com/topicgrab/topicgrab/internal/model"
	"github.com/topicgrab/topicgrab/internal/naming"
)

// maxImageSize caps a single image download.
const maxImageSize = 64 * 1024 * 1024

// Outcome classifies how one download job ended.
type Outcome int

const (
	// OutcomeSaved means the image was written to disk.
	OutcomeSaved Outcome = iota

	// OutcomeSkippedExists means the target file already existed, so
	// no request was made. Counts as a success.
	OutcomeSkippedExists

	// OutcomeSkippedSmall means the image was downloaded but discarded
	// by the minimum-resolution filter. Counts as a success.
	OutcomeSkippedSmall

	// OutcomeFailed means every attempt was exhausted without a write.
	OutcomeFailed
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeSkippedExists:
		return "skipped (exists)"
	case OutcomeSkippedSmall:
		return "skipped (too small)"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result aggregates the outcomes of one page's download jobs.
type Result struct {
	// Total is the number of jobs submitted.
	Total int

	// Saved counts images written to disk.
	Saved int

	// SkippedExists counts jobs whose target file already existed.
	SkippedExists int

	// SkippedSmall counts images discarded by the resolution filter.
	SkippedSmall int

	// Failed counts jobs that exhausted every attempt.
	Failed int
}

// Succeeded counts jobs that ended without failure. Skips are
// successes: the file exists or was deliberately discarded.
func (r *Result) Succeeded() int {
	return r.Saved + r.SkippedExists + r.SkippedSmall
}

// PageStatus maps the aggregate to a page status: all jobs succeeded
// (including the zero-job page), some succeeded, or none did.
func (r *Result) PageStatus() model.PageStatus {
	switch {
	case r.Succeeded() == r.Total:
		return model.StatusSuccess
	case r.Succeeded() > 0:
		return model.StatusWarning
	default:
		return model.StatusError
	}
}

// Manager downloads a page's images through a bounded worker pool.
// One Manager is shared across the run; the byte counter spans pages
// and is reset between runs.
type Manager struct {
	client  *fetcher.Client
	cfg     *config.CrawlConfig
	sink    model.Sink
	counter *Counter

	// stop, when non-nil, abandons the batch once it is closed.
	stop <-chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithStopSignal makes DownloadAll abandon a batch when the channel
// closes: undispatched jobs fail immediately and in-flight requests
// are cancelled.
func WithStopSignal(stop <-chan struct{}) Option {
	return func(m *Manager) {
		m.stop = stop
	}
}

// NewManager creates a Manager. The sink may be nil.
func NewManager(client *fetcher.Client, cfg *config.CrawlConfig, sink model.Sink, opts ...Option) *Manager {
	m := &Manager{
		client:  client,
		cfg:     cfg,
		sink:    sink,
		counter: &Counter{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TotalBytes returns the bytes received across all pages so far.
func (m *Manager) TotalBytes() int64 {
	return m.counter.Total()
}

// ResetBytes clears the byte counter at the start of a run.
func (m *Manager) ResetBytes() {
	m.counter.Reset()
}

// DownloadAll processes a page's jobs concurrently and returns the
// aggregate result. Individual failures never abort the batch; context
// cancellation or the stop signal ends it early, and jobs finished
// before that still count.
func (m *Manager) DownloadAll(ctx context.Context, jobs []model.DownloadJob) *Result {
	result := &Result{Total: len(jobs)}
	if len(jobs) == 0 {
		return result
	}

	if m.stop != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-m.stop:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	pageURL := jobs[0].PageURL

	var mu sync.Mutex
	completed := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.ConcurrentDownloads)

	for _, job := range jobs {
		g.Go(func() error {
			outcome := OutcomeFailed
			if !m.stopping(ctx) {
				outcome = m.downloadOne(ctx, job)
			}

			// The tally and the progress emit share one critical
			// section so the completed count never appears to go
			// backward on the event stream.
			mu.Lock()
			switch outcome {
			case OutcomeSaved:
				result.Saved++
			case OutcomeSkippedExists:
				result.SkippedExists++
			case OutcomeSkippedSmall:
				result.SkippedSmall++
			default:
				result.Failed++
			}
			completed++
			m.sink.Emit(model.ProgressEvent{
				PageURL:   pageURL,
				Completed: completed,
				Total:     len(jobs),
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// stopping reports whether the batch must not start new work.
func (m *Manager) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if m.stop == nil {
		return false
	}
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

// downloadOne runs a single job to completion: render the target path,
// short-circuit on an existing file, then attempt the download within
// the retry budget. The file is written only after the whole body has
// been received, so an interrupted transfer never leaves a truncated
// file behind.
func (m *Manager) downloadOne(ctx context.Context, job model.DownloadJob) Outcome {
	relPath := naming.Render(
		m.cfg.NamingPattern,
		job.PageURL,
		job.PageTitle,
		job.PageDate,
		naming.OriginalFilename(job.ImageURL),
		job.Index,
	)
	target := filepath.Join(m.cfg.SaveDir, relPath)

	if _, err := os.Stat(target); err == nil {
		m.logf(model.LevelInfo, "skip existing file: %s", target)
		return OutcomeSkippedExists
	}

	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		m.logf(model.LevelError, "create directory for %s: %v", target, err)
		return OutcomeFailed
	}

	for attempt := 0; attempt < m.cfg.MaxDownloadRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitRetry(ctx, attempt); err != nil {
				return OutcomeFailed
			}
		}

		body, err := m.fetchImage(ctx, job)
		if err != nil {
			m.logf(model.LevelWarning, "download %s (attempt %d/%d): %v",
				job.ImageURL, attempt+1, m.cfg.MaxDownloadRetries, err)
			continue
		}

		if m.tooSmall(body) {
			m.logf(model.LevelInfo, "skip small image: %s", job.ImageURL)
			return OutcomeSkippedSmall
		}

		if err := os.WriteFile(target, body, 0600); err != nil {
			m.logf(model.LevelError, "write %s: %v", target, err)
			return OutcomeFailed
		}

		m.sink.Emit(model.ImageSavedEvent{PageURL: job.PageURL, ImageURL: job.ImageURL, Path: target})
		m.waitDelay(ctx, m.cfg.ImageDelay.Random())
		return OutcomeSaved
	}

	m.logf(model.LevelError, "giving up on %s after %d attempts",
		job.ImageURL, m.cfg.MaxDownloadRetries)
	return OutcomeFailed
}

// fetchImage performs one download attempt, streaming the body through
// the run-wide byte counter. The owning page's URL is sent as the
// Referer; the image host rejects bare requests.
func (m *Manager) fetchImage(ctx context.Context, job model.DownloadJob) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ImageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.ImageURL, nil)
	if err != nil {
		return nil, err
	}
	m.client.ApplyHeaders(req)
	req.Header.Set("Referer", job.PageURL)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	cr := &countingReader{r: io.LimitReader(resp.Body, maxImageSize), counter: m.counter, sink: m.sink}
	return io.ReadAll(cr)
}

// tooSmall reports whether the resolution filter rejects the image.
// Bodies the registered decoders cannot read pass the filter; the
// filter exists to drop thumbnails, not to validate formats.
func (m *Manager) tooSmall(body []byte) bool {
	if m.cfg.MinWidth <= 0 && m.cfg.MinHeight <= 0 {
		return false
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if m.cfg.MinWidth > 0 && cfg.Width < m.cfg.MinWidth {
		return true
	}
	if m.cfg.MinHeight > 0 && cfg.Height < m.cfg.MinHeight {
		return true
	}
	return false
}

// waitRetry sleeps before the given retry attempt: 1s before the
// second attempt, 2s before the third.
func (m *Manager) waitRetry(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(attempt) * time.Second):
		return nil
	}
}

// waitDelay sleeps for a politeness delay, returning early on
// cancellation.
func (m *Manager) waitDelay(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (m *Manager) logf(level model.LogLevel, format string, args ...any) {
	m.sink.Emit(model.LogEvent{Message: fmt.Sprintf(format, args...), Level: level})
}
