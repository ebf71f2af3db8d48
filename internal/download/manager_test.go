package download

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/topicgrab/topicgrab/internal/config"
	"github.com/topicgrab/topicgrab/internal/fetcher"
	"github.com/topicgrab/topicgrab/internal/model"
)

// pngBytes encodes a blank PNG of the given dimensions.
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// eventRecorder collects events from concurrent workers.
type eventRecorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *eventRecorder) sink() model.Sink {
	return func(e model.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	}
}

func (r *eventRecorder) all() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

func testConfig(t *testing.T) *config.CrawlConfig {
	t.Helper()
	cfg := config.NewCrawlConfig()
	cfg.SaveDir = t.TempDir()
	cfg.NamingPattern = "{filename}"
	cfg.ImageDelay = config.DelayRange{}
	cfg.MaxDownloadRetries = 1
	return cfg
}

func TestManager_DownloadAll_savesImages(t *testing.T) {
	t.Parallel()

	body := pngBytes(t, 200, 200)
	var gotReferer atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer.Store(r.Header.Get("Referer"))
		_, _ = w.Write(body)
	}))
	defer server.Close()

	cfg := testConfig(t)
	rec := &eventRecorder{}
	m := NewManager(fetcher.NewClient(), cfg, rec.sink())

	jobs := []model.DownloadJob{
		{ImageURL: server.URL + "/a.png", PageURL: "https://forum.example.com/read.php?tid=1", Index: 0},
		{ImageURL: server.URL + "/b.png", PageURL: "https://forum.example.com/read.php?tid=1", Index: 1},
	}

	result := m.DownloadAll(context.Background(), jobs)

	if result.Saved != 2 || result.Failed != 0 {
		t.Fatalf("Result = %+v, want 2 saved", result)
	}
	if got := result.PageStatus(); got != model.StatusSuccess {
		t.Errorf("PageStatus() = %v, want %v", got, model.StatusSuccess)
	}
	for _, name := range []string{"a.png", "b.png"} {
		data, err := os.ReadFile(filepath.Join(cfg.SaveDir, name))
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", name, err)
		}
		if !bytes.Equal(data, body) {
			t.Errorf("%s content differs from served body", name)
		}
	}
	if ref, _ := gotReferer.Load().(string); ref != "https://forum.example.com/read.php?tid=1" {
		t.Errorf("Referer = %q, want the page URL", ref)
	}
	if got := m.TotalBytes(); got != int64(2*len(body)) {
		t.Errorf("TotalBytes() = %d, want %d", got, 2*len(body))
	}

	var savedEvents int
	for _, e := range rec.all() {
		if _, ok := e.(model.ImageSavedEvent); ok {
			savedEvents++
		}
	}
	if savedEvents != 2 {
		t.Errorf("ImageSavedEvent count = %d, want 2", savedEvents)
	}
}

func TestManager_DownloadAll_skipsExistingFiles(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request made for a file that already exists")
	}))
	defer server.Close()

	cfg := testConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.SaveDir, "a.png"), []byte("existing"), 0600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(fetcher.NewClient(), cfg, nil)
	result := m.DownloadAll(context.Background(), []model.DownloadJob{
		{ImageURL: server.URL + "/a.png", PageURL: "https://forum.example.com/p"},
	})

	if result.SkippedExists != 1 {
		t.Fatalf("Result = %+v, want 1 skipped (exists)", result)
	}
	if got := result.PageStatus(); got != model.StatusSuccess {
		t.Errorf("PageStatus() = %v, want %v", got, model.StatusSuccess)
	}

	data, err := os.ReadFile(filepath.Join(cfg.SaveDir, "a.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "existing" {
		t.Error("existing file was overwritten")
	}
}

func TestManager_DownloadAll_retriesThenSucceeds(t *testing.T) {
	t.Parallel()

	body := pngBytes(t, 200, 200)
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(body)
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.MaxDownloadRetries = 2

	m := NewManager(fetcher.NewClient(), cfg, nil)
	start := time.Now()
	result := m.DownloadAll(context.Background(), []model.DownloadJob{
		{ImageURL: server.URL + "/a.png", PageURL: "https://forum.example.com/p"},
	})
	elapsed := time.Since(start)

	if result.Saved != 1 {
		t.Fatalf("Result = %+v, want 1 saved after retry", result)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("request count = %d, want 2", got)
	}
	// The backoff before the second attempt is one second.
	if elapsed < time.Second || elapsed >= 2*time.Second {
		t.Errorf("elapsed = %v, want a one second backoff before the retry", elapsed)
	}
}

func TestManager_DownloadAll_stopSignalAbandonsQueuedJobs(t *testing.T) {
	t.Parallel()

	body := pngBytes(t, 200, 200)
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = w.Write(body)
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.ConcurrentDownloads = 1

	stop := make(chan struct{})
	var once sync.Once
	sink := model.Sink(func(e model.Event) {
		if _, ok := e.(model.ImageSavedEvent); ok {
			once.Do(func() { close(stop) })
		}
	})

	m := NewManager(fetcher.NewClient(), cfg, sink, WithStopSignal(stop))

	jobs := make([]model.DownloadJob, 4)
	for i := range jobs {
		jobs[i] = model.DownloadJob{
			ImageURL: server.URL + "/img" + string(rune('a'+i)) + ".png",
			PageURL:  "https://forum.example.com/p",
			Index:    i,
		}
	}

	result := m.DownloadAll(context.Background(), jobs)

	if result.Saved != 1 || result.Failed != 3 {
		t.Fatalf("Result = %+v, want 1 saved and 3 abandoned", result)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("request count = %d, want 1 (no requests after the stop)", got)
	}
}

func TestManager_DownloadAll_failsAfterRetryBudget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig(t)

	m := NewManager(fetcher.NewClient(), cfg, nil)
	result := m.DownloadAll(context.Background(), []model.DownloadJob{
		{ImageURL: server.URL + "/a.png", PageURL: "https://forum.example.com/p"},
	})

	if result.Failed != 1 {
		t.Fatalf("Result = %+v, want 1 failed", result)
	}
	if got := result.PageStatus(); got != model.StatusError {
		t.Errorf("PageStatus() = %v, want %v", got, model.StatusError)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("request count = %d, want 1 (budget exhausted)", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.SaveDir, "a.png")); !os.IsNotExist(err) {
		t.Error("failed download left a file behind")
	}
}

func TestManager_DownloadAll_minResolutionFilter(t *testing.T) {
	t.Parallel()

	small := pngBytes(t, 50, 50)
	large := pngBytes(t, 300, 300)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/small.png" {
			_, _ = w.Write(small)
			return
		}
		_, _ = w.Write(large)
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.MinWidth = 100
	cfg.MinHeight = 100

	m := NewManager(fetcher.NewClient(), cfg, nil)
	result := m.DownloadAll(context.Background(), []model.DownloadJob{
		{ImageURL: server.URL + "/small.png", PageURL: "https://forum.example.com/p", Index: 0},
		{ImageURL: server.URL + "/large.png", PageURL: "https://forum.example.com/p", Index: 1},
	})

	if result.Saved != 1 || result.SkippedSmall != 1 {
		t.Fatalf("Result = %+v, want 1 saved + 1 skipped (small)", result)
	}
	if got := result.PageStatus(); got != model.StatusSuccess {
		t.Errorf("PageStatus() = %v, want %v", got, model.StatusSuccess)
	}
	if _, err := os.Stat(filepath.Join(cfg.SaveDir, "small.png")); !os.IsNotExist(err) {
		t.Error("filtered image was written to disk")
	}
	if _, err := os.Stat(filepath.Join(cfg.SaveDir, "large.png")); err != nil {
		t.Errorf("large image missing: %v", err)
	}

	// Filtered bodies were still transferred and count toward bandwidth.
	if got := m.TotalBytes(); got != int64(len(small)+len(large)) {
		t.Errorf("TotalBytes() = %d, want %d", got, len(small)+len(large))
	}
}

func TestManager_DownloadAll_progressEvents(t *testing.T) {
	t.Parallel()

	body := pngBytes(t, 200, 200)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer server.Close()

	cfg := testConfig(t)
	rec := &eventRecorder{}
	m := NewManager(fetcher.NewClient(), cfg, rec.sink())

	// Enough jobs for the full worker pool to race on the counter.
	const jobCount = 16
	jobs := make([]model.DownloadJob, jobCount)
	for i := range jobs {
		jobs[i] = model.DownloadJob{
			ImageURL: server.URL + "/img" + string(rune('a'+i)) + ".png",
			PageURL:  "https://forum.example.com/p",
			Index:    i,
		}
	}

	result := m.DownloadAll(context.Background(), jobs)
	if result.Saved != jobCount {
		t.Fatalf("Result = %+v, want %d saved", result, jobCount)
	}

	var progress []model.ProgressEvent
	for _, e := range rec.all() {
		if p, ok := e.(model.ProgressEvent); ok {
			progress = append(progress, p)
		}
	}
	if len(progress) != jobCount {
		t.Fatalf("progress event count = %d, want %d", len(progress), jobCount)
	}
	last := 0
	for i, p := range progress {
		if p.Total != jobCount {
			t.Errorf("progress[%d].Total = %d, want %d", i, p.Total, jobCount)
		}
		if p.Completed != last+1 {
			t.Errorf("progress[%d].Completed = %d, want %d", i, p.Completed, last+1)
		}
		last = p.Completed
	}
}

func TestManager_DownloadAll_zeroJobs(t *testing.T) {
	t.Parallel()

	m := NewManager(fetcher.NewClient(), testConfig(t), nil)
	result := m.DownloadAll(context.Background(), nil)

	if result.Total != 0 {
		t.Fatalf("Total = %d, want 0", result.Total)
	}
	if got := result.PageStatus(); got != model.StatusSuccess {
		t.Errorf("PageStatus() = %v, want %v for a page without images", got, model.StatusSuccess)
	}
}

func TestResult_PageStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result Result
		want   model.PageStatus
	}{
		{"all saved", Result{Total: 3, Saved: 3}, model.StatusSuccess},
		{"skips count as success", Result{Total: 3, Saved: 1, SkippedExists: 1, SkippedSmall: 1}, model.StatusSuccess},
		{"partial failure", Result{Total: 3, Saved: 2, Failed: 1}, model.StatusWarning},
		{"total failure", Result{Total: 3, Failed: 3}, model.StatusError},
		{"no jobs", Result{}, model.StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.result.PageStatus(); got != tt.want {
				t.Errorf("PageStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
