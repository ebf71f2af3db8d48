package config

import (
	"math/rand"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values. Timeout and retry values mirror the
// behavior of the forum template this crawler targets; the delays are
// politeness settings to avoid tripping anti-scraping measures.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "topicgrab"

	// DefaultPageTimeout is the budget for fetching a topic page.
	DefaultPageTimeout = 15 * time.Second

	// DefaultRedirectTimeout is the budget for resolving an
	// intermediate redirector page. Redirector pages are tiny, so a
	// shorter budget than regular pages suffices.
	DefaultRedirectTimeout = 10 * time.Second

	// DefaultImageTimeout is the budget for a single image download
	// attempt. Images are larger than pages and get the longest budget.
	DefaultImageTimeout = 30 * time.Second

	// DefaultMaxFetchRetries is the retry budget for transient HTTP
	// 5xx responses on page fetches.
	DefaultMaxFetchRetries = 5

	// DefaultFetchBackoff is the base backoff for page-fetch retries.
	// It doubles per attempt: 2s, 4s, 8s, 16s, 32s.
	DefaultFetchBackoff = 2 * time.Second

	// DefaultMaxDownloadRetries is the per-image retry budget.
	DefaultMaxDownloadRetries = 3

	// DefaultConcurrentDownloads bounds the per-page download pool.
	DefaultConcurrentDownloads = 5

	// DefaultNamingPattern groups images by page title.
	DefaultNamingPattern = "{page.title}/{filename}"

	// DefaultSaveDir is the save root when none is configured.
	DefaultSaveDir = "downloads"

	// DefaultUserAgent is a fixed desktop browser identity. A desktop
	// UA is required: the mobile page template lacks the elements the
	// extractor relies on.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Mode is the traversal policy governing which navigation link the
// crawl loop follows.
type Mode string

const (
	// ModeNext follows "next topic" links until none remain.
	ModeNext Mode = "next"

	// ModePrev follows "previous topic" links until none remain.
	ModePrev Mode = "prev"

	// ModeFree prefers the next link and falls back to the previous
	// link when no next link exists.
	ModeFree Mode = "free"
)

// DefaultExtensions is the extension allow-list used when none is
// configured. The wildcard "*" in a configured list admits everything.
func DefaultExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg", ".ico", ".tiff", ".avif"}
}

// DelayRange is a min/max window for a randomized delay, in seconds.
type DelayRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Random returns a random duration within the range. A max below min
// is clamped to min rather than rejected.
func (d DelayRange) Random() time.Duration {
	mn, mx := d.Min, d.Max
	if mx < mn {
		mx = mn
	}
	secs := mn + rand.Float64()*(mx-mn)
	return time.Duration(secs * float64(time.Second))
}

// CrawlConfig holds one crawl run's settings. It is immutable for the
// lifetime of the run: the navigator and download manager only read it.
type CrawlConfig struct {
	// Mode selects the traversal policy.
	Mode Mode `yaml:"mode"`

	// AllowedExtensions is the image extension allow-list (lowercase,
	// dot-prefixed). A single "*" entry admits all extensions.
	AllowedExtensions []string `yaml:"formats"`

	// MinWidth and MinHeight filter out images whose decoded
	// dimensions fall below either bound. Zero disables the filter.
	MinWidth  int `yaml:"minWidth"`
	MinHeight int `yaml:"minHeight"`

	// NamingPattern is the filename template (see the naming package).
	NamingPattern string `yaml:"namingPattern"`

	// SaveDir is the root directory rendered paths are joined against.
	SaveDir string `yaml:"saveDir"`

	// PageDelay is the randomized wait between pages.
	PageDelay DelayRange `yaml:"pageDelay"`

	// ImageDelay is the randomized wait after each successful image
	// write. Skipped downloads do not incur the delay.
	ImageDelay DelayRange `yaml:"imageDelay"`

	// UserAgent is the fixed User-Agent sent with every request.
	UserAgent string `yaml:"userAgent"`

	// PageTimeout, RedirectTimeout, and ImageTimeout are the distinct
	// per-call-site fetch budgets.
	PageTimeout     time.Duration `yaml:"pageTimeout"`
	RedirectTimeout time.Duration `yaml:"redirectTimeout"`
	ImageTimeout    time.Duration `yaml:"imageTimeout"`

	// MaxFetchRetries is the retry budget for 5xx page fetches.
	MaxFetchRetries int `yaml:"maxFetchRetries"`

	// MaxDownloadRetries is the per-image attempt budget.
	MaxDownloadRetries int `yaml:"maxDownloadRetries"`

	// ConcurrentDownloads bounds the per-page worker pool.
	ConcurrentDownloads int `yaml:"concurrentDownloads"`

	// SaveHistory enables recording page and image outcomes in the
	// SQLite history database.
	SaveHistory bool `yaml:"saveHistory"`

	// HistoryDir is the directory holding the history database.
	// Defaults to the XDG data directory for the application.
	HistoryDir string `yaml:"historyDir"`

	// DebugDumpDir receives diagnostic HTML dumps when date extraction
	// fails entirely. Empty means the save directory.
	DebugDumpDir string `yaml:"debugDumpDir"`
}

// NewCrawlConfig returns a CrawlConfig populated with defaults.
func NewCrawlConfig() *CrawlConfig {
	return &CrawlConfig{
		Mode:                ModeNext,
		AllowedExtensions:   DefaultExtensions(),
		NamingPattern:       DefaultNamingPattern,
		SaveDir:             DefaultSaveDir,
		PageDelay:           DelayRange{Min: 2.0, Max: 5.0},
		ImageDelay:          DelayRange{Min: 0.1, Max: 0.5},
		UserAgent:           DefaultUserAgent,
		PageTimeout:         DefaultPageTimeout,
		RedirectTimeout:     DefaultRedirectTimeout,
		ImageTimeout:        DefaultImageTimeout,
		MaxFetchRetries:     DefaultMaxFetchRetries,
		MaxDownloadRetries:  DefaultMaxDownloadRetries,
		ConcurrentDownloads: DefaultConcurrentDownloads,
		HistoryDir:          DefaultHistoryDir(),
	}
}

// DefaultHistoryDir returns the XDG data directory for the history
// database.
func DefaultHistoryDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Validate checks the configuration for values the crawl loop cannot
// work with. Delay ranges whose max is below min are not an error;
// they are clamped at use (see DelayRange.Random).
func (c *CrawlConfig) Validate() error {
	switch c.Mode {
	case ModeNext, ModePrev, ModeFree:
	default:
		return ErrInvalidMode
	}
	if c.NamingPattern == "" {
		return ErrEmptyNamingPattern
	}
	if c.SaveDir == "" {
		return ErrEmptySaveDir
	}
	if c.MinWidth < 0 || c.MinHeight < 0 {
		return ErrNegativeResolution
	}
	if c.PageDelay.Min < 0 || c.ImageDelay.Min < 0 {
		return ErrNegativeDelay
	}
	if c.ConcurrentDownloads <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxFetchRetries < 0 || c.MaxDownloadRetries <= 0 {
		return ErrInvalidRetryBudget
	}
	return nil
}

// ExtensionAllowed reports whether an extension (lowercase,
// dot-prefixed) passes the allow-list.
func (c *CrawlConfig) ExtensionAllowed(ext string) bool {
	for _, allowed := range c.AllowedExtensions {
		if allowed == "*" || allowed == ext {
			return true
		}
	}
	return false
}
