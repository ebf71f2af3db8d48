package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/topicgrab/topicgrab/internal/model"
)

// dbFileName is the SQLite file inside the history directory.
const dbFileName = "topicgrab.db"

// Store records crawl runs, per-page outcomes, and saved images in a
// SQLite database. One database spans all runs so earlier downloads
// can be looked up across sessions.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file when
	// they do not exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database under dir.
func Open(dir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("history database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check history path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite supports a single writer; the crawl loop is the only one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	-- Runs store one row per crawl invocation
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_url TEXT NOT NULL,
		mode TEXT NOT NULL,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME,
		pages_total INTEGER DEFAULT 0,
		images_saved INTEGER DEFAULT 0,
		images_skipped INTEGER DEFAULT 0,
		images_failed INTEGER DEFAULT 0,
		total_bytes INTEGER DEFAULT 0,
		stopped INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Pages store per-page outcomes within a run
	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		url TEXT NOT NULL,
		title TEXT,
		published TEXT,
		status TEXT NOT NULL,
		images_total INTEGER DEFAULT 0,
		images_saved INTEGER DEFAULT 0,
		crawled_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);

	-- Images store every file written to disk
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		page_url TEXT NOT NULL,
		image_url TEXT NOT NULL,
		path TEXT NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(image_url, path)
	);

	CREATE INDEX IF NOT EXISTS idx_images_url ON images(image_url);
	CREATE INDEX IF NOT EXISTS idx_images_page ON images(page_url);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// RunRecord is a stored crawl run.
type RunRecord struct {
	ID            int64
	StartURL      string
	Mode          string
	StartedAt     time.Time
	FinishedAt    time.Time
	PagesTotal    int
	ImagesSaved   int
	ImagesSkipped int
	ImagesFailed  int
	TotalBytes    int64
	Stopped       bool
}

// PageRecord is a stored per-page outcome.
type PageRecord struct {
	ID          int64
	RunID       int64
	URL         string
	Title       string
	Published   string
	Status      string
	ImagesTotal int
	ImagesSaved int
	CrawledAt   time.Time
}

// BeginRun inserts a new run row and returns its ID.
func (s *Store) BeginRun(ctx context.Context, startURL, mode string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (start_url, mode) VALUES (?, ?)`, startURL, mode)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return result.LastInsertId()
}

// FinishRun stores the final totals of a run.
func (s *Store) FinishRun(ctx context.Context, runID int64, summary *model.RunSummary) error {
	stopped := 0
	if summary.Stopped {
		stopped = 1
	}

	_, err := s.db.ExecContext(ctx, `
	UPDATE runs SET
		finished_at = CURRENT_TIMESTAMP,
		pages_total = ?,
		images_saved = ?,
		images_skipped = ?,
		images_failed = ?,
		total_bytes = ?,
		stopped = ?
	WHERE id = ?`,
		len(summary.Pages),
		summary.ImagesSaved,
		summary.ImagesSkipped,
		summary.ImagesFailed,
		summary.TotalBytes,
		stopped,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RecordPage inserts or updates a page outcome for a run.
func (s *Store) RecordPage(ctx context.Context, runID int64, outcome model.PageOutcome) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO pages (run_id, url, title, published, status, images_total, images_saved)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		title = excluded.title,
		published = excluded.published,
		status = excluded.status,
		images_total = excluded.images_total,
		images_saved = excluded.images_saved,
		crawled_at = CURRENT_TIMESTAMP`,
		runID,
		outcome.URL,
		outcome.Title,
		outcome.DateString,
		outcome.Status.String(),
		outcome.ImagesTotal,
		outcome.ImagesSaved,
	)
	if err != nil {
		return fmt.Errorf("failed to record page: %w", err)
	}
	return nil
}

// RecordImage stores one saved image. Re-recording the same image and
// path is a no-op.
func (s *Store) RecordImage(ctx context.Context, pageURL, imageURL, path string) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO images (page_url, image_url, path)
	VALUES (?, ?, ?)
	ON CONFLICT(image_url, path) DO NOTHING`,
		pageURL, imageURL, path)
	if err != nil {
		return fmt.Errorf("failed to record image: %w", err)
	}
	return nil
}

// HasImage reports whether an image URL was saved in any earlier run.
func (s *Store) HasImage(ctx context.Context, imageURL string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM images WHERE image_url = ?`, imageURL).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check image: %w", err)
	}
	return count > 0, nil
}

// LatestRun returns the most recently started run, or nil when the
// database has none.
func (s *Store) LatestRun(ctx context.Context) (*RunRecord, error) {
	rows, err := s.queryRuns(ctx, `
	SELECT id, start_url, mode, started_at, finished_at,
	       pages_total, images_saved, images_skipped, images_failed, total_bytes, stopped
	FROM runs ORDER BY id DESC LIMIT 1`)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Run returns the run with the given ID, or nil when it does not
// exist.
func (s *Store) Run(ctx context.Context, id int64) (*RunRecord, error) {
	rows, err := s.queryRuns(ctx, `
	SELECT id, start_url, mode, started_at, finished_at,
	       pages_total, images_saved, images_skipped, images_failed, total_bytes, stopped
	FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Summary reconstructs the run summary a finished run was stored from,
// so the report writers can render past runs.
func (s *Store) Summary(ctx context.Context, run *RunRecord) (*model.RunSummary, error) {
	pages, err := s.PagesForRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	summary := &model.RunSummary{
		StartURL:      run.StartURL,
		Mode:          run.Mode,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		ImagesSaved:   run.ImagesSaved,
		ImagesSkipped: run.ImagesSkipped,
		ImagesFailed:  run.ImagesFailed,
		TotalBytes:    run.TotalBytes,
		Stopped:       run.Stopped,
	}
	for _, page := range pages {
		summary.Pages = append(summary.Pages, model.PageOutcome{
			URL:         page.URL,
			Title:       page.Title,
			DateString:  page.Published,
			Status:      model.ParsePageStatus(page.Status),
			ImagesTotal: page.ImagesTotal,
			ImagesSaved: page.ImagesSaved,
		})
	}
	return summary, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	return s.queryRuns(ctx, `
	SELECT id, start_url, mode, started_at, finished_at,
	       pages_total, images_saved, images_skipped, images_failed, total_bytes, stopped
	FROM runs ORDER BY id DESC LIMIT ?`, limit)
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var results []RunRecord
	for rows.Next() {
		var run RunRecord
		var startedAt string
		var finishedAt sql.NullString
		var stopped int

		if err := rows.Scan(
			&run.ID,
			&run.StartURL,
			&run.Mode,
			&startedAt,
			&finishedAt,
			&run.PagesTotal,
			&run.ImagesSaved,
			&run.ImagesSkipped,
			&run.ImagesFailed,
			&run.TotalBytes,
			&stopped,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.StartedAt = parseTimestamp(startedAt)
		if finishedAt.Valid {
			run.FinishedAt = parseTimestamp(finishedAt.String)
		}
		run.Stopped = stopped != 0
		results = append(results, run)
	}

	return results, rows.Err()
}

// PagesForRun returns a run's page outcomes in crawl order.
func (s *Store) PagesForRun(ctx context.Context, runID int64) ([]PageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, run_id, url, title, published, status, images_total, images_saved, crawled_at
	FROM pages WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var results []PageRecord
	for rows.Next() {
		var page PageRecord
		var crawledAt string

		if err := rows.Scan(
			&page.ID,
			&page.RunID,
			&page.URL,
			&page.Title,
			&page.Published,
			&page.Status,
			&page.ImagesTotal,
			&page.ImagesSaved,
			&crawledAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}

		page.CrawledAt = parseTimestamp(crawledAt)
		results = append(results, page)
	}

	return results, rows.Err()
}

// timestampFormats contains the timestamp formats SQLite may return,
// most specific first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp parses a SQLite timestamp string, returning zero time
// when no known format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
