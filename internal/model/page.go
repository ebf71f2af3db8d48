package model

import "time"

// PageResult holds everything extracted from a single topic page.
// It is produced once by the extractor and never mutated afterward;
// the navigator and the download manager only read from it.
type PageResult struct {
	// URL is the final URL of the page after any silent redirection.
	// All relative references on the page were resolved against it.
	URL string

	// Title is the topic title. "Unknown Title" when no title element
	// could be located.
	Title string

	// PublishedAt is the detected publish timestamp of the topic.
	// Nil when no date could be extracted; filename templating then
	// falls back to the current wall-clock time.
	PublishedAt *time.Time

	// ImageURLs are the candidate image URLs in first-seen document
	// order, absolute and deduplicated.
	ImageURLs []string

	// NextLink is the resolved href of the "next topic" anchor.
	// Empty when the page has no forward navigation link.
	NextLink string

	// PrevLink is the resolved href of the "previous topic" anchor.
	// Empty when the page has no backward navigation link.
	PrevLink string
}

// DateString returns the publish timestamp formatted for status
// reporting, or "No Date" when none was detected.
func (p *PageResult) DateString() string {
	if p.PublishedAt == nil {
		return "No Date"
	}
	return p.PublishedAt.Format("2006-01-02 15:04")
}

// DownloadJob is one image download task. Jobs are created by the
// navigator per image and consumed concurrently by the download
// manager; each job is processed at most once to completion or
// exhaustion of its retry budget.
type DownloadJob struct {
	// ImageURL is the absolute URL of the image to download.
	ImageURL string

	// PageURL is the URL of the owning page, sent as the Referer.
	PageURL string

	// PageTitle is the owning page's title, used by filename templating.
	PageTitle string

	// PageDate is the owning page's publish timestamp, nil when absent.
	PageDate *time.Time

	// Index is the zero-based position of the image within its page.
	Index int
}
