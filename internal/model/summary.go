package model

import "time"

// RunSummary aggregates the outcome of one crawl run. It is built
// incrementally by the navigator and consumed by the report writers
// and the history store after the run finishes.
type RunSummary struct {
	// StartURL is the URL the crawl was started from.
	StartURL string `json:"start_url"`

	// Mode is the traversal mode used ("next", "prev", or "free").
	Mode string `json:"mode"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Pages are the per-page outcomes in visit order.
	Pages []PageOutcome `json:"pages"`

	// ImagesSaved counts images written to disk across the run.
	ImagesSaved int `json:"images_saved"`

	// ImagesSkipped counts images treated as successful without a
	// write (already on disk or below the minimum resolution).
	ImagesSkipped int `json:"images_skipped"`

	// ImagesFailed counts jobs that exhausted their retry budget.
	ImagesFailed int `json:"images_failed"`

	// TotalBytes is the final bandwidth counter value.
	TotalBytes int64 `json:"total_bytes"`

	// Stopped is true when the run ended on an external stop request
	// rather than queue exhaustion.
	Stopped bool `json:"stopped"`
}

// PageOutcome records the final state of one visited page.
type PageOutcome struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	DateString  string     `json:"date"`
	Status      PageStatus `json:"status"`
	ImagesTotal int        `json:"images_total"`
	ImagesSaved int        `json:"images_saved"`
}

// Duration returns the wall-clock duration of the run.
func (r *RunSummary) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// CountByStatus returns how many pages finished with the given status.
func (r *RunSummary) CountByStatus(status PageStatus) int {
	n := 0
	for _, p := range r.Pages {
		if p.Status == status {
			n++
		}
	}
	return n
}
