package model

// LogLevel classifies log events emitted on the event stream.
type LogLevel int

const (
	// LevelInfo is routine progress information.
	LevelInfo LogLevel = iota

	// LevelSuccess marks a completed download or page.
	LevelSuccess

	// LevelWarning marks a recoverable problem (retry, skipped link).
	LevelWarning

	// LevelError marks a failure that was isolated but not recovered.
	LevelError
)

// String returns a human-readable representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single update on the crawl event stream. The crawl engine
// emits events instead of mutating presentation state directly, so any
// control layer (CLI, GUI, test harness) can consume the same stream.
type Event interface {
	eventType() string
}

// Sink receives crawl events. A nil Sink is valid and discards events.
type Sink func(Event)

// Emit sends an event to the sink, tolerating a nil sink.
func (s Sink) Emit(e Event) {
	if s != nil {
		s(e)
	}
}

// LogEvent is a log line with severity.
type LogEvent struct {
	Message string   `json:"message"`
	Level   LogLevel `json:"level"`
}

// PageStatusEvent reports a per-page status transition.
type PageStatusEvent struct {
	URL        string     `json:"url"`
	Status     PageStatus `json:"status"`
	Title      string     `json:"title"`
	DateString string     `json:"date"`
}

// RedirectEvent reports that a requested page URL silently resolved to
// a different final URL.
type RedirectEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ProgressEvent reports per-page download progress as a completed
// count against the total job count. Completed never decreases within
// one page.
type ProgressEvent struct {
	PageURL   string `json:"page_url"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// ImageSavedEvent reports one image written to disk.
type ImageSavedEvent struct {
	PageURL  string `json:"page_url"`
	ImageURL string `json:"image_url"`
	Path     string `json:"path"`
}

// BandwidthEvent carries a snapshot of the cumulative bytes received
// across all downloads in the current run.
type BandwidthEvent struct {
	TotalBytes int64 `json:"total_bytes"`
}

// FinishedEvent is the terminal event of a run. It is emitted exactly
// once, whether the run ended by queue exhaustion, stop request, or an
// unanticipated failure.
type FinishedEvent struct{}

func (LogEvent) eventType() string        { return "log" }
func (PageStatusEvent) eventType() string { return "status" }
func (RedirectEvent) eventType() string   { return "redirect" }
func (ProgressEvent) eventType() string   { return "progress" }
func (ImageSavedEvent) eventType() string { return "image" }
func (BandwidthEvent) eventType() string  { return "bandwidth" }
func (FinishedEvent) eventType() string   { return "finished" }

// EventType returns the wire name of an event, used when streaming
// events as JSON lines.
func EventType(e Event) string {
	if e == nil {
		return ""
	}
	return e.eventType()
}
