package model

// PageStatus represents the processing state of a single page as
// surfaced to the presentation layer.
type PageStatus int

const (
	// StatusRunning indicates the page is currently being processed.
	StatusRunning PageStatus = iota

	// StatusSuccess indicates every image job on the page succeeded
	// (downloads, idempotent skips, and resolution skips all count).
	StatusSuccess

	// StatusWarning indicates a mixed outcome: some image jobs
	// succeeded and at least one failed.
	StatusWarning

	// StatusError indicates the page could not be fetched or none of
	// its image jobs succeeded.
	StatusError
)

// ParsePageStatus maps a stored status string back to a PageStatus.
// Unknown strings map to StatusError.
func ParsePageStatus(s string) PageStatus {
	switch s {
	case "running":
		return StatusRunning
	case "success":
		return StatusSuccess
	case "warning":
		return StatusWarning
	default:
		return StatusError
	}
}

// String returns a human-readable representation of the page status.
func (s PageStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
