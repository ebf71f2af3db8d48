package fetcher

import "fmt"

// FetchError reports a request that never produced a usable response:
// a network failure, a timeout, or a transient server error that
// survived the whole retry budget. Pages that fail this way are marked
// failed without aborting the run.
type FetchError struct {
	// URL is the requested URL.
	URL string

	// Attempts is the number of attempts performed.
	Attempts int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *FetchError) Unwrap() error { return e.Err }

// HTTPStatusError reports a completed request whose final response had
// a non-2xx status that the retry policy does not cover.
type HTTPStatusError struct {
	// URL is the final URL of the response.
	URL string

	// StatusCode is the HTTP status of the final response.
	StatusCode int
}

// Error implements the error interface.
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}
