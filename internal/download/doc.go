// Package download saves a page's images to disk through a bounded
// concurrent worker pool, with per-image retries, an existing-file
// short-circuit, and an optional minimum-resolution filter.
package download
