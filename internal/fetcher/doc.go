// Package fetcher provides the HTTP client used by every network path
// of the crawler: page fetches, redirect resolution, and image
// downloads.
//
// The client sends a fixed desktop-browser header set, retries
// transient HTTP 500/502/503/504 responses with exponential backoff,
// and resolves the response charset before exposing decoded text.
// Charset resolution prefers an explicit declaration in the first 2000
// bytes, then heuristic detection, then UTF-8; the forum family this
// crawler targets mixes GBK and UTF-8 pages with unreliable meta tags.
//
// Failures are split into *FetchError (no usable response) and
// *HTTPStatusError (non-2xx final response) so the crawl loop can mark
// a page failed without aborting the run.
package fetcher
