// Package crawler drives the whole run: it walks a topic chain in the
// configured direction, hands each page to the extractor and the
// download manager, reports progress on the event stream, and records
// outcomes in the history store.
package crawler
