// Package model defines the data types shared across the crawl engine:
// extracted page results, download jobs, page statuses, the crawl event
// stream, and run summaries.
//
// The types here are plain data. The event types in particular exist so
// that the engine communicates with its control layer through a stream
// of immutable values rather than shared mutable state; see the Sink
// type for the consumption side.
package model
