// Package extractor parses fetched topic pages into structured
// results: the topic title, the publish date, candidate image URLs,
// and next/previous navigation links.
package extractor
