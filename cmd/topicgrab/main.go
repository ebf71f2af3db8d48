// Package main provides the entry point for the topicgrab CLI.
//
// topicgrab walks a chain of forum topic pages and downloads the
// images each page embeds, following "next topic" or "previous topic"
// links until the chain ends.
//
// Usage:
//
//	topicgrab crawl <start-url>
//	topicgrab crawl --mode prev <start-url>
//
// See --help for all available options.
package main

// main is the entry point for topicgrab.
func main() {
	Execute()
}
