// Package log provides the crawl engine's logging setup on top of the
// standard slog package.
//
// The EventHandler mirrors every log record onto the crawl event
// stream, so log lines reach the presentation layer through the same
// channel as status, progress, and bandwidth updates. The engine
// itself only ever talks to a *slog.Logger.
//
// # Usage
//
//	logger := log.NewEventLogger(os.Stderr, verbose, sink)
//	logger.Info("analyzing page", "url", pageURL)
package log
