package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/topicgrab/topicgrab/internal/model"
)

// EventHandler wraps an slog.Handler and mirrors every record onto the
// crawl event stream as a model.LogEvent. The crawl engine logs through
// the standard slog API while any control layer listening on the sink
// sees the same lines, without the engine knowing who is watching.
type EventHandler struct {
	// handler is the underlying slog handler that receives records.
	handler slog.Handler

	// sink receives the mirrored log events. Nil-safe.
	sink model.Sink
}

// NewEventHandler creates an EventHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewEventHandler(handler slog.Handler, sink model.Sink) *EventHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &EventHandler{handler: handler, sink: sink}
}

// Enabled reports whether the handler handles records at the given
// level. It delegates to the underlying handler.
func (h *EventHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle mirrors the record to the sink and passes it to the
// underlying handler.
func (h *EventHandler) Handle(ctx context.Context, r slog.Record) error {
	h.sink.Emit(model.LogEvent{
		Message: r.Message,
		Level:   levelFor(r.Level),
	})
	return h.handler.Handle(ctx, r)
}

// WithAttrs returns a new handler with the given attributes added.
func (h *EventHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EventHandler{handler: h.handler.WithAttrs(attrs), sink: h.sink}
}

// WithGroup returns a new handler with the given group name.
func (h *EventHandler) WithGroup(name string) slog.Handler {
	return &EventHandler{handler: h.handler.WithGroup(name), sink: h.sink}
}

// levelFor maps slog levels onto the event stream's log levels.
func levelFor(level slog.Level) model.LogLevel {
	switch {
	case level >= slog.LevelError:
		return model.LevelError
	case level >= slog.LevelWarn:
		return model.LevelWarning
	default:
		return model.LevelInfo
	}
}

// NewLogger creates an slog.Logger writing text output to w.
// Verbose lowers the level from Info to Debug.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, handlerOptions(verbose)))
}

// NewEventLogger creates an slog.Logger that writes text output to w
// and mirrors every record onto the given event sink.
func NewEventLogger(w io.Writer, verbose bool, sink model.Sink) *slog.Logger {
	textHandler := slog.NewTextHandler(w, handlerOptions(verbose))
	return slog.New(NewEventHandler(textHandler, sink))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
