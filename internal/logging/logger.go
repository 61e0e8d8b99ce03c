package logging

import (
	"io"
	"log/slog"
	"os"
)

// Handler formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

type options struct {
	w      io.Writer
	format string
}

// Option configures New.
type Option func(*options)

// WithWriter replaces stderr as the destination.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.w = w }
}

// WithFormat selects FormatText (default) or FormatJSON.
func WithFormat(format string) Option {
	return func(o *options) { o.format = format }
}

// New creates a configured application logger.
// It writes to Stderr so stdout stays free for replies and JSON-RPC.
// The "error" key is renamed "err" in both formats.
func New(level slog.Level, opts ...Option) *slog.Logger {
	o := options{w: os.Stderr, format: FormatText}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}
	if o.format == FormatJSON {
		return slog.New(slog.NewJSONHandler(o.w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(o.w, handlerOpts))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
