package runner

import (
	"log/slog"
	"time"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithHandler configures a custom IOHandler.
func WithHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithInterceptor configures the perception middleware.
func WithInterceptor(interceptor Interceptor) Option {
	return func(r *Runner) {
		r.Interceptor = interceptor
	}
}

// WithTurnTimeout bounds every perception. Zero means no bound.
func WithTurnTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.TurnTimeout = d
	}
}
