package router

import (
	"log/slog"

	"github.com/dmitrymomot/eventstream/core/handler"
)

// Option configures a Router during creation.
type Option func(*Router)

// WithErrorHandler sets a custom error handler for the router.
func WithErrorHandler(h handler.ErrorHandler) Option {
	return func(r *Router) {
		if h != nil {
			r.errorHandler = h
		}
	}
}

// WithMiddleware adds middleware to the router.
func WithMiddleware(middlewares ...handler.Middleware) Option {
	return func(r *Router) {
		r.middlewares = append(r.middlewares, middlewares...)
	}
}

// WithLogger sets a custom logger for the router.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStrictSlash makes /path/ and /path the same route by redirecting.
func WithStrictSlash(strict bool) Option {
	return func(r *Router) {
		r.mux.StrictSlash(strict)
	}
}
