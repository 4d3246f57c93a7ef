package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/logger"
)

// LoggingConfig configures the access log middleware.
type LoggingConfig struct {
	// Skip defines a function to skip middleware execution for specific requests
	Skip func(ctx handler.Context) bool
	// Logger receives the records (default: slog.Default())
	Logger *slog.Logger
	// SlowRequestThreshold logs slower requests at warn level (default: 5s).
	// Event streams and upgraded connections are exempt.
	SlowRequestThreshold time.Duration
	// Component is logged with every record (default: "http")
	Component string
}

// Logging creates an access log middleware writing to log.
func Logging(log *slog.Logger) handler.Middleware {
	return LoggingWithConfig(LoggingConfig{Logger: log})
}

// LoggingWithConfig logs one record per request after the response has
// been rendered, with its status, size and duration.
func LoggingWithConfig(cfg LoggingConfig) handler.Middleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SlowRequestThreshold <= 0 {
		cfg.SlowRequestThreshold = 5 * time.Second
	}
	if cfg.Component == "" {
		cfg.Component = "http"
	}

	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx handler.Context) handler.Response {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			start := time.Now()
			resp := next(ctx)

			return func(w http.ResponseWriter, r *http.Request) error {
				var err error
				if resp != nil {
					err = resp(w, r)
				}

				status, size := http.StatusOK, int64(0)
				if ww, ok := w.(*handler.ResponseWriter); ok {
					status, size = ww.Status(), ww.Size()
				}
				if err != nil {
					status = errorStatus(err)
				}

				duration := time.Since(start)
				level := slog.LevelInfo
				switch {
				case status >= http.StatusInternalServerError:
					level = slog.LevelError
				case status >= http.StatusBadRequest:
					level = slog.LevelWarn
				case duration > cfg.SlowRequestThreshold && !isLongLived(w, status):
					level = slog.LevelWarn
				}

				requestID, _ := GetRequestID(r.Context())
				clientIP, _ := GetClientIP(r.Context())
				cfg.Logger.LogAttrs(r.Context(), level, "HTTP request completed",
					logger.Component(cfg.Component),
					logger.RequestID(requestID),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.ClientIP(clientIP),
					logger.StatusCode(status),
					logger.BytesOut(size),
					logger.Duration(duration),
					logger.Error(err),
				)

				return err
			}
		}
	}
}

// isLongLived reports event streams and upgraded connections, which are
// expected to outlive any slow request threshold.
func isLongLived(w http.ResponseWriter, status int) bool {
	return status == http.StatusSwitchingProtocols ||
		strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream")
}

// errorStatus mirrors how the router renders err.
func errorStatus(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
