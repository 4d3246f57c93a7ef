package middleware

import (
	"context"
	"log/slog"
	"math"
	"strconv"

	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/logger"
	"github.com/dmitrymomot/eventstream/core/response"
	"github.com/dmitrymomot/eventstream/pkg/ratelimiter"
)

// Limiter is satisfied by *ratelimiter.Bucket.
type Limiter interface {
	Allow(ctx context.Context, key string) (ratelimiter.Result, error)
}

// KeyFunc derives the rate limit key for a request. An empty key skips
// limiting.
type KeyFunc func(ctx handler.Context) string

// ByUserID keys requests by the authenticated user.
func ByUserID(ctx handler.Context) string {
	if id, ok := GetUserID(ctx); ok {
		return "user:" + id
	}
	return ""
}

// ByClientIP keys requests by the client address.
func ByClientIP(ctx handler.Context) string {
	if ip, ok := GetClientIP(ctx); ok {
		return "ip:" + ip
	}
	return ""
}

// RateLimit rejects requests over the limit with 429 and sets the
// X-RateLimit-* headers. Limiter failures let the request through.
func RateLimit(limiter Limiter, key KeyFunc, log *slog.Logger) handler.Middleware {
	if log == nil {
		log = logger.Discard()
	}

	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx handler.Context) handler.Response {
			k := key(ctx)
			if k == "" {
				return next(ctx)
			}

			res, err := limiter.Allow(ctx, k)
			if err != nil {
				log.WarnContext(ctx, "rate limiter unavailable", logger.Error(err))
				return next(ctx)
			}

			h := ctx.ResponseWriter().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter().Seconds()))))
				return response.Error(response.ErrTooManyRequests)
			}

			return next(ctx)
		}
	}
}
