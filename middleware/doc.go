// Package middleware provides handler.Middleware implementations for the
// HTTP surface: request IDs, access logging, session authentication,
// client IP resolution, body size limits and rate limiting.
//
//	r.Use(
//		middleware.RequestID(),
//		middleware.ClientIP(),
//		middleware.Logging(log),
//	)
//
//	api := r.With(middleware.Authenticate(secret))
//	api.With(middleware.RateLimit(limiter, middleware.ByUserID)).
//		Post("/api/events/token", streams.Issue)
//
// Values placed in the request context are read back with the matching
// getter: GetRequestID, GetClientIP, GetUserID.
package middleware
