// Package logger builds log/slog loggers for the service and provides
// attribute helpers for consistent keys.
//
//	log := logger.New(
//		logger.WithDevelopment("eventstream"),
//		logger.WithContextExtractors(middleware.RequestIDExtractor),
//	)
//
//	log.InfoContext(ctx, "stream opened",
//		logger.UserID(userID),
//		logger.Component("eventstream"),
//	)
//
// Attribute helpers return an empty slog.Attr for empty values, which slog
// drops, so callers never need nil checks:
//
//	log.Error("issue failed", logger.Error(err))
//
// Context extractors add request-scoped attributes (such as the request ID)
// to every record logged with a *Context method.
package logger
