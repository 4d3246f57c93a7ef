// Package handler defines the request processing contract: handlers receive a
// Context and return a Response function that renders the result.
//
//	func ping(ctx handler.Context) handler.Response {
//		return response.String("pong")
//	}
//
// Middleware wraps a HandlerFunc and may short-circuit by returning its own
// Response. ResponseWriter records the status and size of what was written
// and keeps Flush and Hijack available for streaming and upgrades.
package handler
