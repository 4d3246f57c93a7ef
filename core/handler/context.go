package handler

import (
	"context"
	"net/http"
)

// Context defines the contract for request contexts.
// SetValue stores a request-scoped value visible through Value and through
// the context of Request.
type Context interface {
	context.Context
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
	Param(key string) string
	SetValue(key, val any)
}
