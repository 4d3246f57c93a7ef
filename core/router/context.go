package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dmitrymomot/eventstream/core/handler"
)

// requestContext is the handler.Context implementation used by the router.
// All context.Context methods delegate to the current request's context.
type requestContext struct {
	w      http.ResponseWriter
	r      *http.Request
	params map[string]string
}

var _ handler.Context = (*requestContext)(nil)

func newRequestContext(w http.ResponseWriter, r *http.Request) *requestContext {
	return &requestContext{w: w, r: r, params: mux.Vars(r)}
}

func (c *requestContext) Deadline() (time.Time, bool) {
	return c.r.Context().Deadline()
}

func (c *requestContext) Done() <-chan struct{} {
	return c.r.Context().Done()
}

func (c *requestContext) Err() error {
	return c.r.Context().Err()
}

func (c *requestContext) Value(key any) any {
	return c.r.Context().Value(key)
}

func (c *requestContext) Request() *http.Request {
	return c.r
}

func (c *requestContext) ResponseWriter() http.ResponseWriter {
	return c.w
}

// Param returns the value of the URL parameter by key.
func (c *requestContext) Param(key string) string {
	return c.params[key]
}

// SetValue stores val in the request context so that later middlewares,
// the handler and the rendered response all see it.
func (c *requestContext) SetValue(key, val any) {
	c.r = c.r.WithContext(context.WithValue(c.r.Context(), key, val))
}
