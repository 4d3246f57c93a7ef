package router

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/gorilla/mux"

	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/response"
)

// Route describes a single route with its HTTP method and pattern.
type Route struct {
	Method  string
	Pattern string
}

// Router dispatches requests through gorilla/mux to handler.HandlerFunc
// handlers wrapped in the configured middleware chain.
type Router struct {
	mux          *mux.Router
	middlewares  []handler.Middleware
	errorHandler handler.ErrorHandler
	logger       *slog.Logger
	routes       *[]Route
	inline       bool
}

// New creates a router with JSON not-found and method-not-allowed responses.
func New(opts ...Option) *Router {
	r := &Router{
		mux:          mux.NewRouter(),
		errorHandler: defaultErrorHandler,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		routes:       &[]Route{},
	}

	for _, opt := range opts {
		opt(r)
	}

	r.mux.NotFoundHandler = r.wrap(func(handler.Context) handler.Response {
		return response.Error(response.ErrNotFound)
	})
	r.mux.MethodNotAllowedHandler = r.wrap(func(handler.Context) handler.Response {
		return response.Error(response.ErrMethodNotAllowed)
	})

	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Use appends middlewares to the router's chain. It panics when called after
// a route has been registered, because existing routes would not see them.
func (r *Router) Use(middlewares ...handler.Middleware) {
	if r.inline {
		panic("router: Use is not allowed on a router returned by With")
	}
	if len(*r.routes) > 0 {
		panic("router: all middlewares must be defined before routes")
	}
	r.middlewares = append(r.middlewares, middlewares...)
}

// With returns a router sharing the same routes table whose handlers also
// run the given middlewares after the parent's.
func (r *Router) With(middlewares ...handler.Middleware) *Router {
	sub := *r
	sub.middlewares = append(slices.Clone(r.middlewares), middlewares...)
	sub.inline = true
	return &sub
}

// Get registers a GET route.
func (r *Router) Get(pattern string, h handler.HandlerFunc) {
	r.Method(pattern, h, http.MethodGet)
}

// Post registers a POST route.
func (r *Router) Post(pattern string, h handler.HandlerFunc) {
	r.Method(pattern, h, http.MethodPost)
}

// Put registers a PUT route.
func (r *Router) Put(pattern string, h handler.HandlerFunc) {
	r.Method(pattern, h, http.MethodPut)
}

// Delete registers a DELETE route.
func (r *Router) Delete(pattern string, h handler.HandlerFunc) {
	r.Method(pattern, h, http.MethodDelete)
}

// Handle registers a route for every method.
func (r *Router) Handle(pattern string, h handler.HandlerFunc) {
	r.mux.Handle(pattern, r.wrap(handler.Chain(h, r.middlewares...)))
	*r.routes = append(*r.routes, Route{Method: "*", Pattern: pattern})
}

// Method registers a route for the given HTTP methods.
func (r *Router) Method(pattern string, h handler.HandlerFunc, methods ...string) {
	if len(methods) == 0 {
		panic(fmt.Errorf("%w: no methods provided", ErrInvalidMethod))
	}
	for i, m := range methods {
		methods[i] = strings.ToUpper(m)
	}

	r.mux.Handle(pattern, r.wrap(handler.Chain(h, r.middlewares...))).Methods(methods...)
	for _, m := range methods {
		*r.routes = append(*r.routes, Route{Method: m, Pattern: pattern})
	}
}

// Routes returns every registered route in registration order.
func (r *Router) Routes() []Route {
	return slices.Clone(*r.routes)
}

// wrap adapts a HandlerFunc to http.Handler: it renders the response,
// routes errors to the error handler and recovers panics.
func (r *Router) wrap(h handler.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := handler.WrapWriter(w)
		ctx := newRequestContext(ww, req)

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				perr := &panicError{value: p, stack: debug.Stack()}
				if ww.Written() {
					r.logger.Error("panic after response written",
						slog.Any("value", perr.value),
						slog.String("stack", string(perr.stack)),
						slog.String("path", req.URL.Path),
						slog.String("method", req.Method),
						slog.Int("status", ww.Status()),
					)
					return
				}
				r.errorHandler(ctx, perr)
			}
		}()

		resp := h(ctx)
		if resp == nil {
			r.errorHandler(ctx, ErrNilResponse)
			return
		}
		if err := resp(ww, ctx.Request()); err != nil {
			r.errorHandler(ctx, err)
		}
	})
}

// defaultErrorHandler writes err as JSON unless the response has started.
func defaultErrorHandler(ctx handler.Context, err error) {
	if ww, ok := ctx.ResponseWriter().(*handler.ResponseWriter); ok && ww.Written() {
		return
	}
	response.WriteError(ctx.ResponseWriter(), err)
}
