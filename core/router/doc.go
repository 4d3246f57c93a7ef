// Package router adapts gorilla/mux to the handler.HandlerFunc contract.
//
// Handlers receive a handler.Context and return a handler.Response. Errors
// returned while rendering are passed to the router's error handler, which by
// default writes a JSON error body (see response.WriteError). Panics are
// recovered and reported the same way.
//
//	r := router.New(router.WithLogger(log))
//	r.Use(middleware.RequestID(), middleware.Logging(log))
//	r.Get("/health/live", health.Liveness)
//
//	api := r.With(middleware.Authenticate(secret))
//	api.Post("/api/events/token", streams.Issue)
//
//	http.ListenAndServe(":8080", r)
//
// Path parameters use gorilla/mux syntax and are read with Context.Param:
//
//	r.Get("/users/{id}", func(ctx handler.Context) handler.Response {
//		return response.String(ctx.Param("id"))
//	})
//
// Middlewares registered with Use must be added before any route.
package router
