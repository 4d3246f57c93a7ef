// Package health provides liveness and readiness handlers.
//
//	r.Get("/health/live", health.Liveness)
//	r.Get("/health/ready", health.Readiness(log,
//		health.Check("postgres", pg.Healthcheck(pool)),
//		health.Check("redis", redis.Healthcheck(client)),
//	))
//
// Readiness runs every check concurrently with a shared timeout and answers
// 503 when any of them fails.
package health
