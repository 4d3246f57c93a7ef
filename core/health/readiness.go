package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/logger"
	"github.com/dmitrymomot/eventstream/core/response"
)

// DefaultCheckTimeout bounds the whole readiness probe.
const DefaultCheckTimeout = 3 * time.Second

// Checker is a named dependency check.
type Checker struct {
	Name string
	Fn   func(context.Context) error
}

// Check names a dependency check function.
func Check(name string, fn func(context.Context) error) Checker {
	return Checker{Name: name, Fn: fn}
}

// Readiness verifies all service dependencies are functioning.
// Returns "READY" if all checks pass, 503 Service Unavailable if any fail.
func Readiness(log *slog.Logger, checks ...Checker) handler.HandlerFunc {
	return func(ctx handler.Context) handler.Response {
		cctx, cancel := context.WithTimeout(ctx, DefaultCheckTimeout)
		defer cancel()

		g, gctx := errgroup.WithContext(cctx)
		for _, c := range checks {
			g.Go(func() error {
				if err := c.Fn(gctx); err != nil {
					return fmt.Errorf("%s: %w", c.Name, err)
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
			return response.Error(response.ErrServiceUnavailable)
		}

		return response.String("READY")
	}
}
