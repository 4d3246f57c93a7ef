package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/eventstream/core/eventstream"
	"github.com/dmitrymomot/eventstream/core/health"
	"github.com/dmitrymomot/eventstream/core/logger"
	"github.com/dmitrymomot/eventstream/core/router"
	"github.com/dmitrymomot/eventstream/core/server"
	"github.com/dmitrymomot/eventstream/core/streamtoken"
	"github.com/dmitrymomot/eventstream/integration/database/pg"
	"github.com/dmitrymomot/eventstream/integration/database/redis"
	"github.com/dmitrymomot/eventstream/integration/streamtoken/pgstore"
	"github.com/dmitrymomot/eventstream/integration/streamtoken/redisstore"
	"github.com/dmitrymomot/eventstream/middleware"
	"github.com/dmitrymomot/eventstream/pkg/broadcast"
	"github.com/dmitrymomot/eventstream/pkg/ratelimiter"
)

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	g, ctx := errgroup.WithContext(ctx)

	store, checks, closeStore, err := openStore(ctx, g, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	broker, err := broadcast.NewFromConfig(cfg.Broker,
		broadcast.WithLogger(log.With(logger.Component("broker"))))
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}

	issuer := streamtoken.NewFromConfig(cfg.Tokens, store,
		streamtoken.WithLogger(log.With(logger.Component("streamtoken"))))
	if _, inMemory := store.(*streamtoken.MemoryStore); !inMemory {
		g.Go(cleanupLoop(ctx, issuer, cfg.Tokens.CleanupInterval, log))
	}

	limiterStore := ratelimiter.NewMemoryStore(ratelimiter.WithMemoryStoreLogger(log))
	limiter, err := ratelimiter.NewBucket(limiterStore, cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	g.Go(limiterStore.Run(ctx))

	streams := eventstream.NewFromConfig(cfg.Events, issuer, broker,
		eventstream.WithLogger(log.With(logger.Component("eventstream"))),
		eventstream.WithTokenMiddleware(middleware.RateLimit(limiter, middleware.ByUserID, log)),
	)

	r := router.New(router.WithLogger(log))
	r.Use(
		middleware.RequestID(),
		middleware.ClientIP(),
		middleware.Logging(log),
	)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness(log, checks...))
	streams.Register(r, middleware.Authenticate(cfg.SessionSecret))

	// Closing the broker ends every stream handler so Shutdown can drain.
	srv, err := server.NewFromConfig(cfg.Server,
		server.WithLogger(log),
		server.WithOnShutdown(func() { _ = broker.Close() }),
	)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	g.Go(srv.Run(ctx, r))

	return g.Wait()
}

// openStore connects the configured credential store. Background work the
// store needs runs in g; the returned func releases its connections.
func openStore(ctx context.Context, g *errgroup.Group, cfg appConfig, log *slog.Logger) (streamtoken.Store, []health.Checker, func(), error) {
	switch cfg.StoreDriver {
	case storeMemory, "":
		store := streamtoken.NewMemoryStore(
			streamtoken.WithCleanupInterval(cfg.Tokens.CleanupInterval),
			streamtoken.WithMemoryStoreLogger(log),
		)
		g.Go(store.Run(ctx))
		return store, nil, func() {}, nil

	case storePostgres:
		pool, err := pg.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pg.MigrateFS(ctx, pool, pgstore.Migrations(), cfg.Postgres, log); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		checks := []health.Checker{health.Check("postgres", pg.Healthcheck(pool))}
		return pgstore.New(pool), checks, pool.Close, nil

	case storeRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		store := redisstore.New(client, redisstore.WithScanBatchSize(cfg.Redis.ScanBatchSize))
		checks := []health.Checker{health.Check("redis", redis.Healthcheck(client))}
		return store, checks, func() { _ = client.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown STREAM_TOKEN_STORE %q", cfg.StoreDriver)
	}
}

// cleanupLoop purges expired credentials from database-backed stores.
func cleanupLoop(ctx context.Context, issuer *streamtoken.Issuer, interval time.Duration, log *slog.Logger) func() error {
	return func() error {
		if interval <= 0 {
			return nil
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := issuer.Cleanup(ctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					log.ErrorContext(ctx, "stream credential cleanup failed", logger.Error(err))
					continue
				}
				if n > 0 {
					log.DebugContext(ctx, "expired stream credentials removed", logger.Count("count", int(n)))
				}
			}
		}
	}
}
