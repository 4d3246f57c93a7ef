// Command eventstream serves per-user event streams over SSE and WebSocket.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dmitrymomot/eventstream/core/config"
	"github.com/dmitrymomot/eventstream/core/logger"
	"github.com/dmitrymomot/eventstream/middleware"
)

const serviceName = "eventstream"

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("eventstream stopped", logger.Error(err))
		os.Exit(1)
	}
	log.Info("eventstream stopped")
}

func newLogger(cfg appConfig) *slog.Logger {
	opts := []logger.Option{logger.WithContextExtractors(middleware.RequestIDExtractor)}
	if cfg.Env == "production" {
		opts = append(opts, logger.WithProduction(serviceName))
	} else {
		opts = append(opts, logger.WithDevelopment(serviceName))
	}
	if cfg.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err == nil {
			opts = append(opts, logger.WithLevel(level))
		}
	}
	return logger.New(opts...)
}
