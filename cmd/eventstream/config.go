package main

import (
	"github.com/dmitrymomot/eventstream/core/eventstream"
	"github.com/dmitrymomot/eventstream/core/server"
	"github.com/dmitrymomot/eventstream/core/streamtoken"
	"github.com/dmitrymomot/eventstream/integration/database/pg"
	"github.com/dmitrymomot/eventstream/integration/database/redis"
	"github.com/dmitrymomot/eventstream/pkg/broadcast"
	"github.com/dmitrymomot/eventstream/pkg/ratelimiter"
)

// Credential store drivers.
const (
	storeMemory   = "memory"
	storePostgres = "postgres"
	storeRedis    = "redis"
)

type appConfig struct {
	Env           string `env:"APP_ENV" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:""`
	SessionSecret string `env:"SESSION_SECRET,required"`
	StoreDriver   string `env:"STREAM_TOKEN_STORE" envDefault:"memory"`

	Server    server.Config
	Broker    broadcast.Config
	Tokens    streamtoken.Config
	Events    eventstream.Config
	RateLimit ratelimiter.Config
	Postgres  pg.Config
	Redis     redis.Config
}
