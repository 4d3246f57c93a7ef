// Package config loads env-tagged structs with caarlos0/env.
//
// The first Load reads a .env file from the working directory when present
// (joho/godotenv). Results are cached per struct type, so components that
// load the same Config type share one parse; a failed parse is not cached.
//
//	type appConfig struct {
//		SessionSecret string `env:"SESSION_SECRET,required"`
//		Broker        broadcast.Config
//		Server        server.Config
//	}
//
//	var cfg appConfig
//	config.MustLoad(&cfg)
//
// Nested structs are parsed in place, which lets each package own its own
// Config with env tags and defaults.
package config
