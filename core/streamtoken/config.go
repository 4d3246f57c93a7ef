package streamtoken

import (
	"io"
	"log/slog"
	"time"
)

// DefaultTTL is how long an issued credential stays usable.
const DefaultTTL = 5 * time.Minute

// Config provides environment-based configuration for the issuer.
type Config struct {
	TTL             time.Duration `env:"STREAM_TOKEN_TTL" envDefault:"5m"`
	CleanupInterval time.Duration `env:"STREAM_TOKEN_CLEANUP_INTERVAL" envDefault:"10m"`
}

// NewFromConfig creates an Issuer from configuration.
// Additional options override config values.
func NewFromConfig(cfg Config, store Store, opts ...Option) *Issuer {
	configOpts := make([]Option, 0, len(opts)+1)
	if cfg.TTL > 0 {
		configOpts = append(configOpts, WithTTL(cfg.TTL))
	}
	configOpts = append(configOpts, opts...)
	return NewIssuer(store, configOpts...)
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithTTL sets the lifetime of issued credentials.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithPurpose sets the purpose tag for issued and consumed credentials.
func WithPurpose(p Purpose) Option {
	return func(i *Issuer) {
		if p != "" {
			i.purpose = p
		}
	}
}

// WithClock overrides the issuer's time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// WithRandom overrides the random source used for token values.
func WithRandom(r io.Reader) Option {
	return func(i *Issuer) {
		if r != nil {
			i.random = r
		}
	}
}

// WithLogger sets the logger for issuer operations.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}
