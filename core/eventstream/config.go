package eventstream

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/eventstream/core/cookie"
	"github.com/dmitrymomot/eventstream/core/handler"
)

const (
	DefaultKeepAlive    = 25 * time.Second
	DefaultCookieName   = "stream_token"
	DefaultStreamPath   = "/api/events/stream"
	DefaultMaxBodyBytes = 64 << 10
	wsWriteWait         = 10 * time.Second
)

// Config provides environment-based configuration for the stream endpoints.
type Config struct {
	KeepAlive      time.Duration `env:"EVENTS_KEEPALIVE" envDefault:"25s"`
	CookieName     string        `env:"EVENTS_COOKIE_NAME" envDefault:"stream_token"`
	CookieSecure   bool          `env:"EVENTS_COOKIE_SECURE" envDefault:"true"`
	CookieDomain   string        `env:"EVENTS_COOKIE_DOMAIN" envDefault:""`
	AllowedOrigins []string      `env:"EVENTS_WS_ALLOWED_ORIGINS" envSeparator:","`
	MaxBodyBytes   int64         `env:"EVENTS_MAX_BODY_BYTES" envDefault:"65536"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithKeepAlive sets the idle interval after which a keepalive is sent.
func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// WithCookieName sets the name of the stream credential cookie.
func WithCookieName(name string) Option {
	return func(h *Handler) {
		if name != "" {
			h.cookieName = name
		}
	}
}

// WithCookieSecure toggles the Secure attribute. Disable it only for local
// development over plain HTTP.
func WithCookieSecure(secure bool) Option {
	return func(h *Handler) {
		h.cookieSecure = secure
	}
}

// WithCookieDomain sets the cookie domain.
func WithCookieDomain(domain string) Option {
	return func(h *Handler) {
		h.cookieDomain = domain
	}
}

// WithAllowedOrigins restricts WebSocket upgrades to the given origins.
// Without it gorilla/websocket accepts only same-origin requests.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) {
		h.allowedOrigins = append(h.allowedOrigins, origins...)
	}
}

// WithMaxBodyBytes limits the size of publish requests.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger for connection lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSameSite overrides the SameSite attribute of the stream cookie.
func WithSameSite(mode http.SameSite) Option {
	return func(h *Handler) {
		h.sameSite = mode
	}
}

// WithTokenMiddleware adds middlewares that run on the token endpoint after
// session authentication, such as rate limiting.
func WithTokenMiddleware(mws ...handler.Middleware) Option {
	return func(h *Handler) {
		h.tokenMW = append(h.tokenMW, mws...)
	}
}

// NewFromConfig creates a Handler from configuration.
// Additional options override config values.
func NewFromConfig(cfg Config, issuer Issuer, broker Broker, opts ...Option) *Handler {
	configOpts := []Option{
		WithKeepAlive(cfg.KeepAlive),
		WithCookieName(cfg.CookieName),
		WithCookieSecure(cfg.CookieSecure),
		WithCookieDomain(cfg.CookieDomain),
		WithAllowedOrigins(cfg.AllowedOrigins...),
		WithMaxBodyBytes(cfg.MaxBodyBytes),
	}
	return New(issuer, broker, append(configOpts, opts...)...)
}

func (h *Handler) cookieManager() *cookie.Manager {
	return cookie.New(
		cookie.WithPath(DefaultStreamPath),
		cookie.WithDomain(h.cookieDomain),
		cookie.WithSecure(h.cookieSecure),
		cookie.WithHTTPOnly(true),
		cookie.WithSameSite(h.sameSite),
	)
}
