package eventstream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/eventstream/core/cookie"
	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/logger"
	"github.com/dmitrymomot/eventstream/core/router"
	"github.com/dmitrymomot/eventstream/core/streamtoken"
	"github.com/dmitrymomot/eventstream/middleware"
	"github.com/dmitrymomot/eventstream/pkg/broadcast"
)

// Issuer mints and spends stream credentials. Satisfied by *streamtoken.Issuer.
type Issuer interface {
	Issue(ctx context.Context, userID string) (streamtoken.Credential, error)
	Consume(ctx context.Context, token string) (string, error)
	TTL() time.Duration
}

// Broker is the subset of *broadcast.Broker the endpoints use.
type Broker interface {
	Subscribe(userID string) (*broadcast.Queue, error)
	Unsubscribe(userID string, q *broadcast.Queue)
	Publish(ctx context.Context, userID, channel, eventType string, data any) int
}

// Handler serves the stream credential and streaming endpoints.
type Handler struct {
	issuer Issuer
	broker Broker

	keepAlive      time.Duration
	cookieName     string
	cookieSecure   bool
	cookieDomain   string
	sameSite       http.SameSite
	allowedOrigins []string
	maxBodyBytes   int64
	logger         *slog.Logger
	tokenMW        []handler.Middleware

	cookies  *cookie.Manager
	upgrader websocket.Upgrader
}

// New creates a Handler with secure cookie defaults.
func New(issuer Issuer, broker Broker, opts ...Option) *Handler {
	h := &Handler{
		issuer:       issuer,
		broker:       broker,
		keepAlive:    DefaultKeepAlive,
		cookieName:   DefaultCookieName,
		cookieSecure: true,
		sameSite:     http.SameSiteLaxMode,
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       logger.Discard(),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.cookies = h.cookieManager()
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// Register mounts the endpoints on r. session authenticates the token and
// publish endpoints; the stream endpoints authenticate with the cookie.
func (h *Handler) Register(r *router.Router, session ...handler.Middleware) {
	authed := r.With(session...)
	authed.With(h.tokenMW...).Post("/api/events/token", h.Issue)
	authed.With(middleware.BodyLimit(h.maxBodyBytes)).Post("/api/events", h.Publish)

	r.Get(DefaultStreamPath, h.Stream)
	r.Get(DefaultStreamPath+"/ws", h.WebSocket)
}

// open authenticates the request with its stream cookie and subscribes a
// queue for the owner. The caller must Unsubscribe the returned queue.
func (h *Handler) open(ctx context.Context, r *http.Request) (string, *broadcast.Queue, error) {
	raw, err := h.cookies.Get(r, h.cookieName)
	if err != nil {
		return "", nil, ErrInvalidStreamToken
	}

	userID, err := h.issuer.Consume(ctx, raw)
	if err != nil {
		if !streamtoken.IsAuthError(err) {
			h.logger.ErrorContext(ctx, "stream credential lookup failed", logger.Error(err))
		}
		return "", nil, ErrInvalidStreamToken
	}

	q, err := h.broker.Subscribe(userID)
	switch {
	case err == nil:
		return userID, q, nil
	case errors.Is(err, broadcast.ErrCapacityExceeded):
		h.logger.WarnContext(ctx, "stream rejected, subscriber limit reached", logger.UserID(userID))
		return "", nil, ErrTooManyStreams
	case errors.Is(err, broadcast.ErrInvalidSubscriber):
		return "", nil, ErrInvalidSubscriber
	case errors.Is(err, broadcast.ErrBrokerClosed):
		return "", nil, ErrStreamsClosed
	default:
		return "", nil, err
	}
}

// checkOrigin accepts the configured origins, or same-host origins when
// none are configured. Requests without an Origin header are not from a
// browser and pass.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(h.allowedOrigins) > 0 {
		return slices.Contains(h.allowedOrigins, origin)
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// clearCookie expires the spent credential cookie.
func (h *Handler) clearCookie(w http.ResponseWriter) {
	h.cookies.Delete(w, h.cookieName)
}
