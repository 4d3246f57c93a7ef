package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/response"
	"github.com/dmitrymomot/eventstream/pkg/token"
)

type userIDContextKey struct{}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrTokenExpired = errors.New("session token expired")
	ErrNoSubject    = errors.New("session token has no subject")
)

// SessionClaims is the payload of a session bearer token.
type SessionClaims struct {
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
}

// NewSessionToken signs a session token for userID valid for ttl.
func NewSessionToken(userID, secret string, ttl time.Duration) (string, error) {
	return token.GenerateToken(SessionClaims{
		Subject:   userID,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}, secret)
}

// AuthConfig configures the session authentication middleware.
type AuthConfig struct {
	// Secret verifies token signatures
	Secret string
	// TokenExtractor returns the raw token (default: Authorization: Bearer header)
	TokenExtractor func(ctx handler.Context) string
	// Now is the clock used for expiry checks (default: time.Now)
	Now func() time.Time
}

// Authenticate resolves the user identity from a bearer session token and
// stores it for GetUserID. Requests without a valid token get 401.
func Authenticate(secret string) handler.Middleware {
	return AuthenticateWithConfig(AuthConfig{Secret: secret})
}

// AuthenticateWithConfig creates the session middleware with custom configuration.
func AuthenticateWithConfig(cfg AuthConfig) handler.Middleware {
	if cfg.TokenExtractor == nil {
		cfg.TokenExtractor = bearerToken
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx handler.Context) handler.Response {
			userID, err := verifySession(cfg, cfg.TokenExtractor(ctx))
			if err != nil {
				return response.Error(response.ErrUnauthorized)
			}

			ctx.SetValue(userIDContextKey{}, userID)
			return next(ctx)
		}
	}
}

func verifySession(cfg AuthConfig, raw string) (string, error) {
	if raw == "" {
		return "", ErrMissingToken
	}
	claims, err := token.ParseToken[SessionClaims](raw, cfg.Secret)
	if err != nil {
		return "", err
	}
	if claims.ExpiresAt > 0 && cfg.Now().Unix() >= claims.ExpiresAt {
		return "", ErrTokenExpired
	}
	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return "", ErrNoSubject
	}
	return userID, nil
}

func bearerToken(ctx handler.Context) string {
	scheme, tok, ok := strings.Cut(ctx.Request().Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// GetUserID returns the authenticated user stored by Authenticate.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey{}).(string)
	return id, ok && id != ""
}
