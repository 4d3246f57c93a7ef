package eventstream

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrymomot/eventstream/core/cookie"
	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/logger"
	"github.com/dmitrymomot/eventstream/core/response"
	"github.com/dmitrymomot/eventstream/core/streamtoken"
	"github.com/dmitrymomot/eventstream/middleware"
)

// IssueResponse is the body of a successful token request. The token itself
// travels only in the cookie.
type IssueResponse struct {
	ExpiresAt string `json:"expires_at"`
}

// Issue mints a stream credential for the session user and sets it as an
// HttpOnly cookie scoped to the stream path.
func (h *Handler) Issue(ctx handler.Context) handler.Response {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return response.Error(ErrNoSession)
	}

	cred, err := h.issuer.Issue(ctx, userID)
	if err != nil {
		if errors.Is(err, streamtoken.ErrInvalidUser) {
			return response.Error(ErrNoSession)
		}
		h.logger.ErrorContext(ctx, "stream credential issue failed", logger.UserID(userID), logger.Error(err))
		return response.Error(ErrIssueFailed)
	}

	maxAge := int(h.issuer.TTL() / time.Second)
	if err := h.cookies.Set(ctx.ResponseWriter(), h.cookieName, cred.Token, cookie.WithMaxAge(maxAge)); err != nil {
		h.logger.ErrorContext(ctx, "stream cookie rejected", logger.Error(err))
		return response.Error(ErrIssueFailed)
	}

	h.logger.DebugContext(ctx, "stream credential issued", logger.UserID(userID))

	return func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set("Cache-Control", "no-store")
		return response.JSON(IssueResponse{
			ExpiresAt: cred.ExpiresAt.UTC().Format(time.RFC3339),
		})(w, r)
	}
}
