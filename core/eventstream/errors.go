package eventstream

import "github.com/dmitrymomot/eventstream/core/response"

// HTTP errors returned by the endpoints. Every credential failure shares one
// message so clients cannot tell an unknown token from a spent one.
var (
	ErrInvalidStreamToken = response.ErrUnauthorized.WithMessage("invalid or expired stream token")
	ErrNoSession          = response.ErrUnauthorized.WithMessage("authentication required")
	ErrTooManyStreams     = response.ErrTooManyRequests.WithMessage("too many open streams")
	ErrInvalidSubscriber  = response.ErrBadRequest.WithMessage("invalid subscriber")
	ErrStreamsClosed      = response.ErrServiceUnavailable.WithMessage("event streams are shutting down")
	ErrIssueFailed        = response.ErrInternalServerError.WithMessage("could not issue stream token")
	ErrInvalidEvent       = response.ErrBadRequest.WithMessage("invalid event")
	ErrUpgradeRequired    = response.ErrBadRequest.WithMessage("websocket upgrade required")
	ErrOriginNotAllowed   = response.ErrForbidden.WithMessage("origin not allowed")
)
