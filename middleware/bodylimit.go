package middleware

import (
	"fmt"
	"net/http"

	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/response"
)

// DefaultBodyLimit caps request bodies when no size is given.
const DefaultBodyLimit int64 = 64 << 10 // 64KB

// BodyLimit rejects requests whose declared Content-Length exceeds maxSize
// and caps the body reader for requests that lie about it.
func BodyLimit(maxSize int64) handler.Middleware {
	if maxSize <= 0 {
		maxSize = DefaultBodyLimit
	}

	return func(next handler.HandlerFunc) handler.HandlerFunc {
		return func(ctx handler.Context) handler.Response {
			req := ctx.Request()
			if req.ContentLength > maxSize {
				return response.Error(response.ErrRequestEntityTooLarge.WithMessage(
					fmt.Sprintf("request body too large, maximum is %d bytes", maxSize)))
			}
			if req.Body != nil {
				req.Body = http.MaxBytesReader(ctx.ResponseWriter(), req.Body, maxSize)
			}
			return next(ctx)
		}
	}
}
