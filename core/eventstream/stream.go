package eventstream

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/logger"
	"github.com/dmitrymomot/eventstream/core/response"
	"github.com/dmitrymomot/eventstream/pkg/broadcast"
)

// Stream authenticates with the stream cookie and relays the user's
// envelopes as Server-Sent Events until the client disconnects or the queue
// is closed by the broker.
func (h *Handler) Stream(ctx handler.Context) handler.Response {
	return func(w http.ResponseWriter, r *http.Request) error {
		rctx := r.Context()

		userID, q, err := h.open(rctx, r)
		if err != nil {
			return err
		}
		defer h.broker.Unsubscribe(userID, q)

		h.clearCookie(w)

		// Streams outlive any server-wide write deadline.
		if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
			h.logger.WarnContext(rctx, "clear write deadline", logger.Error(err))
		}

		sse, err := response.NewSSEWriter(w)
		if err != nil {
			h.logger.ErrorContext(rctx, "event stream setup failed", logger.UserID(userID), logger.Error(err))
			return nil
		}

		h.logger.InfoContext(rctx, "event stream opened", logger.UserID(userID))
		reason := h.relay(rctx, q, sse)
		h.logger.InfoContext(rctx, "event stream closed", logger.UserID(userID), logger.Reason(reason))

		return nil
	}
}

// relay pumps queue items to the client and returns why it stopped.
func (h *Handler) relay(ctx context.Context, q *broadcast.Queue, sse *response.SSEWriter) string {
	if err := sse.Event("", "ready", "{}"); err != nil {
		return "write_failed"
	}

	for {
		item, err := q.Receive(ctx, h.keepAlive)
		if errors.Is(err, broadcast.ErrReceiveTimeout) {
			if err := sse.Comment("keepalive"); err != nil {
				return "write_failed"
			}
			continue
		}
		if err != nil {
			return "client_gone"
		}

		switch item.Kind {
		case broadcast.KindData, broadcast.KindSignal:
			env := item.Envelope
			if err := sse.Event(strconv.FormatUint(env.Sequence, 10), env.Type, env); err != nil {
				if item.Kind == broadcast.KindSignal {
					return item.Reason()
				}
				h.logger.DebugContext(ctx, "event write failed", logger.Sequence(env.Sequence), logger.Error(err))
				return "write_failed"
			}
			if item.Terminal() {
				return item.Reason()
			}
		case broadcast.KindClose:
			return "closed"
		}
	}
}
