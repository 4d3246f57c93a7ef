package eventstream

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/logger"
	"github.com/dmitrymomot/eventstream/pkg/broadcast"
)

// WebSocket is the WebSocket variant of Stream. Authentication and admission
// happen before the upgrade, so failures are plain HTTP errors. Each
// envelope is sent as one JSON text message; idle periods are covered by
// pings, and an eviction ends with the disconnect envelope followed by a
// normal close frame. Non-upgrade requests and foreign origins are refused
// before the credential is spent, so they never evict a live stream.
func (h *Handler) WebSocket(ctx handler.Context) handler.Response {
	return func(w http.ResponseWriter, r *http.Request) error {
		rctx := r.Context()

		if !websocket.IsWebSocketUpgrade(r) {
			return ErrUpgradeRequired
		}
		if !h.checkOrigin(r) {
			return ErrOriginNotAllowed
		}

		userID, q, err := h.open(rctx, r)
		if err != nil {
			return err
		}
		defer h.broker.Unsubscribe(userID, q)

		// The cookie is cleared in the upgrade response.
		hdr := http.Header{}
		h.clearCookie(headerWriter(hdr))

		conn, err := h.upgrader.Upgrade(w, r, hdr)
		if err != nil {
			// Upgrade has already answered the client.
			h.logger.WarnContext(rctx, "websocket upgrade failed", logger.UserID(userID), logger.Error(err))
			return nil
		}
		defer conn.Close()

		connCtx, cancel := context.WithCancel(rctx)
		defer cancel()
		go h.drainReads(conn, cancel)

		h.logger.InfoContext(rctx, "websocket stream opened", logger.UserID(userID))
		reason := h.relayWS(connCtx, conn, q)
		h.logger.InfoContext(rctx, "websocket stream closed", logger.UserID(userID), logger.Reason(reason))

		return nil
	}
}

// drainReads consumes client frames so control frames are processed, and
// cancels the stream when the client goes away.
func (h *Handler) drainReads(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.keepAlive))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.keepAlive))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// relayWS pings every keepAlive whether or not events flow, so a busy
// client keeps answering pongs and its read deadline keeps moving.
func (h *Handler) relayWS(ctx context.Context, conn *websocket.Conn, q *broadcast.Queue) string {
	nextPing := time.Now().Add(h.keepAlive)
	for {
		if wait := time.Until(nextPing); wait > 0 {
			item, err := q.Receive(ctx, wait)
			if err == nil {
				if reason, done := h.writeItem(conn, item); done {
					return reason
				}
				continue
			}
			if !errors.Is(err, broadcast.ErrReceiveTimeout) {
				return "client_gone"
			}
		}

		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
			return "write_failed"
		}
		nextPing = time.Now().Add(h.keepAlive)
	}
}

// writeItem sends one queue item and reports whether the stream is over.
func (h *Handler) writeItem(conn *websocket.Conn, item broadcast.Item) (string, bool) {
	switch item.Kind {
	case broadcast.KindData, broadcast.KindSignal:
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(item.Envelope); err != nil {
			return "write_failed", true
		}
		if item.Terminal() {
			closeNormally(conn, item.Reason())
			return item.Reason(), true
		}
	case broadcast.KindClose:
		closeNormally(conn, "closed")
		return "closed", true
	}
	return "", false
}

func closeNormally(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}

// headerWriter lets cookie.Manager write Set-Cookie into a plain header map.
type headerWriter http.Header

func (hw headerWriter) Header() http.Header         { return http.Header(hw) }
func (hw headerWriter) Write(b []byte) (int, error) { return len(b), nil }
func (hw headerWriter) WriteHeader(int)             {}
