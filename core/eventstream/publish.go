package eventstream

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrymomot/eventstream/core/handler"
	"github.com/dmitrymomot/eventstream/core/logger"
	"github.com/dmitrymomot/eventstream/core/response"
	"github.com/dmitrymomot/eventstream/middleware"
	"github.com/dmitrymomot/eventstream/pkg/broadcast"
)

// PublishRequest is the body of a publish call.
type PublishRequest struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PublishResponse reports how many of the caller's streams took the event.
type PublishResponse struct {
	Delivered int `json:"delivered"`
}

// Publish sends an event to every open stream of the session user.
// The system channel is reserved for broker notices.
func (h *Handler) Publish(ctx handler.Context) handler.Response {
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		return response.Error(ErrNoSession)
	}

	var req PublishRequest
	if err := json.NewDecoder(ctx.Request().Body).Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return response.Error(response.ErrRequestEntityTooLarge)
		}
		return response.Error(ErrInvalidEvent.WithMessage("malformed event body"))
	}

	req.Channel = strings.TrimSpace(req.Channel)
	req.Type = strings.TrimSpace(req.Type)
	switch {
	case req.Channel == "" || req.Type == "":
		return response.Error(ErrInvalidEvent.WithMessage("channel and type are required"))
	case req.Channel == broadcast.ChannelSystem:
		return response.Error(ErrInvalidEvent.WithMessage("channel is reserved"))
	}

	var data any
	if len(req.Data) > 0 {
		data = req.Data
	}

	n := h.broker.Publish(ctx, userID, req.Channel, req.Type, data)
	h.logger.DebugContext(ctx, "event published",
		logger.UserID(userID),
		logger.Channel(req.Channel),
		logger.Count("delivered", n),
	)

	return response.JSONWithStatus(PublishResponse{Delivered: n}, http.StatusAccepted)
}
