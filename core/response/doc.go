// Package response provides handler.Response constructors for the HTTP
// endpoints: plain text, JSON, structured HTTP errors and Server-Sent Events
// framing.
//
// Responses are plain functions, so handlers return them and the router
// renders them:
//
//	func listChannels(ctx handler.Context) handler.Response {
//		return response.JSON(map[string]any{"channels": channels})
//	}
//
// Errors are returned through Error and rendered by the router's error
// handler. HTTPError values carry their own status code:
//
//	return response.Error(response.ErrUnauthorized.WithMessage("invalid stream token"))
//
// SSEWriter writes event-stream frames and flushes after each one:
//
//	sse, err := response.NewSSEWriter(w)
//	if err != nil {
//		return err
//	}
//	_ = sse.Event("42", "message.created", payload)
//	_ = sse.Comment("keepalive")
package response
