// Package eventstream exposes the broker over HTTP.
//
// A client first calls the token endpoint with its session credentials. The
// handler issues a single-use stream credential and returns it only as an
// HttpOnly cookie scoped to the stream path. The client then opens the
// stream (Server-Sent Events or WebSocket); the handler consumes the
// credential, subscribes a queue for the user and relays envelopes until the
// client leaves or the broker evicts the connection.
//
//	streams := eventstream.NewFromConfig(cfg, issuer, broker,
//		eventstream.WithLogger(log),
//	)
//	streams.Register(r, middleware.Authenticate(secret))
//
// Routes:
//
//	POST /api/events/token      session auth, sets the stream cookie
//	GET  /api/events/stream     SSE, cookie auth
//	GET  /api/events/stream/ws  WebSocket, cookie auth
//	POST /api/events            session auth, publishes to the caller
//
// SSE frames:
//
//	event: ready
//	data: {}
//
//	id: 42
//	event: message.created
//	data: {"id":42,"channel":"chat","type":"message.created","occurred_at":"...","data":{...}}
//
//	: keepalive
//
// A disconnect envelope (channel "system", type "disconnected") is the last
// frame of an evicted stream; its data carries the reason.
package eventstream
