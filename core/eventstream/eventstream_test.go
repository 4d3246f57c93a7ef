package eventstream_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventstream/core/eventstream"
	"github.com/dmitrymomot/eventstream/core/router"
	"github.com/dmitrymomot/eventstream/core/streamtoken"
	"github.com/dmitrymomot/eventstream/middleware"
	"github.com/dmitrymomot/eventstream/pkg/broadcast"
	"github.com/dmitrymomot/eventstream/pkg/ratelimiter"
)

const sessionSecret = "test-session-secret"

type fixture struct {
	t      *testing.T
	srv    *httptest.Server
	broker *broadcast.Broker
}

func newFixture(t *testing.T, brokerOpts []broadcast.Option, opts ...eventstream.Option) *fixture {
	t.Helper()

	broker := broadcast.New(brokerOpts...)
	issuer := streamtoken.NewIssuer(streamtoken.NewMemoryStore())

	h := eventstream.New(issuer, broker, append([]eventstream.Option{eventstream.WithCookieSecure(false)}, opts...)...)
	r := router.New()
	h.Register(r, middleware.Authenticate(sessionSecret))

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		_ = broker.Close()
		srv.Close()
	})

	return &fixture{t: t, srv: srv, broker: broker}
}

func (f *fixture) session(userID string) string {
	f.t.Helper()
	tok, err := middleware.NewSessionToken(userID, sessionSecret, time.Hour)
	require.NoError(f.t, err)
	return tok
}

// issue requests a stream credential and returns its cookie.
func (f *fixture) issue(userID string) *http.Cookie {
	f.t.Helper()

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/events/token", nil)
	require.NoError(f.t, err)
	req.Header.Set("Authorization", "Bearer "+f.session(userID))

	resp, err := f.srv.Client().Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	require.Equal(f.t, http.StatusOK, resp.StatusCode)

	for _, c := range resp.Cookies() {
		if c.Name == eventstream.DefaultCookieName {
			return c
		}
	}
	f.t.Fatal("stream cookie not set")
	return nil
}

// stream opens an SSE stream. The returned cancel ends the request.
func (f *fixture) stream(c *http.Cookie) (*http.Response, *bufio.Reader, context.CancelFunc) {
	f.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+eventstream.DefaultStreamPath, nil)
	require.NoError(f.t, err)
	if c != nil {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(f.t, err)
	f.t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	return resp, bufio.NewReader(resp.Body), cancel
}

// readFrame returns the lines of the next SSE frame.
func readFrame(t *testing.T, r *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return lines
		}
		lines = append(lines, line)
	}
}

// readEvent skips comment frames and returns the next event frame.
func readEvent(t *testing.T, r *bufio.Reader) map[string]string {
	t.Helper()
	for {
		lines := readFrame(t, r)
		if len(lines) > 0 && strings.HasPrefix(lines[0], ":") {
			continue
		}
		fields := make(map[string]string, len(lines))
		for _, l := range lines {
			k, v, _ := strings.Cut(l, ": ")
			fields[k] = v
		}
		return fields
	}
}

func decodeEnvelope(t *testing.T, data string) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &env))
	return env
}

func TestIssue(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	t.Run("requires session", func(t *testing.T) {
		t.Parallel()

		resp, err := f.srv.Client().Post(f.srv.URL+"/api/events/token", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, resp.Cookies())
	})

	t.Run("sets scoped cookie", func(t *testing.T) {
		t.Parallel()

		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/events/token", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+f.session("u1"))

		resp, err := f.srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

		var body eventstream.IssueResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		exp, err := time.Parse(time.RFC3339, body.ExpiresAt)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(streamtoken.DefaultTTL), exp, 5*time.Second)

		cookies := resp.Cookies()
		require.Len(t, cookies, 1)
		c := cookies[0]
		assert.Equal(t, eventstream.DefaultCookieName, c.Name)
		assert.NotEmpty(t, c.Value)
		assert.Equal(t, eventstream.DefaultStreamPath, c.Path)
		assert.True(t, c.HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
		assert.Equal(t, int(streamtoken.DefaultTTL/time.Second), c.MaxAge)
	})
}

func TestStream(t *testing.T) {
	t.Parallel()

	t.Run("rejects missing cookie", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		resp, _, _ := f.stream(nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
	})

	t.Run("rejects unknown token", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		resp, _, _ := f.stream(&http.Cookie{Name: eventstream.DefaultCookieName, Value: "forged"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("token is single use", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		c := f.issue("u1")

		resp, r, cancel := f.stream(c)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ready", readEvent(t, r)["event"])
		cancel()

		resp, _, _ = f.stream(c)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("relays envelopes", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		resp, r, _ := f.stream(f.issue("u1"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Cache-Control"), "no-cache")

		var cleared bool
		for _, c := range resp.Cookies() {
			if c.Name == eventstream.DefaultCookieName && c.MaxAge < 0 {
				cleared = true
			}
		}
		assert.True(t, cleared, "spent cookie must be cleared")

		ready := readEvent(t, r)
		assert.Equal(t, "ready", ready["event"])
		assert.Equal(t, "{}", ready["data"])

		n := f.broker.Publish(context.Background(), "u1", "orders", "order.created", map[string]any{"id": 7})
		require.Equal(t, 1, n)

		ev := readEvent(t, r)
		assert.Equal(t, "order.created", ev["event"])
		assert.NotEmpty(t, ev["id"])

		env := decodeEnvelope(t, ev["data"])
		assert.Equal(t, "orders", env["channel"])
		assert.Equal(t, "order.created", env["type"])
		assert.Equal(t, ev["id"], jsonNumber(env["id"]))
		assert.Equal(t, map[string]any{"id": float64(7)}, env["data"])
		assert.NotEmpty(t, env["occurred_at"])
	})

	t.Run("sends keepalive when idle", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil, eventstream.WithKeepAlive(30*time.Millisecond))
		resp, r, _ := f.stream(f.issue("u1"))
		require.Equal(t, http.StatusOK, resp.StatusCode)

		assert.Equal(t, "ready", readEvent(t, r)["event"])
		assert.Equal(t, []string{": keepalive"}, readFrame(t, r))
	})

	t.Run("evicted stream receives reason", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, []broadcast.Option{broadcast.WithSubscriberLimit(1)})

		_, first, _ := f.stream(f.issue("u1"))
		assert.Equal(t, "ready", readEvent(t, first)["event"])

		_, second, _ := f.stream(f.issue("u1"))
		assert.Equal(t, "ready", readEvent(t, second)["event"])

		ev := readEvent(t, first)
		assert.Equal(t, broadcast.TypeDisconnected, ev["event"])
		env := decodeEnvelope(t, ev["data"])
		assert.Equal(t, broadcast.ChannelSystem, env["channel"])
		assert.Equal(t, map[string]any{"reason": broadcast.ReasonReplaced}, env["data"])

		_, err := first.ReadString('\n')
		assert.Error(t, err, "evicted stream must end")
		assert.Equal(t, 1, f.broker.Subscribers("u1"))
	})

	t.Run("reject policy returns 429", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, []broadcast.Option{
			broadcast.WithSubscriberLimit(1),
			broadcast.WithAdmissionPolicy(broadcast.RejectNew),
		})

		_, r, _ := f.stream(f.issue("u1"))
		assert.Equal(t, "ready", readEvent(t, r)["event"])

		resp, _, _ := f.stream(f.issue("u1"))
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	})

	t.Run("client disconnect unsubscribes", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		_, r, cancel := f.stream(f.issue("u1"))
		assert.Equal(t, "ready", readEvent(t, r)["event"])
		assert.Equal(t, 1, f.broker.Subscribers("u1"))

		cancel()
		assert.Eventually(t, func() bool { return f.broker.Subscribers("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("broker shutdown ends stream", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		_, r, _ := f.stream(f.issue("u1"))
		assert.Equal(t, "ready", readEvent(t, r)["event"])

		require.NoError(t, f.broker.Close())

		ev := readEvent(t, r)
		env := decodeEnvelope(t, ev["data"])
		assert.Equal(t, map[string]any{"reason": broadcast.ReasonShutdown}, env["data"])

		resp, _, _ := f.stream(f.issue("u1"))
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func jsonNumber(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestWebSocket(t *testing.T) {
	t.Parallel()

	dial := func(t *testing.T, f *fixture, c *http.Cookie) (*websocket.Conn, *http.Response, error) {
		t.Helper()
		url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + eventstream.DefaultStreamPath + "/ws"
		hdr := http.Header{}
		if c != nil {
			hdr.Set("Cookie", c.Name+"="+c.Value)
		}
		conn, resp, err := websocket.DefaultDialer.Dial(url, hdr)
		if conn != nil {
			t.Cleanup(func() { conn.Close() })
		}
		return conn, resp, err
	}

	t.Run("rejects before upgrade", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		_, resp, err := dial(t, f, nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("relays envelopes and closes on eviction", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		conn, resp, err := dial(t, f, f.issue("u1"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

		require.Eventually(t, func() bool { return f.broker.Subscribers("u1") == 1 }, time.Second, 5*time.Millisecond)
		f.broker.Publish(context.Background(), "u1", "chat", "message", map[string]any{"text": "hi"})

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var env map[string]any
		require.NoError(t, conn.ReadJSON(&env))
		assert.Equal(t, "chat", env["channel"])
		assert.Equal(t, "message", env["type"])
		assert.Equal(t, map[string]any{"text": "hi"}, env["data"])

		require.NoError(t, f.broker.Close())

		env = nil
		require.NoError(t, conn.ReadJSON(&env))
		assert.Equal(t, broadcast.TypeDisconnected, env["type"])
		assert.Equal(t, map[string]any{"reason": broadcast.ReasonShutdown}, env["data"])

		_, _, err = conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	})

	t.Run("busy stream outlives the pong deadline", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil, eventstream.WithKeepAlive(50*time.Millisecond))
		conn, _, err := dial(t, f, f.issue("u1"))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return f.broker.Subscribers("u1") == 1 }, time.Second, 5*time.Millisecond)

		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(10 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					f.broker.Publish(context.Background(), "u1", "chat", "message", map[string]any{"text": "tick"})
				}
			}
		}()

		// Events arrive faster than the keepalive for several read deadlines.
		received := 0
		until := time.Now().Add(400 * time.Millisecond)
		for time.Now().Before(until) {
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
			var env map[string]any
			require.NoError(t, conn.ReadJSON(&env), "stream dropped after %d events", received)
			received++
		}

		assert.Greater(t, received, 10)
		assert.Equal(t, 1, f.broker.Subscribers("u1"))
	})

	t.Run("refused requests keep the credential", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		c := f.issue("u1")
		url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + eventstream.DefaultStreamPath + "/ws"

		hdr := http.Header{}
		hdr.Set("Cookie", c.Name+"="+c.Value)
		hdr.Set("Origin", "http://evil.example")
		_, resp, err := websocket.DefaultDialer.Dial(url, hdr)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		req, err := http.NewRequest(http.MethodGet, f.srv.URL+eventstream.DefaultStreamPath+"/ws", nil)
		require.NoError(t, err)
		req.AddCookie(c)
		plain, err := f.srv.Client().Do(req)
		require.NoError(t, err)
		_ = plain.Body.Close()
		assert.Equal(t, http.StatusBadRequest, plain.StatusCode)
		assert.Zero(t, f.broker.Subscribers("u1"))

		conn, _, err := dial(t, f, c)
		require.NoError(t, err, "credential must still be usable")
		require.NotNil(t, conn)
		assert.Eventually(t, func() bool { return f.broker.Subscribers("u1") == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("client close unsubscribes", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		conn, _, err := dial(t, f, f.issue("u1"))
		require.NoError(t, err)
		require.Eventually(t, func() bool { return f.broker.Subscribers("u1") == 1 }, time.Second, 5*time.Millisecond)

		require.NoError(t, conn.Close())
		assert.Eventually(t, func() bool { return f.broker.Subscribers("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
	})
}

func TestPublish(t *testing.T) {
	t.Parallel()

	post := func(t *testing.T, f *fixture, userID, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/events", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if userID != "" {
			req.Header.Set("Authorization", "Bearer "+f.session(userID))
		}
		resp, err := f.srv.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("delivers to own streams", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		_, r, _ := f.stream(f.issue("u1"))
		assert.Equal(t, "ready", readEvent(t, r)["event"])

		resp := post(t, f, "u1", `{"channel":"notes","type":"note.saved","data":{"n":1}}`)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var out eventstream.PublishResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, 1, out.Delivered)

		ev := readEvent(t, r)
		assert.Equal(t, "note.saved", ev["event"])
		assert.Equal(t, map[string]any{"n": float64(1)}, decodeEnvelope(t, ev["data"])["data"])

		resp = post(t, f, "u2", `{"channel":"notes","type":"note.saved"}`)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		out = eventstream.PublishResponse{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Zero(t, out.Delivered)
	})

	t.Run("validates body", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil, eventstream.WithMaxBodyBytes(64))

		assert.Equal(t, http.StatusUnauthorized, post(t, f, "", `{"channel":"a","type":"b"}`).StatusCode)
		assert.Equal(t, http.StatusBadRequest, post(t, f, "u1", `not json`).StatusCode)
		assert.Equal(t, http.StatusBadRequest, post(t, f, "u1", `{"channel":"a"}`).StatusCode)
		assert.Equal(t, http.StatusBadRequest, post(t, f, "u1", `{"channel":"system","type":"b"}`).StatusCode)
		assert.Equal(t, http.StatusRequestEntityTooLarge,
			post(t, f, "u1", `{"channel":"a","type":"b","data":"`+strings.Repeat("x", 128)+`"}`).StatusCode)
	})
}

func TestIssue_RateLimited(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
		Capacity:       1,
		RefillRate:     1,
		RefillInterval: time.Hour,
	})
	require.NoError(t, err)

	f := newFixture(t, nil, eventstream.WithTokenMiddleware(
		middleware.RateLimit(limiter, middleware.ByUserID, nil),
	))
	f.issue("u1")

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/events/token", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.session("u1"))

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Empty(t, resp.Cookies())

	// Another user has its own bucket.
	f.issue("u2")
}
