package response_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventstream/core/response"
)

func TestJSONWithStatus(t *testing.T) {
	t.Parallel()

	t.Run("encodes body", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		err := response.JSONWithStatus(map[string]string{"ok": "yes"}, http.StatusCreated)(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"ok":"yes"}`, w.Body.String())
	})

	t.Run("nil with zero status is no content", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		require.NoError(t, response.JSONWithStatus(nil, 0)(w, httptest.NewRequest(http.MethodGet, "/", nil)))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestString(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	require.NoError(t, response.String("pong")(w, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestWriteError(t *testing.T) {
	t.Parallel()

	t.Run("http error keeps status and code", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		response.WriteError(w, response.ErrTooManyRequests.WithMessage("too many streams"))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.JSONEq(t, `{"code":"too_many_requests","error":"too many streams"}`, w.Body.String())
	})

	t.Run("wrapped http error", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		response.WriteError(w, errors.Join(errors.New("ctx"), response.ErrUnauthorized))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("plain error hides details", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		response.WriteError(w, errors.New("db password is hunter2"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "hunter2")
	})
}

func TestSSEWriter(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	sse, err := response.NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.Event("7", "message.created", map[string]int{"n": 1}))
	require.NoError(t, sse.Event("", "ready", "{}"))
	require.NoError(t, sse.Event("", "", "a\nb"))
	require.NoError(t, sse.Comment("keepalive"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store, no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))
	assert.True(t, w.Flushed)

	want := "id: 7\nevent: message.created\ndata: {\"n\":1}\n\n" +
		"event: ready\ndata: {}\n\n" +
		"data: a\ndata: b\n\n" +
		": keepalive\n\n"
	assert.Equal(t, want, w.Body.String())
}

func TestSSEWriter_EncodeError(t *testing.T) {
	t.Parallel()

	sse, err := response.NewSSEWriter(httptest.NewRecorder())
	require.NoError(t, err)
	assert.Error(t, sse.Event("1", "bad", func() {}))
}
