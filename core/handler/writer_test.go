package handler_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/eventstream/core/handler"
)

func TestResponseWriter(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w := handler.WrapWriter(rec)
	assert.Same(t, w, handler.WrapWriter(w))
	assert.False(t, w.Written())

	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	w.WriteHeader(http.StatusTeapot)
	w.Flush()

	assert.True(t, w.Written())
	assert.Equal(t, http.StatusOK, w.Status())
	assert.Equal(t, int64(5), w.Size())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, w.Unwrap())
}

func TestChain(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) handler.Middleware {
		return func(next handler.HandlerFunc) handler.HandlerFunc {
			return func(ctx handler.Context) handler.Response {
				order = append(order, name)
				return next(ctx)
			}
		}
	}

	h := handler.Chain(func(ctx handler.Context) handler.Response {
		order = append(order, "handler")
		return nil
	}, mw("a"), mw("b"))

	assert.Nil(t, h(nil))
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}
