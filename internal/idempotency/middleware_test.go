package idempotency_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"searchsync/internal/idempotency"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counting(status int, calls *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte{'{', '"', 'n', '"', ':', byte('0' + n), '}'})
	})
}

func send(h http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set(idempotency.Header, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ReplaysRecordedResponse(t *testing.T) {
	var calls atomic.Int32
	h := idempotency.Middleware(idempotency.NewInMemoryStore())(counting(http.StatusAccepted, &calls))

	first := send(h, "/indices/site/export", "abc")
	second := send(h, "/indices/site/export", "abc")

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusAccepted, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Hit"))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestMiddleware_KeysAreScopedToTheRoute(t *testing.T) {
	var calls atomic.Int32
	h := idempotency.Middleware(idempotency.NewInMemoryStore())(counting(http.StatusAccepted, &calls))

	send(h, "/indices/site/export", "abc")
	send(h, "/indices/docs/export", "abc")

	assert.Equal(t, int32(2), calls.Load())
}

func TestMiddleware_WithoutKeyAlwaysRuns(t *testing.T) {
	var calls atomic.Int32
	h := idempotency.Middleware(idempotency.NewInMemoryStore())(counting(http.StatusAccepted, &calls))

	send(h, "/indices/site/export", "")
	send(h, "/indices/site/export", "")

	assert.Equal(t, int32(2), calls.Load())
}

func TestMiddleware_ServerErrorsReleaseTheKey(t *testing.T) {
	var calls atomic.Int32
	h := idempotency.Middleware(idempotency.NewInMemoryStore())(counting(http.StatusBadGateway, &calls))

	send(h, "/indices/site", "abc")
	rec := send(h, "/indices/site", "abc")

	assert.Equal(t, int32(2), calls.Load())
	assert.Empty(t, rec.Header().Get("X-Idempotency-Hit"))
}

func TestMiddleware_InFlightRequestConflicts(t *testing.T) {
	store := idempotency.NewInMemoryStore()
	locked, err := store.Lock(t.Context(), "POST /indices/site abc")
	require.NoError(t, err)
	require.True(t, locked)

	var calls atomic.Int32
	rec := send(idempotency.Middleware(store)(counting(http.StatusAccepted, &calls)), "/indices/site", "abc")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Zero(t, calls.Load())
}
