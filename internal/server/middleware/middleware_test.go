package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestAuth(t *testing.T) {
	h := Auth("secret", "/api/health")(ok)

	assert.Equal(t, http.StatusUnauthorized, serve(h, httptest.NewRequest(http.MethodGet, "/api/views", nil)).Code)

	r := httptest.NewRequest(http.MethodGet, "/api/views", nil)
	r.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, serve(h, r).Code)

	r = httptest.NewRequest(http.MethodGet, "/api/views", nil)
	r.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, r).Code)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/api/health", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(Auth("")(ok), httptest.NewRequest(http.MethodPost, "/api/orders", nil)).Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(ok)

	r := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	rec := serve(h, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	r.Header.Set("Origin", "http://evil.example")
	rec = serve(h, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type countingLimiter struct{ n int }

func (c *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	c.n++
	return c.n <= 1, nil
}

func TestRateLimitOnlyMutations(t *testing.T) {
	lim := &countingLimiter{}
	h := RateLimit(lim, 1, time.Second)(ok)

	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/api/views", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodPost, "/api/orders", nil)).Code)
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/orders", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, 2, lim.n, "reads are not counted")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(r))
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", clientIP(r))
}

func TestLoggingCapturesStatus(t *testing.T) {
	h := Logging(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	assert.Equal(t, http.StatusTeapot, serve(h, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}
