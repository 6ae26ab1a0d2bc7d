package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newLimiter(rate int, whitelist ...string) (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(rate, time.Minute, whitelist, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2024, 9, 3, 7, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowWindow(t *testing.T) {
	rl, now := newLimiter(2)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	*now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestWhitelistBypasses(t *testing.T) {
	rl, _ := newLimiter(1, " 127.0.0.1 ")
	for range 5 {
		assert.True(t, rl.Allow("127.0.0.1"))
	}
}

func TestEvictIdle(t *testing.T) {
	rl, now := newLimiter(1)
	rl.Allow("10.0.0.1")
	*now = now.Add(3 * time.Minute)
	rl.Allow("10.0.0.2")

	rl.evictIdle()

	assert.NotContains(t, rl.clients, "10.0.0.1")
	assert.Contains(t, rl.clients, "10.0.0.2")
}

func TestMiddleware(t *testing.T) {
	rl, _ := newLimiter(1)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do().Code)
	rec := do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7:443")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
