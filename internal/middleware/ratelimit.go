package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter hands each client IP a fixed number of requests per window.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*bucket
	rate      int
	window    time.Duration
	whitelist map[string]struct{}
	now       func() time.Time
	logger    *slog.Logger
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

// NewRateLimiter allows rate requests per window. IPs in whitelist bypass
// the limiter.
func NewRateLimiter(rate int, window time.Duration, whitelist []string, logger *slog.Logger) *RateLimiter {
	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			wl[ip] = struct{}{}
		}
	}

	return &RateLimiter{
		clients:   make(map[string]*bucket),
		rate:      rate,
		window:    window,
		whitelist: wl,
		now:       time.Now,
		logger:    logger.With("component", "rate_limiter"),
	}
}

// Run evicts idle clients until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, b := range rl.clients {
		if now.Sub(b.lastReset) > rl.window*2 {
			delete(rl.clients, ip)
		}
	}
}

// Allow reports whether a request from ip fits in its current window.
func (rl *RateLimiter) Allow(ip string) bool {
	if _, ok := rl.whitelist[ip]; ok {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.clients[ip]
	if !ok || now.Sub(b.lastReset) > rl.window {
		rl.clients[ip] = &bucket{tokens: rl.rate - 1, lastReset: now}
		return true
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(rl.window.Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", retryAfter)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For: "client, proxy1, proxy2"
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
