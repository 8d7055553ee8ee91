// Package ratelimit throttles requests per client IP with a token bucket.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const sweepThreshold = 1024

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per client IP. Idle buckets are evicted
// lazily once the table grows past sweepThreshold.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	message  string
	now      func() time.Time
}

// PerHour allows n requests per IP per hour, all of which may be spent at once.
func PerHour(n int, message string) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Hour / time.Duration(n)),
		burst:    n,
		idle:     time.Hour,
		message:  message,
		now:      time.Now,
	}
}

// Allow consumes one token for key and reports whether it was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.visitors) >= sweepThreshold {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.visitors, k)
			}
		}
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "3600")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": l.message, "kind": "rate_limited"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
