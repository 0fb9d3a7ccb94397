// Package ratelimit caps the number of requests served to each client IP.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Message is the error returned to clients over their limit.
const Message = "Too many requests from this IP, please try again later."

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter is a token bucket per client IP refilled at n tokens per window, with bursts of n.
type Limiter struct {
	mu       sync.Mutex
	n        int
	window   time.Duration
	visitors map[string]*visitor
	swept    time.Time
	now      func() time.Time
}

// New returns a limiter allowing n requests per window to each IP. n <= 0 disables it.
func New(n int, window time.Duration) *Limiter {
	return &Limiter{n: n, window: window, visitors: make(map[string]*visitor), now: time.Now}
}

// Allow reports whether a request from ip can be served now.
func (l *Limiter) Allow(ip string) bool {
	if l.n <= 0 || l.window <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(rate.Every(l.window/time.Duration(l.n)), l.n)}
		l.visitors[ip] = v
	}

	v.seen = now

	return v.lim.AllowN(now, 1)
}

// sweep forgets visitors idle for a whole window, whose buckets are full again. Called with mu held.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.window {
		return
	}

	for ip, v := range l.visitors {
		if now.Sub(v.seen) >= l.window {
			delete(l.visitors, ip)
		}
	}

	l.swept = now
}

// Middleware rejects requests over the limit with 429 and a JSON error envelope.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if l.Allow(clientIP(r)) {
			next.ServeHTTP(rw, r)

			return
		}

		rw.Header().Set("Content-Type", "application/json")
		rw.Header().Set("Retry-After", strconv.Itoa(int((l.window/time.Duration(l.n)).Seconds())+1))
		rw.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(rw).Encode(map[string]interface{}{"success": false, "error": Message})
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
