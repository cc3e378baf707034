// Per-IP rate limiting for endpoints that mutate the world on behalf of
// players. Token buckets come from golang.org/x/time/rate.
package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per IP with the given burst.
// Buckets idle for longer than idle are forgotten on cleanup.
func NewRateLimiter(perSecond float64, burst int, idle time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		now:      time.Now,
	}
}

// Allow reports whether ip may make a request now, consuming a token.
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.get(ip).AllowN(rl.now(), 1)
}

// RetryAfter returns how many whole seconds until ip regains a token.
func (rl *RateLimiter) RetryAfter(ip string) int {
	lim := rl.get(ip)
	r := lim.ReserveN(rl.now(), 1)
	if !r.OK() {
		return 1
	}
	d := r.DelayFrom(rl.now())
	r.CancelAt(rl.now())
	return int(math.Ceil(d.Seconds()))
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.limiters[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[ip] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Cleanup forgets idle buckets and returns how many were removed.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	now := rl.now()
	for ip, v := range rl.limiters {
		if now.Sub(v.lastSeen) > rl.idle {
			delete(rl.limiters, ip)
			removed++
		}
	}
	return removed
}

// clientIP returns the first X-Forwarded-For entry, or the remote address
// without its port.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimitMiddleware wraps a handler with rate limiting. Returns 429 if exceeded.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			retry := rl.RetryAfter(ip)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
