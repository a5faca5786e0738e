package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// proxyHeaders are consulted in order before falling back to RemoteAddr.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

// ClientIP returns the function used to key rate limits and request logs.
// Proxy headers are only honoured when trustProxy is set; otherwise any
// client could pick its own key by sending them.
func ClientIP(trustProxy bool) func(*http.Request) string {
	if trustProxy {
		return RealIP
	}
	return RemoteIP
}

// RealIP returns the client address as reported by the first proxy header
// present, or the host part of RemoteAddr. Only the first hop of a
// forwarded chain is used. Use it only behind a proxy that overwrites
// these headers.
func RealIP(r *http.Request) string {
	for _, h := range proxyHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		if first, _, ok := strings.Cut(v, ","); ok {
			v = first
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return RemoteIP(r)
}

// RemoteIP returns the host part of RemoteAddr and ignores request headers.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type window struct {
	hits    int
	resetAt time.Time
}

// RateLimiter allows limit hits per key in each fixed window. State is held
// in memory, so limits reset on restart and are not shared between
// instances.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

// NewRateLimiter allows limit hits per key in each period.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow records a hit for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.hit(key)
	return ok
}

// hit records a hit and, when denied, returns how long until the window resets.
func (rl *RateLimiter) hit(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		rl.windows[key] = &window{hits: 1, resetAt: now.Add(rl.period)}
		return true, 0
	}
	w.hits++
	if w.hits <= rl.limit {
		return true, 0
	}
	return false, w.resetAt.Sub(now)
}

// Cleanup forgets keys whose window has ended.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, key)
		}
	}
}

// RateLimit rejects requests over the limit with 429 and a Retry-After
// header. keyFunc picks the bucket, usually from ClientIP.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.hit(keyFunc(r))
			if !ok {
				secs := int(wait.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				http.Error(w, "Too many login attempts. Please wait and try again.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
