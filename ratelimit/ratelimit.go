// ratelimit/ratelimit.go
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dalemusser/gestorbff/apperr"
)

// KeyLimiter provides per-key rate limiting (e.g., per client IP).
type KeyLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyLimiter creates a rate limiter that tracks limits per key.
// perMinute is the sustained request rate, burst the bucket size, and ttl
// how long inactive keys are kept before cleanup.
func NewKeyLimiter(perMinute int, burst int, ttl time.Duration) *KeyLimiter {
	if perMinute <= 0 {
		perMinute = 100
	}
	if burst <= 0 {
		burst = perMinute
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	kl := &KeyLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		ttl:      ttl,
	}

	go kl.cleanup()

	return kl
}

// Allow reports whether a request for the given key is admitted. A rejected
// request is not queued or delayed.
func (kl *KeyLimiter) Allow(key string) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	e, ok := kl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(kl.limit, kl.burst)}
		kl.limiters[key] = e
	}
	e.lastSeen = time.Now()

	return e.limiter.Allow()
}

// Size returns the number of tracked keys.
func (kl *KeyLimiter) Size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}

// cleanup removes stale entries periodically.
func (kl *KeyLimiter) cleanup() {
	ticker := time.NewTicker(kl.ttl)
	defer ticker.Stop()

	for range ticker.C {
		kl.mu.Lock()
		now := time.Now()
		for key, e := range kl.limiters {
			if now.Sub(e.lastSeen) > kl.ttl {
				delete(kl.limiters, key)
			}
		}
		kl.mu.Unlock()
	}
}

// KeyFunc extracts a rate-limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc returns the client IP address as the rate-limit key.
// It checks X-Forwarded-For and X-Real-IP before falling back to RemoteAddr.
func IPKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP (original client).
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr (strip port).
	addr := r.RemoteAddr
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

// Config configures the rate-limit middleware.
type Config struct {
	// PerMinute is the sustained request rate per key. Default 100.
	PerMinute int

	// Burst is the maximum burst size. Defaults to PerMinute.
	Burst int

	// KeyFunc extracts the rate-limit key. Defaults to IPKeyFunc.
	KeyFunc KeyFunc

	// TTL is how long inactive keys are kept. Default 1 hour.
	TTL time.Duration

	// Skip returns true to bypass limiting for a request (health checks,
	// metrics scrapes, etc.).
	Skip func(r *http.Request) bool
}

// Middleware returns HTTP middleware that rejects over-limit requests with
// a 429 JSON error envelope.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPKeyFunc
	}

	limiter := NewKeyLimiter(cfg.PerMinute, cfg.Burst, cfg.TTL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(cfg.KeyFunc(r)) {
				w.Header().Set("Retry-After", "1")
				apperr.Write(w, r, apperr.TooManyRequests("Rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
