package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/c-pro/geche"
	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per client IP with a token bucket. Idle
// buckets expire from the cache after the window passes.
type RateLimiter struct {
	limiters geche.Geche[string, *rate.Limiter]
	every    rate.Limit
	burst    int
	mu       sync.Mutex
}

// NewRateLimiter allows burst requests per window for every client IP.
func NewRateLimiter(ctx context.Context, burst int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: geche.NewMapTTLCache[string, *rate.Limiter](ctx, window, time.Minute),
		every:    rate.Every(window / time.Duration(burst)),
		burst:    burst,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, err := rl.limiters.Get(key)
	if err != nil {
		limiter = rate.NewLimiter(rl.every, rl.burst)
	}
	// Set refreshes the TTL.
	rl.limiters.Set(key, limiter)
	return limiter.Allow()
}

func (rl *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
