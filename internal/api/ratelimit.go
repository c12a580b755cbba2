package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Buckets of requesters idle this long are dropped; a returning requester starts full.
const limiterIdleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per requester.
type RateLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	rps      rate.Limit
	burst    int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: cache.New(limiterIdleTTL, time.Minute),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *RateLimiter) Allow(id uuid.UUID) bool {
	key := id.String()

	l.mu.Lock()
	var limiter *rate.Limiter
	if v, ok := l.limiters.Get(key); ok {
		limiter = v.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.rps, l.burst)
	}
	// Set refreshes the idle deadline on every request.
	l.limiters.SetDefault(key, limiter)
	l.mu.Unlock()

	return limiter.Allow()
}

// Middleware must run after the authenticator.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requester, ok := RequesterFrom(r.Context())
		if ok && !l.Allow(requester.ID) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many booking requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
