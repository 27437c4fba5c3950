// rate_limiter.go - Rate limiting for the registry daemon
package main

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	lastRefill   time.Time
	refillPeriod time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxTokens int, refillRate int, refillPeriod time.Duration) *RateLimiter {
	return &RateLimiter{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		lastRefill:   time.Now(),
		refillPeriod: refillPeriod,
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	timeElapsed := now.Sub(rl.lastRefill)
	refillCount := int(timeElapsed / rl.refillPeriod)

	if refillCount > 0 {
		rl.tokens += refillCount * rl.refillRate
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}

	return false
}

// GetTokens returns the current number of available tokens
func (rl *RateLimiter) GetTokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.tokens
}

// ClientRateLimiter manages rate limiting per client address
type ClientRateLimiter struct {
	limiters     map[string]*RateLimiter
	mu           sync.RWMutex
	maxTokens    int
	refillRate   int
	refillPeriod time.Duration
}

// NewClientRateLimiter creates a new per-client rate limiter
func NewClientRateLimiter(maxTokens int, refillRate int, refillPeriod time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters:     make(map[string]*RateLimiter),
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
	}
}

// Allow checks if a request from a client is allowed
func (crl *ClientRateLimiter) Allow(clientID string) bool {
	crl.mu.Lock()
	limiter, exists := crl.limiters[clientID]
	if !exists {
		limiter = NewRateLimiter(crl.maxTokens, crl.refillRate, crl.refillPeriod)
		crl.limiters[clientID] = limiter
	}
	crl.mu.Unlock()

	return limiter.Allow()
}

// Middleware wraps an HTTP handler with per-client rate limiting keyed on
// the remote host address.
func (crl *ClientRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !crl.Allow(host) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
