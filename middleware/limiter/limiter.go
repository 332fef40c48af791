// Package limiter bounds how many model calls a chain lets through.
package limiter

import (
	"sync"

	"github.com/docsage/docsage/middleware"
)

// RateLimiter refuses calls once maxRequests have passed through. Reset
// reopens the gate, e.g. per engine run.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	counter     int
}

// NewRateLimiter creates a rate limiting middleware.
func NewRateLimiter(maxRequests int) *RateLimiter {
	return &RateLimiter{maxRequests: maxRequests}
}

// Name implements middleware.Middleware.
func (m *RateLimiter) Name() string {
	return "RateLimiter"
}

// Execute implements middleware.Middleware.
func (m *RateLimiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	m.mu.Lock()
	if m.counter >= m.maxRequests {
		m.mu.Unlock()
		return middleware.ErrRateLimitExceeded
	}
	m.counter++
	m.mu.Unlock()
	return next(ctx)
}

// Reset reopens the limiter.
func (m *RateLimiter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter = 0
}

// Count returns how many calls have passed through.
func (m *RateLimiter) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter
}
