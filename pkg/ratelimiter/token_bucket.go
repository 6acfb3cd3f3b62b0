package ratelimiter

import (
	"sync"
	"time"
)

// TokenBucket refills tokens at a steady rate up to capacity and spends one
// per request. It tolerates bursts up to the bucket size while holding the
// long-run rate.
type TokenBucket struct {
	mu       sync.Mutex
	rate     float64 // tokens per second
	capacity float64
	tokens   float64
	last     time.Time
	now      clock
}

// NewTokenBucket creates a token-bucket limiter; the bucket starts full.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	tb := &TokenBucket{rate: rate, capacity: float64(capacity), tokens: float64(capacity), now: time.Now}
	tb.last = tb.now()
	return tb
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	t := tb.now()
	if elapsed := t.Sub(tb.last); elapsed > 0 {
		tb.tokens += elapsed.Seconds() * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.last = t
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}
