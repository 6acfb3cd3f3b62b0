package ratelimiter

import (
	"sync"
	"time"
)

// LeakyBucket queues requests into a bucket that drains at a steady rate and
// rejects when the bucket is full. Unlike TokenBucket it smooths bursts out
// instead of passing them through.
type LeakyBucket struct {
	mu       sync.Mutex
	rate     float64 // drain rate, requests per second
	capacity float64
	level    float64
	last     time.Time
	now      clock
}

// NewLeakyBucket creates a leaky-bucket limiter; the bucket starts empty.
func NewLeakyBucket(rate float64, capacity int) *LeakyBucket {
	lb := &LeakyBucket{rate: rate, capacity: float64(capacity), now: time.Now}
	lb.last = lb.now()
	return lb
}

func (lb *LeakyBucket) Allow() bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	t := lb.now()
	if elapsed := t.Sub(lb.last); elapsed > 0 {
		lb.level -= elapsed.Seconds() * lb.rate
		if lb.level < 0 {
			lb.level = 0
		}
		lb.last = t
	}
	if lb.level >= lb.capacity {
		return false
	}
	lb.level++
	return true
}
