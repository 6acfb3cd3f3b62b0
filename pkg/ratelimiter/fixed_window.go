package ratelimiter

import (
	"sync"
	"time"
)

// FixedWindow admits up to limit requests per window, resetting the count
// when the window rolls over. Cheap, but a burst straddling the boundary can
// see up to 2x the limit.
type FixedWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	count   int
	resetAt time.Time
	now     clock
}

// NewFixedWindow creates a fixed-window limiter.
func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	fw := &FixedWindow{limit: limit, window: window, now: time.Now}
	fw.resetAt = fw.now().Add(window)
	return fw
}

func (fw *FixedWindow) Allow() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if t := fw.now(); !t.Before(fw.resetAt) {
		fw.count = 0
		fw.resetAt = t.Add(fw.window)
	}
	if fw.count >= fw.limit {
		return false
	}
	fw.count++
	return true
}
