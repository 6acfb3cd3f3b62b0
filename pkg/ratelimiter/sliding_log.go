package ratelimiter

import (
	"sync"
	"time"
)

// SlidingLog admits a request when fewer than limit admitted timestamps fall
// inside the trailing window. Exact at the boundary, at the cost of one
// stored timestamp per admitted request.
type SlidingLog struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	log    []time.Time
	now    clock
}

// NewSlidingLog creates a sliding-window-log limiter.
func NewSlidingLog(limit int, window time.Duration) *SlidingLog {
	return &SlidingLog{limit: limit, window: window, now: time.Now}
}

func (sl *SlidingLog) Allow() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	boundary := sl.now().Add(-sl.window)
	// Timestamps are appended in order; drop the expired prefix.
	i := 0
	for i < len(sl.log) && sl.log[i].Before(boundary) {
		i++
	}
	if i > 0 {
		sl.log = append(sl.log[:0], sl.log[i:]...)
	}

	if len(sl.log) >= sl.limit {
		return false
	}
	sl.log = append(sl.log, sl.now())
	return true
}
