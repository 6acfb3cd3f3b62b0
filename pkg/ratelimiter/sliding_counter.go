package ratelimiter

import (
	"sync"
	"time"
)

// defaultBuckets is used when a caller passes a non-positive bucket count.
const defaultBuckets = 10

// SlidingCounter divides the window into buckets and counts admissions per
// bucket, summing the live buckets on each check. It approximates SlidingLog
// with fixed memory: boundary error is at most one bucket's width.
type SlidingCounter struct {
	mu      sync.Mutex
	limit   int
	buckets []int
	width   time.Duration // duration of one bucket
	head    int           // index of the current bucket
	updated time.Time
	now     clock
}

// NewSlidingCounter creates a sliding-window-counter limiter splitting
// window into numBuckets buckets.
func NewSlidingCounter(limit int, window time.Duration, numBuckets int) *SlidingCounter {
	if numBuckets <= 0 {
		numBuckets = defaultBuckets
	}
	sc := &SlidingCounter{
		limit:   limit,
		buckets: make([]int, numBuckets),
		width:   window / time.Duration(numBuckets),
		now:     time.Now,
	}
	sc.updated = sc.now()
	return sc
}

// advance rotates the head forward, zeroing buckets that left the window.
func (sc *SlidingCounter) advance(t time.Time) {
	steps := int(t.Sub(sc.updated) / sc.width)
	if steps <= 0 {
		return
	}
	if steps >= len(sc.buckets) {
		for i := range sc.buckets {
			sc.buckets[i] = 0
		}
	} else {
		for i := 1; i <= steps; i++ {
			sc.buckets[(sc.head+i)%len(sc.buckets)] = 0
		}
	}
	sc.head = (sc.head + steps) % len(sc.buckets)
	sc.updated = t
}

func (sc *SlidingCounter) Allow() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.advance(sc.now())

	total := 0
	for _, n := range sc.buckets {
		total += n
	}
	if total >= sc.limit {
		return false
	}
	sc.buckets[sc.head]++
	return true
}
