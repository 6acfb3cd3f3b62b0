// Package ratelimiter provides the request-admission algorithms behind the
// API's rate-limit middleware. All limiters are in-process and per-instance;
// they bound what one api_service process will accept, not a fleet.
package ratelimiter

import "time"

// Limiter admits or rejects one request.
type Limiter interface {
	Allow() bool
}

// clock lets tests drive time; production limiters use time.Now.
type clock func() time.Time
