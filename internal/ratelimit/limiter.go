// Package ratelimit implements a token bucket with coarse, cycle-based
// refill.
//
// Tokens are only ever added in whole refill intervals. The refill
// timestamp advances by exactly the number of whole intervals consumed, so
// leftover time carries into the next window and the bucket never drifts
// relative to the clock. All timestamps come from a clock.Clock and are
// compared with wraparound-safe unsigned subtraction.
//
// A Limiter is owned by a single component and is not safe for concurrent
// use.
package ratelimit

import (
	"time"

	"github.com/muurk/relaynode/internal/clock"
)

// Limiter is a token bucket.
type Limiter struct {
	clk        clock.Clock
	capacity   uint32
	tokens     uint32
	intervalMs uint32
	lastRefill uint32
}

// New creates a full bucket holding capacity tokens that regains one token
// per interval. An interval below one millisecond is raised to one.
func New(clk clock.Clock, capacity uint32, interval time.Duration) *Limiter {
	intervalMs := clock.Millis(interval)
	if intervalMs == 0 {
		intervalMs = 1
	}
	return &Limiter{
		clk:        clk,
		capacity:   capacity,
		tokens:     capacity,
		intervalMs: intervalMs,
		lastRefill: clk.Millis(),
	}
}

// Allow refills the bucket and then tries to take cost tokens. When the
// bucket holds fewer than cost tokens nothing is deducted and false is
// returned.
func (l *Limiter) Allow(cost uint32) bool {
	l.refill()
	if l.tokens < cost {
		return false
	}
	l.tokens -= cost
	return true
}

// AllowOne is Allow(1).
func (l *Limiter) AllowOne() bool {
	return l.Allow(1)
}

// Remaining refills the bucket and returns the tokens available without
// consuming any.
func (l *Limiter) Remaining() uint32 {
	l.refill()
	return l.tokens
}

// TimeUntilNext returns zero when a token is available, otherwise the time
// left until the current window's next refill boundary.
func (l *Limiter) TimeUntilNext() time.Duration {
	l.refill()
	if l.tokens > 0 {
		return 0
	}
	elapsed := clock.Since(l.clk.Millis(), l.lastRefill)
	return clock.Duration(l.intervalMs - elapsed)
}

// Reset fills the bucket and restarts the refill window at the current
// time. It is used after an explicit operator action so the device is not
// locked out right after being provisioned.
func (l *Limiter) Reset() {
	l.tokens = l.capacity
	l.lastRefill = l.clk.Millis()
}

// Capacity returns the bucket size.
func (l *Limiter) Capacity() uint32 {
	return l.capacity
}

// Interval returns the refill interval.
func (l *Limiter) Interval() time.Duration {
	return clock.Duration(l.intervalMs)
}

func (l *Limiter) refill() {
	elapsed := clock.Since(l.clk.Millis(), l.lastRefill)
	if elapsed < l.intervalMs {
		return
	}

	cycles := elapsed / l.intervalMs
	if room := l.capacity - l.tokens; cycles >= room {
		l.tokens = l.capacity
	} else {
		l.tokens += cycles
	}
	l.lastRefill += cycles * l.intervalMs
}
