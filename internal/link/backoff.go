package link

import (
	"math/rand"
	"time"

	"github.com/muurk/relaynode/internal/clock"
)

// Backoff defaults.
const (
	// InitialBackoff is the reconnection delay after a success.
	InitialBackoff = 1 * time.Second

	// MaxBackoff is the maximum reconnection delay.
	MaxBackoff = 60 * time.Second

	// JitterBound is the exclusive upper bound of the jitter added on each
	// failure.
	JitterBound = 500 * time.Millisecond
)

// Backoff tracks the delay between connection attempts.
//
// Each failure doubles the delay and adds a random jitter in
// [0, jitterBound), capped at max: next = min(max, current*2 + jitter).
// The delay never decreases except through Reset.
type Backoff struct {
	initial     uint32
	max         uint32
	jitterBound uint32

	current  uint32
	attempts uint32

	// jitter returns a value in [0, bound).
	jitter func(bound uint32) uint32
}

// NewBackoff creates a backoff calculator. Zero values fall back to the
// defaults; a negative jitter bound disables jitter.
func NewBackoff(initial, max, jitterBound time.Duration) *Backoff {
	if initial <= 0 {
		initial = InitialBackoff
	}
	if max <= 0 {
		max = MaxBackoff
	}
	if max < initial {
		max = initial
	}
	if jitterBound == 0 {
		jitterBound = JitterBound
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := &Backoff{
		initial:     clock.Millis(initial),
		max:         clock.Millis(max),
		jitterBound: clock.Millis(jitterBound),
		jitter: func(bound uint32) uint32 {
			return uint32(rng.Int63n(int64(bound)))
		},
	}
	b.current = b.initial
	return b
}

// Fail records a failed attempt and grows the delay.
func (b *Backoff) Fail() time.Duration {
	b.attempts++

	var j uint32
	if b.jitterBound > 0 {
		j = b.jitter(b.jitterBound)
	}

	next := uint64(b.current)*2 + uint64(j)
	if next > uint64(b.max) {
		next = uint64(b.max)
	}
	b.current = uint32(next)

	return clock.Duration(b.current)
}

// Reset restores the initial delay and clears the attempt counter.
// Call this after a successful connection.
func (b *Backoff) Reset() {
	b.current = b.initial
	b.attempts = 0
}

// Current returns the current delay.
func (b *Backoff) Current() time.Duration {
	return clock.Duration(b.current)
}

// CurrentMillis returns the current delay in milliseconds.
func (b *Backoff) CurrentMillis() uint32 {
	return b.current
}

// Attempts returns the number of failures since the last Reset.
func (b *Backoff) Attempts() uint32 {
	return b.attempts
}
