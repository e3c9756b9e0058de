// Package clock provides the 32-bit millisecond clock used by every timed
// component of the agent.
//
// Timestamps are uint32 milliseconds that wrap roughly every 49.7 days, the
// same width as a microcontroller millis() counter. Elapsed time is always
// computed with Since, which relies on unsigned subtraction and therefore
// stays correct across a wrap.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock reports monotonic milliseconds.
type Clock interface {
	Millis() uint32
}

// Since returns now-then as a wraparound-safe duration in milliseconds.
func Since(now, then uint32) uint32 {
	return now - then
}

// Duration converts a millisecond count to a time.Duration.
func Duration(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Millis converts a time.Duration to whole milliseconds, saturating at the
// uint32 range.
func Millis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ms)
}

// System is a Clock backed by the process monotonic clock.
type System struct {
	start time.Time
}

// NewSystem returns a System clock whose zero is the moment of creation.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// Millis implements Clock.
func (s *System) Millis() uint32 {
	// Truncation to 32 bits is the wraparound.
	return uint32(time.Since(s.start).Milliseconds())
}

// Manual is a Clock that only moves when told to. It is used by tests and
// by simulations that need deterministic timing.
type Manual struct {
	now atomic.Uint32
}

// NewManual returns a Manual clock set to start.
func NewManual(start uint32) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

// Millis implements Clock.
func (m *Manual) Millis() uint32 {
	return m.now.Load()
}

// Advance moves the clock forward by d, wrapping as a uint32.
func (m *Manual) Advance(d time.Duration) {
	m.now.Add(Millis(d))
}

// AdvanceMillis moves the clock forward by ms milliseconds.
func (m *Manual) AdvanceMillis(ms uint32) {
	m.now.Add(ms)
}

// Set moves the clock to an absolute value.
func (m *Manual) Set(ms uint32) {
	m.now.Store(ms)
}
