package ratelimit

import (
	"testing"
	"time"

	"github.com/muurk/relaynode/internal/clock"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	clk := clock.NewManual(1000)
	l := New(clk, 5, 1000*time.Millisecond)

	for i := 1; i <= 5; i++ {
		if !l.AllowOne() {
			t.Fatalf("call %d: AllowOne() = false, want true", i)
		}
	}
	clk.AdvanceMillis(1)
	if l.AllowOne() {
		t.Fatal("6th call: AllowOne() = true, want false")
	}

	clk.AdvanceMillis(999)
	if got := l.Remaining(); got != 1 {
		t.Errorf("Remaining() after one interval = %d, want 1", got)
	}
	if !l.AllowOne() {
		t.Error("AllowOne() after refill = false, want true")
	}
	if l.AllowOne() {
		t.Error("second AllowOne() after single refill = true, want false")
	}
}

func TestLimiterDeniedCallDoesNotMutate(t *testing.T) {
	clk := clock.NewManual(0)
	l := New(clk, 3, time.Second)

	if l.Allow(4) {
		t.Fatal("Allow(4) on capacity 3 = true, want false")
	}
	if got := l.Remaining(); got != 3 {
		t.Errorf("Remaining() after denied Allow = %d, want 3", got)
	}

	if !l.Allow(2) {
		t.Fatal("Allow(2) = false, want true")
	}
	if l.Allow(2) {
		t.Fatal("Allow(2) with 1 token = true, want false")
	}
	if got := l.Remaining(); got != 1 {
		t.Errorf("Remaining() = %d, want 1", got)
	}
}

func TestLimiterNoDrift(t *testing.T) {
	clk := clock.NewManual(0)
	l := New(clk, 10, time.Second)
	for l.AllowOne() {
	}

	// 2.5 intervals: two tokens, and the half interval carries over.
	clk.AdvanceMillis(2500)
	if got := l.Remaining(); got != 2 {
		t.Fatalf("Remaining() after 2.5 intervals = %d, want 2", got)
	}

	// Another 0.5 interval completes the third window.
	clk.AdvanceMillis(500)
	if got := l.Remaining(); got != 3 {
		t.Errorf("Remaining() after 3 intervals = %d, want 3", got)
	}
}

func TestLimiterCapsAtCapacity(t *testing.T) {
	clk := clock.NewManual(0)
	l := New(clk, 2, 100*time.Millisecond)
	l.Allow(2)

	clk.Advance(time.Hour)
	if got := l.Remaining(); got != 2 {
		t.Errorf("Remaining() after long idle = %d, want 2", got)
	}
}

func TestLimiterTimeUntilNext(t *testing.T) {
	clk := clock.NewManual(0)
	l := New(clk, 1, time.Second)

	if got := l.TimeUntilNext(); got != 0 {
		t.Errorf("TimeUntilNext() with tokens = %v, want 0", got)
	}

	l.AllowOne()
	clk.AdvanceMillis(300)
	if got := l.TimeUntilNext(); got != 700*time.Millisecond {
		t.Errorf("TimeUntilNext() = %v, want 700ms", got)
	}

	clk.AdvanceMillis(700)
	if got := l.TimeUntilNext(); got != 0 {
		t.Errorf("TimeUntilNext() at boundary = %v, want 0", got)
	}
}

func TestLimiterClockWraparound(t *testing.T) {
	clk := clock.NewManual(^uint32(0) - 499)
	l := New(clk, 1, time.Second)
	l.AllowOne()

	// Crosses zero: 500ms before the wrap plus 500ms after.
	clk.AdvanceMillis(1000)
	if got := l.Remaining(); got != 1 {
		t.Errorf("Remaining() across wrap = %d, want 1", got)
	}
}

func TestLimiterReset(t *testing.T) {
	clk := clock.NewManual(0)
	l := New(clk, 3, time.Second)
	l.Allow(3)
	clk.AdvanceMillis(900)

	l.Reset()
	if got := l.Remaining(); got != 3 {
		t.Errorf("Remaining() after Reset = %d, want 3", got)
	}

	// The window restarted at Reset, so 900ms later no token is added yet.
	l.Allow(3)
	clk.AdvanceMillis(900)
	if got := l.Remaining(); got != 0 {
		t.Errorf("Remaining() 900ms after Reset = %d, want 0", got)
	}
	if l.Capacity() != 3 || l.Interval() != time.Second {
		t.Errorf("Capacity()/Interval() = %d/%v, want 3/1s", l.Capacity(), l.Interval())
	}
}
