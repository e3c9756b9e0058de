package clock

import (
	"testing"
	"time"
)

func TestSinceWraparound(t *testing.T) {
	tests := []struct {
		name string
		now  uint32
		then uint32
		want uint32
	}{
		{"no wrap", 1500, 500, 1000},
		{"equal", 42, 42, 0},
		{"across wrap", 100, ^uint32(0) - 99, 200},
		{"just wrapped", 0, ^uint32(0), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Since(tt.now, tt.then); got != tt.want {
				t.Errorf("Since(%d, %d) = %d, want %d", tt.now, tt.then, got, tt.want)
			}
		})
	}
}

func TestMillis(t *testing.T) {
	if got := Millis(-time.Second); got != 0 {
		t.Errorf("Millis(-1s) = %d, want 0", got)
	}
	if got := Millis(1500 * time.Millisecond); got != 1500 {
		t.Errorf("Millis(1.5s) = %d, want 1500", got)
	}
	if got := Millis(100 * 24 * time.Hour); got != ^uint32(0) {
		t.Errorf("Millis(100d) = %d, want saturation", got)
	}
	if got := Duration(250); got != 250*time.Millisecond {
		t.Errorf("Duration(250) = %v, want 250ms", got)
	}
}

func TestManualClock(t *testing.T) {
	c := NewManual(^uint32(0) - 10)
	start := c.Millis()

	c.Advance(20 * time.Millisecond)
	if got := Since(c.Millis(), start); got != 20 {
		t.Errorf("elapsed after wrap = %d, want 20", got)
	}

	c.Set(5)
	if c.Millis() != 5 {
		t.Errorf("Millis() after Set = %d, want 5", c.Millis())
	}
}
