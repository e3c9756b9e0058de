package provisioning

import (
	"time"

	"github.com/muurk/relaynode/internal/clock"
	"github.com/muurk/relaynode/internal/deviceconfig"
)

// Status is the outcome of polling a provisioning method.
type Status int

const (
	// StatusPending means the method is still waiting for input.
	StatusPending Status = iota
	// StatusReady means a candidate record is available.
	StatusReady
	// StatusDeclined means the method gave up: bad input, missing source
	// or deadline expired.
	StatusDeclined
)

// String returns a human-readable name for the status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusDeclined:
		return "declined"
	default:
		return "unknown"
	}
}

// Result is returned by Method.Poll. Candidate is set when Status is
// StatusReady, Err when it is StatusDeclined.
type Result struct {
	Status    Status
	Candidate deviceconfig.ConfigRecord
	Err       error
}

func pending() Result {
	return Result{Status: StatusPending}
}

func ready(c deviceconfig.ConfigRecord) Result {
	return Result{Status: StatusReady, Candidate: c}
}

func declined(err error) Result {
	return Result{Status: StatusDeclined, Err: err}
}

// Method is one way of obtaining a configuration candidate. Methods are
// poll-driven: Start arms the method, Poll advances it without blocking and
// Stop releases whatever Start acquired. Validation and commit belong to
// the Coordinator.
type Method interface {
	Kind() deviceconfig.Method
	Start(now uint32) error
	Poll(now uint32) Result
	Stop()
}

// deadline tracks a bounded wait on the wraparound-safe millisecond clock.
type deadline struct {
	start uint32
	limit uint32
}

func (d *deadline) arm(now uint32, timeout time.Duration) {
	d.start = now
	d.limit = clock.Millis(timeout)
}

func (d deadline) expired(now uint32) bool {
	return clock.Since(now, d.start) >= d.limit
}

func (d deadline) remaining(now uint32) time.Duration {
	elapsed := clock.Since(now, d.start)
	if elapsed >= d.limit {
		return 0
	}
	return clock.Duration(d.limit - elapsed)
}
