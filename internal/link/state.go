package link

import (
	"fmt"

	"github.com/muurk/relaynode/internal/deviceconfig"
)

// Link errors. Each wraps the deviceconfig error type it belongs to, so
// both errors.Is against the sentinel and the deviceconfig predicates work.
var (
	ErrEmptyHost      = deviceconfig.NewValidationError("backend host is empty")
	ErrRateLimited    = deviceconfig.NewRateLimitedError("reconnect rate limit reached")
	ErrBackoffPending = deviceconfig.NewConnectionError("reconnect backoff has not elapsed", nil)
	ErrConnectRefused = deviceconfig.NewConnectionError("transport refused connection", nil)
	ErrNotConnected   = deviceconfig.NewConnectionError("not connected", nil)
	ErrSendFailed     = deviceconfig.NewConnectionError("transport refused message", nil)
)

// State represents the link state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateFailed indicates the connection was lost through a transport
	// error. It is retried exactly like StateDisconnected.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// idle reports whether a new connection attempt may start from s.
func (s State) idle() bool {
	return s == StateDisconnected || s == StateFailed
}
