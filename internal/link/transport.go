package link

import (
	"fmt"
	"net"
	"strconv"
)

// DefaultPath is the websocket path the backend serves devices on.
const DefaultPath = "/esp32-ws"

// Target is the backend endpoint of the link.
type Target struct {
	Host string
	Port uint16
	Path string
	TLS  bool
}

// URL returns the websocket URL of the target.
func (t Target) URL() string {
	scheme := "ws"
	if t.TLS {
		scheme = "wss"
	}
	path := t.Path
	if path == "" {
		path = DefaultPath
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port))), path)
}

// String implements fmt.Stringer.
func (t Target) String() string {
	return t.URL()
}

// TransportEventType identifies a transport event.
type TransportEventType uint8

const (
	TransportConnected TransportEventType = iota
	TransportDisconnected
	TransportText
	TransportBinary
	TransportError
)

// String returns a human-readable event name.
func (t TransportEventType) String() string {
	switch t {
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportText:
		return "text"
	case TransportBinary:
		return "binary"
	case TransportError:
		return "error"
	default:
		return fmt.Sprintf("TransportEventType(%d)", t)
	}
}

// TransportEvent is something that happened on the transport since the
// last Poll.
type TransportEvent struct {
	Type    TransportEventType
	Payload []byte // text and binary frames
	Err     error  // TransportError
}

// Transport is the byte-level link the Manager drives.
//
// Connect starts an attempt and returns false when it is refused
// synchronously; the outcome of an accepted attempt arrives as a
// TransportConnected, TransportDisconnected or TransportError event from a
// later Poll. A missed heartbeat is reported as TransportDisconnected.
// SendText returns false when the frame was not accepted. Close drops the
// connection without producing further events.
type Transport interface {
	Connect(target Target) bool
	SendText(data []byte) bool
	Poll() []TransportEvent
	Close()
}
