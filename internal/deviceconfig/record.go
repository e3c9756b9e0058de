package deviceconfig

import "fmt"

// Field bounds in bytes, excluding the NUL terminator of the stored layout.
const (
	MaxSSIDLen     = 31
	MaxPasswordLen = 63
	MaxHostLen     = 63
	MaxSecretLen   = 64
	MaxNameLen     = 31
	MaxOTALen      = 31
)

// ConfigRecord is the device configuration: WiFi credentials, backend
// endpoint and device identity. A record is valid only while Checksum
// matches the hash of every other field.
type ConfigRecord struct {
	WiFiSSID     string
	WiFiPassword string
	BackendHost  string
	BackendPort  uint16
	UseTLS       bool
	DeviceSecret string
	DeviceName   string
	OTAPassword  string
	Version      uint32
	Checksum     uint32
}

// ComputeChecksum returns the checksum of the record as it would be stored.
// Over-long strings are truncated first, exactly as Encode does.
func (r ConfigRecord) ComputeChecksum() uint32 {
	buf := Encode(r)
	return Checksum(buf[:checksumOffset])
}

// Valid reports whether the stored checksum matches the record contents.
func (r ConfigRecord) Valid() bool {
	return r.Checksum == r.ComputeChecksum()
}

// Scheme returns the websocket scheme the record's backend expects.
func (r ConfigRecord) Scheme() string {
	if r.UseTLS {
		return "wss"
	}
	return "ws"
}

// Endpoint returns host:port of the backend.
func (r ConfigRecord) Endpoint() string {
	return fmt.Sprintf("%s:%d", r.BackendHost, r.BackendPort)
}

// Method identifies how the current record was provisioned.
type Method uint8

const (
	MethodNone Method = iota
	MethodSerial
	MethodWifiAccessPoint
	MethodRemovableStorage
	MethodRemotePush
	MethodCompiledDefaults
)

// String returns a human-readable name for the method
func (m Method) String() string {
	switch m {
	case MethodNone:
		return "none"
	case MethodSerial:
		return "serial"
	case MethodWifiAccessPoint:
		return "wifi-ap"
	case MethodRemovableStorage:
		return "removable-storage"
	case MethodRemotePush:
		return "remote-push"
	case MethodCompiledDefaults:
		return "compiled-defaults"
	default:
		return fmt.Sprintf("Method(%d)", m)
	}
}

// Insecure reports whether the method installs development-only values.
func (m Method) Insecure() bool {
	return m == MethodCompiledDefaults
}

// ParseMethod converts a method name (as printed by String) back to a Method.
func ParseMethod(s string) (Method, error) {
	for m := MethodNone; m <= MethodCompiledDefaults; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return MethodNone, fmt.Errorf("unknown provisioning method %q", s)
}
