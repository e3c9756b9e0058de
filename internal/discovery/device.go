package discovery

import (
	"fmt"
	"time"
)

// Device is a relaynode agent found advertising its provisioning web form.
type Device struct {
	// Name is the advertised instance name, the device name of the agent
	Name string

	// Hostname is the mDNS hostname (e.g., "relay-7.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when the agent has no IPv4
	IP string

	// Port is the web form port (typically 80)
	Port int

	// Metadata contains the TXT record data: "path", "vers"
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("relaynode %s (%s) at %s:%d", d.Name, d.Hostname, d.IP, d.Port)
}

// FormURL returns the URL of the device's provisioning form.
func (d *Device) FormURL() string {
	path := d.GetMetadata("path")
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("http://%s:%d%s", d.IP, d.Port, path)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
