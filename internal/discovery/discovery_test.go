package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"

	"github.com/muurk/relaynode/internal/provisioning"
)

var _ provisioning.Advertiser = (*Advertiser)(nil)

func TestDevice_String(t *testing.T) {
	device := &Device{
		Name:     "relay-7",
		Hostname: "relay-7.local.",
		IP:       "192.168.4.1",
		Port:     80,
	}

	expected := "relaynode relay-7 (relay-7.local.) at 192.168.4.1:80"
	if device.String() != expected {
		t.Errorf("Device.String() = %v, want %v", device.String(), expected)
	}
}

func TestDevice_FormURL(t *testing.T) {
	tests := []struct {
		name     string
		device   *Device
		expected string
	}{
		{
			name:     "no path record",
			device:   &Device{IP: "192.168.4.1", Port: 80},
			expected: "http://192.168.4.1:80/",
		},
		{
			name: "advertised path",
			device: &Device{
				IP:       "10.0.0.5",
				Port:     8080,
				Metadata: map[string]string{"path": "/setup"},
			},
			expected: "http://10.0.0.5:8080/setup",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.FormURL(); got != tt.expected {
				t.Errorf("Device.FormURL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func entry(instance, host string, port int, v4, v6 []net.IP, txt ...string) *zeroconf.ServiceEntry {
	e := zeroconf.NewServiceEntry(instance, ServiceType, ServiceDomain)
	e.HostName = host
	e.Port = port
	e.AddrIPv4 = v4
	e.AddrIPv6 = v6
	e.Text = txt
	return e
}

func TestParseServiceEntry(t *testing.T) {
	v4 := []net.IP{net.ParseIP("192.168.4.1")}
	v6 := []net.IP{net.ParseIP("fe80::1")}

	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantName string
		wantIP   string
		wantPort int
	}{
		{"ipv4", entry("relay-7", "relay-7.local.", 80, v4, nil, "path=/", "vers=1.2.0"), false, "relay-7", "192.168.4.1", 80},
		{"prefers ipv4", entry("relay-8", "relay-8.local.", 8080, v4, v6), false, "relay-8", "192.168.4.1", 8080},
		{"ipv6 only", entry("relay-9", "relay-9.local.", 80, nil, v6), false, "relay-9", "fe80::1", 80},
		{"default port", entry("relay-10", "relay-10.local.", 0, v4, nil), false, "relay-10", "192.168.4.1", DefaultPort},
		{"no address", entry("relay-11", "relay-11.local.", 80, nil, nil), true, "", "", 0},
		{"no instance", entry("", "anon.local.", 80, v4, nil), true, "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}
			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want device")
			}
			if device.Name != tt.wantName {
				t.Errorf("Name = %v, want %v", device.Name, tt.wantName)
			}
			if device.IP != tt.wantIP {
				t.Errorf("IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.Port != tt.wantPort {
				t.Errorf("Port = %v, want %v", device.Port, tt.wantPort)
			}
		})
	}
}

func TestParseServiceEntryMetadata(t *testing.T) {
	device := parseServiceEntry(entry("relay-7", "relay-7.local.", 80,
		[]net.IP{net.ParseIP("192.168.4.1")}, nil, "path=/", "vers=1.2.0", "flag"))

	if got := device.GetMetadata("vers"); got != "1.2.0" {
		t.Errorf("GetMetadata(vers) = %q, want 1.2.0", got)
	}
	if _, ok := device.Metadata["flag"]; !ok {
		t.Error("key without value should be kept")
	}
	if got := device.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %q, want empty", got)
	}
	if got := (&Device{}).GetMetadata("path"); got != "" {
		t.Errorf("GetMetadata on nil metadata = %q, want empty", got)
	}
}

func TestAdvertiserTXTRecords(t *testing.T) {
	if got := NewAdvertiser("").TXTRecords(); len(got) != 1 || got[0] != "path=/" {
		t.Errorf("TXTRecords() = %v, want [path=/]", got)
	}
	got := NewAdvertiser("1.2.0").TXTRecords()
	if len(got) != 2 || got[1] != "vers=1.2.0" {
		t.Errorf("TXTRecords() = %v, want path and vers", got)
	}
}

func TestNewScanner(t *testing.T) {
	if s := NewScanner(); s.Timeout != DefaultScanTimeout {
		t.Errorf("NewScanner().Timeout = %v, want %v", s.Timeout, DefaultScanTimeout)
	}
}
