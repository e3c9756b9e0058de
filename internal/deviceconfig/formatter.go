package deviceconfig

import (
	"encoding/json"
	"fmt"
	"strings"
)

const insecureBanner = "WARNING: compiled development defaults in use - not for production"

// Summary returns a one-line summary of the configuration
func (r ConfigRecord) Summary() string {
	return fmt.Sprintf("%s @ %s://%s (v%d)", r.DeviceName, r.Scheme(), r.Endpoint(), r.Version)
}

// mask hides a secret value while showing whether one is set.
func mask(s string) string {
	if s == "" {
		return "(not set)"
	}
	return "********"
}

// FormatNetwork returns a formatted string with the WiFi configuration
func (r ConfigRecord) FormatNetwork() string {
	var b strings.Builder

	b.WriteString("=== WiFi Configuration ===\n")
	b.WriteString(fmt.Sprintf("SSID:     %s\n", r.WiFiSSID))
	b.WriteString(fmt.Sprintf("Password: %s\n", mask(r.WiFiPassword)))

	return b.String()
}

// FormatBackend returns a formatted string with the backend configuration
func (r ConfigRecord) FormatBackend() string {
	var b strings.Builder

	b.WriteString("=== Backend Configuration ===\n")
	b.WriteString(fmt.Sprintf("Host:     %s\n", r.BackendHost))
	b.WriteString(fmt.Sprintf("Port:     %d\n", r.BackendPort))
	b.WriteString(fmt.Sprintf("TLS:      %v\n", r.UseTLS))
	b.WriteString(fmt.Sprintf("Full URL: %s://%s\n", r.Scheme(), r.Endpoint()))

	return b.String()
}

// FormatIdentity returns a formatted string with the device identity
func (r ConfigRecord) FormatIdentity() string {
	var b strings.Builder

	b.WriteString("=== Device Identity ===\n")
	b.WriteString(fmt.Sprintf("Name:         %s\n", r.DeviceName))
	b.WriteString(fmt.Sprintf("Secret:       %s\n", mask(r.DeviceSecret)))
	b.WriteString(fmt.Sprintf("OTA Password: %s\n", mask(r.OTAPassword)))

	return b.String()
}

// FormatCompact returns a compact multi-line format suitable for terminal display
func (r ConfigRecord) FormatCompact(method Method) string {
	var b strings.Builder

	if method.Insecure() {
		b.WriteString(insecureBanner + "\n")
	}
	b.WriteString(fmt.Sprintf("Device:  %s (v%d, via %s)\n", r.DeviceName, r.Version, method))
	b.WriteString(fmt.Sprintf("WiFi:    %s\n", r.WiFiSSID))
	b.WriteString(fmt.Sprintf("Backend: %s://%s\n", r.Scheme(), r.Endpoint()))

	return b.String()
}

// FormatDetailed returns a comprehensive formatted string with all configuration details
func (r ConfigRecord) FormatDetailed(method Method) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("╔════════════════════════════════════════════════════════════════╗\n")
	b.WriteString("║              RELAYNODE DEVICE CONFIGURATION                    ║\n")
	b.WriteString("╚════════════════════════════════════════════════════════════════╝\n")
	b.WriteString("\n")

	if method.Insecure() {
		b.WriteString(insecureBanner + "\n\n")
	}

	b.WriteString(fmt.Sprintf("Version:      %d\n", r.Version))
	b.WriteString(fmt.Sprintf("Checksum:     0x%08x\n", r.Checksum))
	b.WriteString(fmt.Sprintf("Provisioned:  %s\n", method))
	b.WriteString("\n")
	b.WriteString(r.FormatIdentity())
	b.WriteString("\n")
	b.WriteString(r.FormatNetwork())
	b.WriteString("\n")
	b.WriteString(r.FormatBackend())

	return b.String()
}

// RecordView is the secret-free JSON view of a record used by `show`.
type RecordView struct {
	DeviceName  string `json:"device_name"`
	WiFiSSID    string `json:"wifi_ssid"`
	BackendHost string `json:"backend_host"`
	BackendPort uint16 `json:"backend_port"`
	UseHTTPS    bool   `json:"use_https"`
	Version     uint32 `json:"version"`
	Checksum    string `json:"checksum"`
	Method      string `json:"method"`
	Insecure    bool   `json:"insecure"`
	HasSecret   bool   `json:"has_secret"`
}

// FormatJSON returns the secret-free JSON view of the record.
func (r ConfigRecord) FormatJSON(method Method) (string, error) {
	view := RecordView{
		DeviceName:  r.DeviceName,
		WiFiSSID:    r.WiFiSSID,
		BackendHost: r.BackendHost,
		BackendPort: r.BackendPort,
		UseHTTPS:    r.UseTLS,
		Version:     r.Version,
		Checksum:    fmt.Sprintf("0x%08x", r.Checksum),
		Method:      method.String(),
		Insecure:    method.Insecure(),
		HasSecret:   r.DeviceSecret != "",
	}

	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal configuration view: %w", err)
	}
	return string(data), nil
}

// FormatDiff returns a formatted diff between two configurations. Secret
// fields are reported as changed without their values.
func FormatDiff(old, new ConfigRecord) string {
	var b strings.Builder

	b.WriteString("=== Configuration Differences ===\n")

	hasChanges := false
	line := func(name string, from, to any) {
		b.WriteString(fmt.Sprintf("  %-14s %v → %v\n", name+":", from, to))
		hasChanges = true
	}

	if old.WiFiSSID != new.WiFiSSID {
		line("WiFi SSID", old.WiFiSSID, new.WiFiSSID)
	}
	if old.WiFiPassword != new.WiFiPassword {
		line("WiFi Password", "********", "********")
	}
	if old.BackendHost != new.BackendHost {
		line("Host", old.BackendHost, new.BackendHost)
	}
	if old.BackendPort != new.BackendPort {
		line("Port", old.BackendPort, new.BackendPort)
	}
	if old.UseTLS != new.UseTLS {
		line("TLS", old.UseTLS, new.UseTLS)
	}
	if old.DeviceSecret != new.DeviceSecret {
		line("Secret", "********", "********")
	}
	if old.DeviceName != new.DeviceName {
		line("Name", old.DeviceName, new.DeviceName)
	}
	if old.OTAPassword != new.OTAPassword {
		line("OTA Password", "********", "********")
	}

	if !hasChanges {
		b.WriteString("\n(no differences detected)\n")
	}

	return b.String()
}
