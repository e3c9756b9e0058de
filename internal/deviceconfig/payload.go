package deviceconfig

import (
	"encoding/json"
	"fmt"
)

// Payload defaults for optional fields.
const (
	DefaultDeviceName  = "ESP32-Device"
	DefaultBackendPort = 3001
)

// Payload is the JSON provisioning document shared by the web form, the
// removable storage file, remote push and backups. Absent fields are nil so
// that a payload can also be applied as a partial update. Unknown fields
// are ignored.
type Payload struct {
	WiFiSSID     *string `json:"wifi_ssid,omitempty"`
	WiFiPassword *string `json:"wifi_password,omitempty"`
	BackendHost  *string `json:"backend_host,omitempty"`
	BackendPort  *uint16 `json:"backend_port,omitempty"`
	UseHTTPS     *bool   `json:"use_https,omitempty"`
	DeviceSecret *string `json:"device_secret,omitempty"`
	DeviceName   *string `json:"device_name,omitempty"`
	OTAPassword  *string `json:"ota_password,omitempty"`
}

// ParsePayload decodes a provisioning document. Malformed JSON is a
// validation error.
func ParsePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, &Error{
			Type:    ErrTypeValidation,
			Message: "invalid provisioning JSON",
			Err:     err,
		}
	}
	return p, nil
}

// PayloadFromRecord returns a payload carrying every field of r.
func PayloadFromRecord(r ConfigRecord) Payload {
	return Payload{
		WiFiSSID:     &r.WiFiSSID,
		WiFiPassword: &r.WiFiPassword,
		BackendHost:  &r.BackendHost,
		BackendPort:  &r.BackendPort,
		UseHTTPS:     &r.UseTLS,
		DeviceSecret: &r.DeviceSecret,
		DeviceName:   &r.DeviceName,
		OTAPassword:  &r.OTAPassword,
	}
}

// Record builds a full candidate from the payload. Missing optional fields
// take their defaults; missing required fields stay empty and are caught by
// ValidateCandidate.
func (p Payload) Record() ConfigRecord {
	return p.MergeInto(ConfigRecord{
		BackendPort: DefaultBackendPort,
		DeviceName:  DefaultDeviceName,
	})
}

// MergeInto returns base with every field present in the payload replaced.
// Version and Checksum are left for Commit to set.
func (p Payload) MergeInto(base ConfigRecord) ConfigRecord {
	if p.WiFiSSID != nil {
		base.WiFiSSID = *p.WiFiSSID
	}
	if p.WiFiPassword != nil {
		base.WiFiPassword = *p.WiFiPassword
	}
	if p.BackendHost != nil {
		base.BackendHost = *p.BackendHost
	}
	if p.BackendPort != nil {
		base.BackendPort = *p.BackendPort
	}
	if p.UseHTTPS != nil {
		base.UseTLS = *p.UseHTTPS
	}
	if p.DeviceSecret != nil {
		base.DeviceSecret = *p.DeviceSecret
	}
	if p.DeviceName != nil {
		base.DeviceName = *p.DeviceName
	}
	if p.OTAPassword != nil {
		base.OTAPassword = *p.OTAPassword
	}
	return base
}

// Fields returns the JSON names of the fields present in the payload.
func (p Payload) Fields() []string {
	var fields []string
	add := func(present bool, name string) {
		if present {
			fields = append(fields, name)
		}
	}
	add(p.WiFiSSID != nil, "wifi_ssid")
	add(p.WiFiPassword != nil, "wifi_password")
	add(p.BackendHost != nil, "backend_host")
	add(p.BackendPort != nil, "backend_port")
	add(p.UseHTTPS != nil, "use_https")
	add(p.DeviceSecret != nil, "device_secret")
	add(p.DeviceName != nil, "device_name")
	add(p.OTAPassword != nil, "ota_password")
	return fields
}

// CandidateFromJSON parses data and builds a full candidate from it.
func CandidateFromJSON(data []byte) (ConfigRecord, error) {
	p, err := ParsePayload(data)
	if err != nil {
		return ConfigRecord{}, err
	}
	return p.Record(), nil
}

// MarshalRecord encodes r as a provisioning document.
func MarshalRecord(r ConfigRecord) ([]byte, error) {
	data, err := json.MarshalIndent(PayloadFromRecord(r), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal configuration: %w", err)
	}
	return data, nil
}
