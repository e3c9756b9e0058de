package deviceconfig

import (
	"strings"
	"testing"
)

func TestValidateCandidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(r *ConfigRecord)
		wantErrs int
	}{
		{"valid", func(r *ConfigRecord) {}, 0},
		{"empty ssid", func(r *ConfigRecord) { r.WiFiSSID = "" }, 1},
		{"empty password", func(r *ConfigRecord) { r.WiFiPassword = "" }, 1},
		{"empty host", func(r *ConfigRecord) { r.BackendHost = "" }, 1},
		{"empty secret", func(r *ConfigRecord) { r.DeviceSecret = "" }, 1},
		{"zero port", func(r *ConfigRecord) { r.BackendPort = 0 }, 1},
		{"host with space", func(r *ConfigRecord) { r.BackendHost = "bad host" }, 1},
		{"ssid too long", func(r *ConfigRecord) { r.WiFiSSID = strings.Repeat("s", 32) }, 1},
		{"secret at bound", func(r *ConfigRecord) { r.DeviceSecret = strings.Repeat("k", 64) }, 0},
		{"secret too long", func(r *ConfigRecord) { r.DeviceSecret = strings.Repeat("k", 65) }, 1},
		{"name too long", func(r *ConfigRecord) { r.DeviceName = strings.Repeat("n", 32) }, 1},
		{"empty name allowed", func(r *ConfigRecord) { r.DeviceName = "" }, 0},
		{"empty ota allowed", func(r *ConfigRecord) { r.OTAPassword = "" }, 0},
		{"ssid empty before NUL", func(r *ConfigRecord) { r.WiFiSSID = "\x00hidden" }, 1},
		{"secret with NUL", func(r *ConfigRecord) { r.DeviceSecret = "abc\x00def" }, 1},
		{"name with NUL", func(r *ConfigRecord) { r.DeviceName = "relay\x00" }, 1},
		{"everything missing", func(r *ConfigRecord) { *r = ConfigRecord{BackendPort: 1} }, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := validRecord()
			tt.mutate(&rec)

			errs := ValidateCandidate(rec)
			if len(errs) != tt.wantErrs {
				t.Errorf("ValidateCandidate() returned %d errors, want %d: %v", len(errs), tt.wantErrs, errs)
			}
			for _, err := range errs {
				if !IsValidationError(err) {
					t.Errorf("error %v is not a validation error", err)
				}
			}
		})
	}
}

func TestCheckCandidate(t *testing.T) {
	if err := CheckCandidate(validRecord()); err != nil {
		t.Errorf("CheckCandidate(valid) = %v", err)
	}

	err := CheckCandidate(ConfigRecord{BackendPort: 3001})
	if !IsValidationError(err) {
		t.Fatalf("CheckCandidate(empty) = %v, want validation error", err)
	}
	for _, field := range []string{"WiFi SSID", "WiFi password", "backend host", "device secret"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("CheckCandidate() error %q does not mention %q", err, field)
		}
	}
}

func TestFormatValidationErrors(t *testing.T) {
	if got := FormatValidationErrors(nil); got != "No validation errors" {
		t.Errorf("FormatValidationErrors(nil) = %q", got)
	}

	got := FormatValidationErrors(ValidateCandidate(ConfigRecord{BackendPort: 1}))
	if !strings.Contains(got, "4 error(s)") {
		t.Errorf("FormatValidationErrors() = %q, want count", got)
	}
	if !strings.Contains(got, "  1. ") {
		t.Errorf("FormatValidationErrors() = %q, want numbered list", got)
	}
}
