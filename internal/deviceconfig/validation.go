package deviceconfig

import (
	"fmt"
	"strings"
)

// validateRequired rejects values that would read back empty from the
// stored layout, which ends every string at its first NUL.
func validateRequired(field, value string, max int) error {
	if head, _, _ := strings.Cut(value, "\x00"); head == "" {
		return NewValidationError(fmt.Sprintf("%s cannot be empty", field))
	}
	return validateLength(field, value, max)
}

func validateLength(field, value string, max int) error {
	if strings.IndexByte(value, 0) >= 0 {
		return NewValidationError(fmt.Sprintf("%s contains a NUL character", field))
	}
	if len(value) > max {
		return NewValidationError(fmt.Sprintf("%s too long (max %d chars): %d chars", field, max, len(value)))
	}
	return nil
}

// ValidateWiFiSSID validates a WiFi SSID.
func ValidateWiFiSSID(ssid string) error {
	return validateRequired("WiFi SSID", ssid, MaxSSIDLen)
}

// ValidateWiFiPassword validates a WiFi password.
func ValidateWiFiPassword(password string) error {
	return validateRequired("WiFi password", password, MaxPasswordLen)
}

// ValidateBackendHost validates a backend hostname or IP address.
// Basic validation: non-empty, bounded, no whitespace.
func ValidateBackendHost(host string) error {
	if err := validateRequired("backend host", host, MaxHostLen); err != nil {
		return err
	}
	if strings.ContainsAny(host, " \t\n\r") {
		return NewValidationError("backend host contains invalid whitespace characters")
	}
	return nil
}

// ValidateBackendPort validates a backend port number.
// Valid range: 1-65535
func ValidateBackendPort(port uint16) error {
	if port == 0 {
		return NewValidationError("backend port must be 1-65535, got 0")
	}
	return nil
}

// ValidateDeviceSecret validates the shared device secret.
func ValidateDeviceSecret(secret string) error {
	return validateRequired("device secret", secret, MaxSecretLen)
}

// ValidateCandidate validates a configuration candidate before it is
// committed. Returns a slice of validation errors (empty if valid).
func ValidateCandidate(r ConfigRecord) []error {
	var errors []error

	if err := ValidateWiFiSSID(r.WiFiSSID); err != nil {
		errors = append(errors, err)
	}
	if err := ValidateWiFiPassword(r.WiFiPassword); err != nil {
		errors = append(errors, err)
	}
	if err := ValidateBackendHost(r.BackendHost); err != nil {
		errors = append(errors, err)
	}
	if err := ValidateBackendPort(r.BackendPort); err != nil {
		errors = append(errors, err)
	}
	if err := ValidateDeviceSecret(r.DeviceSecret); err != nil {
		errors = append(errors, err)
	}
	if err := validateLength("device name", r.DeviceName, MaxNameLen); err != nil {
		errors = append(errors, err)
	}
	if err := validateLength("OTA password", r.OTAPassword, MaxOTALen); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// CheckCandidate is ValidateCandidate folded into a single validation
// error, or nil when the candidate is acceptable.
func CheckCandidate(r ConfigRecord) error {
	errs := ValidateCandidate(r)
	if len(errs) == 0 {
		return nil
	}

	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = GetShortErrorMessage(err)
	}
	return NewValidationError(strings.Join(msgs, "; "))
}

// FormatValidationErrors formats a slice of validation errors into an operator-facing message.
func FormatValidationErrors(errors []error) string {
	if len(errors) == 0 {
		return "No validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n", len(errors)))

	for i, err := range errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}

	return sb.String()
}
