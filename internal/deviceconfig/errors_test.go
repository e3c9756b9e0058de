package deviceconfig

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorTypeString(t *testing.T) {
	tests := []struct {
		et   ErrorType
		want string
	}{
		{ErrTypeStorage, "Storage Error"},
		{ErrTypeValidation, "Validation Error"},
		{ErrTypeConnection, "Connection Error"},
		{ErrTypeRateLimited, "Rate Limited"},
		{ErrTypeProvisioningTimeout, "Provisioning Timeout"},
		{ErrorType(99), "ErrorType(99)"},
	}

	for _, tt := range tests {
		if got := tt.et.String(); got != tt.want {
			t.Errorf("ErrorType(%d).String() = %q, want %q", tt.et, got, tt.want)
		}
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("failed to write configuration", cause)

	if !strings.Contains(err.Error(), "caused by: disk full") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if !err.Recoverable() {
		t.Error("Recoverable() = false, want true")
	}

	plain := NewValidationError("bad")
	if plain.Error() != "Validation Error: bad" {
		t.Errorf("Error() = %q", plain.Error())
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"storage", NewStorageError("x", nil), IsStorageError},
		{"validation", NewValidationError("x"), IsValidationError},
		{"connection", NewConnectionError("x", nil), IsConnectionError},
		{"rate limited", NewRateLimitedError("x"), IsRateLimitedError},
		{"timeout", NewProvisioningTimeoutError(MethodSerial), IsProvisioningTimeoutError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("boot: %w", tt.err)
			if !tt.check(wrapped) {
				t.Errorf("predicate failed for wrapped %v", tt.err)
			}
		})
	}

	if IsStorageError(NewValidationError("x")) {
		t.Error("IsStorageError(validation error) = true")
	}
	if IsValidationError(errors.New("plain")) {
		t.Error("IsValidationError(plain error) = true")
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	if hint := GetTroubleshootingHint(NewStorageError("x", nil)); !strings.Contains(hint, "relaynode provision") {
		t.Errorf("storage hint = %q, want provision advice", hint)
	}
	if hint := GetTroubleshootingHint(errors.New("other")); !strings.Contains(hint, "unexpected") {
		t.Errorf("generic hint = %q", hint)
	}
}

func TestGetShortErrorMessage(t *testing.T) {
	if got := GetShortErrorMessage(NewValidationError("WiFi SSID cannot be empty")); got != "WiFi SSID cannot be empty" {
		t.Errorf("GetShortErrorMessage() = %q", got)
	}
	if got := GetShortErrorMessage(errors.New("boom")); got != "boom" {
		t.Errorf("GetShortErrorMessage(plain) = %q, want boom", got)
	}
}
