package deviceconfig

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeStorage indicates the persistent store could not be read or
	// written, or held no usable record.
	ErrTypeStorage ErrorType = iota
	// ErrTypeValidation indicates a checksum mismatch or a candidate
	// configuration with missing or over-long fields.
	ErrTypeValidation
	// ErrTypeConnection indicates a link operation failed or was refused.
	ErrTypeConnection
	// ErrTypeRateLimited indicates the reconnect limiter had no token.
	ErrTypeRateLimited
	// ErrTypeProvisioningTimeout indicates a provisioning method ran past
	// its deadline.
	ErrTypeProvisioningTimeout
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeStorage:
		return "Storage Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeConnection:
		return "Connection Error"
	case ErrTypeRateLimited:
		return "Rate Limited"
	case ErrTypeProvisioningTimeout:
		return "Provisioning Timeout"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is the error type shared by the configuration store, the link and
// the provisioning coordinator.
type Error struct {
	Type    ErrorType // Category of error
	Message string    // Human-readable error message
	Err     error     // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the agent can continue after the error.
// Every error type is recoverable: storage and validation failures lead to
// re-provisioning, connection and rate-limit failures to a later retry.
func (e *Error) Recoverable() bool {
	return true
}

// NewStorageError creates a storage error
func NewStorageError(message string, err error) *Error {
	return &Error{Type: ErrTypeStorage, Message: message, Err: err}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *Error {
	return &Error{Type: ErrTypeValidation, Message: message}
}

// NewConnectionError creates a connection error
func NewConnectionError(message string, err error) *Error {
	return &Error{Type: ErrTypeConnection, Message: message, Err: err}
}

// NewRateLimitedError creates a rate-limit error
func NewRateLimitedError(message string) *Error {
	return &Error{Type: ErrTypeRateLimited, Message: message}
}

// NewProvisioningTimeoutError creates a provisioning timeout error
func NewProvisioningTimeoutError(method Method) *Error {
	return &Error{
		Type:    ErrTypeProvisioningTimeout,
		Message: fmt.Sprintf("%s provisioning timed out", method),
	}
}

func isType(err error, t ErrorType) bool {
	var cfgErr *Error
	if errors.As(err, &cfgErr) {
		return cfgErr.Type == t
	}
	return false
}

// IsStorageError checks if an error is a storage error
func IsStorageError(err error) bool {
	return isType(err, ErrTypeStorage)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrTypeValidation)
}

// IsConnectionError checks if an error is a connection error
func IsConnectionError(err error) bool {
	return isType(err, ErrTypeConnection)
}

// IsRateLimitedError checks if an error is a rate-limit error
func IsRateLimitedError(err error) bool {
	return isType(err, ErrTypeRateLimited)
}

// IsProvisioningTimeoutError checks if an error is a provisioning timeout
func IsProvisioningTimeoutError(err error) bool {
	return isType(err, ErrTypeProvisioningTimeout)
}

// GetTroubleshootingHint returns operator-facing troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch cfgErr.Type {
	case ErrTypeStorage:
		return strings.Join([]string{
			"No usable configuration could be read or written.",
			"Troubleshooting:",
			"  • Run 'relaynode provision' to create a configuration",
			"  • Check that the data file directory is writable",
			"  • Restore a backup with 'relaynode restore'",
		}, "\n")

	case ErrTypeValidation:
		return strings.Join([]string{
			"The configuration is invalid or corrupted.",
			"Troubleshooting:",
			"  • WiFi SSID, WiFi password, backend host and device secret are required",
			"  • A checksum mismatch means the stored record was damaged; re-provision the device",
		}, "\n")

	case ErrTypeConnection:
		return strings.Join([]string{
			"The backend link is not available.",
			"Troubleshooting:",
			"  • Check the backend host and port with 'relaynode show'",
			"  • Verify the backend is running (try 'relaynode backend' for a local mock)",
			"  • Check whether the backend expects TLS",
		}, "\n")

	case ErrTypeRateLimited:
		return "Reconnect attempts are being rate limited. The agent will retry automatically."

	case ErrTypeProvisioningTimeout:
		return strings.Join([]string{
			"No configuration was received before the provisioning deadline.",
			"Troubleshooting:",
			"  • Increase the method timeout in the settings file",
			"  • Choose a different provisioning method",
		}, "\n")

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, operator-facing error message
func GetShortErrorMessage(err error) string {
	var cfgErr *Error
	if !errors.As(err, &cfgErr) {
		return err.Error()
	}

	switch cfgErr.Type {
	case ErrTypeStorage:
		return "No usable configuration stored"
	case ErrTypeValidation:
		return cfgErr.Message
	case ErrTypeConnection:
		return "Backend link unavailable"
	case ErrTypeRateLimited:
		return "Rate limited - retry later"
	case ErrTypeProvisioningTimeout:
		return "Provisioning timed out"
	default:
		return cfgErr.Message
	}
}
