package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewSessionID returns a fresh link session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Marshal encodes a message for the wire.
func Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", msg, err)
	}
	return data, nil
}

// BuildIdentify constructs the identify message for a new session.
func BuildIdentify(deviceID, secret, sessionID string, now time.Time) ([]byte, error) {
	return Marshal(Identify{
		Type:       TypeIdentify,
		DeviceID:   deviceID,
		DeviceType: DeviceType,
		Secret:     secret,
		SessionID:  sessionID,
		Timestamp:  now.UTC().Format(time.RFC3339),
	})
}

// BuildIdentified constructs the backend's identify answer.
func BuildIdentified(connectionID string) ([]byte, error) {
	return Marshal(Identified{
		Type:         TypeIdentified,
		ConnectionID: connectionID,
		Message:      "identified",
	})
}

// BuildError constructs an error report.
func BuildError(reason string) ([]byte, error) {
	return Marshal(ErrorMessage{Type: TypeError, Reason: reason})
}

// BuildConfigUpdate wraps a provisioning document for a remote push.
func BuildConfigUpdate(config any) ([]byte, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return Marshal(ConfigUpdate{Type: TypeConfigUpdate, Config: raw})
}

// BuildConfigAck constructs the answer to a config update. version is the
// committed configuration version, zero on failure.
func BuildConfigAck(success bool, message string, version uint32) ([]byte, error) {
	return Marshal(ConfigAck{
		Type:    TypeConfigAck,
		Success: success,
		Message: message,
		Version: version,
	})
}

// BuildPing constructs an application-level ping.
func BuildPing(now time.Time) ([]byte, error) {
	return Marshal(Ping{Type: TypePing, Timestamp: now.UTC().Format(time.RFC3339)})
}

// BuildPong constructs the answer to a ping.
func BuildPong(now time.Time) ([]byte, error) {
	return Marshal(Pong{Type: TypePong, Timestamp: now.UTC().Format(time.RFC3339)})
}

// BuildCommand constructs a command for the device's command layer.
func BuildCommand(command string, params any) ([]byte, error) {
	msg := Command{Type: TypeCommand, Command: command}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		msg.Params = raw
	}
	return Marshal(msg)
}
