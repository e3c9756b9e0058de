package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types exchanged over the backend link.
const (
	TypeIdentify     = "identify"
	TypeIdentified   = "identified"
	TypeError        = "error"
	TypeConfigUpdate = "config_update"
	TypeConfigAck    = "config_ack"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeCommand      = "command"
	TypeStatus       = "status"
)

// DeviceType identifies this agent in identify messages.
const DeviceType = "relaynode"

// ErrMissingType is returned for JSON objects without a "type" field.
var ErrMissingType = errors.New("message has no type")

// Envelope is the part every message shares. Raw holds the full message
// so that handlers can decode their own type.
type Envelope struct {
	Type string `json:"type"`
	Raw  []byte `json:"-"`
}

// Identify is sent by the device right after the link comes up.
type Identify struct {
	Type       string `json:"type"`
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	Secret     string `json:"secret"`
	SessionID  string `json:"sessionId"`
	Timestamp  string `json:"timestamp"`
}

// Identified is the backend's answer to a valid Identify.
type Identified struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Message      string `json:"message,omitempty"`
}

// ErrorMessage reports a backend-side failure.
type ErrorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ConfigUpdate pushes a partial provisioning document over the live link.
type ConfigUpdate struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// ConfigAck answers a ConfigUpdate.
type ConfigAck struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Version uint32 `json:"version,omitempty"`
}

// Ping and Pong are application-level liveness probes, separate from the
// websocket control frames.
type Ping struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Pong answers a Ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Command is handed to the command layer untouched.
type Command struct {
	Type    string          `json:"type"`
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Parse reads the type of a message. data must be a JSON object with a
// non-empty "type" field.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid message JSON: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	env.Raw = data
	return env, nil
}

// Decode unmarshals a full message of a known type.
func Decode[T any](data []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("failed to decode %T: %w", msg, err)
	}
	return msg, nil
}
