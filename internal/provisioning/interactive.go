package provisioning

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/logging"
)

// Console prompt timeouts.
const (
	DefaultStringPromptTimeout = 60 * time.Second
	DefaultTokenPromptTimeout  = 5 * time.Second
)

type promptKind int

const (
	promptString promptKind = iota
	promptPort
	promptBool
)

type prompt struct {
	label string
	kind  promptKind
	apply func(r *deviceconfig.ConfigRecord, line string)
}

var consolePrompts = []prompt{
	{"WiFi SSID: ", promptString, func(r *deviceconfig.ConfigRecord, s string) { r.WiFiSSID = s }},
	{"WiFi Password: ", promptString, func(r *deviceconfig.ConfigRecord, s string) { r.WiFiPassword = s }},
	{"Backend Host: ", promptString, func(r *deviceconfig.ConfigRecord, s string) { r.BackendHost = s }},
	{"Backend Port (default 3001): ", promptPort, func(r *deviceconfig.ConfigRecord, s string) { r.BackendPort = parsePort(s) }},
	{"Use TLS (y/n, default n): ", promptBool, func(r *deviceconfig.ConfigRecord, s string) { r.UseTLS = parseYesNo(s, false) }},
	{"Device Name: ", promptString, func(r *deviceconfig.ConfigRecord, s string) {
		if s == "" {
			s = deviceconfig.DefaultDeviceName
		}
		r.DeviceName = s
	}},
	{"Device Secret: ", promptString, func(r *deviceconfig.ConfigRecord, s string) { r.DeviceSecret = s }},
	{"OTA Password: ", promptString, func(r *deviceconfig.ConfigRecord, s string) { r.OTAPassword = s }},
}

// parsePort keeps the digits of s. Empty or out-of-range input yields the
// default backend port.
func parsePort(s string) uint16 {
	var digits strings.Builder
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	n, err := strconv.ParseUint(digits.String(), 10, 16)
	if err != nil || n == 0 {
		return deviceconfig.DefaultBackendPort
	}
	return uint16(n)
}

// parseYesNo returns true for input starting with y, false for n and def
// otherwise.
func parseYesNo(s string, def bool) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	switch s[0] {
	case 'y', 'Y':
		return true
	case 'n', 'N':
		return false
	}
	return def
}

// ConsoleMethod asks the operator for every field, one prompt at a time.
// String prompts that time out decline the method; port and TLS prompts
// fall back to their defaults.
type ConsoleMethod struct {
	console       Console
	stringTimeout time.Duration
	tokenTimeout  time.Duration

	step      int
	prompted  bool
	wait      deadline
	candidate deviceconfig.ConfigRecord
}

// NewConsoleMethod creates an interactive console method. Zero timeouts
// take the defaults.
func NewConsoleMethod(console Console, stringTimeout, tokenTimeout time.Duration) *ConsoleMethod {
	if stringTimeout <= 0 {
		stringTimeout = DefaultStringPromptTimeout
	}
	if tokenTimeout <= 0 {
		tokenTimeout = DefaultTokenPromptTimeout
	}
	return &ConsoleMethod{
		console:       console,
		stringTimeout: stringTimeout,
		tokenTimeout:  tokenTimeout,
	}
}

// Kind implements Method.
func (m *ConsoleMethod) Kind() deviceconfig.Method {
	return deviceconfig.MethodSerial
}

// Start implements Method.
func (m *ConsoleMethod) Start(now uint32) error {
	m.step = 0
	m.prompted = false
	m.candidate = deviceconfig.ConfigRecord{}
	m.console.Println("")
	m.console.Println("=== Console Configuration ===")
	return nil
}

// Poll implements Method. At most one prompt is answered per call.
func (m *ConsoleMethod) Poll(now uint32) Result {
	if m.step >= len(consolePrompts) {
		return ready(m.candidate)
	}

	p := consolePrompts[m.step]
	if !m.prompted {
		m.console.Print(p.label)
		timeout := m.stringTimeout
		if p.kind != promptString {
			timeout = m.tokenTimeout
		}
		m.wait.arm(now, timeout)
		m.prompted = true
	}

	line, ok := m.console.Line()
	switch {
	case ok:
		p.apply(&m.candidate, strings.TrimSpace(line))
	case m.wait.expired(now):
		if p.kind == promptString {
			m.console.Println("")
			logging.LogProvisioning(m.Kind().String(), "prompt_timeout",
				zap.String("prompt", strings.TrimSuffix(p.label, ": ")))
			return declined(deviceconfig.NewProvisioningTimeoutError(m.Kind()))
		}
		m.console.Println("")
		p.apply(&m.candidate, "")
	default:
		return pending()
	}

	m.step++
	m.prompted = false
	if m.step >= len(consolePrompts) {
		return ready(m.candidate)
	}
	return pending()
}

// Stop implements Method. The console stays open; it is shared with the
// method menu.
func (m *ConsoleMethod) Stop() {}
