package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/muurk/relaynode/internal/clock"
	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/link"
	"github.com/muurk/relaynode/internal/provisioning"
	"github.com/muurk/relaynode/internal/ratelimit"
	"github.com/muurk/relaynode/internal/transport"
)

// SettingsVersion is the only settings file format understood.
const SettingsVersion = 1

// Settings holds the agent's host-side tuning. Device configuration (WiFi,
// backend, secrets) lives in the NVS store, never here.
type Settings struct {
	Version int `yaml:"version"`

	// DataFile is the NVS store holding the device configuration. Empty
	// means device.yaml in the config directory.
	DataFile string `yaml:"data_file,omitempty"`

	Link         LinkSettings         `yaml:"link"`
	Provisioning ProvisioningSettings `yaml:"provisioning"`
	Backend      BackendSettings      `yaml:"backend"`
}

// LinkSettings tunes the backend link and its websocket transport.
type LinkSettings struct {
	Path               string        `yaml:"path"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	PongTimeout        time.Duration `yaml:"pong_timeout"`
	MissedPongs        int           `yaml:"missed_pongs"`
	InitialBackoff     time.Duration `yaml:"initial_backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff"`
	JitterBound        time.Duration `yaml:"jitter_bound"`
	LimiterCapacity    uint32        `yaml:"limiter_capacity"`
	LimiterInterval    time.Duration `yaml:"limiter_interval"`
	ForwardBinary      bool          `yaml:"forward_binary"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// ProvisioningSettings tunes the provisioning menu and its methods.
type ProvisioningSettings struct {
	SelectionTimeout    time.Duration `yaml:"selection_timeout"`
	MaxRetries          int           `yaml:"max_retries"`
	StringPromptTimeout time.Duration `yaml:"string_prompt_timeout"`
	TokenPromptTimeout  time.Duration `yaml:"token_prompt_timeout"`

	WebFormAddr    string        `yaml:"webform_addr"`
	WebFormTimeout time.Duration `yaml:"webform_timeout"`
	Advertise      bool          `yaml:"advertise"` // announce the web form over mDNS

	StorageDir string `yaml:"storage_dir"` // removable storage mount point

	MQTTBroker    string        `yaml:"mqtt_broker,omitempty"` // empty disables remote push
	RemoteTimeout time.Duration `yaml:"remote_timeout"`

	SerialPort string `yaml:"serial_port,omitempty"` // empty uses the terminal
	SerialBaud int    `yaml:"serial_baud"`
}

// BackendSettings configures the mock backend started by "relaynode backend".
type BackendSettings struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Secret      string `yaml:"secret,omitempty"`
	CertPath    string `yaml:"cert_path,omitempty"`
	KeyPath     string `yaml:"key_path,omitempty"`
	AnalysisDir string `yaml:"analysis_dir,omitempty"`
}

// DefaultSettings returns the stock settings.
func DefaultSettings() *Settings {
	return &Settings{
		Version: SettingsVersion,
		Link: LinkSettings{
			Path:            link.DefaultPath,
			PingInterval:    transport.DefaultPingInterval,
			PongTimeout:     transport.DefaultPongTimeout,
			MissedPongs:     transport.DefaultMissedPongs,
			InitialBackoff:  link.InitialBackoff,
			MaxBackoff:      link.MaxBackoff,
			JitterBound:     link.JitterBound,
			LimiterCapacity: link.DefaultLimiterCapacity,
			LimiterInterval: link.DefaultLimiterInterval,
		},
		Provisioning: ProvisioningSettings{
			SelectionTimeout:    provisioning.DefaultSelectionTimeout,
			MaxRetries:          provisioning.DefaultMaxRetries,
			StringPromptTimeout: provisioning.DefaultStringPromptTimeout,
			TokenPromptTimeout:  provisioning.DefaultTokenPromptTimeout,
			WebFormAddr:         provisioning.DefaultWebFormAddr,
			WebFormTimeout:      provisioning.DefaultWebFormTimeout,
			Advertise:           true,
			StorageDir:          "/media/sd",
			RemoteTimeout:       provisioning.DefaultRemoteTimeout,
			SerialBaud:          provisioning.DefaultBaudRate,
		},
		Backend: BackendSettings{
			Host: "0.0.0.0",
			Port: deviceconfig.DefaultBackendPort,
		},
	}
}

// Validate checks the settings and returns every problem found.
func (s *Settings) Validate() []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.Version != SettingsVersion {
		add("unsupported settings version: %d (expected %d)", s.Version, SettingsVersion)
	}

	l := s.Link
	if !strings.HasPrefix(l.Path, "/") {
		add("link.path must start with '/', got %q", l.Path)
	}
	if l.PingInterval <= 0 {
		add("link.ping_interval must be positive")
	}
	if l.PongTimeout <= 0 {
		add("link.pong_timeout must be positive")
	}
	if l.MissedPongs < 1 {
		add("link.missed_pongs must be at least 1")
	}
	if l.InitialBackoff <= 0 {
		add("link.initial_backoff must be positive")
	}
	if l.MaxBackoff < l.InitialBackoff {
		add("link.max_backoff (%s) is below link.initial_backoff (%s)", l.MaxBackoff, l.InitialBackoff)
	}
	if l.LimiterCapacity == 0 {
		add("link.limiter_capacity must be at least 1")
	}
	if l.LimiterInterval <= 0 {
		add("link.limiter_interval must be positive")
	}

	p := s.Provisioning
	if p.SelectionTimeout <= 0 {
		add("provisioning.selection_timeout must be positive")
	}
	if p.MaxRetries < 1 {
		add("provisioning.max_retries must be at least 1")
	}
	if p.StringPromptTimeout <= 0 || p.TokenPromptTimeout <= 0 {
		add("provisioning prompt timeouts must be positive")
	}
	if p.WebFormTimeout <= 0 || p.RemoteTimeout <= 0 {
		add("provisioning method timeouts must be positive")
	}
	if p.MQTTBroker != "" {
		if u, err := url.Parse(p.MQTTBroker); err != nil || u.Scheme == "" || u.Host == "" {
			add("provisioning.mqtt_broker must be a URL such as tcp://broker:1883, got %q", p.MQTTBroker)
		}
	}
	if p.SerialBaud <= 0 {
		add("provisioning.serial_baud must be positive")
	}

	if s.Backend.Port < 0 || s.Backend.Port > 65535 {
		add("backend.port must be 0-65535, got %d", s.Backend.Port)
	}
	if (s.Backend.CertPath == "") != (s.Backend.KeyPath == "") {
		add("backend.cert_path and backend.key_path must be set together")
	}

	return errs
}

// LinkConfig returns the link manager tuning.
func (s *Settings) LinkConfig() link.Config {
	return link.Config{
		InitialBackoff: s.Link.InitialBackoff,
		MaxBackoff:     s.Link.MaxBackoff,
		JitterBound:    s.Link.JitterBound,
		ForwardBinary:  s.Link.ForwardBinary,
	}
}

// Limiter returns the reconnect limiter described by the settings.
func (s *Settings) Limiter(clk clock.Clock) *ratelimit.Limiter {
	return ratelimit.New(clk, s.Link.LimiterCapacity, s.Link.LimiterInterval)
}

// TransportConfig returns the websocket transport tuning.
func (s *Settings) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.PingInterval = s.Link.PingInterval
	cfg.PongTimeout = s.Link.PongTimeout
	cfg.MissedPongs = s.Link.MissedPongs
	cfg.InsecureSkipVerify = s.Link.InsecureSkipVerify
	return cfg
}

// ProvisioningConfig returns the coordinator tuning with the compiled
// defaults.
func (s *Settings) ProvisioningConfig() provisioning.Config {
	return provisioning.Config{
		SelectionTimeout: s.Provisioning.SelectionTimeout,
		MaxRetries:       s.Provisioning.MaxRetries,
		Defaults:         provisioning.CompiledDefaults(),
	}
}
