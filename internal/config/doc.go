// Package config manages the relaynode agent settings file.
//
// Settings are host-side tuning only: link timing and backoff, the
// reconnect limiter, provisioning timeouts and method endpoints, and the
// mock backend used for bench testing. The device configuration itself
// (WiFi credentials, backend endpoint, secrets) lives in the NVS store
// managed by package deviceconfig and is never written here.
//
// # Settings File Location
//
// The settings file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/relaynode/settings.yaml or $HOME/.config/relaynode/settings.yaml
//   - macOS: $HOME/.config/relaynode/settings.yaml
//   - Windows: %LOCALAPPDATA%\relaynode\settings.yaml
//
// The device store defaults to device.yaml next to it.
//
// # Usage Example
//
//	settings, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if errs := settings.Validate(); len(errs) > 0 {
//	    log.Fatal(errs[0])
//	}
//	ws := transport.NewWebSocket(settings.TransportConfig())
//
// Missing files yield defaults, and writes go through a temporary file and
// a rename.
package config
