package provisioning

import (
	"errors"

	"github.com/muurk/relaynode/internal/deviceconfig"
)

// ErrInvalidDefaults is returned when the compiled development defaults do
// not pass candidate validation. It indicates a broken build, not an
// operator mistake.
var ErrInvalidDefaults = errors.New("compiled defaults are invalid")

// Development values installed when nobody provisions the device. They
// are not secret and must never reach a production deployment.
const (
	devWiFiSSID     = "relaynode-dev"
	devWiFiPassword = "relaynode-dev-pass"
	devBackendHost  = "127.0.0.1"
	devDeviceSecret = "dev-insecure-secret-0000000000000000000000000000"
	devOTAPassword  = "ota_password"
)

// CompiledDefaults returns the development configuration record.
func CompiledDefaults() deviceconfig.ConfigRecord {
	return deviceconfig.ConfigRecord{
		WiFiSSID:     devWiFiSSID,
		WiFiPassword: devWiFiPassword,
		BackendHost:  devBackendHost,
		BackendPort:  deviceconfig.DefaultBackendPort,
		UseTLS:       false,
		DeviceSecret: devDeviceSecret,
		DeviceName:   deviceconfig.DefaultDeviceName,
		OTAPassword:  devOTAPassword,
	}
}
