package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/logging"
)

// Advertiser announces the provisioning web form over mDNS so that
// "relaynode scan" and phones on the access point can find it.
type Advertiser struct {
	// Version is published in the "vers" TXT record.
	Version string
}

// NewAdvertiser creates an advertiser publishing version in its TXT record.
func NewAdvertiser(version string) *Advertiser {
	return &Advertiser{Version: version}
}

// TXTRecords returns the TXT records published with each announcement.
func (a *Advertiser) TXTRecords() []string {
	txt := []string{"path=/"}
	if a.Version != "" {
		txt = append(txt, "vers="+a.Version)
	}
	return txt
}

// Advertise registers instance on port until the returned stop function is
// called.
func (a *Advertiser) Advertise(instance string, port int) (func(), error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, a.TXTRecords(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising provisioning form",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)

	return func() {
		server.Shutdown()
		logging.Debug("mDNS advertisement withdrawn", zap.String("instance", instance))
	}, nil
}
