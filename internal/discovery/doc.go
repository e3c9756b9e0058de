// Package discovery announces and finds relaynode agents over mDNS.
//
// While an agent runs the WiFi access point provisioning method it
// advertises its web form as a "_relaynode-config._tcp" service, using the
// device name as instance name. Scanner browses for that service type so
// an operator can locate agents waiting for configuration.
//
// # Usage Example
//
//	devices, err := discovery.NewScanner().ScanForDevices(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, device := range devices {
//	    fmt.Println(device.Name, device.FormURL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
