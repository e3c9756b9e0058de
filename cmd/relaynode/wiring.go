package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/muurk/relaynode/internal/agent"
	"github.com/muurk/relaynode/internal/clock"
	"github.com/muurk/relaynode/internal/config"
	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/discovery"
	"github.com/muurk/relaynode/internal/logging"
	"github.com/muurk/relaynode/internal/nvs"
	"github.com/muurk/relaynode/internal/provisioning"
	"github.com/muurk/relaynode/internal/transport"
	"github.com/muurk/relaynode/internal/version"
)

// loadSettings reads and validates the settings file.
func loadSettings() (*config.Settings, error) {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}
	if errs := settings.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid settings:\n%s", deviceconfig.FormatValidationErrors(errs))
	}
	return settings, nil
}

// openStore opens the NVS-backed configuration store named by settings.
func openStore(settings *config.Settings) (*deviceconfig.Store, string, error) {
	path, err := settings.DataPath()
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve data file: %w", err)
	}
	return deviceconfig.NewStore(nvs.NewFile(path)), path, nil
}

// openConsole returns the operator console: the configured serial port, or
// the terminal when interactive is set. It returns nil when neither is
// available.
func openConsole(settings *config.Settings, interactive bool) (*provisioning.LineConsole, error) {
	if settings.Provisioning.SerialPort != "" {
		return provisioning.OpenSerialConsole(settings.Provisioning.SerialPort, settings.Provisioning.SerialBaud)
	}
	if !interactive {
		return nil, nil
	}
	return provisioning.NewReadlineConsole()
}

// deviceName is the name used for mDNS and MQTT before a record exists.
func deviceName(store *deviceconfig.Store) string {
	if name := store.Current().DeviceName; name != "" {
		return name
	}
	return deviceconfig.DefaultDeviceName
}

// buildAgent wires an agent and its provisioning methods from settings.
func buildAgent(settings *config.Settings, store *deviceconfig.Store, console *provisioning.LineConsole) *agent.Agent {
	clk := clock.NewSystem()

	cfg := agent.DefaultConfig()
	cfg.Link = settings.LinkConfig()
	cfg.Provisioning = settings.ProvisioningConfig()
	cfg.Path = settings.Link.Path
	cfg.Limiter = settings.Limiter(clk)

	var c provisioning.Console
	if console != nil {
		c = console
	}
	a := agent.New(store, transport.NewWebSocket(settings.TransportConfig()), clk, c, cfg)

	// Best effort: the name is only used to label the web form and the
	// remote push topic.
	_, _ = store.Load()
	name := deviceName(store)

	p := settings.Provisioning
	if console != nil {
		a.Register(provisioning.NewConsoleMethod(console, p.StringPromptTimeout, p.TokenPromptTimeout))
	}

	var advertiser provisioning.Advertiser
	if p.Advertise {
		advertiser = discovery.NewAdvertiser(version.Version)
	}
	a.Register(provisioning.NewWebFormMethod(p.WebFormAddr, name, p.WebFormTimeout, advertiser))

	a.Register(provisioning.NewStorageMethod(afero.NewOsFs(), p.StorageDir))

	if p.MQTTBroker != "" {
		broker := p.MQTTBroker
		clientID := "relaynode-" + name
		a.Register(provisioning.NewRemoteMethod(func() provisioning.Subscriber {
			return provisioning.NewMQTTSubscriber(broker, clientID)
		}, provisioning.ProvisionTopic(name), p.RemoteTimeout))
	}

	logging.Debug("Agent wired",
		zap.String("device", name),
		zap.Bool("console", console != nil),
		zap.Bool("advertise", p.Advertise),
		zap.Bool("remote_push", p.MQTTBroker != ""),
	)
	return a
}

// backendAddr formats a host and port for display.
func backendAddr(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// stdinIsTerminal reports whether stdin is an interactive terminal.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
