package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muurk/relaynode/internal/backendsim"
	"github.com/muurk/relaynode/internal/config"
	"github.com/muurk/relaynode/internal/discovery"
	"github.com/muurk/relaynode/internal/ui"
)

// Tool command flags
var (
	scanTimeout   int
	backendPort   int
	backendSecret string
	settingsForce bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(backendCmd)
	rootCmd.AddCommand(settingsCmd)
	backendCmd.AddCommand(analyzeCmd)
	settingsCmd.AddCommand(settingsInitCmd)
	settingsCmd.AddCommand(settingsShowCmd)

	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan timeout in seconds")
	backendCmd.Flags().IntVar(&backendPort, "port", 0, "Listen port (default: backend.port)")
	backendCmd.Flags().StringVar(&backendSecret, "secret", "", "Expected device secret (default: backend.secret)")
	settingsInitCmd.Flags().BoolVar(&settingsForce, "force", false, "Overwrite an existing settings file")
}

// scanCmd discovers agents serving the provisioning web form
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for devices waiting for provisioning",
	Long: `Browse mDNS for relaynode agents running the WiFi access point
provisioning method (provisioning.advertise must be enabled on the device).`,
	Example: `  # Scan for 10 seconds (default)
  relaynode scan

  # Quick 3-second scan
  relaynode scan --timeout 3`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("Scan", "relaynode scan", map[string]string{
		"Service": discovery.ServiceType,
		"Timeout": fmt.Sprintf("%ds", scanTimeout),
	})

	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(scanTimeout) * time.Second

	devices, err := scanner.ScanForDevices(cmd.Context())
	if err != nil {
		p.PrintError("Scan failed", err, []string{
			"Check that multicast is allowed on this interface",
			"Firewalls must allow mDNS (UDP port 5353)",
		})
		return err
	}

	if len(devices) == 0 {
		p.PrintWarning("No devices found", nil)
		p.PrintMuted("  Devices only announce themselves while the web form method is running.")
		return nil
	}

	for _, device := range devices {
		details := map[string]string{
			"Address": fmt.Sprintf("%s:%d", device.IP, device.Port),
			"Form":    device.FormURL(),
		}
		if v := device.GetMetadata("vers"); v != "" {
			details["Version"] = v
		}
		p.PrintSuccess(device.Name, details)
	}
	return nil
}

// backendCmd starts the mock backend
var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Start a mock backend for bench testing",
	Long: `Start a websocket server that speaks the backend side of the link
protocol: it authenticates identify messages against a shared secret,
answers pings and logs everything devices send.

TLS is enabled when backend.cert_path and backend.key_path are set. Set
backend.analysis_dir to capture device messages as JSONL.`,
	Example: `  # Accept any device on port 3001
  relaynode backend

  # Require a secret
  relaynode backend --secret bench-secret --log-level info`,
	RunE: runBackend,
}

func runBackend(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	b := settings.Backend
	if backendPort != 0 {
		b.Port = backendPort
	}
	if backendSecret != "" {
		b.Secret = backendSecret
	}

	srv, err := backendsim.New(&backendsim.Config{
		Host:        b.Host,
		Port:        b.Port,
		Path:        settings.Link.Path,
		CertPath:    b.CertPath,
		KeyPath:     b.KeyPath,
		Secret:      b.Secret,
		AnalysisDir: b.AnalysisDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	tlsMode := "off"
	if b.CertPath != "" {
		tlsMode = "on"
	}
	auth := "any device"
	if b.Secret != "" {
		auth = "shared secret"
	}
	ui.NewPrinter(cmd.OutOrStdout()).PrintHeader("Mock backend", "relaynode backend", map[string]string{
		"Listen": backendAddr(b.Host, b.Port),
		"Path":   settings.Link.Path,
		"TLS":    tlsMode,
		"Auth":   auth,
	})

	return srv.Start()
}

// analyzeCmd summarizes a capture file written by the mock backend
var analyzeCmd = &cobra.Command{
	Use:     "analyze <capture.jsonl>",
	Short:   "Summarize a message capture",
	Args:    cobra.ExactArgs(1),
	Example: `  relaynode backend analyze ./captures/capture-20250102.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, summary, err := backendsim.ReadCaptures(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}

		details := map[string]string{
			"Messages": fmt.Sprintf("%d", summary.Messages),
			"Binary":   fmt.Sprintf("%d", summary.Binary),
			"Devices":  fmt.Sprintf("%d", len(summary.ByDevice)),
		}
		if len(records) > 0 {
			details["Span"] = summary.Last.Sub(summary.First).Round(time.Second).String()
		}
		for _, t := range summary.Types() {
			details["type "+t] = fmt.Sprintf("%d", summary.ByType[t])
		}

		p := ui.NewPrinter(cmd.OutOrStdout())
		if summary.Malformed > 0 || summary.Unparsed > 0 {
			details["Malformed lines"] = fmt.Sprintf("%d", summary.Malformed)
			details["Unparsed payloads"] = fmt.Sprintf("%d", summary.Unparsed)
			p.PrintWarning(args[0], details)
			return nil
		}
		p.PrintSuccess(args[0], details)
		return nil
	},
}

// settingsCmd groups the settings file commands
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage the settings file",
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedSettingsPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !settingsForce {
			return fmt.Errorf("settings file already exists: %s (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cannot access settings file: %w", err)
		}

		if err := config.DefaultSettings().Save(path); err != nil {
			return err
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Settings written", map[string]string{"File": path})
		return nil
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(settingsPath)
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))

		p := ui.NewPrinter(cmd.OutOrStdout())
		if errs := settings.Validate(); len(errs) > 0 {
			for _, e := range errs {
				p.Println(ui.WarningTitleStyle.Render(ui.WarningMarker + " " + e.Error()))
			}
		}
		if path, err := settings.DataPath(); err == nil {
			p.PrintMuted("# data file: " + path)
		}
		return nil
	},
}

func resolvedSettingsPath() (string, error) {
	if settingsPath != "" {
		return settingsPath, nil
	}
	return config.GetConfigPath()
}
