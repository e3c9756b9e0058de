package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/muurk/relaynode/internal/agent"
	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/link"
	"github.com/muurk/relaynode/internal/ui"
)

// Device command flags
var (
	runMonitor      bool
	provisionMethod string
	outputFormat    string
	resetForce      bool
	storageDir      string
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)

	runCmd.Flags().BoolVar(&runMonitor, "monitor", false, "Show a live view of the link state")
	provisionCmd.Flags().StringVar(&provisionMethod, "method", "", "Skip the menu and use a method (serial, wifi-ap, removable-storage, remote-push, compiled-defaults)")
	showCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip the confirmation prompt")
	backupCmd.Flags().StringVar(&storageDir, "dir", "", "Backup directory (default: provisioning.storage_dir)")
	restoreCmd.Flags().StringVar(&storageDir, "dir", "", "Backup directory (default: provisioning.storage_dir)")
}

// runCmd runs the agent until interrupted
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent",
	Long: `Load the stored configuration and keep the backend link up.

Without a usable configuration the provisioning menu is offered first. With
--monitor a live status view replaces the log output; the serial console
(provisioning.serial_port) is then the only interactive provisioning input.`,
	Example: `  # Run in the foreground
  relaynode run

  # Live status view
  relaynode run --monitor

  # Verbose link logging
  relaynode run --log-level debug`,
	RunE: runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, dataPath, err := openStore(settings)
	if err != nil {
		return err
	}
	console, err := openConsole(settings, !runMonitor && stdinIsTerminal())
	if err != nil {
		return err
	}
	if console != nil {
		defer console.Close()
	}

	a := buildAgent(settings, store, console)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !runMonitor {
		p := ui.NewPrinter(cmd.OutOrStdout())
		p.PrintHeader("Agent", "relaynode run", map[string]string{
			"Data file": dataPath,
			"Path":      settings.Link.Path,
		})
		a.Observe(statusPrinter(p))
		return a.Run(ctx)
	}

	mon := ui.NewMonitor(cmd.OutOrStdout())
	a.Observe(mon.Update)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
		mon.Stop()
	}()

	monErr := mon.Run()
	cancel()
	if err := <-errCh; err != nil {
		return err
	}
	return monErr
}

// statusPrinter prints one line per agent mode or link state change.
func statusPrinter(p *ui.Printer) func(agent.Status) {
	var (
		last    agent.Status
		started bool
	)
	return func(st agent.Status) {
		if started && st.Mode == last.Mode && st.Link == last.Link && st.ConnID == last.ConnID {
			return
		}
		started = true
		last = st

		stamp := time.Now().Format("15:04:05")
		switch {
		case st.Mode != agent.ModeOnline:
			p.Println(fmt.Sprintf("  %s  %s", ui.MutedStyle.Render(stamp), ui.WarningTitleStyle.Render(st.Mode.String())))
		case st.Link == link.StateConnected && st.ConnID != "":
			p.Println(fmt.Sprintf("  %s  %s %s (connection %s)", ui.MutedStyle.Render(stamp),
				ui.LinkStateStyle(st.Link).Render(st.Link.String()), st.Target, st.ConnID))
		default:
			p.Println(fmt.Sprintf("  %s  %s %s", ui.MutedStyle.Render(stamp),
				ui.LinkStateStyle(st.Link).Render(st.Link.String()), st.Target))
		}
	}
}

// provisionCmd runs one provisioning pass and exits
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision the device configuration",
	Long: `Run one provisioning pass and commit the result to the store.

Without --method the menu is shown on the console. If no choice is made
before provisioning.selection_timeout, or too many methods fail, the
compiled development defaults are committed.`,
	Example: `  # Choose from the menu
  relaynode provision

  # Read config.json from removable storage
  relaynode provision --method removable-storage

  # Serve the access point web form
  relaynode provision --method wifi-ap`,
	RunE: runProvision,
}

func runProvision(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, dataPath, err := openStore(settings)
	if err != nil {
		return err
	}
	console, err := openConsole(settings, stdinIsTerminal())
	if err != nil {
		return err
	}
	if console != nil {
		defer console.Close()
	}

	a := buildAgent(settings, store, console)

	p := ui.NewPrinter(cmd.OutOrStdout())
	params := map[string]string{"Data file": dataPath}
	if provisionMethod != "" {
		params["Method"] = provisionMethod
	}
	p.PrintHeader("Provisioning", "relaynode provision", params)

	if provisionMethod != "" {
		kind, err := deviceconfig.ParseMethod(provisionMethod)
		if err != nil {
			return err
		}
		if err := a.ProvisionWith(kind); err != nil {
			return err
		}
	} else {
		a.Provision()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.Link().Disconnect()

	ticker := time.NewTicker(agent.DefaultTickInterval)
	defer ticker.Stop()

	for a.Mode() == agent.ModeProvisioning {
		select {
		case <-ctx.Done():
			a.Coordinator().Stop()
			return errors.New("provisioning interrupted")
		case <-ticker.C:
		}
		if err := a.Tick(); err != nil {
			p.PrintError("Provisioning failed", err, hintLines(err))
			return err
		}
	}

	rec := store.Current()
	details := map[string]string{
		"Method":  store.Method().String(),
		"Version": fmt.Sprintf("%d", rec.Version),
		"Backend": rec.Scheme() + "://" + rec.Endpoint(),
		"Device":  rec.DeviceName,
	}
	if store.Method().Insecure() {
		p.PrintWarning("Development defaults committed", details)
		return nil
	}
	p.PrintSuccess("Configuration committed", details)
	return nil
}

// showCmd prints the stored configuration
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored configuration",
	Long: `Print the stored device configuration. Secrets are never printed.

Records provisioned from the compiled defaults carry an insecure banner.`,
	Example: `  relaynode show
  relaynode show --format compact
  relaynode show --format json`,
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, _, err := openStore(settings)
	if err != nil {
		return err
	}

	rec, err := store.Load()
	if err != nil {
		ui.NewPrinter(cmd.ErrOrStderr()).PrintError("No configuration to show", err, hintLines(err))
		return err
	}

	out := cmd.OutOrStdout()
	switch outputFormat {
	case "compact":
		fmt.Fprintln(out, rec.FormatCompact(store.Method()))
	case "json":
		data, err := rec.FormatJSON(store.Method())
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, data)
	case "detailed":
		fmt.Fprintln(out, rec.FormatDetailed(store.Method()))
	default:
		return fmt.Errorf("unknown format %q (detailed, compact, json)", outputFormat)
	}
	return nil
}

// resetCmd erases the stored configuration
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase the stored configuration",
	Long: `Erase the stored device configuration and provisioning method. The
next run starts at the provisioning menu.`,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, dataPath, err := openStore(settings)
	if err != nil {
		return err
	}

	if !resetForce && !ui.ResetConfirmation(cmd.InOrStdin(), cmd.OutOrStdout(), dataPath) {
		return nil
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	if err := store.Reset(); err != nil {
		p.PrintError("Reset failed", err, hintLines(err))
		return err
	}
	p.PrintSuccess("Configuration erased", map[string]string{"Data file": dataPath})
	return nil
}

// backupCmd writes the stored configuration to removable storage
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the configuration to removable storage",
	Long:  `Write the stored configuration to config_backup.json in the storage directory.`,
	RunE:  runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, _, err := openStore(settings)
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	rec, err := store.Load()
	if err != nil {
		p.PrintError("Backup failed", err, hintLines(err))
		return err
	}

	dir := backupDir(settings.Provisioning.StorageDir)
	path, err := deviceconfig.Backup(afero.NewOsFs(), dir, rec, store.Method())
	if err != nil {
		p.PrintError("Backup failed", err, hintLines(err))
		return err
	}

	p.PrintSuccess("Backup written", map[string]string{
		"File":    path,
		"Version": fmt.Sprintf("%d", rec.Version),
	})
	return nil
}

// restoreCmd commits a backup from removable storage
var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the configuration from removable storage",
	Long: `Read config_backup.json from the storage directory, validate it and
commit it. Nothing is written when the backup is invalid.`,
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, _, err := openStore(settings)
	if err != nil {
		return err
	}

	// A missing or damaged record is what restore is for.
	old, _ := store.Load()

	p := ui.NewPrinter(cmd.OutOrStdout())
	rec, err := deviceconfig.Restore(afero.NewOsFs(), backupDir(settings.Provisioning.StorageDir))
	if err != nil {
		p.PrintError("Restore failed", err, hintLines(err))
		return err
	}
	if err := store.CommitWithMethod(rec, deviceconfig.MethodRemovableStorage); err != nil {
		p.PrintError("Restore failed", err, hintLines(err))
		return err
	}

	p.PrintSuccess("Configuration restored", map[string]string{
		"Version": fmt.Sprintf("%d", store.Current().Version),
		"Backend": rec.Scheme() + "://" + rec.Endpoint(),
	})
	p.PrintMuted(deviceconfig.FormatDiff(old, store.Current()))
	return nil
}

func backupDir(fallback string) string {
	if storageDir != "" {
		return storageDir
	}
	return fallback
}

// hintLines returns the troubleshooting bullets of err's hint.
func hintLines(err error) []string {
	if !deviceconfig.IsStorageError(err) && !deviceconfig.IsValidationError(err) &&
		!deviceconfig.IsProvisioningTimeoutError(err) && !deviceconfig.IsConnectionError(err) {
		return nil
	}
	var lines []string
	for _, line := range strings.Split(deviceconfig.GetTroubleshootingHint(err), "\n") {
		if item, ok := strings.CutPrefix(line, "  • "); ok {
			lines = append(lines, item)
		}
	}
	return lines
}
