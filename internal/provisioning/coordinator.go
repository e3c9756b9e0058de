package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/clock"
	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/logging"
)

// Coordinator defaults.
const (
	DefaultSelectionTimeout = 10 * time.Second
	DefaultMaxRetries       = 3
)

// Phase is the coordinator's position in a provisioning pass.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSelectingMethod
	PhaseRunningMethod
	PhaseCommitting
	PhaseDone
	PhaseFailed
)

// String returns a human-readable name for the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSelectingMethod:
		return "selecting-method"
	case PhaseRunningMethod:
		return "running-method"
	case PhaseCommitting:
		return "committing"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Committer persists a validated candidate. *deviceconfig.Store satisfies
// it.
type Committer interface {
	CommitWithMethod(candidate deviceconfig.ConfigRecord, method deviceconfig.Method) error
}

// Config tunes a Coordinator.
type Config struct {
	// SelectionTimeout bounds the menu wait. When it expires the compiled
	// defaults are committed.
	SelectionTimeout time.Duration

	// MaxRetries is the number of failed or declined methods tolerated
	// before falling back to the compiled defaults.
	MaxRetries int

	// Defaults is the development record committed on fallback.
	Defaults deviceconfig.ConfigRecord
}

// DefaultConfig returns the stock coordinator configuration.
func DefaultConfig() Config {
	return Config{
		SelectionTimeout: DefaultSelectionTimeout,
		MaxRetries:       DefaultMaxRetries,
		Defaults:         CompiledDefaults(),
	}
}

type menuEntry struct {
	key   string
	kind  deviceconfig.Method
	label string
}

var menu = []menuEntry{
	{"1", deviceconfig.MethodSerial, "Serial console (interactive)"},
	{"2", deviceconfig.MethodWifiAccessPoint, "WiFi access point (web form)"},
	{"3", deviceconfig.MethodRemovableStorage, "Removable storage (config.json)"},
	{"4", deviceconfig.MethodRemotePush, "Remote push (MQTT)"},
	{"5", deviceconfig.MethodCompiledDefaults, "Development defaults"},
}

func menuChoice(choice string) (deviceconfig.Method, bool) {
	for _, e := range menu {
		if e.key == choice {
			return e.kind, true
		}
	}
	return deviceconfig.MethodNone, false
}

// Coordinator runs provisioning passes: it offers the method menu, drives
// the chosen method, validates its candidate and commits it. Every step
// happens inside Tick.
type Coordinator struct {
	store   Committer
	clk     clock.Clock
	console Console
	cfg     Config
	methods map[deviceconfig.Method]Method

	phase     Phase
	window    deadline
	active    Method
	candidate deviceconfig.ConfigRecord
	pending   deviceconfig.Method
	committed deviceconfig.Method
	failures  int
	err       error
}

// NewCoordinator creates an idle coordinator. console may be nil, in which
// case the menu can only time out. Zero timeout and retry values take the
// defaults; cfg.Defaults is used as given.
func NewCoordinator(store Committer, clk clock.Clock, console Console, cfg Config) *Coordinator {
	if cfg.SelectionTimeout <= 0 {
		cfg.SelectionTimeout = DefaultSelectionTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Coordinator{
		store:   store,
		clk:     clk,
		console: console,
		cfg:     cfg,
		methods: make(map[deviceconfig.Method]Method),
	}
}

// Register makes m selectable from the menu, replacing any method of the
// same kind.
func (c *Coordinator) Register(m Method) {
	c.methods[m.Kind()] = m
}

// Available reports whether a method of the given kind can be selected.
func (c *Coordinator) Available(kind deviceconfig.Method) bool {
	if kind == deviceconfig.MethodCompiledDefaults {
		return true
	}
	_, ok := c.methods[kind]
	return ok
}

// Start begins a provisioning pass at the method menu.
func (c *Coordinator) Start() {
	c.reset()
	c.enterSelecting(c.clk.Millis())
}

// StartWith begins a provisioning pass with a preselected method, skipping
// the menu. A failing method still falls back to the menu.
func (c *Coordinator) StartWith(kind deviceconfig.Method) error {
	c.reset()
	if kind == deviceconfig.MethodCompiledDefaults {
		c.commitDefaults()
		return c.err
	}
	m, ok := c.methods[kind]
	if !ok {
		return fmt.Errorf("provisioning method %s is not available", kind)
	}
	c.startMethod(m, c.clk.Millis())
	return nil
}

func (c *Coordinator) reset() {
	c.Stop()
	c.failures = 0
	c.err = nil
	c.committed = deviceconfig.MethodNone
}

// Tick advances the pass and returns the resulting phase.
func (c *Coordinator) Tick() Phase {
	now := c.clk.Millis()
	switch c.phase {
	case PhaseSelectingMethod:
		c.tickSelecting(now)
	case PhaseRunningMethod:
		c.tickRunning(now)
	case PhaseCommitting:
		c.commitCandidate()
	}
	return c.phase
}

// Run ticks the coordinator every interval until the pass ends or ctx is
// cancelled.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		switch c.Tick() {
		case PhaseDone:
			return nil
		case PhaseFailed:
			return c.err
		case PhaseIdle:
			return fmt.Errorf("provisioning not started")
		}

		select {
		case <-ctx.Done():
			c.Stop()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stop abandons the current pass.
func (c *Coordinator) Stop() {
	if c.active != nil {
		c.active.Stop()
		c.active = nil
	}
	c.phase = PhaseIdle
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	return c.phase
}

// Done reports whether the last pass committed a record.
func (c *Coordinator) Done() bool {
	return c.phase == PhaseDone
}

// Err returns the error that ended the pass in PhaseFailed.
func (c *Coordinator) Err() error {
	return c.err
}

// Method returns how the committed record was provisioned.
func (c *Coordinator) Method() deviceconfig.Method {
	return c.committed
}

// Failures returns the number of failed methods in the current pass.
func (c *Coordinator) Failures() int {
	return c.failures
}

func (c *Coordinator) tickSelecting(now uint32) {
	if c.console != nil {
		if line, ok := c.console.Line(); ok {
			c.choose(strings.TrimSpace(line), now)
			return
		}
	}
	if c.window.expired(now) {
		c.println("")
		c.println("Timeout - using development defaults")
		logging.LogProvisioning("menu", "selection_timeout")
		c.commitDefaults()
	}
}

func (c *Coordinator) choose(choice string, now uint32) {
	kind, ok := menuChoice(choice)
	if !ok {
		c.println(fmt.Sprintf("Invalid choice. Please select 1-%d.", len(menu)))
		c.print(selectPrompt())
		return
	}
	if kind == deviceconfig.MethodCompiledDefaults {
		c.commitDefaults()
		return
	}
	m, ok := c.methods[kind]
	if !ok {
		c.println(fmt.Sprintf("%s is not available on this device.", kind))
		c.print(selectPrompt())
		return
	}
	c.startMethod(m, now)
}

func (c *Coordinator) startMethod(m Method, now uint32) {
	logging.LogProvisioning(m.Kind().String(), "start")
	if err := m.Start(now); err != nil {
		c.fail(m.Kind(), err)
		return
	}
	c.active = m
	c.setPhase(PhaseRunningMethod)
}

func (c *Coordinator) tickRunning(now uint32) {
	res := c.active.Poll(now)
	if res.Status == StatusPending {
		return
	}

	kind := c.active.Kind()
	c.active.Stop()
	c.active = nil

	if res.Status == StatusDeclined {
		c.fail(kind, res.Err)
		return
	}

	c.candidate = res.Candidate
	c.pending = kind
	c.setPhase(PhaseCommitting)
	c.commitCandidate()
}

func (c *Coordinator) commitCandidate() {
	if err := deviceconfig.CheckCandidate(c.candidate); err != nil {
		c.fail(c.pending, err)
		return
	}
	if err := c.store.CommitWithMethod(c.candidate, c.pending); err != nil {
		c.fail(c.pending, err)
		return
	}
	c.finish(c.pending)
}

func (c *Coordinator) fail(kind deviceconfig.Method, err error) {
	c.failures++
	logging.LogProvisioning(kind.String(), "failed",
		zap.Int("failures", c.failures),
		zap.Int("max_retries", c.cfg.MaxRetries),
		zap.Error(err))
	c.println(fmt.Sprintf("%s provisioning failed: %s", kind, deviceconfig.GetShortErrorMessage(err)))

	if c.failures >= c.cfg.MaxRetries {
		c.println("Too many failed attempts - using development defaults")
		c.commitDefaults()
		return
	}
	c.enterSelecting(c.clk.Millis())
}

func (c *Coordinator) commitDefaults() {
	defaults := c.cfg.Defaults
	if err := deviceconfig.CheckCandidate(defaults); err != nil {
		c.err = fmt.Errorf("%w: %v", ErrInvalidDefaults, err)
		logging.Error("Compiled defaults failed validation", zap.Error(err))
		c.setPhase(PhaseFailed)
		return
	}

	c.println("WARNING: using development defaults - NOT SECURE FOR PRODUCTION")
	logging.Warn("Using compiled development defaults",
		zap.String("backend", defaults.Endpoint()),
		zap.String("device_name", defaults.DeviceName))

	c.candidate = defaults
	c.pending = deviceconfig.MethodCompiledDefaults
	c.setPhase(PhaseCommitting)
	if err := c.store.CommitWithMethod(defaults, deviceconfig.MethodCompiledDefaults); err != nil {
		c.err = err
		logging.Error("Failed to commit compiled defaults", zap.Error(err))
		c.setPhase(PhaseFailed)
		return
	}
	c.finish(deviceconfig.MethodCompiledDefaults)
}

func (c *Coordinator) finish(kind deviceconfig.Method) {
	c.committed = kind
	c.println("Configuration saved.")
	logging.LogProvisioning(kind.String(), "committed")
	c.setPhase(PhaseDone)
}

func (c *Coordinator) enterSelecting(now uint32) {
	c.window.arm(now, c.cfg.SelectionTimeout)
	c.println("")
	c.println("=== relaynode configuration setup ===")
	c.println("Available configuration methods:")
	for _, e := range menu {
		label := e.label
		if !c.Available(e.kind) {
			label += " (unavailable)"
		}
		c.println(fmt.Sprintf("%s. %s", e.key, label))
	}
	c.print(selectPrompt())
	c.setPhase(PhaseSelectingMethod)
}

func selectPrompt() string {
	return fmt.Sprintf("Select method (1-%d): ", len(menu))
}

func (c *Coordinator) setPhase(p Phase) {
	if c.phase == p {
		return
	}
	logging.Debug("Provisioning phase change",
		zap.String("from", c.phase.String()),
		zap.String("to", p.String()))
	c.phase = p
}

func (c *Coordinator) print(s string) {
	if c.console != nil {
		c.console.Print(s)
	}
}

func (c *Coordinator) println(s string) {
	if c.console != nil {
		c.console.Println(s)
	}
}
