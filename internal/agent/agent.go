package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/clock"
	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/link"
	"github.com/muurk/relaynode/internal/logging"
	"github.com/muurk/relaynode/internal/protocol"
	"github.com/muurk/relaynode/internal/provisioning"
	"github.com/muurk/relaynode/internal/ratelimit"
)

// DefaultTickInterval is how often Run ticks the components.
const DefaultTickInterval = 50 * time.Millisecond

// Mode is what the agent is currently doing.
type Mode int

const (
	ModeBooting Mode = iota
	ModeProvisioning
	ModeOnline
	ModeFailed
)

// String returns a human-readable mode name
func (m Mode) String() string {
	switch m {
	case ModeBooting:
		return "booting"
	case ModeProvisioning:
		return "provisioning"
	case ModeOnline:
		return "online"
	case ModeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Config tunes an Agent.
type Config struct {
	Link         link.Config
	Provisioning provisioning.Config

	// Path is the websocket path on the backend.
	Path string

	// Limiter bounds reconnect attempts; nil uses link.NewLimiter.
	Limiter *ratelimit.Limiter

	TickInterval time.Duration
}

// DefaultConfig returns the stock agent configuration.
func DefaultConfig() Config {
	return Config{
		Link:         link.DefaultConfig(),
		Provisioning: provisioning.DefaultConfig(),
		Path:         link.DefaultPath,
		TickInterval: DefaultTickInterval,
	}
}

// Status is a snapshot of the agent for monitors.
type Status struct {
	Mode     Mode
	Link     link.State
	Target   string
	Attempts uint32
	Backoff  time.Duration
	Method   deviceconfig.Method
	Version  uint32
	Device   string
	ConnID   string
	Stats    link.Stats
}

// Agent owns the configuration store, the provisioning coordinator and the
// backend link, and ticks them from a single goroutine.
type Agent struct {
	cfg       Config
	clk       clock.Clock
	store     *deviceconfig.Store
	coord     *provisioning.Coordinator
	link      *link.Manager
	router    *protocol.Router
	commands  CommandHandler
	observers []func(Status)

	mode      Mode
	err       error
	sessionID string
	connID    string
}

// New wires an agent over store and transport. console may be nil, in
// which case provisioning can only fall back to the compiled defaults
// unless a method is started explicitly.
func New(store *deviceconfig.Store, transport link.Transport, clk clock.Clock, console provisioning.Console, cfg Config) *Agent {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Path == "" {
		cfg.Path = link.DefaultPath
	}

	a := &Agent{
		cfg:      cfg,
		clk:      clk,
		store:    store,
		coord:    provisioning.NewCoordinator(store, clk, console, cfg.Provisioning),
		link:     link.NewManager(transport, clk, cfg.Limiter, cfg.Link),
		router:   protocol.NewRouter(),
		commands: LogCommands{},
	}

	a.router.Handle(protocol.TypeIdentified, a.handleIdentified)
	a.router.Handle(protocol.TypeError, a.handleError)
	a.router.Handle(protocol.TypePing, a.handlePing)
	a.router.Handle(protocol.TypePong, func(protocol.Envelope) error { return nil })
	a.router.Handle(protocol.TypeConfigUpdate, a.handleConfigUpdate)
	a.router.Fallback(func(env protocol.Envelope) error {
		return a.commands.HandleCommand(env)
	})

	return a
}

// Register makes a provisioning method available to the coordinator.
func (a *Agent) Register(m provisioning.Method) {
	a.coord.Register(m)
}

// SetCommandHandler replaces the handler for application messages.
func (a *Agent) SetCommandHandler(h CommandHandler) {
	if h == nil {
		h = LogCommands{}
	}
	a.commands = h
}

// Observe registers fn to receive a Status after every link state change
// and mode change. fn runs on the agent's goroutine.
func (a *Agent) Observe(fn func(Status)) {
	a.observers = append(a.observers, fn)
}

// Boot loads the stored configuration. With a valid record the link is
// pointed at its backend; otherwise a provisioning pass is started at the
// method menu.
func (a *Agent) Boot() {
	rec, err := a.store.Load()
	if err != nil {
		logging.Warn("No usable configuration, entering provisioning",
			zap.String("reason", deviceconfig.GetShortErrorMessage(err)),
			zap.Error(err),
		)
		a.Provision()
		return
	}
	a.goOnline(rec)
}

// Provision drops the link and starts a provisioning pass at the menu.
func (a *Agent) Provision() {
	a.link.Disconnect()
	a.coord.Start()
	a.setMode(ModeProvisioning)
}

// ProvisionWith drops the link and starts a provisioning pass with the
// given method, skipping the menu.
func (a *Agent) ProvisionWith(kind deviceconfig.Method) error {
	if !a.coord.Available(kind) {
		return fmt.Errorf("provisioning method %s is not available", kind)
	}
	a.link.Disconnect()
	if err := a.coord.StartWith(kind); err != nil {
		return err
	}
	a.setMode(ModeProvisioning)
	return nil
}

// Tick advances provisioning or the link by one step. It returns an error
// only when provisioning failed for good.
func (a *Agent) Tick() error {
	switch a.mode {
	case ModeProvisioning:
		a.tickProvisioning()
	case ModeOnline:
		a.tickLink()
	case ModeFailed:
		return a.err
	}
	return nil
}

func (a *Agent) tickProvisioning() {
	switch a.coord.Tick() {
	case provisioning.PhaseDone:
		logging.LogProvisioning(a.coord.Method().String(), "committed",
			zap.Uint32("version", a.store.Current().Version),
		)
		// A fresh configuration must not inherit the lockout of the old one.
		a.link.ResetLimiter()
		a.goOnline(a.store.Current())
	case provisioning.PhaseFailed:
		a.err = fmt.Errorf("provisioning failed: %w", a.coord.Err())
		logging.Error("Provisioning failed", zap.Error(a.coord.Err()))
		a.setMode(ModeFailed)
	}
}

func (a *Agent) tickLink() {
	for _, ev := range a.link.Poll() {
		switch e := ev.(type) {
		case link.StateChanged:
			a.onStateChanged(e.From, e.To)
		case link.Message:
			// Errors are logged by the handlers and the router.
			_ = a.router.Dispatch(e.Payload)
		}
	}
}

// Run boots the agent and ticks it every TickInterval until ctx is
// cancelled or provisioning fails. The link is closed on return.
func (a *Agent) Run(ctx context.Context) error {
	a.Boot()
	defer a.link.Disconnect()

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if err := a.Tick(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			a.coord.Stop()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Send transmits an application message over the link.
func (a *Agent) Send(data []byte) error {
	return a.link.Send(data)
}

// Mode returns what the agent is doing.
func (a *Agent) Mode() Mode {
	return a.mode
}

// Store returns the configuration store.
func (a *Agent) Store() *deviceconfig.Store {
	return a.store
}

// Link returns the backend link.
func (a *Agent) Link() *link.Manager {
	return a.link
}

// Coordinator returns the provisioning coordinator.
func (a *Agent) Coordinator() *provisioning.Coordinator {
	return a.coord
}

// Status returns a snapshot of the agent.
func (a *Agent) Status() Status {
	rec := a.store.Current()
	return Status{
		Mode:     a.mode,
		Link:     a.link.State(),
		Target:   a.link.Target().String(),
		Attempts: a.link.Attempts(),
		Backoff:  a.link.Backoff(),
		Method:   a.store.Method(),
		Version:  rec.Version,
		Device:   rec.DeviceName,
		ConnID:   a.connID,
		Stats:    a.link.Stats(),
	}
}

// TargetFor returns the link target described by rec.
func TargetFor(rec deviceconfig.ConfigRecord, path string) link.Target {
	return link.Target{
		Host: rec.BackendHost,
		Port: rec.BackendPort,
		Path: path,
		TLS:  rec.UseTLS,
	}
}

func (a *Agent) goOnline(rec deviceconfig.ConfigRecord) {
	if a.store.Method().Insecure() {
		logging.Warn("Running on compiled development defaults")
	}
	a.link.Reconfigure(TargetFor(rec, a.cfg.Path))
	a.setMode(ModeOnline)
}

func (a *Agent) onStateChanged(from, to link.State) {
	switch to {
	case link.StateConnected:
		a.identify()
	case link.StateDisconnected, link.StateFailed:
		a.connID = ""
	}
	a.notify()
}

func (a *Agent) identify() {
	rec := a.store.Current()
	a.sessionID = protocol.NewSessionID()

	data, err := protocol.BuildIdentify(rec.DeviceName, rec.DeviceSecret, a.sessionID, time.Now())
	if err != nil {
		logging.Error("Failed to build identify message", zap.Error(err))
		return
	}
	if err := a.link.Send(data); err != nil {
		logging.Warn("Failed to send identify message", zap.Error(err))
		return
	}
	logging.Info("Identify sent",
		zap.String("device_id", rec.DeviceName),
		zap.String("session_id", a.sessionID),
	)
}

func (a *Agent) setMode(m Mode) {
	if a.mode == m {
		return
	}
	logging.Info("Agent mode changed",
		zap.String("from", a.mode.String()),
		zap.String("to", m.String()),
	)
	a.mode = m
	a.notify()
}

func (a *Agent) notify() {
	if len(a.observers) == 0 {
		return
	}
	st := a.Status()
	for _, fn := range a.observers {
		fn(st)
	}
}
