package link

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/clock"
	"github.com/muurk/relaynode/internal/logging"
	"github.com/muurk/relaynode/internal/ratelimit"
)

// Reconnect limiter defaults: 5 attempts, regaining one every 10 seconds.
const (
	DefaultLimiterCapacity = 5
	DefaultLimiterInterval = 10 * time.Second
)

// Config holds Manager tuning.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterBound    time.Duration // negative disables jitter

	// ForwardBinary makes Poll return BinaryMessage events instead of
	// dropping binary frames.
	ForwardBinary bool
}

// DefaultConfig returns the stock link tuning.
func DefaultConfig() Config {
	return Config{
		InitialBackoff: InitialBackoff,
		MaxBackoff:     MaxBackoff,
		JitterBound:    JitterBound,
	}
}

// NewLimiter returns a reconnect limiter with the default capacity and
// refill interval.
func NewLimiter(clk clock.Clock) *ratelimit.Limiter {
	return ratelimit.New(clk, DefaultLimiterCapacity, DefaultLimiterInterval)
}

// Manager keeps one logical link to the backend alive over a Transport.
//
// All state changes happen inside Connect, Disconnect, Reconfigure and
// Poll, which must be called from a single goroutine. Transitions made by
// Connect are reported by the next Poll.
type Manager struct {
	cfg       Config
	clk       clock.Clock
	transport Transport
	limiter   *ratelimit.Limiter
	backoff   *Backoff
	handler   Handler

	target        Target
	state         State
	autoReconnect bool

	lastAttempt uint32
	attempted   bool

	stats   Stats
	pending []Event
}

// NewManager creates a Manager in StateDisconnected with no target. The
// limiter bounds connection attempts; pass nil for the default limiter.
func NewManager(transport Transport, clk clock.Clock, limiter *ratelimit.Limiter, cfg Config) *Manager {
	if limiter == nil {
		limiter = NewLimiter(clk)
	}
	return &Manager{
		cfg:           cfg,
		clk:           clk,
		transport:     transport,
		limiter:       limiter,
		backoff:       NewBackoff(cfg.InitialBackoff, cfg.MaxBackoff, cfg.JitterBound),
		state:         StateDisconnected,
		autoReconnect: true,
	}
}

// SetHandler registers h to receive events from Poll. Pass nil to remove.
func (m *Manager) SetHandler(h Handler) {
	m.handler = h
}

// Connect starts a connection attempt.
//
// It is a no-op while Connecting or Connected. Otherwise the backoff delay
// must have elapsed since the previous attempt (ErrBackoffPending) and the
// limiter must grant a token (ErrRateLimited); the backoff is checked first
// so a premature call never spends a token. An empty host fails with
// ErrEmptyHost. Connect re-enables automatic reconnection after a manual
// Disconnect.
func (m *Manager) Connect() error {
	if m.target.Host == "" {
		return ErrEmptyHost
	}
	if !m.state.idle() {
		return nil
	}

	now := m.clk.Millis()
	if m.attempted && clock.Since(now, m.lastAttempt) < m.backoff.CurrentMillis() {
		return ErrBackoffPending
	}

	if !m.limiter.AllowOne() {
		logging.Debug("Reconnect rate limited",
			zap.Duration("retry_in", m.limiter.TimeUntilNext()),
		)
		return ErrRateLimited
	}

	m.autoReconnect = true
	m.lastAttempt = now
	m.attempted = true
	m.setState(StateConnecting)

	logging.Info("Attempting link connection",
		zap.String("target", m.target.String()),
		zap.Uint32("attempt", m.backoff.Attempts()+1),
	)

	if !m.transport.Connect(m.target) {
		m.attemptFailed()
		return ErrConnectRefused
	}
	return nil
}

// Disconnect closes the link and stops automatic reconnection until
// Connect or Reconfigure is called.
func (m *Manager) Disconnect() {
	m.autoReconnect = false
	m.transport.Close()
	if m.state != StateDisconnected {
		m.setState(StateDisconnected)
	}
}

// Reconfigure points the link at a new target. The current connection is
// dropped, the backoff restarts from its initial delay and automatic
// reconnection is enabled so the next Poll connects to t.
func (m *Manager) Reconfigure(t Target) {
	if t.Path == "" {
		t.Path = DefaultPath
	}
	m.Disconnect()
	m.target = t
	m.backoff.Reset()
	m.attempted = false
	m.autoReconnect = true

	logging.Info("Link target configured", zap.String("target", t.String()))
}

// ResetLimiter refills the reconnect limiter. Call it after an operator
// action such as a completed provisioning pass; Reconfigure alone leaves
// the limiter as it is.
func (m *Manager) ResetLimiter() {
	m.limiter.Reset()
	logging.Debug("Reconnect limiter reset", zap.Uint32("capacity", m.limiter.Capacity()))
}

// Poll pumps the transport, applies the resulting transitions and, when
// idle with automatic reconnection enabled, tries to reconnect. It returns
// every event since the previous Poll in order.
func (m *Manager) Poll() []Event {
	for _, ev := range m.transport.Poll() {
		m.apply(ev)
	}

	if m.state.idle() && m.autoReconnect && m.target.Host != "" {
		err := m.Connect()
		switch {
		case err == nil:
		case errors.Is(err, ErrBackoffPending), errors.Is(err, ErrRateLimited):
			// Try again on a later Poll.
		default:
			logging.Debug("Reconnect attempt failed", zap.Error(err))
		}
	}

	events := m.pending
	m.pending = nil

	if m.handler != nil {
		for _, ev := range events {
			switch e := ev.(type) {
			case StateChanged:
				m.handler.HandleState(e.From, e.To)
			case Message:
				m.handler.HandleMessage(e.Payload)
			}
		}
	}

	return events
}

// Send transmits a text frame. It never queues: ErrNotConnected is returned
// unless the link was Connected as of the last Poll, and ErrSendFailed when
// the transport refuses the frame.
func (m *Manager) Send(data []byte) error {
	if m.state != StateConnected {
		return ErrNotConnected
	}
	if !m.transport.SendText(data) {
		m.stats.SendErrors++
		logging.Warn("Link send failed", zap.Int("length", len(data)))
		return ErrSendFailed
	}
	m.stats.MessagesOut++
	logging.LogLinkMessage(m.target.String(), "sent", 1, data)
	return nil
}

// State returns the current link state.
func (m *Manager) State() State {
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	return m.state == StateConnected
}

// Target returns the configured backend endpoint.
func (m *Manager) Target() Target {
	return m.target
}

// Attempts returns the number of failed attempts since the last success.
func (m *Manager) Attempts() uint32 {
	return m.backoff.Attempts()
}

// Backoff returns the current delay between attempts.
func (m *Manager) Backoff() time.Duration {
	return m.backoff.Current()
}

// Stats returns cumulative link counters.
func (m *Manager) Stats() Stats {
	return m.stats
}

// AutoReconnect reports whether Poll will reconnect an idle link.
func (m *Manager) AutoReconnect() bool {
	return m.autoReconnect
}

func (m *Manager) apply(ev TransportEvent) {
	switch ev.Type {
	case TransportConnected:
		if m.state != StateConnecting {
			return
		}
		m.backoff.Reset()
		m.stats.Connects++
		m.setState(StateConnected)

	case TransportDisconnected:
		switch m.state {
		case StateConnecting:
			m.attemptFailed()
		case StateConnected:
			logging.Warn("Link disconnected", zap.String("target", m.target.String()))
			m.setState(StateDisconnected)
		}

	case TransportError:
		switch m.state {
		case StateConnecting:
			logging.Warn("Link connection error", zap.Error(ev.Err))
			m.attemptFailed()
		case StateConnected:
			logging.Error("Link transport error", zap.Error(ev.Err))
			m.stats.Failures++
			m.setState(StateFailed)
		}

	case TransportText:
		if m.state != StateConnected {
			return
		}
		m.stats.MessagesIn++
		logging.LogLinkMessage(m.target.String(), "received", 1, ev.Payload)
		m.pending = append(m.pending, Message{Payload: ev.Payload})

	case TransportBinary:
		if m.state != StateConnected {
			return
		}
		m.stats.MessagesIn++
		if !m.cfg.ForwardBinary {
			logging.Debug("Dropping binary frame", zap.Int("length", len(ev.Payload)))
			return
		}
		m.pending = append(m.pending, BinaryMessage{Payload: ev.Payload})
	}
}

// attemptFailed ends a Connecting attempt and grows the backoff.
func (m *Manager) attemptFailed() {
	m.stats.Failures++
	delay := m.backoff.Fail()
	logging.Warn("Link connection failed, backing off",
		zap.String("target", m.target.String()),
		zap.Uint32("attempts", m.backoff.Attempts()),
		zap.Duration("backoff", delay),
	)
	m.setState(StateDisconnected)
}

func (m *Manager) setState(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.pending = append(m.pending, StateChanged{From: from, To: to})
	logging.LogStateChange(m.target.String(), from.String(), to.String(), m.backoff.Attempts())
}
