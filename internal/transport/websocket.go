package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/link"
	"github.com/muurk/relaynode/internal/logging"
)

// Heartbeat and timeout defaults.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 15 * time.Second
	DefaultPongTimeout      = 3 * time.Second
	DefaultMissedPongs      = 2
)

const eventBuffer = 256

// Config holds websocket transport tuning.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// A ping is sent every PingInterval. The link is reported disconnected
	// once MissedPongs pings in a row went unanswered for PongTimeout.
	PingInterval time.Duration
	PongTimeout  time.Duration
	MissedPongs  int

	// InsecureSkipVerify disables certificate checks on wss:// targets.
	InsecureSkipVerify bool

	// Header is sent with the websocket handshake.
	Header http.Header
}

// DefaultConfig returns the stock transport tuning.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		PingInterval:     DefaultPingInterval,
		PongTimeout:      DefaultPongTimeout,
		MissedPongs:      DefaultMissedPongs,
	}
}

// pongWait is how long the reader tolerates silence before giving up.
func (c Config) pongWait() time.Duration {
	return time.Duration(c.MissedPongs)*c.PingInterval + c.PongTimeout
}

// taggedEvent is a transport event stamped with the session that produced
// it, so that events from a closed session are never delivered.
type taggedEvent struct {
	session uint64
	ev      link.TransportEvent
}

// WebSocket is a link.Transport over gorilla/websocket.
//
// The handshake, the frame reader and the pinger run on helper goroutines
// that only hand events over a buffered channel; Poll drains it on the
// caller's goroutine.
type WebSocket struct {
	cfg    Config
	events chan taggedEvent

	mu      sync.Mutex
	session uint64
	conn    *websocket.Conn
	cancel  context.CancelFunc
	remote  string

	writeMu sync.Mutex
}

// NewWebSocket creates an idle websocket transport.
func NewWebSocket(cfg Config) *WebSocket {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.MissedPongs <= 0 {
		cfg.MissedPongs = def.MissedPongs
	}

	return &WebSocket{
		cfg:    cfg,
		events: make(chan taggedEvent, eventBuffer),
	}
}

// Connect implements link.Transport. Any previous connection is closed.
// The handshake runs in the background; its outcome is reported by Poll.
func (w *WebSocket) Connect(target link.Target) bool {
	if target.Host == "" {
		return false
	}

	w.Close()

	w.mu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	session := w.session
	w.mu.Unlock()

	go w.dial(ctx, session, target)
	return true
}

func (w *WebSocket) dial(ctx context.Context, session uint64, target link.Target) {
	dialer := websocket.Dialer{
		HandshakeTimeout: w.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if target.TLS {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: w.cfg.InsecureSkipVerify,
		}
	}

	url := target.URL()
	conn, resp, err := dialer.DialContext(ctx, url, w.cfg.Header)
	if err != nil {
		fields := []zap.Field{zap.String("url", url), zap.Error(err)}
		if resp != nil {
			fields = append(fields, zap.Int("status_code", resp.StatusCode))
		}
		logging.Warn("WebSocket dial failed", fields...)
		w.emit(ctx, session, link.TransportEvent{Type: link.TransportError, Err: err})
		return
	}

	w.mu.Lock()
	if ctx.Err() != nil {
		w.mu.Unlock()
		conn.Close()
		return
	}
	w.conn = conn
	w.remote = conn.RemoteAddr().String()
	w.mu.Unlock()

	if tlsConn, ok := conn.NetConn().(*tls.Conn); ok {
		logging.LogTLSHandshake(w.remote, tlsConn.ConnectionState())
	}
	logging.LogConnection(w.remote, "websocket_connected")

	pongWait := w.cfg.pongWait()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		logging.Debug("WebSocket pong received", zap.String("remote_addr", w.remote))
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	w.emit(ctx, session, link.TransportEvent{Type: link.TransportConnected})

	go w.ping(ctx, conn)
	w.read(ctx, session, conn, pongWait)
}

func (w *WebSocket) read(ctx context.Context, session uint64, conn *websocket.Conn, pongWait time.Duration) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			w.emit(ctx, session, classifyReadError(err))
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.TextMessage:
			w.emit(ctx, session, link.TransportEvent{Type: link.TransportText, Payload: data})
		case websocket.BinaryMessage:
			w.emit(ctx, session, link.TransportEvent{Type: link.TransportBinary, Payload: data})
		}
	}
}

// classifyReadError maps a read failure to a transport event. Orderly
// closes and heartbeat timeouts are disconnects; anything else is an error.
func classifyReadError(err error) link.TransportEvent {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		logging.Info("WebSocket closed by peer", zap.Int("code", closeErr.Code), zap.String("text", closeErr.Text))
		return link.TransportEvent{Type: link.TransportDisconnected, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		logging.Warn("WebSocket heartbeat timed out")
		return link.TransportEvent{Type: link.TransportDisconnected, Err: err}
	}

	return link.TransportEvent{Type: link.TransportError, Err: err}
}

func (w *WebSocket) ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(w.cfg.PongTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logging.Debug("WebSocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (w *WebSocket) emit(ctx context.Context, session uint64, ev link.TransportEvent) {
	select {
	case w.events <- taggedEvent{session: session, ev: ev}:
	case <-ctx.Done():
	}
}

// SendText implements link.Transport.
func (w *WebSocket) SendText(data []byte) bool {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return false
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logging.Warn("WebSocket write failed", zap.Error(err))
		return false
	}
	return true
}

// Poll implements link.Transport. It never blocks.
func (w *WebSocket) Poll() []link.TransportEvent {
	w.mu.Lock()
	current := w.session
	w.mu.Unlock()

	var out []link.TransportEvent
	for {
		select {
		case te := <-w.events:
			if te.session == current {
				out = append(out, te.ev)
			}
		default:
			return out
		}
	}
}

// Close implements link.Transport. Events of the closed connection that
// have not been polled yet are discarded.
func (w *WebSocket) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.conn != nil {
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.conn.Close()
		logging.LogConnection(w.remote, "websocket_closed")
		w.conn = nil
	}
	w.session++
}
