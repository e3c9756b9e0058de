package backendsim

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/link"
	"github.com/muurk/relaynode/internal/logging"
)

const inboundBuffer = 64

// Config holds the simulator configuration
type Config struct {
	Host     string
	Port     int
	Path     string // websocket path, defaults to /esp32-ws
	CertPath string // TLS certificate (TLS is enabled when both paths are set)
	KeyPath  string
	Secret   string // expected device secret; empty accepts any device

	AnalysisDir string   // directory for message captures (empty = disabled)
	Fs          afero.Fs // filesystem for captures, defaults to the OS
}

// Inbound is a text message received from a device.
type Inbound struct {
	ConnID  string
	Type    string
	Payload []byte
}

// Server is a mock relaynode backend. It accepts agent connections,
// answers identify and ping messages and lets the caller push messages to
// connected devices.
type Server struct {
	config    *Config
	tlsConfig *tls.Config
	upgrader  websocket.Upgrader
	fs        afero.Fs

	listener   net.Listener
	httpServer *http.Server

	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*session
	inbound     chan Inbound
	captureMu   sync.Mutex
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	if config.Path == "" {
		config.Path = link.DefaultPath
	}

	var tlsConfig *tls.Config
	if config.CertPath != "" || config.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	fs := config.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &Server{
		config:      config,
		tlsConfig:   tlsConfig,
		fs:          fs,
		activeConns: make(map[string]*session),
		inbound:     make(chan Inbound, inboundBuffer),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the simulator's HTTP routes: the websocket endpoint and
// a health probe.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(s.config.Path, s.handleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Listen binds the configured address. Port 0 picks a free port.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
	}
	s.listener = listener

	logging.Info("Backend simulator listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.config.Path),
		zap.Bool("tls", s.tlsConfig != nil),
	)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start starts the server and blocks until shutdown
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve()
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping server...")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down backend simulator...")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			logging.Error("Error stopping HTTP server", zap.Error(err))
		}
	} else if s.listener != nil {
		_ = s.listener.Close()
	}

	// Hijacked websocket connections are not closed by http.Server.
	s.mu.Lock()
	for id, sess := range s.activeConns {
		logging.Info("Closing active connection", zap.String("conn_id", id))
		sess.close(websocket.CloseGoingAway, "server shutdown")
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	case <-time.After(10 * time.Second):
		logging.Warn("Shutdown timeout after 10 seconds, forcing close")
	}

	logging.Sync()
	return nil
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

// Connections returns the ids of the active connections, sorted.
func (s *Server) Connections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.activeConns))
	for id := range s.activeConns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Send writes a text message to one connection.
func (s *Server) Send(connID string, data []byte) error {
	s.mu.Lock()
	sess, ok := s.activeConns[connID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no connection %s", connID)
	}
	return sess.send(data)
}

// Broadcast writes a text message to every connection and returns how
// many accepted it.
func (s *Server) Broadcast(data []byte) int {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.activeConns))
	for _, sess := range s.activeConns {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	sent := 0
	for _, sess := range sessions {
		if err := sess.send(data); err == nil {
			sent++
		}
	}
	return sent
}

// Inbound delivers text messages received from devices. Messages are
// dropped when nobody drains the channel.
func (s *Server) Inbound() <-chan Inbound {
	return s.inbound
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("Invalid WebSocket upgrade request",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	sess := &session{
		id:     uuid.NewString(),
		conn:   conn,
		remote: r.RemoteAddr,
		server: s,
	}

	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	s.activeConns[sess.id] = sess
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.activeConns, sess.id)
		s.mu.Unlock()
		logging.LogConnection(sess.remote, "websocket_closed")
	}()

	logging.LogConnection(sess.remote, "websocket_upgraded")
	logging.Debug("WebSocket upgrade request details",
		zap.String("conn_id", sess.id),
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_agent", r.Header.Get("User-Agent")),
	)

	sess.readLoop()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": s.GetActiveConnections(),
	})
}

func (s *Server) deliver(in Inbound) {
	select {
	case s.inbound <- in:
	default:
		logging.Debug("Inbound buffer full, dropping message", zap.String("type", in.Type))
	}
}
