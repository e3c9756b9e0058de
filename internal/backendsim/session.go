package backendsim

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/logging"
	"github.com/muurk/relaynode/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// session is one connected device.
type session struct {
	id     string
	conn   *websocket.Conn
	remote string
	server *Server

	writeMu    sync.Mutex
	messageNum int
	deviceID   string
}

func (c *session) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				logging.Info("Connection closed by device",
					zap.String("conn_id", c.id),
					zap.Int("code", closeErr.Code),
				)
			} else {
				logging.Info("Connection closed or error reading frame",
					zap.String("conn_id", c.id),
					zap.Error(err),
				)
			}
			return
		}

		c.messageNum++
		logging.LogLinkMessage(c.remote, "device->server", messageType, data)
		c.server.capture(c, messageType, data)

		if messageType != websocket.TextMessage {
			logging.Debug("Ignoring non-text message", zap.String("conn_id", c.id))
			continue
		}
		if !c.handleText(data) {
			return
		}
	}
}

// handleText answers protocol messages. It returns false when the
// connection must be dropped.
func (c *session) handleText(data []byte) bool {
	env, err := protocol.Parse(data)
	if err != nil {
		logging.Warn("Malformed message from device", zap.String("conn_id", c.id), zap.Error(err))
		return true
	}

	switch env.Type {
	case protocol.TypeIdentify:
		return c.handleIdentify(data)
	case protocol.TypePing:
		c.reply(protocol.BuildPong(time.Now()))
	}

	c.server.deliver(Inbound{ConnID: c.id, Type: env.Type, Payload: data})
	return true
}

func (c *session) handleIdentify(data []byte) bool {
	msg, err := protocol.Decode[protocol.Identify](data)
	if err != nil {
		c.reply(protocol.BuildError("malformed identify"))
		return true
	}

	expected := c.server.config.Secret
	if expected != "" && subtle.ConstantTimeCompare([]byte(expected), []byte(msg.Secret)) != 1 {
		logging.Warn("Device failed authentication",
			zap.String("conn_id", c.id),
			zap.String("device_id", msg.DeviceID),
		)
		c.reply(protocol.BuildError("authentication failed"))
		c.close(websocket.ClosePolicyViolation, "authentication failed")
		return false
	}

	c.deviceID = msg.DeviceID
	logging.Info("Device identified",
		zap.String("conn_id", c.id),
		zap.String("device_id", msg.DeviceID),
		zap.String("device_type", msg.DeviceType),
		zap.String("session_id", msg.SessionID),
	)
	c.reply(protocol.BuildIdentified(c.id))
	c.server.deliver(Inbound{ConnID: c.id, Type: protocol.TypeIdentify, Payload: data})
	return true
}

func (c *session) reply(data []byte, err error) {
	if err != nil {
		logging.Error("Failed to build reply", zap.Error(err))
		return
	}
	if err := c.send(data); err != nil {
		logging.Warn("Failed to send reply", zap.String("conn_id", c.id), zap.Error(err))
	}
}

func (c *session) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	logging.LogLinkMessage(c.remote, "server->device", websocket.TextMessage, data)
	return nil
}

func (c *session) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
}
