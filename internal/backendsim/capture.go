package backendsim

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/logging"
)

// MessageCapture is one captured device message.
type MessageCapture struct {
	Timestamp    time.Time `json:"timestamp"`
	MessageNum   int       `json:"message_num"`
	ConnID       string    `json:"conn_id"`
	DeviceID     string    `json:"device_id,omitempty"`
	RemoteAddr   string    `json:"remote_addr"`
	Direction    string    `json:"direction"`
	MessageType  int       `json:"message_type"`
	PayloadLen   int       `json:"payload_length"`
	PayloadHex   string    `json:"payload_hex,omitempty"`
	PayloadASCII string    `json:"payload_ascii"`
}

// capture appends a message to the day's JSONL capture file. Nothing is
// written when no analysis directory is configured.
func (s *Server) capture(c *session, messageType int, data []byte) {
	dir := s.config.AnalysisDir
	if dir == "" {
		return
	}

	now := time.Now()
	filename := filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", now.Format("20060102")))

	record := MessageCapture{
		Timestamp:    now,
		MessageNum:   c.messageNum,
		ConnID:       c.id,
		DeviceID:     c.deviceID,
		RemoteAddr:   c.remote,
		Direction:    "device->server",
		MessageType:  messageType,
		PayloadLen:   len(data),
		PayloadASCII: toASCII(data),
	}
	if messageType != websocket.TextMessage {
		record.PayloadHex = hex.EncodeToString(data)
	}

	line, err := json.Marshal(record)
	if err != nil {
		logging.Error("Failed to marshal message capture", zap.Error(err))
		return
	}

	s.captureMu.Lock()
	err = appendLine(s.fs, filename, line)
	s.captureMu.Unlock()
	if err != nil {
		logging.Error("Failed to write capture file",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return
	}

	logging.Debug("Saved message to capture file",
		zap.String("filename", filename),
		zap.Int("message_num", c.messageNum),
	)
}

func appendLine(fs afero.Fs, filename string, line []byte) error {
	if err := fs.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	f, err := fs.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Write(append(line, '\n'))
	return err
}

// toASCII converts bytes to ASCII string (non-printable chars become '.')
func toASCII(data []byte) string {
	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
