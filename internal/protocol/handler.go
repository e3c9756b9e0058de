package protocol

import (
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/logging"
)

// HandlerFunc processes one message of a registered type.
type HandlerFunc func(env Envelope) error

// Router dispatches messages to handlers by type.
type Router struct {
	handlers map[string]HandlerFunc
	fallback HandlerFunc
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Handle registers fn for messages of msgType.
func (r *Router) Handle(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Fallback registers fn for messages no other handler claims.
func (r *Router) Fallback(fn HandlerFunc) {
	r.fallback = fn
}

// Dispatch parses data and calls the matching handler. Messages that are
// not JSON objects with a type are logged and returned as errors.
func (r *Router) Dispatch(data []byte) error {
	env, err := Parse(data)
	if err != nil {
		logging.Warn("Unknown message format",
			zap.Int("length", len(data)),
			zap.String("hex", hex.EncodeToString(truncate(data, 64))),
			zap.Error(err),
		)
		return err
	}

	if fn, ok := r.handlers[env.Type]; ok {
		return fn(env)
	}
	if r.fallback != nil {
		return r.fallback(env)
	}

	logging.Debug("No handler for message type", zap.String("type", env.Type))
	return nil
}

func truncate(data []byte, n int) []byte {
	if len(data) > n {
		return data[:n]
	}
	return data
}
