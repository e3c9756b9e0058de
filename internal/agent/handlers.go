package agent

import (
	"time"

	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/logging"
	"github.com/muurk/relaynode/internal/protocol"
)

// CommandHandler receives application messages the agent does not handle
// itself.
type CommandHandler interface {
	HandleCommand(env protocol.Envelope) error
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(env protocol.Envelope) error

// HandleCommand calls f(env).
func (f CommandHandlerFunc) HandleCommand(env protocol.Envelope) error {
	return f(env)
}

// LogCommands is the default CommandHandler. It only logs.
type LogCommands struct{}

// HandleCommand implements CommandHandler.
func (LogCommands) HandleCommand(env protocol.Envelope) error {
	if env.Type == protocol.TypeCommand {
		if cmd, err := protocol.Decode[protocol.Command](env.Raw); err == nil {
			logging.Info("Command received", zap.String("command", cmd.Command))
			return nil
		}
	}
	logging.Info("Unhandled message", zap.String("type", env.Type))
	return nil
}

func (a *Agent) handleIdentified(env protocol.Envelope) error {
	msg, err := protocol.Decode[protocol.Identified](env.Raw)
	if err != nil {
		return err
	}
	a.connID = msg.ConnectionID
	logging.Info("Backend accepted device",
		zap.String("connection_id", msg.ConnectionID),
		zap.String("session_id", a.sessionID),
	)
	a.notify()
	return nil
}

func (a *Agent) handleError(env protocol.Envelope) error {
	msg, err := protocol.Decode[protocol.ErrorMessage](env.Raw)
	if err != nil {
		return err
	}
	logging.Warn("Backend reported an error", zap.String("reason", msg.Reason))
	return nil
}

func (a *Agent) handlePing(protocol.Envelope) error {
	data, err := protocol.BuildPong(time.Now())
	if err != nil {
		return err
	}
	return a.link.Send(data)
}

// handleConfigUpdate applies a remote push: the present fields are merged
// over the current record, validated and committed, and the link follows
// the new endpoint. Every outcome is acknowledged.
func (a *Agent) handleConfigUpdate(env protocol.Envelope) error {
	msg, err := protocol.Decode[protocol.ConfigUpdate](env.Raw)
	if err != nil {
		a.ack(false, "malformed config_update", 0)
		return err
	}

	payload, err := deviceconfig.ParsePayload(msg.Config)
	if err != nil {
		a.ack(false, deviceconfig.GetShortErrorMessage(err), 0)
		return err
	}
	fields := payload.Fields()
	if len(fields) == 0 {
		err := deviceconfig.NewValidationError("config_update carries no configuration fields")
		a.ack(false, err.Message, 0)
		return err
	}

	old := a.store.Current()
	candidate := payload.MergeInto(old)
	if err := deviceconfig.CheckCandidate(candidate); err != nil {
		logging.LogProvisioning(deviceconfig.MethodRemotePush.String(), "rejected", zap.Error(err))
		a.ack(false, deviceconfig.GetShortErrorMessage(err), 0)
		return err
	}

	if err := a.store.CommitWithMethod(candidate, deviceconfig.MethodRemotePush); err != nil {
		logging.Error("Failed to commit remote configuration", zap.Error(err))
		a.ack(false, deviceconfig.GetShortErrorMessage(err), 0)
		return err
	}

	rec := a.store.Current()
	logging.LogProvisioning(deviceconfig.MethodRemotePush.String(), "committed",
		zap.Strings("fields", fields),
		zap.Uint32("version", rec.Version),
	)
	a.ack(true, "configuration applied", rec.Version)

	if linkChanged(old, rec) {
		a.link.Reconfigure(TargetFor(rec, a.cfg.Path))
	}
	a.notify()
	return nil
}

// linkChanged reports whether the backend endpoint or the identity sent in
// identify differ between two records.
func linkChanged(old, rec deviceconfig.ConfigRecord) bool {
	return old.BackendHost != rec.BackendHost ||
		old.BackendPort != rec.BackendPort ||
		old.UseTLS != rec.UseTLS ||
		old.DeviceSecret != rec.DeviceSecret ||
		old.DeviceName != rec.DeviceName
}

func (a *Agent) ack(success bool, message string, version uint32) {
	data, err := protocol.BuildConfigAck(success, message, version)
	if err != nil {
		logging.Error("Failed to build config_ack", zap.Error(err))
		return
	}
	if err := a.link.Send(data); err != nil {
		logging.Warn("Failed to send config_ack", zap.Error(err))
	}
}
