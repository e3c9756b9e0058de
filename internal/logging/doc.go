// Package logging provides structured logging for the relaynode agent.
//
// This package wraps zap with package-level convenience functions so that
// every component logs through one configured logger without carrying it
// around.
//
// # Log Levels
//
//   - Debug: payload dumps, rate-limit denials, ping/pong
//   - Info: link state changes, provisioning progress, connections
//   - Warn: insecure compiled defaults, dropped frames, retries
//   - Error: failures the operator has to act on
//
// # Configuration
//
// Logging is silent by default so CLI output stays clean. Set
// RELAYNODE_LOG_LEVEL or pass a level explicitly:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Secrets
//
// Nothing in the agent passes the device secret, WiFi password or OTA
// password as a log field. Link message contents are only emitted at debug
// level.
package logging
