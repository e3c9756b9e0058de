// Package ui renders relaynode CLI output with Lipgloss and Bubble Tea.
//
// Most commands print once and exit: a Header naming the command and its
// parameters, then a Result box (success, warning or failure with
// troubleshooting tips). Printer wraps those for a writer.
//
// "relaynode run --monitor" uses Monitor, a Bubble Tea program that
// receives agent.Status snapshots and shows the agent mode, link state,
// backend and counters with a spinner while the agent is connecting or
// provisioning.
//
// # Logging Integration
//
// This package expects logging to be controlled via the RELAYNODE_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, allowing
// the curated UI output to be displayed cleanly.
package ui
