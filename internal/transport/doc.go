// Package transport implements link.Transport over gorilla/websocket.
//
// The transport dials ws:// or wss:// targets, keeps the connection alive
// with a ping every 15 seconds and reports a missed heartbeat (two pings
// left unanswered for 3 seconds) as a disconnect rather than an error.
package transport
