// Package backendsim is a mock relaynode backend used for bench testing
// and end-to-end tests.
//
// The simulator accepts agent websocket connections on /esp32-ws, answers
// identify with identified (or an error and close when the device secret
// does not match), answers ping with pong and forwards every other text
// message to the Inbound channel. Callers push config_update or command
// messages to devices with Send and Broadcast.
//
// When an analysis directory is configured every received frame is
// appended to a daily JSONL capture file for offline inspection.
package backendsim
