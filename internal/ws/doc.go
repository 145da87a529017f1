// Package ws provides the WebSocket side of the console.
//
// The package implements:
//   - Channel: the single client connection to the agent server, with a
//     fixed-delay reconnect and an event loop that folds frames into
//     session state
//   - WebSocketDialer: gorilla/websocket transport with ping keepalive
//   - Hub and ViewerHandler: push session snapshots to browser viewers
//     and accept their prompts
//
// Key behaviours:
//   - Exactly one connection or dial attempt at any time
//   - A lost connection is always retried after ReconnectDelay, until Teardown
//   - Commands offered while disconnected are dropped, never queued
//   - Unknown or malformed frames are logged and kept in a diagnostics ring
package ws
