// Package api implements the HTTP REST API and WebSocket server of the
// SyncSign bridge.
//
// This package provides:
//   - config entry management (validate, add, list, remove)
//   - read access to the connectivity entities
//   - the update-display service, per entity and as a multi-target call
//   - a WebSocket stream of entity states, filtered per client
//   - JWT bearer authentication with role permissions
//   - an audit trail of entry changes and display updates
//
// # Security
//
// Every route except /health and /metrics needs a bearer token signed with
// security.jwt.secret. WebSocket clients may pass the token as the
// access_token query parameter instead, since browsers cannot set headers
// on the upgrade request.
//
// # Graceful Degradation
//
// The server runs without MQTT. Reads, entry management and display
// updates go straight to the bridge; only the bus-facing health fields
// report disconnected.
package api
