// Package entity is the registry of connectivity entities the bridge
// exposes, one per discovered hub or display node.
//
// Registration metadata (name, device info, parent link) is persisted in
// SQLite so the host sees a stable entity set across restarts. The
// connectivity value itself lives only in memory: after a restart every
// entity reads disconnected and unavailable until its first poll.
//
// The Registry caches every entity and is safe for concurrent use.
// SyncEntry reconciles one config entry's entities against a fresh
// discovery; SetConnectivity records a poll result and reports whether the
// published state changed.
package entity
