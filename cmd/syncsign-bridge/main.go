// SyncSign Bridge - eInk display fleet integration for Gray Logic.
//
// The bridge hosts one SyncSign cloud account per config entry, exposes every
// hub and display node as a connectivity entity over MQTT and HTTP, and routes
// display updates back to the cloud.
package main

import (
	"github.com/nerrad567/gray-logic-syncsign/internal/cli"
)

// Version info set via ldflags at build time:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123 -X main.date=2026-01-01"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cli.SetVersionInfo(version, commit, date)
	cli.Execute()
}
