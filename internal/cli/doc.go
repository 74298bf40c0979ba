// Package cli implements the syncsign-bridge command line.
//
// Commands:
//   - serve: run the bridge until interrupted
//   - validate: check a SyncSign API key against the cloud
//   - entry add|list|remove: manage stored accounts offline
//   - token: mint an API access token
//   - version: print build information
//
// Every command reads the YAML configuration named by --config, then
// SYNCSIGN_CONFIG, then configs/config.yaml.
package cli
