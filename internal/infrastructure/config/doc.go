// Package config loads and validates the SyncSign bridge configuration.
//
// Values come from, in increasing precedence:
//   - built-in defaults
//   - a YAML file
//   - SYNCSIGN_* environment variables
//
// Secrets (JWT secret, MQTT password, InfluxDB token) should be supplied
// through the environment and the file kept at 0600.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.SyncSign.PollInterval)
package config
