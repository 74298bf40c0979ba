// Package syncsign bridges SyncSign accounts onto the Gray Logic bus.
//
// The Bridge hosts one fleet.Integration per config entry. For every hub
// and display node it registers a connectivity entity, polls it on a
// schedule and publishes state over MQTT:
//
//	graylogic/state/syncsign/{entity}     retained {"is_on":..,"available":..}
//	graylogic/discovery/syncsign          entity add/remove announcements
//	graylogic/command/syncsign/{entity}   update_display commands
//	graylogic/ack/syncsign/{entity}       command acknowledgements
//	graylogic/health/syncsign             retained bridge health, also the LWT
//
// Scheduling uses gocron duration jobs:
//
//   - poll every syncsign.poll_interval, at most max_concurrent_polls at once
//   - rediscover every syncsign.rediscover_interval
//   - retry entries that are not ready every syncsign.setup_retry_interval
//   - publish health every syncsign.health_interval
//
// A failed poll leaves the entity's last value in place. Display updates
// are sent once, are never queued and are never retried.
package syncsign
