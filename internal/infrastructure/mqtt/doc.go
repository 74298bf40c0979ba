// Package mqtt connects the bridge to the Gray Logic MQTT bus.
//
// It wraps paho.mqtt.golang with:
//   - auto-reconnect with subscriptions restored after every reconnect
//   - a retained presence topic with a Last Will for crash detection
//   - input validation on publish and subscribe
//   - panic-safe message handlers
//
// Topics follow the flat bridge scheme graylogic/{category}/{protocol}/{id}:
//
//	graylogic/state/syncsign/{entity}     retained connectivity state
//	graylogic/command/syncsign/{entity}   display update commands
//	graylogic/ack/syncsign/{entity}       command acknowledgements
//	graylogic/health/syncsign             retained bridge health and LWT
//	graylogic/discovery/syncsign          entity announcements
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, presence)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("syncsign"), 1, handler)
package mqtt
