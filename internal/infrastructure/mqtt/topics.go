package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix roots every bridge topic.
const TopicPrefix = "graylogic"

// Topics builds bus topics.
//
//	mqtt.Topics{}.BridgeState("syncsign", "node-1")
//	// graylogic/state/syncsign/node-1
type Topics struct{}

// BridgeState is the retained state topic of one entity.
func (Topics) BridgeState(protocol, id string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, id)
}

// BridgeCommand is the command topic of one entity.
func (Topics) BridgeCommand(protocol, id string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, id)
}

// BridgeCommands matches the command topics of every entity of a protocol.
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, protocol)
}

// BridgeAck is the acknowledgement topic of one entity.
func (Topics) BridgeAck(protocol, id string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, id)
}

// BridgeHealth is the retained health topic of a bridge.
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// BridgeDiscovery carries entity announcements.
func (Topics) BridgeDiscovery(protocol string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, protocol)
}

// ParseBridgeTopic splits graylogic/{category}/{protocol}/{id}. Ids may
// not contain slashes.
func ParseBridgeTopic(topic string) (category, protocol, id string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix {
		return "", "", "", false
	}
	for _, p := range parts[1:] {
		if p == "" {
			return "", "", "", false
		}
	}
	return parts[1], parts[2], parts[3], true
}
