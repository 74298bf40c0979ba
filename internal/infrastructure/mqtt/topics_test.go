package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	assert.Equal(t, "graylogic/state/syncsign/node-1", topics.BridgeState("syncsign", "node-1"))
	assert.Equal(t, "graylogic/command/syncsign/node-1", topics.BridgeCommand("syncsign", "node-1"))
	assert.Equal(t, "graylogic/command/syncsign/+", topics.BridgeCommands("syncsign"))
	assert.Equal(t, "graylogic/ack/syncsign/node-1", topics.BridgeAck("syncsign", "node-1"))
	assert.Equal(t, "graylogic/health/syncsign", topics.BridgeHealth("syncsign"))
	assert.Equal(t, "graylogic/discovery/syncsign", topics.BridgeDiscovery("syncsign"))
}

func TestParseBridgeTopic(t *testing.T) {
	tests := []struct {
		topic    string
		category string
		protocol string
		id       string
		ok       bool
	}{
		{"graylogic/command/syncsign/node-1", "command", "syncsign", "node-1", true},
		{"graylogic/state/syncsign/hub-1", "state", "syncsign", "hub-1", true},
		{"graylogic/command/syncsign", "", "", "", false},
		{"graylogic/command/syncsign/a/b", "", "", "", false},
		{"other/command/syncsign/node-1", "", "", "", false},
		{"graylogic/command//node-1", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			c, p, id, ok := ParseBridgeTopic(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.category, c)
			assert.Equal(t, tt.protocol, p)
			assert.Equal(t, tt.id, id)
		})
	}
}
