package syncsign

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-syncsign/internal/entity"
)

// Protocol is the bus protocol segment of every topic.
const Protocol = "syncsign"

// CommandUpdateDisplay is the only command a display accepts.
const CommandUpdateDisplay = "update_display"

// CommandMessage is received on graylogic/command/syncsign/{entity}.
type CommandMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// EntityID may be omitted; the topic id is used then.
	EntityID   string            `json:"entity_id,omitempty"`
	Command    string            `json:"command"`
	Parameters CommandParameters `json:"parameters"`
	Source     string            `json:"source,omitempty"`
}

// CommandParameters carries the display payload.
type CommandParameters struct {
	// Contents is forwarded to the vendor as-is. A JSON string is
	// unquoted; any other JSON value is sent as its raw text.
	Contents json.RawMessage `json:"contents,omitempty"`
}

// ContentsText returns the contents to render and whether any were given.
func (p CommandParameters) ContentsText() (string, bool) {
	if len(p.Contents) == 0 || string(p.Contents) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(p.Contents, &s); err == nil {
		return s, true
	}
	return string(p.Contents), true
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// AckMessage is published on graylogic/ack/syncsign/{entity}.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	EntityID  string    `json:"entity_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError explains a failed command.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage builds an accepted acknowledgement.
func NewAckMessage(cmd CommandMessage, entityID string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		EntityID:  entityID,
		Status:    AckAccepted,
		Protocol:  Protocol,
	}
}

// NewAckError builds a failed acknowledgement.
func NewAckError(cmd CommandMessage, entityID, code, message string) AckMessage {
	ack := NewAckMessage(cmd, entityID)
	ack.Status = AckFailed
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// StateMessage is published retained on graylogic/state/syncsign/{entity}.
type StateMessage struct {
	EntityID  string      `json:"entity_id"`
	EntryID   string      `json:"entry_id"`
	Timestamp time.Time   `json:"timestamp"`
	State     EntityState `json:"state"`
	Protocol  string      `json:"protocol"`
}

// EntityState is the published connectivity of one entity.
type EntityState struct {
	IsOn      bool       `json:"is_on"`
	Available bool       `json:"available"`
	PolledAt  *time.Time `json:"polled_at,omitempty"`
}

// NewStateMessage captures e's current state.
func NewStateMessage(e entity.Entity) StateMessage {
	return StateMessage{
		EntityID:  e.ID,
		EntryID:   e.EntryID,
		Timestamp: time.Now().UTC(),
		State: EntityState{
			IsOn:      e.IsOn,
			Available: e.Available,
			PolledAt:  e.StateUpdatedAt,
		},
		Protocol: Protocol,
	}
}

// DiscoveryAction says whether an entity appeared or went away.
type DiscoveryAction string

const (
	DiscoveryAdd    DiscoveryAction = "add"
	DiscoveryRemove DiscoveryAction = "remove"
)

// DiscoveryMessage is published on graylogic/discovery/syncsign.
type DiscoveryMessage struct {
	Action    DiscoveryAction `json:"action"`
	Timestamp time.Time       `json:"timestamp"`
	EntityID  string          `json:"entity_id"`
	Entity    *entity.Entity  `json:"entity,omitempty"`
	Protocol  string          `json:"protocol"`
}

// HealthStatus is the bridge's operational status.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on graylogic/health/syncsign.
type HealthMessage struct {
	Bridge          string            `json:"bridge"`
	Timestamp       time.Time         `json:"timestamp"`
	Status          HealthStatus      `json:"status"`
	Version         string            `json:"version,omitempty"`
	UptimeSeconds   int64             `json:"uptime_seconds"`
	Entries         *EntryCounts      `json:"entries,omitempty"`
	EntitiesManaged int               `json:"entities_managed"`
	Statistics      *BridgeStatistics `json:"statistics,omitempty"`
	Reason          string            `json:"reason,omitempty"`
}

// EntryCounts splits loaded entries by readiness.
type EntryCounts struct {
	Ready    int `json:"ready"`
	NotReady int `json:"not_ready"`
}

// BridgeStatistics are counters since start.
type BridgeStatistics struct {
	Polls            uint64 `json:"polls"`
	StalePolls       uint64 `json:"stale_polls"`
	Dispatches       uint64 `json:"dispatches"`
	DispatchFailures uint64 `json:"dispatch_failures"`
	CommandsReceived uint64 `json:"commands_received"`
}

// NewLWTMessage is the will the broker publishes if the bridge vanishes.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected disconnect",
	}
}
