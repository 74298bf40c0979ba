package syncsign

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/mqtt"
)

// HealthPublisher is the part of the MQTT client health reporting needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthSnapshot is what the bridge knows about itself right now.
type HealthSnapshot struct {
	Entries    EntryCounts
	Entities   int
	Statistics BridgeStatistics
}

// HealthReporter builds and publishes health messages. The bridge's
// scheduler decides when.
//
// A reporter exists before the MQTT connection so its Presence can be
// registered as the will; NewBridge attaches the publisher afterwards.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time

	mu        sync.RWMutex
	publisher HealthPublisher
	snapshot  func() HealthSnapshot
	last      HealthStatus
}

// NewHealthReporter creates a reporter with nothing attached.
func NewHealthReporter(bridgeID, version string) *HealthReporter {
	return &HealthReporter{
		bridgeID:  bridgeID,
		version:   version,
		startTime: time.Now(),
	}
}

func (h *HealthReporter) attach(publisher HealthPublisher, snapshot func() HealthSnapshot) {
	h.mu.Lock()
	h.publisher = publisher
	h.snapshot = snapshot
	h.mu.Unlock()
}

func (h *HealthReporter) current() (HealthPublisher, HealthSnapshot) {
	h.mu.RLock()
	publisher, snapshot := h.publisher, h.snapshot
	h.mu.RUnlock()
	if snapshot == nil {
		return publisher, HealthSnapshot{}
	}
	return publisher, snapshot()
}

// Topic is the retained health topic, also used for the will.
func (h *HealthReporter) Topic() string {
	return mqtt.Topics{}.BridgeHealth(Protocol)
}

// Presence returns the payloads the MQTT client publishes on connect and
// close, and registers as its will.
func (h *HealthReporter) Presence() *mqtt.Presence {
	will, _ := json.Marshal(NewLWTMessage(h.bridgeID)) //nolint:errchkjson // plain struct
	return &mqtt.Presence{
		Topic: h.Topic(),
		Online: func() []byte {
			publisher, snap := h.current()
			status, reason := determineStatus(publisher, snap)
			return h.payload(status, reason)
		},
		Offline: func() []byte { return h.payload(HealthStopping, "bridge stopping") },
		Will:    will,
	}
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishStopping publishes a "stopping" status.
func (h *HealthReporter) PublishStopping() error {
	return h.publish(HealthStopping, "bridge stopping")
}

// PublishNow publishes the current status.
func (h *HealthReporter) PublishNow() error {
	publisher, snap := h.current()
	status, reason := determineStatus(publisher, snap)
	return h.publish(status, reason)
}

// LastStatus returns the most recently published status.
func (h *HealthReporter) LastStatus() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last
}

// Message builds a health message for status.
func (h *HealthReporter) Message(status HealthStatus, reason string) HealthMessage {
	_, snap := h.current()
	entries := snap.Entries
	stats := snap.Statistics
	return HealthMessage{
		Bridge:          h.bridgeID,
		Timestamp:       time.Now().UTC(),
		Status:          status,
		Version:         h.version,
		UptimeSeconds:   int64(time.Since(h.startTime).Seconds()),
		Entries:         &entries,
		EntitiesManaged: snap.Entities,
		Statistics:      &stats,
		Reason:          reason,
	}
}

func determineStatus(publisher HealthPublisher, snap HealthSnapshot) (HealthStatus, string) {
	if publisher == nil || !publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if snap.Entries.NotReady > 0 {
		return HealthDegraded, "entries not ready"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) payload(status HealthStatus, reason string) []byte {
	b, _ := json.Marshal(h.Message(status, reason)) //nolint:errchkjson // plain struct
	return b
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	h.mu.RLock()
	publisher := h.publisher
	h.mu.RUnlock()
	if publisher == nil {
		return nil
	}
	if err := publisher.Publish(h.Topic(), h.payload(status, reason), 1, true); err != nil {
		return err
	}
	h.mu.Lock()
	h.last = status
	h.mu.Unlock()
	return nil
}
