package syncsign

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-syncsign/internal/configentry"
	"github.com/nerrad567/gray-logic-syncsign/internal/entity"
	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/mqtt"
)

// publishedMessage is one recorded publish.
type publishedMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// MockMQTTClient records publishes and holds subscription handlers.
type MockMQTTClient struct {
	mu         sync.Mutex
	connected  bool
	published  []publishedMessage
	handlers   map[string]mqtt.MessageHandler
	publishErr error
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{connected: true, handlers: map[string]mqtt.MessageHandler{}}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, publishedMessage{
		Topic: topic, Payload: append([]byte(nil), payload...), QoS: qos, Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// deliver hands payload to the handler subscribed with filter.
func (m *MockMQTTClient) deliver(filter, topic string, payload []byte) error {
	m.mu.Lock()
	h := m.handlers[filter]
	m.mu.Unlock()
	if h == nil {
		return errors.New("no handler for " + filter)
	}
	return h(topic, payload)
}

func (m *MockMQTTClient) messages(topic string) []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMessage
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) reset() {
	m.mu.Lock()
	m.published = nil
	m.mu.Unlock()
}

// lastJSON decodes the latest publish on topic into v.
func (m *MockMQTTClient) lastJSON(t *testing.T, topic string, v any) {
	t.Helper()
	msgs := m.messages(topic)
	require.NotEmpty(t, msgs, "nothing published on %s", topic)
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Payload, v))
}

func (m *MockMQTTClient) discoveries(t *testing.T) []DiscoveryMessage {
	t.Helper()
	var out []DiscoveryMessage
	for _, p := range m.messages(mqtt.Topics{}.BridgeDiscovery(Protocol)) {
		var d DiscoveryMessage
		require.NoError(t, json.Unmarshal(p.Payload, &d))
		out = append(out, d)
	}
	return out
}

// memEntities is an in-memory entity.Repository.
type memEntities struct {
	mu        sync.Mutex
	rows      map[string]entity.Entity
	upsertErr error
}

func newMemEntities() *memEntities { return &memEntities{rows: map[string]entity.Entity{}} }

func (r *memEntities) failUpserts(err error) {
	r.mu.Lock()
	r.upsertErr = err
	r.mu.Unlock()
}

func (r *memEntities) Upsert(_ context.Context, e *entity.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.rows[e.ID] = *e
	return nil
}

func (r *memEntities) List(context.Context) ([]entity.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.Entity, 0, len(r.rows))
	for _, e := range r.rows {
		out = append(out, e)
	}
	return out, nil
}

func (r *memEntities) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return entity.ErrEntityNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memEntities) DeleteByEntry(_ context.Context, entryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.rows {
		if e.EntryID == entryID {
			delete(r.rows, id)
		}
	}
	return nil
}

// memEntries is an in-memory configentry.Repository.
type memEntries struct {
	mu   sync.Mutex
	rows []configentry.Entry
}

func (r *memEntries) Create(_ context.Context, e *configentry.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.rows {
		if x.APIKey == e.APIKey {
			return configentry.ErrEntryExists
		}
	}
	r.rows = append(r.rows, *e)
	return nil
}

func (r *memEntries) Get(_ context.Context, id string) (*configentry.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.rows {
		if x.ID == id {
			e := x
			return &e, nil
		}
	}
	return nil, configentry.ErrEntryNotFound
}

func (r *memEntries) GetByAPIKey(_ context.Context, key string) (*configentry.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.rows {
		if x.APIKey == key {
			e := x
			return &e, nil
		}
	}
	return nil, configentry.ErrEntryNotFound
}

func (r *memEntries) List(context.Context) ([]configentry.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]configentry.Entry(nil), r.rows...), nil
}

func (r *memEntries) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, x := range r.rows {
		if x.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return configentry.ErrEntryNotFound
}

func boolPtr(b bool) *bool { return &b }

// fakeFleet is an in-memory fleet.API.
type fakeFleet struct {
	mu sync.Mutex

	email      string
	hubs       []fleet.HubRecord
	nodes      []fleet.NodeRecord
	accountErr error
	listErr    error
	getErr     map[string]error
	renderErr  error
	renders    []fleet.RenderCommand
}

// newFakeFleet returns one connected hub with an online and an offline node.
func newFakeFleet() *fakeFleet {
	return &fakeFleet{
		email: "owner@example.com",
		hubs: []fleet.HubRecord{{
			ThingName: "hub-1",
			Info: fleet.HubInfo{
				FriendlyName: "Lobby Hub",
				Model:        "mrd",
				Version:      fleet.HubVersion{SystemVersion: "1.0", AppVersion: "2.0", HardwareVersion: "B"},
			},
			Network: fleet.HubNetwork{Connected: boolPtr(true)},
		}},
		nodes: []fleet.NodeRecord{
			{NodeID: "node-1", Name: "Kitchen", Model: "D29AB", ThingName: "hub-1", Onlined: boolPtr(true)},
			{NodeID: "node-2", Name: "Office", Model: "D75X", ThingName: "hub-1", Onlined: boolPtr(false)},
		},
		getErr: map[string]error{},
	}
}

func (f *fakeFleet) AccountInfo(context.Context) (*fleet.AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return &fleet.AccountRecord{UserID: "u-1", Email: f.email}, nil
}

func (f *fakeFleet) ListHubs(context.Context) ([]fleet.HubRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]fleet.HubRecord(nil), f.hubs...), nil
}

func (f *fakeFleet) GetHub(_ context.Context, id string) (*fleet.HubRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	for _, h := range f.hubs {
		if h.ThingName == id {
			rec := h
			return &rec, nil
		}
	}
	return nil, &fleet.APIError{Kind: fleet.ErrNotFound, StatusCode: 404}
}

func (f *fakeFleet) ListNodes(context.Context) ([]fleet.NodeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]fleet.NodeRecord(nil), f.nodes...), nil
}

func (f *fakeFleet) GetNode(_ context.Context, id string) (*fleet.NodeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	for _, n := range f.nodes {
		if n.NodeID == id {
			rec := n
			return &rec, nil
		}
	}
	return nil, &fleet.APIError{Kind: fleet.ErrNotFound, StatusCode: 404}
}

func (f *fakeFleet) RenderOnNode(_ context.Context, nodeID, contents string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renderErr != nil {
		return f.renderErr
	}
	f.renders = append(f.renders, fleet.RenderCommand{TargetNodeID: nodeID, Contents: contents})
	return nil
}

func (f *fakeFleet) set(fn func(f *fakeFleet)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeFleet) rendered() []fleet.RenderCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fleet.RenderCommand(nil), f.renders...)
}

// inlineRunner runs work on the calling goroutine.
type inlineRunner struct{}

func (inlineRunner) Do(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// recordingMetrics collects telemetry samples.
type recordingMetrics struct {
	mu         sync.Mutex
	polls      []influxdb.PollSample
	dispatches []influxdb.DispatchSample
}

func (r *recordingMetrics) WritePoll(s influxdb.PollSample) {
	r.mu.Lock()
	r.polls = append(r.polls, s)
	r.mu.Unlock()
}

func (r *recordingMetrics) WriteDispatch(s influxdb.DispatchSample) {
	r.mu.Lock()
	r.dispatches = append(r.dispatches, s)
	r.mu.Unlock()
}

func (r *recordingMetrics) pollCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.polls)
}

// harness wires a bridge to in-memory collaborators. Accounts maps API
// keys to fleets; unknown keys are rejected as unauthorised.
type harness struct {
	bridge   *Bridge
	mqtt     *MockMQTTClient
	entries  *memEntries
	entities *memEntities
	registry *entity.Registry
	metrics  *recordingMetrics
	accounts map[string]*fakeFleet
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mqtt:     NewMockMQTTClient(),
		entries:  &memEntries{},
		entities: newMemEntities(),
		metrics:  &recordingMetrics{},
		accounts: map[string]*fakeFleet{},
	}
	h.registry = entity.NewRegistry(h.entities)
	factory := func(apiKey string) (fleet.API, error) {
		if f, ok := h.accounts[apiKey]; ok {
			return f, nil
		}
		return &fakeFleet{
			accountErr: &fleet.APIError{Kind: fleet.ErrUnauthorized, StatusCode: 401},
			getErr:     map[string]error{},
		}, nil
	}

	b, err := NewBridge(BridgeOptions{
		Config: config.SyncSignConfig{
			PollInterval:       time.Hour,
			RediscoverInterval: time.Hour,
			SetupRetryInterval: time.Hour,
			HealthInterval:     time.Hour,
			MaxConcurrentPolls: 2,
			CommandTimeout:     time.Second,
		},
		BridgeID:   "syncsign",
		Version:    "test",
		MQTTClient: h.mqtt,
		Entries:    h.entries,
		Registry:   h.registry,
		Factory:    factory,
		Executor:   inlineRunner{},
		Metrics:    h.metrics,
	})
	require.NoError(t, err)
	h.bridge = b
	t.Cleanup(b.Stop)
	return h
}

// storeEntry persists an entry for key backed by f.
func (h *harness) storeEntry(t *testing.T, key string, f *fakeFleet) *configentry.Entry {
	t.Helper()
	h.accounts[key] = f
	e := configentry.New(fleet.EntryTitle(f.email), key, f.email)
	require.NoError(t, h.entries.Create(context.Background(), e))
	return e
}
