package syncsign

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-syncsign/internal/configentry"
	"github.com/nerrad567/gray-logic-syncsign/internal/entity"
	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/mqtt"
)

var topics mqtt.Topics

func TestNewBridge_RequiresDependencies(t *testing.T) {
	_, err := NewBridge(BridgeOptions{})
	assert.Error(t, err)

	_, err = NewBridge(BridgeOptions{MQTTClient: NewMockMQTTClient()})
	assert.Error(t, err)
}

func TestSetupEntry_RegistersAndPublishesFleet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.storeEntry(t, "key-1", newFakeFleet())

	require.NoError(t, h.bridge.SetupEntry(ctx, e))

	st, ok := h.bridge.EntryState(e.ID)
	require.True(t, ok)
	assert.Equal(t, fleet.StateReady, st)

	ents := h.bridge.Entities()
	require.Len(t, ents, 3)

	hub, err := h.bridge.Entity("hub-1")
	require.NoError(t, err)
	assert.Equal(t, "Lobby Hub Connected", hub.Name)
	assert.Equal(t, "1.0+2.0", hub.Device.SWVersion)
	assert.True(t, hub.IsOn)
	assert.True(t, hub.Available)

	off, err := h.bridge.Entity("node-2")
	require.NoError(t, err)
	assert.False(t, off.IsOn)
	assert.True(t, off.Available)
	assert.Equal(t, "hub-1", off.Device.ViaDeviceID)

	adds := h.mqtt.discoveries(t)
	require.Len(t, adds, 3)
	for _, d := range adds {
		assert.Equal(t, DiscoveryAdd, d.Action)
		require.NotNil(t, d.Entity)
		assert.True(t, d.Entity.Available, "entities are polled before they are announced")
	}

	var state StateMessage
	h.mqtt.lastJSON(t, topics.BridgeState(Protocol, "node-1"), &state)
	assert.True(t, state.State.IsOn)
	assert.Equal(t, e.ID, state.EntryID)
	msgs := h.mqtt.messages(topics.BridgeState(Protocol, "node-1"))
	assert.True(t, msgs[0].Retained)

	assert.Equal(t, 3, h.metrics.pollCount())
}

func TestSetupEntry_FailedFirstPollStaysAvailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := newFakeFleet()
	f.getErr["node-1"] = &fleet.APIError{Kind: fleet.ErrTransport, Op: "GET /nodes/{id}"}
	e := h.storeEntry(t, "key-1", f)

	require.NoError(t, h.bridge.SetupEntry(ctx, e))

	node, err := h.bridge.Entity("node-1")
	require.NoError(t, err)
	assert.True(t, node.Available, "poll failures never change availability")
	assert.False(t, node.IsOn)
	assert.Nil(t, node.StateUpdatedAt)

	var state StateMessage
	h.mqtt.lastJSON(t, topics.BridgeState(Protocol, "node-1"), &state)
	assert.True(t, state.State.Available)
	assert.False(t, state.State.IsOn)
}

func TestSetupEntry_RegistrationFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.storeEntry(t, "key-1", newFakeFleet())
	h.entities.failUpserts(errors.New("disk I/O error"))

	err := h.bridge.SetupEntry(ctx, e)
	require.ErrorIs(t, err, fleet.ErrNotReady)

	st, ok := h.bridge.EntryState(e.ID)
	require.True(t, ok)
	assert.Equal(t, fleet.StateUninitialized, st)
	assert.Empty(t, h.bridge.Entities())

	h.entities.failUpserts(nil)
	h.bridge.retryPending(ctx)

	st, _ = h.bridge.EntryState(e.ID)
	assert.Equal(t, fleet.StateReady, st)
	assert.Len(t, h.bridge.Entities(), 3)
}

func TestSetupEntry_IsIdempotentWhenReady(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.storeEntry(t, "key-1", newFakeFleet())

	require.NoError(t, h.bridge.SetupEntry(ctx, e))
	h.mqtt.reset()
	require.NoError(t, h.bridge.SetupEntry(ctx, e))
	assert.Empty(t, h.mqtt.discoveries(t))
}

func TestSetupEntry_InvalidKeyLeavesEntryPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.storeEntry(t, "key-1", newFakeFleet())
	delete(h.accounts, "key-1")

	err := h.bridge.SetupEntry(ctx, e)
	require.Error(t, err)
	assert.ErrorIs(t, err, fleet.ErrNotReady)
	assert.ErrorIs(t, err, fleet.ErrInvalidAuth)

	st, ok := h.bridge.EntryState(e.ID)
	require.True(t, ok)
	assert.Equal(t, fleet.StateUninitialized, st)
	assert.Empty(t, h.bridge.Entities())

	snap := h.bridge.snapshot()
	assert.Equal(t, 1, snap.Entries.NotReady)
	assert.Equal(t, 0, snap.Entries.Ready)
}

func TestSetupEntry_DiscoveryFailureRetried(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := newFakeFleet()
	f.listErr = &fleet.APIError{Kind: fleet.ErrTransport, StatusCode: 503}
	e := h.storeEntry(t, "key-1", f)

	require.Error(t, h.bridge.SetupEntry(ctx, e))
	assert.Empty(t, h.bridge.Entities())

	f.set(func(f *fakeFleet) { f.listErr = nil })
	h.bridge.retryPending(ctx)

	st, _ := h.bridge.EntryState(e.ID)
	assert.Equal(t, fleet.StateReady, st)
	assert.Len(t, h.bridge.Entities(), 3)
}

func TestStart_LoadsEntriesAndSubscribes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ready := h.storeEntry(t, "key-1", newFakeFleet())
	pending := h.storeEntry(t, "key-2", newFakeFleet())
	delete(h.accounts, "key-2")

	require.NoError(t, h.bridge.Start(ctx))
	assert.Error(t, h.bridge.Start(ctx), "second start is refused")

	st, _ := h.bridge.EntryState(ready.ID)
	assert.Equal(t, fleet.StateReady, st)
	st, _ = h.bridge.EntryState(pending.ID)
	assert.Equal(t, fleet.StateUninitialized, st)

	h.mqtt.mu.Lock()
	_, subscribed := h.mqtt.handlers[topics.BridgeCommands(Protocol)]
	h.mqtt.mu.Unlock()
	assert.True(t, subscribed)

	healthMsgs := h.mqtt.messages(topics.BridgeHealth(Protocol))
	require.GreaterOrEqual(t, len(healthMsgs), 2)
	assert.True(t, healthMsgs[0].Retained)

	var health HealthMessage
	h.mqtt.lastJSON(t, topics.BridgeHealth(Protocol), &health)
	assert.Equal(t, HealthDegraded, health.Status)
	assert.Equal(t, "entries not ready", health.Reason)
	require.NotNil(t, health.Entries)
	assert.Equal(t, 1, health.Entries.Ready)
	assert.Equal(t, 1, health.Entries.NotReady)
	assert.Equal(t, 3, health.EntitiesManaged)
}

func TestStop_MarksEntitiesUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.storeEntry(t, "key-1", newFakeFleet())
	require.NoError(t, h.bridge.Start(ctx))

	h.bridge.Stop()
	h.bridge.Stop()

	for _, e := range h.bridge.Entities() {
		assert.False(t, e.Available, e.ID)
	}

	var state StateMessage
	h.mqtt.lastJSON(t, topics.BridgeState(Protocol, "hub-1"), &state)
	assert.False(t, state.State.Available)

	var health HealthMessage
	h.mqtt.lastJSON(t, topics.BridgeHealth(Protocol), &health)
	assert.Equal(t, HealthStopping, health.Status)
}

func TestUnloadEntry_RemovesEntities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	e := h.storeEntry(t, "key-1", newFakeFleet())
	require.NoError(t, h.bridge.SetupEntry(ctx, e))
	h.mqtt.reset()

	require.NoError(t, h.bridge.UnloadEntry(ctx, e.ID))

	assert.Empty(t, h.bridge.Entities())
	_, ok := h.bridge.EntryState(e.ID)
	assert.False(t, ok)

	removed := h.mqtt.discoveries(t)
	require.Len(t, removed, 3)
	for _, d := range removed {
		assert.Equal(t, DiscoveryRemove, d.Action)
	}

	cleared := h.mqtt.messages(topics.BridgeState(Protocol, "node-1"))
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Payload)
	assert.True(t, cleared[0].Retained)

	err := h.bridge.UnloadEntry(ctx, e.ID)
	assert.ErrorIs(t, err, ErrEntryNotLoaded)
}

func TestAddEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.accounts["key-1"] = newFakeFleet()

	e, err := h.bridge.AddEntry(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "SyncSign Account owner@example.com", e.Title)
	assert.Equal(t, "owner@example.com", e.AccountEmail)

	st, _ := h.bridge.EntryState(e.ID)
	assert.Equal(t, fleet.StateReady, st)
	assert.Len(t, h.bridge.Entities(), 3)

	stored, err := h.entries.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "key-1", stored.APIKey)

	_, err = h.bridge.AddEntry(ctx, "key-1")
	assert.ErrorIs(t, err, ErrAlreadyConfigured)
}

func TestAddEntry_InvalidKeyStoresNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.bridge.AddEntry(ctx, "bad-key")
	require.Error(t, err)
	assert.ErrorIs(t, err, fleet.ErrInvalidAuth)
	assert.Equal(t, "invalid_auth", fleet.ErrorCode(err))

	list, err := h.entries.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAddEntry_TransportFailureCannotConnect(t *testing.T) {
	h := newHarness(t)
	f := newFakeFleet()
	f.accountErr = &fleet.APIError{Kind: fleet.ErrTransport}
	h.accounts["key-1"] = f

	_, err := h.bridge.AddEntry(context.Background(), "key-1")
	assert.ErrorIs(t, err, fleet.ErrCannotConnect)
}

func TestRemoveEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.accounts["key-1"] = newFakeFleet()
	e, err := h.bridge.AddEntry(ctx, "key-1")
	require.NoError(t, err)

	require.NoError(t, h.bridge.RemoveEntry(ctx, e.ID))

	_, err = h.entries.Get(ctx, e.ID)
	assert.ErrorIs(t, err, configentry.ErrEntryNotFound)
	assert.Empty(t, h.bridge.Entities())
}

func TestUpdateDisplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := newFakeFleet()
	e := h.storeEntry(t, "key-1", f)
	require.NoError(t, h.bridge.SetupEntry(ctx, e))

	contents := `{"items":[{"type":"TEXT","data":{"text":"hi"}}]}`
	require.NoError(t, h.bridge.UpdateDisplay(ctx, "node-1", contents))

	renders := f.rendered()
	require.Len(t, renders, 1)
	assert.Equal(t, "node-1", renders[0].TargetNodeID)
	assert.Equal(t, contents, renders[0].Contents)

	err := h.bridge.UpdateDisplay(ctx, "hub-1", "x")
	assert.ErrorIs(t, err, fleet.ErrNotDisplay)

	err = h.bridge.UpdateDisplay(ctx, "nope", "x")
	assert.ErrorIs(t, err, fleet.ErrUnknownAsset)

	f.set(func(f *fakeFleet) { f.renderErr = &fleet.APIError{Kind: fleet.ErrTransport, StatusCode: 502} })
	err = h.bridge.UpdateDisplay(ctx, "node-2", "x")
	assert.ErrorIs(t, err, fleet.ErrDispatchFailed)

	stats := h.bridge.snapshot().Statistics
	assert.Equal(t, uint64(2), stats.Dispatches)
	assert.Equal(t, uint64(1), stats.DispatchFailures)

	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()
	require.Len(t, h.metrics.dispatches, 2)
	assert.True(t, h.metrics.dispatches[0].OK)
	assert.False(t, h.metrics.dispatches[1].OK)
}

func TestUpdateDisplay_DoesNotTouchConnectivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	f := newFakeFleet()
	e := h.storeEntry(t, "key-1", f)
	require.NoError(t, h.bridge.SetupEntry(ctx, e))

	f.set(func(f *fakeFleet) { f.renderErr = errors.New("boom") })
	require.Error(t, h.bridge.UpdateDisplay(ctx, "node-1", "x"))

	ent, err := h.bridge.Entity("node-1")
	require.NoError(t, err)
	assert.True(t, ent.IsOn)
	assert.True(t, ent.Available)
}

func TestStateListener(t *testing.T) {
	h := newHarness(t)
	var seen []entity.Entity
	h.bridge.AddStateListener(func(e entity.Entity) { seen = append(seen, e) })

	e := h.storeEntry(t, "key-1", newFakeFleet())
	require.NoError(t, h.bridge.SetupEntry(context.Background(), e))

	assert.Len(t, seen, 3)
}
