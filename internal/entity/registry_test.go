package entity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
)

// MockRepository is an in-memory Repository.
type MockRepository struct {
	mu        sync.Mutex
	entities  map[string]Entity
	upserts   int
	upsertErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{entities: make(map[string]Entity)}
}

func (m *MockRepository) Upsert(_ context.Context, e *Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	m.entities[e.ID] = *e
	return nil
}

func (m *MockRepository) List(_ context.Context) ([]Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	return out, nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; !ok {
		return ErrEntityNotFound
	}
	delete(m.entities, id)
	return nil
}

func (m *MockRepository) DeleteByEntry(_ context.Context, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entities {
		if e.EntryID == entryID {
			delete(m.entities, id)
		}
	}
	return nil
}

func hubEntity() Entity {
	return FromAsset("entry-1", fleet.HubAsset(fleet.HubDescriptor{
		ID: "hub-1", FriendlyName: "Lobby Hub", ModelCode: "mrd", Model: fleet.HubModelLabel("mrd"),
		FirmwareVersion: "1.2.0", AppVersion: "3.4.5", HardwareVersion: "B",
	}))
}

func nodeEntity(id, parent string) Entity {
	return FromAsset("entry-1", fleet.NodeAsset(fleet.NodeDescriptor{
		ID: id, Name: "Room " + id, ModelCode: "D29AB", Model: fleet.NodeModelLabel("D29AB"), ParentHubID: parent,
	}))
}

func TestFromAsset_Hub(t *testing.T) {
	e := hubEntity()
	assert.Equal(t, "hub-1", e.ID)
	assert.Equal(t, KindHub, e.Kind)
	assert.Equal(t, "Lobby Hub Connected", e.Name)
	assert.Equal(t, "connectivity", e.DeviceClass)
	assert.Equal(t, "diagnostic", e.Category)
	assert.Equal(t, "mdi:wifi", e.Icon)
	assert.Equal(t, DeviceInfo{
		Name: "Lobby Hub", Manufacturer: "SyncSign", Model: "SyncSign Hub (mrd)",
		ModelCode: "mrd", SWVersion: "1.2.0+3.4.5", HWVersion: "B",
	}, e.Device)
	assert.False(t, e.IsOn)
	assert.False(t, e.Available)
}

func TestFromAsset_Node(t *testing.T) {
	e := nodeEntity("node-1", "hub-1")
	assert.Equal(t, KindNode, e.Kind)
	assert.Equal(t, "Room node-1 Connected", e.Name)
	assert.Equal(t, "hub-1", e.Device.ViaDeviceID)
	assert.Empty(t, e.Device.SWVersion)

	orphan := nodeEntity("node-9", "")
	assert.Empty(t, orphan.Device.ViaDeviceID)
}

func TestSyncEntry_AddUpdateRemove(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	diff, err := reg.SyncEntry(ctx, "entry-1", []Entity{hubEntity(), nodeEntity("node-1", "hub-1"), nodeEntity("node-2", "hub-1")})
	require.NoError(t, err)
	assert.Equal(t, []string{"hub-1", "node-1", "node-2"}, diff.Added)
	assert.Len(t, reg.List(), 3)

	changed, err := reg.SetConnectivity("node-1", true, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	renamed := nodeEntity("node-1", "hub-1")
	renamed.Name = "Renamed Connected"
	diff, err = reg.SyncEntry(ctx, "entry-1", []Entity{hubEntity(), renamed, nodeEntity("node-3", "")})
	require.NoError(t, err)
	assert.Equal(t, []string{"node-3"}, diff.Added)
	assert.Equal(t, []string{"node-1"}, diff.Updated)
	assert.Equal(t, []string{"node-2"}, diff.Removed)

	got, err := reg.Get("node-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed Connected", got.Name)
	assert.True(t, got.IsOn, "state survives re-registration")
	assert.True(t, got.Available)

	_, err = reg.Get("node-2")
	assert.ErrorIs(t, err, ErrEntityNotFound)
	assert.NotContains(t, repo.entities, "node-2")
}

func TestSyncEntry_UnchangedSkipsStore(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	_, err := reg.SyncEntry(ctx, "entry-1", []Entity{hubEntity()})
	require.NoError(t, err)
	diff, err := reg.SyncEntry(ctx, "entry-1", []Entity{hubEntity()})
	require.NoError(t, err)
	assert.True(t, diff.Empty())
	assert.Equal(t, 1, repo.upserts)
}

func TestSyncEntry_LeavesOtherEntries(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()

	_, err := reg.SyncEntry(ctx, "entry-1", []Entity{hubEntity()})
	require.NoError(t, err)
	other := nodeEntity("node-x", "")
	_, err = reg.SyncEntry(ctx, "entry-2", []Entity{other})
	require.NoError(t, err)

	_, err = reg.SyncEntry(ctx, "entry-1", nil)
	require.NoError(t, err)
	assert.Empty(t, reg.ListByEntry("entry-1"))
	assert.Len(t, reg.ListByEntry("entry-2"), 1)
}

func TestSyncEntry_StoreFailure(t *testing.T) {
	repo := NewMockRepository()
	repo.upsertErr = errors.New("disk full")
	reg := NewRegistry(repo)

	_, err := reg.SyncEntry(context.Background(), "entry-1", []Entity{hubEntity()})
	require.Error(t, err)
	assert.Empty(t, reg.List())
}

func TestSetConnectivity(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	_, err := reg.SyncEntry(context.Background(), "entry-1", []Entity{hubEntity()})
	require.NoError(t, err)

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	changed, err := reg.SetConnectivity("hub-1", false, at)
	require.NoError(t, err)
	assert.True(t, changed, "first poll is a change")

	changed, err = reg.SetConnectivity("hub-1", false, at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = reg.SetConnectivity("hub-1", true, at.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := reg.Get("hub-1")
	require.NoError(t, err)
	assert.True(t, got.IsOn)
	require.NotNil(t, got.StateUpdatedAt)
	assert.Equal(t, at.Add(2*time.Minute), *got.StateUpdatedAt)

	_, err = reg.SetConnectivity("missing", true, at)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestSyncEntry_RegisteredEntitiesAreAvailable(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	ctx := context.Background()

	_, err := reg.SyncEntry(ctx, "entry-1", []Entity{hubEntity(), nodeEntity("node-1", "hub-1")})
	require.NoError(t, err)

	got, err := reg.Get("node-1")
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.False(t, got.IsOn, "off until the first successful poll")
	assert.Nil(t, got.StateUpdatedAt)

	reg.SetUnavailable("entry-1")
	_, err = reg.SyncEntry(ctx, "entry-1", []Entity{hubEntity(), nodeEntity("node-1", "hub-1")})
	require.NoError(t, err)
	got, err = reg.Get("hub-1")
	require.NoError(t, err)
	assert.True(t, got.Available, "a ready entry restores availability")
}

func TestSetUnavailable(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	_, err := reg.SyncEntry(context.Background(), "entry-1", []Entity{hubEntity(), nodeEntity("node-1", "hub-1")})
	require.NoError(t, err)
	_, err = reg.SetConnectivity("hub-1", true, time.Now())
	require.NoError(t, err)

	assert.Equal(t, []string{"hub-1", "node-1"}, reg.SetUnavailable("entry-1"))
	assert.Empty(t, reg.SetUnavailable("entry-1"))

	got, err := reg.Get("hub-1")
	require.NoError(t, err)
	assert.True(t, got.IsOn, "last value is kept")
	assert.False(t, got.Available)
}

func TestRemoveEntry(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	_, err := reg.SyncEntry(ctx, "entry-1", []Entity{hubEntity(), nodeEntity("node-1", "hub-1")})
	require.NoError(t, err)

	removed, err := reg.RemoveEntry(ctx, "entry-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"hub-1", "node-1"}, removed)
	assert.Empty(t, reg.List())
	assert.Empty(t, repo.entities)
}

func TestRefreshCache_KeepsState(t *testing.T) {
	repo := NewMockRepository()
	reg := NewRegistry(repo)
	ctx := context.Background()

	_, err := reg.SyncEntry(ctx, "entry-1", []Entity{hubEntity()})
	require.NoError(t, err)
	_, err = reg.SetConnectivity("hub-1", true, time.Now())
	require.NoError(t, err)

	require.NoError(t, reg.RefreshCache(ctx))
	got, err := reg.Get("hub-1")
	require.NoError(t, err)
	assert.True(t, got.IsOn)

	fresh := NewRegistry(repo)
	require.NoError(t, fresh.RefreshCache(ctx))
	got, err = fresh.Get("hub-1")
	require.NoError(t, err)
	assert.False(t, got.IsOn, "connectivity is not persisted")
	assert.False(t, got.Available)
}

func TestGet_ReturnsCopy(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	_, err := reg.SyncEntry(context.Background(), "entry-1", []Entity{hubEntity()})
	require.NoError(t, err)

	got, err := reg.Get("hub-1")
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := reg.Get("hub-1")
	require.NoError(t, err)
	assert.Equal(t, "Lobby Hub Connected", again.Name)
}

func TestSetConnectivity_Concurrent(t *testing.T) {
	reg := NewRegistry(NewMockRepository())
	_, err := reg.SyncEntry(context.Background(), "entry-1", []Entity{hubEntity()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = reg.SetConnectivity("hub-1", i%2 == 0, time.Now())
			_ = reg.List()
		}()
	}
	wg.Wait()
}
