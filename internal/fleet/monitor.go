package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Status is a snapshot of one monitor.
type Status struct {
	AssetID   string    `json:"asset_id"`
	Kind      AssetKind `json:"kind"`
	Connected bool      `json:"connected"`
	PolledAt  time.Time `json:"polled_at,omitzero"`
	// Changed is set on the Status returned by a Refresh that flipped the value.
	Changed bool `json:"-"`
}

// Monitor tracks the connectivity of one asset. The last known value starts
// false and only a successful poll changes it.
type Monitor struct {
	session *Session

	pollMu sync.Mutex // serialises Refresh

	mu        sync.RWMutex
	asset     Asset
	connected bool
	polledAt  time.Time
	failures  int
	now       func() time.Time
}

// NewMonitor creates a monitor for asset polling through s.
func NewMonitor(s *Session, asset Asset) *Monitor {
	return &Monitor{session: s, asset: asset, now: time.Now}
}

// Asset returns the monitored asset descriptor.
func (m *Monitor) Asset() Asset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.asset
}

// setAsset swaps in a refreshed descriptor with the same id.
func (m *Monitor) setAsset(a Asset) {
	m.mu.Lock()
	m.asset = a
	m.mu.Unlock()
}

// Connected returns the last known connectivity.
func (m *Monitor) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Polled reports whether any poll has succeeded.
func (m *Monitor) Polled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.polledAt.IsZero()
}

// ConsecutiveFailures is the number of stale polls since the last success.
func (m *Monitor) ConsecutiveFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures
}

// Status returns the current snapshot without polling.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *Monitor) statusLocked() Status {
	return Status{
		AssetID:   m.asset.ID(),
		Kind:      m.asset.Kind,
		Connected: m.connected,
		PolledAt:  m.polledAt,
	}
}

// Refresh polls the asset once. On failure the last known value is kept and
// the returned error wraps ErrStalePoll together with the cause.
func (m *Monitor) Refresh(ctx context.Context) (Status, error) {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	asset := m.Asset()
	connected, err := m.poll(ctx, asset)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil && m.session.Released() {
		err = ErrSessionReleased
	}
	if err != nil {
		m.failures++
		return m.statusLocked(), fmt.Errorf("%w: %s %s: %w", ErrStalePoll, asset.Kind, asset.ID(), err)
	}

	changed := connected != m.connected
	m.connected = connected
	m.polledAt = m.now()
	m.failures = 0

	st := m.statusLocked()
	st.Changed = changed
	return st, nil
}

func (m *Monitor) poll(ctx context.Context, asset Asset) (bool, error) {
	switch asset.Kind {
	case AssetHub:
		rec, err := m.session.GetHub(ctx, asset.ID())
		if err != nil {
			return false, err
		}
		if rec == nil || rec.Network.Connected == nil {
			return false, &APIError{Kind: ErrMalformedResponse, Op: "GET /devices/{id}", Message: "network.connected missing"}
		}
		return *rec.Network.Connected, nil
	case AssetNode:
		rec, err := m.session.GetNode(ctx, asset.ID())
		if err != nil {
			return false, err
		}
		if rec == nil || rec.Onlined == nil {
			return false, &APIError{Kind: ErrMalformedResponse, Op: "GET /nodes/{id}", Message: "onlined missing"}
		}
		return *rec.Onlined, nil
	default:
		return false, fmt.Errorf("%w: kind %q", ErrUnknownAsset, asset.Kind)
	}
}
