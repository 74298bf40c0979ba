package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle position of an Integration.
type State int

const (
	StateUninitialized State = iota
	StateValidating
	StateDiscovering
	StateReady
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValidating:
		return "validating"
	case StateDiscovering:
		return "discovering"
	case StateReady:
		return "ready"
	case StateTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures an Integration.
type Options struct {
	EntryID  string
	APIKey   string
	Factory  Factory
	Executor Runner
	Logger   Logger
}

// Integration binds one account to its monitors and dispatcher.
type Integration struct {
	entryID string
	apiKey  string
	factory Factory
	exec    Runner
	logger  Logger

	mu         sync.RWMutex
	state      State
	session    *Session
	identity   Identity
	fleet      *Fleet
	monitors   map[string]*Monitor
	order      []string
	dispatcher *Dispatcher
}

// Reconciliation lists the asset ids touched by a rediscovery.
type Reconciliation struct {
	Added   []string
	Removed []string
	Kept    []string
}

// Empty reports whether the fleet membership did not change.
func (r Reconciliation) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// New creates an Integration in the Uninitialized state.
func New(opts Options) (*Integration, error) {
	if opts.Factory == nil {
		return nil, errors.New("fleet: client factory is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("fleet: executor is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Integration{
		entryID: opts.EntryID,
		apiKey:  opts.APIKey,
		factory: opts.Factory,
		exec:    opts.Executor,
		logger:  opts.Logger,
		state:   StateUninitialized,
	}, nil
}

// EntryID returns the config entry this integration serves.
func (i *Integration) EntryID() string { return i.entryID }

// State returns the lifecycle state.
func (i *Integration) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Identity returns the validated account, zero before Ready.
func (i *Integration) Identity() Identity {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.identity
}

// Setup validates the key, discovers the fleet and builds one monitor per
// asset. On failure the integration returns to Uninitialized and the error
// wraps ErrNotReady and the cause.
func (i *Integration) Setup(ctx context.Context) error {
	i.mu.Lock()
	if i.state != StateUninitialized {
		st := i.state
		i.mu.Unlock()
		return fmt.Errorf("%w: setup from %s", ErrInvalidState, st)
	}
	i.state = StateValidating
	i.mu.Unlock()

	api, err := i.factory(i.apiKey)
	if err != nil {
		return i.fail(nil, classifySetup(err))
	}
	session := OpenSession(api, i.exec)

	i.mu.Lock()
	i.session = session
	i.mu.Unlock()

	identity, err := Validate(ctx, session)
	if err != nil {
		return i.fail(session, err)
	}
	if !i.advance(StateValidating, StateDiscovering) {
		return i.fail(session, ErrSessionReleased)
	}

	fl, err := Discover(ctx, session, i.logger)
	if err != nil {
		return i.fail(session, err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateDiscovering {
		session.Release()
		return fmt.Errorf("%w: %w", ErrNotReady, ErrSessionReleased)
	}

	i.identity = identity
	i.fleet = fl
	i.monitors = make(map[string]*Monitor, len(fl.Hubs)+len(fl.Nodes))
	i.order = i.order[:0]
	for _, a := range fl.Assets() {
		i.monitors[a.ID()] = NewMonitor(session, a)
		i.order = append(i.order, a.ID())
	}
	i.dispatcher = NewDispatcher(session)
	i.state = StateReady

	i.logger.Info("syncsign integration ready",
		"entry_id", i.entryID,
		"account", identity.Email,
		"hubs", len(fl.Hubs),
		"nodes", len(fl.Nodes),
	)
	return nil
}

func (i *Integration) advance(from, to State) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != from {
		return false
	}
	i.state = to
	return true
}

// fail releases the setup session and drops back to Uninitialized unless
// the integration was unloaded meanwhile.
func (i *Integration) fail(session *Session, cause error) error {
	if session != nil {
		session.Release()
	}

	i.mu.Lock()
	if i.state != StateTornDown {
		i.state = StateUninitialized
	}
	if i.session == session {
		i.session = nil
	}
	i.mu.Unlock()

	i.logger.Warn("syncsign setup failed", "entry_id", i.entryID, "error", cause)
	return fmt.Errorf("%w: %w", ErrNotReady, cause)
}

// Rediscover re-runs discovery and reconciles monitors by asset id.
// Surviving monitors keep their connectivity. On failure the previous fleet
// is left in place.
func (i *Integration) Rediscover(ctx context.Context) (Reconciliation, error) {
	i.mu.RLock()
	if i.state != StateReady {
		st := i.state
		i.mu.RUnlock()
		return Reconciliation{}, fmt.Errorf("%w: rediscover from %s", ErrInvalidState, st)
	}
	session := i.session
	i.mu.RUnlock()

	fl, err := Discover(ctx, session, i.logger)
	if err != nil {
		return Reconciliation{}, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateReady || i.session != session {
		return Reconciliation{}, ErrSessionReleased
	}

	var rec Reconciliation
	seen := make(map[string]struct{}, len(fl.Hubs)+len(fl.Nodes))
	order := make([]string, 0, len(fl.Hubs)+len(fl.Nodes))
	for _, a := range fl.Assets() {
		id := a.ID()
		seen[id] = struct{}{}
		order = append(order, id)
		if m, ok := i.monitors[id]; ok {
			if m.Asset().Kind == a.Kind {
				m.setAsset(a)
				rec.Kept = append(rec.Kept, id)
				continue
			}
			rec.Removed = append(rec.Removed, id)
		}
		i.monitors[id] = NewMonitor(session, a)
		rec.Added = append(rec.Added, id)
	}
	for _, id := range i.order {
		if _, ok := seen[id]; !ok {
			delete(i.monitors, id)
			rec.Removed = append(rec.Removed, id)
		}
	}
	i.order = order
	i.fleet = fl

	if !rec.Empty() {
		i.logger.Info("syncsign fleet changed",
			"entry_id", i.entryID,
			"added", len(rec.Added),
			"removed", len(rec.Removed),
		)
	}
	return rec, nil
}

// Fleet returns the last discovered fleet, nil before Ready.
func (i *Integration) Fleet() *Fleet {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.fleet == nil {
		return nil
	}
	cp := &Fleet{
		Hubs:  append([]HubDescriptor(nil), i.fleet.Hubs...),
		Nodes: append([]NodeDescriptor(nil), i.fleet.Nodes...),
	}
	return cp
}

// Monitors returns the monitors in discovery order.
func (i *Integration) Monitors() []*Monitor {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]*Monitor, 0, len(i.order))
	for _, id := range i.order {
		out = append(out, i.monitors[id])
	}
	return out
}

// Monitor returns the monitor for an asset id.
func (i *Integration) Monitor(id string) (*Monitor, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	m, ok := i.monitors[id]
	return m, ok
}

// Render forwards a display update to a node of this fleet.
func (i *Integration) Render(ctx context.Context, assetID, contents string) error {
	i.mu.RLock()
	if i.state != StateReady {
		i.mu.RUnlock()
		return ErrNotReady
	}
	m, ok := i.monitors[assetID]
	d := i.dispatcher
	i.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, assetID)
	}
	if m.Asset().Kind != AssetNode {
		return fmt.Errorf("%w: %s", ErrNotDisplay, assetID)
	}
	return d.Render(ctx, RenderCommand{TargetNodeID: assetID, Contents: contents})
}

// Unload releases the session and drops every monitor. Calls still in
// flight finish but their results are discarded.
func (i *Integration) Unload() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == StateTornDown {
		return
	}
	if i.session != nil {
		i.session.Release()
	}
	i.state = StateTornDown
	i.session = nil
	i.monitors = nil
	i.order = nil
	i.dispatcher = nil
	i.fleet = nil
	i.logger.Info("syncsign integration unloaded", "entry_id", i.entryID)
}
