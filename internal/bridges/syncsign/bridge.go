package syncsign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/nerrad567/gray-logic-syncsign/internal/configentry"
	"github.com/nerrad567/gray-logic-syncsign/internal/entity"
	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/mqtt"
)

// setupTimeout bounds one entry setup (validate, discover, first poll).
const setupTimeout = 60 * time.Second

// Logger is the logging surface the bridge needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MQTTClient is the bus surface the bridge uses. *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// EntityRegistry holds the entities the bridge exposes. *entity.Registry
// satisfies it.
type EntityRegistry interface {
	SyncEntry(ctx context.Context, entryID string, want []entity.Entity) (entity.Diff, error)
	RemoveEntry(ctx context.Context, entryID string) ([]string, error)
	SetConnectivity(id string, connected bool, at time.Time) (bool, error)
	SetUnavailable(entryID string) []string
	Get(id string) (*entity.Entity, error)
	List() []entity.Entity
	ListByEntry(entryID string) []entity.Entity
}

// MetricsWriter records poll and dispatch outcomes. *influxdb.Client
// satisfies it. Optional.
type MetricsWriter interface {
	WritePoll(s influxdb.PollSample)
	WriteDispatch(s influxdb.DispatchSample)
}

// StateListener is told about every published entity state.
type StateListener func(e entity.Entity)

// BridgeOptions holds the dependencies of a bridge.
type BridgeOptions struct {
	Config   config.SyncSignConfig
	BridgeID string
	Version  string

	MQTTClient MQTTClient
	Entries    configentry.Repository
	Registry   EntityRegistry
	Factory    fleet.Factory
	Executor   fleet.Runner

	// Health is created when nil. Pass the reporter whose Presence was
	// given to mqtt.Connect.
	Health  *HealthReporter
	Metrics MetricsWriter
	Logger  Logger
}

type loadedEntry struct {
	entry *configentry.Entry
	integ *fleet.Integration
}

// Bridge hosts SyncSign integrations, one per config entry.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg      config.SyncSignConfig
	bridgeID string

	mqtt     MQTTClient
	entries  configentry.Repository
	registry EntityRegistry
	factory  fleet.Factory
	exec     fleet.Runner
	metrics  MetricsWriter
	health   *HealthReporter
	topics   mqtt.Topics
	logger   Logger

	mu     sync.RWMutex
	loaded map[string]*loadedEntry

	// setupMu serialises setup, unload and rediscovery per bridge.
	setupMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []StateListener

	polls            atomic.Uint64
	stalePolls       atomic.Uint64
	dispatches       atomic.Uint64
	dispatchFailures atomic.Uint64
	commandsReceived atomic.Uint64

	// cmdMu orders inflight.Add against Stop's Wait.
	cmdMu    sync.Mutex
	stopping bool
	inflight sync.WaitGroup

	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	started   atomic.Bool
	stopOnce  sync.Once
}

// NewBridge validates opts and creates a bridge. Call Start to run it.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, errors.New("MQTT client is required")
	}
	if opts.Entries == nil {
		return nil, errors.New("config entry store is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("entity registry is required")
	}
	if opts.Factory == nil {
		return nil, errors.New("fleet client factory is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if opts.BridgeID == "" {
		opts.BridgeID = Protocol
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Health == nil {
		opts.Health = NewHealthReporter(opts.BridgeID, opts.Version)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		cfg:      withDefaults(opts.Config),
		bridgeID: opts.BridgeID,
		mqtt:     opts.MQTTClient,
		entries:  opts.Entries,
		registry: opts.Registry,
		factory:  opts.Factory,
		exec:     opts.Executor,
		metrics:  opts.Metrics,
		health:   opts.Health,
		logger:   opts.Logger,
		loaded:   make(map[string]*loadedEntry),
		ctx:      ctx,
		cancel:   cancel,
	}
	b.health.attach(opts.MQTTClient, b.snapshot)
	return b, nil
}

func withDefaults(c config.SyncSignConfig) config.SyncSignConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.MaxConcurrentPolls <= 0 {
		c.MaxConcurrentPolls = 4
	}
	if c.RediscoverInterval < 0 {
		c.RediscoverInterval = 0
	}
	if c.SetupRetryInterval <= 0 {
		c.SetupRetryInterval = time.Minute
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 30 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 15 * time.Second
	}
	return c
}

// Start sets up every stored entry, subscribes to commands and schedules
// the periodic jobs. Entries that fail setup are retried by the scheduler.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return errors.New("bridge already started")
	}

	if err := b.health.PublishStarting(); err != nil {
		b.logger.Warn("failed to publish starting status", "error", err)
	}

	entries, err := b.entries.List(ctx)
	if err != nil {
		return fmt.Errorf("loading config entries: %w", err)
	}
	for i := range entries {
		if err := b.SetupEntry(ctx, &entries[i]); err != nil {
			b.logger.Warn("entry not ready, will retry",
				"entry_id", entries[i].ID,
				"title", entries[i].Title,
				"error", err)
		}
	}

	topic := b.topics.BridgeCommands(Protocol)
	if err := b.mqtt.Subscribe(topic, 1, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", topic)

	if err := b.schedule(); err != nil {
		return err
	}

	if err := b.health.PublishNow(); err != nil {
		b.logger.Warn("failed to publish health", "error", err)
	}

	b.logger.Info("syncsign bridge started",
		"bridge_id", b.bridgeID,
		"entries", len(entries),
		"entities", len(b.registry.List()),
	)
	return nil
}

// Stop shuts the scheduler down, unloads every integration and marks all
// entities unavailable. Registrations are kept for the next start.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.cmdMu.Lock()
		b.stopping = true
		b.cmdMu.Unlock()

		b.cancel()
		if b.scheduler != nil {
			if err := b.scheduler.Shutdown(); err != nil {
				b.logger.Warn("scheduler shutdown", "error", err)
			}
		}
		b.inflight.Wait()

		b.setupMu.Lock()
		b.mu.Lock()
		loaded := b.loaded
		b.loaded = make(map[string]*loadedEntry)
		b.mu.Unlock()
		for id, le := range loaded {
			le.integ.Unload()
			b.publishStates(b.registry.SetUnavailable(id))
		}
		b.setupMu.Unlock()

		if err := b.health.PublishStopping(); err != nil {
			b.logger.Warn("failed to publish stopping status", "error", err)
		}
		b.logger.Info("syncsign bridge stopped")
	})
}

// SetupEntry brings one entry to Ready: validate, discover, register one
// entity per asset, poll each once, then announce them. On failure the
// entry stays loaded in the not-ready state and is retried on schedule.
func (b *Bridge) SetupEntry(ctx context.Context, entry *configentry.Entry) error {
	b.setupMu.Lock()
	defer b.setupMu.Unlock()
	return b.setupEntryLocked(ctx, entry)
}

func (b *Bridge) setupEntryLocked(ctx context.Context, entry *configentry.Entry) error {
	b.mu.RLock()
	le, ok := b.loaded[entry.ID]
	b.mu.RUnlock()

	if ok && le.integ.State() == fleet.StateReady {
		return nil
	}
	if !ok {
		var err error
		if le, err = b.load(entry); err != nil {
			return err
		}
	}

	setupCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	if err := le.integ.Setup(setupCtx); err != nil {
		b.publishStates(b.registry.SetUnavailable(entry.ID))
		return err
	}

	if _, err := b.syncEntities(setupCtx, le, true); err != nil {
		// An entry is only ready once its entities are registered.
		le.integ.Unload()
		if _, loadErr := b.load(entry); loadErr != nil {
			b.logger.Error("reloading syncsign entry failed", "entry_id", entry.ID, "error", loadErr)
		}
		b.publishStates(b.registry.SetUnavailable(entry.ID))
		return fmt.Errorf("%w: %w", fleet.ErrNotReady, err)
	}

	id := le.integ.Identity()
	b.logger.Info("syncsign entry ready",
		"entry_id", entry.ID,
		"account", id.Email,
		"entities", len(b.registry.ListByEntry(entry.ID)),
	)
	return nil
}

// load installs a fresh, uninitialised integration for entry, replacing
// any previous one.
func (b *Bridge) load(entry *configentry.Entry) (*loadedEntry, error) {
	integ, err := fleet.New(fleet.Options{
		EntryID:  entry.ID,
		APIKey:   entry.APIKey,
		Factory:  b.factory,
		Executor: b.exec,
		Logger:   b.logger,
	})
	if err != nil {
		return nil, err
	}
	le := &loadedEntry{entry: entry, integ: integ}
	b.mu.Lock()
	b.loaded[entry.ID] = le
	b.mu.Unlock()
	return le, nil
}

// syncEntities reconciles the registry with the integration's fleet.
// Added entities are polled before they are announced. With announceAll
// every entity of the entry is (re)announced and its state published.
func (b *Bridge) syncEntities(ctx context.Context, le *loadedEntry, announceAll bool) (entity.Diff, error) {
	fl := le.integ.Fleet()
	if fl == nil {
		return entity.Diff{}, fleet.ErrNotReady
	}

	assets := fl.Assets()
	want := make([]entity.Entity, 0, len(assets))
	for _, a := range assets {
		want = append(want, entity.FromAsset(le.entry.ID, a))
	}

	diff, err := b.registry.SyncEntry(ctx, le.entry.ID, want)
	if err != nil {
		return diff, fmt.Errorf("registering entities: %w", err)
	}

	for _, id := range diff.Removed {
		b.announceRemoval(id)
	}

	fresh := diff.Added
	if announceAll {
		fresh = make([]string, 0, len(want))
		for _, e := range want {
			fresh = append(fresh, e.ID)
		}
	}
	b.pollIDs(ctx, le, fresh, false)

	announce := fresh
	if !announceAll {
		announce = append(append([]string(nil), diff.Added...), diff.Updated...)
	}
	for _, id := range announce {
		b.announce(id)
	}
	b.publishStates(fresh)
	return diff, nil
}

// UnloadEntry unloads an entry's integration and removes its entities.
func (b *Bridge) UnloadEntry(ctx context.Context, entryID string) error {
	b.setupMu.Lock()
	defer b.setupMu.Unlock()

	b.mu.Lock()
	le, ok := b.loaded[entryID]
	delete(b.loaded, entryID)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotLoaded, entryID)
	}

	le.integ.Unload()

	removed, err := b.registry.RemoveEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("removing entities: %w", err)
	}
	for _, id := range removed {
		b.announceRemoval(id)
	}
	b.logger.Info("syncsign entry unloaded", "entry_id", entryID, "entities_removed", len(removed))
	return nil
}

// ValidateCredentials checks an API key without storing anything. Errors
// wrap fleet.ErrCannotConnect, fleet.ErrInvalidAuth or fleet.ErrUnknownSetup.
func (b *Bridge) ValidateCredentials(ctx context.Context, apiKey string) (fleet.Identity, error) {
	return fleet.ValidateKey(ctx, apiKey, b.factory, b.exec)
}

// AddEntry validates apiKey, stores a new entry titled after the account
// and sets it up. A setup failure after the entry is stored is logged and
// left to the retry job; the entry is still returned.
func (b *Bridge) AddEntry(ctx context.Context, apiKey string) (*configentry.Entry, error) {
	if _, err := b.entries.GetByAPIKey(ctx, apiKey); err == nil {
		return nil, ErrAlreadyConfigured
	} else if !errors.Is(err, configentry.ErrEntryNotFound) {
		return nil, err
	}

	identity, err := b.ValidateCredentials(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	entry := configentry.New(identity.Title, apiKey, identity.Email)
	if err := b.entries.Create(ctx, entry); err != nil {
		if errors.Is(err, configentry.ErrEntryExists) {
			return nil, ErrAlreadyConfigured
		}
		return nil, err
	}
	b.logger.Info("syncsign entry added", "entry_id", entry.ID, "title", entry.Title)

	if err := b.SetupEntry(ctx, entry); err != nil {
		b.logger.Warn("new entry not ready, will retry", "entry_id", entry.ID, "error", err)
	}
	return entry, nil
}

// RemoveEntry unloads an entry and deletes it.
func (b *Bridge) RemoveEntry(ctx context.Context, entryID string) error {
	if err := b.UnloadEntry(ctx, entryID); err != nil && !errors.Is(err, ErrEntryNotLoaded) {
		return err
	}
	if _, err := b.registry.RemoveEntry(ctx, entryID); err != nil {
		return fmt.Errorf("removing entities: %w", err)
	}
	return b.entries.Delete(ctx, entryID)
}

// EntryState returns the lifecycle state of a loaded entry.
func (b *Bridge) EntryState(entryID string) (fleet.State, bool) {
	b.mu.RLock()
	le, ok := b.loaded[entryID]
	b.mu.RUnlock()
	if !ok {
		return fleet.StateUninitialized, false
	}
	return le.integ.State(), true
}

// UpdateDisplay sends contents to the display behind entityID. Errors wrap
// fleet.ErrUnknownAsset, fleet.ErrNotDisplay, fleet.ErrNotReady or
// fleet.ErrDispatchFailed.
func (b *Bridge) UpdateDisplay(ctx context.Context, entityID, contents string) error {
	ent, err := b.registry.Get(entityID)
	if err != nil {
		return fmt.Errorf("%w: %s", fleet.ErrUnknownAsset, entityID)
	}

	b.mu.RLock()
	le, ok := b.loaded[ent.EntryID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: entry %s", fleet.ErrNotReady, ent.EntryID)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
	defer cancel()

	start := time.Now()
	err = le.integ.Render(ctx, entityID, contents)
	elapsed := time.Since(start)

	dispatched := err == nil || errors.Is(err, fleet.ErrDispatchFailed)
	if dispatched {
		b.dispatches.Add(1)
		if err != nil {
			b.dispatchFailures.Add(1)
		}
		if b.metrics != nil {
			b.metrics.WriteDispatch(influxdb.DispatchSample{
				EntryID:  ent.EntryID,
				NodeID:   entityID,
				OK:       err == nil,
				Duration: elapsed,
				At:       start,
			})
		}
	}

	if err != nil {
		b.logger.Warn("display update failed", "entity_id", entityID, "error", err)
		return err
	}
	b.logger.Info("display updated", "entity_id", entityID, "duration", elapsed)
	return nil
}

// Entities returns every registered entity.
func (b *Bridge) Entities() []entity.Entity {
	return b.registry.List()
}

// Entity returns one entity.
func (b *Bridge) Entity(id string) (*entity.Entity, error) {
	return b.registry.Get(id)
}

// AddStateListener registers fn for every published state.
func (b *Bridge) AddStateListener(fn StateListener) {
	b.listenersMu.Lock()
	b.listeners = append(b.listeners, fn)
	b.listenersMu.Unlock()
}

// Health returns the current health message without publishing it.
func (b *Bridge) Health() HealthMessage {
	publisher, snap := b.health.current()
	status, reason := determineStatus(publisher, snap)
	return b.health.Message(status, reason)
}

func (b *Bridge) snapshot() HealthSnapshot {
	var counts EntryCounts
	b.mu.RLock()
	for _, le := range b.loaded {
		if le.integ.State() == fleet.StateReady {
			counts.Ready++
		} else {
			counts.NotReady++
		}
	}
	b.mu.RUnlock()

	return HealthSnapshot{
		Entries:  counts,
		Entities: len(b.registry.List()),
		Statistics: BridgeStatistics{
			Polls:            b.polls.Load(),
			StalePolls:       b.stalePolls.Load(),
			Dispatches:       b.dispatches.Load(),
			DispatchFailures: b.dispatchFailures.Load(),
			CommandsReceived: b.commandsReceived.Load(),
		},
	}
}

// readyEntries returns the loaded entries in the given readiness, ordered
// by entry id.
func (b *Bridge) readyEntries(ready bool) []*loadedEntry {
	b.mu.RLock()
	out := make([]*loadedEntry, 0, len(b.loaded))
	for _, le := range b.loaded {
		if (le.integ.State() == fleet.StateReady) == ready {
			out = append(out, le)
		}
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].entry.ID < out[j].entry.ID })
	return out
}

func (b *Bridge) publishStates(ids []string) {
	for _, id := range ids {
		e, err := b.registry.Get(id)
		if err != nil {
			continue
		}
		b.publishJSON(b.topics.BridgeState(Protocol, id), NewStateMessage(*e), true)

		b.listenersMu.RLock()
		listeners := b.listeners
		b.listenersMu.RUnlock()
		for _, fn := range listeners {
			fn(*e)
		}
	}
}

func (b *Bridge) announce(id string) {
	e, err := b.registry.Get(id)
	if err != nil {
		return
	}
	b.publishJSON(b.topics.BridgeDiscovery(Protocol), DiscoveryMessage{
		Action:    DiscoveryAdd,
		Timestamp: time.Now().UTC(),
		EntityID:  id,
		Entity:    e,
		Protocol:  Protocol,
	}, false)
}

func (b *Bridge) announceRemoval(id string) {
	b.publishJSON(b.topics.BridgeDiscovery(Protocol), DiscoveryMessage{
		Action:    DiscoveryRemove,
		Timestamp: time.Now().UTC(),
		EntityID:  id,
		Protocol:  Protocol,
	}, false)
	// Clear the retained state.
	if err := b.mqtt.Publish(b.topics.BridgeState(Protocol, id), nil, 1, true); err != nil {
		b.logger.Warn("failed to clear retained state", "entity_id", id, "error", err)
	}
}

func (b *Bridge) publishJSON(topic string, v any, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("failed to marshal message", "topic", topic, "error", err)
		return
	}
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.logger.Warn("failed to publish", "topic", topic, "error", err)
	}
}
