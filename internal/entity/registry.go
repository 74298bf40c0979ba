package entity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Logger is the logging surface the registry needs.
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

// Diff is the outcome of SyncEntry, as entity ids.
type Diff struct {
	Added   []string
	Updated []string
	Removed []string
}

// Empty reports whether SyncEntry changed nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// Registry caches every entity over a Repository.
//
// All public methods are thread-safe. Returned entities are copies.
type Registry struct {
	repo    Repository
	cache   map[string]*Entity
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry; call RefreshCache before use.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Entity),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads registrations from the repository. State already
// held in memory for surviving ids is kept.
func (r *Registry) RefreshCache(ctx context.Context) error {
	stored, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading entities: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	next := make(map[string]*Entity, len(stored))
	for i := range stored {
		e := stored[i].DeepCopy()
		if prev, ok := r.cache[e.ID]; ok {
			copyState(e, prev)
		}
		next[e.ID] = e
	}
	r.cache = next

	r.logger.Info("entity cache refreshed", "count", len(stored))
	return nil
}

// Get returns ErrEntityNotFound for unknown ids.
func (r *Registry) Get(id string) (*Entity, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	e, ok := r.cache[id]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return e.DeepCopy(), nil
}

// List returns every entity ordered by id.
func (r *Registry) List() []Entity {
	r.cacheMu.RLock()
	out := make([]Entity, 0, len(r.cache))
	for _, e := range r.cache {
		out = append(out, *e.DeepCopy())
	}
	r.cacheMu.RUnlock()

	slices.SortFunc(out, func(a, b Entity) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// ListByEntry returns the entities of one entry ordered by id.
func (r *Registry) ListByEntry(entryID string) []Entity {
	all := r.List()
	out := all[:0]
	for _, e := range all {
		if e.EntryID == entryID {
			out = append(out, e)
		}
	}
	return out
}

// SyncEntry makes entryID's registrations equal to want: new ids are
// added, changed registrations updated, missing ones removed. It is called
// for a ready entry, so every synced entity is available; connectivity of
// surviving entities is kept and new ones read off until polled.
func (r *Registry) SyncEntry(ctx context.Context, entryID string, want []Entity) (Diff, error) {
	var diff Diff
	seen := make(map[string]bool, len(want))

	for i := range want {
		e := want[i].DeepCopy()
		e.EntryID = entryID
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true

		r.cacheMu.RLock()
		prev, existed := r.cache[e.ID]
		unchanged := existed && prev.sameRegistration(e)
		r.cacheMu.RUnlock()
		if unchanged {
			continue
		}

		if existed {
			e.CreatedAt = prev.CreatedAt
		}
		if err := r.repo.Upsert(ctx, e); err != nil {
			return diff, fmt.Errorf("registering %s: %w", e.ID, err)
		}

		r.cacheMu.Lock()
		if cur, ok := r.cache[e.ID]; ok {
			copyState(e, cur)
		}
		r.cache[e.ID] = e
		r.cacheMu.Unlock()

		if existed {
			diff.Updated = append(diff.Updated, e.ID)
		} else {
			diff.Added = append(diff.Added, e.ID)
		}
	}

	r.cacheMu.Lock()
	for id := range seen {
		if e, ok := r.cache[id]; ok {
			e.Available = true
		}
	}
	r.cacheMu.Unlock()

	for _, e := range r.ListByEntry(entryID) {
		if seen[e.ID] {
			continue
		}
		if err := r.repo.Delete(ctx, e.ID); err != nil && !errors.Is(err, ErrEntityNotFound) {
			return diff, fmt.Errorf("removing %s: %w", e.ID, err)
		}
		r.cacheMu.Lock()
		delete(r.cache, e.ID)
		r.cacheMu.Unlock()
		diff.Removed = append(diff.Removed, e.ID)
	}

	if !diff.Empty() {
		r.logger.Info("entities synchronised",
			"entry_id", entryID,
			"added", len(diff.Added),
			"updated", len(diff.Updated),
			"removed", len(diff.Removed),
		)
	}
	return diff, nil
}

// RemoveEntry drops every entity of entryID and returns their ids.
func (r *Registry) RemoveEntry(ctx context.Context, entryID string) ([]string, error) {
	if err := r.repo.DeleteByEntry(ctx, entryID); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	var removed []string
	for id, e := range r.cache {
		if e.EntryID == entryID {
			delete(r.cache, id)
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)
	return removed, nil
}

// SetConnectivity records a successful poll. It reports true when the
// published state changed: the first poll, a flipped value, or the entity
// becoming available.
func (r *Registry) SetConnectivity(id string, connected bool, at time.Time) (bool, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	e, ok := r.cache[id]
	if !ok {
		return false, ErrEntityNotFound
	}

	changed := !e.Available || e.IsOn != connected || e.StateUpdatedAt == nil
	e.IsOn = connected
	e.Available = true
	t := at
	e.StateUpdatedAt = &t
	return changed, nil
}

// SetUnavailable marks every entity of entryID unavailable, keeping the
// last value. It returns the ids that changed.
func (r *Registry) SetUnavailable(entryID string) []string {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	var changed []string
	for id, e := range r.cache {
		if e.EntryID == entryID && e.Available {
			e.Available = false
			changed = append(changed, id)
		}
	}
	slices.Sort(changed)
	return changed
}

func copyState(dst, src *Entity) {
	dst.IsOn = src.IsOn
	dst.Available = src.Available
	if src.StateUpdatedAt != nil {
		t := *src.StateUpdatedAt
		dst.StateUpdatedAt = &t
	}
}
