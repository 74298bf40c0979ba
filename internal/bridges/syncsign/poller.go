package syncsign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/influxdb"
)

// schedule registers the periodic jobs and starts the scheduler. Every job
// reschedules instead of overlapping when a run outlasts its interval. A
// zero rediscovery interval leaves that job out.
func (b *Bridge) schedule() error {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.Local))
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	jobs := []struct {
		name  string
		every time.Duration
		fn    func()
	}{
		{"syncsign-poll", b.cfg.PollInterval, func() { b.PollAll(b.ctx) }},
		{"syncsign-rediscover", b.cfg.RediscoverInterval, func() { b.RediscoverAll(b.ctx) }},
		{"syncsign-setup-retry", b.cfg.SetupRetryInterval, func() { b.retryPending(b.ctx) }},
		{"syncsign-health", b.cfg.HealthInterval, func() {
			if err := b.health.PublishNow(); err != nil {
				b.logger.Warn("failed to publish health", "error", err)
			}
		}},
	}
	for _, j := range jobs {
		if j.every <= 0 {
			continue
		}
		if _, err := s.NewJob(
			gocron.DurationJob(j.every),
			gocron.NewTask(j.fn),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = s.Shutdown() //nolint:errcheck // already failing
			return fmt.Errorf("scheduling %s: %w", j.name, err)
		}
	}

	s.Start()
	b.scheduler = s
	return nil
}

type pollTarget struct {
	entryID string
	monitor *fleet.Monitor
}

// PollAll refreshes every monitor of every ready entry and publishes the
// entities whose state changed. A failed poll leaves the entity as it was.
func (b *Bridge) PollAll(ctx context.Context) {
	var targets []pollTarget
	for _, le := range b.readyEntries(true) {
		for _, m := range le.integ.Monitors() {
			targets = append(targets, pollTarget{entryID: le.entry.ID, monitor: m})
		}
	}
	if len(targets) == 0 {
		return
	}
	b.publishStates(b.poll(ctx, targets))
}

// pollIDs refreshes the monitors of ids within one entry. With publish the
// changed states are published.
func (b *Bridge) pollIDs(ctx context.Context, le *loadedEntry, ids []string, publish bool) {
	targets := make([]pollTarget, 0, len(ids))
	for _, id := range ids {
		if m, ok := le.integ.Monitor(id); ok {
			targets = append(targets, pollTarget{entryID: le.entry.ID, monitor: m})
		}
	}
	changed := b.poll(ctx, targets)
	if publish {
		b.publishStates(changed)
	}
}

// poll refreshes targets concurrently and returns the ids whose entity
// state changed.
func (b *Bridge) poll(ctx context.Context, targets []pollTarget) []string {
	var (
		mu      sync.Mutex
		changed []string
		g       errgroup.Group
	)
	g.SetLimit(b.cfg.MaxConcurrentPolls)

	for _, t := range targets {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if b.pollOne(ctx, t) {
				mu.Lock()
				changed = append(changed, t.monitor.Asset().ID())
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never fail

	return changed
}

func (b *Bridge) pollOne(ctx context.Context, t pollTarget) bool {
	asset := t.monitor.Asset()
	start := time.Now()
	st, err := t.monitor.Refresh(ctx)
	elapsed := time.Since(start)
	b.polls.Add(1)

	if b.metrics != nil {
		b.metrics.WritePoll(influxdb.PollSample{
			EntryID:   t.entryID,
			AssetID:   asset.ID(),
			Kind:      string(asset.Kind),
			Connected: st.Connected,
			OK:        err == nil,
			Duration:  elapsed,
			At:        start,
		})
	}

	if err != nil {
		b.stalePolls.Add(1)
		if errors.Is(err, fleet.ErrSessionReleased) {
			b.logger.Debug("poll discarded after unload", "asset_id", asset.ID())
		} else {
			b.logger.Warn("connectivity poll failed", "entry_id", t.entryID, "asset_id", asset.ID(), "error", err)
		}
		return false
	}

	changed, err := b.registry.SetConnectivity(asset.ID(), st.Connected, st.PolledAt)
	if err != nil {
		b.logger.Debug("polled asset has no entity", "asset_id", asset.ID(), "error", err)
		return false
	}
	if changed {
		b.logger.Debug("connectivity changed", "asset_id", asset.ID(), "connected", st.Connected)
	}
	return changed
}

// RediscoverAll re-runs discovery for every ready entry and reconciles its
// entities. A failed rediscovery keeps the previous fleet.
func (b *Bridge) RediscoverAll(ctx context.Context) {
	b.setupMu.Lock()
	defer b.setupMu.Unlock()

	for _, le := range b.readyEntries(true) {
		if ctx.Err() != nil {
			return
		}
		rec, err := le.integ.Rediscover(ctx)
		if err != nil {
			b.logger.Warn("rediscovery failed", "entry_id", le.entry.ID, "error", err)
			continue
		}
		diff, err := b.syncEntities(ctx, le, false)
		if err != nil {
			b.logger.Warn("entity sync after rediscovery failed", "entry_id", le.entry.ID, "error", err)
			continue
		}
		if !rec.Empty() || !diff.Empty() {
			b.logger.Info("syncsign fleet reconciled",
				"entry_id", le.entry.ID,
				"added", len(diff.Added),
				"updated", len(diff.Updated),
				"removed", len(diff.Removed),
			)
		}
	}
}

// retryPending sets up entries whose previous setup failed.
func (b *Bridge) retryPending(ctx context.Context) {
	for _, le := range b.readyEntries(false) {
		if ctx.Err() != nil {
			return
		}
		if err := b.SetupEntry(ctx, le.entry); err != nil {
			b.logger.Debug("entry still not ready", "entry_id", le.entry.ID, "error", err)
		}
	}
}
