package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/metrics"
	"github.com/Strob0t/AgentForge/internal/port/cache"
	"github.com/Strob0t/AgentForge/internal/port/database"
)

// rateWindow is the sliding window behind spawn/termination rates.
const rateWindow = time.Hour

const snapshotCacheKey = "metrics:latest"

// MetricsAggregator derives the lifecycle metrics snapshot from the registry
// and the recent spawn/termination event history. Snapshots are persisted so
// the history API and rate computations survive restarts.
type MetricsAggregator struct {
	registry *Registry
	recovery *RecoveryEngine
	store    database.Store
	cache    cache.Cache
	cacheTTL time.Duration

	mu         sync.Mutex
	spawns     []time.Time
	terminated []time.Time

	now func() time.Time
}

// NewMetricsAggregator creates an aggregator. cache may be nil.
func NewMetricsAggregator(registry *Registry, recovery *RecoveryEngine, store database.Store, c cache.Cache, cfg config.Cache) *MetricsAggregator {
	return &MetricsAggregator{
		registry: registry,
		recovery: recovery,
		store:    store,
		cache:    c,
		cacheTTL: cfg.TTL,
		now:      time.Now,
	}
}

// RecordSpawn notes one successful spawn for the rate window.
func (m *MetricsAggregator) RecordSpawn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.spawns = append(prune(m.spawns, now), now)
}

// RecordTermination notes one termination for the rate window.
func (m *MetricsAggregator) RecordTermination() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.terminated = append(prune(m.terminated, now), now)
}

// prune drops events older than the rate window.
func prune(events []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}

// Compute derives a fresh snapshot from current state.
func (m *MetricsAggregator) Compute() *metrics.Snapshot {
	now := m.now()

	snap := &metrics.Snapshot{
		ByStatus:   make(map[agent.Status]int),
		ByType:     make(map[string]int),
		ComputedAt: now,
	}

	var (
		nonTerminal   int
		working       int
		failed        int
		healthSum     float64
		lifetimeSum   float64
		lifetimeCount int
	)

	for _, inst := range m.registry.List(Filter{}) {
		snap.TotalAgents++
		snap.ByStatus[inst.Status]++
		snap.ByType[inst.Type]++

		end := now
		if inst.Status.Terminal() && !inst.LastSeen.IsZero() {
			end = inst.LastSeen
		}
		if !inst.StartedAt.IsZero() {
			lifetimeSum += end.Sub(inst.StartedAt).Seconds()
			lifetimeCount++
		}

		if inst.Status == agent.StatusFailed {
			failed++
		}
		if inst.Status.Terminal() {
			continue
		}
		nonTerminal++
		healthSum += inst.Health.Overall
		if inst.Status == agent.StatusActive || inst.Status == agent.StatusBusy {
			working++
		}
	}

	m.mu.Lock()
	m.spawns = prune(m.spawns, now)
	m.terminated = prune(m.terminated, now)
	snap.SpawnRate = float64(len(m.spawns)) / rateWindow.Minutes()
	snap.TerminationRate = float64(len(m.terminated)) / rateWindow.Minutes()
	m.mu.Unlock()

	if lifetimeCount > 0 {
		snap.AvgLifetimeSeconds = lifetimeSum / float64(lifetimeCount)
	}
	if nonTerminal > 0 {
		snap.AvgHealth = healthSum / float64(nonTerminal)
		snap.Utilization = float64(working) / float64(nonTerminal)
	}
	if snap.TotalAgents > 0 {
		snap.FailureRate = float64(failed) / float64(snap.TotalAgents)
	}

	attempted, succeeded := m.recovery.Stats()
	if attempted == 0 {
		snap.RecoveryRate = 1.0 // nothing attempted, nothing failed
	} else {
		snap.RecoveryRate = float64(succeeded) / float64(attempted)
	}

	return snap
}

// Snapshot returns the latest snapshot, computing one if the cached copy
// expired.
func (m *MetricsAggregator) Snapshot(ctx context.Context) *metrics.Snapshot {
	if m.cache != nil {
		if data, ok, err := m.cache.Get(ctx, snapshotCacheKey); err == nil && ok {
			var cached metrics.Snapshot
			if json.Unmarshal(data, &cached) == nil {
				return &cached
			}
		}
	}

	snap := m.Compute()
	if m.cache != nil {
		if data, err := json.Marshal(snap); err == nil {
			_ = m.cache.Set(ctx, snapshotCacheKey, data, m.cacheTTL)
		}
	}
	return snap
}

// Persist computes a snapshot and appends it to the stored history.
func (m *MetricsAggregator) Persist(ctx context.Context) error {
	snap := m.Compute()
	if err := m.store.RecordMetrics(ctx, snap); err != nil {
		return fmt.Errorf("persist metrics: %w", err)
	}
	return nil
}

// History returns stored snapshots at or after since, newest first.
func (m *MetricsAggregator) History(ctx context.Context, since time.Time, limit int) ([]metrics.Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	snaps, err := m.store.ListMetrics(ctx, since, limit)
	if err != nil {
		slog.Error("list metrics history", "error", err)
		return nil, fmt.Errorf("metrics history: %w", err)
	}
	return snaps, nil
}
