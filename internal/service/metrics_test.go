package service

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
)

type metricsEnv struct {
	agg      *MetricsAggregator
	registry *Registry
	recovery *RecoveryEngine
	store    *mockStore
}

func newMetricsEnv() *metricsEnv {
	registry := NewRegistry()
	store := newMockStore()
	recovery := NewRecoveryEngine(registry, newMockBus(), &mockHub{}, config.Defaults().Recovery)
	agg := NewMetricsAggregator(registry, recovery, store, nil, config.Defaults().Cache)
	return &metricsEnv{agg: agg, registry: registry, recovery: recovery, store: store}
}

func TestCompute_CountsAndRates(t *testing.T) {
	env := newMetricsEnv()
	now := time.Now()

	add := func(id string, status agent.Status, typ string, health float64) {
		env.registry.Add(&agent.Instance{
			ID:        id,
			Type:      typ,
			Status:    status,
			Health:    agent.HealthStatus{Overall: health},
			StartedAt: now.Add(-time.Minute),
			LastSeen:  now,
		}, nil)
	}
	add("a1", agent.StatusBusy, "worker", 0.9)
	add("a2", agent.StatusIdle, "worker", 0.7)
	add("a3", agent.StatusActive, "reviewer", 0.8)
	add("a4", agent.StatusTerminated, "worker", 0)
	add("a5", agent.StatusFailed, "worker", 0)

	snap := env.agg.Compute()

	if snap.TotalAgents != 5 {
		t.Fatalf("expected 5 total, got %d", snap.TotalAgents)
	}
	if snap.ByStatus[agent.StatusBusy] != 1 || snap.ByStatus[agent.StatusTerminated] != 1 {
		t.Fatalf("unexpected status counts: %v", snap.ByStatus)
	}
	if snap.ByType["worker"] != 4 || snap.ByType["reviewer"] != 1 {
		t.Fatalf("unexpected type counts: %v", snap.ByType)
	}
	// 2 working of 3 non-terminal.
	if !almostEqual(snap.Utilization, 2.0/3.0) {
		t.Fatalf("expected utilization 2/3, got %v", snap.Utilization)
	}
	if !almostEqual(snap.AvgHealth, (0.9+0.7+0.8)/3) {
		t.Fatalf("expected avg health over non-terminal, got %v", snap.AvgHealth)
	}
	if !almostEqual(snap.FailureRate, 0.2) {
		t.Fatalf("expected failure rate 1/5, got %v", snap.FailureRate)
	}
	if snap.AvgLifetimeSeconds <= 0 {
		t.Fatalf("expected positive avg lifetime, got %v", snap.AvgLifetimeSeconds)
	}
}

func TestCompute_RecoveryRateDefaultsToOne(t *testing.T) {
	env := newMetricsEnv()

	if snap := env.agg.Compute(); snap.RecoveryRate != 1.0 {
		t.Fatalf("no attempts must yield rate 1.0, got %v", snap.RecoveryRate)
	}

	env.recovery.mu.Lock()
	env.recovery.attempted = 4
	env.recovery.succeeded = 3
	env.recovery.mu.Unlock()

	if snap := env.agg.Compute(); !almostEqual(snap.RecoveryRate, 0.75) {
		t.Fatalf("expected recovery rate 0.75, got %v", snap.RecoveryRate)
	}
}

func TestSpawnRate_SlidingWindow(t *testing.T) {
	env := newMetricsEnv()
	base := time.Now()
	env.agg.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		env.agg.RecordSpawn()
	}
	env.agg.RecordTermination()

	snap := env.agg.Compute()
	if !almostEqual(snap.SpawnRate, 3.0/60.0) {
		t.Fatalf("expected 3 spawns over 60 minutes, got %v", snap.SpawnRate)
	}
	if !almostEqual(snap.TerminationRate, 1.0/60.0) {
		t.Fatalf("expected 1 termination over 60 minutes, got %v", snap.TerminationRate)
	}

	// Past the window the events fall out of the rate entirely.
	env.agg.now = func() time.Time { return base.Add(2 * time.Hour) }
	snap = env.agg.Compute()
	if snap.SpawnRate != 0 || snap.TerminationRate != 0 {
		t.Fatalf("expected zero rates after window, got %v / %v", snap.SpawnRate, snap.TerminationRate)
	}
}

func TestPersistAndHistory(t *testing.T) {
	env := newMetricsEnv()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		offset := time.Duration(i) * time.Minute
		env.agg.now = func() time.Time { return base.Add(offset) }
		if err := env.agg.Persist(ctx); err != nil {
			t.Fatalf("Persist: %v", err)
		}
	}

	snaps, err := env.agg.History(ctx, base.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	// Newest first.
	for i := 1; i < len(snaps); i++ {
		if snaps[i].ComputedAt.After(snaps[i-1].ComputedAt) {
			t.Fatal("history must be ordered newest first")
		}
	}

	// Since filters out older snapshots.
	snaps, err = env.agg.History(ctx, base.Add(90*time.Second), 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot at or after the cutoff, got %d", len(snaps))
	}
}

func TestSnapshot_WithoutCacheComputesFresh(t *testing.T) {
	env := newMetricsEnv()
	env.registry.Add(&agent.Instance{
		ID: "a1", Status: agent.StatusIdle, StartedAt: time.Now(),
	}, nil)

	snap := env.agg.Snapshot(context.Background())
	if snap.TotalAgents != 1 {
		t.Fatalf("expected live computation, got %+v", snap)
	}
}
