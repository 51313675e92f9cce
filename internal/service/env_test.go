package service

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
)

// testEnv wires a full orchestrator with fakes and fast timeouts.
type testEnv struct {
	orch     *Orchestrator
	registry *Registry
	catalog  *TemplateCatalog
	store    *mockStore
	bus      *mockBus
	hub      *mockHub
	launcher *mockLauncher
	recovery *RecoveryEngine
	scaler   *ScalingEngine
	metrics  *MetricsAggregator
	perf     *PerformanceTracker
}

func testLifecycleConfig() config.Lifecycle {
	cfg := config.Defaults().Lifecycle
	cfg.MaxAgents = 10
	cfg.SpawnTimeout = 500 * time.Millisecond
	cfg.ShutdownTimeout = 500 * time.Millisecond
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMockStore()
	bus := newMockBus()
	hub := &mockHub{}
	ml := &mockLauncher{bus: bus}

	registry := NewRegistry()
	catalog := NewTemplateCatalog(store)
	cfg := testLifecycleConfig()
	recoveryCfg := config.Defaults().Recovery

	health := NewHealthMonitor(registry, catalog, hub, cfg)
	perf := NewPerformanceTracker(registry, nil, config.Defaults().Cache)
	scaler := NewScalingEngine(registry, catalog, cfg)
	recovery := NewRecoveryEngine(registry, bus, hub, recoveryCfg)
	agg := NewMetricsAggregator(registry, recovery, store, nil, config.Defaults().Cache)

	orch := NewOrchestrator(Deps{
		Registry: registry,
		Catalog:  catalog,
		Health:   health,
		Perf:     perf,
		Scaler:   scaler,
		Recovery: recovery,
		Metrics:  agg,
		Launcher: ml,
		Bus:      bus,
		Hub:      hub,
	}, cfg)

	if _, err := orch.SubscribeAll(context.Background()); err != nil {
		t.Fatalf("SubscribeAll: %v", err)
	}

	return &testEnv{
		orch:     orch,
		registry: registry,
		catalog:  catalog,
		store:    store,
		bus:      bus,
		hub:      hub,
		launcher: ml,
		recovery: recovery,
		scaler:   scaler,
		metrics:  agg,
		perf:     perf,
	}
}

// registerTemplate registers a minimal template and returns it.
func (e *testEnv) registerTemplate(t *testing.T, agentType string, scalingCfg agent.ScalingConfig) agent.Template {
	t.Helper()
	tpl, err := e.orch.RegisterTemplate(context.Background(), &agent.Template{
		Name:       agentType + "-tpl",
		Type:       agentType,
		Executable: "agent-worker",
		Scaling:    scalingCfg,
	})
	if err != nil {
		t.Fatalf("RegisterTemplate: %v", err)
	}
	return *tpl
}

// spawn spawns count agents and fails the test on any unit failure.
func (e *testEnv) spawn(t *testing.T, templateID string, count int) []string {
	t.Helper()
	res, err := e.orch.SpawnAgents(context.Background(), &agent.SpawnRequest{
		TemplateID: templateID,
		Count:      count,
	})
	if err != nil {
		t.Fatalf("SpawnAgents: %v", err)
	}
	if !res.Success {
		t.Fatalf("spawn failures: %+v", res.Failures)
	}
	return res.SpawnedIDs
}
