package service

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/agent"
)

func newHealthEnv() (*HealthMonitor, *Registry) {
	registry := NewRegistry()
	catalog := NewTemplateCatalog(newMockStore())
	mon := NewHealthMonitor(registry, catalog, &mockHub{}, testLifecycleConfig())
	return mon, registry
}

func TestEvaluate_SubScores(t *testing.T) {
	mon, _ := newHealthEnv()
	now := time.Now()

	inst := &agent.Instance{
		ID:       "a1",
		Status:   agent.StatusIdle,
		LastSeen: now.Add(-10 * time.Second),
		Performance: agent.PerformanceMetrics{
			Efficiency:  0.5,
			Reliability: 0.64,
		},
		Resources: agent.ResourceUsage{CPUFraction: 0.5, MemoryFraction: 0.5},
	}

	hs := mon.Evaluate(inst, true, now)
	if hs.Responsiveness != 1.0 {
		t.Fatalf("fresh heartbeat must score 1.0, got %v", hs.Responsiveness)
	}
	if hs.Performance != 0.5 || hs.Reliability != 0.64 {
		t.Fatalf("unexpected perf/reliability: %v/%v", hs.Performance, hs.Reliability)
	}
	if !almostEqual(hs.Resources, 0.5) {
		t.Fatalf("expected resource headroom 0.5, got %v", hs.Resources)
	}
	if hs.Connectivity != 1.0 {
		t.Fatalf("live process must score 1.0, got %v", hs.Connectivity)
	}
	want := (1.0 + 0.5 + 0.64 + 0.5 + 1.0) / 5
	if !almostEqual(hs.Overall, want) {
		t.Fatalf("expected overall %v, got %v", want, hs.Overall)
	}
}

func TestEvaluate_ResponsivenessTiers(t *testing.T) {
	mon, _ := newHealthEnv()
	now := time.Now()

	cases := []struct {
		age  time.Duration
		want float64
	}{
		{10 * time.Second, 1.0},
		{45 * time.Second, 0.5},
		{2 * time.Minute, 0},
	}
	for _, c := range cases {
		inst := &agent.Instance{Status: agent.StatusIdle, LastSeen: now.Add(-c.age)}
		hs := mon.Evaluate(inst, true, now)
		if hs.Responsiveness != c.want {
			t.Fatalf("age %v: expected %v, got %v", c.age, c.want, hs.Responsiveness)
		}
	}
}

func TestEvaluate_Issues(t *testing.T) {
	mon, _ := newHealthEnv()
	now := time.Now()

	inst := &agent.Instance{
		ID:       "a1",
		Status:   agent.StatusIdle,
		LastSeen: now.Add(-5 * time.Minute),
		Performance: agent.PerformanceMetrics{
			TasksCompleted: 2,
			TasksFailed:    8,
			SuccessRate:    0.2,
			Reliability:    0.04,
		},
		Resources: agent.ResourceUsage{CPUFraction: 0.95, MemoryFraction: 0.95},
	}

	hs := mon.Evaluate(inst, false, now)
	want := map[string]bool{
		"no recent heartbeat": false,
		"process not running": false,
		"resource saturation": false,
		"low reliability":     false,
	}
	for _, issue := range hs.Issues {
		if _, ok := want[issue]; !ok {
			t.Fatalf("unexpected issue %q", issue)
		}
		want[issue] = true
	}
	for issue, seen := range want {
		if !seen {
			t.Fatalf("missing issue %q, got %v", issue, hs.Issues)
		}
	}
}

func TestEvaluate_Trend(t *testing.T) {
	mon, _ := newHealthEnv()
	now := time.Now()

	// Prior overall 0.5; a fully healthy evaluation trends improving.
	inst := &agent.Instance{
		Status:      agent.StatusIdle,
		LastSeen:    now,
		Health:      agent.HealthStatus{Overall: 0.5},
		Performance: agent.PerformanceMetrics{Efficiency: 1, Reliability: 1},
	}
	if hs := mon.Evaluate(inst, true, now); hs.Trend != agent.TrendImproving {
		t.Fatalf("expected improving, got %s", hs.Trend)
	}

	// Prior overall 1.0; a dead, stale agent trends degrading.
	inst.Health.Overall = 1.0
	inst.LastSeen = now.Add(-5 * time.Minute)
	inst.Performance = agent.PerformanceMetrics{}
	if hs := mon.Evaluate(inst, false, now); hs.Trend != agent.TrendDegrading {
		t.Fatalf("expected degrading, got %s", hs.Trend)
	}

	// Change within epsilon is stable.
	inst = &agent.Instance{
		Status:      agent.StatusIdle,
		LastSeen:    now,
		Health:      agent.HealthStatus{Overall: 0.99},
		Performance: agent.PerformanceMetrics{Efficiency: 1, Reliability: 1},
	}
	if hs := mon.Evaluate(inst, true, now); hs.Trend != agent.TrendStable {
		t.Fatalf("expected stable, got %s", hs.Trend)
	}
}

func TestCheckAll_StatusEdgesAndCritical(t *testing.T) {
	mon, registry := newHealthEnv()

	// Healthy: live process, fresh heartbeat, perfect metrics.
	healthyProc := newMockProcess(100)
	registry.Add(&agent.Instance{
		ID:          "healthy",
		Status:      agent.StatusIdle,
		LastSeen:    time.Now(),
		Performance: agent.PerformanceMetrics{Efficiency: 1, Reliability: 1},
		StartedAt:   time.Now(),
	}, healthyProc)

	// Dead and stale: overall 0.2, below unhealthy (0.4) and critical (0.3).
	registry.Add(&agent.Instance{
		ID:        "dying",
		Status:    agent.StatusIdle,
		LastSeen:  time.Now().Add(-5 * time.Minute),
		StartedAt: time.Now(),
	}, nil)

	critical := mon.CheckAll(context.Background())

	if len(critical) != 1 || critical[0] != "dying" {
		t.Fatalf("expected [dying] critical, got %v", critical)
	}

	inst, _ := registry.Get("healthy")
	if inst.Status != agent.StatusIdle {
		t.Fatalf("healthy agent must stay idle, got %s", inst.Status)
	}
	if inst.Health.CheckedAt.IsZero() {
		t.Fatal("expected stored health snapshot")
	}

	inst, _ = registry.Get("dying")
	if inst.Status != agent.StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", inst.Status)
	}
	if len(inst.Errors) == 0 || inst.Errors[len(inst.Errors)-1].Type != agent.ErrorTypeHealth {
		t.Fatalf("expected recorded health error, got %v", inst.Errors)
	}
}

func TestCheckAll_DegradedRecoversToIdle(t *testing.T) {
	mon, registry := newHealthEnv()

	// Mid-band health: responsive + connected but zero perf history -> 0.6.
	proc := newMockProcess(100)
	registry.Add(&agent.Instance{
		ID:        "a1",
		Status:    agent.StatusIdle,
		LastSeen:  time.Now(),
		StartedAt: time.Now(),
	}, proc)

	mon.CheckAll(context.Background())
	inst, _ := registry.Get("a1")
	if inst.Status != agent.StatusDegraded {
		t.Fatalf("expected degraded at mid-band health, got %s", inst.Status)
	}

	// Performance improves; the next check lifts it back to idle.
	_ = registry.Update("a1", func(in *agent.Instance) error {
		in.Performance = agent.PerformanceMetrics{Efficiency: 1, Reliability: 1}
		return nil
	})
	mon.CheckAll(context.Background())
	inst, _ = registry.Get("a1")
	if inst.Status != agent.StatusIdle {
		t.Fatalf("expected idle after recovery above healthy threshold, got %s", inst.Status)
	}
}

func TestCheckAll_SkipsNonRunning(t *testing.T) {
	mon, registry := newHealthEnv()
	registry.Add(&agent.Instance{ID: "gone", Status: agent.StatusTerminated}, nil)
	registry.Add(&agent.Instance{ID: "pending", Status: agent.StatusSpawning}, nil)

	if critical := mon.CheckAll(context.Background()); len(critical) != 0 {
		t.Fatalf("expected no critical agents, got %v", critical)
	}
	inst, _ := registry.Get("gone")
	if !inst.Health.CheckedAt.IsZero() {
		t.Fatal("terminated agents must not be evaluated")
	}
}
