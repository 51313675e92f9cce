package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/scaling"
)

type scalingEnv struct {
	engine   *ScalingEngine
	registry *Registry
	catalog  *TemplateCatalog
}

func newScalingEnv(t *testing.T, cfg agent.ScalingConfig) (*scalingEnv, agent.Template) {
	t.Helper()
	registry := NewRegistry()
	catalog := NewTemplateCatalog(newMockStore())
	tpl, err := catalog.Register(context.Background(), &agent.Template{
		Name:       "worker-tpl",
		Type:       "worker",
		Executable: "agent-worker",
		Scaling:    cfg,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	engine := NewScalingEngine(registry, catalog, testLifecycleConfig())
	return &scalingEnv{engine: engine, registry: registry, catalog: catalog}, *tpl
}

// populate adds busy+idle instances for the template.
func (e *scalingEnv) populate(templateID string, busy, idle int) {
	for i := 0; i < busy; i++ {
		addInstance(e.registry, fmt.Sprintf("busy-%d", i), agent.StatusBusy, templateID)
	}
	for i := 0; i < idle; i++ {
		addInstance(e.registry, fmt.Sprintf("idle-%d", i), agent.StatusIdle, templateID)
	}
}

func TestUtilization(t *testing.T) {
	env, tpl := newScalingEnv(t, agent.ScalingConfig{Enabled: true, MaxInstances: 12})

	if got := env.engine.Utilization(tpl.ID); got != 0 {
		t.Fatalf("no instances must yield 0, got %v", got)
	}

	env.populate(tpl.ID, 9, 1)
	// Terminal instances never count toward the denominator.
	addInstance(env.registry, "dead", agent.StatusTerminated, tpl.ID)

	if got := env.engine.Utilization(tpl.ID); !almostEqual(got, 0.9) {
		t.Fatalf("expected utilization 0.9, got %v", got)
	}
}

func TestEvaluate_ScaleUp(t *testing.T) {
	env, tpl := newScalingEnv(t, agent.ScalingConfig{Enabled: true, MaxInstances: 12})
	env.populate(tpl.ID, 9, 1) // utilization 0.9, current 10

	d, err := env.engine.Evaluate(tpl.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != scaling.ActionScaleUp {
		t.Fatalf("expected scale_up, got %s (%v)", d.Action, d.Reasons)
	}
	if d.CurrentCount != 10 || d.TargetCount != 12 {
		t.Fatalf("expected 10 -> 12, got %d -> %d", d.CurrentCount, d.TargetCount)
	}
	if d.Confidence != 0.8 || d.Urgency != scaling.UrgencyMedium {
		t.Fatalf("expected confidence 0.8 / medium, got %v / %s", d.Confidence, d.Urgency)
	}
	if !d.Executable() {
		t.Fatal("scale_up at 0.8 confidence must be executable")
	}
}

func TestEvaluate_ScaleUpCappedAtMax(t *testing.T) {
	env, tpl := newScalingEnv(t, agent.ScalingConfig{Enabled: true, MaxInstances: 3})
	env.populate(tpl.ID, 3, 0) // at the ceiling

	d, err := env.engine.Evaluate(tpl.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != scaling.ActionNone {
		t.Fatalf("at max instances no scale_up may fire, got %s", d.Action)
	}
}

func TestEvaluate_ScaleDownNeverExecutable(t *testing.T) {
	env, tpl := newScalingEnv(t, agent.ScalingConfig{
		Enabled: true, MinInstances: 1, MaxInstances: 10,
	})
	env.populate(tpl.ID, 0, 4) // utilization 0

	d, err := env.engine.Evaluate(tpl.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != scaling.ActionScaleDown {
		t.Fatalf("expected scale_down, got %s", d.Action)
	}
	if d.TargetCount != 3 {
		t.Fatalf("scale_down steps by one: expected 3, got %d", d.TargetCount)
	}
	if d.Confidence != 0.7 || d.Urgency != scaling.UrgencyLow {
		t.Fatalf("expected confidence 0.7 / low, got %v / %s", d.Confidence, d.Urgency)
	}
	if d.Executable() {
		t.Fatal("confidence 0.7 must not clear the strict >0.7 bar")
	}
}

func TestEvaluate_ScaleDownRespectsMin(t *testing.T) {
	env, tpl := newScalingEnv(t, agent.ScalingConfig{
		Enabled: true, MinInstances: 2, MaxInstances: 10,
	})
	env.populate(tpl.ID, 0, 2) // idle but already at the floor

	d, err := env.engine.Evaluate(tpl.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != scaling.ActionNone {
		t.Fatalf("at min instances no scale_down may fire, got %s", d.Action)
	}
	if d.Confidence != 0.9 {
		t.Fatalf("no_action carries confidence 0.9, got %v", d.Confidence)
	}
}

func TestEvaluate_Disabled(t *testing.T) {
	env, tpl := newScalingEnv(t, agent.ScalingConfig{Enabled: false, MaxInstances: 12})
	env.populate(tpl.ID, 9, 1)

	d, err := env.engine.Evaluate(tpl.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != scaling.ActionNone {
		t.Fatalf("disabled template must yield no_action, got %s", d.Action)
	}
	if len(d.Reasons) == 0 {
		t.Fatal("expected a reason explaining the skip")
	}
}

func TestEvaluate_CooldownDefersScaleUp(t *testing.T) {
	env, tpl := newScalingEnv(t, agent.ScalingConfig{
		Enabled: true, MaxInstances: 12, Cooldown: time.Minute,
	})
	env.populate(tpl.ID, 9, 1)

	base := time.Now()
	env.engine.now = func() time.Time { return base }
	env.engine.MarkScaled(tpl.ID)

	// 30s into a 60s cooldown: deferred.
	env.engine.now = func() time.Time { return base.Add(30 * time.Second) }
	d, _ := env.engine.Evaluate(tpl.ID)
	if d.Action != scaling.ActionNone {
		t.Fatalf("expected deferral inside cooldown, got %s", d.Action)
	}

	// Past the cooldown the decision fires.
	env.engine.now = func() time.Time { return base.Add(2 * time.Minute) }
	d, _ = env.engine.Evaluate(tpl.ID)
	if d.Action != scaling.ActionScaleUp {
		t.Fatalf("expected scale_up after cooldown, got %s (%v)", d.Action, d.Reasons)
	}
}

func TestNotePressure_DefersScaleUpOnly(t *testing.T) {
	env, tpl := newScalingEnv(t, agent.ScalingConfig{Enabled: true, MaxInstances: 12})
	env.populate(tpl.ID, 9, 1)

	if env.engine.NotePressure("warning") {
		t.Fatal("non-critical pressure must not start a deferral window")
	}

	base := time.Now()
	env.engine.now = func() time.Time { return base }
	if !env.engine.NotePressure("critical") {
		t.Fatal("critical pressure must start the deferral window")
	}

	d, _ := env.engine.Evaluate(tpl.ID)
	if d.Action != scaling.ActionNone {
		t.Fatalf("expected scale-up deferred under pressure, got %s", d.Action)
	}

	// PressureCooldown is 2m in the default config.
	env.engine.now = func() time.Time { return base.Add(3 * time.Minute) }
	d, _ = env.engine.Evaluate(tpl.ID)
	if d.Action != scaling.ActionScaleUp {
		t.Fatalf("expected scale_up after pressure window, got %s (%v)", d.Action, d.Reasons)
	}
}

func TestEvaluateAll(t *testing.T) {
	env, tpl := newScalingEnv(t, agent.ScalingConfig{Enabled: true, MaxInstances: 12})
	env.populate(tpl.ID, 9, 1)

	decisions := env.engine.EvaluateAll()
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	if decisions[0].TemplateID != tpl.ID || decisions[0].Action != scaling.ActionScaleUp {
		t.Fatalf("unexpected decision: %+v", decisions[0])
	}
}
