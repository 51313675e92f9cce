// Package service contains the lifecycle manager's core services: the
// orchestrator and its injected collaborators (health monitor, performance
// tracker, scaling engine, recovery engine, metrics aggregator).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/AgentForge/internal/adapter/otel"
	"github.com/Strob0t/AgentForge/internal/adapter/ws"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/scaling"
	"github.com/Strob0t/AgentForge/internal/port/broadcast"
	"github.com/Strob0t/AgentForge/internal/port/eventbus"
	"github.com/Strob0t/AgentForge/internal/port/launcher"
	"github.com/Strob0t/AgentForge/internal/workpool"
)

// Orchestrator drives the agent lifecycle: spawn and termination protocols,
// the three control loops, and reactions to inbound events. All collaborators
// are injected; the orchestrator owns the registry and the template catalog.
type Orchestrator struct {
	registry *Registry
	catalog  *TemplateCatalog
	health   *HealthMonitor
	perf     *PerformanceTracker
	scaler   *ScalingEngine
	recovery *RecoveryEngine
	metrics  *MetricsAggregator

	launcher launcher.Launcher
	bus      eventbus.Bus
	hub      broadcast.Broadcaster
	pool     *workpool.Pool
	otel     *otel.Metrics // nil when otel is disabled
	cfg      config.Lifecycle

	// readiness waiters keyed by agent ID, closed on first heartbeat.
	readyMu sync.Mutex
	ready   map[string]chan struct{}

	// scaling evaluations requested by demand-change events, drained by the
	// processing loop.
	scalingQueue chan string

	loopsWG sync.WaitGroup
	stop    context.CancelFunc

	now func() time.Time
}

// Deps bundles the orchestrator's injected collaborators.
type Deps struct {
	Registry *Registry
	Catalog  *TemplateCatalog
	Health   *HealthMonitor
	Perf     *PerformanceTracker
	Scaler   *ScalingEngine
	Recovery *RecoveryEngine
	Metrics  *MetricsAggregator
	Launcher launcher.Launcher
	Bus      eventbus.Bus
	Hub      broadcast.Broadcaster
	Otel     *otel.Metrics
}

// NewOrchestrator creates the orchestrator and wires the recovery engine's
// relaunch path back through the spawn plumbing.
func NewOrchestrator(deps Deps, cfg config.Lifecycle) *Orchestrator {
	o := &Orchestrator{
		registry:     deps.Registry,
		catalog:      deps.Catalog,
		health:       deps.Health,
		perf:         deps.Perf,
		scaler:       deps.Scaler,
		recovery:     deps.Recovery,
		metrics:      deps.Metrics,
		launcher:     deps.Launcher,
		bus:          deps.Bus,
		hub:          deps.Hub,
		pool:         workpool.NewPool(cfg.MaxConcurrentSpawns),
		otel:         deps.Otel,
		cfg:          cfg,
		ready:        make(map[string]chan struct{}),
		scalingQueue: make(chan string, 64),
		now:          time.Now,
	}
	o.recovery.SetRelaunch(o.relaunch)
	return o
}

// Start launches the three control loops. They run until Shutdown.
// Loop periods are independent; a slow health check never delays the
// processing loop.
func (o *Orchestrator) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	o.stop = cancel

	o.loopsWG.Add(3)
	go o.processingLoop(loopCtx)
	go o.healthLoop(loopCtx)
	go o.scalingLoop(loopCtx)

	slog.Info("orchestrator started",
		"processing_interval", o.cfg.ProcessingInterval,
		"health_interval", o.cfg.HealthCheckInterval,
		"scaling_interval", o.cfg.ScalingInterval)
}

// processingLoop drains queued scaling evaluations and recomputes metrics.
func (o *Orchestrator) processingLoop(ctx context.Context) {
	defer o.loopsWG.Done()
	ticker := time.NewTicker(o.cfg.ProcessingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case templateID := <-o.scalingQueue:
			o.evaluateAndExecute(ctx, templateID)
		case <-ticker.C:
			if err := o.metrics.Persist(ctx); err != nil {
				slog.Warn("persist metrics", "error", err)
			}
			if o.otel != nil {
				snap := o.metrics.Snapshot(ctx)
				o.otel.Utilization.Record(ctx, snap.Utilization)
			}
		}
	}
}

// healthLoop runs health checks and routes critical agents to recovery.
func (o *Orchestrator) healthLoop(ctx context.Context) {
	defer o.loopsWG.Done()
	ticker := time.NewTicker(o.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			critical := o.health.CheckAll(ctx)
			if o.otel != nil {
				for _, inst := range o.registry.List(Filter{}) {
					if !inst.Status.Terminal() {
						o.otel.AgentHealth.Record(ctx, inst.Health.Overall)
					}
				}
			}
			if len(critical) > 0 {
				slog.Warn("critical agents detected", "count", len(critical))
				o.recovery.RecoverAll(ctx, critical)
			}
		}
	}
}

// scalingLoop runs auto-scaling analysis per template.
func (o *Orchestrator) scalingLoop(ctx context.Context) {
	defer o.loopsWG.Done()
	ticker := time.NewTicker(o.cfg.ScalingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range o.catalog.List() {
				if !t.Scaling.Enabled {
					continue
				}
				o.evaluateAndExecute(ctx, t.ID)
			}
		}
	}
}

// evaluateAndExecute runs one scaling evaluation and acts on the decision if
// it clears the confidence bar.
func (o *Orchestrator) evaluateAndExecute(ctx context.Context, templateID string) {
	d, err := o.scaler.Evaluate(templateID)
	if err != nil {
		slog.Warn("scaling evaluation failed", "template_id", templateID, "error", err)
		return
	}

	executed := false
	if d.Executable() {
		if err := o.executeDecision(ctx, &d); err != nil {
			slog.Error("scaling execution failed", "template_id", templateID, "error", err)
			o.publishScaling(ctx, eventbus.SubjectScalingFailed, &d, err.Error())
		} else {
			executed = true
			o.scaler.MarkScaled(templateID)
			o.publishScaling(ctx, eventbus.SubjectScalingExecuted, &d, "")
			if o.otel != nil {
				o.otel.ScalingActions.Add(ctx, 1)
			}
		}
	}

	o.hub.BroadcastEvent(ctx, ws.EventScalingDecision, decisionEvent(&d, executed))
}

// RequestScalingEvaluation queues an out-of-band scaling evaluation, used
// when workload demand shifts between scaling ticks.
func (o *Orchestrator) RequestScalingEvaluation(templateID string) {
	select {
	case o.scalingQueue <- templateID:
	default:
		// Queue full; the periodic loop will evaluate soon anyway.
	}
}

// Shutdown stops the loops, then gracefully terminates every non-terminal
// agent, honoring the shutdown timeout per agent. Best-effort: hung processes
// are force-killed rather than blocking shutdown.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	if o.stop != nil {
		o.stop()
	}
	o.loopsWG.Wait()

	var ids []string
	for _, inst := range o.registry.List(Filter{}) {
		if !inst.Status.Terminal() {
			ids = append(ids, inst.ID)
		}
	}

	if len(ids) > 0 {
		res := o.TerminateAgents(ctx, &agent.TerminationRequest{
			AgentIDs: ids,
			Graceful: true,
			Reason:   "shutdown",
		})
		slog.Info("shutdown terminations",
			"requested", len(ids), "terminated", len(res.TerminatedIDs), "failed", len(res.Failures))
	}

	if data, err := marshalPayload(struct {
		At time.Time `json:"at"`
	}{At: o.now().UTC()}); err == nil {
		if err := o.bus.Publish(ctx, eventbus.SubjectShutdown, data); err != nil {
			slog.Warn("publish shutdown event", "error", err)
		}
	}
	slog.Info("orchestrator stopped")
}

// RegisterTemplate validates, persists, and announces a new template.
func (o *Orchestrator) RegisterTemplate(ctx context.Context, t *agent.Template) (*agent.Template, error) {
	registered, err := o.catalog.Register(ctx, t)
	if err != nil {
		return nil, err
	}

	if data, err := marshalPayload(struct {
		TemplateID string `json:"template_id"`
		Name       string `json:"name"`
		Type       string `json:"type"`
	}{TemplateID: registered.ID, Name: registered.Name, Type: registered.Type}); err == nil {
		if err := o.bus.Publish(ctx, eventbus.SubjectTemplateRegistered, data); err != nil {
			slog.Warn("publish template registered", "error", err)
		}
	}
	slog.Info("template registered", "template_id", registered.ID, "type", registered.Type)
	return registered, nil
}

// ListTemplates returns all registered templates.
func (o *Orchestrator) ListTemplates() []agent.Template {
	return o.catalog.List()
}

// --- read-side API ---

// GetAgent returns one instance by ID.
func (o *Orchestrator) GetAgent(id string) (agent.Instance, error) {
	return o.registry.Get(id)
}

// ListAgents returns instances matching the optional status and type filters.
func (o *Orchestrator) ListAgents(status agent.Status, agentType string) []agent.Instance {
	return o.registry.List(Filter{Status: status, Type: agentType})
}

// CheckAgentHealth recomputes and returns a fresh health snapshot for one
// agent, outside the periodic cycle.
func (o *Orchestrator) CheckAgentHealth(id string) (agent.HealthStatus, error) {
	inst, err := o.registry.Get(id)
	if err != nil {
		return agent.HealthStatus{}, err
	}
	proc := o.registry.Process(id)
	hs := o.health.Evaluate(&inst, proc != nil && proc.Running(), o.now())
	_ = o.registry.Update(id, func(in *agent.Instance) error {
		in.Health = hs
		return nil
	})
	return hs, nil
}

// Rankings returns the composite performance ranking.
func (o *Orchestrator) Rankings(ctx context.Context) []agent.Ranked {
	return o.perf.Rankings(ctx)
}

// ScalingRecommendation evaluates scaling for one template without executing.
func (o *Orchestrator) ScalingRecommendation(templateID string) (scaling.Decision, error) {
	return o.scaler.Evaluate(templateID)
}
