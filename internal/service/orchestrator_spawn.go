package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	adapterotel "github.com/Strob0t/AgentForge/internal/adapter/otel"
	"github.com/Strob0t/AgentForge/internal/adapter/ws"
	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/port/eventbus"
	"github.com/Strob0t/AgentForge/internal/port/launcher"
)

// capabilityPrefix marks agent stdout lines that declare a capability,
// feeding capability verification.
const capabilityPrefix = "CAPABILITY:"

// SpawnAgents runs the spawn protocol for a batch request. Fatal conditions
// (missing template, agent ceiling) reject the whole batch before any process
// starts; per-unit failures are isolated and collected in the result.
func (o *Orchestrator) SpawnAgents(ctx context.Context, req *agent.SpawnRequest) (*agent.SpawnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate spawn request: %w", err)
	}

	tpl, err := o.catalog.Get(req.TemplateID)
	if err != nil {
		return nil, err
	}

	// Check-and-register is a single registry operation; a concurrent batch
	// sees this batch's reservations and cannot push past the ceiling.
	insts := make([]agent.Instance, req.Count)
	for i := range insts {
		insts[i] = o.newInstance(tpl, req, i)
	}
	if err := o.registry.Reserve(insts, o.cfg.MaxAgents); err != nil {
		return nil, err
	}

	result := &agent.SpawnResult{Success: true}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for i := range insts {
		wg.Add(1)
		go func(inst agent.Instance) {
			defer wg.Done()
			id, err := o.spawnOne(ctx, tpl, req, inst)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Success = false
				result.Failures = append(result.Failures, agent.UnitFailure{
					AgentID: id,
					Reason:  err.Error(),
				})
				return
			}
			result.SpawnedIDs = append(result.SpawnedIDs, id)
		}(insts[i])
	}
	wg.Wait()

	o.publishBatch(ctx, eventbus.SubjectAgentsSpawned, tpl.ID, result.SpawnedIDs, result.Success, result.Failures)
	slog.Info("spawn batch done",
		"template_id", tpl.ID, "requested", req.Count,
		"spawned", len(result.SpawnedIDs), "failed", len(result.Failures))
	return result, nil
}

// newInstance builds one spawning-state instance for a batch unit. The
// instance is handed to Reserve; the caller keeps its own value copy.
func (o *Orchestrator) newInstance(tpl agent.Template, req *agent.SpawnRequest, unit int) agent.Instance {
	id := uuid.New().String()
	name := fmt.Sprintf("%s-%s", tpl.Name, id[:8])
	if req.NamePrefix != "" {
		name = fmt.Sprintf("%s-%d", req.NamePrefix, unit)
	}

	now := o.now()
	inst := agent.Instance{
		ID:         id,
		TemplateID: tpl.ID,
		Type:       tpl.Type,
		Name:       name,
		Status:     agent.StatusSpawning,
		StartedAt:  now,
		LastSeen:   now,
	}
	for _, c := range tpl.Capabilities {
		inst.Capabilities = append(inst.Capabilities, agent.Capability{
			Name:       c,
			Declared:   true,
			Confidence: 0.8, // declared but not yet verified from output
		})
	}
	return inst
}

// spawnOne runs the protocol for one already-reserved unit: launch the
// process under the spawn semaphore, then wait for readiness.
func (o *Orchestrator) spawnOne(ctx context.Context, tpl agent.Template, req *agent.SpawnRequest, inst agent.Instance) (string, error) {
	id := inst.ID
	start := o.now()

	readyCh := o.registerReadiness(id)
	defer o.dropReadiness(id)

	spanCtx, span := adapterotel.StartSpawnSpan(ctx, id, tpl.ID)
	defer span.End()

	var proc launcher.Process
	err := o.pool.Run(spanCtx, func() error {
		var launchErr error
		proc, launchErr = o.launcher.Launch(spanCtx, o.launchSpec(tpl, inst, req.ExtraEnv))
		return launchErr
	})
	if err != nil {
		// The process never existed; the instance is removed outright.
		o.registry.Remove(id)
		if o.otel != nil {
			o.otel.SpawnFailures.Add(ctx, 1)
		}
		return id, fmt.Errorf("%w: %v", domain.ErrProcessLaunch, err)
	}

	o.registry.SetProcess(id, proc)
	_ = o.registry.Update(id, func(in *agent.Instance) error {
		// A fast agent may heartbeat past spawning before the PID write
		// lands; never move the status backwards.
		if in.Status == agent.StatusSpawning {
			in.Status = agent.StatusInitializing
		}
		in.PID = proc.PID()
		return nil
	})
	go o.monitorExit(id, proc)

	select {
	case <-readyCh:
	case <-time.After(o.cfg.SpawnTimeout):
		_ = proc.Kill()
		_ = o.registry.Update(id, func(in *agent.Instance) error {
			in.Status = agent.StatusFailed
			in.RecordError(agent.ErrorTypeSpawn, "readiness timeout", o.now())
			return nil
		})
		o.registry.Remove(id)
		if o.otel != nil {
			o.otel.SpawnFailures.Add(ctx, 1)
		}
		return id, fmt.Errorf("agent %s: %w", id, domain.ErrSpawnTimeout)
	case <-ctx.Done():
		_ = proc.Kill()
		o.registry.Remove(id)
		return id, ctx.Err()
	}

	o.metrics.RecordSpawn()
	if o.otel != nil {
		o.otel.AgentsSpawned.Add(ctx, 1)
		o.otel.SpawnDuration.Record(ctx, o.now().Sub(start).Seconds())
	}

	o.publishAgent(ctx, eventbus.SubjectAgentSpawned, id, tpl.ID, tpl.Type, "")
	o.hub.BroadcastEvent(ctx, ws.EventAgentSpawned, ws.AgentLifecycleEvent{
		AgentID:    id,
		TemplateID: tpl.ID,
		Type:       tpl.Type,
		Reason:     req.Reason,
	})
	return id, nil
}

// launchSpec builds the process spec with identity variables injected.
func (o *Orchestrator) launchSpec(tpl agent.Template, inst agent.Instance, extraEnv map[string]string) launcher.Spec {
	env := make(map[string]string, len(tpl.Env)+len(extraEnv)+3)
	for k, v := range tpl.Env {
		env[k] = v
	}
	for k, v := range extraEnv {
		env[k] = v
	}
	env["AGENT_ID"] = inst.ID
	env["AGENT_TYPE"] = inst.Type
	env["AGENT_NAME"] = inst.Name

	return launcher.Spec{
		Executable: tpl.Executable,
		Args:       tpl.Args,
		Env:        env,
		OnOutput:   o.outputHandler(inst.ID),
	}
}

// relaunch restarts the process for an existing instance, reusing the spawn
// plumbing. Used by the recovery engine.
func (o *Orchestrator) relaunch(ctx context.Context, inst agent.Instance) (launcher.Process, error) {
	tpl, err := o.catalog.Get(inst.TemplateID)
	if err != nil {
		return nil, err
	}
	var proc launcher.Process
	err = o.pool.Run(ctx, func() error {
		var launchErr error
		proc, launchErr = o.launcher.Launch(ctx, o.launchSpec(tpl, inst, nil))
		return launchErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProcessLaunch, err)
	}
	go o.monitorExit(inst.ID, proc)
	return proc, nil
}

// outputHandler scans agent output for capability declarations. Lines are
// already forwarded to the logger by the launcher.
func (o *Orchestrator) outputHandler(agentID string) func(stream, line string) {
	return func(_, line string) {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), capabilityPrefix)
		if !ok {
			return
		}
		name := strings.TrimSpace(rest)
		if name == "" {
			return
		}
		_ = o.registry.Update(agentID, func(in *agent.Instance) error {
			in.VerifyCapability(name)
			return nil
		})
	}
}

// monitorExit watches one process and treats an exit that was not preceded by
// entering terminating as a fault: the error is recorded, an unexpected-exit
// notification goes out, and the recovery engine gets one immediate attempt
// before the instance is written off as failed.
func (o *Orchestrator) monitorExit(id string, proc launcher.Process) {
	<-proc.Done()

	inst, err := o.registry.Get(id)
	if err != nil {
		return // removed during spawn failure handling
	}
	if inst.Status == agent.StatusTerminating || inst.Status.Terminal() {
		return // expected exit, handled by the termination protocol
	}
	if inst.Status == agent.StatusSpawning || inst.Status == agent.StatusInitializing {
		// Crashed before readiness; the spawn timeout path owns the failure.
		_ = o.registry.Update(id, func(in *agent.Instance) error {
			in.RecordError(agent.ErrorTypeSpawn, "process exited before readiness", o.now())
			return nil
		})
		o.registry.ReleaseProcess(id)
		return
	}

	ctx := context.Background()
	now := o.now()
	exitErr := proc.ExitErr()
	reason := "process exited unexpectedly"
	if exitErr != nil {
		reason = fmt.Sprintf("process exited unexpectedly: %v", exitErr)
	}
	slog.Error("unexpected agent exit", "agent_id", id, "error", exitErr)

	_ = o.registry.Update(id, func(in *agent.Instance) error {
		in.RecordError(agent.ErrorTypeRuntime, reason, now)
		if in.Status.CanTransition(agent.StatusUnhealthy) {
			in.Status = agent.StatusUnhealthy
		}
		return nil
	})
	o.registry.ReleaseProcess(id)
	if o.otel != nil {
		o.otel.UnexpectedExits.Add(ctx, 1)
	}
	o.publishAgent(ctx, eventbus.SubjectUnexpectedExit, id, inst.TemplateID, inst.Type, reason)

	// One immediate recovery attempt; if it fails the agent is written off.
	if err := o.recovery.Recover(ctx, id); err != nil {
		_ = o.registry.Update(id, func(in *agent.Instance) error {
			if in.Status.CanTransition(agent.StatusFailed) {
				in.Status = agent.StatusFailed
			}
			return nil
		})
		o.hub.BroadcastEvent(ctx, ws.EventAgentStatus, ws.AgentStatusEvent{
			AgentID:    id,
			TemplateID: inst.TemplateID,
			Type:       inst.Type,
			Status:     string(agent.StatusFailed),
		})
	}
}

// --- readiness ---

// registerReadiness creates the waiter channel closed by the first heartbeat.
func (o *Orchestrator) registerReadiness(id string) chan struct{} {
	o.readyMu.Lock()
	defer o.readyMu.Unlock()
	ch := make(chan struct{})
	o.ready[id] = ch
	return ch
}

func (o *Orchestrator) dropReadiness(id string) {
	o.readyMu.Lock()
	defer o.readyMu.Unlock()
	delete(o.ready, id)
}

// signalReady closes the readiness waiter, if one is pending.
func (o *Orchestrator) signalReady(id string) {
	o.readyMu.Lock()
	defer o.readyMu.Unlock()
	if ch, ok := o.ready[id]; ok {
		close(ch)
		delete(o.ready, id)
	}
}
