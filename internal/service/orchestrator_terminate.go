package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	adapterotel "github.com/Strob0t/AgentForge/internal/adapter/otel"
	"github.com/Strob0t/AgentForge/internal/adapter/ws"
	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/scaling"
	"github.com/Strob0t/AgentForge/internal/port/eventbus"
)

// TerminateAgents runs the termination protocol for each requested ID.
// Per-unit failures are isolated; terminating an already-terminated agent is
// a no-op reported as success with no duplicate events.
func (o *Orchestrator) TerminateAgents(ctx context.Context, req *agent.TerminationRequest) *agent.TerminationResult {
	result := &agent.TerminationResult{Success: true}
	if err := req.Validate(); err != nil {
		result.Success = false
		result.Failures = append(result.Failures, agent.UnitFailure{Reason: err.Error()})
		return result
	}

	for _, id := range req.AgentIDs {
		if err := o.terminateOne(ctx, id, req.Graceful, req.Reason); err != nil {
			result.Success = false
			result.Failures = append(result.Failures, agent.UnitFailure{
				AgentID: id,
				Reason:  err.Error(),
			})
			continue
		}
		result.TerminatedIDs = append(result.TerminatedIDs, id)
	}

	o.publishBatch(ctx, eventbus.SubjectAgentsTerminated, "", result.TerminatedIDs, result.Success, result.Failures)
	return result
}

// terminateOne runs the protocol for a single agent.
func (o *Orchestrator) terminateOne(ctx context.Context, id string, graceful bool, reason string) error {
	inst, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() || inst.Status == agent.StatusTerminating {
		return nil // idempotent no-op
	}

	spanCtx, span := adapterotel.StartTerminateSpan(ctx, id, graceful)
	defer span.End()

	if err := o.registry.Transition(id, agent.StatusTerminating); err != nil {
		return err
	}

	proc := o.registry.Process(id)
	if proc == nil || !proc.Running() {
		// Nothing left to signal; the process is already gone.
		o.finishTermination(spanCtx, inst, reason)
		return nil
	}

	if graceful {
		if err := proc.Terminate(); err != nil {
			slog.Warn("terminate signal failed, escalating to kill", "agent_id", id, "error", err)
			_ = proc.Kill()
		}
		select {
		case <-proc.Done():
		case <-time.After(o.cfg.ShutdownTimeout):
			_ = proc.Kill()
			now := o.now()
			_ = o.registry.Update(id, func(in *agent.Instance) error {
				in.Status = agent.StatusFailed
				in.RecordError(agent.ErrorTypeRuntime, "graceful shutdown timed out, force-killed", now)
				return nil
			})
			o.registry.ReleaseProcess(id)
			return fmt.Errorf("agent %s: %w", id, domain.ErrShutdownTimeout)
		}
	} else {
		if err := proc.Kill(); err != nil {
			return fmt.Errorf("kill agent %s: %w", id, err)
		}
		select {
		case <-proc.Done():
		case <-time.After(o.cfg.ShutdownTimeout):
			// SIGKILL cannot be refused; this only guards a wedged reaper.
			return fmt.Errorf("agent %s: %w", id, domain.ErrShutdownTimeout)
		}
	}

	o.finishTermination(spanCtx, inst, reason)
	return nil
}

// finishTermination marks the instance terminated and emits the events.
func (o *Orchestrator) finishTermination(ctx context.Context, inst agent.Instance, reason string) {
	now := o.now()
	_ = o.registry.Update(inst.ID, func(in *agent.Instance) error {
		in.Status = agent.StatusTerminated
		in.LastSeen = now
		in.PID = 0
		return nil
	})
	o.registry.ReleaseProcess(inst.ID)

	o.metrics.RecordTermination()
	if o.otel != nil {
		o.otel.AgentsTerminated.Add(ctx, 1)
	}

	o.publishAgent(ctx, eventbus.SubjectAgentTerminated, inst.ID, inst.TemplateID, inst.Type, reason)
	o.hub.BroadcastEvent(ctx, ws.EventAgentTerminated, ws.AgentLifecycleEvent{
		AgentID:    inst.ID,
		TemplateID: inst.TemplateID,
		Type:       inst.Type,
		Reason:     reason,
	})
	slog.Info("agent terminated", "agent_id", inst.ID, "reason", reason)
}

// TriggerScaling manually scales a template to targetCount. Scale-downs
// always remove the lowest composite-score instances first.
func (o *Orchestrator) TriggerScaling(ctx context.Context, templateID string, targetCount int) (*ScalingOutcome, error) {
	tpl, err := o.catalog.Get(templateID)
	if err != nil {
		return nil, err
	}
	if targetCount < 0 {
		return nil, fmt.Errorf("target count must not be negative")
	}

	current := o.registry.CountByTemplate(templateID)
	outcome := &ScalingOutcome{
		TemplateID:   templateID,
		CurrentCount: current,
		TargetCount:  targetCount,
	}

	spanCtx, span := adapterotel.StartScalingSpan(ctx, templateID, string(outcome.actionFor(current)))
	defer span.End()

	switch {
	case targetCount > current:
		outcome.Action = scaling.ActionScaleUp
		res, err := o.SpawnAgents(spanCtx, &agent.SpawnRequest{
			TemplateID: templateID,
			Count:      targetCount - current,
			Reason:     "manual scaling",
		})
		if err != nil {
			return nil, err
		}
		outcome.Spawned = res.SpawnedIDs
		outcome.Failures = res.Failures

	case targetCount < current:
		outcome.Action = scaling.ActionScaleDown
		victims := o.scaleDownVictims(tpl.ID, current-targetCount)
		res := o.TerminateAgents(spanCtx, &agent.TerminationRequest{
			AgentIDs: victims,
			Graceful: true,
			Reason:   "manual scaling",
		})
		outcome.Terminated = res.TerminatedIDs
		outcome.Failures = res.Failures

	default:
		outcome.Action = scaling.ActionNone
	}

	o.scaler.MarkScaled(templateID)
	return outcome, nil
}

// ScalingOutcome reports what a manual or automatic scaling execution did.
type ScalingOutcome struct {
	TemplateID   string              `json:"template_id"`
	Action       scaling.Action      `json:"action"`
	CurrentCount int                 `json:"current_count"`
	TargetCount  int                 `json:"target_count"`
	Spawned      []string            `json:"spawned,omitempty"`
	Terminated   []string            `json:"terminated,omitempty"`
	Failures     []agent.UnitFailure `json:"failures,omitempty"`
}

func (s *ScalingOutcome) actionFor(current int) scaling.Action {
	switch {
	case s.TargetCount > current:
		return scaling.ActionScaleUp
	case s.TargetCount < current:
		return scaling.ActionScaleDown
	}
	return scaling.ActionNone
}

// scaleDownVictims picks the count lowest composite-score non-terminal
// instances of a template. Quality-preserving by design: never FIFO.
func (o *Orchestrator) scaleDownVictims(templateID string, count int) []string {
	type scored struct {
		id    string
		score float64
	}
	var candidates []scored
	for _, inst := range o.registry.List(Filter{}) {
		if inst.TemplateID != templateID || inst.Status.Terminal() || inst.Status == agent.StatusTerminating {
			continue
		}
		candidates = append(candidates, scored{id: inst.ID, score: Score(inst.Performance)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score < candidates[j].score
	})
	if count > len(candidates) {
		count = len(candidates)
	}
	ids := make([]string, 0, count)
	for _, c := range candidates[:count] {
		ids = append(ids, c.id)
	}
	return ids
}

// executeDecision acts on an auto-scaling decision that cleared the
// confidence bar.
func (o *Orchestrator) executeDecision(ctx context.Context, d *scaling.Decision) error {
	switch d.Action {
	case scaling.ActionScaleUp:
		res, err := o.SpawnAgents(ctx, &agent.SpawnRequest{
			TemplateID: d.TemplateID,
			Count:      d.TargetCount - d.CurrentCount,
			Reason:     "auto scaling",
		})
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("auto scale-up: %d units failed", len(res.Failures))
		}
		return nil

	case scaling.ActionScaleDown:
		victims := o.scaleDownVictims(d.TemplateID, d.CurrentCount-d.TargetCount)
		res := o.TerminateAgents(ctx, &agent.TerminationRequest{
			AgentIDs: victims,
			Graceful: true,
			Reason:   "auto scaling",
		})
		if !res.Success {
			return fmt.Errorf("auto scale-down: %d units failed", len(res.Failures))
		}
		return nil
	}
	return nil
}

// decisionEvent converts a decision to its broadcast shape.
func decisionEvent(d *scaling.Decision, executed bool) ws.ScalingDecisionEvent {
	return ws.ScalingDecisionEvent{
		TemplateID:   d.TemplateID,
		AgentType:    d.AgentType,
		Action:       string(d.Action),
		CurrentCount: d.CurrentCount,
		TargetCount:  d.TargetCount,
		Confidence:   d.Confidence,
		Urgency:      string(d.Urgency),
		Executed:     executed,
	}
}
