package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Strob0t/AgentForge/internal/domain/agent"
	"github.com/Strob0t/AgentForge/internal/domain/scaling"
	"github.com/Strob0t/AgentForge/internal/port/eventbus"
)

// SubscribeAll wires the orchestrator's inbound event handlers to the bus.
// Returned cancel funcs are invoked by the caller on shutdown.
func (o *Orchestrator) SubscribeAll(ctx context.Context) ([]func(), error) {
	subs := []struct {
		subject string
		handler eventbus.Handler
	}{
		{eventbus.SubjectAgentHeartbeat, o.onHeartbeat},
		{eventbus.SubjectTaskCompleted, o.onTaskCompleted},
		{eventbus.SubjectTaskFailed, o.onTaskFailed},
		{eventbus.SubjectAgentError, o.onAgentError},
		{eventbus.SubjectResourcePressure, o.onResourcePressure},
		{eventbus.SubjectDemandChange, o.onDemandChange},
	}

	cancels := make([]func(), 0, len(subs))
	for _, s := range subs {
		cancel, err := o.bus.Subscribe(ctx, s.subject, s.handler)
		if err != nil {
			for _, c := range cancels {
				c()
			}
			return nil, fmt.Errorf("subscribe %s: %w", s.subject, err)
		}
		cancels = append(cancels, cancel)
	}
	return cancels, nil
}

// onHeartbeat refreshes liveness. The first heartbeat of a spawning agent is
// its readiness signal: the instance advances to ready along the state
// machine's startup edges, the pending spawn wait is released, and the
// heartbeat's self-reported status may then move ready onward.
func (o *Orchestrator) onHeartbeat(_ context.Context, _ string, data []byte) error {
	var hb eventbus.HeartbeatPayload
	if err := json.Unmarshal(data, &hb); err != nil {
		return fmt.Errorf("decode heartbeat: %w", err)
	}

	now := o.now()
	becameReady := false
	err := o.registry.Update(hb.AgentID, func(in *agent.Instance) error {
		in.LastSeen = now
		if hb.CPUFraction > 0 || hb.MemoryFraction > 0 || hb.MemoryMB > 0 {
			in.Resources = agent.ResourceUsage{
				CPUFraction:    hb.CPUFraction,
				MemoryFraction: hb.MemoryFraction,
				MemoryMB:       hb.MemoryMB,
				SampledAt:      now,
			}
		}

		// The first heartbeat walks the legal startup edges: a process that
		// heartbeats before the PID write lands is still spawning, so it
		// advances through initializing on the way to ready.
		if in.Status == agent.StatusSpawning {
			in.Status = agent.StatusInitializing
		}
		if in.Status == agent.StatusInitializing {
			in.Status = agent.StatusReady
			becameReady = true
		}

		// The unhealthy -> idle edge is reserved for the recovery engine; a
		// self-reported status never clears unhealthy.
		if in.Status == agent.StatusUnhealthy {
			return nil
		}
		if next := agent.Status(hb.Status); next != "" && next != in.Status {
			if in.Status.CanTransition(next) {
				in.Status = next
			}
		}
		return nil
	})
	if err != nil {
		slog.Debug("heartbeat for unknown agent", "agent_id", hb.AgentID)
		return nil // stale heartbeats are not worth a redelivery
	}
	if becameReady {
		o.signalReady(hb.AgentID)
	}
	return nil
}

func (o *Orchestrator) onTaskCompleted(_ context.Context, _ string, data []byte) error {
	var p eventbus.TaskCompletedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode task completed: %w", err)
	}
	if err := o.perf.RecordCompletion(p.AgentID, p.TaskID, p.ResponseTimeMs, p.Quality); err != nil {
		slog.Debug("task completion for unknown agent", "agent_id", p.AgentID)
	}
	return nil
}

func (o *Orchestrator) onTaskFailed(_ context.Context, _ string, data []byte) error {
	var p eventbus.TaskFailedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode task failed: %w", err)
	}
	if err := o.perf.RecordFailure(p.AgentID, p.TaskID, p.Error, p.ResponseTimeMs); err != nil {
		slog.Debug("task failure for unknown agent", "agent_id", p.AgentID)
	}
	return nil
}

func (o *Orchestrator) onAgentError(_ context.Context, _ string, data []byte) error {
	var p eventbus.AgentErrorPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode agent error: %w", err)
	}
	now := o.now()
	_ = o.registry.Update(p.AgentID, func(in *agent.Instance) error {
		in.RecordError(agent.ErrorTypeRuntime, p.Error, now)
		return nil
	})
	return nil
}

// onResourcePressure starts the scale-up deferral window on critical
// pressure and relays it as an outbound notification.
func (o *Orchestrator) onResourcePressure(ctx context.Context, _ string, data []byte) error {
	var p eventbus.ResourcePressurePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode resource pressure: %w", err)
	}
	if o.scaler.NotePressure(p.Severity) {
		slog.Warn("critical resource pressure, deferring scale-ups")
		if out, err := marshalPayload(p); err == nil {
			if err := o.bus.Publish(ctx, eventbus.SubjectPressureCritical, out); err != nil {
				slog.Warn("publish pressure critical", "error", err)
			}
		}
	}
	return nil
}

// onDemandChange queues an immediate scaling evaluation for every template of
// the shifted agent type instead of waiting for the next scaling tick.
func (o *Orchestrator) onDemandChange(_ context.Context, _ string, data []byte) error {
	var p eventbus.DemandChangePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode demand change: %w", err)
	}
	for _, t := range o.catalog.List() {
		if t.Type == p.AgentType && t.Scaling.Enabled {
			o.RequestScalingEvaluation(t.ID)
		}
	}
	return nil
}

// --- outbound publish helpers ---

func marshalPayload(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal event payload", "error", err)
		return nil, err
	}
	return data, nil
}

func (o *Orchestrator) publishAgent(ctx context.Context, subject, agentID, templateID, agentType, reason string) {
	data, err := marshalPayload(eventbus.AgentEventPayload{
		AgentID:    agentID,
		TemplateID: templateID,
		Type:       agentType,
		Reason:     reason,
	})
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish agent event", "subject", subject, "error", err)
	}
}

func (o *Orchestrator) publishBatch(ctx context.Context, subject, templateID string, ids []string, success bool, failures []agent.UnitFailure) {
	reasons := make([]string, 0, len(failures))
	for _, f := range failures {
		reasons = append(reasons, f.Reason)
	}
	data, err := marshalPayload(eventbus.BatchEventPayload{
		TemplateID: templateID,
		AgentIDs:   ids,
		Success:    success,
		Failures:   reasons,
	})
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish batch event", "subject", subject, "error", err)
	}
}

func (o *Orchestrator) publishScaling(ctx context.Context, subject string, d *scaling.Decision, failReason string) {
	data, err := marshalPayload(struct {
		scaling.Decision
		Error string `json:"error,omitempty"`
	}{Decision: *d, Error: failReason})
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish scaling event", "subject", subject, "error", err)
	}
}
